package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})

	tok, err := auth.IssueToken("stu-42", RoleStudent, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "stu-42", claims.SubjectID())
	assert.Equal(t, RoleStudent, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})
	other := NewAuthService(&config.Config{JWTSecret: "other"})

	forged, err := other.IssueToken("stu-42", RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = auth.ValidateToken(forged)
	assert.Error(t, err)

	expired, err := auth.IssueToken("stu-42", RoleStudent, -time.Minute)
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.Error(t, err)

	badRole, err := auth.IssueToken("stu-42", Role("TEACHER"), time.Hour)
	require.NoError(t, err)
	_, err = auth.ValidateToken(badRole)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ValidateToken(unsigned)
	assert.Error(t, err)
}
