package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrNotOwner          ErrCode = "NOT_OWNER"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrWindowNotOpen       ErrCode = "WINDOW_NOT_OPEN"
	ErrWindowClosed        ErrCode = "WINDOW_CLOSED"
	ErrTimeExpired         ErrCode = "TIME_EXPIRED"
	ErrResultsNotReleased  ErrCode = "RESULTS_NOT_RELEASED"
	ErrInvalidSessionState ErrCode = "INVALID_SESSION_STATE"
	ErrExamMisconfigured   ErrCode = "EXAM_MISCONFIGURED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrNotOwner:
		return "Ujian ini tidak dijadwalkan untuk Anda."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Permintaan bertentangan dengan status sumber daya saat ini."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrWindowNotOpen:
		return "Jendela ujian belum dibuka."
	case ErrWindowClosed:
		return "Jendela ujian sudah ditutup."
	case ErrTimeExpired:
		return "Waktu ujian telah habis. Jawaban tidak disimpan."
	case ErrResultsNotReleased:
		return "Hasil ujian belum dirilis."
	case ErrInvalidSessionState:
		return "Status sesi ujian tidak mengizinkan tindakan ini."
	case ErrExamMisconfigured:
		return "Konfigurasi ujian tidak lengkap. Hubungi administrator."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
