package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/mockexam-backend/internal/clock"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/database"
	"github.com/stemsi/mockexam-backend/internal/logger"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/seed"
	"github.com/stemsi/mockexam-backend/internal/service"
)

func main() {
	var (
		studentID string
		window    time.Duration
		tokenTTL  time.Duration
	)
	flag.StringVar(&studentID, "student", "student-demo", "Student id to schedule the demo exam for")
	flag.DurationVar(&window, "window", 24*time.Hour, "How long the exam stays available from now")
	flag.DurationVar(&tokenTTL, "token-ttl", 12*time.Hour, "Lifetime of the printed tokens")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)

	fmt.Println("=== Seeding demo IELTS template ===")
	tpl := seed.DemoTemplate()
	if err := store.InsertTemplate(ctx, &tpl); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert demo template")
	}
	fmt.Printf("Created template %q with ID: %s (%d questions)\n", tpl.Title, tpl.ID, len(tpl.Questions))

	sessions := service.NewSessionService(store, clock.System(), nil, log)
	now := time.Now().UTC()
	sess, err := sessions.Schedule(ctx, model.ScheduleExamRequest{
		StudentID:        studentID,
		TemplateID:       tpl.ID,
		StartAvailableAt: now,
		EndAvailableAt:   now.Add(window),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule demo session")
	}
	fmt.Printf("Scheduled session %s for %s until %s\n", sess.ID, studentID, sess.EndAvailableAt.Format(time.RFC3339))

	auth := service.NewAuthService(cfg)
	studentToken, err := auth.IssueToken(studentID, service.RoleStudent, tokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue student token")
	}
	adminToken, err := auth.IssueToken("admin-demo", service.RoleAdmin, tokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue admin token")
	}

	fmt.Println("\n=== Tokens ===")
	fmt.Printf("Student: %s\n", studentToken)
	fmt.Printf("Admin:   %s\n", adminToken)
}
