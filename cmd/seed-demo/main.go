package main

import (
	"context"
	"fmt"
	"time"

	"github.com/akademos/exam-backend/internal/config"
	"github.com/akademos/exam-backend/internal/database"
	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/akademos/exam-backend/internal/service"
	"github.com/google/uuid"
)

// Seeds a demo school with one class, one teacher and a roster of students.
// Every account gets the same password so the demo is usable immediately.
const demoPassword = "passw0rd!"

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	authService := service.NewAuthService(cfg, nil, userRepo)

	fmt.Println("=== Seeding Demo School ===")

	// One bcrypt round for everyone; the cost dominates seeding time.
	passwordHash, err := authService.HashPassword(demoPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash demo password")
	}

	var schoolID uuid.UUID
	if err := pool.QueryRow(ctx,
		`INSERT INTO schools (name) VALUES ($1) RETURNING id`, "Meridian High School",
	).Scan(&schoolID); err != nil {
		log.Fatal().Err(err).Msg("Failed to create school")
	}
	fmt.Printf("Created school with ID: %s\n", schoolID)

	class := &model.Class{
		SchoolID:   schoolID,
		Name:       "10-A",
		GradeLevel: 10,
	}
	if err := classRepo.Create(ctx, class); err != nil {
		log.Fatal().Err(err).Msg("Failed to create class")
	}
	fmt.Printf("Created class %s with ID: %s\n", class.Name, class.ID)

	teacher := &model.User{
		SchoolID:     schoolID,
		Name:         "Dana Whitfield",
		Email:        "teacher@meridian.demo",
		PasswordHash: passwordHash,
		Role:         model.RoleTeacher,
	}
	if err := userRepo.Create(ctx, teacher); err != nil {
		log.Fatal().Err(err).Msg("Failed to create teacher")
	}
	fmt.Printf("Created teacher %s <%s>\n", teacher.Name, teacher.Email)

	names := []string{
		"Ana Flores", "Bruno Lim", "Chloe Park", "Daniel Osei", "Emma Novak",
		"Felix Braun", "Grace Chen", "Hugo Mora", "Iris Nakamura", "Jonas Berg",
		"Kara Singh", "Leo Fontaine", "Mia Torres", "Noah Meyer", "Olivia Santos",
		"Pavel Dvorak", "Quinn Walsh", "Rosa Marin", "Sami Haddad", "Tara Novotna",
	}

	successCount := 0
	for i, name := range names {
		email := fmt.Sprintf("student%02d@meridian.demo", i+1)

		account := &model.User{
			SchoolID:     schoolID,
			Name:         name,
			Email:        email,
			PasswordHash: passwordHash,
			Role:         model.RoleStudent,
		}
		if err := userRepo.Create(ctx, account); err != nil {
			fmt.Printf("Error creating account %s: %v\n", email, err)
			continue
		}

		student := &model.Student{
			UserID:        account.ID,
			SchoolID:      schoolID,
			ClassID:       class.ID,
			Name:          name,
			StudentNumber: fmt.Sprintf("2026-%04d", i+1),
		}
		if err := studentRepo.Create(ctx, student); err != nil {
			fmt.Printf("Error enrolling student %s: %v\n", name, err)
			continue
		}
		successCount++
	}

	fmt.Printf("\nSeed completed! Enrolled %d/%d students.\n", successCount, len(names))
	fmt.Printf("All accounts use the password %q.\n", demoPassword)
}
