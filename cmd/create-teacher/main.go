package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/akademos/exam-backend/internal/config"
	"github.com/akademos/exam-backend/internal/database"
	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/akademos/exam-backend/internal/service"
	"github.com/google/uuid"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg, nil, userRepo)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Teacher Account ===")

	fmt.Print("Enter School ID (blank to create a new school): ")
	schoolIDStr, _ := reader.ReadString('\n')
	schoolIDStr = strings.TrimSpace(schoolIDStr)

	var schoolID uuid.UUID
	if schoolIDStr == "" {
		fmt.Print("Enter School Name: ")
		schoolName, _ := reader.ReadString('\n')
		schoolName = strings.TrimSpace(schoolName)
		if schoolName == "" {
			fmt.Println("Error: School name is required")
			return
		}
		if err := pool.QueryRow(ctx,
			`INSERT INTO schools (name) VALUES ($1) RETURNING id`, schoolName,
		).Scan(&schoolID); err != nil {
			log.Fatal().Err(err).Msg("Failed to create school")
		}
		fmt.Printf("Created school %q with ID: %s\n", schoolName, schoolID)
	} else {
		schoolID, err = uuid.Parse(schoolIDStr)
		if err != nil {
			fmt.Println("Error: School ID must be a valid UUID")
			return
		}
	}

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 8 {
		fmt.Println("Error: Password must be at least 8 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	passwordHash, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	teacher := &model.User{
		SchoolID:     schoolID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleTeacher,
	}

	if err := userRepo.Create(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			fmt.Printf("Error: an account with email %q already exists\n", email)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create teacher")
	}

	fmt.Printf("\nSuccess! Teacher '%s' (%s) created with ID: %s\n", teacher.Name, teacher.Email, teacher.ID)
}
