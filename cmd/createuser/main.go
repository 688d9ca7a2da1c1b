package main

import (
	"context"
	"flag"
	"log"

	"github.com/fablechat/fable-backend/internal/auth"
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/database"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/repository/postgres"
)

func main() {
	email := flag.String("email", "", "user email")
	password := flag.String("password", "", "user password")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("Usage: createuser -email <email> -password <password>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	userRepo := postgres.NewUserRepository(db.DB)
	id, err := userRepo.Create(context.Background(), models.User{
		Email:        *email,
		PasswordHash: hash,
	})
	if err != nil {
		log.Fatal("Failed to create user:", err)
	}

	log.Printf("Created user %s (%s)", id, *email)
}
