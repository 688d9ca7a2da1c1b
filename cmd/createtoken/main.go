package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fablechat/fable-backend/internal/auth"
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/database"
	"github.com/fablechat/fable-backend/internal/repository/postgres"
)

// Mints a session token for local development without going through login.
func main() {
	userID := flag.String("user", "", "user id to issue the token for")
	flag.Parse()

	if *userID == "" {
		log.Fatal("Usage: createtoken -user <id>")
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

	user, err := postgres.NewUserRepository(db.DB).Get(context.Background(), *userID)
	if err != nil {
		log.Fatal("Failed to load user:", err)
	}

	secret := os.Getenv("FABLE_JWT_SECRET")
	if secret == "" {
		secret = "change-me-in-production"
	}

	token, err := auth.NewJWTManager(secret).Generate(user.ID, user.Email)
	if err != nil {
		log.Fatal("Failed to generate token:", err)
	}

	fmt.Println(token)
}
