package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"rapidphoto/internal/config"
	"rapidphoto/internal/controller"
	"rapidphoto/internal/database"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if len(os.Args) < 5 {
		fmt.Println("Usage: tokengen <config_path> <token_name> <role> <expires_in_days>")
		fmt.Println("Example: tokengen config/dev.config.json \"Uploader Service\" SERVICE 365")
		os.Exit(1)
	}

	configPath := os.Args[1]
	tokenName := os.Args[2]
	role := os.Args[3]
	expiresInDays, err := strconv.Atoi(os.Args[4])
	if err != nil {
		log.Fatal().Msgf("Invalid expires_in_days value: %v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Msgf("Failed to load configuration: %v", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to MongoDB: %v", err)
	}

	tc := controller.NewToken(db)

	var expiresAt *time.Time
	if expiresInDays > 0 {
		t := time.Now().AddDate(0, 0, expiresInDays)
		expiresAt = &t
	}

	tokenString, token, err := tc.GenerateToken(context.Background(), tokenName, role, expiresAt)
	if err != nil {
		log.Fatal().Msgf("Failed to generate token: %v", err)
	}

	fmt.Println("Token created successfully!")
	fmt.Println("ID:", token.ID.Hex())
	fmt.Println("Role:", token.Role)
	fmt.Println("Token:", tokenString)
	fmt.Println("IMPORTANT: Save this token securely. It won't be shown again.")
}
