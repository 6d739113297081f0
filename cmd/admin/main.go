package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"mindspace/backend/internal/auth"
	"mindspace/backend/internal/config"
	"mindspace/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  activate <user_id>             allow the user to connect again
  deactivate <user_id>           reject the user's credentials from now on
  role <user_id> <role>          set role (patient, psychologist, admin)
  token <user_id> [ttl_hours]    print a signed access token`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, nil, nil) // no redis needed for admin CLI
	ctx := context.Background()

	switch command := os.Args[1]; command {
	case "activate", "deactivate":
		if len(os.Args) != 3 {
			fmt.Printf("Usage: admin %s <user_id>\n", command)
			os.Exit(1)
		}
		userID := parseUserID(os.Args[2])
		if err := storageSvc.SetUserActive(ctx, userID, command == "activate"); err != nil {
			log.Fatalf("Error updating user: %v", err)
		}
		fmt.Printf("User %d has been %sd.\n", userID, command)

	case "role":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin role <user_id> <role>")
			os.Exit(1)
		}
		userID, role := parseUserID(os.Args[2]), os.Args[3]
		if err := setRole(ctx, storageSvc, userID, role); err != nil {
			log.Fatalf("Error setting role: %v", err)
		}
		fmt.Printf("User %d is now %s.\n", userID, role)

	case "token":
		if len(os.Args) < 3 || len(os.Args) > 4 {
			fmt.Println("Usage: admin token <user_id> [ttl_hours]")
			os.Exit(1)
		}
		ttl := cfg.TokenTTL
		if len(os.Args) == 4 {
			hours, err := strconv.Atoi(os.Args[3])
			if err != nil || hours <= 0 {
				fmt.Println("Invalid ttl. Please provide a positive number of hours.")
				os.Exit(1)
			}
			ttl = time.Duration(hours) * time.Hour
		}
		token, err := issueToken(ctx, storageSvc, cfg, parseUserID(os.Args[2]), ttl)
		if err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		fmt.Println(token)

	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func parseUserID(s string) uint {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		fmt.Println("Invalid user ID. Please provide a positive integer.")
		os.Exit(1)
	}
	return uint(id)
}

func setRole(ctx context.Context, s storage.Storage, userID uint, role string) error {
	if !config.ValidRoles[role] {
		return fmt.Errorf("unknown role %q", role)
	}
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	user.Role = role
	return s.SaveUser(ctx, user)
}

func issueToken(ctx context.Context, s storage.Storage, cfg *config.Config, userID uint, ttl time.Duration) (string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", fmt.Errorf("user %d is deactivated", userID)
	}
	return auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, s).IssueToken(user, ttl)
}
