package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"eventhub-backend/config"
	"eventhub-backend/database"
	"eventhub-backend/internal/platform/logger"
	"eventhub-backend/internal/services"
)

var requiredTables = []string{
	"users", "vendor_profiles", "service_listings",
	"carts", "cart_items", "bookings", "booking_items", "transactions",
	"favorites", "conversations", "messages",
}

// init_server prepares a database for the API and, in development, can issue
// a session token for local testing against the shared-secret verifier.
func main() {
	tokenFor := flag.String("token-for", "", "issue a development session token for this user id")
	email := flag.String("email", "", "email claim for the issued token")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the issued token")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	cfg := config.Load()

	logr, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", OutputFile: "stderr"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	logr.Info("initializing database", zap.String("database", cfg.DatabaseURL))
	db, err := database.Initialize(cfg.DatabaseURL, logr)
	if err != nil {
		logr.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrationManager(db, logr)
	if err := migrator.RunMigrations(); err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}

	if err := verifySchema(db); err != nil {
		logr.Fatal("schema check failed", zap.Error(err))
	}
	displayStatus(db, migrator)

	if *tokenFor != "" {
		if cfg.IsProduction() {
			logr.Fatal("development tokens cannot be issued in production")
		}
		token, err := issueToken(cfg, *tokenFor, *email, *ttl)
		if err != nil {
			logr.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
	}
}

func verifySchema(db *sqlx.DB) error {
	for _, table := range requiredTables {
		var name string
		if err := db.Get(&name, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}
	return nil
}

func displayStatus(db *sqlx.DB, migrator *database.MigrationManager) {
	out := os.Stderr
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out, "EVENTHUB DATABASE STATUS")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	applied, err := migrator.GetMigrationStatus()
	if err != nil {
		fmt.Fprintf(out, "failed to read migrations: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Migrations: %d applied\n", len(applied))
	for _, m := range applied {
		fmt.Fprintf(out, "  %s (%s)\n", m.Migration, m.ExecutedAt.Format(time.RFC3339))
	}

	for _, table := range []string{"users", "service_listings", "bookings", "messages"} {
		var count int
		if err := db.Get(&count, "SELECT COUNT(*) FROM "+table); err == nil {
			fmt.Fprintf(out, "  %-18s %d rows\n", table, count)
		}
	}
}

func issueToken(cfg *config.Config, userID, email string, ttl time.Duration) (string, error) {
	if cfg.IdentityJWTSecret == "" {
		return "", fmt.Errorf("IDENTITY_JWT_SECRET must be set to issue tokens")
	}
	auth, err := services.NewAuthService("", cfg.IdentityJWTSecret, cfg.IdentityJWTIssuer)
	if err != nil {
		return "", err
	}
	if email == "" {
		email = userID + "@example.com"
	}
	claims := services.SessionClaims{Email: email}
	claims.Subject = userID
	return auth.GenerateToken(claims, ttl)
}
