package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/popis/internal/db"
	"github.com/erazemk/popis/internal/model"
	"github.com/erazemk/popis/internal/store"
)

const defaultAdmin = "Admin"

func initCmd() *cobra.Command {
	var adminUser string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and the first admin account",
		Long: `Creates a new database, applies all migrations and creates an admin
account with a random password. The password is printed once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Database.Path); err == nil {
				return fmt.Errorf("database %s already exists", cfg.Database.Path)
			}

			database, password, err := initDatabase(cmd.Context(), cfg.Database.Path, adminUser)
			if err != nil {
				return err
			}
			database.Close()

			printInitResult(cmd.OutOrStdout(), cfg.Database.Path, adminUser, password)
			return nil
		},
	}

	cmd.Flags().StringP("db", "d", "", "SQLite database path")
	cmd.Flags().StringVarP(&adminUser, "user", "u", defaultAdmin, "admin username")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, closeLog, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.Migrate(cmd.Context(), database); err != nil {
				return err
			}
			version, err := db.SchemaVersion(cmd.Context(), database)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n",
				color.New(color.FgGreen).Sprint("OK"), version)
			return nil
		},
	}

	cmd.Flags().StringP("db", "d", "", "SQLite database path")
	return cmd
}

// initDatabase creates a new database, applies migrations and creates the admin user.
// On failure the half-created database file is removed.
func initDatabase(ctx context.Context, path, adminUsername string) (_ *sql.DB, _ string, err error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err != nil {
			database.Close()
			os.Remove(path)
		}
	}()

	if err := db.Migrate(ctx, database); err != nil {
		return nil, "", fmt.Errorf("migrating schema: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return nil, "", fmt.Errorf("creating admin user: %w", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result.
func printInitResult(w io.Writer, dbPath, username, password string) {
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s Database created: %s\n", color.New(color.FgGreen).Sprint("OK"), dbPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Admin account created:")
	fmt.Fprintf(w, "  Username: %s\n", bold.Sprint(username))
	fmt.Fprintf(w, "  Password: %s\n", bold.Sprint(password))
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Save this password, it cannot be recovered."))
	fmt.Fprintln(w, "The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	if length < model.MinPasswordLength {
		return "", errors.New("password length below minimum")
	}
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
