package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/taskmaster/notifier/internal/application/services"
	"github.com/taskmaster/notifier/internal/application/triggers"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/database"
	"github.com/taskmaster/notifier/internal/infrastructure/server"
)

// Version is overridden at build time with -ldflags
var Version = "dev"

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the notifier triggers",
		Long:         "Run the timer, change feed and HTTP triggers enabled in the configuration until interrupted",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// NewSweepCommand creates the one-shot sweep command
func NewSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "sweep",
		Short:        "Evaluate every stored todo once",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep()
		},
	}
}

// NewEvaluateCommand creates the single-item evaluate command
func NewEvaluateCommand() *cobra.Command {
	evaluateCmd := &cobra.Command{
		Use:          "evaluate",
		Short:        "Evaluate one stored todo and send what is due",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			at, _ := cmd.Flags().GetString("now")

			if id == "" {
				return errors.New("--id is required")
			}

			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --now value: %w", err)
				}
				now = parsed.UTC()
			}

			return runEvaluate(id, now)
		},
	}

	evaluateCmd.Flags().String("id", "", "Todo id (required)")
	evaluateCmd.Flags().String("now", "", "Evaluation instant in RFC 3339, defaults to the current time")
	return evaluateCmd
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage database migrations (up, down, version)",
	}

	upCmd := &cobra.Command{
		Use:          "up",
		Short:        "Run up migrations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration("up", steps)
		},
	}
	upCmd.Flags().Int("steps", 0, "Number of migrations to apply, 0 for all")
	migrateCmd.AddCommand(upCmd)

	downCmd := &cobra.Command{
		Use:          "down",
		Short:        "Run down migrations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration("down", steps)
		},
	}
	downCmd.Flags().Int("steps", 0, "Number of migrations to roll back, 0 for all")
	migrateCmd.AddCommand(downCmd)

	migrateCmd.AddCommand(&cobra.Command{
		Use:          "version",
		Short:        "Print current migration version",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewTokenCommand creates the command that issues HTTP trigger tokens
func NewTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP trigger",
		Run: func(cmd *cobra.Command, args []string) {
			subject, _ := cmd.Flags().GetString("subject")
			scope, _ := cmd.Flags().GetString("scope")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if subject == "" {
				log.Fatal("--subject is required")
			}

			issueToken(subject, scope, ttl)
		},
	}

	tokenCmd.Flags().String("subject", "", "Token subject (required)")
	tokenCmd.Flags().String("scope", "", "Space separated scopes, e.g. \"sweep\"")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return tokenCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print notifier version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Todo Notifier %s\n", Version)
		},
	}
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var enabled []triggers.Trigger

	if a.cfg.Scheduler.Enabled {
		enabled = append(enabled, a.timer)
	}

	if a.cfg.ChangeFeed.Enabled {
		listener, err := triggers.NewListener(a.db.DSN(), a.cfg.ChangeFeed.Channel, a.logger)
		if err != nil {
			return err
		}
		defer listener.Close()

		enabled = append(enabled, triggers.NewChangeFeedTrigger(a.processor, a.feed, listener.Notify, a.cfg.ChangeFeed, a.logger))
	}

	if a.cfg.Server.Enabled {
		srv, err := server.New(a.cfg, server.Dependencies{
			DB:        a.db,
			Processor: a.processor,
			Sweeper:   a.timer,
			Tokens:    a.tokens,
			Metrics:   a.metrics,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		address := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
		enabled = append(enabled, triggers.NewHTTPTrigger(srv, address))
	}

	if len(enabled) == 0 {
		return errors.New("no triggers enabled")
	}

	names := make([]string, 0, len(enabled))
	for _, t := range enabled {
		names = append(names, t.Name())
	}
	a.logger.Infow("Starting notifier",
		"triggers", names,
		"environment", a.cfg.App.Environment,
		"partition", a.cfg.Database.PartitionKey,
	)

	if err := triggers.RunAll(ctx, enabled...); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.logger.Info("Notifier stopped")
	return nil
}

func runSweep() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.timer.Tick(context.Background())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	printJSON(report)
	return nil
}

func runEvaluate(id string, now time.Time) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.processor.ProcessByID(context.Background(), id, now)
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

func issueToken(subject, scope string, ttl time.Duration) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	token, err := services.NewTokenService(cfg.Security).GenerateToken(subject, scope, ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Println(token)
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, *database.DB, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+cfg.Database.MigrationsPath,
		"postgres",
		driver,
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, db, nil
}

func runMigration(direction string, steps int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, db, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migration %s completed successfully\n", direction)
	return nil
}

func showMigrationVersion() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, db, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Failed to encode output: %v", err)
	}
}
