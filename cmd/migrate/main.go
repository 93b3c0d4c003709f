package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/example/vetportal/internal/config"
	"github.com/example/vetportal/internal/dbmigrate"
)

func main() {
	var (
		command    = flag.String("command", "up", "Migration command: up, down, version, force")
		steps      = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version    = flag.Uint("version", 0, "Target version (for force command)")
		configPath = flag.String("config", "", "path to config file")
		dir        = flag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.DBAdapter != "postgres" {
		log.Fatalf("Migrations only work with PostgreSQL. Current adapter: %s", cfg.DBAdapter)
	}

	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	r, err := dbmigrate.Open(migrationsDir, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Migrator init failed: %v", err)
	}
	if err := run(r, *command, *steps, *version); err != nil {
		_ = r.Close()
		log.Fatal(err)
	}
	_ = r.Close()
}

func run(r *dbmigrate.Runner, command string, steps int, version uint) error {
	switch command {
	case "up":
		if err := r.Up(steps); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		fmt.Println("Migrations applied successfully")
	case "down":
		if err := r.Down(steps); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		fmt.Println("Migrations rolled back successfully")
	case "version":
		v, dirty, err := r.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		if dirty {
			fmt.Printf("Database is in a dirty state (version %d)\n", v)
			_ = r.Close()
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if version == 0 {
			return fmt.Errorf("version required for force command (use -version flag)")
		}
		if err := r.Force(int(version)); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		fmt.Printf("Forced database to version %d\n", version)
	default:
		return fmt.Errorf("unknown command: %s (supported: up, down, version, force)", command)
	}
	return nil
}
