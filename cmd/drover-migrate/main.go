package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cuemby/drover/pkg/config"
)

var (
	pgHost = flag.String("pg-host", "", "PostgreSQL host (default from PG_HOST or localhost)")
	pgPort = flag.Int("pg-port", 0, "PostgreSQL port (default from PG_PORT or 5432)")
	pgName = flag.String("pg-name", "", "Database name (default from PG_NAME or drover)")
	pgUser = flag.String("pg-user", "", "Database user (default from PG_USER or drover)")
	pgPass = flag.String("pg-pass", "", "Database password (default from PG_PASS)")
	dryRun = flag.Bool("dry-run", false, "Print the schema statements without applying them")
)

// statements is the full coordinator schema, applied in order. Every
// statement is idempotent so the tool can run on every deploy.
var statements = []struct {
	name string
	ddl  string
}{
	{
		name: "task_services",
		ddl: `CREATE TABLE IF NOT EXISTS task_services (
	kf_id                TEXT PRIMARY KEY,
	uuid                 UUID NOT NULL,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	url                  TEXT NOT NULL,
	author               TEXT NOT NULL DEFAULT 'admin',
	enabled              BOOLEAN NOT NULL DEFAULT TRUE,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "releases",
		ddl: `CREATE TABLE IF NOT EXISTS releases (
	kf_id       TEXT PRIMARY KEY,
	uuid        UUID NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT 'admin',
	tags        TEXT[] NOT NULL DEFAULT '{}',
	studies     TEXT[] NOT NULL DEFAULT '{}',
	state       TEXT NOT NULL DEFAULT 'waiting',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "tasks",
		ddl: `CREATE TABLE IF NOT EXISTS tasks (
	kf_id           TEXT PRIMARY KEY,
	uuid            UUID NOT NULL,
	release_id      TEXT NOT NULL REFERENCES releases(kf_id) ON DELETE CASCADE,
	task_service_id TEXT NOT NULL REFERENCES task_services(kf_id) ON DELETE CASCADE,
	state           TEXT NOT NULL DEFAULT 'waiting',
	progress        INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "events",
		ddl: `CREATE TABLE IF NOT EXISTS events (
	kf_id           TEXT PRIMARY KEY,
	uuid            UUID NOT NULL,
	event_type      TEXT NOT NULL DEFAULT 'info',
	message         TEXT NOT NULL,
	release_id      TEXT REFERENCES releases(kf_id) ON DELETE SET NULL,
	task_id         TEXT REFERENCES tasks(kf_id) ON DELETE SET NULL,
	task_service_id TEXT REFERENCES task_services(kf_id) ON DELETE SET NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "studies",
		ddl: `CREATE TABLE IF NOT EXISTS studies (
	kf_id          TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	visible        BOOLEAN NOT NULL DEFAULT FALSE,
	deleted        BOOLEAN NOT NULL DEFAULT FALSE,
	latest_version TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "release_notes",
		ddl: `CREATE TABLE IF NOT EXISTS release_notes (
	kf_id       TEXT PRIMARY KEY,
	uuid        UUID NOT NULL,
	author      TEXT NOT NULL DEFAULT 'admin',
	description TEXT NOT NULL,
	release_id  TEXT NOT NULL REFERENCES releases(kf_id) ON DELETE CASCADE,
	study_id    TEXT REFERENCES studies(kf_id) ON DELETE SET NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "tasks release index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_tasks_release ON tasks (release_id)`,
	},
	{
		name: "tasks service index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_tasks_service ON tasks (task_service_id)`,
	},
	{
		name: "events release index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_events_release ON events (release_id)`,
	},
	{
		name: "events task index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_events_task ON events (task_id, created_at)`,
	},
	{
		name: "events service index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_events_service ON events (task_service_id)`,
	},
	{
		name: "notes release index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_notes_release ON release_notes (release_id)`,
	},
	{
		name: "notes study index",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_notes_study ON release_notes (study_id)`,
	},
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("Drover Schema Migration Tool")
	log.Println("============================")

	cfg := config.Default()
	if err := cfg.FromEnv(); err != nil {
		log.Fatalf("Bad environment: %v", err)
	}
	applyFlags(cfg)

	log.Printf("Database: %s@%s:%d/%s",
		cfg.Storage.Postgres.User, cfg.Storage.Postgres.Host,
		cfg.Storage.Postgres.Port, cfg.Storage.Postgres.Name)
	log.Printf("Dry run: %v", *dryRun)

	if *dryRun {
		log.Println("\n[DRY RUN] Would apply the following statements:")
		for i, stmt := range statements {
			fmt.Printf("\n-- %d. %s\n%s;\n", i+1, stmt.name, stmt.ddl)
		}
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to apply the schema.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	for i, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt.ddl); err != nil {
			log.Fatalf("Failed to apply %s: %v", stmt.name, err)
		}
		log.Printf("✓ Applied %d/%d: %s", i+1, len(statements), stmt.name)
	}

	log.Println("\n✓ Schema is up to date")
}

// applyFlags overrides the environment-derived connection settings
func applyFlags(cfg *config.Config) {
	if *pgHost != "" {
		cfg.Storage.Postgres.Host = *pgHost
	}
	if *pgPort != 0 {
		cfg.Storage.Postgres.Port = *pgPort
	}
	if *pgName != "" {
		cfg.Storage.Postgres.Name = *pgName
	}
	if *pgUser != "" {
		cfg.Storage.Postgres.User = *pgUser
	}
	if *pgPass != "" {
		cfg.Storage.Postgres.Password = *pgPass
	}
}
