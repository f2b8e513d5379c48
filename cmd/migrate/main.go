// The reader applies pending migrations itself on startup, so this tool
// exists for the cases startup cannot cover: inspecting migration state
// and rolling back a schema change on an existing database.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"speedreader/migrations"
)

var commands = map[string]func(*sql.DB) error{
	"up":      func(db *sql.DB) error { return goose.Up(db, ".") },
	"down":    func(db *sql.DB) error { return goose.Down(db, ".") },
	"status":  func(db *sql.DB) error { return goose.Status(db, ".") },
	"version": func(db *sql.DB) error { return goose.Version(db, ".") },
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/reader.db"), "path to sqlite database")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}
	run, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	if err := run(db); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] up|down|status|version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "  up       Apply pending migrations (the reader does this on startup)")
	fmt.Fprintln(os.Stderr, "  down     Roll back the most recent migration")
	fmt.Fprintln(os.Stderr, "  status   Show which migrations have been applied")
	fmt.Fprintln(os.Stderr, "  version  Show the current schema version")
	os.Exit(1)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
