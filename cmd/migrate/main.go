package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"assetblock.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("ASSETBLOCK_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ASSETBLOCK_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.NewRunner(db, os.DirFS(*migrationsPath), os.DirFS(*seedsPath))

	switch flag.Arg(0) {
	case "up":
		var n int
		if n, err = runner.Up(ctx); err == nil {
			log.Printf("applied %d migration(s)", n)
		}
	case "down":
		var name string
		if name, err = runner.Down(ctx); err == nil {
			log.Printf("rolled back %s", name)
		}
	case "seed":
		var n int
		if n, err = runner.Seed(ctx); err == nil {
			log.Printf("applied %d seed file(s)", n)
		}
	case "status":
		var status []migrate.Migration
		if status, err = runner.Status(ctx); err == nil {
			for _, m := range status {
				state := "pending"
				if m.Applied {
					state = "applied " + m.AppliedAt.UTC().Format(time.RFC3339)
				}
				fmt.Printf("%-40s %s\n", m.Name, state)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
