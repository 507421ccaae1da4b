// Command admin is a maintenance tool for the checkpoint archive. It removes
// acknowledged terminal checkpoints older than the retention window.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

func main() {
	retention := flag.Duration("retention", 30*24*time.Hour, "delete terminal checkpoints older than this")
	dryRun := flag.Bool("dry-run", false, "report what would be deleted without deleting")
	flag.Parse()

	_ = godotenv.Load()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sqlx.Open("pgx", url)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	cutoff := time.Now().Add(-*retention).Unix()

	if *dryRun {
		var count int
		err = db.Get(&count,
			`SELECT COUNT(*) FROM job_checkpoints
			 WHERE state IN ('completed', 'stopped', 'error') AND updated_at < $1`, cutoff)
		if err != nil {
			log.Fatalf("count checkpoints: %v", err)
		}
		fmt.Printf("Would delete %d terminal checkpoints older than %s\n", count, *retention)
		return
	}

	res, err := db.Exec(
		`DELETE FROM job_checkpoints
		 WHERE state IN ('completed', 'stopped', 'error') AND updated_at < $1`, cutoff)
	if err != nil {
		log.Fatalf("purge checkpoints: %v", err)
	}
	n, _ := res.RowsAffected()
	fmt.Printf("Deleted %d terminal checkpoints older than %s\n", n, *retention)
}
