package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/minhqn/ocrflow/internal/core/config"
	"github.com/minhqn/ocrflow/internal/history"
	"github.com/minhqn/ocrflow/internal/history/postgres"
	redisarchive "github.com/minhqn/ocrflow/internal/history/redis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archived checkpoints for all jobs",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var archive history.Archiver
	switch {
	case cfg.Database.URL != "":
		archive, err = postgres.New(ctx, cfg.Database)
	case cfg.Redis.URL != "":
		archive, err = redisarchive.NewArchive(cfg.Redis)
	default:
		fmt.Println("No archive backend configured; nothing to show")
		return
	}
	if err != nil {
		slog.Error("Failed to connect to archive", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = archive.Close()
	}()

	checkpoints, err := archive.List(ctx)
	if err != nil {
		slog.Error("Failed to list checkpoints", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tSTATE\tPROCESSED\tSUCCESS\tERRORS\tUPDATED")

	for _, cp := range checkpoints {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%d\t%s\n",
			cp.JobID, cp.State, cp.ProcessedCount, cp.TotalItems,
			cp.SuccessCount, cp.ErrorCount,
			time.Unix(cp.UpdatedAt, 0).Format(time.RFC3339))
	}
	_ = w.Flush()
}
