package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/minhqn/ocrflow/internal/core/domain"
)

var (
	submitAddr    string
	submitWorkers int
	submitRetries int
)

var submitCmd = &cobra.Command{
	Use:   "submit [directory]",
	Short: "Submit every document in a directory as one processing job",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitAddr, "addr", "http://localhost:8080", "address of the running ocrflow service")
	submitCmd.Flags().IntVar(&submitWorkers, "workers", 4, "number of concurrent workers for the job")
	submitCmd.Flags().IntVar(&submitRetries, "max-retries", 3, "retry budget per document")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	dir := args[0]

	var items []domain.WorkItem
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, _ := filepath.Rel(dir, path)
		items = append(items, domain.WorkItem{
			ID:      rel,
			Name:    d.Name(),
			Payload: payload,
		})
		return nil
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no documents found in %s", dir)
	}

	body, err := json.Marshal(map[string]any{
		"items": items,
		"config": domain.JobConfig{
			Workers:            submitWorkers,
			Parallel:           submitWorkers > 1,
			MaxRetries:         submitRetries,
			AutoPauseThreshold: 5,
		},
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(submitAddr+"/api/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Printf("Submitted %d documents as job %s\n", len(items), out.JobID)
	return nil
}
