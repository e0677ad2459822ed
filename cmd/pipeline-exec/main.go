// pipeline-exec runs a single pipeline definition on the local host and exits
// non-zero if the run fails. Intended for trying out definitions before
// registering them with the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"pipeliner/internal/executor"
	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
)

func main() {
	workspace := flag.String("workspace", "", "workspace root directory (default: temporary directory)")
	timeout := flag.Duration("timeout", time.Hour, "overall run timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <pipeline.yml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Keep log noise out of the result output
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := runOnce(flag.Arg(0), *workspace, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runOnce(path, workspace string, timeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p, err := pipeline.ParseYAML(data)
	if err != nil {
		return err
	}
	if err := pipeline.Validate(p); err != nil {
		return err
	}

	if workspace == "" {
		workspace, err = os.MkdirTemp("", "pipeline-exec-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(workspace)
	}

	registry := pipeline.NewRegistry()
	registry.Add(p)

	svc := run.NewService(run.ServiceConfig{
		Registry: registry,
		Engine: run.NewEngine(run.EngineConfig{
			Runner:        executor.NewLocal(0),
			WorkspaceRoot: workspace,
		}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer svc.Close(context.Background())

	resp, err := svc.Trigger(ctx, &run.Request{Pipeline: p.Name})
	if err != nil {
		return err
	}

	snapshot, err := waitForRun(ctx, svc, resp.ID)
	if err != nil {
		return err
	}

	printResults(snapshot)

	if snapshot.Status != run.StatusSucceeded {
		return fmt.Errorf("run %s", snapshot.Status)
	}
	return nil
}

func waitForRun(ctx context.Context, svc *run.Service, runID string) (*run.Snapshot, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		snapshot, err := svc.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if snapshot.Status.Terminal() {
			return snapshot, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printResults(snapshot *run.Snapshot) {
	fmt.Printf("Pipeline: %s\nStatus:   %s\n\n", snapshot.Pipeline, snapshot.Status)
	for _, job := range snapshot.Jobs {
		fmt.Printf("  job %-20s %s\n", job.ID, job.Result)
		for _, step := range job.Steps {
			fmt.Printf("    step %-17s %s\n", step.ID, step.Result)
			if step.Error != "" {
				fmt.Printf("      error: %s\n", step.Error)
			}
		}
	}
}
