package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/service/snapshot"
	apiclient "github.com/splax/runwatch/pkg/api/client"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "runs":
		err = commandRuns(args)
	case "snapshot":
		err = commandSnapshot(args)
	case "version", "--version", "-v":
		fmt.Printf("runwatch %s\n", buildVersion)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4600)")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	fs.Parse(args)

	cli, err := apiclient.New(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	runs, err := cli.ListRuns(ctx, *limit, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-10s  %s  %s\n", run.ID, run.Status, run.PipelineName, run.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func commandSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	runID := fs.String("run", "", "Run ID to fetch from the API")
	file := fs.String("file", "", "Local JSON event log to aggregate instead of calling the API")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4600)")
	asJSON := fs.Bool("json", false, "Emit the snapshot as JSON")
	fs.Parse(args)

	if *file != "" {
		return snapshotFromFile(*file)
	}
	if strings.TrimSpace(*runID) == "" {
		return errors.New("either --run or --file is required")
	}

	cli, err := apiclient.New(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := cli.Snapshot(ctx, *runID)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(snap)
	}
	printSnapshot(snap)
	return nil
}

// snapshotFromFile aggregates a local JSON event log without an API server,
// useful for inspecting exported logs.
func snapshotFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	var events []domain.RunEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("decode event log: %w", err)
	}
	snap, err := snapshot.Aggregate(events)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printSnapshot(snap apiclient.Snapshot) {
	fmt.Printf("log window: %s .. %s\n", millis(snap.FirstLogAt), millis(snap.MostRecentLogAt))
	if snap.StartedPipelineAt != nil {
		fmt.Printf("pipeline started: %s\n", millis(*snap.StartedPipelineAt))
	}
	if snap.ExitedAt != nil {
		fmt.Printf("exited: %s\n", millis(*snap.ExitedAt))
	}
	if snap.InitFailed {
		fmt.Println("initialization failed")
	}
	for _, marker := range snap.GlobalMarkers {
		fmt.Printf("marker %-20s %s\n", marker.Key, span(marker.Start, marker.End))
	}

	keys := make([]string, 0, len(snap.Steps))
	for key := range snap.Steps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		step := snap.Steps[key]
		fmt.Printf("step %-30s %-10s %s\n", key, step.State, span(step.Start, step.End))
		for _, result := range step.ExpectationResults {
			fmt.Printf("  expectation %-6s %s\n", result.Status, result.Text)
		}
		for _, mat := range step.Materializations {
			fmt.Printf("  materialized %s\n", mat.Text)
		}
	}
}

func millis(v int64) string {
	if v == 0 {
		return "-"
	}
	return time.UnixMilli(v).UTC().Format(time.RFC3339)
}

func span(start, end *int64) string {
	from := "-"
	to := "-"
	if start != nil {
		from = millis(*start)
	}
	if end != nil {
		to = millis(*end)
	}
	return from + " .. " + to
}

func printUsage() {
	fmt.Println(`runwatch - inspect pipeline runs

Usage:
  runwatch runs [--api URL] [--limit N]
  runwatch snapshot --run RUN_ID [--api URL] [--json]
  runwatch snapshot --file events.json
  runwatch version`)
}
