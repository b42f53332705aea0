package main

// #region imports
import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/hlcs-dev/supervisor/internal/config"
	"github.com/hlcs-dev/supervisor/internal/narrative"
	"github.com/hlcs-dev/supervisor/internal/orchestrator"
	"github.com/hlcs-dev/supervisor/internal/rollback"
)

// #endregion

// #region main

func main() {
	dbPath := flag.String("db", "", "path to supervisor.db")
	last := flag.Int("last", 20, "show N most recent entries")
	actions := flag.Bool("actions", false, "show action records instead of episodes")
	quality := flag.Bool("quality", false, "show per-strategy quality summary")
	kind := flag.String("kind", "", "filter episodes by kind")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/supervisor.db [--last N] [--actions] [--quality] [--kind k] [--json]")
		os.Exit(2)
	}

	store, err := config.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *actions:
		err = runActions(store, *last, *jsonOut)
	case *quality:
		err = runQuality(store, *jsonOut)
	default:
		err = runEpisodes(store, *last, *kind, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region episodes

func runEpisodes(store *config.Store, last int, kind string, jsonOut bool) error {
	narr, err := narrative.NewStore(store.DB())
	if err != nil {
		return err
	}
	episodes, err := narr.Recent(last)
	if err != nil {
		return err
	}
	if kind != "" {
		filtered := episodes[:0]
		for _, ep := range episodes {
			if ep.Kind == kind {
				filtered = append(filtered, ep)
			}
		}
		episodes = filtered
	}
	if len(episodes) == 0 {
		fmt.Fprintln(os.Stderr, "no episodes found")
		return nil
	}

	if jsonOut {
		return printJSON(episodes)
	}
	fmt.Printf("%-20s  %-36s  %-40s  %s\n", "Kind", "Ref", "Summary", "Time")
	for _, ep := range episodes {
		fmt.Printf("%-20s  %-36s  %-40s  %s\n",
			ep.Kind, ep.RefID, truncate(ep.Summary, 40),
			ep.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion episodes

// #region actions

func runActions(store *config.Store, last int, jsonOut bool) error {
	records, err := rollback.RecentRecords(store.DB(), last)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no action records found")
		return nil
	}

	if jsonOut {
		return printJSON(records)
	}
	fmt.Printf("%-36s  %-28s  %10s  %10s  %-12s  %s\n",
		"Action", "Key", "Prev", "New", "Outcome", "Applied")
	for _, r := range records {
		fmt.Printf("%-36s  %-28s  %10.3f  %10.3f  %-12s  %s\n",
			r.ID, r.Key, r.PrevValue, r.NewValue, r.Outcome,
			r.AppliedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion actions

// #region quality

func runQuality(store *config.Store, jsonOut bool) error {
	memory, err := orchestrator.NewOutcomeMemory(store.DB())
	if err != nil {
		return err
	}

	type row struct {
		Strategy string  `json:"strategy"`
		Mean     float32 `json:"mean_quality"`
		Samples  int     `json:"samples"`
	}
	var rows []row
	for _, sid := range []orchestrator.StrategyID{orchestrator.StrategySimple, orchestrator.StrategyComposite} {
		mean, n, err := memory.MeanQuality(sid)
		if err != nil {
			return err
		}
		rows = append(rows, row{Strategy: string(sid), Mean: mean, Samples: n})
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-12s  %12s  %8s\n", "Strategy", "Mean Quality", "Samples")
	for _, r := range rows {
		fmt.Printf("%-12s  %12.3f  %8d\n", r.Strategy, r.Mean, r.Samples)
	}
	return nil
}

// #endregion quality

// #region helpers

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion helpers
