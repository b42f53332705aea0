package main

// #region imports
import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hlcs-dev/supervisor/internal/autocorrect"
	"github.com/hlcs-dev/supervisor/internal/config"
	"github.com/hlcs-dev/supervisor/internal/gateway"
	"github.com/hlcs-dev/supervisor/internal/monitor"
	"github.com/hlcs-dev/supervisor/internal/narrative"
	"github.com/hlcs-dev/supervisor/internal/orchestrator"
	"github.com/hlcs-dev/supervisor/internal/rollback"
	"github.com/hlcs-dev/supervisor/internal/telemetry"
)

// #endregion

// #region main

func main() {
	configPath := envOr("SUPERVISOR_CONFIG", "")

	file := config.DefaultFile()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		file = loaded
	}
	dbPath := envOr("SUPERVISOR_DB", file.DBPath)
	gatewayAddr := envOr("GATEWAY_ADDR", file.Gateway.Addr)
	if mode := os.Getenv("SUPERVISOR_MODE"); mode != "" {
		file.Mode = mode
	}

	store, err := config.NewStore(dbPath)
	if err != nil {
		log.Fatalf("open config store: %v", err)
	}
	defer store.Close()
	if err := store.Seed(file.Tunables()); err != nil {
		log.Fatalf("seed config: %v", err)
	}

	tel, err := telemetry.NewStore(store.DB())
	if err != nil {
		log.Fatalf("open telemetry store: %v", err)
	}
	narr, err := narrative.NewStore(store.DB())
	if err != nil {
		log.Fatalf("open narrative store: %v", err)
	}
	memory, err := orchestrator.NewOutcomeMemory(store.DB())
	if err != nil {
		log.Fatalf("open outcome memory: %v", err)
	}

	gw, err := gateway.New(gatewayAddr, file.Gateway.CallTimeout)
	if err != nil {
		log.Fatalf("connect skill gateway at %s: %v", gatewayAddr, err)
	}
	defer gw.Close()

	stepCfg := orchestrator.StepConfig{
		Retries:     file.Steps.Retries,
		BackoffBase: file.Steps.BackoffBase,
	}
	orch, err := orchestrator.New(gw, store, orchestrator.Options{
		Memory:    memory,
		Narrative: narr,
		Metrics:   tel,
		StepCfg:   &stepCfg,
	})
	if err != nil {
		log.Fatalf("build orchestrator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		watcher := config.NewWatcher(configPath, store)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("config watcher: %v", err)
			}
		}()
	}

	// Kill switch: set SUPERVISOR_MONITOR_ENABLED=false to run the
	// orchestrator without the self-healing loop.
	if os.Getenv("SUPERVISOR_MONITOR_ENABLED") != "false" {
		if err := startSelfHealing(ctx, file, store, tel, narr); err != nil {
			log.Fatalf("start self-healing loop: %v", err)
		}
	} else {
		log.Println("[MON] disabled via SUPERVISOR_MONITOR_ENABLED=false")
	}

	fmt.Println("Supervisor ready.")
	fmt.Printf("  DB: %s | Gateway: %s | Mode: %s\n", dbPath, gatewayAddr, file.Mode)
	fmt.Println("Type a task payload (or 'quit' to exit):")

	repl(ctx, orch)
}

// #endregion main

// #region self-healing

// startSelfHealing wires monitor → autocorrector → rollback manager and
// launches their loops.
func startSelfHealing(ctx context.Context, file config.File, store *config.Store, tel *telemetry.Store, narr *narrative.Store) error {
	signals := make([]monitor.SignalConfig, 0, len(file.Monitor.Signals))
	directions := make(map[string]string, len(file.Monitor.Signals))
	for _, s := range file.Monitor.Signals {
		signals = append(signals, monitor.SignalConfig{
			Name:        s.Name,
			Window:      s.Window,
			Deviation:   s.Deviation,
			Consecutive: s.Consecutive,
			Direction:   s.Direction,
		})
		directions[s.Name] = s.Direction
	}

	mon := monitor.New(tel, signals, file.Monitor.Interval, file.Monitor.QueueSize)

	mgr, err := rollback.New(store, tel, rollback.Config{
		Window:     file.Rollback.Window,
		MinSamples: file.Rollback.MinSamples,
		Tolerance:  file.Rollback.Tolerance,
		Poll:       file.Rollback.Poll,
		Directions: directions,
	}, narr)
	if err != nil {
		return err
	}
	if err := mgr.Resume(); err != nil {
		return err
	}

	corr := autocorrect.New(autocorrect.Mode(file.Mode), store, file.Rules, mgr, narr)
	mgr.OnResolve(corr.Resolved)

	go mon.Run(ctx)
	go corr.Run(ctx, mon.Events())
	go mgr.Run(ctx)
	return nil
}

// #endregion self-healing

// #region repl

func repl(ctx context.Context, orch *orchestrator.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		payload := strings.TrimSpace(scanner.Text())
		if payload == "" {
			continue
		}
		if payload == "quit" || payload == "exit" {
			return
		}
		if ctx.Err() != nil {
			return
		}

		task := orchestrator.Task{
			ID:        uuid.NewString(),
			Payload:   payload,
			ArrivedAt: time.Now().UTC(),
		}
		out, err := orch.Process(ctx, task)
		if err != nil {
			log.Printf("task %s failed: %v", task.ID, err)
			continue
		}

		fmt.Printf("\n%s\n\n", out.Result)
		fmt.Printf("[%s] strategy=%s tag=%s iterations=%d\n",
			task.ID, out.Strategy, out.Tag, out.Iterations)
	}
}

// #endregion repl

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
