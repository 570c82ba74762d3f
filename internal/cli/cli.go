// ============================================================================
// Action Execution Engine - CLI
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line interface: `run` starts the bus
// adapter, sweeper and HTTP API; `status` prints each state's current job
// count; `enqueue` publishes one ActionTrigger read from a JSON file.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/action-engine/internal/bus"
	"github.com/ChuLiYu/action-engine/internal/config"
	"github.com/ChuLiYu/action-engine/internal/entitystore"
	"github.com/ChuLiYu/action-engine/internal/httpapi"
	"github.com/ChuLiYu/action-engine/internal/manager"
	"github.com/ChuLiYu/action-engine/internal/metrics"
	"github.com/ChuLiYu/action-engine/internal/store"
	"github.com/ChuLiYu/action-engine/pkg/actions"
)

var log = slog.Default()

var configFile string

// BuildCLI assembles the actionengine root command.
func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:     "actionengine",
		Short:   "Action execution engine: job lifecycle state machine over a shared store and bus",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	root.AddCommand(buildRunCommand())
	root.AddCommand(buildEnqueueCommand())
	root.AddCommand(buildStatusCommand())
	return root
}

func loadConfig() (config.Config, error) {
	if _, err := os.Stat(configFile); err != nil {
		log.Warn("config file not found, using defaults", "path", configFile)
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bus adapter, sweeper, and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem(cmd.Context())
		},
	}
}

func runSystem(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.Addr, DB: cfg.Store.DB})
	defer rdb.Close()
	adapter := store.NewAdapter(rdb)

	nc, err := nats.Connect(cfg.Bus.URL)
	if err != nil {
		return fmt.Errorf("cli: connect to bus: %w", err)
	}
	defer nc.Close()
	busClient := bus.NewClient(nc)

	entities := entitystore.New(busClient)
	dispatcher := bus.NewDispatcher(busClient)
	collector := metrics.NewCollector()

	mgr := manager.New(adapter, entities, entities, dispatcher, collector)
	mgr.SetSampleSize(cfg.Sweep.SampleSize)
	mgr.Setup(ctx, cfg.SweepInterval())
	defer mgr.Stop()

	adapterBus := bus.NewAdapter(busClient, mgr, nil, cfg.Dispatch.WorkerCount, cfg.Dispatch.BufferSize)
	if err := adapterBus.Start(ctx); err != nil {
		return fmt.Errorf("cli: start bus adapter: %w", err)
	}
	defer adapterBus.Stop()

	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: httpapi.NewMux(collector.Registry())}
	go func() {
		log.Info("http api listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http api stopped", "error", err)
		}
	}()

	log.Info("action engine started", "bus", cfg.Bus.URL, "store", cfg.Store.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	log.Info("action engine stopped")
	return nil
}

func buildEnqueueCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish one ActionTrigger read from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueTrigger(file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file containing an ActionTrigger")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func enqueueTrigger(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("cli: read %s: %w", file, err)
	}
	var trigger actions.ActionTrigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		return fmt.Errorf("cli: parse %s: %w", file, err)
	}
	if trigger.JID == "" {
		trigger.JID = actions.JobID(uuid.NewString())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	nc, err := nats.Connect(cfg.Bus.URL)
	if err != nil {
		return fmt.Errorf("cli: connect to bus: %w", err)
	}
	defer nc.Close()

	body, err := actions.Encode(&trigger)
	if err != nil {
		return err
	}
	if err := nc.Publish("conthesis.action.TriggerAsyncAction", body); err != nil {
		return fmt.Errorf("cli: publish trigger: %w", err)
	}
	fmt.Printf("enqueued jid=%s\n", trigger.JID)
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current job count for each state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context())
		},
	}
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.Addr, DB: cfg.Store.DB})
	defer rdb.Close()
	adapter := store.NewAdapter(rdb)

	states := []actions.Status{
		actions.StatusPending,
		actions.StatusVariablesLoaded,
		actions.StatusRunning,
		actions.StatusSuspended,
		actions.StatusRetry,
		actions.StatusSuccess,
		actions.StatusFailure,
		actions.StatusRevoked,
	}

	fmt.Printf("store: %s\n\n", cfg.Store.Addr)
	for _, s := range states {
		n, err := adapter.StateCount(ctx, s)
		if err != nil {
			return fmt.Errorf("cli: state count %s: %w", s, err)
		}
		fmt.Printf("%-18s %d\n", s, n)
	}
	return nil
}
