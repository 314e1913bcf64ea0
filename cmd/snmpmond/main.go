package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/api"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/config"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/coordinator"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/history"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
)

const (
	defaultListenAddr = ":8090"
	defaultProfileDir = "/etc/snmpmond/profiles"
	pruneInterval     = time.Hour
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

// AppConfig is the daemon configuration file.
type AppConfig struct {
	ListenAddr       string                     `json:"listen_addr,omitempty"`
	ProfileDir       string                     `json:"profile_dir,omitempty"`
	HistoryPath      string                     `json:"history_path,omitempty"`
	HistoryRetention config.Duration            `json:"history_retention,omitempty"`
	Devices          []coordinator.DeviceConfig `json:"devices,omitempty"`
}

// Validate implements config.Validator.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.ProfileDir == "" {
		c.ProfileDir = defaultProfileDir
	}

	for i := range c.Devices {
		if err := c.Devices[i].Validate(); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log.Printf("Starting SNMP monitoring daemon...")

	configPath := flag.String("config", "/etc/snmpmond/snmpmond.json", "Path to config file")
	flag.Parse()

	var cfg AppConfig

	if err := config.LoadAndValidate(*configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	registry, err := profile.Load(cfg.ProfileDir)
	if err != nil {
		return fmt.Errorf("failed to load device profiles: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store *history.Store
		rec   coordinator.Recorder
		hist  api.Historian
	)

	if cfg.HistoryPath != "" {
		store, err = history.New(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		rec = store
		hist = store

		if time.Duration(cfg.HistoryRetention) > 0 {
			go pruneLoop(ctx, store, time.Duration(cfg.HistoryRetention))
		}
	}

	manager := coordinator.NewManager(registry, nil, rec)
	defer manager.Stop()

	for _, device := range cfg.Devices {
		if err := manager.AddDevice(ctx, device); err != nil {
			// A dead device at boot should not take the daemon down with
			// it; it can be re-added over the API once it is reachable.
			log.Printf("Skipping device %s: %v", device.Name, err)
		}
	}

	server := api.NewServer(manager, registry, hist)

	if err := server.Start(ctx, cfg.ListenAddr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func pruneLoop(ctx context.Context, store *history.Store, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Printf("History prune failed: %v", err)
				continue
			}

			if n > 0 {
				log.Printf("Pruned %d history readings", n)
			}
		}
	}
}
