// Package ledger parses ledger command flags and serves the SQLite ledger
// over gRPC.
package ledger

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	entrypoint "github.com/louisbranch/agentopoly/internal/platform/cmd"
	ledgergrpc "github.com/louisbranch/agentopoly/internal/services/arena/ledger/grpc"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger/sqlite"
)

// Config holds ledger command configuration.
type Config struct {
	Addr   string `env:"LEDGER_GRPC_ADDR" envDefault:":8090"`
	DBPath string `env:"LEDGER_DB_PATH"   envDefault:"data/ledger.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "ledger gRPC listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "ledger SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the store and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, func(ctx context.Context) error {
		store, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close ledger store: %v", err)
			}
		}()
		if err := ledgergrpc.Serve(ctx, cfg.Addr, store); err != nil {
			return fmt.Errorf("serve ledger: %w", err)
		}
		return nil
	})
}

func openStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return store, nil
}
