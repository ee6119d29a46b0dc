// Package arena parses arena command flags and composes the orchestrator,
// its ledger gateway and the HTTP/WebSocket transport.
package arena

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	entrypoint "github.com/louisbranch/agentopoly/internal/platform/cmd"
	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	server "github.com/louisbranch/agentopoly/internal/services/arena/app"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
	ledgergrpc "github.com/louisbranch/agentopoly/internal/services/arena/ledger/grpc"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger/sqlite"
	"github.com/louisbranch/agentopoly/internal/services/arena/orchestrator"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

// Config holds arena command configuration.
type Config struct {
	HTTPAddr string `env:"ARENA_HTTP_ADDR" envDefault:":8080"`
	Mode     string `env:"ARENA_MODE"      envDefault:"local"`
	Slots    int    `env:"ARENA_SLOTS"     envDefault:"1"`

	// LedgerAddr selects a remote ledger service. Empty means the SQLite
	// ledger at DBPath is embedded in this process.
	LedgerAddr string `env:"LEDGER_ADDR"`
	DBPath     string `env:"ARENA_DB_PATH" envDefault:"data/arena.db"`
	// LedgerListenAddr exposes the embedded ledger over gRPC when set.
	LedgerListenAddr string `env:"ARENA_LEDGER_GRPC_ADDR"`

	TurnTimeout    time.Duration `env:"ARENA_TURN_TIMEOUT"     envDefault:"10s"`
	ActionDelay    time.Duration `env:"ARENA_ACTION_DELAY"     envDefault:"0s"`
	SettleAttempts int           `env:"ARENA_SETTLE_ATTEMPTS"  envDefault:"3"`
	SettleBackoff  time.Duration `env:"ARENA_SETTLE_BACKOFF"   envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "arena HTTP/WebSocket listen address")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "game source: local or ledger")
	fs.IntVar(&cfg.Slots, "slots", cfg.Slots, "number of fixed game slots in local mode")
	fs.StringVar(&cfg.LedgerAddr, "ledger-addr", cfg.LedgerAddr, "remote ledger gRPC address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite path for the embedded ledger and event archive")
	fs.StringVar(&cfg.LedgerListenAddr, "ledger-listen-addr", cfg.LedgerListenAddr, "gRPC address exposing the embedded ledger")
	fs.DurationVar(&cfg.TurnTimeout, "turn-timeout", cfg.TurnTimeout, "time an agent has to act before auto-play")
	fs.DurationVar(&cfg.ActionDelay, "action-delay", cfg.ActionDelay, "pause before each prompt, for spectators")
	fs.IntVar(&cfg.SettleAttempts, "settle-attempts", cfg.SettleAttempts, "settlement submission attempts")
	fs.DurationVar(&cfg.SettleBackoff, "settle-backoff", cfg.SettleBackoff, "initial settlement retry backoff")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mode returns the configured orchestrator mode.
func (cfg Config) mode() orchestrator.Mode {
	return orchestrator.Mode(cfg.Mode)
}

func (cfg Config) validate() error {
	switch cfg.mode() {
	case orchestrator.ModeLocal:
		if cfg.Slots <= 0 {
			return fmt.Errorf("slots must be positive, got %d", cfg.Slots)
		}
		if cfg.LedgerListenAddr != "" {
			return errors.New("ledger-listen-addr requires ledger mode")
		}
	case orchestrator.ModeLedger:
		if cfg.LedgerAddr != "" && cfg.LedgerListenAddr != "" {
			return errors.New("ledger-listen-addr only applies to the embedded ledger")
		}
		if cfg.LedgerAddr == "" && strings.TrimSpace(cfg.DBPath) == "" {
			return errors.New("ledger mode needs a ledger address or a database path")
		}
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.SettleAttempts <= 0 {
		return fmt.Errorf("settle attempts must be positive, got %d", cfg.SettleAttempts)
	}
	return nil
}

// Run builds the arena and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceArena, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	deps, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	games, err := orchestrator.New(orchestrator.Config{
		Mode:           cfg.mode(),
		Slots:          cfg.Slots,
		Gateway:        deps.gateway,
		Archive:        deps.archive,
		TurnTimeout:    cfg.TurnTimeout,
		ActionDelay:    cfg.ActionDelay,
		SettleAttempts: cfg.SettleAttempts,
		SettleBackoff:  cfg.SettleBackoff,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	defer games.Close()

	httpServer, err := server.NewServer(server.Config{HTTPAddr: cfg.HTTPAddr}, games)
	if err != nil {
		return fmt.Errorf("build arena server: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpServer.ListenAndServe(groupCtx)
	})
	if deps.store != nil && cfg.LedgerListenAddr != "" {
		group.Go(func() error {
			return ledgergrpc.Serve(groupCtx, cfg.LedgerListenAddr, deps.store)
		})
	}
	return group.Wait()
}

// ledgerDeps carries the gateway and archive handed to the orchestrator and
// whatever must be released once it stops.
type ledgerDeps struct {
	gateway ledger.Gateway
	archive session.EventArchive
	store   *sqlite.Store
	closers []func()
}

func (d *ledgerDeps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// openLedger connects the configured ledger. Local mode needs none. Ledger
// writes always go through a SerialGateway.
func openLedger(ctx context.Context, cfg Config) (*ledgerDeps, error) {
	deps := &ledgerDeps{}
	if cfg.mode() != orchestrator.ModeLedger {
		return deps, nil
	}

	var inner ledger.Gateway
	if cfg.DBPath != "" {
		store, err := openStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		deps.store = store
		deps.archive = store
		deps.closers = append(deps.closers, func() {
			if err := store.Close(); err != nil {
				log.Printf("close arena store: %v", err)
			}
		})
		inner = store
	}
	if cfg.LedgerAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCDial)
		client, err := ledgergrpc.Dial(dialCtx, cfg.LedgerAddr)
		cancel()
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, func() {
			if err := client.Close(); err != nil {
				log.Printf("close ledger client: %v", err)
			}
		})
		// A remote ledger owns the games; the local store only archives.
		deps.store = nil
		inner = client
	}

	serial := ledger.NewSerialGateway(inner)
	deps.closers = append(deps.closers, serial.Close)
	deps.gateway = serial
	return deps, nil
}

func openStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open arena store: %w", err)
	}
	return store, nil
}
