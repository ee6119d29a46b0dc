// Package simulate auto-plays a whole game from a seed and reports the
// outcome, so two builds can be checked against each other for determinism.
package simulate

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	entrypoint "github.com/louisbranch/agentopoly/internal/platform/cmd"
	"github.com/louisbranch/agentopoly/internal/random"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

// maxSteps bounds the auto-play loop; a game reaching it has stopped making
// progress.
const maxSteps = 1_000_000

// Config holds simulate command configuration.
type Config struct {
	// Seed is a 32-byte hex seed. Empty draws a random one.
	Seed string `env:"SIMULATE_SEED"`
	JSON bool   `env:"SIMULATE_JSON"`
}

// Result summarizes one simulated game.
type Result struct {
	Seed          string `json:"seed"`
	Winner        int    `json:"winner"`
	WinnerAddress string `json:"winnerAddress"`
	Rounds        int    `json:"rounds"`
	Turns         int    `json:"turns"`
	Events        int    `json:"events"`
	LogHash       string `json:"logHash"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Seed, "seed", cfg.Seed, "32-byte hex game seed")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "print the result as JSON")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run simulates the configured game and writes the result to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSimulate, func(context.Context) error {
		seed, err := resolveSeed(cfg.Seed)
		if err != nil {
			return err
		}
		result, err := Simulate(seed)
		if err != nil {
			return err
		}
		if cfg.JSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		}
		_, err = fmt.Fprintf(out, "seed     0x%s\nwinner   %d (%s)\nrounds   %d\nturns    %d\nevents   %d\nlog hash %s\n",
			result.Seed, result.Winner, result.WinnerAddress, result.Rounds, result.Turns, result.Events, result.LogHash)
		return err
	})
}

func resolveSeed(value string) ([32]byte, error) {
	if strings.TrimSpace(value) == "" {
		return random.NewSeed()
	}
	return random.ParseSeed(value)
}

// Simulate auto-plays a game from seed until it ends.
func Simulate(seed [32]byte) (Result, error) {
	var addresses [engine.PlayerCount]string
	for i := range addresses {
		addresses[i] = fmt.Sprintf("agent-%d", i)
	}
	game, err := engine.New(addresses, seed[:])
	if err != nil {
		return Result{}, fmt.Errorf("new engine: %w", err)
	}

	var eventLog session.EventLog
	for steps := 0; game.Status() != engine.StatusEnded; steps++ {
		if steps >= maxSteps {
			return Result{}, errors.New("game did not end")
		}
		events, err := game.AutoPlay()
		if err != nil {
			return Result{}, fmt.Errorf("auto-play turn %d: %w", game.Turn(), err)
		}
		if err := eventLog.Append(events); err != nil {
			return Result{}, err
		}
	}

	hash := eventLog.Hash()
	result := Result{
		Seed:    hex.EncodeToString(seed[:]),
		Winner:  game.Winner(),
		Rounds:  game.Round(),
		Turns:   game.Turn(),
		Events:  eventLog.Len(),
		LogHash: "0x" + hex.EncodeToString(hash[:]),
	}
	if result.Winner >= 0 {
		result.WinnerAddress = addresses[result.Winner]
	}
	return result, nil
}
