// Package main auto-plays one game from a seed and prints its outcome.
package main

import (
	"context"
	"flag"
	"os"

	simulatecmd "github.com/louisbranch/agentopoly/internal/cmd/simulate"
	"github.com/louisbranch/agentopoly/internal/platform/config"
)

func main() {
	cfg, err := simulatecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := simulatecmd.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("simulate: %v", err)
	}
}
