package config

import (
	"fmt"
	"os"
)

// Exitf writes a formatted error message to stderr and exits with code 1.
// Command entry points use it for usage errors found before any service starts.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "agentopoly: "+format+"\n", args...)
	os.Exit(1)
}
