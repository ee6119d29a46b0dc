// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the ledger gRPC service.
const GRPCDial = 2 * time.Second

// LedgerCall caps a single checkpoint or settlement call to the ledger.
const LedgerCall = 10 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Turn is how long an agent has to act before the auto-player moves for it.
const Turn = 10 * time.Second

// SettleBackoff is the first delay between settlement attempts; it doubles
// on each retry.
const SettleBackoff = 2 * time.Second

// SettleAttempts is the number of settlement attempts before giving up.
const SettleAttempts = 3
