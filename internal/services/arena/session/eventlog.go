package session

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
)

// EventLog numbers a game's events and folds each into a rolling hash,
// hash = keccak256(hash || json(event)), starting from 32 zero bytes.
type EventLog struct {
	next int
	hash [32]byte
}

// Append assigns sequence numbers to events in place and folds them into the
// hash. An event that fails to encode keeps its number but is left out of
// the hash; the first such failure is returned.
func (l *EventLog) Append(events []engine.Event) error {
	var firstErr error
	for i := range events {
		events[i].Seq = l.next
		l.next++

		encoded, err := json.Marshal(events[i])
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("encode event %d: %w", events[i].Seq, err)
			}
			continue
		}
		h := sha3.NewLegacyKeccak256()
		h.Write(l.hash[:])
		h.Write(encoded)
		copy(l.hash[:], h.Sum(nil))
	}
	return firstErr
}

// Hash returns the current rolling hash.
func (l *EventLog) Hash() [32]byte { return l.hash }

// Len returns how many events have been appended.
func (l *EventLog) Len() int { return l.next }
