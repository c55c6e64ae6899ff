// Package quizcache persists normalized quiz payloads keyed by
// (identifier, provider). Expiry is logical: entries are never deleted, a read
// simply ignores rows whose age has reached their TTL.
package quizcache

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTLSeconds is the validity window written with every entry.
const DefaultTTLSeconds = 86400

// Entry is one cached quiz payload.
type Entry struct {
	Key        string          `json:"key"`
	Provider   string          `json:"provider"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
	TTLSeconds int             `json:"ttlSeconds"`
}

// Valid reports whether the entry is still fresh at now. The window is
// half-open: an entry exactly TTL old is stale.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) < time.Duration(e.TTLSeconds)*time.Second
}

// Store is implemented by every cache backend. Get returns ok=false when no
// row exists for the pair; validity is the caller's decision. Upsert replaces
// any existing row for (Key, Provider) in full.
type Store interface {
	Get(ctx context.Context, key, provider string) (Entry, bool, error)
	Upsert(ctx context.Context, entry Entry) error
	Close(ctx context.Context) error
}

func cloneEntry(in Entry) Entry {
	out := in
	if in.Payload != nil {
		out.Payload = append(json.RawMessage(nil), in.Payload...)
	}
	return out
}
