// Package analyzer computes the four per-package security signals: hash
// strength, signing-key strength, signature coverage and HTTPS coverage.
//
// Analyzers never touch the network. Signature and HTTPS coverage read what
// the probe pass stored in the URL cache; the only write is recording a
// signature pairing found in the recipe's own source list.
package analyzer

import (
	"context"
	"time"

	"github.com/open-edge-platform/srcsec/internal/keystore"
)

// KeyLookup resolves a fingerprint to its key fact.
type KeyLookup interface {
	Lookup(ctx context.Context, fingerprint string) (keystore.KeyFact, bool, error)
}

// SourceCache is the part of the URL cache the analyzers use.
type SourceCache interface {
	SignatureURL(ctx context.Context, url string) (string, error)
	HTTPSURL(ctx context.Context, url string) (string, error)
	RecordSignature(ctx context.Context, url, sig string) error
}

// Analyzer holds the collaborators of the key and source analyzers.
type Analyzer struct {
	keys  KeyLookup
	cache SourceCache
	now   func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock sets the reference time for key expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an Analyzer.
func New(keys KeyLookup, cache SourceCache, opts ...Option) *Analyzer {
	a := &Analyzer{keys: keys, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
