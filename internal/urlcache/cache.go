// Package urlcache persists what the probe pass learned about each source
// URL: a sibling signature URL, an HTTPS equivalent and a mirror flag.
//
// Analysis only reads the cache. A URL that was never registered is reported
// as a NotCachedError so the caller knows the probe pass has to run first.
package urlcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/open-edge-platform/srcsec/internal/utils/network"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// Entry is the cached knowledge about one source URL.
type Entry struct {
	Hash     string     `json:"hash"`
	URL      string     `json:"url"`
	SigURL   string     `json:"sigUrl,omitempty"`
	HTTPSURL string     `json:"httpsUrl,omitempty"`
	Mirror   bool       `json:"mirror"`
	ProbedAt *time.Time `json:"probedAt,omitempty"`
}

// Key is the table key of an entry.
func Key(e Entry) string { return e.Hash }

// Probed reports whether the probe pass has visited the entry.
func (e Entry) Probed() bool { return e.ProbedAt != nil }

// HashURL returns the fixed-width cache key of the unresolved url.
func HashURL(url string) string {
	return digest.FromString(url).Encoded()
}

// NotCachedError is returned when a URL has no probe result in the cache.
type NotCachedError struct {
	URL string
}

func (e *NotCachedError) Error() string {
	return fmt.Sprintf("url not in source cache, run the probe pass first: %s", e.URL)
}

// Cache wraps the source URL table.
type Cache struct {
	table  store.Table[Entry]
	prober network.Prober
	group  singleflight.Group
	now    func() time.Time
}

// New creates a cache. prober may be nil when the caller never probes.
func New(table store.Table[Entry], prober network.Prober) *Cache {
	return &Cache{table: table, prober: prober, now: time.Now}
}

// Register inserts an unprobed entry for every url not yet known and returns
// how many were new.
func (c *Cache) Register(ctx context.Context, urls []string) (int, error) {
	added := 0
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		hash := HashURL(u)
		_, err := c.table.Get(ctx, hash)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return added, fmt.Errorf("looking up %s: %w", u, err)
		}
		if _, err := c.table.Upsert(ctx, Entry{Hash: hash, URL: u}); err != nil {
			return added, fmt.Errorf("registering %s: %w", u, err)
		}
		added++
	}
	return added, nil
}

// Lookup returns the entry for url. ok is false when the url is unknown.
func (c *Cache) Lookup(ctx context.Context, url string) (Entry, bool, error) {
	e, err := c.table.Get(ctx, HashURL(url))
	if errors.Is(err, store.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("looking up %s: %w", url, err)
	}
	return e, true, nil
}

func (c *Cache) mustLookup(ctx context.Context, url string) (Entry, error) {
	e, ok, err := c.Lookup(ctx, url)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, &NotCachedError{URL: url}
	}
	return e, nil
}

// probed returns the entry of url once the probe pass has visited it.
func (c *Cache) probed(ctx context.Context, url string) (Entry, error) {
	e, err := c.mustLookup(ctx, url)
	if err != nil {
		return Entry{}, err
	}
	if !e.Probed() {
		return Entry{}, &NotCachedError{URL: url}
	}
	return e, nil
}

// SignatureURL returns the discovered signature URL of url, or "" if none.
// It fails with NotCachedError until url has been probed.
func (c *Cache) SignatureURL(ctx context.Context, url string) (string, error) {
	e, err := c.probed(ctx, url)
	if err != nil {
		return "", err
	}
	return e.SigURL, nil
}

// HTTPSURL returns the discovered HTTPS equivalent of url, or "" if none.
// It fails with NotCachedError until url has been probed.
func (c *Cache) HTTPSURL(ctx context.Context, url string) (string, error) {
	e, err := c.probed(ctx, url)
	if err != nil {
		return "", err
	}
	return e.HTTPSURL, nil
}

// RecordSignature stores sig as the signature URL of url. This records pairs
// found in a recipe's own source list, so no network access is involved and
// a registered url need not be probed yet.
func (c *Cache) RecordSignature(ctx context.Context, url, sig string) error {
	e, err := c.mustLookup(ctx, url)
	if err != nil {
		return err
	}
	if e.SigURL == sig {
		return nil
	}
	e.SigURL = sig
	if _, err := c.table.Upsert(ctx, e); err != nil {
		return fmt.Errorf("recording signature for %s: %w", url, err)
	}
	logger.Logger().Debugf("recorded signature %s for %s", sig, url)
	return nil
}
