package urlcache

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Probe fills in the signature URL, HTTPS equivalent and mirror flag of url.
// An already probed entry is returned as is unless force is set. Concurrent
// probes of the same url share one network round.
func (c *Cache) Probe(ctx context.Context, url string, force bool) (Entry, error) {
	if c.prober == nil {
		return Entry{}, fmt.Errorf("cache has no prober")
	}
	hash := HashURL(url)

	v, err, _ := c.group.Do(hash, func() (any, error) {
		e, ok, err := c.Lookup(ctx, url)
		if err != nil {
			return Entry{}, err
		}
		if !ok {
			e = Entry{Hash: hash, URL: url}
		}
		if e.Probed() && !force {
			return e, nil
		}

		if sig := c.analyzeSig(ctx, url); sig != "" {
			e.SigURL = sig
		}
		e.HTTPSURL = c.analyzeHTTPS(ctx, url)

		// a second identical answer marks a stable endpoint
		e.Mirror = false
		if e.HTTPSURL != "" && c.analyzeHTTPS(ctx, url) == e.HTTPSURL {
			e.Mirror = true
		}

		now := c.now().UTC()
		e.ProbedAt = &now
		if _, err := c.table.Upsert(ctx, e); err != nil {
			return Entry{}, fmt.Errorf("storing probe result for %s: %w", url, err)
		}
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// analyzeSig looks for a detached signature next to url by appending each
// signature suffix. Plain http URLs try the https variant first.
func (c *Cache) analyzeSig(ctx context.Context, url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return ""
	}
	if recipe.HasSignatureSuffix(url) {
		return ""
	}
	for _, suffix := range recipe.SignatureSuffixes {
		sigURL := url + suffix
		if upgraded, ok := strings.CutPrefix(sigURL, "http://"); ok {
			if final, ok := c.prober.Head(ctx, "https://"+upgraded); ok {
				return final
			}
		}
		if final, ok := c.prober.Head(ctx, sigURL); ok {
			return final
		}
	}
	return ""
}

// analyzeHTTPS resolves the https form of url. A result that starts with
// http:// is an https to http redirect and is kept, with a warning.
func (c *Cache) analyzeHTTPS(ctx context.Context, url string) string {
	var final string
	switch {
	case strings.HasPrefix(url, "http://"):
		final, _ = c.prober.Head(ctx, "https://"+strings.TrimPrefix(url, "http://"))
	case strings.HasPrefix(url, "https://"):
		final, _ = c.prober.Head(ctx, url)
	default:
		return ""
	}
	if strings.HasPrefix(final, "http://") {
		logger.Logger().Warnf("bad https -> http redirect: %s", final)
	}
	return final
}

// ProbeStats summarises a probe pass.
type ProbeStats struct {
	Probed    int `json:"probed"`
	Signature int `json:"signature"`
	HTTPS     int `json:"https"`
	Mirror    int `json:"mirror"`
}

// ProbeOptions tunes ProbeAll.
type ProbeOptions struct {
	Workers  int
	Force    bool
	Progress io.Writer
}

// ProbeAll probes every unprobed entry (every entry with Force) using a
// bounded pool of workers.
func (c *Cache) ProbeAll(ctx context.Context, opts ProbeOptions) (ProbeStats, error) {
	log := logger.Logger()
	var stats ProbeStats

	var urls []string
	for e, err := range c.table.Query(ctx, func(e Entry) bool { return opts.Force || !e.Probed() }) {
		if err != nil {
			return stats, fmt.Errorf("listing sources: %w", err)
		}
		urls = append(urls, e.URL)
	}
	if len(urls) == 0 {
		log.Info("all sources already probed, use --force to probe again")
		return stats, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	out := opts.Progress
	if out == nil {
		out = os.Stderr
	}
	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetWriter(out),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetDescription("probing"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	results := make(chan Entry, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range results {
			stats.Probed++
			if e.SigURL != "" {
				stats.Signature++
			}
			if e.HTTPSURL != "" {
				stats.HTTPS++
			}
			if e.Mirror {
				stats.Mirror++
			}
			_ = bar.Add(1)
		}
	}()

	for _, u := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e, err := c.Probe(gctx, u, opts.Force)
			if err != nil {
				return err
			}
			results <- e
			return nil
		})
	}
	err := g.Wait()
	close(results)
	<-done
	_ = bar.Finish()

	if err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	log.Infof("probed %d sources: %d signatures, %d https, %d stable", stats.Probed, stats.Signature, stats.HTTPS, stats.Mirror)
	return stats, nil
}
