package recipe

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/opencontainers/go-digest"
)

// URLRegistry records source locators for the later probe pass.
type URLRegistry interface {
	Register(ctx context.Context, urls []string) (int, error)
}

// IngestStats summarises one ingestion run.
type IngestStats struct {
	Files      int `json:"files"`
	Unchanged  int `json:"unchanged"`
	Failed     int `json:"failed"`
	Packages   int `json:"packages"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	NotListed  int `json:"notListed"`
	URLsQueued int `json:"urlsQueued"`
}

// Ingester loads recipe files into the package table.
type Ingester struct {
	table    store.Table[Package]
	registry URLRegistry
	parse    Parser
	repos    map[string]string
	force    bool

	known map[string]bool
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithRepositories restricts ingestion to packages named in repos and assigns
// their repository.
func WithRepositories(repos map[string]string) IngesterOption {
	return func(i *Ingester) { i.repos = repos }
}

// WithForce re-ingests recipes whose fingerprint is already stored.
func WithForce(force bool) IngesterOption {
	return func(i *Ingester) { i.force = force }
}

// WithParser replaces the .SRCINFO parser.
func WithParser(p Parser) IngesterOption {
	return func(i *Ingester) { i.parse = p }
}

// NewIngester creates an ingester. registry may be nil.
func NewIngester(table store.Table[Package], registry URLRegistry, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		table:    table,
		registry: registry,
		parse:    ParseSRCINFO,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Fingerprint is the hex SHA-512 of the decompressed recipe bytes.
func Fingerprint(data []byte) string {
	return digest.SHA512.FromBytes(data).Encoded()
}

func (i *Ingester) loadKnown(ctx context.Context) error {
	if i.known != nil {
		return nil
	}
	i.known = make(map[string]bool)
	for pkg, err := range i.table.Query(ctx, nil) {
		if err != nil {
			return fmt.Errorf("loading recipe fingerprints: %w", err)
		}
		if pkg.Fingerprint != "" {
			i.known[pkg.Fingerprint] = true
		}
	}
	return nil
}

// IngestFile parses one recipe file and stores its packages.
func (i *Ingester) IngestFile(ctx context.Context, path string, stats *IngestStats) error {
	log := logger.Logger()

	if err := i.loadKnown(ctx); err != nil {
		return err
	}
	data, err := ReadFile(path)
	if err != nil {
		return err
	}
	stats.Files++

	fp := Fingerprint(data)
	if i.known[fp] && !i.force {
		stats.Unchanged++
		log.Debugf("recipe %s unchanged, skipping", path)
		return nil
	}

	pkgs, err := i.parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	var urls []string
	stored := 0
	for _, pkg := range pkgs {
		if len(i.repos) > 0 {
			repo, ok := i.repos[pkg.Name]
			if !ok {
				stats.NotListed++
				log.Warnf("package %s from %s is not in the package list, skipping", pkg.Name, path)
				continue
			}
			pkg.Repository = repo
		}
		pkg.Fingerprint = fp

		status, err := i.table.Upsert(ctx, pkg)
		if err != nil {
			return fmt.Errorf("storing package %s: %w", pkg.Name, err)
		}
		stored++
		stats.Packages++
		switch status {
		case store.Inserted:
			stats.Inserted++
		case store.Updated:
			stats.Updated++
		}
		for _, src := range pkg.ParsedSources() {
			if src.Remote() {
				urls = append(urls, src.Locator)
			}
		}
	}
	// a recipe whose packages were all filtered out stays eligible for the
	// next ingest with a different package list
	if stored > 0 {
		i.known[fp] = true
	}

	if i.registry != nil && len(urls) > 0 {
		n, err := i.registry.Register(ctx, urls)
		if err != nil {
			return fmt.Errorf("registering source urls of %s: %w", path, err)
		}
		stats.URLsQueued += n
	}
	return nil
}

// IngestDir walks root for plain or compressed .SRCINFO files. A failing file
// is logged and counted; the walk continues.
func (i *Ingester) IngestDir(ctx context.Context, root string) (IngestStats, error) {
	log := logger.Logger()
	var stats IngestStats

	if err := i.loadKnown(ctx); err != nil {
		return stats, err
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsRecipeFile(path) {
			return nil
		}
		if err := i.IngestFile(ctx, path, &stats); err != nil {
			stats.Failed++
			log.Errorf("failed to ingest %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking %s: %w", root, err)
	}
	log.Infof("ingested %d recipe files (%d unchanged, %d failed): %d packages, %d new",
		stats.Files, stats.Unchanged, stats.Failed, stats.Packages, stats.Inserted)
	return stats, nil
}

// CollectKeys returns every distinct fingerprint referenced by a package, sorted.
func CollectKeys(ctx context.Context, table store.Table[Package]) ([]string, error) {
	set := map[string]bool{}
	for pkg, err := range table.Query(ctx, nil) {
		if err != nil {
			return nil, err
		}
		for _, k := range pkg.ValidGPGKeys {
			set[k] = true
		}
	}
	return sortedKeys(set), nil
}

// CollectRemoteSources returns every distinct remote source locator, sorted.
func CollectRemoteSources(ctx context.Context, table store.Table[Package]) ([]string, error) {
	set := map[string]bool{}
	for pkg, err := range table.Query(ctx, nil) {
		if err != nil {
			return nil, err
		}
		for _, src := range pkg.ParsedSources() {
			if src.Remote() {
				set[src.Locator] = true
			}
		}
	}
	return sortedKeys(set), nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
