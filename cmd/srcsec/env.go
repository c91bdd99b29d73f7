package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-edge-platform/srcsec/internal/config"
	"github.com/open-edge-platform/srcsec/internal/keystore"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/open-edge-platform/srcsec/internal/urlcache"
	"github.com/open-edge-platform/srcsec/internal/utils/network"
	"github.com/spf13/cobra"
)

// env bundles the database tables every subcommand works on.
type env struct {
	helpers  *config.ConfigHelpers
	db       *store.DB
	packages store.Table[recipe.Package]
	sources  *urlcache.Cache
	keys     *keystore.Store
}

func currentConfig() *config.GlobalConfig {
	if globalConfig == nil {
		return config.DefaultGlobalConfig()
	}
	return globalConfig
}

// openEnv opens the database configured for this run.
func openEnv(ctx context.Context) (*env, error) {
	helpers := config.NewConfigHelpers(currentConfig())
	if err := helpers.CreateWorkDir(); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	path, err := helpers.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	packages, err := store.NewTable[recipe.Package](ctx, db, "packages", recipe.Key)
	if err != nil {
		db.Close()
		return nil, err
	}
	sources, err := store.NewTable[urlcache.Entry](ctx, db, "sources", urlcache.Key)
	if err != nil {
		db.Close()
		return nil, err
	}
	keys, err := store.NewTable[keystore.KeyFact](ctx, db, "keys", keystore.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	prober := network.NewHTTPProber(helpers.ProbeTimeout(), helpers.UserAgent())
	return &env{
		helpers:  helpers,
		db:       db,
		packages: packages,
		sources:  urlcache.New(sources, prober),
		keys:     keystore.New(keys),
	}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

// writeJSON prints v as indented JSON to the command output.
func writeJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
