package main

import (
	"fmt"

	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/urlcache"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/spf13/cobra"
)

var (
	probeForce   bool
	probeWorkers int
)

// createProbeCommand creates the probe subcommand
func createProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "probes registered source URLs for signatures and HTTPS",
		Long: `Probe sends HEAD requests for every registered source URL that has
not been probed yet, looking for a detached signature next to it and for an
HTTPS equivalent. Failures count as "not available". Analysis only reads the
stored results, so probe has to run before analyze.`,
		Args: cobra.NoArgs,
		RunE: executeProbe,
	}
	cmd.Flags().BoolVarP(&probeForce, "force", "f", false, "Probe URLs that were probed before")
	cmd.Flags().IntVarP(&probeWorkers, "workers", "w", 0, "Concurrent probes (default from config)")
	return cmd
}

func executeProbe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	// sources of packages stored before the url table existed are picked up here
	urls, err := recipe.CollectRemoteSources(ctx, e.packages)
	if err != nil {
		return err
	}
	added, err := e.sources.Register(ctx, urls)
	if err != nil {
		return fmt.Errorf("registering source urls: %w", err)
	}
	if added > 0 {
		logger.Logger().Infof("registered %d source urls not seen at ingest", added)
	}

	workers := probeWorkers
	if workers <= 0 {
		workers = e.helpers.Workers()
	}
	stats, err := e.sources.ProbeAll(ctx, urlcache.ProbeOptions{
		Workers:  workers,
		Force:    probeForce,
		Progress: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return writeJSON(cmd, stats)
}
