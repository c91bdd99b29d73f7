package main

import (
	"fmt"

	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/spf13/cobra"
)

var (
	ingestForce   bool
	ingestPkglist string
)

// createIngestCommand creates the ingest subcommand
func createIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [flags] DIR",
		Short: "loads .SRCINFO recipes into the package table",
		Long: `Ingest walks DIR for .SRCINFO files (plain, .gz, .zst or .xz),
stores one record per package and registers every remote source URL for the
probe pass. Recipes whose content is unchanged since the last ingest are
skipped unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: executeIngest,
	}
	cmd.Flags().BoolVarP(&ingestForce, "force", "f", false,
		"Re-ingest recipes even if their content is unchanged")
	cmd.Flags().StringVar(&ingestPkglist, "pkglist", "",
		"\"repository name\" list restricting which packages are ingested (overrides the config file)")
	return cmd
}

func executeIngest(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	ctx := cmd.Context()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := []recipe.IngesterOption{recipe.WithForce(ingestForce)}
	pkglist := ingestPkglist
	if pkglist == "" {
		pkglist = e.helpers.Pkglist()
	}
	if pkglist != "" {
		repos, err := recipe.LoadPkglist(pkglist)
		if err != nil {
			return err
		}
		log.Infof("restricting ingest to %d packages from %s", len(repos), pkglist)
		opts = append(opts, recipe.WithRepositories(repos))
	}

	stats, err := recipe.NewIngester(e.packages, e.sources, opts...).IngestDir(ctx, args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return writeJSON(cmd, stats)
}
