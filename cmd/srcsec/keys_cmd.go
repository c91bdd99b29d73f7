package main

import (
	"fmt"

	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/spf13/cobra"
)

var (
	keysForce bool
	keysAll   bool
)

// createKeysCommand creates the keys subcommand group
func createKeysCommand() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "manages the OpenPGP key facts used to rate signing keys",
	}

	syncCmd := &cobra.Command{
		Use:   "sync [flags] KEYRING",
		Short: "imports key facts from an armored or binary keyring",
		Long: `Sync reads KEYRING (for example an export of the maintainers'
keys) and stores algorithm, bit length and expiry of every key that a package
references. Keys already stored are left alone unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: executeKeysSync,
	}
	syncCmd.Flags().BoolVarP(&keysForce, "force", "f", false, "Replace key facts that are already stored")
	syncCmd.Flags().BoolVar(&keysAll, "all", false, "Store every key in the keyring, not only referenced ones")

	missingCmd := &cobra.Command{
		Use:   "missing",
		Short: "lists referenced fingerprints without a key fact",
		Args:  cobra.NoArgs,
		RunE:  executeKeysMissing,
	}

	keysCmd.AddCommand(syncCmd, missingCmd)
	return keysCmd
}

func executeKeysSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	var want map[string]bool
	if !keysAll {
		fps, err := recipe.CollectKeys(ctx, e.packages)
		if err != nil {
			return err
		}
		want = make(map[string]bool, len(fps))
		for _, fp := range fps {
			want[fp] = true
		}
		if len(want) == 0 {
			logger.Logger().Warn("no package references a signing key yet, run ingest first or pass --all")
			return nil
		}
	}

	stats, err := e.keys.SyncFile(ctx, args[0], want, keysForce)
	if err != nil {
		return fmt.Errorf("key sync failed: %w", err)
	}
	return writeJSON(cmd, stats)
}

func executeKeysMissing(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	fps, err := recipe.CollectKeys(ctx, e.packages)
	if err != nil {
		return err
	}
	missing, err := e.keys.Missing(ctx, fps)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, fp := range missing {
		fmt.Fprintln(out, fp)
	}
	if len(missing) > 0 {
		logger.Logger().Warnf("%d of %d referenced keys have no key fact", len(missing), len(fps))
	}
	return nil
}
