package main

import (
	"github.com/open-edge-platform/srcsec/internal/analyzer"
	"github.com/open-edge-platform/srcsec/internal/classifier"
	"github.com/spf13/cobra"
)

var analyzeForce bool

// createAnalyzeCommand creates the analyze subcommand
func createAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [flags] [PACKAGE...]",
		Short: "rates packages from their recipe, key facts and probe results",
		Long: `Analyze computes the hash, GPG, signature and HTTPS ratings of every
package not rated yet (or of the named packages) and merges them into one
security rating. A package that cannot be rated is reported and left for the
next run; the remaining packages are still rated. The command exits non-zero
if any package failed.`,
		RunE: executeAnalyze,
	}
	cmd.Flags().BoolVarP(&analyzeForce, "force", "f", false, "Re-rate packages that were rated before")
	return cmd
}

func executeAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	c := classifier.New(e.packages, analyzer.New(e.keys, e.sources), classifier.WithForce(analyzeForce))
	res, err := c.Run(ctx, classifier.RunOptions{Packages: args, Progress: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	if err := writeJSON(cmd, res); err != nil {
		return err
	}
	return res.Err()
}
