package main

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/srcsec/internal/report"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// outputFormat is the value of the evaluate --format flag.
type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
)

var _ pflag.Value = (*outputFormat)(nil)

func (f *outputFormat) String() string { return string(*f) }

func (f *outputFormat) Set(v string) error {
	switch outputFormat(strings.ToLower(v)) {
	case formatText:
		*f = formatText
	case formatJSON:
		*f = formatJSON
	default:
		return fmt.Errorf("invalid format %q (expected text|json)", v)
	}
	return nil
}

func (f *outputFormat) Type() string { return "format" }

var (
	evalFormat outputFormat
	evalLists  bool
)

// createEvaluateCommand creates the evaluate subcommand
func createEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [flags] [PACKAGE...]",
		Short: "summarises stored ratings per repository",
		Long: `Evaluate counts the packages at each rating for every criterion and
repository, and how many packages ignore a signature or HTTPS URL that
upstream offers. With --lists the package names and URLs are written to
<repo>_sig.txt and <repo>_https.txt in the output directory.`,
		RunE: executeEvaluate,
	}
	evalFormat = formatText
	cmd.Flags().Var(&evalFormat, "format", "Output format: text or json")
	cmd.Flags().BoolVar(&evalLists, "lists", false, "Write the unused signature and HTTPS lists")
	return cmd
}

func executeEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	summary, err := report.Evaluate(ctx, e.packages, report.Options{Packages: args, Keys: e.keys})
	if err != nil {
		return err
	}

	if evalFormat == formatJSON {
		err = report.WriteJSON(cmd.OutOrStdout(), summary)
	} else {
		err = report.WriteText(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return err
	}

	if evalLists {
		dir, err := e.helpers.CreateOutputDir()
		if err != nil {
			return err
		}
		paths, err := report.WriteAvailableLists(dir, summary)
		if err != nil {
			return err
		}
		for _, p := range paths {
			logger.Logger().Infof("output written to %s", p)
		}
	}
	return nil
}
