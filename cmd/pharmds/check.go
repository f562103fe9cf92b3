package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pharmds-ddi-server/internal/app"
	"github.com/pharmds-ddi-server/internal/history"
	"github.com/pharmds-ddi-server/internal/service"
	"github.com/pharmds-ddi-server/pkg/report"
)

var checkFlags struct {
	files  []string
	domain string
	format string
	top    int
	record bool
}

var checkCmd = &cobra.Command{
	Use:   "check [drug...]",
	Short: "Check a drug list for interactions",
	Long: `Check two or more drugs for documented interactions.

Drug names may be generic names, brand names or aliases, given as arguments or
read from files (one or more per line, separated by commas or semicolons;
'#' starts a comment). Use '-' to read from stdin.

Exit codes:
  0  the check ran (with or without findings)
  1  invalid input or an internal error
  2  one or more names could not be resolved

Examples:
  # Two drugs, every domain
  pharmds check Seroquel Biaxin

  # Only CYP and pharmacodynamic rules, as JSON
  pharmds check warfarin,fluconazole,amiodarone --domain cyp,pd --format json

  # From a medication list, showing the 3 most severe pairs
  pharmds check -f meds.txt --top 3`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringArrayVarP(&checkFlags.files, "file", "f", nil, "read drug names from a file ('-' for stdin); repeatable")
	checkCmd.Flags().StringVar(&checkFlags.domain, "domain", "all", "domains: all, pk, pd, cyp, ugt, pgp, bcrp, oatp (comma-separated)")
	checkCmd.Flags().StringVar(&checkFlags.format, "format", string(report.FormatRich), "output format: plain, rich, json")
	checkCmd.Flags().IntVar(&checkFlags.top, "top", 0, "show only the N most severe pairs")
	checkCmd.Flags().BoolVar(&checkFlags.record, "record", false, "store the result in the evaluation history")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(checkFlags.format)
	if err != nil {
		return err
	}
	if checkFlags.top < 0 {
		return fmt.Errorf("--top cannot be negative")
	}

	names, err := collectNames(cmd.InOrStdin(), args, checkFlags.files)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no drug names given; pass them as arguments or with --file")
	}

	ctx := commandContext(cmd)
	var opts []app.Option
	if checkFlags.record {
		opts = append(opts, app.WithHistory())
	}
	services, err := newServices(ctx, opts...)
	if err != nil {
		return err
	}
	defer services.Close()

	res, err := services.Engine.Check(ctx, service.CheckRequest{
		Names:   names,
		Domains: checkFlags.domain,
	})
	if err != nil {
		if service.IsResolutionError(err) {
			return &exitError{code: exitResolution, err: err}
		}
		return err
	}

	meta := &report.Meta{
		SnapshotVersion: res.SnapshotVersion,
		Fingerprint:     res.Fingerprint,
		Cached:          res.Cached,
	}
	if checkFlags.record {
		rec, err := history.NewRecord(res.Names, res.Result, res.SnapshotVersion)
		if err != nil {
			return err
		}
		if err := services.History.Save(ctx, rec); err != nil {
			return fmt.Errorf("recording evaluation: %w", err)
		}
		meta.RecordID = rec.ID
	}

	return report.Write(cmd.OutOrStdout(), report.Build(res.Names, res.Result, meta).Top(checkFlags.top), format)
}

// collectNames merges names from arguments and files, in that order.
func collectNames(stdin io.Reader, args, files []string) ([]string, error) {
	parser := service.NewInputParser(0)
	names := parser.ParseArgs(args...)
	for _, path := range files {
		fromFile, err := readNames(parser, stdin, path)
		if err != nil {
			return nil, err
		}
		names = append(names, fromFile...)
	}
	return parser.ParseArgs(names...), nil
}

func readNames(parser *service.InputParser, stdin io.Reader, path string) ([]string, error) {
	if path == "-" {
		return parser.ParseReader(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening drug list: %w", err)
	}
	defer f.Close()
	return parser.ParseReader(f)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
