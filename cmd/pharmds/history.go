package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pharmds-ddi-server/internal/app"
	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/pkg/report"
)

var historyFlags struct {
	limit  int
	output string
	format string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show, export and import recorded checks",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded checks, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Print the report of a recorded check",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every recorded check as JSON",
	RunE:  runHistoryExport,
}

var historyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load recorded checks from a JSON export ('-' for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryImport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd, historyImportCmd)

	historyListCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "maximum number of records")
	historyShowCmd.Flags().StringVar(&historyFlags.format, "format", string(report.FormatRich), "output format: plain, rich, json")
	historyExportCmd.Flags().StringVarP(&historyFlags.output, "output", "o", "-", "output file ('-' for stdout)")
}

func openHistory(cmd *cobra.Command) (*app.App, error) {
	return newServices(commandContext(cmd), app.WithHistory())
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	if historyFlags.limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}
	services, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	records, err := services.History.List(commandContext(cmd), historyFlags.limit, 0)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No recorded checks.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(out, "%s  %s  %-13s %-8s %2d  %s\n",
			rec.ID,
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.OverallSeverity,
			rec.OverallClass,
			rec.FindingCount,
			strings.Join(rec.InputNames, ", "),
		)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(historyFlags.format)
	if err != nil {
		return err
	}
	services, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	rec, err := services.History.Get(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	res, err := rec.Result()
	if err != nil {
		return err
	}
	if res.Domains, err = domain.ParseDomainFilter(rec.Domains); err != nil {
		return err
	}
	payload := report.Build(rec.InputNames, res, &report.Meta{
		SnapshotVersion: rec.SnapshotVersion,
		RecordID:        rec.ID,
	})
	return report.Write(cmd.OutOrStdout(), payload, format)
}

func runHistoryExport(cmd *cobra.Command, _ []string) error {
	services, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	ctx := commandContext(cmd)
	if historyFlags.output == "-" {
		return services.History.ExportJSON(ctx, cmd.OutOrStdout())
	}
	f, err := os.Create(historyFlags.output)
	if err != nil {
		return err
	}
	if err := services.History.ExportJSON(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	services, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	imported, skipped, err := services.History.ImportJSON(commandContext(cmd), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records (%d already present)\n", imported, skipped)
	return nil
}
