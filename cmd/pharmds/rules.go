package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/repository"
	"github.com/pharmds-ddi-server/internal/rules"
	"github.com/pharmds-ddi-server/internal/snapshot"
	"github.com/pharmds-ddi-server/pkg/report"
)

var rulesFlags struct {
	dir    string
	domain string
	format string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate interaction rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rule files against the knowledge base",
	Long: `Load every rule file and check it against the configured knowledge base.

Rules that reference unknown enzymes, transporters or effects, duplicate ids
and unknown keys are all reported together.

Examples:
  # Validate the rules compiled into the binary
  pharmds rules validate

  # Validate a directory of YAML and TOML rule files
  pharmds rules validate --dir ./rules`,
	RunE: runRulesValidate,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	RunE:  runRulesList,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <rule-id>",
	Short: "Print one rule as YAML or TOML",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd, rulesListCmd, rulesShowCmd)

	rulesCmd.PersistentFlags().StringVar(&rulesFlags.dir, "dir", "", "rule directory (default: configured rules.dir, else embedded rules)")
	rulesListCmd.Flags().StringVar(&rulesFlags.domain, "domain", "all", "domain filter")
	rulesListCmd.Flags().StringVar(&rulesFlags.format, "format", string(report.FormatRich), "output format: plain, rich, json")
	rulesShowCmd.Flags().StringVar(&rulesFlags.format, "format", string(rules.FormatYAML), "output format: yaml, toml")
}

// buildSnapshot loads the knowledge base and rules and cross-validates them.
func buildSnapshot(cmd *cobra.Command) (*snapshot.Snapshot, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir := rulesFlags.dir
	if dir == "" {
		dir = cfg.Rules.Dir
	}

	ctx := commandContext(cmd)
	repo, closeRepo, err := repository.Open(ctx, cfg.KB, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	defer closeRepo()

	return snapshot.NewBuilder(repo, dir, logger).Build(ctx)
}

func runRulesValidate(cmd *cobra.Command, _ []string) error {
	snap, err := buildSnapshot(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "OK: %d rules from %s validated against %d drugs from %s\n",
		snap.Rules.Len(), snap.RulesSource, snap.KB.Stats().Drugs, snap.KBSource)

	counts := snap.Rules.CountByDomain()
	for _, d := range domain.AllDomains().Domains() {
		fmt.Fprintf(out, "  %-5s %d\n", d, counts[d])
	}
	fmt.Fprintf(out, "Fingerprint: %s\n", snap.Fingerprint)
	return nil
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(rulesFlags.format)
	if err != nil {
		return err
	}
	filter, err := domain.ParseDomainFilter(rulesFlags.domain)
	if err != nil {
		return err
	}
	snap, err := buildSnapshot(cmd)
	if err != nil {
		return err
	}

	selected := snap.Rules.Filter(filter)
	files := make([]*rules.File, len(selected))
	for i := range selected {
		files[i] = rules.FileFromRule(&selected[i])
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })

	out := cmd.OutOrStdout()
	switch format {
	case report.FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	case report.FormatRich:
		return writeRulesTable(out, files)
	default:
		for _, f := range files {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", f.ID, f.Domain, f.Severity, f.Name)
		}
		return nil
	}
}

func writeRulesTable(w io.Writer, files []*rules.File) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("ID", "Domain", "Severity", "Class", "Name").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, f := range files {
		t.Row(f.ID, f.Domain, f.Severity, f.RuleClass, f.Name)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	format := rules.Format(rulesFlags.format)
	if format != rules.FormatYAML && format != rules.FormatTOML {
		return fmt.Errorf("unsupported format %q: use yaml or toml", rulesFlags.format)
	}
	snap, err := buildSnapshot(cmd)
	if err != nil {
		return err
	}
	rule, ok := snap.Rules.ByID(args[0])
	if !ok {
		return fmt.Errorf("unknown rule id: %s", args[0])
	}
	raw, err := rules.Encode(rule, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(raw)
	return err
}
