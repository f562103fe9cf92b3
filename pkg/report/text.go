package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pharmds-ddi-server/internal/domain"
)

// Format selects an output rendering.
type Format string

const (
	FormatPlain Format = "plain"
	FormatRich  Format = "rich"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatPlain, nil
	case FormatPlain, FormatRich, FormatJSON:
		return f, nil
	default:
		return "", domain.NewValidationError("format", "format must be plain, rich or json", raw)
	}
}

// Write renders p to w in the given format.
func Write(w io.Writer, p *Payload, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, p)
	case FormatRich:
		return WriteRich(w, p)
	default:
		return WritePlain(w, p)
	}
}

// WriteJSON writes p as indented JSON.
func WriteJSON(w io.Writer, p *Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// WritePlain writes an uncoloured report.
func WritePlain(w io.Writer, p *Payload) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Drugs: %s\n", strings.Join(p.Input.DrugNames, ", "))
	fmt.Fprintf(&b, "Domains: %s\n", strings.Join(p.Input.SelectedDomains, ","))
	fmt.Fprintf(&b, "Overall: severity=%s | class=%s | findings=%d\n",
		p.Overall.Severity, p.Overall.Class, p.Overall.FindingCount)

	if len(p.Pairs) == 0 {
		b.WriteString("\nNo documented interactions found.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, pair := range p.Pairs {
		b.WriteString("\n")
		b.WriteString(pairTitle(pair))
		b.WriteString("\n")
		fmt.Fprintf(&b, "Overall: severity=%s | class=%s\n", pair.Overall.Severity, pair.Overall.Class)
		writeSections(&b, pair)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func pairTitle(pair Pair) string {
	return pair.Drug1.Name + " + " + pair.Drug2.Name
}

func writeSections(b *strings.Builder, pair Pair) {
	if len(pair.PK.Hits) > 0 {
		b.WriteString("PK section (directional):\n")
		if pair.PK.Summary != domain.PKSummaryNone {
			fmt.Fprintf(b, "PK summary: %s\n", pair.PK.Summary)
		}
		for _, f := range pair.PK.Hits {
			writeFinding(b, f, true)
		}
	}
	if len(pair.PD.Hits) > 0 {
		b.WriteString("PD section (shared effect):\n")
		for _, f := range pair.PD.Hits {
			writeFinding(b, f, false)
		}
	}
}

func writeFinding(b *strings.Builder, f Finding, directional bool) {
	fmt.Fprintf(b, "- [%s | %s] %s\n", f.Severity, f.Class, findingTitle(f))
	if directional && f.A != nil && f.B != nil {
		fmt.Fprintf(b, "  Affected: %s | Interacting: %s\n", f.A.Name, f.B.Name)
	}
	if f.Explanation != "" {
		fmt.Fprintf(b, "  Explanation: %s\n", f.Explanation)
	}
	if len(f.Rationale) > 0 {
		b.WriteString("  Rationale:\n")
		for _, line := range f.Rationale {
			fmt.Fprintf(b, "   - %s\n", line)
		}
	}
	if len(f.Actions) > 0 {
		b.WriteString("  Suggested actions:\n")
		for _, a := range f.Actions {
			fmt.Fprintf(b, "   - %s\n", a)
		}
	}
	if len(f.References) > 0 {
		fmt.Fprintf(b, "  References: %s\n", strings.Join(f.References, "; "))
	}
}

func findingTitle(f Finding) string {
	if f.Name != "" {
		return f.Name
	}
	return f.RuleID
}

// Styles holds the lipgloss styles of the rich rendering.
type Styles struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Severity map[domain.Severity]lipgloss.Style
	Class    map[domain.RuleClass]lipgloss.Style
	Border   map[domain.Severity]lipgloss.Color
	Panel    lipgloss.Style
}

// NewStyles creates styles bound to r.
func NewStyles(r *lipgloss.Renderer) *Styles {
	red := lipgloss.Color("#F38BA8")
	yellow := lipgloss.Color("#F9E2AF")
	muted := lipgloss.Color("#6C7086")

	return &Styles{
		Title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		Muted: r.NewStyle().Foreground(muted),
		Severity: map[domain.Severity]lipgloss.Style{
			domain.SeverityContraindicated: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#D20F39")),
			domain.SeverityMajor:           r.NewStyle().Bold(true).Foreground(red),
			domain.SeverityCaution:         r.NewStyle().Bold(true).Foreground(yellow),
			domain.SeverityInfo:            r.NewStyle().Foreground(muted),
		},
		Class: map[domain.RuleClass]lipgloss.Style{
			domain.ClassAvoid:         r.NewStyle().Bold(true).Foreground(red),
			domain.ClassAdjustMonitor: r.NewStyle().Foreground(yellow),
			domain.ClassCaution:       r.NewStyle().Foreground(yellow),
			domain.ClassInfo:          r.NewStyle().Foreground(muted),
		},
		Border: map[domain.Severity]lipgloss.Color{
			domain.SeverityContraindicated: red,
			domain.SeverityMajor:           red,
			domain.SeverityCaution:         yellow,
			domain.SeverityInfo:            muted,
		},
		Panel: r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (s *Styles) severity(sev domain.Severity) lipgloss.Style {
	if st, ok := s.Severity[sev]; ok {
		return st
	}
	return s.Muted
}

func (s *Styles) class(c domain.RuleClass) lipgloss.Style {
	if st, ok := s.Class[c]; ok {
		return st
	}
	return s.Muted
}

// WriteRich writes a styled summary table followed by one panel per pair.
// Colours are dropped automatically when w is not a terminal.
func WriteRich(w io.Writer, p *Payload) error {
	st := NewStyles(lipgloss.NewRenderer(w))

	var b strings.Builder
	b.WriteString(st.Title.Render("Interaction Summary (pairwise)"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", st.Muted.Render("Drugs:"), strings.Join(p.Input.DrugNames, ", "))
	fmt.Fprintf(&b, "%s %s | %s\n", st.Muted.Render("Overall:"),
		st.severity(p.Overall.Severity).Render(string(p.Overall.Severity)),
		st.class(p.Overall.Class).Render(string(p.Overall.Class)))

	if len(p.Pairs) == 0 {
		b.WriteString(st.Muted.Render("No documented interactions found."))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString(summaryTable(st, p.Pairs))
	b.WriteString("\n")

	for _, pair := range p.Pairs {
		var body strings.Builder
		body.WriteString(st.severity(pair.Overall.Severity).Render(pairTitle(pair)))
		body.WriteString("\n")
		fmt.Fprintf(&body, "Overall: severity=%s | class=%s\n",
			st.severity(pair.Overall.Severity).Render(string(pair.Overall.Severity)),
			st.class(pair.Overall.Class).Render(string(pair.Overall.Class)))
		writeSections(&body, pair)

		border, ok := st.Border[pair.Overall.Severity]
		if !ok {
			border = lipgloss.Color("#45475A")
		}
		b.WriteString(st.Panel.BorderForeground(border).Render(strings.TrimRight(body.String(), "\n")))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func summaryTable(st *Styles, pairs []Pair) string {
	rows := make([][]string, len(pairs))
	for i, pair := range pairs {
		rows[i] = []string{
			pairTitle(pair),
			string(pair.Overall.Severity),
			string(pair.Overall.Class),
			sectionSummary(pair),
			strconv.Itoa(len(pair.PK.Hits)),
			strconv.Itoa(len(pair.PD.Hits)),
		}
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Muted).
		Headers("Pair", "Severity", "Class", "Domains", "PK hits", "PD hits").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.Title.Padding(0, 1)
			}
			pair := pairs[row]
			switch col {
			case 0, 1:
				return st.severity(pair.Overall.Severity).Padding(0, 1)
			case 2:
				return st.class(pair.Overall.Class).Padding(0, 1)
			default:
				return lipgloss.NewStyle().Padding(0, 1)
			}
		}).
		String()
}

func sectionSummary(pair Pair) string {
	var parts []string
	if len(pair.PK.Hits) > 0 {
		parts = append(parts, "PK")
	}
	if len(pair.PD.Hits) > 0 {
		parts = append(parts, "PD")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
