package service

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pharmds-ddi-server/internal/domain"
)

// InputParser turns free-form drug lists into clean name slices. Entries are
// separated by commas, semicolons or newlines; text after '#' on a line is a
// comment. Names keep inner spaces ("acetylsalicylic acid").
type InputParser struct {
	maxDrugs int
}

// NewInputParser creates a parser. maxDrugs <= 0 disables the limit.
func NewInputParser(maxDrugs int) *InputParser {
	return &InputParser{maxDrugs: maxDrugs}
}

// ParseArgs splits each argument and returns the names in order of first
// appearance, dropping case-insensitive duplicates.
func (p *InputParser) ParseArgs(args ...string) []string {
	var names []string
	for _, arg := range args {
		names = append(names, splitLine(arg)...)
	}
	return dedupeNames(names)
}

// ParseReader reads a drug list file.
func (p *InputParser) ParseReader(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		names = append(names, splitLine(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading drug list: %w", err)
	}
	return dedupeNames(names), nil
}

// Validate checks the count of a parsed list.
func (p *InputParser) Validate(names []string) error {
	if len(names) < 2 {
		return domain.NewValidationError("drugs", "at least two drug names are required", len(names))
	}
	if p.maxDrugs > 0 && len(names) > p.maxDrugs {
		return domain.NewValidationError("drugs", fmt.Sprintf("at most %d drugs per request", p.maxDrugs), len(names))
	}
	return nil
}

func splitLine(line string) []string {
	var out []string
	for _, l := range strings.Split(line, "\n") {
		if i := strings.IndexByte(l, '#'); i >= 0 {
			l = l[:i]
		}
		for _, tok := range strings.FieldsFunc(l, func(r rune) bool { return r == ',' || r == ';' }) {
			if tok = strings.Join(strings.Fields(tok), " "); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := domain.NormalizeName(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
