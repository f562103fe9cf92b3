package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/history"
	"github.com/pharmds-ddi-server/internal/rules"
	"github.com/pharmds-ddi-server/internal/service"
	"github.com/pharmds-ddi-server/pkg/report"
)

// CheckInteractionsInput is the input schema for the check_interactions tool.
type CheckInteractionsInput struct {
	Drugs   []string `json:"drugs" jsonschema:"two or more drug names, brand names or aliases"`
	Domains string   `json:"domains,omitempty" jsonschema:"comma-separated domain filter: all, pk, pd, cyp, ugt, pgp, bcrp, oatp (default all)"`
	Top     int      `json:"top,omitempty" jsonschema:"return only the N most severe drug pairs"`
	Record  bool     `json:"record,omitempty" jsonschema:"store the result in the evaluation history"`
}

// ResolveDrugInput is the input schema for the resolve_drug tool.
type ResolveDrugInput struct {
	Name string `json:"name" jsonschema:"a drug name, brand name or alias"`
}

// ResolveDrugOutput is the output schema for the resolve_drug tool.
type ResolveDrugOutput struct {
	Query       string       `json:"query"`
	Found       bool         `json:"found"`
	Drug        *domain.Drug `json:"drug,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Candidates  []string     `json:"candidates,omitempty"`
}

// ListRulesInput is the input schema for the list_rules tool.
type ListRulesInput struct {
	Domain string `json:"domain,omitempty" jsonschema:"comma-separated domain filter (default all)"`
}

// ListRulesOutput is the output schema for the list_rules tool.
type ListRulesOutput struct {
	Count   int           `json:"count"`
	Domains string        `json:"domains"`
	Rules   []*rules.File `json:"rules"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "check_interactions",
		Description: "Check documented pharmacokinetic and pharmacodynamic interactions between two or more drugs",
	}, s.handleCheckInteractions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resolve_drug",
		Description: "Resolve a drug name, brand name or alias to its knowledge base entry",
	}, s.handleResolveDrug)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_rules",
		Description: "List the interaction rules, optionally filtered by domain",
	}, s.handleListRules)
}

// handleCheckInteractions handles the check_interactions tool invocation.
func (s *Server) handleCheckInteractions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CheckInteractionsInput,
) (*mcp.CallToolResult, report.Payload, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"tool": "check_interactions", "drugs": input.Drugs})

	res, err := s.deps.Engine.Check(ctx, service.CheckRequest{
		Names:   input.Drugs,
		Domains: input.Domains,
	})
	if err != nil {
		log.WithError(err).Debug("Tool call failed")
		return nil, report.Payload{}, err
	}

	meta := &report.Meta{
		SnapshotVersion: res.SnapshotVersion,
		Fingerprint:     res.Fingerprint,
		Cached:          res.Cached,
	}
	if input.Record {
		if s.deps.History == nil {
			return nil, report.Payload{}, domain.NewValidationError("record", "evaluation history is not enabled", true)
		}
		rec, err := history.NewRecord(res.Names, res.Result, res.SnapshotVersion)
		if err != nil {
			return nil, report.Payload{}, err
		}
		if err := s.deps.History.Save(ctx, rec); err != nil {
			return nil, report.Payload{}, err
		}
		meta.RecordID = rec.ID
	}

	payload := report.Build(res.Names, res.Result, meta).Top(input.Top)

	var text strings.Builder
	if err := report.WritePlain(&text, payload); err != nil {
		return nil, report.Payload{}, err
	}
	log.WithField("overall_severity", payload.Overall.Severity).Info("Tool invoked")

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text.String()}},
	}, *payload, nil
}

// handleResolveDrug handles the resolve_drug tool invocation. Unknown and
// ambiguous names are reported in the output rather than as errors.
func (s *Server) handleResolveDrug(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ResolveDrugInput,
) (*mcp.CallToolResult, ResolveDrugOutput, error) {
	out := ResolveDrugOutput{Query: input.Name}

	drug, err := s.deps.Engine.Resolve(input.Name)
	var notFound *domain.NotFoundError
	var ambiguous *domain.AmbiguousNameError
	switch {
	case err == nil:
		out.Found = true
		out.Drug = drug
	case errors.As(err, &notFound):
		out.Suggestions = notFound.Suggestions
	case errors.As(err, &ambiguous):
		out.Candidates = ambiguous.Candidates
	default:
		return nil, ResolveDrugOutput{}, err
	}
	return nil, out, nil
}

// handleListRules handles the list_rules tool invocation.
func (s *Server) handleListRules(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListRulesInput,
) (*mcp.CallToolResult, ListRulesOutput, error) {
	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		return nil, ListRulesOutput{}, err
	}
	filter, err := domain.ParseDomainFilter(input.Domain)
	if err != nil {
		return nil, ListRulesOutput{}, err
	}

	selected := snap.Rules.Filter(filter)
	out := ListRulesOutput{
		Count:   len(selected),
		Domains: filter.String(),
		Rules:   make([]*rules.File, len(selected)),
	}
	for i := range selected {
		out.Rules[i] = rules.FileFromRule(&selected[i])
	}
	return nil, out, nil
}
