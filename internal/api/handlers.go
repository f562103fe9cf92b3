package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/history"
	"github.com/pharmds-ddi-server/internal/rules"
	"github.com/pharmds-ddi-server/internal/service"
	"github.com/pharmds-ddi-server/pkg/report"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// CheckInteractionsRequest is the body of POST /api/v1/interactions.
type CheckInteractionsRequest struct {
	Drugs []string `json:"drugs" binding:"required"`
	// Domains is a comma-separated filter such as "cyp,pd".
	Domains string `json:"domains"`
	// Record stores the result in the evaluation history.
	Record bool `json:"record"`
	// Top limits the number of pairs returned.
	Top int `json:"top"`
}

// SnapshotStatus describes the published snapshot.
type SnapshotStatus struct {
	Version     uint64    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
	Rules       int       `json:"rules"`
	Drugs       int       `json:"drugs"`
	KBSource    string    `json:"kb_source"`
	RulesSource string    `json:"rules_source"`
}

// handleHealth reports readiness and the published snapshot.
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"version":   Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
		"history":   s.deps.History != nil,
	}

	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		body["status"] = "unavailable"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "healthy"
	body["snapshot"] = SnapshotStatus{
		Version:     snap.Version,
		Fingerprint: snap.Fingerprint,
		LoadedAt:    snap.LoadedAt,
		Rules:       snap.Rules.Len(),
		Drugs:       snap.KB.Stats().Drugs,
		KBSource:    snap.KBSource,
		RulesSource: snap.RulesSource,
	}
	c.JSON(http.StatusOK, body)
}

// handleCheckInteractions evaluates a drug list.
func (s *Server) handleCheckInteractions(c *gin.Context) {
	var req CheckInteractionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondCode(c, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	res, err := s.deps.Engine.Check(c.Request.Context(), service.CheckRequest{
		Names:   req.Drugs,
		Domains: req.Domains,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	meta := &report.Meta{
		SnapshotVersion: res.SnapshotVersion,
		Fingerprint:     res.Fingerprint,
		Cached:          res.Cached,
	}
	if req.Record {
		id, err := s.record(c, res)
		if err != nil {
			respondError(c, err)
			return
		}
		meta.RecordID = id
	}

	c.JSON(http.StatusOK, report.Build(res.Names, res.Result, meta).Top(req.Top))
}

func (s *Server) record(c *gin.Context, res *service.CheckResult) (string, error) {
	if s.deps.History == nil {
		return "", domain.NewValidationError("record", "evaluation history is not enabled", true)
	}
	rec, err := history.NewRecord(res.Names, res.Result, res.SnapshotVersion)
	if err != nil {
		return "", err
	}
	if err := s.deps.History.Save(c.Request.Context(), rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// handleResolveDrug maps a name or alias to a drug.
func (s *Server) handleResolveDrug(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		respondCode(c, http.StatusBadRequest, domain.CodeInvalidInput, "query parameter 'name' is required")
		return
	}

	drug, err := s.deps.Engine.Resolve(name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": name, "drug": drug})
}

// DrugDetail is a drug with every fact the knowledge base holds about it.
type DrugDetail struct {
	Drug             *domain.Drug                 `json:"drug"`
	EnzymeRoles      []domain.DrugEnzymeRole      `json:"enzyme_roles"`
	TransporterRoles []domain.DrugTransporterRole `json:"transporter_roles"`
	PDEffects        []domain.DrugPDEffect        `json:"pd_effects"`
	Parameters       *domain.ParameterSet         `json:"parameters,omitempty"`
}

// handleGetDrug returns the facts recorded for a drug id.
func (s *Server) handleGetDrug(c *gin.Context) {
	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}

	id := c.Param("id")
	drug, ok := snap.KB.Drug(id)
	if !ok {
		respondCode(c, http.StatusNotFound, domain.CodeNotFound, "unknown drug id: "+id)
		return
	}

	detail := DrugDetail{
		Drug:             drug,
		EnzymeRoles:      nonNilSlice(snap.KB.EnzymeRoles(id)),
		TransporterRoles: nonNilSlice(snap.KB.TransporterRoles(id)),
		PDEffects:        nonNilSlice(snap.KB.PDEffects(id)),
	}
	if params, ok := snap.KB.Parameters(id); ok {
		detail.Parameters = params
	}
	c.JSON(http.StatusOK, detail)
}

// handleListRules lists the rules, optionally filtered by ?domain=.
func (s *Server) handleListRules(c *gin.Context) {
	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}

	filter, err := domain.ParseDomainFilter(c.Query("domain"))
	if err != nil {
		respondError(c, err)
		return
	}

	selected := snap.Rules.Filter(filter)
	out := make([]*rules.File, len(selected))
	for i := range selected {
		out[i] = rules.FileFromRule(&selected[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"count":            len(out),
		"domains":          filter.String(),
		"snapshot_version": snap.Version,
		"rules":            out,
	})
}

// handleGetRule returns one rule by id.
func (s *Server) handleGetRule(c *gin.Context) {
	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}

	id := c.Param("id")
	rule, ok := snap.Rules.ByID(id)
	if !ok {
		respondCode(c, http.StatusNotFound, domain.CodeNotFound, "unknown rule id: "+id)
		return
	}
	c.JSON(http.StatusOK, rules.FileFromRule(rule))
}

// handleListHistory pages through stored evaluations, newest first.
func (s *Server) handleListHistory(c *gin.Context) {
	if s.deps.History == nil {
		respondCode(c, http.StatusServiceUnavailable, domain.CodeUnavailable, "evaluation history is not enabled")
		return
	}

	limit, err := intQuery(c, "limit", defaultHistoryLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	if limit < 1 || limit > maxHistoryLimit {
		respondError(c, domain.NewValidationError("limit", "limit must be between 1 and 500", limit))
		return
	}
	if offset < 0 {
		respondError(c, domain.NewValidationError("offset", "offset cannot be negative", offset))
		return
	}

	ctx := c.Request.Context()
	records, err := s.deps.History.List(ctx, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := s.deps.History.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	// Listing omits the stored payload; fetch a record by id for it.
	summaries := make([]history.Record, len(records))
	for i, rec := range records {
		summaries[i] = *rec
		summaries[i].Payload = nil
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"records": summaries,
	})
}

// handleGetHistory returns a stored evaluation with its report.
func (s *Server) handleGetHistory(c *gin.Context) {
	if s.deps.History == nil {
		respondCode(c, http.StatusServiceUnavailable, domain.CodeUnavailable, "evaluation history is not enabled")
		return
	}

	rec, err := s.deps.History.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrRecordNotFound) {
		respondCode(c, http.StatusNotFound, domain.CodeNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := rec.Result()
	if err != nil {
		respondError(c, err)
		return
	}
	res.Domains, err = domain.ParseDomainFilter(rec.Domains)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report.Build(rec.InputNames, res, &report.Meta{
		SnapshotVersion: rec.SnapshotVersion,
		RecordID:        rec.ID,
	}))
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer", raw)
	}
	return n, nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
