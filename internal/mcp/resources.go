package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pharmds-ddi-server/internal/domain"
)

const (
	snapshotURI     = "pharmds://snapshot"
	drugURIPrefix   = "pharmds://drugs/"
	drugTemplateURI = drugURIPrefix + "{id}"
	jsonMIMEType    = "application/json"
)

// SnapshotResource describes the published knowledge base snapshot.
type SnapshotResource struct {
	Version     uint64 `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Rules       int    `json:"rules"`
	Drugs       int    `json:"drugs"`
	KBSource    string `json:"kb_source"`
	RulesSource string `json:"rules_source"`
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         snapshotURI,
		Name:        "snapshot",
		Description: "Version and fingerprint of the knowledge base snapshot in use",
		MIMEType:    jsonMIMEType,
	}, s.readSnapshot)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: drugTemplateURI,
		Name:        "drug",
		Description: "Enzyme, transporter and pharmacodynamic facts recorded for a drug id",
		MIMEType:    jsonMIMEType,
	}, s.readDrug)
}

func (s *Server) readSnapshot(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, SnapshotResource{
		Version:     snap.Version,
		Fingerprint: snap.Fingerprint,
		Rules:       snap.Rules.Len(),
		Drugs:       snap.KB.Stats().Drugs,
		KBSource:    snap.KBSource,
		RulesSource: snap.RulesSource,
	})
}

// DrugResource is the content of a pharmds://drugs/{id} resource.
type DrugResource struct {
	Drug             *domain.Drug                 `json:"drug"`
	EnzymeRoles      []domain.DrugEnzymeRole      `json:"enzyme_roles"`
	TransporterRoles []domain.DrugTransporterRole `json:"transporter_roles"`
	PDEffects        []domain.DrugPDEffect        `json:"pd_effects"`
	Parameters       *domain.ParameterSet         `json:"parameters,omitempty"`
}

func (s *Server) readDrug(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, drugURIPrefix)
	if id == uri || id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	snap, err := s.deps.Engine.Snapshot()
	if err != nil {
		return nil, err
	}
	drug, ok := snap.KB.Drug(id)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	out := DrugResource{
		Drug:             drug,
		EnzymeRoles:      snap.KB.EnzymeRoles(id),
		TransporterRoles: snap.KB.TransporterRoles(id),
		PDEffects:        snap.KB.PDEffects(id),
	}
	if params, ok := snap.KB.Parameters(id); ok {
		out.Parameters = params
	}
	return jsonResource(uri, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(data),
		}},
	}, nil
}
