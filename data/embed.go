// Package data embeds the curated seed knowledge base and the default rule
// set shipped with the binary.
package data

import "embed"

// FS holds curation/drugs.yaml and every rule file under rules/.
//
//go:embed curation/*.yaml rules/*.yaml
var FS embed.FS

const (
	// CurationFile is the path of the seed dataset inside FS.
	CurationFile = "curation/drugs.yaml"
	// RulesDir is the directory of the default rule set inside FS.
	RulesDir = "rules"
)
