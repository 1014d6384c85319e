// Package provenance stamps governed reads and writes with origin metadata.
package provenance

import "time"

// Record is the origin metadata attached to a governed operation. All
// fields are optional except SourceType and CreatedAt, which Build always
// populates.
type Record struct {
	SourceType    string `json:"source_type"`
	SourceApp     string `json:"source_app,omitempty"`
	SourceEventID string `json:"source_event_id,omitempty"`
	AgentID       string `json:"agent_id,omitempty"`
	Tool          string `json:"tool,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Options names the optional fields of a provenance record.
type Options struct {
	SourceType    string // defaults to "mcp"
	SourceApp     string
	SourceEventID string
	AgentID       string
	Tool          string
	CreatedAt     string // defaults to the current UTC instant, RFC 3339
}

// Build returns a provenance record, defaulting SourceType to "mcp" and
// CreatedAt to the current UTC time in ISO-8601 form. Pure: no side
// effects, no failure modes.
func Build(opts Options) Record {
	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = "mcp"
	}
	createdAt := opts.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	return Record{
		SourceType:    sourceType,
		SourceApp:     opts.SourceApp,
		SourceEventID: opts.SourceEventID,
		AgentID:       opts.AgentID,
		Tool:          opts.Tool,
		CreatedAt:     createdAt,
	}
}
