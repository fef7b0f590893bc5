package model

// SelfCheckResult is the outcome of one named verification check.
type SelfCheckResult struct {
	Name   string         `json:"name"`
	OK     bool           `json:"ok"`
	Detail map[string]any `json:"detail,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// SelfCheckReport bundles the outcomes of one verification run. OK is the
// conjunction of every result.
type SelfCheckReport struct {
	OK      bool              `json:"ok"`
	Version string            `json:"version"`
	Results []SelfCheckResult `json:"results"`
}
