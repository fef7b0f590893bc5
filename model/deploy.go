package model

// Deploy modes reported by preview and export.
const (
	DeployModeMerged = "merged"
	DeployModeNew    = "new"
)

// DeployPreview describes what an export would write, without writing it.
// ExpectedHash fingerprints the target as it was read; a later export passes
// it back so the write can detect edits made in between.
type DeployPreview struct {
	Path         string `json:"path"`
	Mode         string `json:"mode"`
	Exists       bool   `json:"exists"`
	ExpectedHash string `json:"expected_hash"`
	NewHash      string `json:"new_hash"`
	Diff         string `json:"diff"`
	NewText      string `json:"new_text"`
}

// DeployResult describes a completed export.
type DeployResult struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Hash string `json:"hash"`
}
