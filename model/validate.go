package model

// DocumentValidation is the outcome of validating a compiled document:
// structural issues first, then the external CLI result when that step is
// configured and ran.
type DocumentValidation struct {
	OK     bool           `json:"ok"`
	Issues []string       `json:"issues,omitempty"`
	CLI    *CLIValidation `json:"cli,omitempty"`
}

// CLIValidation is the outcome of one external esphome CLI run.
type CLIValidation struct {
	OK         bool   `json:"ok"`
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Error      string `json:"error,omitempty"`
}
