// Package merge splices freshly compiled YAML into user-owned output files.
// The generated region is bounded by a fixed begin/end marker pair; everything
// outside the pair belongs to the user and is never rewritten. Structural
// damage to the markers aborts the merge instead of guessing, since a wrong
// splice destroys user edits.
package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

// Marker lines bounding the generated region in an output file.
const (
	BeginMarker = "# --- BEGIN PANELSMITH GENERATED ---"
	EndMarker   = "# --- END PANELSMITH GENERATED ---"
)

// WrapBlock wraps compiled document text in the marker pair.
func WrapBlock(yamlText string) string {
	return BeginMarker + "\n" + strings.TrimRight(yamlText, " \t\r\n\v\f") + "\n" + EndMarker + "\n"
}

// FreshFile is the initial content for an output file that does not exist
// yet: the generated block plus a hint telling the user where their own
// additions are safe.
func FreshFile(generatedBlock string) string {
	return generatedBlock + "\n" +
		"# --- USER YAML BELOW (preserved on future exports if you keep the marker block above) ---\n" +
		"# Add sensors, switches, substitutions, packages, etc.\n"
}

// Merge replaces the marker-bounded region of existing with generatedBlock.
// A file with no markers gets the block appended after a blank separator. A
// file with exactly one begin and one end marker, in order, has the region
// between and including them replaced, with the surrounding text preserved.
// Any other marker arrangement fails with a typed error.
func Merge(existing, generatedBlock string) (string, error) {
	if !strings.Contains(generatedBlock, BeginMarker) || !strings.Contains(generatedBlock, EndMarker) {
		return "", model.NewMarkersMissingError()
	}

	beginCount := strings.Count(existing, BeginMarker)
	endCount := strings.Count(existing, EndMarker)

	if beginCount == 0 && endCount == 0 {
		if existing != "" && !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		if existing != "" && !strings.HasSuffix(existing, "\n\n") {
			existing += "\n"
		}
		return existing + generatedBlock, nil
	}
	if beginCount != 1 || endCount != 1 {
		return "", model.NewMarkerCountError(beginCount, endCount)
	}

	beginIdx := strings.Index(existing, BeginMarker)
	endIdx := strings.Index(existing, EndMarker)
	if endIdx < beginIdx {
		return "", model.NewMarkerOrderError()
	}

	// The replaced region includes the end marker's own line ending; the new
	// block brings its own. Re-merging the same block is then a fixed point.
	afterStart := endIdx + len(EndMarker)
	if afterStart < len(existing) && existing[afterStart] == '\n' {
		afterStart++
	}

	before := existing[:beginIdx]
	after := existing[afterStart:]
	if before != "" && !strings.HasSuffix(before, "\n") {
		before += "\n"
	}
	if after != "" && !strings.HasPrefix(after, "\n") {
		after = "\n" + after
	}
	return before + generatedBlock + after, nil
}

// Hash fingerprints file text for the optimistic write gate. Export compares
// the fingerprint taken at preview time against the file found at write time.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
