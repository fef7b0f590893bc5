package compiler

import (
	"regexp"
	"strings"
)

var (
	nonIdentRe    = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	nonIdentRunRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	underscoreRe  = regexp.MustCompile(`_+`)
)

// SafeID maps any string onto a firmware-safe identifier by replacing every
// non-alphanumeric character with an underscore. Character count is
// preserved, so distinct inputs stay distinct far more often than with a
// collapsing slugifier; listener ids are built from this form.
func SafeID(s string) string {
	return nonIdentRe.ReplaceAllString(s, "_")
}

// SlugifyEntityID maps an entity id onto the compact slug used in lock
// global names: lowercase, runs of non-alphanumerics collapsed to single
// underscores, trimmed. The same entity id always produces the same slug.
func SlugifyEntityID(entityID string) string {
	s := nonIdentRunRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(entityID)), "_")
	s = strings.Trim(underscoreRe.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "entity"
	}
	return s
}
