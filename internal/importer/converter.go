package importer

import (
	"strings"
	"unicode"
)

// NameToID converts a display name to a stable snake_case identifier, used
// for pack names and their file names. Runs of spaces, hyphens, underscores
// and punctuation become a single underscore; apostrophes and non-ASCII
// letters are dropped.
//
// Postcondition: result contains only [a-z0-9_], never starts, ends or
// repeats an underscore, and is idempotent (NameToID(NameToID(s)) == NameToID(s)).
func NameToID(name string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
		case r == '\'' || r == '’' || unicode.IsLetter(r) || unicode.IsMark(r):
		default:
			sep = true
		}
	}
	return b.String()
}
