package signing

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// braceEscaper turns {a,b} alternation into literal braces
var braceEscaper = strings.NewReplacer("{", `\{`, "}", `\}`)

// MatchProfile returns the first profile whose bundle id pattern matches
// bundleID, or nil. Patterns use shell glob syntax (*, ? and [...] classes)
// and must match the whole identifier. Braces are literal characters, there
// is no {a,b} alternation.
func MatchProfile(bundleID string, profiles []Profile) *Profile {
	if bundleID == "" {
		return nil
	}
	for i := range profiles {
		pattern := braceEscaper.Replace(profiles[i].BundleID)
		matched, err := doublestar.Match(pattern, bundleID)
		if err == nil && matched {
			return &profiles[i]
		}
	}
	return nil
}
