package glasir

import (
	"regexp"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TOKEN PARSER
// ══════════════════════════════════════════════════════════════════════════════

// lnamePatterns locate the lname session token in the timetable page HTML.
// Tried in order; the first hit wins.
var lnamePatterns = []*regexp.Regexp{
	// Query string or simple assignment
	regexp.MustCompile(`lname=([^&"'\s]+)`),
	// Inside an xmlhttp.send call
	regexp.MustCompile(`xmlhttp\.send\("[^"]*lname=([^&"'\s]+)"`),
	// Positional argument of the MyUpdate JS helper
	regexp.MustCompile(`MyUpdate\('[^']*','[^']*','[^']*',\d+,(\d+)\)`),
	// Hidden input field
	regexp.MustCompile(`name=['"]lname['"]\s*value=['"]([^'"]+)['"]`),
}

// ExtractLname pulls the lname session token out of a timetable page.
// Returns "" when no pattern matches; the caller decides whether that is
// fatal. Tokens carrying a trailing comma-separated suffix are truncated at
// the first comma.
func ExtractLname(html string) string {
	for _, pattern := range lnamePatterns {
		m := pattern.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		token := m[1]
		if i := strings.IndexByte(token, ','); i >= 0 {
			token = token[:i]
		}
		return token
	}
	return ""
}
