package bank

import (
	"regexp"
	"strings"
)

var accessTokenPattern = regexp.MustCompile(`^access-(sandbox|development|production)-[A-Za-z0-9-]+$`)

// ValidAccessToken reports whether token, once trimmed, has the
// access-<environment>-<identifier> shape.
func ValidAccessToken(token string) bool {
	token = strings.TrimSpace(token)
	return token != "" && accessTokenPattern.MatchString(token)
}

// MaskToken hides all but the environment prefix and the last four
// characters of a token so it can be logged.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 8 {
		return "****"
	}
	prefix := ""
	if m := accessTokenPattern.FindStringSubmatch(token); m != nil {
		prefix = "access-" + m[1] + "-"
	}
	return prefix + "****" + token[len(token)-4:]
}
