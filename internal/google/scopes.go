package google

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// RequiredScopes are the scopes inboxprune requests. users.messages.batchDelete
// is only permitted with the full mail scope.
var RequiredScopes = []string{
	gmail.MailGoogleComScope,
}

// scopesSatisfy reports whether a space separated scope grant includes every
// required scope.
func scopesSatisfy(granted string, required []string) bool {
	have := make(map[string]bool)
	for _, s := range strings.Fields(granted) {
		have[s] = true
	}
	for _, s := range required {
		if !have[s] {
			return false
		}
	}
	return true
}
