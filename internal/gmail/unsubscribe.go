package gmail

import "strings"

const (
	// HeaderListUnsubscribe carries the unsubscribe URIs (RFC 2369).
	HeaderListUnsubscribe = "List-Unsubscribe"
	// HeaderListUnsubscribePost marks one-click unsubscribe support (RFC 8058).
	HeaderListUnsubscribePost = "List-Unsubscribe-Post"

	oneClickValue = "List-Unsubscribe=One-Click"
)

// ParseListUnsubscribe returns every <uri> token of a List-Unsubscribe value
// in order. Empty and unterminated tokens are skipped.
func ParseListUnsubscribe(header string) []string {
	var uris []string
	for _, part := range strings.Split(header, "<") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		endIdx := strings.Index(part, ">")
		if endIdx == -1 {
			continue
		}
		uri := strings.TrimSpace(part[:endIdx])
		if uri == "" {
			continue
		}
		uris = append(uris, uri)
	}
	return uris
}

// IsOneClick reports whether a List-Unsubscribe-Post value requests RFC 8058
// one-click unsubscription.
func IsOneClick(postHeader string) bool {
	return strings.EqualFold(strings.TrimSpace(postHeader), oneClickValue)
}

// IsHTTPURI reports whether uri uses http or https.
func IsHTTPURI(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
