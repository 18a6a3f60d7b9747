package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Header is a single MIME header. Order within a part is preserved.
type Header struct {
	Name  string
	Value string
}

// Part is a node of a message's MIME tree.
type Part struct {
	PartID   string
	MimeType string
	Filename string
	Headers  []Header
	// Body holds the decoded inline body, if the server returned one.
	Body []byte
	// AttachmentID references a body that must be fetched separately.
	AttachmentID string
	Size         int64
	Children     []*Part
}

// PartFromAPI converts the API representation into a Part tree.
func PartFromAPI(p *gmail.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := &Part{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
		Headers:  make([]Header, 0, len(p.Headers)),
	}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Size = p.Body.Size
		part.AttachmentID = p.Body.AttachmentId
		if p.Body.Data != "" {
			part.Body = decodeBody(p.Body.Data)
		}
	}
	for _, child := range p.Parts {
		part.Children = append(part.Children, PartFromAPI(child))
	}
	return part
}

// decodeBody decodes base64url data, padded or not. Undecodable data yields nil.
func decodeBody(data string) []byte {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b
	}
	return nil
}

// Walk visits p and its descendants depth-first, parents before children.
func Walk(p *Part, fn func(*Part)) {
	if p == nil {
		return
	}
	fn(p)
	for _, child := range p.Children {
		Walk(child, fn)
	}
}

// FirstHeader returns the value of the first header called name, searching
// the tree depth-first with a part's own headers before its children.
func FirstHeader(tree *Part, name string, caseInsensitive bool) (string, bool) {
	if tree == nil {
		return "", false
	}
	for _, h := range tree.Headers {
		if h.Name == name || (caseInsensitive && strings.EqualFold(h.Name, name)) {
			return h.Value, true
		}
	}
	for _, child := range tree.Children {
		if v, ok := FirstHeader(child, name, caseInsensitive); ok {
			return v, true
		}
	}
	return "", false
}

// PlainText returns the first text/plain body in the tree, falling back to
// the first text/html body.
func PlainText(tree *Part) string {
	var plain, html string
	Walk(tree, func(p *Part) {
		if len(p.Body) == 0 {
			return
		}
		switch {
		case plain == "" && strings.HasPrefix(p.MimeType, "text/plain"):
			plain = string(p.Body)
		case html == "" && strings.HasPrefix(p.MimeType, "text/html"):
			html = string(p.Body)
		}
	})
	if plain != "" {
		return plain
	}
	return html
}
