package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func sampleTree() *Part {
	return &Part{
		MimeType: "multipart/alternative",
		Headers: []Header{
			{Name: "Subject", Value: "Weekly digest"},
			{Name: "Received", Value: "first"},
			{Name: "Received", Value: "second"},
		},
		Children: []*Part{
			{
				MimeType: "text/plain",
				Headers:  []Header{{Name: "Content-Type", Value: "text/plain"}},
				Body:     []byte("plain body"),
			},
			{
				MimeType: "text/html",
				Headers:  []Header{{Name: "Content-Type", Value: "text/html"}, {Name: "X-Only-Child", Value: "deep"}},
				Body:     []byte("<p>html body</p>"),
			},
		},
	}
}

func TestFirstHeader(t *testing.T) {
	tree := sampleTree()

	tests := []struct {
		name            string
		header          string
		caseInsensitive bool
		want            string
		wantOK          bool
	}{
		{"exact match", "Subject", false, "Weekly digest", true},
		{"first of repeated", "Received", false, "first", true},
		{"case mismatch sensitive", "subject", false, "", false},
		{"case mismatch insensitive", "subject", true, "Weekly digest", true},
		{"found in first child", "Content-Type", false, "text/plain", true},
		{"found in later child", "x-only-child", true, "deep", true},
		{"missing", "List-Unsubscribe", true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstHeader(tree, tt.header, tt.caseInsensitive)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := FirstHeader(nil, "Subject", true)
	assert.False(t, ok)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "plain body", PlainText(sampleTree()))

	htmlOnly := &Part{MimeType: "text/html", Body: []byte("<b>x</b>")}
	assert.Equal(t, "<b>x</b>", PlainText(htmlOnly))
	assert.Equal(t, "", PlainText(nil))
}

func TestSummaryFromMessage(t *testing.T) {
	body := base64.URLEncoding.EncodeToString([]byte("hello"))
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		Snippet:      "hello",
		InternalDate: 1700000000000,
		LabelIds:     []string{"INBOX"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "news@example.com"},
				{Name: "From", Value: "ignored@example.com"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: body, Size: 5}},
				{MimeType: "application/pdf", Filename: "a.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att1", Size: 100}},
			},
		},
	}

	s := SummaryFromMessage(msg)
	assert.Equal(t, "m1", s.ID)
	assert.Equal(t, "t1", s.ThreadID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), s.InternalDate)
	assert.Equal(t, "news@example.com", s.Headers["From"])
	assert.Equal(t, "news@example.com", s.Header("from"))
	require.Len(t, s.Payload.Children, 2)
	assert.Equal(t, []byte("hello"), s.Payload.Children[0].Body)
	assert.Equal(t, "att1", s.Payload.Children[1].AttachmentID)
	assert.Nil(t, s.Payload.Children[1].Body)
}

func TestDecodeBodyUnpadded(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte("ab"))
	assert.Equal(t, []byte("ab"), decodeBody(raw))
	assert.Nil(t, decodeBody("!!!"))
}

func TestLabelIsSystem(t *testing.T) {
	assert.True(t, Label{Type: "system"}.IsSystem())
	assert.False(t, Label{Type: "user"}.IsSystem())
}
