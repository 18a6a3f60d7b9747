package cmd

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func containsLine(s, sub string) bool {
	return strings.Contains(s, sub)
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"gmail_delete", "Gmail Tools"},
		{"google_save_auth_code", "Authentication Tools"},
		{"unknown", "Other"},
	}
	for _, tt := range tests {
		if got := getCategoryFromToolName(tt.name); got != tt.want {
			t.Errorf("getCategoryFromToolName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGenerateToolMarkdown(t *testing.T) {
	tool := mcp.NewTool("gmail_count",
		mcp.WithDescription("Estimate matches"),
		mcp.WithString("filter", mcp.Required(), mcp.Description("Gmail search query")),
		mcp.WithBoolean("includeSpamTrash"),
	)

	got := generateToolMarkdown(tool)

	for _, want := range []string{
		"### gmail_count",
		"Estimate matches",
		"- `filter` (required): Gmail search query",
		"- `includeSpamTrash` (optional): boolean parameter",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown missing %q:\n%s", want, got)
		}
	}
}
