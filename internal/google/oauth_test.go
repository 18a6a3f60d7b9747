package google

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name    string
		account string
		wantErr bool
	}{
		{"valid default", "default", false},
		{"valid with hyphen", "work-email", false},
		{"valid with underscore", "personal_email", false},
		{"empty", "", true},
		{"with spaces", "my account", true},
		{"with slash", "work/personal", true},
		{"with dot", "work.email", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccountName(tt.account)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAccountName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	path := TokenFilePath("work")
	assert.Equal(t, "google-work.token", filepath.Base(path))
	assert.False(t, HasTokenForAccount("work"))

	require.NoError(t, writeTokenFile(path, &oauth2.Token{AccessToken: "acc", RefreshToken: "ref"}))
	assert.True(t, HasTokenForAccount("work"))

	tok, err := readTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "acc", tok.AccessToken)
	assert.Equal(t, "ref", tok.RefreshToken)
	assert.False(t, tok.Valid(), "stored tokens are treated as expired")
}

func TestReadTokenFileInvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.token")
	require.NoError(t, os.WriteFile(path, []byte("only-one-field"), 0o600))
	_, err := readTokenFile(path)
	assert.Error(t, err)
}

func TestScopesSatisfy(t *testing.T) {
	assert.True(t, scopesSatisfy("openid https://mail.google.com/", RequiredScopes))
	assert.False(t, scopesSatisfy("https://www.googleapis.com/auth/gmail.readonly", RequiredScopes))
	assert.False(t, scopesSatisfy("", RequiredScopes))
}

func TestFileAuthenticatorBeforeAuthenticate(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	a, err := NewFileAuthenticator("default")
	require.NoError(t, err)
	assert.False(t, a.HasRequiredScope())
	assert.True(t, errors.Is(a.RefreshIfNeeded(context.Background()), ErrNotAuthenticated))

	_, err = a.Authenticate(context.Background())
	assert.Error(t, err, "no token file exists")

	_, err = NewFileAuthenticator("bad name")
	assert.Error(t, err)
}
