package creds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIBaseURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"bare domain", "https://team.atlassian.net", "https://team.atlassian.net/wiki/rest/api"},
		{"trailing slash", "https://team.atlassian.net/", "https://team.atlassian.net/wiki/rest/api"},
		{"has wiki", "https://team.atlassian.net/wiki", "https://team.atlassian.net/wiki/rest/api"},
		{"already api", "https://team.atlassian.net/wiki/rest/api", "https://team.atlassian.net/wiki/rest/api"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credentials{BaseURL: tt.base}
			assert.Equal(t, tt.want, c.APIBaseURL())
		})
	}
}

func TestValid(t *testing.T) {
	assert.False(t, (&Credentials{}).Valid())
	assert.False(t, (&Credentials{Email: "a@b.c", Token: "t"}).Valid())
	assert.True(t, (&Credentials{Email: "a@b.c", Token: "t", BaseURL: "https://x"}).Valid())

	var nilCreds *Credentials
	assert.False(t, nilCreds.Valid())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", ".env"), []byte(`
# credentials
CONFLUENCE_BASE_URL=https://team.atlassian.net
CONFLUENCE_EMAIL="user@example.com"
CONFLUENCE_TOKEN='tok-123'
`), 0o600))
	t.Chdir(dir)

	c, err := Load("", "")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "https://team.atlassian.net", c.BaseURL)
	assert.Equal(t, "user@example.com", c.Email)
	assert.Equal(t, "tok-123", c.Token)
}

func TestLoadRootEnvFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"CONFLUENCE_BASE_URL=https://x\nCONFLUENCE_EMAIL=a@b.c\nCONFLUENCE_TOKEN=t\n"), 0o600))
	t.Chdir(dir)

	c, err := Load("", "")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.Valid())
}

func TestLoadLegacyTokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "confluence_token.txt"), []byte("legacy-token\n"), 0o600))
	t.Chdir(dir)

	c, err := Load("https://team.atlassian.net", "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "legacy-token", c.Token)
	assert.Equal(t, "user@example.com", c.Email)
	assert.True(t, c.Valid())
}

func TestLoadNothingConfigured(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load("", "")
	require.NoError(t, err)
	assert.Nil(t, c)
}
