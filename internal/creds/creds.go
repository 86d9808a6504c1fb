// Package creds resolves wiki API credentials.
//
// Resolution order: config/.env, then .env, then the legacy
// confluence_token.txt file combined with values from the main config.
package creds

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const legacyTokenFile = "confluence_token.txt"

// Credentials holds what the wiki-API driver needs to authenticate.
type Credentials struct {
	Email   string
	Token   string
	BaseURL string
}

// Valid reports whether all three fields are present.
func (c *Credentials) Valid() bool {
	return c != nil && c.Email != "" && c.Token != "" && c.BaseURL != ""
}

// APIBaseURL derives the REST endpoint root, ensuring the
// /wiki/rest/api suffix.
func (c *Credentials) APIBaseURL() string {
	if c.BaseURL == "" {
		return ""
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if strings.Contains(base, "/rest/api") {
		return base
	}
	if strings.Contains(base, "/wiki") {
		return base + "/rest/api"
	}
	return base + "/wiki/rest/api"
}

// Load resolves credentials from the supported sources. A nil result
// with nil error means no credentials are configured; the caller
// decides whether that is fatal. configBaseURL and configEmail fill the
// gaps when only the legacy token file is present.
func Load(configBaseURL, configEmail string) (*Credentials, error) {
	if c := loadFromEnvFiles(); c.Valid() {
		return c, nil
	}

	c, err := loadFromTokenFile(configBaseURL, configEmail)
	if err != nil {
		return nil, err
	}
	if c.Valid() {
		return c, nil
	}
	return nil, nil
}

func loadFromEnvFiles(paths ...string) *Credentials {
	if len(paths) == 0 {
		paths = []string{"config/.env", ".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		env, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		c := &Credentials{
			Email:   env["CONFLUENCE_EMAIL"],
			Token:   env["CONFLUENCE_TOKEN"],
			BaseURL: env["CONFLUENCE_BASE_URL"],
		}
		if c.Valid() {
			return c
		}
	}
	return &Credentials{}
}

// loadFromTokenFile reads the legacy token file, taking email and base
// URL from the main configuration.
func loadFromTokenFile(configBaseURL, configEmail string) (*Credentials, error) {
	data, err := os.ReadFile(legacyTokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", legacyTokenFile, err)
	}

	return &Credentials{
		Token:   strings.TrimSpace(string(data)),
		Email:   configEmail,
		BaseURL: configBaseURL,
	}, nil
}
