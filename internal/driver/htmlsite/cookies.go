package htmlsite

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// LoadCookies parses a cookie file in either of the two supported
// formats: a single semicolon-separated "name=value; name2=value2"
// string, or one tab-separated Netscape-style record per line. Comment
// lines and blank lines are ignored.
func LoadCookies(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies file: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	content := strings.Join(lines, "\n")
	if content == "" {
		return nil, nil
	}

	var cookies []*http.Cookie
	if strings.Contains(content, ";") {
		for _, pair := range strings.Split(content, ";") {
			pair = strings.TrimSpace(pair)
			name, value, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			cookies = append(cookies, &http.Cookie{
				Name:  strings.TrimSpace(name),
				Value: strings.TrimSpace(value),
			})
		}
		return cookies, nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		// domain, flag, path, secure, expiration, name, value
		cookies = append(cookies, &http.Cookie{
			Domain: parts[0],
			Path:   parts[2],
			Secure: parts[3] == "TRUE",
			Name:   parts[5],
			Value:  parts[6],
		})
	}
	return cookies, nil
}
