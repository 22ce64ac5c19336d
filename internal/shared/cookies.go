// Utilities for parsing Netscape-format cookie files.
package shared

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// LoadCookieFile reads a Netscape-format cookies.txt file (as exported by
// browser extensions and consumed by yt-dlp) and returns its cookies.
//
// Each non-comment line carries seven tab-separated fields:
// domain, include-subdomains, path, secure, expiry, name, value.
func LoadCookieFile(path string) ([]*http.Cookie, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	return ParseCookies(content)
}

// ParseCookies parses the contents of a Netscape-format cookie file.
// Malformed lines are skipped rather than treated as errors, matching how
// yt-dlp and curl consume these files.
func ParseCookies(data []byte) ([]*http.Cookie, error) {
	var cookies []*http.Cookie

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		// #HttpOnly_ prefixed lines are real cookies, all other # lines
		// are comments.
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		cookies = append(cookies, &http.Cookie{
			Domain: fields[0],
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		})
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: no cookies found in file", ErrInvalidInput)
	}

	return cookies, nil
}
