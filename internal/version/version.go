// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// Version is the current version of dbg-bridge
	Version = "0.1.0"

	// GitHubRepo is the repository path
	GitHubRepo = "ctagard/dbg-bridge"

	// GitHubAPIURL is the GitHub API endpoint for latest release
	GitHubAPIURL = "https://api.github.com/repos/%s/releases/latest"
)

// UpdateInfo contains information about available updates
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
	Error           string    `json:"error,omitempty"`
}

// UpdateMessage returns a human-readable message about the update, or ""
func (u *UpdateInfo) UpdateMessage() string {
	if u.Error != "" || !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("A new version of dbg-bridge is available: v%s (current: v%s). See %s",
		u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// Checker queries the latest release once and caches the answer
type Checker struct {
	url    string
	client *http.Client

	mu   sync.RWMutex
	info *UpdateInfo
}

// NewChecker creates a checker against the GitHub releases API
func NewChecker() *Checker {
	return NewCheckerWithURL(fmt.Sprintf(GitHubAPIURL, GitHubRepo))
}

// NewCheckerWithURL creates a checker against a releases endpoint
func NewCheckerWithURL(url string) *Checker {
	return &Checker{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check fetches the latest release. Failures are reported in
// UpdateInfo.Error, never returned.
func (c *Checker) Check(ctx context.Context) *UpdateInfo {
	info := &UpdateInfo{CurrentVersion: Version, CheckedAt: time.Now()}
	if err := c.fetch(ctx, info); err != nil {
		info.Error = err.Error()
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	return info
}

func (c *Checker) fetch(ctx context.Context, info *UpdateInfo) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "dbg-bridge/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	info.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	info.ReleaseURL = release.HTMLURL
	info.UpdateAvailable = CompareVersions(Version, info.LatestVersion) < 0
	return nil
}

// Last returns the cached result of the last Check, or nil
func (c *Checker) Last() *UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// CompareVersions compares two semver strings.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2
func CompareVersions(v1, v2 string) int {
	a, b := parseVersion(v1), parseVersion(v2)
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func parseVersion(v string) [3]int {
	var out [3]int
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		// pre-release suffixes like "1.0.0-beta" are ignored
		field := strings.SplitN(parts[i], "-", 2)[0]
		fmt.Sscanf(field, "%d", &out[i])
	}
	return out
}
