package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// storageState mirrors the subset of browser storage webwatch persists
// across runs for persistSession watches: cookies only. Local/session
// storage restoration would require per-origin script injection before
// first paint, which the core's page-level facade does not expose; cookies
// cover the common "stay logged in" case the spec's login action targets.
type storageState struct {
	Cookies []*proto.NetworkCookieParam `json:"cookies"`
}

func saveStorageState(page *rod.Page, path string) error {
	cookies, err := page.Cookies(nil)
	if err != nil {
		return fmt.Errorf("browser: get cookies: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	b, err := json.MarshalIndent(storageState{Cookies: params}, "", "  ")
	if err != nil {
		return fmt.Errorf("browser: marshal storage state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("browser: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("browser: write storage state: %w", err)
	}
	return os.Rename(tmp, path)
}

func restoreStorageState(page *rod.Page, data []byte) error {
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("browser: unmarshal storage state: %w", err)
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	return page.SetCookies(state.Cookies)
}
