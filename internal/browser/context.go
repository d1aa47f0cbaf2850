package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// CookieOption is one cookie to pre-add before navigation.
type CookieOption struct {
	Name, Value, Domain, Path string
	Secure, HTTPOnly          bool
}

// ContextOptions are the per-watch browser context options.
type ContextOptions struct {
	UserAgent        string
	ViewportWidth    int
	ViewportHeight   int
	Locale           string
	Timezone         string
	ExtraHeaders     map[string]string
	Cookies          []CookieOption
	BlockResources   []string
	StorageStatePath string // loaded iff PersistSession and the file exists
	Headful          bool
}

// Context wraps one incognito browser context and its single page, exclusive
// to one watch run and always released via Close.
type Context struct {
	incognito *rod.Browser
	page      *rod.Page
}

// NewContext acquires a fresh incognito context with the given options
// applied. The caller must Close it when the run finishes.
func (m *Manager) NewContext(ctx context.Context, opts ContextOptions) (*Context, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: manager not started")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito: %w", err)
	}

	var page *rod.Page
	if opts.Headful {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	} else {
		page, err = stealth.Page(incognito)
	}
	if err != nil {
		incognito.Close()
		return nil, fmt.Errorf("browser: new page: %w", err)
	}

	c := &Context{incognito: incognito, page: page}

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		}); err != nil {
			m.cfg.Logger.Warn("browser: set viewport failed", "error", err)
		}
	}

	if opts.UserAgent != "" || opts.Locale != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: opts.Locale,
		}); err != nil {
			m.cfg.Logger.Warn("browser: set user agent failed", "error", err)
		}
	}

	if opts.Timezone != "" {
		if err := page.SetTimezone(opts.Timezone); err != nil {
			m.cfg.Logger.Warn("browser: set timezone failed", "error", err)
		}
	}

	if len(opts.ExtraHeaders) > 0 {
		headers := make([]string, 0, len(opts.ExtraHeaders)*2)
		for k, v := range opts.ExtraHeaders {
			headers = append(headers, k, v)
		}
		if err := page.SetExtraHeaders(headers); err != nil {
			m.cfg.Logger.Warn("browser: set headers failed", "error", err)
		}
	}

	if len(opts.Cookies) > 0 {
		cookies := make([]*proto.NetworkCookieParam, 0, len(opts.Cookies))
		for _, c := range opts.Cookies {
			cookies = append(cookies, &proto.NetworkCookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		if err := page.SetCookies(cookies); err != nil {
			m.cfg.Logger.Warn("browser: set cookies failed", "error", err)
		}
	}

	if opts.StorageStatePath != "" {
		if b, err := os.ReadFile(opts.StorageStatePath); err == nil {
			if err := restoreStorageState(page, b); err != nil {
				m.cfg.Logger.Warn("browser: restore storage state failed", "error", err)
			}
		}
	}

	if len(opts.BlockResources) > 0 {
		if err := applyResourceBlocking(page, opts.BlockResources); err != nil {
			m.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return c, nil
}

// Page returns the facade Page for this context.
func (c *Context) Page() Page {
	return &rodPage{page: c.page}
}

// SaveStorageState persists cookies and local storage for a persistSession
// watch to the given path, following the session directory convention.
func (c *Context) SaveStorageState(path string) error {
	return saveStorageState(c.page, path)
}

// Close releases the page and its incognito context.
func (c *Context) Close() error {
	if c.page != nil {
		c.page.Close()
	}
	if c.incognito != nil {
		return c.incognito.Close()
	}
	return nil
}
