// Package config loads and validates watch documents: the declarative
// per-page monitoring rules webwatch reads from CONFIG_DIR and hot-reloads
// on a timer. It also carries the optional process-wide settings file that
// supplies defaults for webwatch's environment variables.
package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Viewport is the browser viewport size for a watch's browser context.
type Viewport struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Cookie is pre-added to the browser context before navigation.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// ProxyConfig overrides the process-wide proxy for a single watch.
type ProxyConfig struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ConditionConfig is the `if` clause on an action.
type ConditionConfig struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Variable string `json:"variable,omitempty"`
	Script   string `json:"script,omitempty"`
}

// ActionConfig is one step of a watch's action script. Fields not
// used by a given Type are left zero; the action engine dispatches on Type
// and reads only the fields its variant needs.
type ActionConfig struct {
	Type     string           `json:"type"`
	Selector string           `json:"selector,omitempty"`
	Value    string           `json:"value,omitempty"`
	Key      string           `json:"key,omitempty"`
	X        int              `json:"x,omitempty"`
	Y        int              `json:"y,omitempty"`
	Script   string           `json:"script,omitempty"`
	Variable string           `json:"variable,omitempty"`

	// login composite action; any field may be omitted.
	UsernameSelector string `json:"usernameSelector,omitempty"`
	Username         string `json:"username,omitempty"`
	PasswordSelector string `json:"passwordSelector,omitempty"`
	Password         string `json:"password,omitempty"`
	SubmitSelector   string `json:"submitSelector,omitempty"`

	// screenshot destination; required by the screenshot action.
	Path string `json:"path,omitempty"`

	KeyDelayMs int64            `json:"keyDelayMs,omitempty"` // typeSlowly
	WaitMs     int64            `json:"waitMs,omitempty"`
	TimeoutMs  int64            `json:"timeoutMs,omitempty"`

	If       *ConditionConfig `json:"if,omitempty"`
	Optional bool             `json:"optional,omitempty"`
	Delay    int64            `json:"delay,omitempty"`

	CheckFrames *bool `json:"checkFrames,omitempty"`
}

// ExtractorConfig declares one named value to pull from the loaded page.
// Name and Type are mandatory; Selector is mandatory for every
// type except url, title, evaluate, json, jsonFromScript and screenshot.
type ExtractorConfig struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Selector    string      `json:"selector,omitempty"`
	XPath       bool        `json:"xpath,omitempty"`
	Attribute   string      `json:"attribute,omitempty"`
	Path        string      `json:"path,omitempty"`
	CheckFrames bool        `json:"checkFrames,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Script      string      `json:"script,omitempty"` // evaluate

	Transform  *TransformConfig  `json:"transform,omitempty"`
	Transforms []TransformConfig `json:"transforms,omitempty"`

	Comparator string   `json:"comparator,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// EffectiveTransforms normalises Transform/Transforms into one ordered list.
func (e *ExtractorConfig) EffectiveTransforms() []TransformConfig {
	if len(e.Transforms) > 0 {
		return e.Transforms
	}
	if e.Transform != nil {
		return []TransformConfig{*e.Transform}
	}
	return nil
}

// selectorRequired reports whether the extractor type must carry a Selector.
func selectorRequired(extractorType string) bool {
	switch extractorType {
	case "url", "title", "evaluate", "json", "jsonFromScript", "screenshot":
		return false
	default:
		return true
	}
}

// TelegramChannelConfig is the per-channel override of the global Telegram
// transport settings.
type TelegramChannelConfig struct {
	BotToken       string `json:"botToken,omitempty"`
	ChatID         string `json:"chatId,omitempty"`
	EnablePreview  bool   `json:"enablePreview,omitempty"`
}

// NtfyChannelConfig configures an ntfy topic push.
type NtfyChannelConfig struct {
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Priority string `json:"priority,omitempty"`
	Tags     string `json:"tags,omitempty"`
}

// WebhookChannelConfig configures a generic JSON webhook POST.
type WebhookChannelConfig struct {
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NotificationChannel selects one notification transport, either via an
// explicit Type or by which sub-object is populated.
type NotificationChannel struct {
	Type     string                 `json:"type,omitempty"`
	Telegram *TelegramChannelConfig `json:"telegram,omitempty"`
	Ntfy     *NtfyChannelConfig     `json:"ntfy,omitempty"`
	Webhook  *WebhookChannelConfig  `json:"webhook,omitempty"`
}

// ResolvedType returns the channel's transport name, inferring it from the
// populated sub-object when Type is not set explicitly.
func (c *NotificationChannel) ResolvedType() string {
	if c.Type != "" {
		return c.Type
	}
	switch {
	case c.Telegram != nil:
		return "telegram"
	case c.Ntfy != nil:
		return "ntfy"
	case c.Webhook != nil:
		return "webhook"
	default:
		return ""
	}
}

// WatchConfig is one declarative monitoring rule, one per source document.
type WatchConfig struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled,omitempty"`

	IntervalMs int64  `json:"interval,omitempty"`
	Schedule   string `json:"schedule,omitempty"`

	UserAgent      string            `json:"userAgent,omitempty"`
	Viewport       *Viewport         `json:"viewport,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Cookies        []Cookie          `json:"cookies,omitempty"`
	Proxy          *ProxyConfig      `json:"proxy,omitempty"`
	BlockResources []string          `json:"blockResources,omitempty"`
	PersistSession bool              `json:"persistSession,omitempty"`

	Actions         []ActionConfig    `json:"actions,omitempty"`
	WaitForSelector string            `json:"waitForSelector,omitempty"`
	WaitMs          int64             `json:"waitMs,omitempty"`
	Extractors      []ExtractorConfig `json:"extractors"`
	Comparator      string            `json:"comparator,omitempty"`
	Threshold       float64           `json:"threshold,omitempty"`
	CustomComparator string           `json:"customComparator,omitempty"`

	Retries           int    `json:"retries,omitempty"`
	TimeoutMs         int64  `json:"timeout,omitempty"`
	WaitUntil         string `json:"waitUntil,omitempty"`
	ScreenshotOnError bool   `json:"screenshotOnError,omitempty"`
	NotifyOnError     bool   `json:"notifyOnError,omitempty"`
	ErrorThreshold    int    `json:"errorThreshold,omitempty"`

	Notifications   []NotificationChannel `json:"notifications,omitempty"`
	MessageTemplate string                `json:"messageTemplate,omitempty"`

	// Internal-only bookkeeping, never read back from the source document.
	SourceFile  string `json:"-"`
	ContentHash string `json:"-"`
}

// IsEnabled defaults to true when the field is absent from the document.
func (w *WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// WatchID returns the configured id, or an 8-hex-prefix of MD5(url) when
// none was supplied. Stable across restarts as long as the url doesn't
// change.
func (w *WatchConfig) WatchID() string {
	if w.ID != "" {
		return w.ID
	}
	sum := md5.Sum([]byte(w.URL))
	return hex.EncodeToString(sum[:])[:8]
}

// computeContentHash returns MD5(JSON) of the watch document's exported
// fields, excluding the internal bookkeeping fields (already tagged json:"-"
// so they never enter the marshaled form). Used to detect a config document
// changing across hot-reload cycles.
func computeContentHash(w *WatchConfig) (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("config: hash: %w", err)
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// Validate enforces the config-invalid cases: missing url, empty
// extractors, a selector-requiring extractor missing name/type/selector, or
// both schedule and interval set.
func (w *WatchConfig) Validate(file string) error {
	if w.URL == "" {
		return &InvalidError{File: file, WatchID: w.WatchID(), Field: "url", Reason: "missing"}
	}
	if w.Schedule != "" && w.IntervalMs != 0 {
		return &InvalidError{File: file, WatchID: w.WatchID(), Field: "schedule/interval", Reason: "mutually exclusive, both set"}
	}
	if len(w.Extractors) == 0 {
		return &InvalidError{File: file, WatchID: w.WatchID(), Field: "extractors", Reason: "empty"}
	}
	for i, e := range w.Extractors {
		if e.Name == "" {
			return &InvalidError{File: file, WatchID: w.WatchID(), Field: fmt.Sprintf("extractors[%d].name", i), Reason: "missing"}
		}
		if e.Type == "" {
			return &InvalidError{File: file, WatchID: w.WatchID(), Field: fmt.Sprintf("extractors[%d].type", i), Reason: "missing"}
		}
		if selectorRequired(e.Type) && e.Selector == "" {
			return &InvalidError{File: file, WatchID: w.WatchID(), Field: fmt.Sprintf("extractors[%d].selector", i), Reason: fmt.Sprintf("required for type %q", e.Type)}
		}
	}
	return nil
}

// finalize assigns derived fields (watch id stability, content hash) after
// Validate has passed.
func (w *WatchConfig) finalize(file string) error {
	w.SourceFile = file
	w.ID = w.WatchID()
	hash, err := computeContentHash(w)
	if err != nil {
		return err
	}
	w.ContentHash = hash
	return nil
}
