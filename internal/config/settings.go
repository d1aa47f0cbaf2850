package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings is the process-wide configuration surface. Values are resolved in
// two layers: an optional YAML settings file, at the path the caller passes
// in (cmd/webwatch's -settings flag), supplies defaults, and
// environment variables override them when set — the environment never gets
// weakened by the settings file, only pre-filled.
type Settings struct {
	ConfigDir     string `yaml:"configDir"`
	StateDir      string `yaml:"stateDir"`
	ScreenshotDir string `yaml:"screenshotDir"`
	SessionDir    string `yaml:"sessionDir"`

	CheckIntervalMs        int64 `yaml:"checkIntervalMs"`
	HealthPort             int   `yaml:"healthPort"`
	MaxRetries             int   `yaml:"maxRetries"`
	RetryBaseDelayMs       int64 `yaml:"retryBaseDelayMs"`
	StaggerDelayMs         int64 `yaml:"staggerDelayMs"`
	NotificationThrottleMs int64 `yaml:"notificationThrottleMs"`
	ErrorNotifyThreshold   int   `yaml:"errorNotifyThreshold"`
	HistoryMaxRows         int   `yaml:"historyMaxRows"`

	ProxyServer   string `yaml:"proxyServer"`
	ProxyUsername string `yaml:"proxyUsername"`
	ProxyPassword string `yaml:"proxyPassword"`

	TelegramBotToken string `yaml:"telegramBotToken"`
	TelegramChatID   string `yaml:"telegramChatId"`
	NtfyURL          string `yaml:"ntfyUrl"`
	WebhookURL       string `yaml:"webhookUrl"`

	StatusPasswordHash string `yaml:"statusPasswordHash"`
}

// Defaults returns the baked-in default Settings.
func Defaults() Settings {
	return Settings{
		ConfigDir:              "./config",
		StateDir:               "./state",
		ScreenshotDir:          "./screenshots",
		SessionDir:             "./sessions",
		CheckIntervalMs:        300_000,
		HealthPort:             8080,
		MaxRetries:             3,
		RetryBaseDelayMs:       5_000,
		StaggerDelayMs:         2_000,
		NotificationThrottleMs: 60_000,
		ErrorNotifyThreshold:   3,
		HistoryMaxRows:         200,
	}
}

// LoadSettingsFile reads an optional YAML settings document. A missing file
// is not an error — it just means no file-level defaults are supplied.
func LoadSettingsFile(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, &ParseError{File: path, Cause: err}
	}
	return &s, nil
}

// LoadSettings builds the effective Settings: Defaults(), overlaid by the
// optional settings file, overlaid by environment variables that are set.
func LoadSettings(settingsFilePath string) (*Settings, error) {
	s := Defaults()

	file, err := LoadSettingsFile(settingsFilePath)
	if err != nil {
		return nil, err
	}
	if file != nil {
		s = mergeSettings(s, *file)
	}

	applyEnv(&s)
	return &s, nil
}

func mergeSettings(base, override Settings) Settings {
	if override.ConfigDir != "" {
		base.ConfigDir = override.ConfigDir
	}
	if override.StateDir != "" {
		base.StateDir = override.StateDir
	}
	if override.ScreenshotDir != "" {
		base.ScreenshotDir = override.ScreenshotDir
	}
	if override.SessionDir != "" {
		base.SessionDir = override.SessionDir
	}
	if override.CheckIntervalMs != 0 {
		base.CheckIntervalMs = override.CheckIntervalMs
	}
	if override.HealthPort != 0 {
		base.HealthPort = override.HealthPort
	}
	if override.MaxRetries != 0 {
		base.MaxRetries = override.MaxRetries
	}
	if override.RetryBaseDelayMs != 0 {
		base.RetryBaseDelayMs = override.RetryBaseDelayMs
	}
	if override.StaggerDelayMs != 0 {
		base.StaggerDelayMs = override.StaggerDelayMs
	}
	if override.NotificationThrottleMs != 0 {
		base.NotificationThrottleMs = override.NotificationThrottleMs
	}
	if override.ErrorNotifyThreshold != 0 {
		base.ErrorNotifyThreshold = override.ErrorNotifyThreshold
	}
	if override.HistoryMaxRows != 0 {
		base.HistoryMaxRows = override.HistoryMaxRows
	}
	if override.ProxyServer != "" {
		base.ProxyServer = override.ProxyServer
	}
	if override.ProxyUsername != "" {
		base.ProxyUsername = override.ProxyUsername
	}
	if override.ProxyPassword != "" {
		base.ProxyPassword = override.ProxyPassword
	}
	if override.TelegramBotToken != "" {
		base.TelegramBotToken = override.TelegramBotToken
	}
	if override.TelegramChatID != "" {
		base.TelegramChatID = override.TelegramChatID
	}
	if override.NtfyURL != "" {
		base.NtfyURL = override.NtfyURL
	}
	if override.WebhookURL != "" {
		base.WebhookURL = override.WebhookURL
	}
	if override.StatusPasswordHash != "" {
		base.StatusPasswordHash = override.StatusPasswordHash
	}
	return base
}

func applyEnv(s *Settings) {
	if v := os.Getenv("CONFIG_DIR"); v != "" {
		s.ConfigDir = v
	}
	if v := os.Getenv("STATE_DIR"); v != "" {
		s.StateDir = v
	}
	if v := os.Getenv("SCREENSHOT_DIR"); v != "" {
		s.ScreenshotDir = v
	}
	if v := os.Getenv("SESSION_DIR"); v != "" {
		s.SessionDir = v
	}
	envInt64(&s.CheckIntervalMs, "CHECK_INTERVAL_MS")
	envInt(&s.HealthPort, "HEALTH_PORT")
	envInt(&s.MaxRetries, "MAX_RETRIES")
	envInt64(&s.RetryBaseDelayMs, "RETRY_BASE_DELAY_MS")
	envInt64(&s.StaggerDelayMs, "STAGGER_DELAY_MS")
	envInt64(&s.NotificationThrottleMs, "NOTIFICATION_THROTTLE_MS")
	envInt(&s.ErrorNotifyThreshold, "ERROR_NOTIFY_THRESHOLD")
	envInt(&s.HistoryMaxRows, "HISTORY_MAX_ROWS")

	if v := os.Getenv("PROXY_SERVER"); v != "" {
		s.ProxyServer = v
	}
	if v := os.Getenv("PROXY_USERNAME"); v != "" {
		s.ProxyUsername = v
	}
	if v := os.Getenv("PROXY_PASSWORD"); v != "" {
		s.ProxyPassword = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		s.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		s.TelegramChatID = v
	}
	if v := os.Getenv("NTFY_URL"); v != "" {
		s.NtfyURL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		s.WebhookURL = v
	}
	if v := os.Getenv("STATUS_PASSWORD_HASH"); v != "" {
		s.StatusPasswordHash = v
	}
}

func envInt64(dst *int64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err == nil {
		*dst = n
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err == nil {
		*dst = n
	}
}
