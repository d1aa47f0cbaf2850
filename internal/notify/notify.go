// Package notify implements the notification router: per-watch and
// global transport resolution, throttling, default message rendering, and
// the messageTemplate placeholder language.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/webwatch/internal/comparator"
	"github.com/hazyhaar/webwatch/internal/config"
)

// ChangeEvent is the payload handed to NotifyChange after the runner detects
// at least one changed field.
type ChangeEvent struct {
	Watch     *config.WatchConfig
	Changes   []comparator.Change
	Current   map[string]interface{}
	Previous  map[string]interface{}
	Timestamp time.Time
}

// ErrorEvent is the payload handed to NotifyError once a watch's consecutive
// failure count crosses ErrorThreshold.
type ErrorEvent struct {
	Watch     *config.WatchConfig
	Err       error
	FailCount int
	Timestamp time.Time
}

// Router dispatches change and error notifications to the channels declared
// on a watch, or the globally configured transports when a watch declares
// none, throttling each independently per watch.
type Router struct {
	httpClient *http.Client
	sanitizer  *bluemonday.Policy
	settings   *config.Settings
	throttle   time.Duration

	mu           sync.Mutex
	lastChangeAt map[string]time.Time
	lastErrorAt  map[string]time.Time
}

func NewRouter(settings *config.Settings) *Router {
	return &Router{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		sanitizer:    bluemonday.StrictPolicy(),
		settings:     settings,
		throttle:     time.Duration(settings.NotificationThrottleMs) * time.Millisecond,
		lastChangeAt: make(map[string]time.Time),
		lastErrorAt:  make(map[string]time.Time),
	}
}

// NotifyChange renders and sends a change notification, applying the
// per-watch change throttle. A throttled event is silently dropped. The
// throttle timestamp only advances when a transport actually accepts the
// message; a fully failed dispatch leaves it untouched so the next real
// attempt isn't throttled away too.
func (r *Router) NotifyChange(ctx context.Context, ev ChangeEvent) error {
	if r.throttled(ev.Watch.WatchID(), ev.Timestamp, false) {
		return nil
	}
	sent, err := r.dispatch(ctx, ev.Watch, renderChangeMessage(ev.Watch, ev))
	if sent {
		r.markSent(ev.Watch.WatchID(), ev.Timestamp, false)
	}
	return err
}

// NotifyError renders and sends an error notification, applying the
// per-watch error throttle independently of the change throttle. The caller
// is responsible for only invoking this once FailCount crosses
// Watch.ErrorThreshold.
func (r *Router) NotifyError(ctx context.Context, ev ErrorEvent) error {
	if !ev.Watch.NotifyOnError {
		return nil
	}
	if r.throttled(ev.Watch.WatchID(), ev.Timestamp, true) {
		return nil
	}
	sent, err := r.dispatch(ctx, ev.Watch, renderErrorMessage(ev.Watch, ev))
	if sent {
		r.markSent(ev.Watch.WatchID(), ev.Timestamp, true)
	}
	return err
}

func (r *Router) throttled(watchID string, at time.Time, isError bool) bool {
	if r.throttle <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.lastChangeAt
	if isError {
		table = r.lastErrorAt
	}
	last, ok := table[watchID]
	return ok && at.Sub(last) < r.throttle
}

func (r *Router) markSent(watchID string, at time.Time, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table := r.lastChangeAt
	if isError {
		table = r.lastErrorAt
	}
	table[watchID] = at
}

// dispatch sends message to every channel declared on watch (or the global
// default channels), returning whether at least one transport accepted it
// alongside the first error encountered, if any.
func (r *Router) dispatch(ctx context.Context, watch *config.WatchConfig, message string) (bool, error) {
	channels := watch.Notifications
	if len(channels) == 0 {
		channels = r.defaultChannels()
	}
	if len(channels) == 0 {
		return false, fmt.Errorf("notify: no channels configured for watch %s", watch.WatchID())
	}

	var firstErr error
	sent := false
	for _, ch := range channels {
		if err := r.send(ctx, ch, watch, message); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("notify: %s: %w", ch.ResolvedType(), err)
			}
			continue
		}
		sent = true
	}
	return sent, firstErr
}

func (r *Router) defaultChannels() []config.NotificationChannel {
	var out []config.NotificationChannel
	if r.settings.TelegramBotToken != "" && r.settings.TelegramChatID != "" {
		out = append(out, config.NotificationChannel{Type: "telegram"})
	}
	if r.settings.NtfyURL != "" {
		out = append(out, config.NotificationChannel{Type: "ntfy"})
	}
	if r.settings.WebhookURL != "" {
		out = append(out, config.NotificationChannel{Type: "webhook"})
	}
	return out
}

func (r *Router) send(ctx context.Context, ch config.NotificationChannel, watch *config.WatchConfig, message string) error {
	switch ch.ResolvedType() {
	case "telegram":
		return r.sendTelegram(ctx, ch, message)
	case "ntfy":
		return r.sendNtfy(ctx, ch, watch, message)
	case "webhook":
		return r.sendWebhook(ctx, ch, watch, message)
	default:
		return fmt.Errorf("unknown channel type %q", ch.ResolvedType())
	}
}

func (r *Router) sendTelegram(ctx context.Context, ch config.NotificationChannel, message string) error {
	token := r.settings.TelegramBotToken
	chatID := r.settings.TelegramChatID
	preview := false
	if ch.Telegram != nil {
		if ch.Telegram.BotToken != "" {
			token = ch.Telegram.BotToken
		}
		if ch.Telegram.ChatID != "" {
			chatID = ch.Telegram.ChatID
		}
		preview = ch.Telegram.EnablePreview
	}
	if token == "" || chatID == "" {
		return fmt.Errorf("telegram channel missing bot token or chat id")
	}

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":               chatID,
		"text":                  message,
		"disable_web_page_preview": !preview,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token)
	return r.postJSON(ctx, url, nil, body)
}

func (r *Router) sendNtfy(ctx context.Context, ch config.NotificationChannel, watch *config.WatchConfig, message string) error {
	url := r.settings.NtfyURL
	title := watch.Name
	var priority, tags string
	if ch.Ntfy != nil {
		if ch.Ntfy.URL != "" {
			url = ch.Ntfy.URL
		}
		if ch.Ntfy.Title != "" {
			title = ch.Ntfy.Title
		}
		priority = ch.Ntfy.Priority
		tags = ch.Ntfy.Tags
	}
	if url == "" {
		return fmt.Errorf("ntfy channel missing url")
	}

	body := r.sanitizer.Sanitize(message)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	if title != "" {
		req.Header.Set("Title", title)
	}
	if priority != "" {
		req.Header.Set("Priority", priority)
	}
	if tags != "" {
		req.Header.Set("Tags", tags)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

func (r *Router) sendWebhook(ctx context.Context, ch config.NotificationChannel, watch *config.WatchConfig, message string) error {
	url := r.settings.WebhookURL
	headers := map[string]string{}
	if ch.Webhook != nil {
		if ch.Webhook.URL != "" {
			url = ch.Webhook.URL
		}
		for k, v := range ch.Webhook.Headers {
			headers[k] = v
		}
	}
	if url == "" {
		return fmt.Errorf("webhook channel missing url")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"watch":     watch.Name,
		"id":        watch.WatchID(),
		"url":       watch.URL,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return r.postJSON(ctx, url, headers, payload)
}

func (r *Router) postJSON(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
