// Package notify delivers outbound messages to a Telegram chat via the Bot
// API. Delivery is best-effort: callers get a typed Result instead of a bare
// error so they can aggregate outcomes without aborting their run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status classifies the outcome of one delivery attempt.
type Status int

const (
	// Delivered means Telegram accepted the message.
	Delivered Status = iota
	// Skipped means the gateway is not configured; nothing was sent.
	Skipped
	// Failed means the send was attempted and did not succeed.
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of one Send or Alert call.
type Result struct {
	Status Status
	Reason string // set when Skipped
	Err    error  // set when Failed
}

// Notifier is the outbound notification gateway.
type Notifier interface {
	// Send delivers a normal notification. The text must already be escaped
	// with Escape where it interpolates user-supplied content.
	Send(ctx context.Context, text string) Result
	// Alert delivers an operator alert, visually distinct from normal
	// notifications.
	Alert(ctx context.Context, text string) Result
}

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegram builds a Telegram notifier. Token and chat id may be empty, in
// which case every send is Skipped.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTelegramWithBase is NewTelegram with an overridable API base URL, used
// by tests.
func NewTelegramWithBase(token, chatID, baseURL string) *Telegram {
	t := NewTelegram(token, chatID)
	t.baseURL = baseURL
	return t
}

func (t *Telegram) Send(ctx context.Context, text string) Result {
	return t.post(ctx, text)
}

func (t *Telegram) Alert(ctx context.Context, text string) Result {
	return t.post(ctx, "🚨 *ALERTA* 🚨\n\n"+text)
}

func (t *Telegram) post(ctx context.Context, text string) Result {
	if t.token == "" || t.chatID == "" {
		return Result{Status: Skipped, Reason: "telegram not configured"}
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return Result{Status: Failed, Err: fmt.Errorf("telegram: marshal payload: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{Status: Failed, Err: fmt.Errorf("telegram: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{Status: Failed, Err: fmt.Errorf("telegram: send: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{Status: Failed, Err: fmt.Errorf("telegram: status %d: %s", resp.StatusCode, body)}
	}

	return Result{Status: Delivered}
}

// markdownReserved is Telegram's MarkdownV2 reserved character set.
const markdownReserved = "_*[]()~`>#+-=|{}.!"

// EscapeLinkURL escapes a URL for use inside the (...) part of a MarkdownV2
// inline link, where only ')' and '\' are reserved.
func EscapeLinkURL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `)`, `\)`)
}

// Escape escapes every MarkdownV2-reserved character in s exactly once.
// Unescaped reserved characters in interpolated text make Telegram reject the
// whole message.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
