// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/safetybot/internal/logging"
)

// Telegram limits.
const (
	telegramMaxText    = 4096
	telegramMaxCaption = 1024
)

// TelegramConfig configures the Telegram Bot API channel.
type TelegramConfig struct {
	BotToken       string
	ChatID         string
	BaseURL        string        // default https://api.telegram.org
	Timeout        time.Duration // text requests, default 30s
	UploadTimeout  time.Duration // video and document uploads, default 5m
	MessagesPerSec float64       // default 1
	HTTPClient     *http.Client
}

// TelegramChannel implements Channel over the Telegram Bot API.
type TelegramChannel struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegramChannel validates cfg and creates the channel.
func NewTelegramChannel(cfg TelegramConfig) (*TelegramChannel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	if cfg.MessagesPerSec <= 0 {
		cfg.MessagesPerSec = 1
	}
	client := cfg.HTTPClient
	if client == nil {
		// Per-request deadlines come from the context; getUpdates long-polls.
		client = &http.Client{}
	}
	return &TelegramChannel{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSec), 1),
		logger:  logging.With().Str("component", "telegram").Logger(),
	}, nil
}

// Validate checks the bot token format (numbers:alphanumeric) and chat id.
func (c TelegramConfig) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.ChatID == "" {
		return fmt.Errorf("telegram chat ID is required")
	}
	parts := strings.Split(c.BotToken, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return fmt.Errorf("invalid telegram bot token format")
	}
	return nil
}

// Name implements Channel.
func (c *TelegramChannel) Name() string {
	return "telegram"
}

// ChatID returns the configured destination chat.
func (c *TelegramChannel) ChatID() string {
	return c.cfg.ChatID
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// telegramAPIResponse is the Bot API response envelope.
type telegramAPIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *telegramParameters `json:"parameters,omitempty"`
}

type telegramParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// SendText implements Channel.
func (c *TelegramChannel) SendText(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                c.cfg.ChatID,
		Text:                  truncateRunes(text, telegramMaxText),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return newSendError(ErrorCodeInvalidRequest, 0, "marshal payload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	_, err = c.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload))
	return err
}

// SendVideo implements Channel. The file is streamed, not buffered.
func (c *TelegramChannel) SendVideo(ctx context.Context, caption, path string) error {
	return c.sendFile(ctx, "sendVideo", "video", caption, path, map[string]string{"supports_streaming": "true"})
}

// SendPhoto implements Channel.
func (c *TelegramChannel) SendPhoto(ctx context.Context, caption, path string) error {
	return c.sendFile(ctx, "sendPhoto", "photo", caption, path, nil)
}

func (c *TelegramChannel) sendFile(ctx context.Context, method, field, caption, path string, extra map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return newSendError(ErrorCodeInvalidRequest, 0, "open "+field, err)
	}
	defer f.Close()

	fields := map[string]string{
		"chat_id": c.cfg.ChatID,
		"caption": truncateRunes(caption, telegramMaxCaption),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return c.upload(ctx, method, field, filepath.Base(path), f, fields)
}

// SendDocument implements Channel.
func (c *TelegramChannel) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	fields := map[string]string{
		"chat_id": c.cfg.ChatID,
		"caption": truncateRunes(caption, telegramMaxCaption),
	}
	return c.upload(ctx, "sendDocument", "document", filename, bytes.NewReader(data), fields)
}

func (c *TelegramChannel) upload(ctx context.Context, method, field, filename string, content io.Reader, fields map[string]string) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, field, filename, content))
	}()
	defer pr.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()
	_, err := c.call(ctx, method, mw.FormDataContentType(), pr)
	return err
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, field, filename string, content io.Reader) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

// Ping implements Channel using getMe.
func (c *TelegramChannel) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	_, err := c.call(ctx, "getMe", "", nil)
	return err
}

// Update is an incoming Bot API update.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message,omitempty"`
}

// IncomingMessage is the subset of a Bot API message used for commands.
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// GetUpdates long-polls for updates after offset.
func (c *TelegramChannel) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(wait/time.Second)))
	q.Set("allowed_updates", `["message"]`)

	ctx, cancel := context.WithTimeout(ctx, wait+c.cfg.Timeout)
	defer cancel()
	raw, err := c.call(ctx, "getUpdates?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, newSendError(ErrorCodeUnknown, 0, "decode updates", err)
	}
	return updates, nil
}

// call performs one Bot API request and returns the result payload. A nil
// body issues a GET.
func (c *TelegramChannel) call(ctx context.Context, method, contentType string, body io.Reader) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newSendError(ErrorCodeTimeout, 0, "rate limiter", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.cfg.BaseURL, c.cfg.BotToken, method)
	httpMethod := http.MethodPost
	if body == nil {
		httpMethod = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, body)
	if err != nil {
		return nil, newSendError(ErrorCodeInvalidRequest, 0, "create request", redactToken(err, c.cfg.BotToken))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		code := classifyTransportError(err)
		return nil, newSendError(code, 0, "", redactToken(err, c.cfg.BotToken))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newSendError(ErrorCodeConnectionFailed, resp.StatusCode, "read response", err)
	}

	var apiResp telegramAPIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		code := classifyHTTPStatusCode(resp.StatusCode)
		if resp.StatusCode == http.StatusOK {
			code = ErrorCodeUnknown
		}
		return nil, newSendError(code, resp.StatusCode, "unparseable response", err)
	}
	if apiResp.OK {
		return apiResp.Result, nil
	}

	status := apiResp.ErrorCode
	if status == 0 {
		status = resp.StatusCode
	}
	se := newSendError(classifyTelegramError(status, apiResp.Description), status, apiResp.Description, nil)
	if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
		se.RetryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	}
	c.logger.Debug().
		Str("method", strings.SplitN(method, "?", 2)[0]).
		Str("error_code", se.Code).
		Int("status", status).
		Msg("telegram API error")
	return nil, se
}

// classifyTelegramError classifies a Telegram error into an error code.
func classifyTelegramError(code int, description string) string {
	desc := strings.ToLower(description)
	switch code {
	case 401, 403:
		return ErrorCodeAuthFailed
	case 400:
		if strings.Contains(desc, "too big") || strings.Contains(desc, "too large") {
			return ErrorCodeContentTooLarge
		}
		return ErrorCodeInvalidRequest
	case 413:
		return ErrorCodeContentTooLarge
	case 429:
		return ErrorCodeRateLimited
	default:
		if code >= 500 {
			return ErrorCodeServerError
		}
		return ErrorCodeUnknown
	}
}

// redactToken strips the bot token from transport errors, which embed the
// request URL.
func redactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
