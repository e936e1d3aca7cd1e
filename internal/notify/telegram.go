// Package notify доставляет сообщения пользователям и администраторам.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIURL содержит адрес Bot API по умолчанию.
const DefaultAPIURL = "https://api.telegram.org"

// ErrNotConfigured возвращается, если не задан токен бота.
var ErrNotConfigured = errors.New("telegram notifier not configured")

// RateLimitError возвращается, когда Bot API просит повторить запрос позже.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("telegram rate limit, retry after %s", e.RetryAfter)
}

// TelegramNotifier отправляет сообщения через метод sendMessage Bot API.
type TelegramNotifier struct {
	baseURL    string
	token      string
	adminIDs   []int64
	httpClient *http.Client
	logger     *zap.Logger
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// NewTelegramNotifier создаёт клиент Bot API. Пустой apiURL заменяется на DefaultAPIURL.
func NewTelegramNotifier(apiURL, token string, adminIDs []int64, logger *zap.Logger) *TelegramNotifier {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramNotifier{
		baseURL:  strings.TrimRight(apiURL, "/"),
		token:    token,
		adminIDs: adminIDs,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NotifyUser отправляет сообщение пользователю.
func (n *TelegramNotifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	return n.send(ctx, userID, text)
}

// NotifyAdmins отправляет сообщение каждому администратору. Ошибка доставки
// одному администратору не мешает остальным; ошибки объединяются.
func (n *TelegramNotifier) NotifyAdmins(ctx context.Context, text string) error {
	var errs []error
	for _, id := range n.adminIDs {
		if err := n.send(ctx, id, text); err != nil {
			errs = append(errs, fmt.Errorf("admin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) send(ctx context.Context, chatID int64, text string) error {
	if n == nil || n.token == "" {
		return ErrNotConfigured
	}

	base := n.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, n.token)

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		// В тексте ошибки клиента есть URL с токеном.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		if retryAfter == 0 && decodeErr == nil && result.Parameters != nil {
			retryAfter = time.Duration(result.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !result.OK {
		return fmt.Errorf("telegram error: %s", result.Description)
	}

	n.logger.Debug("message sent", zap.Int64("chat_id", chatID))
	return nil
}
