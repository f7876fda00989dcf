package chat

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

// WebhookSender talks to the chat gateway over HTTP:
// POST {base}/send, {base}/edit and {base}/delete with JSON bodies.
type WebhookSender struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewWebhookSender(baseURL, token string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type gatewayRequest struct {
	ChatID    int64      `json:"chat_id"`
	MessageID int64      `json:"message_id,omitempty"`
	Text      string     `json:"text,omitempty"`
	Keyboard  [][]Button `json:"keyboard,omitempty"`
}

type gatewayResponse struct {
	MessageID int64  `json:"message_id"`
	Error     string `json:"error"`
}

func (s *WebhookSender) Send(ctx context.Context, chatID int64, msg Message) (int64, error) {
	resp, err := s.call(ctx, "send", gatewayRequest{ChatID: chatID, Text: msg.Text, Keyboard: msg.Keyboard})
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

func (s *WebhookSender) Edit(ctx context.Context, chatID, messageID int64, msg Message) error {
	_, err := s.call(ctx, "edit", gatewayRequest{ChatID: chatID, MessageID: messageID, Text: msg.Text, Keyboard: msg.Keyboard})
	return err
}

func (s *WebhookSender) Delete(ctx context.Context, chatID, messageID int64) error {
	_, err := s.call(ctx, "delete", gatewayRequest{ChatID: chatID, MessageID: messageID})
	return err
}

func (s *WebhookSender) call(ctx context.Context, op string, body gatewayRequest) (*gatewayResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", op, err)
	}

	var out gatewayResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil && res.StatusCode < 300 {
			return nil, fmt.Errorf("gateway %s: invalid response: %w", op, err)
		}
	}
	if res.StatusCode >= 300 {
		if out.Error == "" {
			out.Error = http.StatusText(res.StatusCode)
		}
		return nil, fmt.Errorf("gateway %s: status %d: %s", op, res.StatusCode, out.Error)
	}
	return &out, nil
}
