// Package messenger sends replies through a Z-API compatible WhatsApp HTTP API.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/metrics"
	"github.com/xaenox/wa-assistant-bridge/internal/phone"
)

const maxErrorBody = 4096

// DeliveryError carries the provider's answer to a rejected send.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return "messenger: delivery failed: " + e.Err.Error()
	}
	return fmt.Sprintf("messenger: delivery failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Receipt is the provider's acknowledgement of an accepted message.
type Receipt struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}

type Config struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
	// DelayTyping and DelayMessage are whole seconds, 0 to leave the provider default.
	DelayTyping  int
	DelayMessage int
	Timeout      time.Duration
}

type Messenger struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Messenger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Messenger{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("messenger"),
	}
}

type sendTextRequest struct {
	Phone        string `json:"phone"`
	Message      string `json:"message"`
	DelayTyping  int    `json:"delayTyping,omitempty"`
	DelayMessage int    `json:"delayMessage,omitempty"`
}

// SendText delivers one text message. It does not retry: a failed send
// surfaces as *DeliveryError and redelivery is left to the caller.
func (m *Messenger) SendText(ctx context.Context, to, text string) (*Receipt, error) {
	body, err := json.Marshal(sendTextRequest{
		Phone:        phone.Normalize(to),
		Message:      text,
		DelayTyping:  m.cfg.DelayTyping,
		DelayMessage: m.cfg.DelayMessage,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s/send-text", m.cfg.BaseURL, m.cfg.InstanceID, m.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.ClientToken != "" {
		req.Header.Set("Client-Token", m.cfg.ClientToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		metrics.OutboundMessages.WithLabelValues("transport_error").Inc()
		return nil, &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 300 {
		metrics.OutboundMessages.WithLabelValues("rejected").Inc()
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var receipt Receipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		// The message was accepted; an unreadable receipt is not a delivery failure.
		m.logger.Warn("Failed to decode send receipt",
			zap.Error(err),
			zap.Int("status", resp.StatusCode))
	}

	metrics.OutboundMessages.WithLabelValues("sent").Inc()
	m.logger.Debug("Message sent",
		zap.String("phone", to),
		zap.String("message_id", receipt.MessageID))
	return &receipt, nil
}
