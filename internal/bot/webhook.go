package bot

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/metrics"
	"github.com/xaenox/wa-assistant-bridge/internal/models"
)

const (
	receivedCallbackType = "ReceivedCallback"
	receivedStatus       = "RECEIVED"
	maxWebhookBody       = 1 << 20
)

// webhookPayload is the subset of the messaging platform's received-message
// callback the pipeline reads.
type webhookPayload struct {
	Type         string `json:"type"`
	FromMe       bool   `json:"fromMe"`
	Status       string `json:"status"`
	IsGroup      bool   `json:"isGroup"`
	IsNewsletter bool   `json:"isNewsletter"`
	Broadcast    bool   `json:"broadcast"`
	Phone        string `json:"phone"`
	MessageID    string `json:"messageId"`
	Momment      int64  `json:"momment"`
	InstanceID   string `json:"instanceId"`
	SenderName   string `json:"senderName"`
	Text         *struct {
		Message string `json:"message"`
	} `json:"text"`
}

// inbound validates the payload and returns the message, or a non-empty
// reason why it should be acknowledged and ignored.
func (b *Bot) inbound(p webhookPayload) (models.InboundMessage, string) {
	switch {
	case p.Type != receivedCallbackType:
		return models.InboundMessage{}, "not_a_received_message"
	case p.FromMe:
		return models.InboundMessage{}, "from_me"
	case !strings.EqualFold(p.Status, receivedStatus):
		return models.InboundMessage{}, "not_received_status"
	case p.IsGroup:
		return models.InboundMessage{}, "group"
	case p.IsNewsletter:
		return models.InboundMessage{}, "newsletter"
	case p.Broadcast:
		return models.InboundMessage{}, "broadcast"
	case strings.TrimSpace(p.Phone) == "":
		return models.InboundMessage{}, "missing_phone"
	case p.Text == nil || strings.TrimSpace(p.Text.Message) == "":
		return models.InboundMessage{}, "not_text"
	case b.opts.InstanceID != "" && p.InstanceID != b.opts.InstanceID:
		return models.InboundMessage{}, "foreign_instance"
	}

	receivedAt := b.now()
	if p.Momment > 0 {
		receivedAt = time.UnixMilli(p.Momment)
		if b.opts.MaxMessageAge > 0 && b.now().Sub(receivedAt) > b.opts.MaxMessageAge {
			return models.InboundMessage{}, "stale"
		}
	}

	return models.InboundMessage{
		Phone:      strings.TrimSpace(p.Phone),
		Text:       strings.TrimSpace(p.Text.Message),
		MessageID:  p.MessageID,
		SenderName: p.SenderName,
		InstanceID: p.InstanceID,
		ReceivedAt: receivedAt,
	}, ""
}

type webhookResponse struct {
	Status             string  `json:"status"`
	Reason             string  `json:"reason,omitempty"`
	CustomerID         string  `json:"customer_id,omitempty"`
	PsychologyTopic    *string `json:"psychology_topic,omitempty"`
	IdentifiedCourseID *string `json:"identified_course_id,omitempty"`
	OutOfScope         bool    `json:"out_of_scope"`
	RunOutcome         string  `json:"run_outcome,omitempty"`
	Fallback           bool    `json:"fallback"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleWebhook acknowledges every well-formed callback with 200 unless the
// reply could not be delivered, so the platform only redelivers when that helps.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: "only POST is accepted"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty_body", Message: "request body is required"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json", Message: err.Error()})
		return
	}

	msg, reason := b.inbound(payload)
	if reason != "" {
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		b.logger.Debug("Webhook ignored",
			zap.String("reason", reason),
			zap.String("message_id", payload.MessageID))
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: reason})
		return
	}

	result, err := b.Process(r.Context(), msg)
	switch {
	case errors.Is(err, ErrDeliveryFailed):
		metrics.WebhookRequests.WithLabelValues("delivery_failed").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "delivery_failed", Message: err.Error()})
		return
	case err != nil:
		metrics.WebhookRequests.WithLabelValues("lookup_failed").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup_failed", Message: err.Error()})
		return
	}

	metrics.WebhookRequests.WithLabelValues(result.Status).Inc()
	writeJSON(w, http.StatusOK, webhookResponse{
		Status:             result.Status,
		CustomerID:         result.CustomerID,
		PsychologyTopic:    result.Response.PsychologyTopic,
		IdentifiedCourseID: result.Response.IdentifiedCourseID,
		OutOfScope:         result.Response.OutOfScope,
		RunOutcome:         result.RunOutcome,
		Fallback:           result.Fallback,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
