package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/assistant"
	"github.com/xaenox/wa-assistant-bridge/internal/classifier"
	"github.com/xaenox/wa-assistant-bridge/internal/directory"
	"github.com/xaenox/wa-assistant-bridge/internal/messenger"
	"github.com/xaenox/wa-assistant-bridge/internal/models"
)

var (
	// ErrDeliveryFailed is the one pipeline failure reported upstream so the
	// messaging platform redelivers the webhook.
	ErrDeliveryFailed = errors.New("reply delivery failed")
	ErrLookupFailed   = errors.New("customer lookup failed")
)

// Run outcomes recorded when the assistant was never reached.
const (
	outcomeThreadUnavailable = "thread_unavailable"
)

type CustomerDirectory interface {
	FindByPhone(ctx context.Context, rawPhone string) (*models.Customer, error)
	IsAuthorized(c *models.Customer) bool
	TouchLastSeen(ctx context.Context, customerID string)
}

type ThreadStore interface {
	GetOrCreate(ctx context.Context, customerID string) (string, error)
	Reset(ctx context.Context, customerID string) (string, error)
	MarkUsed(ctx context.Context, customerID string)
}

type Assistant interface {
	Run(ctx context.Context, threadID, text string) (*assistant.RunResult, error)
}

type ResponseInterpreter interface {
	Interpret(raw, original string) (models.AssistantResponse, classifier.Path)
}

type Messenger interface {
	SendText(ctx context.Context, phone, text string) (*messenger.Receipt, error)
}

type InteractionLogger interface {
	Record(entry models.InteractionLog) bool
}

// Deps are the collaborators of the pipeline, all required.
type Deps struct {
	Directory    CustomerDirectory
	Threads      ThreadStore
	Assistant    Assistant
	Interpreter  ResponseInterpreter
	Messenger    Messenger
	Interactions InteractionLogger
}

type Options struct {
	DenialMessage string
	// InstanceID, when set, must match the webhook's origin instance.
	InstanceID    string
	MaxMessageAge time.Duration
	StepTimeout   time.Duration
	AdminToken    string
}

type Bot struct {
	Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps, opts Options, logger *zap.Logger) *Bot {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 8 * time.Second
	}
	return &Bot{
		Deps:   deps,
		opts:   opts,
		logger: logger.Named("bot"),
		now:    time.Now,
	}
}

// Result summarizes one processed message.
type Result struct {
	Status     string
	CustomerID string
	Response   models.AssistantResponse
	RunOutcome string
	Fallback   bool
}

const (
	statusProcessed = "processed"
	statusDenied    = "denied"
)

// Process runs one inbound message through the pipeline. Steps are strictly
// sequential. The only errors returned wrap ErrLookupFailed or ErrDeliveryFailed.
func (b *Bot) Process(ctx context.Context, msg models.InboundMessage) (*Result, error) {
	logger := b.logger.With(zap.String("message_id", msg.MessageID), zap.String("phone", msg.Phone))

	customer, err := b.findCustomer(ctx, msg.Phone)
	if err != nil {
		logger.Error("Failed to look up customer", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if customer == nil || !b.Directory.IsAuthorized(customer) {
		return b.deny(ctx, msg, customer, logger)
	}
	logger = logger.With(zap.String("customer_id", customer.ID))

	resp, path, threadID, outcome := b.answer(ctx, customer, msg, logger)
	result := &Result{
		Status:     statusProcessed,
		CustomerID: customer.ID,
		Response:   resp,
		RunOutcome: outcome,
		Fallback:   path == classifier.PathFallback,
	}

	receipt, sendErr := b.Messenger.SendText(ctx, msg.Phone, resp.Reply)

	entry := models.InteractionLog{
		CustomerID: customer.ID,
		Phone:      msg.Phone,
		MessageID:  msg.MessageID,
		InstanceID: msg.InstanceID,
		InputText:  msg.Text,
		OutputText: resp.Reply,
		ThreadID:   threadID,
		RunOutcome: outcome,
		Fallback:   result.Fallback,
		Delivered:  sendErr == nil,
		Response:   resp,
		ReceivedAt: msg.ReceivedAt,
		CreatedAt:  b.now(),
	}
	if sendErr != nil {
		entry.DeliveryError = sendErr.Error()
	} else if receipt != nil {
		entry.ProviderMessageID = receipt.MessageID
	}
	if !b.Interactions.Record(entry) {
		logger.Warn("Interaction log entry dropped")
	}

	touchCtx, cancel := context.WithTimeout(ctx, b.opts.StepTimeout)
	b.Directory.TouchLastSeen(touchCtx, customer.ID)
	cancel()

	if sendErr != nil {
		logger.Error("Failed to deliver reply", zap.Error(sendErr))
		return result, fmt.Errorf("%w: %w", ErrDeliveryFailed, sendErr)
	}

	logger.Info("Message processed",
		zap.String("run_outcome", outcome),
		zap.Bool("fallback", result.Fallback))
	return result, nil
}

func (b *Bot) findCustomer(ctx context.Context, rawPhone string) (*models.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.StepTimeout)
	defer cancel()

	customer, err := b.Directory.FindByPhone(ctx, rawPhone)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil
	}
	return customer, err
}

// deny answers unknown and unauthorized senders with the same fixed text so
// the reply does not reveal which case applied.
func (b *Bot) deny(ctx context.Context, msg models.InboundMessage, customer *models.Customer, logger *zap.Logger) (*Result, error) {
	result := &Result{Status: statusDenied}

	if _, err := b.Messenger.SendText(ctx, msg.Phone, b.opts.DenialMessage); err != nil {
		logger.Error("Failed to deliver denial reply", zap.Error(err))
		return result, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	logger.Info("Access denied", zap.Bool("known_customer", customer != nil))
	return result, nil
}

// answer obtains the reply text. Thread and run failures degrade to the
// interpreter's fallback; they never fail the request.
func (b *Bot) answer(ctx context.Context, customer *models.Customer, msg models.InboundMessage, logger *zap.Logger) (models.AssistantResponse, classifier.Path, string, string) {
	threadCtx, cancel := context.WithTimeout(ctx, b.opts.StepTimeout)
	threadID, err := b.Threads.GetOrCreate(threadCtx, customer.ID)
	cancel()
	if err != nil {
		logger.Error("Failed to obtain thread", zap.Error(err))
		resp, path := b.Interpreter.Interpret("", msg.Text)
		return resp, path, "", outcomeThreadUnavailable
	}

	run, err := b.Assistant.Run(ctx, threadID, msg.Text)
	outcome := string(assistant.OutcomeFailed)
	if run != nil {
		outcome = string(run.Outcome)
	}

	raw := ""
	if err != nil {
		logger.Warn("Assistant run did not complete",
			zap.Error(err),
			zap.String("thread_id", threadID),
			zap.String("run_outcome", outcome),
			zap.Bool("timed_out", errors.Is(err, assistant.ErrRunTimedOut)))
	} else {
		raw = run.Text
		markCtx, cancel := context.WithTimeout(ctx, b.opts.StepTimeout)
		b.Threads.MarkUsed(markCtx, customer.ID)
		cancel()
	}

	resp, path := b.Interpreter.Interpret(raw, msg.Text)
	return resp, path, threadID, outcome
}
