// Package assistant drives OpenAI Assistants threads and runs.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/metrics"
)

var (
	// ErrRunFailed covers explicit provider failures and transport errors.
	ErrRunFailed = errors.New("assistant run failed")
	// ErrRunTimedOut means the polling budget ran out before a terminal state.
	ErrRunTimedOut = errors.New("assistant run timed out")
)

// Outcome is the terminal state of one Run call.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

type RunResult struct {
	ThreadID string
	RunID    string
	Outcome  Outcome
	// Status is the last provider status seen, e.g. "expired".
	Status   openai.RunStatus
	Text     string
	Attempts int
	Duration time.Duration
}

// assistantsAPI is the subset of *openai.Client used here.
type assistantsAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	CancelRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
}

type Config struct {
	APIKey          string
	BaseURL         string
	AssistantID     string
	PollInterval    time.Duration
	MaxPollAttempts int
	RequestTimeout  time.Duration
}

type Client struct {
	api             assistantsAPI
	assistantID     string
	pollInterval    time.Duration
	maxPollAttempts int
	requestTimeout  time.Duration
	logger          *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return newClient(openai.NewClientWithConfig(oaCfg), cfg, logger)
}

func newClient(api assistantsAPI, cfg Config, logger *zap.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 30
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 8 * time.Second
	}
	return &Client{
		api:             api,
		assistantID:     cfg.AssistantID,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		requestTimeout:  cfg.RequestTimeout,
		logger:          logger.Named("assistant"),
	}
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// ThreadExists reports whether the provider still knows the thread. A 404 is
// (false, nil); any other failure is returned as an error.
func (c *Client) ThreadExists(ctx context.Context, threadID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if _, err := c.api.RetrieveThread(ctx, threadID); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("retrieve thread: %w", err)
	}
	return true, nil
}

// Run appends text to the thread, starts a run and polls it until it reaches
// a terminal state or the attempt budget is spent. The returned result is
// never nil; on failure its Outcome tells Failed and TimedOut apart and the
// error wraps ErrRunFailed or ErrRunTimedOut.
func (c *Client) Run(ctx context.Context, threadID, text string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{ThreadID: threadID, Outcome: OutcomeFailed}
	defer func() {
		result.Duration = time.Since(start)
		metrics.AssistantRuns.WithLabelValues(string(result.Outcome)).Inc()
		metrics.AssistantRunDuration.WithLabelValues(string(result.Outcome)).Observe(result.Duration.Seconds())
	}()

	if err := c.appendMessage(ctx, threadID, text); err != nil {
		return result, fmt.Errorf("%w: append message: %w", ErrRunFailed, err)
	}

	run, err := c.startRun(ctx, threadID)
	if err != nil {
		return result, fmt.Errorf("%w: start run: %w", ErrRunFailed, err)
	}
	result.RunID = run.ID
	result.Status = run.Status

	run, err = c.poll(ctx, threadID, run.ID, result)
	if err != nil {
		return result, err
	}

	text, err = c.latestReply(ctx, threadID, run.ID)
	if err != nil {
		return result, fmt.Errorf("%w: list messages: %w", ErrRunFailed, err)
	}
	result.Outcome = OutcomeCompleted
	result.Text = text
	return result, nil
}

func (c *Client) appendMessage(ctx context.Context, threadID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return err
}

func (c *Client) startRun(ctx context.Context, threadID string) (openai.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	return c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
}

func (c *Client) poll(ctx context.Context, threadID, runID string, result *RunResult) (openai.Run, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for result.Attempts < c.maxPollAttempts {
		select {
		case <-ctx.Done():
			result.Outcome = OutcomeTimedOut
			c.cancelRun(threadID, runID)
			return openai.Run{}, fmt.Errorf("%w: %w", ErrRunTimedOut, ctx.Err())
		case <-ticker.C:
		}
		result.Attempts++

		run, err := c.retrieveRun(ctx, threadID, runID)
		if err != nil {
			c.logger.Warn("Failed to poll run",
				zap.Error(err),
				zap.String("thread_id", threadID),
				zap.String("run_id", runID),
				zap.Int("attempt", result.Attempts))
			continue
		}
		result.Status = run.Status

		switch classify(run.Status) {
		case OutcomeCompleted:
			return run, nil
		case OutcomeFailed:
			result.Outcome = OutcomeFailed
			fields := []zap.Field{
				zap.String("thread_id", threadID),
				zap.String("run_id", runID),
				zap.String("status", string(run.Status)),
			}
			if run.LastError != nil {
				fields = append(fields,
					zap.String("error_code", string(run.LastError.Code)),
					zap.String("error_message", run.LastError.Message))
			}
			c.logger.Warn("Run ended without completing", fields...)
			if run.Status == openai.RunStatusRequiresAction {
				// Still holds the thread; nothing here submits tool outputs.
				c.cancelRun(threadID, runID)
			}
			return run, fmt.Errorf("%w: status %s", ErrRunFailed, run.Status)
		}
	}

	result.Outcome = OutcomeTimedOut
	c.cancelRun(threadID, runID)
	return openai.Run{}, fmt.Errorf("%w after %d attempts (last status %q)", ErrRunTimedOut, result.Attempts, result.Status)
}

func (c *Client) retrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	return c.api.RetrieveRun(ctx, threadID, runID)
}

// cancelRun releases the thread so the next message can be appended. It runs
// on a fresh context because the request context may already be done.
func (c *Client) cancelRun(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()

	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		c.logger.Warn("Failed to cancel run",
			zap.Error(err),
			zap.String("thread_id", threadID),
			zap.String("run_id", runID))
	}
}

func (c *Client) latestReply(ctx context.Context, threadID, runID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	limit := 10
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", err
	}

	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var parts []string
		for _, content := range msg.Content {
			if content.Text != nil && content.Text.Value != "" {
				parts = append(parts, content.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", nil
}

// classify maps a provider run status to a terminal outcome, or "" while the
// run is still moving.
func classify(status openai.RunStatus) Outcome {
	switch status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return ""
	case openai.RunStatusCompleted:
		return OutcomeCompleted
	default:
		// failed, cancelled, expired, incomplete, requires_action
		return OutcomeFailed
	}
}

func isNotFound(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
