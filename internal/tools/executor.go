package tools

import (
	"context"
	"errors"
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/lewisedginton/organizer/pkg/metrics"
)

// ReauthMessage is the result text for a call rejected with an expired credential.
const ReauthMessage = "Erro de Autenticação (401): O token Google expirou. Por favor, reautentique-se ou tente o comando novamente, Senhor."

// Result is the outcome of one tool call, always expressed as text.
type Result struct {
	CallID  string
	Name    string
	Content string
	Err     error
}

// ExecutorConfig holds the Executor's collaborators.
type ExecutorConfig struct {
	Logger       logger.Logger
	Metrics      *metrics.Metrics
	Messenger    Messenger
	Timeout      time.Duration
	StatusWindow time.Duration
	Now          func() time.Time
}

// Executor runs a batch of tool calls sequentially.
type Executor struct {
	log          logger.Logger
	metrics      *metrics.Metrics
	messenger    Messenger
	timeout      time.Duration
	statusWindow time.Duration
	now          func() time.Time
}

// NewExecutor creates an Executor. Timeout defaults to 15s.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		messenger:    cfg.Messenger,
		timeout:      cfg.Timeout,
		statusWindow: cfg.StatusWindow,
		now:          cfg.Now,
	}, nil
}

// Execute runs calls in order against s. A failing call produces a textual
// result and never stops the remaining calls.
func (e *Executor) Execute(ctx context.Context, s Services, calls []conversation.ToolCall) []Result {
	if s.Messenger == nil {
		s.Messenger = e.messenger
	}
	if s.Now == nil {
		s.Now = e.now
	}
	if s.StatusWindow <= 0 {
		s.StatusWindow = e.statusWindow
	}

	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.executeOne(ctx, s, call))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, s Services, call conversation.ToolCall) Result {
	res := Result{CallID: call.ID, Name: call.Name}
	log := e.log.WithFields(logger.ToolField(call.Name))

	inv, err := Decode(call.Name, call.Arguments)
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		start := time.Now()
		res.Content, err = inv.Run(callCtx, s)
		cancel()
		log.Debug("Tool finished", logger.DurationField("duration", time.Since(start)))
	}

	if err != nil {
		res.Err = err
		res.Content = FailureText(call.Name, err)
		log.Warn("Tool call failed", logger.ErrorField(err))
		label := call.Name
		if errors.Is(err, ErrUnknownTool) {
			label = "unknown"
		}
		e.metrics.RecordTool(label, outcome(err))
		return res
	}
	e.metrics.RecordTool(call.Name, metrics.OutcomeOK)
	return res
}

// FailureText is the user-facing result for a failed call.
func FailureText(name string, err error) string {
	if errors.Is(err, ErrCredentialExpired) {
		return ReauthMessage
	}
	return "Erro na ferramenta " + name + ": " + err.Error()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrCredentialExpired):
		return "credential_expired"
	case errors.Is(err, ErrUnknownTool), errors.Is(err, ErrInvalidArguments):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return metrics.OutcomeError
	}
}
