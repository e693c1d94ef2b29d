// Package orchestrator runs one assistant turn: history merge, memory
// retrieval, the decision pass, tool execution, the synthesis pass and
// persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/history"
	"github.com/lewisedginton/organizer/internal/retrieval"
	"github.com/lewisedginton/organizer/internal/tools"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/lewisedginton/organizer/pkg/metrics"
	"github.com/lewisedginton/organizer/pkg/prefixed_uuid"
)

// ErrNoReply is returned, wrapped, whenever a turn ends with FatalReply.
var ErrNoReply = errors.New("no usable reply")

const (
	passDecision  = "decision"
	passSynthesis = "synthesis"

	memoryWriteTimeout = 30 * time.Second
)

// Completer runs one model call.
type Completer interface {
	Complete(ctx context.Context, req conversation.Request) (conversation.Completion, error)
}

// TurnRequest is one submitted user turn.
type TurnRequest struct {
	Owner       string
	Credentials conversation.Credentials
	Message     string
	History     []conversation.Turn
}

// Config holds the Orchestrator's collaborators and tuning.
type Config struct {
	Model     Completer
	Tools     tools.Provider
	Executor  *tools.Executor
	History   *history.Merger
	Retriever *retrieval.Retriever
	Logger    logger.Logger
	Metrics   *metrics.Metrics

	Persona     string
	Location    *time.Location
	Temperature float64
	MaxTokens   int
	PassTimeout time.Duration
	Now         func() time.Time
}

// Orchestrator handles turns. History and Retriever are optional; without
// them turns are neither hydrated nor remembered.
type Orchestrator struct {
	model     Completer
	provider  tools.Provider
	executor  *tools.Executor
	history   *history.Merger
	retriever *retrieval.Retriever
	log       logger.Logger
	metrics   *metrics.Metrics

	persona     string
	location    *time.Location
	temperature float64
	maxTokens   int
	passTimeout time.Duration
	now         func() time.Time

	pending sync.WaitGroup
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Model == nil {
		return nil, errors.New("model is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tool provider is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("tool executor is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		model:       cfg.Model,
		provider:    cfg.Tools,
		executor:    cfg.Executor,
		history:     cfg.History,
		retriever:   cfg.Retriever,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		persona:     cfg.Persona,
		location:    cfg.Location,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		passTimeout: cfg.PassTimeout,
		now:         cfg.Now,
	}, nil
}

// HandleTurn runs one turn. On a fatal outcome it returns FatalReply together
// with an error wrapping ErrNoReply; every other outcome returns a nil error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (conversation.Reply, error) {
	turnID := prefixed_uuid.New("turn")
	log := o.log.WithFields(logger.TurnField(turnID.String()), logger.OwnerField(req.Owner))

	submitted := req.History
	if len(submitted) == 0 && req.Message != "" {
		submitted = []conversation.Turn{conversation.UserTurn(req.Message)}
	}

	merged := submitted
	if o.history != nil {
		merged = o.history.Merge(ctx, req.Owner, submitted)
	}

	var snippets []retrieval.Snippet
	if o.retriever != nil {
		snippets = o.retriever.Retrieve(ctx, req.Owner, req.Message)
	}
	o.metrics.ObserveMemorySnippets(len(snippets))

	system := Prompt{
		Persona:   o.persona,
		Now:       o.now(),
		Location:  o.location,
		Memory:    retrieval.Context(snippets),
		FirstTurn: len(merged) <= 1,
	}
	messages := append([]conversation.Message{conversation.SystemMessage(system.String())}, conversation.FromTurns(merged)...)

	decision, err := o.pass(ctx, passDecision, conversation.Request{
		Messages:    messages,
		Tools:       tools.Definitions(),
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		JSONReply:   true,
	})
	if err != nil {
		return o.fatal(log, passDecision, err)
	}

	var reply conversation.Reply
	if decision.HasToolCalls() {
		if !req.Credentials.Valid() {
			log.Info("Tools requested without credentials", logger.IntField("tool_calls", len(decision.ToolCalls)))
			o.metrics.RecordTurn(metrics.OutcomeSignIn)
			return conversation.SignInReply(), nil
		}

		final, err := o.runTools(ctx, log, req.Credentials, messages, decision)
		if err != nil {
			return o.fatal(log, passSynthesis, err)
		}
		reply, err = conversation.ParseReply(final.Content)
		if err != nil {
			return o.fatal(log, passSynthesis, err)
		}
	} else {
		reply, err = conversation.ParseReply(decision.Content)
		if err != nil {
			return o.fatal(log, passDecision, err)
		}
	}

	if o.history != nil {
		o.history.Append(ctx, req.Owner, merged, reply.Text)
	}
	o.remember(ctx, req.Owner, req.Message, reply.Text)

	o.metrics.RecordTurn(metrics.OutcomeOK)
	log.Info("Turn completed", logger.StringField("mode", string(reply.Mode)))
	return reply, nil
}

// runTools executes the decision pass's tool calls and runs the synthesis
// pass over their results.
func (o *Orchestrator) runTools(
	ctx context.Context,
	log logger.Logger,
	creds conversation.Credentials,
	messages []conversation.Message,
	decision conversation.Completion,
) (conversation.Completion, error) {
	services, err := o.provider.Services(ctx, creds)
	if err != nil {
		// Each call then fails individually and is narrated by the synthesis pass.
		log.Warn("Failed to build tool services", logger.ErrorField(err))
		services = tools.Services{}
	}

	results := o.executor.Execute(ctx, services, decision.ToolCalls)

	followUp := make([]conversation.Message, 0, len(messages)+1+len(results))
	followUp = append(followUp, messages...)
	followUp = append(followUp, conversation.Message{
		Role:      conversation.RoleAssistant,
		Content:   decision.Content,
		ToolCalls: decision.ToolCalls,
	})
	for _, r := range results {
		followUp = append(followUp, conversation.ToolResultMessage(r.CallID, r.Name, r.Content))
	}

	return o.pass(ctx, passSynthesis, conversation.Request{Messages: followUp, JSONReply: true})
}

// pass runs one model call under the per-pass timeout.
func (o *Orchestrator) pass(ctx context.Context, name string, req conversation.Request) (conversation.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, o.passTimeout)
	defer cancel()

	start := time.Now()
	c, err := o.model.Complete(ctx, req)
	o.metrics.ObserveModelPass(name, time.Since(start))
	if err != nil {
		return conversation.Completion{}, fmt.Errorf("%s pass: %w", name, err)
	}
	return c, nil
}

func (o *Orchestrator) fatal(log logger.Logger, pass string, err error) (conversation.Reply, error) {
	log.Error("Turn failed", logger.StringField("pass", pass), logger.ErrorField(err))
	o.metrics.RecordTurn(metrics.OutcomeFatal)
	return conversation.FatalReply(), fmt.Errorf("%w: %w", ErrNoReply, err)
}

// remember stores the exchange as a memory snippet in the background, detached
// from the request's cancellation.
func (o *Orchestrator) remember(ctx context.Context, owner, message, reply string) {
	if o.retriever == nil || owner == "" {
		return
	}
	content := "Usuário: " + message + "\nJarvis: " + reply
	bg := context.WithoutCancel(ctx)

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(bg, memoryWriteTimeout)
		defer cancel()
		o.retriever.Remember(ctx, owner, content)
	}()
}

// Wait blocks until background memory writes have finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}
