// Package pipeline sequences the request chain: retrieve codebook context,
// synthesize a candidate query (with heuristic fallback), execute it, and
// narrate the outcome. One request is one strictly linear pass; the only
// state is the conversation history handed in by the caller.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"surveychat/internal/codebook"
	"surveychat/internal/execution"
	"surveychat/internal/llm"
	"surveychat/internal/logging"
	"surveychat/internal/retrieval"
	"surveychat/internal/synthesis"
)

// Timeouts bounds each pipeline stage. Zero means no per-stage deadline.
type Timeouts struct {
	Retrieval time.Duration
	Synthesis time.Duration
	Execution time.Duration
	Narration time.Duration
}

// Orchestrator is the top-level entry point consumed by the CLI layer.
// All collaborators are injected at construction; there are no package
// singletons.
type Orchestrator struct {
	retriever *retrieval.Retriever
	synth     *synthesis.Synthesizer
	fallback  *synthesis.FallbackBuilder
	executor  *execution.Executor
	narrator  llm.Client
	topK      int
	timeouts  Timeouts
	tools     *Registry
}

// New creates an Orchestrator.
func New(
	retriever *retrieval.Retriever,
	synth *synthesis.Synthesizer,
	fallback *synthesis.FallbackBuilder,
	executor *execution.Executor,
	narrator llm.Client,
	topK int,
	timeouts Timeouts,
) *Orchestrator {
	if topK <= 0 {
		topK = 4
	}
	o := &Orchestrator{
		retriever: retriever,
		synth:     synth,
		fallback:  fallback,
		executor:  executor,
		narrator:  narrator,
		topK:      topK,
		timeouts:  timeouts,
	}
	o.tools = newToolRegistry(o)
	return o
}

// Tools returns the tool registry exposing the pipeline stages behind the
// Name/Schema/Call interface.
func (o *Orchestrator) Tools() *Registry { return o.tools }

// Answer runs the full pipeline for one question and returns the
// normalized envelope. It never panics past its boundary: unexpected
// faults become a generic error envelope.
func (o *Orchestrator) Answer(ctx context.Context, question string, history []synthesis.Turn) (env Envelope) {
	requestID := uuid.NewString()
	rl := logging.WithRequestID(logging.CategoryPipeline, requestID)

	sqlQuery := ""
	contextText := ""
	defer func() {
		if r := recover(); r != nil {
			rl.Error("recovered from panic: %v", r)
			env = ErrorEnvelope(sqlQuery, contextText, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if question == "" {
		return ErrorEnvelope("", "", "question must not be empty")
	}

	rl.Info("answering question (len=%d, history=%d turns)", len(question), len(history))

	// Stage 1: retrieval. Failures inside degrade to zero passages; zero
	// passages must not prevent synthesis.
	var passages []codebook.Passage
	func() {
		stageCtx, cancel := o.stageContext(ctx, o.timeouts.Retrieval)
		defer cancel()
		passages = o.retriever.Retrieve(stageCtx, question, o.topK)
	}()
	contextText = retrieval.FormatContext(passages)
	rl.Debug("retrieved %d passages", len(passages))

	// Stage 2: synthesis. The one fatal-for-this-request failure: without
	// any candidate there is nothing further to attempt.
	var candidate string
	var synthErr error
	func() {
		stageCtx, cancel := o.stageContext(ctx, o.timeouts.Synthesis)
		defer cancel()
		candidate, synthErr = o.synth.Synthesize(stageCtx, question, contextText, history)
	}()
	if synthErr != nil {
		rl.Error("synthesis failed: %v", synthErr)
		return ErrorEnvelope("", contextText, synthErr.Error())
	}

	// Stage 3: fallback when the model reported no derivable query.
	if candidate == "" {
		candidate = o.fallback.Build(question, contextText)
		rl.Info("synthesizer yielded no query, using fallback template")
	}
	sqlQuery = candidate

	// Stage 4: execution.
	var result execution.Result
	func() {
		stageCtx, cancel := o.stageContext(ctx, o.timeouts.Execution)
		defer cancel()
		result = o.executor.Execute(stageCtx, sqlQuery)
	}()

	env = NewEnvelope(sqlQuery, contextText, result)
	rl.Info("request complete (error=%v, rows=%d)", env.IsError(), len(env.Data))
	return env
}

// stageContext derives a per-stage deadline when one is configured.
func (o *Orchestrator) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
