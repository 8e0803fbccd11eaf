package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"surveychat/internal/codebook"
	"surveychat/internal/config"
	"surveychat/internal/embedding"
	"surveychat/internal/execution"
	"surveychat/internal/llm"
	"surveychat/internal/pipeline"
	"surveychat/internal/retrieval"
	"surveychat/internal/synthesis"
)

// app bundles the wired pipeline and the resources that need closing.
type app struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	store        *codebook.Store // nil when the codebook could not be opened
}

// unavailableSearcher stands in when the codebook store cannot be opened.
// The retriever treats its error as "no context", which keeps questions
// answerable without a codebook.
type unavailableSearcher struct{ err error }

func (u unavailableSearcher) Search(ctx context.Context, query string, k int) ([]codebook.Passage, error) {
	return nil, u.err
}

// buildApp wires the full pipeline from configuration.
func buildApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := llm.NewGeminiClientWithConfig(llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: config.Duration(cfg.LLM.Timeout, 0),
	})
	retrying := llm.NewRetryClient(client, cfg.LLM.Retries, 0)

	a := &app{cfg: cfg}

	// The codebook is enrichment: a missing embedding engine or database
	// degrades retrieval instead of blocking startup.
	var searcher retrieval.Searcher
	if store, err := openStore(cfg); err != nil {
		logger.Warn("codebook unavailable, continuing without retrieval", zap.Error(err))
		searcher = unavailableSearcher{err: err}
	} else {
		a.store = store
		searcher = store
	}

	var backend execution.Backend
	if httpBackend, err := execution.NewHTTPBackend(execution.HTTPBackendConfig{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: config.Duration(cfg.Backend.Timeout, 0),
	}); err == nil {
		backend = httpBackend
	} else {
		logger.Warn("sql backend not configured, queries will not execute", zap.Error(err))
	}

	opts := synthesis.Options{
		Table:           cfg.Dataset.Table,
		Stopwords:       cfg.Dataset.Stopwords,
		PriorityColumns: cfg.Dataset.PriorityColumns,
		DefaultColumns:  cfg.Dataset.DefaultColumns,
	}

	a.orchestrator = pipeline.New(
		retrieval.New(searcher, cfg.Retrieval.TopK),
		synthesis.NewSynthesizer(retrying, opts),
		synthesis.NewFallbackBuilder(opts),
		execution.NewExecutor(backend),
		retrying,
		cfg.Retrieval.TopK,
		pipeline.Timeouts{
			Retrieval: config.Duration(cfg.Timeouts.Retrieval, 0),
			Synthesis: config.Duration(cfg.Timeouts.Synthesis, 0),
			Execution: config.Duration(cfg.Timeouts.Execution, 0),
			Narration: config.Duration(cfg.Timeouts.Narration, 0),
		},
	)
	return a, nil
}

// openStore creates the embedding engine and opens the codebook database.
func openStore(cfg *config.Config) (*codebook.Store, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding engine: %w", err)
	}
	store, err := codebook.NewStore(cfg.Retrieval.DatabasePath, engine)
	if err != nil {
		return nil, fmt.Errorf("codebook store: %w", err)
	}
	return store, nil
}

// close releases held resources.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("failed to close codebook store", zap.Error(err))
		}
	}
}
