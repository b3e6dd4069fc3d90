// Package app wires configuration, database, provider client, stores
// and the HTTP server into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raganything/ragserver/db"
	"github.com/raganything/ragserver/internal/api"
	"github.com/raganything/ragserver/internal/config"
	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/database"
	"github.com/raganything/ragserver/internal/document"
	"github.com/raganything/ragserver/internal/llm"
	"github.com/raganything/ragserver/internal/rag"
)

// App holds the initialized application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Pool          *pgxpool.Pool
	LLM           *llm.Client
	Documents     *document.Store
	Conversations *conversation.Store
	RAG           *rag.Service
	Server        *api.Server
}

// Setup runs migrations and initializes every component. On error,
// everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresURL(), cfg.PoolSize, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	client, err := llm.New(llm.Config{
		APIKey:         cfg.OpenAIAPIKey,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Dimension:      cfg.EmbeddingDimension,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	a.LLM = client

	docs, err := document.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	a.Documents = docs

	convs, err := conversation.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}
	a.Conversations = convs

	svc, err := rag.NewService(client, client, docs, convs, rag.Config{
		TopK:           cfg.TopK,
		Threshold:      cfg.SimilarityThreshold,
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		IncludeHistory: cfg.IncludeHistory,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating RAG service: %w", err)
	}
	a.RAG = svc

	server, err := api.NewServer(api.ServerConfig{
		Logger:        logger,
		RAG:           svc,
		Documents:     docs,
		Conversations: convs,
		DB:            pool,
		LLM:           client,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// Close releases all held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
