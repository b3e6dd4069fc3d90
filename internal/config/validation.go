package config

import "fmt"

// Validate checks the full configuration and returns the first problem
// found. Called once at startup so invalid settings fail fast instead of
// surfacing mid-request.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: set RAG_OPENAI_API_KEY", ErrMissingAPIKey)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: set RAG_POSTGRES_PASSWORD or DATABASE_URL", ErrMissingPostgresPassword)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPoolSize, c.PoolSize)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %g not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.TopK < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTopK, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %g not in [0, 1]", ErrInvalidThreshold, c.SimilarityThreshold)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)", ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbeddingDimension != VectorDimension {
		return fmt.Errorf("%w: %d does not match migrated vector(%d) column",
			ErrInvalidDimension, c.EmbeddingDimension, VectorDimension)
	}

	return nil
}
