package recurrence

import (
	"io"
	"log/slog"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Memoization of generated instants per series
	MemoEnabled bool

	// MaxOccurrences caps how many instants are generated for a single
	// series. Expansion past the cap is truncated and logged.
	MaxOccurrences int
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	MemoEnabled:    true,
	MaxOccurrences: 5000,
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	MemoEnabled:    false,
	MaxOccurrences: 1000,
}

// Engine provides recurrence expansion and occurrence lookup
type Engine struct {
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates a new recurrence engine instance with the default config
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, nil)
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, logger *slog.Logger) *Engine {
	if config.MaxOccurrences <= 0 {
		config.MaxOccurrences = DefaultEngineConfig.MaxOccurrences
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		config: config,
		logger: logger,
	}
}

// Config returns the engine configuration
func (e *Engine) Config() EngineConfig {
	return e.config
}
