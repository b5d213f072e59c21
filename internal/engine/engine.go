package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arcvault/yielder/internal/calculator"
	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/state"
)

// Engine drives the registered calculators through periodic accounting
// cycles and persists what they report.
type Engine struct {
	logger      zerolog.Logger
	calculators []*calculator.Calculator

	// Runtime state
	cycleCount int
}

// Config holds the configuration for creating a new Engine instance
type Config struct {
	Calculators []*calculator.Calculator
}

// NewEngine creates a new engine instance with dependency injection
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	eng := &Engine{
		logger:      logger.GetForComponent("engine_core"),
		calculators: cfg.Calculators,
		cycleCount:  0,
	}

	eng.logger.Info().
		Int("calculators", len(eng.calculators)).
		Msg("Engine instance created successfully with dependency injection")

	return eng, nil
}

// validateEngineConfig validates the engine configuration
func validateEngineConfig(cfg Config) error {
	if len(cfg.Calculators) == 0 {
		return fmt.Errorf("at least one calculator is required")
	}
	seen := make(map[string]struct{}, len(cfg.Calculators))
	for i, calc := range cfg.Calculators {
		if calc == nil {
			return fmt.Errorf("calculator %d cannot be nil", i)
		}
		if _, dup := seen[calc.AprID()]; dup {
			return fmt.Errorf("duplicate calculator apr id %q", calc.AprID())
		}
		seen[calc.AprID()] = struct{}{}
	}
	return nil
}

// RunLoop starts the main engine loop with the specified interval
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().
		Dur("interval", interval).
		Msg("Starting engine main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	e.cycleCount++
	e.logger.Info().Int("cycle", e.cycleCount).Msg("Initiating accounting cycle")
	e.RunCycle(ctx)
	e.logger.Info().Int("cycle", e.cycleCount).Msg("Accounting cycle completed")

	// Continue with ticker
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.cycleCount++
			e.logger.Info().Int("cycle", e.cycleCount).Msg("Initiating accounting cycle")
			e.RunCycle(ctx)
			e.logger.Info().Int("cycle", e.cycleCount).Msg("Accounting cycle completed")
		}
	}
}

// RunCycle executes one complete accounting cycle: every calculator gets a
// snapshot opportunity and its current stats are persisted. Calculators fail
// independently; one broken oracle never stalls the rest.
func (e *Engine) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting accounting cycle ---")

	cycleNumber, err := state.IncrementCycleNumber()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to increment cycle counter, continuing with 0")
		cycleNumber = 0
	}

	for _, calc := range e.calculators {
		e.runCalculatorCycle(ctx, cycleLogger, calc, cycleNumber)
	}

	cycleLogger.Info().
		Int("cycleNumber", cycleNumber).
		Dur("duration", time.Since(cycleStartTime)).
		Msg("--- Accounting cycle finished ---")
}

// runCalculatorCycle runs one calculator through the snapshot decision, the
// snapshot itself when due, and the stats persistence.
func (e *Engine) runCalculatorCycle(ctx context.Context, cycleLogger zerolog.Logger, calc *calculator.Calculator, cycleNumber int) {
	calcLogger := cycleLogger.With().Str("aprID", calc.AprID()).Logger()

	due, err := calc.ShouldSnapshot(ctx)
	if err != nil {
		calcLogger.Error().Err(err).Msg("Snapshot decision failed, skipping calculator this cycle")
		return
	}

	if due {
		event, err := calc.Snapshot(ctx)
		if err != nil {
			calcLogger.Error().Err(err).Msg("Snapshot failed, no state committed")
			return
		}

		calcLogger.Info().
			Int("credits", event.Credits).
			Bool("decaying", event.Decaying).
			Float64("aprPercent", event.APRPercent).
			Msg("Snapshot committed")

		if _, err := state.SaveCreditEvent(event, cycleNumber); err != nil {
			// The in-memory state is already committed; losing the audit row
			// is logged but does not abort the cycle.
			calcLogger.Error().Err(err).Msg("Failed to persist credit event")
		}
	}

	stats, err := calc.Current(ctx)
	if err != nil {
		calcLogger.Error().Err(err).Msg("Current stats read failed")
		return
	}

	if _, err := state.SaveEngineSnapshot(stats, cycleNumber); err != nil {
		calcLogger.Error().Err(err).Msg("Failed to persist engine snapshot")
		return
	}

	calcLogger.Info().
		Int("credits", stats.Incentive.IncentiveCredits).
		Int("rewardRows", len(stats.Incentive.RewardTokens)).
		Msg("Calculator cycle completed")
}
