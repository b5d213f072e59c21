/*

This file persists the credit-accounting audit trail: one credit event per
snapshot pass and one engine snapshot per reporting cycle. Both are
append-only; reads serve the web API.

*/

package state

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/arcvault/yielder/internal/types"
)

// SaveCreditEvent persists one credit transition and returns its generated ID.
func SaveCreditEvent(event types.CreditEvent, cycleNumber int) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO credit_events (
			apr_id, address_id, cycle_number, event_timestamp,
			total_apr, apr_percent, credits,
			last_incentive_at, decaying, decay_init_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING event_id;`

	var eventID int64
	err := DB.QueryRow(query,
		event.AprID,
		event.AddressID.Hex(),
		cycleNumber,
		event.Timestamp,
		event.TotalAPR.String(),
		event.APRPercent,
		event.Credits,
		event.LastIncentiveAt,
		event.Decaying,
		event.DecayInitAt,
	).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to save credit event: %w", err)
	}

	log.Debug().
		Int64("eventID", eventID).
		Str("aprID", event.AprID).
		Int("credits", event.Credits).
		Msg("Saved credit event")
	return eventID, nil
}

// GetRecentCreditEvents returns up to limit credit events, newest first. An
// empty aprID returns events across all calculators.
func GetRecentCreditEvents(aprID string, limit int) ([]types.CreditEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT apr_id, address_id, event_timestamp,
		       total_apr, apr_percent, credits,
		       last_incentive_at, decaying, decay_init_at
		FROM credit_events
		WHERE ($1 = '' OR apr_id = $1)
		ORDER BY event_timestamp DESC
		LIMIT $2;`

	rows, err := DB.Query(query, aprID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit events: %w", err)
	}
	defer rows.Close()

	events := make([]types.CreditEvent, 0, limit)
	for rows.Next() {
		var (
			event      types.CreditEvent
			addressHex string
			totalAPR   string
		)
		err := rows.Scan(
			&event.AprID,
			&addressHex,
			&event.Timestamp,
			&totalAPR,
			&event.APRPercent,
			&event.Credits,
			&event.LastIncentiveAt,
			&event.Decaying,
			&event.DecayInitAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit event row: %w", err)
		}

		event.AddressID = common.HexToAddress(addressHex)
		apr, ok := sdkmath.NewIntFromString(totalAPR)
		if !ok {
			return nil, fmt.Errorf("failed to parse stored total_apr %q", totalAPR)
		}
		event.TotalAPR = apr
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit event rows: %w", err)
	}

	return events, nil
}

// SaveEngineSnapshot persists the canonical per-cycle read of one calculator.
func SaveEngineSnapshot(stats types.CalculatorStats, cycleNumber int) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal calculator stats: %w", err)
	}

	rewardTokens := make([]string, 0, len(stats.Incentive.RewardTokens))
	for _, token := range stats.Incentive.RewardTokens {
		rewardTokens = append(rewardTokens, token.Hex())
	}

	query := `
		INSERT INTO engine_snapshots (
			apr_id, address_id, cycle_number,
			safe_total_supply, incentive_credits, reward_tokens, stats
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING snapshot_id;`

	var snapshotID int64
	err = DB.QueryRow(query,
		stats.AprID,
		stats.AddressID.Hex(),
		cycleNumber,
		stats.Incentive.SafeTotalSupply.String(),
		stats.Incentive.IncentiveCredits,
		pq.Array(rewardTokens),
		statsJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save engine snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshotID", snapshotID).
		Str("aprID", stats.AprID).
		Int("cycle", cycleNumber).
		Msg("Saved engine snapshot")
	return snapshotID, nil
}

// GetLatestEngineSnapshot returns the most recent persisted stats document
// for one calculator, or sql.ErrNoRows wrapped if none exists yet.
func GetLatestEngineSnapshot(aprID string) (json.RawMessage, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT stats
		FROM engine_snapshots
		WHERE apr_id = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT 1;`

	var stats json.RawMessage
	err := DB.QueryRow(query, aprID).Scan(&stats)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest engine snapshot for %s: %w", aprID, err)
	}
	return stats, nil
}
