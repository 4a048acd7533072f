package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/loyalty"
)

// =============================================================================
// PROGRAMS (loyalty.ProgramRepository)
// =============================================================================

// programRules is the JSON shape of rules_json.
type programRules struct {
	PointsPerCurrencyUnit  decimal.Decimal            `json:"points_per_currency_unit"`
	PointsPerNight         decimal.Decimal            `json:"points_per_night"`
	ServiceTypeMultipliers map[string]decimal.Decimal `json:"service_type_multipliers,omitempty"`
	RedemptionRatio        decimal.Decimal            `json:"redemption_ratio"`
	RedemptionMinimum      int64                      `json:"redemption_minimum"`
	RedemptionMaximum      *int64                     `json:"redemption_maximum,omitempty"`
	ExpirationMonths       int                        `json:"expiration_months"`
	Tiers                  []tierRecord               `json:"tiers"`
}

type tierRecord struct {
	Name               string          `json:"name"`
	MinPoints          int64           `json:"min_points"`
	MaxPoints          int64           `json:"max_points"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	Benefits           []string        `json:"benefits,omitempty"`
}

func encodeRules(cfg loyalty.ProgramConfig) (string, error) {
	rules := programRules{
		PointsPerCurrencyUnit:  cfg.PointsPerCurrencyUnit,
		PointsPerNight:         cfg.PointsPerNight,
		ServiceTypeMultipliers: cfg.ServiceTypeMultipliers,
		RedemptionRatio:        cfg.Redemption.PointsPerCurrencyUnit,
		RedemptionMinimum:      cfg.Redemption.Minimum,
		RedemptionMaximum:      cfg.Redemption.Maximum,
		ExpirationMonths:       cfg.ExpirationMonths,
	}
	for _, t := range cfg.Tiers {
		rules.Tiers = append(rules.Tiers, tierRecord(t))
	}
	b, err := json.Marshal(rules)
	return string(b), err
}

func decodeRules(raw string, cfg *loyalty.ProgramConfig) error {
	var rules programRules
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return fmt.Errorf("decode program rules: %w", err)
	}
	cfg.PointsPerCurrencyUnit = rules.PointsPerCurrencyUnit
	cfg.PointsPerNight = rules.PointsPerNight
	cfg.ServiceTypeMultipliers = rules.ServiceTypeMultipliers
	cfg.Redemption = loyalty.RedemptionRule{
		PointsPerCurrencyUnit: rules.RedemptionRatio,
		Minimum:               rules.RedemptionMinimum,
		Maximum:               rules.RedemptionMaximum,
	}
	cfg.ExpirationMonths = rules.ExpirationMonths
	cfg.Tiers = make([]loyalty.Tier, len(rules.Tiers))
	for i, t := range rules.Tiers {
		cfg.Tiers[i] = loyalty.Tier(t)
	}
	return nil
}

const programColumns = `hotel_id, channel, hotel_group_id, is_active, rules_json, version, updated_at`

// GetProgram retrieves the program for a (hotel, channel) key.
func (s *Store) GetProgram(ctx context.Context, key loyalty.ProgramKey) (loyalty.ProgramConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+programColumns+" FROM programs WHERE hotel_id = ? AND channel = ?",
		key.HotelID, key.Channel,
	)
	cfg, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return loyalty.ProgramConfig{}, loyalty.ErrProgramNotFound
	}
	return cfg, err
}

// ListPrograms returns all programs.
func (s *Store) ListPrograms(ctx context.Context) ([]loyalty.ProgramConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+programColumns+" FROM programs ORDER BY hotel_id, channel",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	defer rows.Close()

	var programs []loyalty.ProgramConfig
	for rows.Next() {
		cfg, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, cfg)
	}
	return programs, rows.Err()
}

// SaveProgram inserts or updates a program with an optimistic version check.
func (s *Store) SaveProgram(ctx context.Context, cfg *loyalty.ProgramConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := encodeRules(*cfg)
	if err != nil {
		return err
	}

	if cfg.Version == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO programs (`+programColumns+`)
			VALUES (?, ?, ?, ?, ?, 1, ?)`,
			cfg.HotelID, cfg.Channel, cfg.HotelGroupID, cfg.IsActive, rules, formatTime(cfg.UpdatedAt),
		)
		if isUniqueConstraintError(err) {
			return loyalty.ErrLedgerConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert program: %w", err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, `
			UPDATE programs SET
				hotel_group_id = ?, is_active = ?, rules_json = ?,
				version = version + 1, updated_at = ?
			WHERE hotel_id = ? AND channel = ? AND version = ?`,
			cfg.HotelGroupID, cfg.IsActive, rules, formatTime(cfg.UpdatedAt),
			cfg.HotelID, cfg.Channel, cfg.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update program: %w", err)
		}
		if err := checkUpdated(res, loyalty.ErrLedgerConflict); err != nil {
			return err
		}
	}

	cfg.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (loyalty.ProgramConfig, error) {
	var (
		cfg       loyalty.ProgramConfig
		rules     string
		updatedAt string
	)
	err := row.Scan(&cfg.HotelID, &cfg.Channel, &cfg.HotelGroupID, &cfg.IsActive, &rules, &cfg.Version, &updatedAt)
	if err != nil {
		return cfg, err
	}
	cfg.UpdatedAt = parseTime(updatedAt)
	if err := decodeRules(rules, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
