// Package followup nudges conversations that went quiet. An owner-level
// configuration drives how many nudges go out, after how much silence,
// and inside which business hours.
package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConfigurationMissing means the owner never saved follow-up settings.
var ErrConfigurationMissing = errors.New("followup configuration missing")

// maxSequenceLength is the hard cap on follow-ups per conversation,
// regardless of what max_followups says.
const maxSequenceLength = 3

// Settings is one owner's follow-up configuration.
type Settings struct {
	OwnerID              uuid.UUID
	IsEnabled            bool
	InactivityHours      int
	MaxFollowUps         int
	Messages             [maxSequenceLength]string
	RespectBusinessHours bool
	WorkStartHour        int
	WorkEndHour          int
	LunchStartHour       *int
	LunchEndHour         *int
	WorkDays             []int
	UpdatedAt            time.Time
}

// Message returns the configured text for the n-th follow-up (1-based).
func (s Settings) Message(n int) string {
	if n < 1 || n > maxSequenceLength {
		return ""
	}
	return s.Messages[n-1]
}

// EffectiveMax clamps max_followups to the sequence cap.
func (s Settings) EffectiveMax() int {
	if s.MaxFollowUps > maxSequenceLength {
		return maxSequenceLength
	}
	if s.MaxFollowUps < 0 {
		return 0
	}
	return s.MaxFollowUps
}

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `owner_id, is_enabled, inactivity_hours, max_followups,
	followup_message_1, followup_message_2, followup_message_3,
	respect_business_hours, work_start_hour, work_end_hour,
	lunch_start_hour, lunch_end_hour, work_days, updated_at`

func (r *SettingsRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (Settings, error) {
	query := fmt.Sprintf(`SELECT %s FROM followup_settings WHERE owner_id = $1`, settingsColumns)

	settings, err := scanSettings(r.db.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrConfigurationMissing
		}
		return Settings{}, fmt.Errorf("get followup settings: %w", err)
	}
	return settings, nil
}

func (r *SettingsRepository) ListEnabled(ctx context.Context) ([]Settings, error) {
	query := fmt.Sprintf(`SELECT %s FROM followup_settings WHERE is_enabled = TRUE`, settingsColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled followup settings: %w", err)
	}
	defer rows.Close()

	var result []Settings
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan followup settings: %w", err)
		}
		result = append(result, settings)
	}
	return result, rows.Err()
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings Settings) (Settings, error) {
	query := fmt.Sprintf(`
		INSERT INTO followup_settings (
			owner_id, is_enabled, inactivity_hours, max_followups,
			followup_message_1, followup_message_2, followup_message_3,
			respect_business_hours, work_start_hour, work_end_hour,
			lunch_start_hour, lunch_end_hour, work_days, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (owner_id) DO UPDATE SET
			is_enabled = EXCLUDED.is_enabled,
			inactivity_hours = EXCLUDED.inactivity_hours,
			max_followups = EXCLUDED.max_followups,
			followup_message_1 = EXCLUDED.followup_message_1,
			followup_message_2 = EXCLUDED.followup_message_2,
			followup_message_3 = EXCLUDED.followup_message_3,
			respect_business_hours = EXCLUDED.respect_business_hours,
			work_start_hour = EXCLUDED.work_start_hour,
			work_end_hour = EXCLUDED.work_end_hour,
			lunch_start_hour = EXCLUDED.lunch_start_hour,
			lunch_end_hour = EXCLUDED.lunch_end_hour,
			work_days = EXCLUDED.work_days,
			updated_at = now()
		RETURNING %s`, settingsColumns)

	saved, err := scanSettings(r.db.QueryRow(ctx, query,
		settings.OwnerID,
		settings.IsEnabled,
		settings.InactivityHours,
		settings.MaxFollowUps,
		settings.Messages[0],
		settings.Messages[1],
		settings.Messages[2],
		settings.RespectBusinessHours,
		settings.WorkStartHour,
		settings.WorkEndHour,
		settings.LunchStartHour,
		settings.LunchEndHour,
		settings.WorkDays,
	))
	if err != nil {
		return Settings{}, fmt.Errorf("upsert followup settings: %w", err)
	}
	return saved, nil
}

func scanSettings(row pgx.Row) (Settings, error) {
	var s Settings
	err := row.Scan(
		&s.OwnerID,
		&s.IsEnabled,
		&s.InactivityHours,
		&s.MaxFollowUps,
		&s.Messages[0],
		&s.Messages[1],
		&s.Messages[2],
		&s.RespectBusinessHours,
		&s.WorkStartHour,
		&s.WorkEndHour,
		&s.LunchStartHour,
		&s.LunchEndHour,
		&s.WorkDays,
		&s.UpdatedAt,
	)
	return s, err
}
