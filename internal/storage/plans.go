package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"gocommute/internal/schedule"
)

// Location is a named place a commute plan starts or ends at.
type Location struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// UpsertLocation creates or renames a location.
func (db *DB) UpsertLocation(ctx context.Context, l Location) error {
	_, err := db.exec(ctx, `
		INSERT INTO locations (id, name, lat, lon) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, lat = excluded.lat, lon = excluded.lon`,
		l.ID, l.Name, l.Lat, l.Lon)
	if err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	return nil
}

// InsertPlan stores a commute plan between two existing locations.
func (db *DB) InsertPlan(ctx context.Context, p *schedule.CommutePlan, startLocationID, endLocationID string) error {
	legs, err := json.Marshal(p.Legs)
	if err != nil {
		return fmt.Errorf("encode legs: %w", err)
	}
	_, err = db.exec(ctx, `
		INSERT INTO commute_plans (id, username, notify_time, recurrence_days, start_location_id, end_location_id, legs)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.NotifyTime, p.RecurrenceDays.String(), startLocationID, endLocationID, string(legs))
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// ListPlans returns every commute plan with its locations resolved to
// names. Rows that fail to decode are logged and skipped.
func (db *DB) ListPlans(ctx context.Context) ([]schedule.CommutePlan, error) {
	rows, err := db.query(ctx, `
		SELECT p.id, p.username, p.notify_time, p.recurrence_days, s.name, e.name, p.legs
		FROM commute_plans AS p
		JOIN locations AS s ON s.id = p.start_location_id
		JOIN locations AS e ON e.id = p.end_location_id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list plans query: %w", err)
	}
	defer rows.Close()

	var plans []schedule.CommutePlan
	for rows.Next() {
		var (
			p    schedule.CommutePlan
			days string
			legs string
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.NotifyTime, &days, &p.StartLocation, &p.EndLocation, &legs); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		if p.RecurrenceDays, err = schedule.ParseDays(days); err != nil {
			db.logger.Warn("skipping plan with bad recurrence days", "plan", p.ID, "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(legs), &p.Legs); err != nil {
			db.logger.Warn("skipping plan with bad legs", "plan", p.ID, "error", err)
			continue
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
