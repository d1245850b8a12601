package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gocommute/internal/trip"
)

const tripColumns = `id, username, start_location, end_location, legs, status, current_leg_index, start_time, end_time`

// ActiveTrip returns the user's ON_TRIP trip, or nil if there is none.
func (db *DB) ActiveTrip(ctx context.Context, username string) (*trip.Trip, error) {
	row := db.queryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE username = ? AND status = ?`,
		username, string(trip.StatusOnTrip))
	return scanTrip(row)
}

// TripByID returns one trip, or nil if it doesn't exist.
func (db *DB) TripByID(ctx context.Context, id string) (*trip.Trip, error) {
	row := db.queryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
	return scanTrip(row)
}

// InsertTrip stores a new trip. A second ON_TRIP row for the same user
// violates idx_trips_one_active and is reported as trip.ErrActiveTripExists.
func (db *DB) InsertTrip(ctx context.Context, t *trip.Trip) error {
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("encode legs: %w", err)
	}
	_, err = db.exec(ctx, `INSERT INTO trips (`+tripColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Username, t.StartLocation, t.EndLocation, string(legs),
		string(t.Status), t.CurrentLegIndex, formatTime(t.StartTime), nullTime(t),
	)
	if isUniqueViolation(err) {
		return trip.ErrActiveTripExists
	}
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// UpdateTrip saves the mutable fields of a trip.
func (db *DB) UpdateTrip(ctx context.Context, t *trip.Trip) error {
	res, err := db.exec(ctx, `UPDATE trips SET status = ?, current_leg_index = ?, end_time = ? WHERE id = ?`,
		string(t.Status), t.CurrentLegIndex, nullTime(t), t.ID)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trip.ErrTripNotFound
	}
	return nil
}

// TripsByUser lists every trip of the user, newest first.
func (db *DB) TripsByUser(ctx context.Context, username string) ([]trip.Trip, error) {
	rows, err := db.query(ctx, `SELECT `+tripColumns+` FROM trips WHERE username = ? ORDER BY start_time DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("trips by user query: %w", err)
	}
	defer rows.Close()

	trips := []trip.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(s scanner) (*trip.Trip, error) {
	var (
		t         trip.Trip
		legs      string
		status    string
		startTime string
		endTime   sql.NullString
	)
	err := s.Scan(&t.ID, &t.Username, &t.StartLocation, &t.EndLocation, &legs,
		&status, &t.CurrentLegIndex, &startTime, &endTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan trip: %w", err)
	}

	if err := json.Unmarshal([]byte(legs), &t.Legs); err != nil {
		return nil, fmt.Errorf("decode legs of trip %s: %w", t.ID, err)
	}
	t.Status = trip.Status(status)
	if t.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if endTime.Valid {
		end, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		t.EndTime = &end
	}
	return &t, nil
}

func nullTime(t *trip.Trip) sql.NullString {
	if t.EndTime == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t.EndTime), Valid: true}
}
