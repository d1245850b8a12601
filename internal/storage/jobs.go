package storage

import (
	"context"
	"database/sql"
	"fmt"

	"gocommute/internal/schedule"
)

const jobColumns = `id, notification_id, route_id, device_id, scheduled_time, timezone, selected_days, message_title, message_body, status`

// InsertJob stores a notification job.
func (db *DB) InsertJob(ctx context.Context, j *schedule.NotificationJob) error {
	_, err := db.exec(ctx, `INSERT INTO notification_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.NotificationID, j.RouteID, j.DeviceID, j.ScheduledTime, j.Timezone,
		j.SelectedDays.String(), j.MessageTitle, j.MessageBody, string(j.Status))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// JobByID returns one job, or nil if it doesn't exist.
func (db *DB) JobByID(ctx context.Context, id string) (*schedule.NotificationJob, error) {
	j, err := scanJob(db.queryRow(ctx, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobs returns every job. Rows with a malformed day bitmap are logged
// and skipped.
func (db *DB) ListJobs(ctx context.Context) ([]schedule.NotificationJob, error) {
	rows, err := db.query(ctx, `SELECT `+jobColumns+` FROM notification_jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs query: %w", err)
	}
	defer rows.Close()

	var jobs []schedule.NotificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			db.logger.Warn("skipping unreadable notification job", "error", err)
			continue
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// TransitionStatus sets the job's status to "to" only if it is currently
// "from", and reports whether the row changed.
func (db *DB) TransitionStatus(ctx context.Context, id string, from, to schedule.Status) (bool, error) {
	res, err := db.exec(ctx, `UPDATE notification_jobs SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition job %s: %w", id, err)
	}
	return n == 1, nil
}

func scanJob(s scanner) (*schedule.NotificationJob, error) {
	var (
		j      schedule.NotificationJob
		days   string
		status string
	)
	err := s.Scan(&j.ID, &j.NotificationID, &j.RouteID, &j.DeviceID, &j.ScheduledTime,
		&j.Timezone, &days, &j.MessageTitle, &j.MessageBody, &status)
	if err != nil {
		return nil, err
	}
	if j.SelectedDays, err = schedule.ParseDays(days); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.Status = schedule.Status(status)
	return &j, nil
}
