package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const itemColumns = `id, chat_id, message_id, source_name, source_path, audio_path,
    wav_path, transcript_path, subtitle_path, language, has_video, status,
    error_message, progress_stage, progress_percent, progress_message,
    needs_review, review_reason, created_at, updated_at`

// NewUpload inserts a freshly downloaded upload awaiting processing.
func (s *Store) NewUpload(ctx context.Context, chatID int64, messageID int, sourceName, sourcePath, language string, hasVideo bool) (*Item, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            chat_id, message_id, source_name, source_path, language, has_video,
            status, progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chatID,
		messageID,
		sourceName,
		sourcePath,
		nullableString(language),
		boolToInt(hasVideo),
		StatusPending,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert upload: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a single item.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM queue_items WHERE id = ?", itemColumns), id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %d: not found", id)
	}
	return item, err
}

// Update persists the item's mutable fields.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("nil item")
	}
	item.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET
            message_id = ?, audio_path = ?, wav_path = ?, transcript_path = ?,
            subtitle_path = ?, language = ?, has_video = ?, status = ?,
            error_message = ?, progress_stage = ?, progress_percent = ?,
            progress_message = ?, needs_review = ?, review_reason = ?,
            updated_at = ?
        WHERE id = ?`,
		item.MessageID,
		nullableString(item.AudioPath),
		nullableString(item.WavPath),
		nullableString(item.TranscriptPath),
		nullableString(item.SubtitlePath),
		nullableString(item.Language),
		boolToInt(item.HasVideo),
		item.Status,
		nullableString(item.ErrorMessage),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		boolToInt(item.NeedsReview),
		nullableString(item.ReviewReason),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	return nil
}

// List returns items, optionally filtered by status, oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := fmt.Sprintf("SELECT %s FROM queue_items", itemColumns)
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextPending returns the oldest pending item, skipping the supplied IDs.
// Returns ErrNoPending when nothing is claimable.
func (s *Store) NextPending(ctx context.Context, exclude ...int64) (*Item, error) {
	query := fmt.Sprintf("SELECT %s FROM queue_items WHERE status = ?", itemColumns)
	args := []any{StatusPending}
	if len(exclude) > 0 {
		placeholders := make([]string, len(exclude))
		for i, id := range exclude {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += " AND id NOT IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at ASC, id ASC LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPending
	}
	return item, err
}

// Clear removes all queue items and returns the number deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM queue_items")
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuck returns items stranded in a processing status to pending.
// Called at daemon startup to recover from unclean shutdowns.
func (s *Store) ResetStuck(ctx context.Context) (int64, error) {
	placeholders := make([]string, 0, len(processingStatuses))
	args := []any{StatusPending, time.Now().UTC().Format(time.RFC3339Nano)}
	for status := range processingStatuses {
		placeholders = append(placeholders, "?")
		args = append(args, status)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE queue_items SET status = ?, updated_at = ? WHERE status IN ("+strings.Join(placeholders, ", ")+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// Retry returns a failed or review item to pending.
func (s *Store) Retry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, error_message = NULL, needs_review = 0,
            review_reason = NULL, progress_percent = 0, updated_at = ?
        WHERE id = ? AND status IN (?, ?)`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusFailed,
		StatusReview,
	)
	if err != nil {
		return fmt.Errorf("retry item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("queue item %d: not retryable", id)
	}
	return nil
}

// Health aggregates queue counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var summary HealthSummary
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM queue_items GROUP BY status")
	if err != nil {
		return summary, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, err
		}
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusCompleted:
			summary.Completed += count
		case status == StatusFailed || status == StatusReview:
			summary.Failed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				summary.Processing += count
			}
		}
	}
	return summary, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var audioPath, wavPath, transcriptPath, subtitlePath sql.NullString
	var language, errorMessage, progressStage, progressMessage, reviewReason sql.NullString
	var hasVideo, needsReview int
	var createdAt, updatedAt string

	err := row.Scan(
		&item.ID,
		&item.ChatID,
		&item.MessageID,
		&item.SourceName,
		&item.SourcePath,
		&audioPath,
		&wavPath,
		&transcriptPath,
		&subtitlePath,
		&language,
		&hasVideo,
		&item.Status,
		&errorMessage,
		&progressStage,
		&item.ProgressPercent,
		&progressMessage,
		&needsReview,
		&reviewReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.AudioPath = audioPath.String
	item.WavPath = wavPath.String
	item.TranscriptPath = transcriptPath.String
	item.SubtitlePath = subtitlePath.String
	item.Language = language.String
	item.ErrorMessage = errorMessage.String
	item.ProgressStage = progressStage.String
	item.ProgressMessage = progressMessage.String
	item.HasVideo = hasVideo != 0
	item.NeedsReview = needsReview != 0
	item.ReviewReason = reviewReason.String
	item.CreatedAt = parseTimestamp(createdAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	return &item, nil
}

func parseTimestamp(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	return time.Time{}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
