package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/notecrew/store"
)

// SaveFlowRun inserts a run record; a repeated run_id replaces the previous row.
func (d *DB) SaveFlowRun(ctx context.Context, run *store.FlowRun) (*store.FlowRun, error) {
	imageIDs, err := json.Marshal(run.ImageIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal image_ids")
	}

	stmt := `
		INSERT INTO flow_run (
			run_id, request_id, idea_preview, image_ids, processed_images, total_images,
			status, error_message, report, duration_ms, created_ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			request_id = excluded.request_id,
			idea_preview = excluded.idea_preview,
			image_ids = excluded.image_ids,
			processed_images = excluded.processed_images,
			total_images = excluded.total_images,
			status = excluded.status,
			error_message = excluded.error_message,
			report = excluded.report,
			duration_ms = excluded.duration_ms
		RETURNING id, created_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		run.RunID,
		run.RequestID,
		run.IdeaPreview,
		string(imageIDs),
		run.ProcessedImages,
		run.TotalImages,
		string(run.Status),
		run.ErrorMessage,
		run.Report,
		run.DurationMs,
		run.CreatedTs,
	).Scan(&run.ID, &run.CreatedTs); err != nil {
		return nil, errors.Wrapf(err, "failed to save flow run %s", run.RunID)
	}
	return run, nil
}

func (d *DB) GetFlowRun(ctx context.Context, runID string) (*store.FlowRun, error) {
	query := `
		SELECT id, run_id, request_id, idea_preview, image_ids, processed_images, total_images,
			status, error_message, report, duration_ms, created_ts
		FROM flow_run
		WHERE run_id = ?
	`
	run := &store.FlowRun{}
	var imageIDs, status string
	err := d.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.RunID,
		&run.RequestID,
		&run.IdeaPreview,
		&imageIDs,
		&run.ProcessedImages,
		&run.TotalImages,
		&status,
		&run.ErrorMessage,
		&run.Report,
		&run.DurationMs,
		&run.CreatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get flow run %s", runID)
	}

	run.Status = store.FlowRunStatus(status)
	if err := json.Unmarshal([]byte(imageIDs), &run.ImageIDs); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal image_ids")
	}
	return run, nil
}
