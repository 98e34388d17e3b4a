package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/notecrew/store"
)

// SaveFlowRun inserts a run record; a repeated run_id replaces the previous row.
func (d *DB) SaveFlowRun(ctx context.Context, run *store.FlowRun) (*store.FlowRun, error) {
	query := `
		INSERT INTO flow_run (
			run_id, request_id, idea_preview, image_ids, processed_images, total_images,
			status, error_message, report, duration_ms, created_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			request_id = EXCLUDED.request_id,
			idea_preview = EXCLUDED.idea_preview,
			image_ids = EXCLUDED.image_ids,
			processed_images = EXCLUDED.processed_images,
			total_images = EXCLUDED.total_images,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			report = EXCLUDED.report,
			duration_ms = EXCLUDED.duration_ms
		RETURNING id, created_ts
	`

	// image_ids is TEXT[] - use pq.Array
	// 始终提供有效的数组（没有图片时使用空数组）
	imageIDs := run.ImageIDs
	if imageIDs == nil {
		imageIDs = []string{}
	}

	if err := d.db.QueryRowContext(ctx, query,
		run.RunID,
		run.RequestID,
		run.IdeaPreview,
		pq.Array(imageIDs),
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
		WHERE run_id = $1
	`
	run := &store.FlowRun{}
	var status string
	err := d.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.RunID,
		&run.RequestID,
		&run.IdeaPreview,
		pq.Array(&run.ImageIDs),
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
	return run, nil
}
