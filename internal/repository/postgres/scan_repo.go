package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/qrscan/internal/errs"
	"github.com/and161185/qrscan/internal/model"
)

// ScanRepo implements ScanRepository using PostgreSQL.
type ScanRepo struct{ db *DB }

// NewScanRepo constructs a scan repository.
func NewScanRepo(db *DB) *ScanRepo { return &ScanRepo{db: db} }

// Save inserts a journal row.
func (r *ScanRepo) Save(ctx context.Context, rec *model.ScanRecord) error {
	const q = `
INSERT INTO scans (id, session_id, content_id, content_type, sender_name, encryption_label, content_enc, scanned_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q,
		rec.ID, rec.SessionID, rec.ContentID, rec.ContentType,
		rec.SenderName, rec.EncryptionLabel, rec.ContentEnc, rec.ScannedAt,
	)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateRecord
	}
	return err
}

// Recent lists the newest rows first.
func (r *ScanRepo) Recent(ctx context.Context, limit int) ([]model.ScanRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
SELECT id, session_id, content_id, content_type, sender_name, encryption_label, content_enc, scanned_at
FROM scans
ORDER BY scanned_at DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ScanRecord, 0, limit)
	for rows.Next() {
		var rec model.ScanRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ContentID, &rec.ContentType,
			&rec.SenderName, &rec.EncryptionLabel, &rec.ContentEnc, &rec.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
