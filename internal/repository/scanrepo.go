// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/qrscan/internal/model"
)

// ScanRepository persists journaled decode results.
type ScanRepository interface {
	// Save inserts a record. Content must already be encrypted.
	Save(ctx context.Context, rec *model.ScanRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]model.ScanRecord, error)
}
