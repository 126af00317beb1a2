// Package journal keeps an encrypted history of decoded QR content.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/crypto/clientcrypto"
	"github.com/and161185/qrscan/internal/model"
	"github.com/and161185/qrscan/internal/repository"
)

// Entry is a decrypted journal record.
type Entry struct {
	model.ScanRecord
	Content string
	// Sealed is set when the content could not be opened with the current key.
	Sealed bool
}

// Journal seals decoded content before it reaches the repository.
type Journal struct {
	repo    repository.ScanRepository
	dataKey []byte
	log     *zap.Logger
	now     func() time.Time
}

// New constructs a Journal. dataKey must be clientcrypto.KeyLen bytes.
func New(repo repository.ScanRepository, dataKey []byte, log *zap.Logger) (*Journal, error) {
	if repo == nil {
		return nil, errors.New("journal: nil repository")
	}
	if len(dataKey) != clientcrypto.KeyLen {
		return nil, fmt.Errorf("journal: data key must be %d bytes", clientcrypto.KeyLen)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{repo: repo, dataKey: dataKey, log: log, now: time.Now}, nil
}

// Record stores res under sessionID.
func (j *Journal) Record(ctx context.Context, sessionID uuid.UUID, res *model.DecodeResult) (*model.ScanRecord, error) {
	if res == nil || res.ContentID == "" {
		return nil, errors.New("validation: empty result")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	key, err := clientcrypto.DeriveRecordKey(j.dataKey, id.Bytes())
	if err != nil {
		return nil, err
	}
	blob, err := clientcrypto.Seal(key, clientcrypto.RecordAAD(id.Bytes(), res.ContentID), []byte(res.Content))
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	rec := &model.ScanRecord{
		ID:              id,
		SessionID:       sessionID,
		ContentID:       res.ContentID,
		ContentType:     res.ContentType,
		SenderName:      res.SenderName,
		EncryptionLabel: res.EncryptionLabel,
		ContentEnc:      blob,
		ScannedAt:       j.now().UTC().Truncate(time.Microsecond),
	}
	if err := j.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	j.log.Debug("journaled", zap.String("record", id.String()), zap.String("content_id", res.ContentID))
	return rec, nil
}

// Recent returns up to limit entries, newest first, with content opened.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 0 {
		return nil, errors.New("validation: negative limit")
	}
	recs, err := j.repo.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		e := Entry{ScanRecord: rec}
		pt, err := j.open(rec)
		if err != nil {
			j.log.Warn("journal entry unreadable", zap.String("record", rec.ID.String()), zap.Error(err))
			e.Sealed = true
		} else {
			e.Content = string(pt)
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *Journal) open(rec model.ScanRecord) ([]byte, error) {
	key, err := clientcrypto.DeriveRecordKey(j.dataKey, rec.ID.Bytes())
	if err != nil {
		return nil, err
	}
	return clientcrypto.Open(key, clientcrypto.RecordAAD(rec.ID.Bytes(), rec.ContentID), rec.ContentEnc)
}
