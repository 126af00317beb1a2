package decodeapi

import (
	"encoding/json"
	"time"

	"github.com/and161185/qrscan/internal/model"
)

// wireResult mirrors the server's decode response, which spreads some fields
// between the top level and metadata.
type wireResult struct {
	ContentID        string         `json:"content_id"`
	SenderID         string         `json:"sender_id"`
	SenderName       string         `json:"sender_name"`
	ContentType      string         `json:"content_type"`
	EncryptionName   string         `json:"encryption_name"`
	DecryptedContent *string        `json:"decrypted_content"`
	Content          *string        `json:"content"`
	Text             *string        `json:"text"`
	IsEncrypted      bool           `json:"is_encrypted"`
	DecryptionError  *string        `json:"decryption_error"`
	DownloadURL      string         `json:"download_url"`
	CreatedAt        *string        `json:"created_at"`
	Metadata         map[string]any `json:"metadata"`
}

func parseResult(data []byte) (*model.DecodeResult, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	r := &model.DecodeResult{
		ContentID:       w.ContentID,
		SenderID:        w.SenderID,
		SenderName:      first(w.SenderName, w.SenderID, "Unknown"),
		ContentType:     first(metaString(w.Metadata, "type"), w.ContentType),
		EncryptionLabel: first(metaString(w.Metadata, "encryption_name"), w.EncryptionName, "Unknown"),
		Content:         first(deref(w.DecryptedContent), deref(w.Content), deref(w.Text)),
		Encrypted:       w.IsEncrypted,
		DecryptionError: deref(w.DecryptionError),
		MediaType:       metaString(w.Metadata, "content_type"),
		Filename:        metaString(w.Metadata, "filename"),
		Size:            metaInt(w.Metadata, "size"),
		DownloadURL:     w.DownloadURL,
		Metadata:        w.Metadata,
	}
	if w.CreatedAt != nil {
		r.CreatedAt = parseTime(*w.CreatedAt)
	}
	return r, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func metaString(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

func metaInt(m map[string]any, k string) int64 {
	if f, ok := m[k].(float64); ok {
		return int64(f)
	}
	return 0
}

// parseTime accepts RFC3339 and the offset-less ISO form produced by Python's isoformat.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
