// Package qruri encodes and decodes the secure-QR URI scheme.
//
// Current form:  qrs://v?d=<base64(JSON)>
// Legacy form:   hideanythingqr://decode?data=<base64(JSON)>
// Oldest form:   the JSON object itself, unprefixed.
//
// Decoding never fails: input that matches none of the forms comes back
// unstructured and callers treat it as a foreign code.
package qruri

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/and161185/qrscan/internal/model"
)

const (
	Prefix       = "qrs://v?d="
	LegacyPrefix = "hideanythingqr://decode?data="

	// ContentIDField is the record key that marks a payload as application content.
	ContentIDField = "content_id"
)

// Decoded is the outcome of Decode. Record is nil when Raw matched no scheme.
type Decoded struct {
	Raw    string
	Record map[string]any
}

// Structured reports whether the input parsed into a record.
func (d Decoded) Structured() bool { return d.Record != nil }

// Decode applies the scheme rules in order: current prefix, legacy prefix, raw JSON.
func Decode(raw string) Decoded {
	out := Decoded{Raw: raw}
	switch {
	case strings.HasPrefix(raw, Prefix):
		out.Record = decodeBlob(raw[len(Prefix):])
	case strings.HasPrefix(raw, LegacyPrefix):
		out.Record = decodeBlob(raw[len(LegacyPrefix):])
	default:
		out.Record = parseRecord([]byte(strings.TrimSpace(raw)))
	}
	return out
}

// Parse decodes raw and accepts it only when the record carries a non-empty content_id string.
func Parse(raw string) (*model.SecureQRPayload, bool) {
	d := Decode(raw)
	if !d.Structured() {
		return nil, false
	}
	id, _ := d.Record[ContentIDField].(string)
	if strings.TrimSpace(id) == "" {
		return nil, false
	}
	return &model.SecureQRPayload{ContentID: id, Fields: d.Record}, true
}

// Encode builds a current-scheme URI for fields. fields must contain a non-empty content_id.
func Encode(fields map[string]any) (string, error) {
	id, _ := fields[ContentIDField].(string)
	if id == "" {
		return "", errors.New("qruri: content_id required")
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return Prefix + base64.StdEncoding.EncodeToString(b), nil
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBlob(s string) map[string]any {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "%") {
		if u, err := url.PathUnescape(s); err == nil {
			s = u
		}
	}
	if s == "" {
		return nil
	}
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		return parseRecord(b)
	}
	return nil
}

// parseRecord accepts only a JSON object; numbers, strings and arrays are not records.
func parseRecord(b []byte) map[string]any {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil
	}
	if dec.More() {
		return nil
	}
	return rec
}
