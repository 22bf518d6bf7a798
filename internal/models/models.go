package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampFormat is the ISO-8601 UTC layout used for record timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// UnknownIdentity fills identity fields the gateway did not supply.
const UnknownIdentity = "unknown"

// ErrNoBody is returned when the envelope carries no body field at all.
var ErrNoBody = errors.New("no request body present")

// DecodeError reports a client-caused body decoding failure.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Body is the envelope body: absent, raw encoded text, or an already decoded
// JSON value.
type Body struct {
	present bool
	raw     *string
	value   json.RawMessage
}

// RawBody builds a body holding encoded JSON text.
func RawBody(text string) Body {
	return Body{present: true, raw: &text}
}

// DecodedBody builds a body holding an already decoded JSON value.
func DecodedBody(value json.RawMessage) Body {
	return Body{present: true, value: value}
}

// Present reports whether the envelope had a body field.
func (b Body) Present() bool {
	return b.present
}

// Raw returns the encoded text and true when the body arrived as a string.
func (b Body) Raw() (string, bool) {
	if b.raw == nil {
		return "", false
	}
	return *b.raw, true
}

// Value returns the pre-decoded value. Only meaningful when Raw reports false.
func (b Body) Value() json.RawMessage {
	return b.value
}

// UnmarshalJSON resolves the string-or-value duality once.
func (b *Body) UnmarshalJSON(data []byte) error {
	b.present = true
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		b.raw = &s
		b.value = nil
		return nil
	}
	b.raw = nil
	b.value = append(json.RawMessage(nil), trimmed...)
	return nil
}

func (b Body) MarshalJSON() ([]byte, error) {
	switch {
	case !b.present:
		return []byte("null"), nil
	case b.raw != nil:
		return json.Marshal(*b.raw)
	case len(b.value) == 0:
		return []byte("null"), nil
	default:
		return b.value, nil
	}
}

// Identity holds caller identity fields filled in by the gateway.
type Identity struct {
	SourceIP  *string `json:"sourceIp,omitempty"`
	UserAgent *string `json:"userAgent,omitempty"`
}

// RequestContext is the subset of the gateway request context we read.
type RequestContext struct {
	Identity *Identity `json:"identity,omitempty"`
}

// Envelope is the inbound event produced by the gateway layer.
type Envelope struct {
	Body            Body            `json:"body"`
	IsBase64Encoded bool            `json:"isBase64Encoded,omitempty"`
	RequestContext  *RequestContext `json:"requestContext,omitempty"`
}

// Record is the object persisted for every accepted event.
type Record struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	SourceIP  *string         `json:"source_ip,omitempty"`
	UserAgent *string         `json:"user_agent,omitempty"`

	createdAt time.Time
}

// NewRecord builds a record with a UTC timestamp taken from now.
func NewRecord(id string, now time.Time, data json.RawMessage) Record {
	now = now.UTC()
	return Record{
		ID:        id,
		Timestamp: now.Format(TimestampFormat),
		Data:      data,
		createdAt: now,
	}
}

// CreatedAt returns the instant the record was built from.
func (r Record) CreatedAt() time.Time {
	return r.createdAt
}

// Enrich copies gateway identity into the record. Without an identity block
// the fields stay omitted; with one, each missing field becomes "unknown".
func (r *Record) Enrich(rc *RequestContext) {
	if rc == nil || rc.Identity == nil {
		return
	}
	r.SourceIP = orUnknown(rc.Identity.SourceIP)
	r.UserAgent = orUnknown(rc.Identity.UserAgent)
}

func orUnknown(s *string) *string {
	v := UnknownIdentity
	if s != nil {
		v = *s
	}
	return &v
}

// StorageKey derives logs/YYYY/MM/DD/HH/<id>.json from the record's creation time.
func StorageKey(createdAt time.Time, id string) string {
	t := createdAt.UTC()
	return fmt.Sprintf("logs/%04d/%02d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), t.Hour(), id)
}

// StoredResponse is returned after a record was written.
type StoredResponse struct {
	Message    string `json:"message"`
	LogID      string `json:"log_id"`
	S3Location string `json:"s3_location"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StoredNotice announces a persisted record to downstream consumers.
type StoredNotice struct {
	LogID     string  `json:"log_id"`
	Bucket    string  `json:"bucket"`
	Key       string  `json:"key"`
	Timestamp string  `json:"timestamp"`
	SourceIP  *string `json:"source_ip,omitempty"`
	UserAgent *string `json:"user_agent,omitempty"`
}

// NewStoredNotice describes where rec was written.
func NewStoredNotice(rec Record, bucket, key string) StoredNotice {
	return StoredNotice{
		LogID:     rec.ID,
		Bucket:    bucket,
		Key:       key,
		Timestamp: rec.Timestamp,
		SourceIP:  rec.SourceIP,
		UserAgent: rec.UserAgent,
	}
}
