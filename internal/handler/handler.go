// Package handler turns gateway envelopes into persisted log records.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"traffic-logger/internal/models"
	"traffic-logger/internal/notify"
	"traffic-logger/internal/store"
)

var log = logging.Logger("handler")

const contentTypeJSON = "application/json"

// Handler persists each accepted event as one object in the store.
type Handler struct {
	objects  store.ObjectStore
	bucket   string
	notifier notify.Notifier
	newID    func() string
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotifier publishes a notice after every successful write.
func WithNotifier(n notify.Notifier) Option {
	return func(h *Handler) {
		h.notifier = n
	}
}

// WithIDGenerator replaces the UUID v4 generator.
func WithIDGenerator(newID func() string) Option {
	return func(h *Handler) {
		h.newID = newID
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func New(objects store.ObjectStore, bucket string, opts ...Option) *Handler {
	h := &Handler{
		objects: objects,
		bucket:  bucket,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bucket returns the destination bucket name.
func (h *Handler) Bucket() string {
	return h.bucket
}

// Handle processes one envelope. The returned error is always nil; every
// failure is reported through the response.
func (h *Handler) Handle(ctx context.Context, env models.Envelope) (events.APIGatewayProxyResponse, error) {
	rec, key, err := h.persist(ctx, env)
	if err != nil {
		return h.failure(ctx, err), nil
	}

	if h.notifier != nil {
		if nerr := h.notifier.Notify(ctx, models.NewStoredNotice(rec, h.bucket, key)); nerr != nil {
			log.Warnw("stored-record notification failed", "request_id", requestID(ctx), "log_id", rec.ID, "err", nerr)
		}
	}

	log.Infow("stored record", "request_id", requestID(ctx), "log_id", rec.ID, "key", key)
	return jsonResponse(http.StatusOK, models.StoredResponse{
		Message:    "stored",
		LogID:      rec.ID,
		S3Location: fmt.Sprintf("s3://%s/%s", h.bucket, key),
	}), nil
}

func (h *Handler) persist(ctx context.Context, env models.Envelope) (models.Record, string, error) {
	data, err := decodeBody(env)
	if err != nil {
		return models.Record{}, "", err
	}

	rec := models.NewRecord(h.newID(), h.now(), data)
	rec.Enrich(env.RequestContext)

	key := models.StorageKey(rec.CreatedAt(), rec.ID)
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return models.Record{}, "", fmt.Errorf("encode record: %w", err)
	}
	if err := h.objects.PutObject(ctx, h.bucket, key, payload, contentTypeJSON); err != nil {
		return models.Record{}, "", err
	}
	return rec, key, nil
}

func decodeBody(env models.Envelope) (json.RawMessage, error) {
	if !env.Body.Present() {
		return nil, models.ErrNoBody
	}

	text, ok := env.Body.Raw()
	if !ok {
		return append(json.RawMessage(nil), env.Body.Value()...), nil
	}

	if env.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, &models.DecodeError{Reason: "invalid base64 body", Err: err}
		}
		text = string(decoded)
	}

	var data json.RawMessage
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, &models.DecodeError{Reason: "invalid JSON", Err: err}
	}
	return data, nil
}

func (h *Handler) failure(ctx context.Context, err error) events.APIGatewayProxyResponse {
	if errors.Is(err, models.ErrNoBody) {
		return jsonResponse(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrNoBody.Error()})
	}

	var decodeErr *models.DecodeError
	if errors.As(err, &decodeErr) {
		log.Debugw("rejected request body", "request_id", requestID(ctx), "err", err)
		return jsonResponse(http.StatusBadRequest, models.ErrorResponse{
			Error:   decodeErr.Reason,
			Details: decodeErr.Err.Error(),
		})
	}

	log.Errorw("failed to store record", "request_id", requestID(ctx), "bucket", h.bucket, "err", err)
	return jsonResponse(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal error",
		Details: err.Error(),
	})
}

func jsonResponse(code int, payload any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(payload)
	return events.APIGatewayProxyResponse{
		StatusCode: code,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type":                contentTypeJSON,
			"Access-Control-Allow-Origin": "*",
		},
	}
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}
