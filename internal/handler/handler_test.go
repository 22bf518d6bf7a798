package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-logger/internal/models"
	"traffic-logger/internal/store"
)

const testBucket = "traffic-logs"

var (
	uuidV4Pattern   = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	locationPattern = regexp.MustCompile(`^s3://traffic-logs/logs/\d{4}/\d{2}/\d{2}/\d{2}/([0-9a-f-]{36})\.json$`)
)

type fakeNotifier struct {
	mu      sync.Mutex
	notices []models.StoredNotice
	err     error
}

func (f *fakeNotifier) Notify(ctx context.Context, notice models.StoredNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice)
	return f.err
}

func decodeEnvelope(t *testing.T, raw string) models.Envelope {
	t.Helper()
	var env models.Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func assertCommonHeaders(t *testing.T, resp events.APIGatewayProxyResponse) {
	t.Helper()
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func storedRecord(t *testing.T, obj store.Object) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(obj.Body, &rec))
	return rec
}

func TestHandlePageViewScenario(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)

	env := decodeEnvelope(t, `{
		"body": "{\"event\":\"page_view\",\"page\":\"/home\"}",
		"requestContext": {"identity": {"sourceIp": "203.0.113.42", "userAgent": "TestAgent/1.0"}}
	}`)

	resp, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assertCommonHeaders(t, resp)

	var body models.StoredResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "stored", body.Message)
	assert.Regexp(t, uuidV4Pattern, body.LogID)

	m := locationPattern.FindStringSubmatch(body.S3Location)
	require.NotNil(t, m, "unexpected location %q", body.S3Location)
	assert.Equal(t, body.LogID, m[1])

	objs := objects.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, testBucket, objs[0].Bucket)
	assert.Equal(t, "application/json", objs[0].ContentType)
	assert.Equal(t, "s3://"+testBucket+"/"+objs[0].Key, body.S3Location)

	rec := storedRecord(t, objs[0])
	assert.Equal(t, body.LogID, rec["id"])
	assert.Equal(t, "203.0.113.42", rec["source_ip"])
	assert.Equal(t, "TestAgent/1.0", rec["user_agent"])
	data, ok := rec["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/home", data["page"])
	assert.Equal(t, "page_view", data["event"])
}

func TestHandleMissingBody(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)

	resp, err := h.Handle(context.Background(), decodeEnvelope(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assertCommonHeaders(t, resp)
	assert.JSONEq(t, `{"error": "no request body present"}`, resp.Body)
	assert.Empty(t, objects.Objects())
}

func TestHandleInvalidJSON(t *testing.T) {
	for _, body := range []string{`{not json`, ``, `{"a":1`, `[1,2,]`} {
		t.Run(body, func(t *testing.T) {
			objects := store.NewMemory()
			h := New(objects, testBucket)

			resp, err := h.Handle(context.Background(), models.Envelope{Body: models.RawBody(body)})
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assertCommonHeaders(t, resp)

			var eresp models.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Body), &eresp))
			assert.Equal(t, "invalid JSON", eresp.Error)
			assert.NotEmpty(t, eresp.Details)
			assert.Empty(t, objects.Objects())
		})
	}
}

func TestHandleValidBodies(t *testing.T) {
	bodies := []string{`{"a":1}`, `[1,2,3]`, `"text"`, `42`, `true`, `null`, `{"nested":{"list":[{"x":null}]}}`}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			objects := store.NewMemory()
			h := New(objects, testBucket)

			resp, err := h.Handle(context.Background(), models.Envelope{Body: models.RawBody(body)})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			objs := objects.Objects()
			require.Len(t, objs, 1)
			var rec struct {
				Data json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(objs[0].Body, &rec))
			assert.JSONEq(t, body, string(rec.Data))
		})
	}
}

func TestHandlePreDecodedBody(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)

	resp, err := h.Handle(context.Background(), decodeEnvelope(t, `{"body": {"event": "click", "count": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rec := storedRecord(t, objects.Objects()[0])
	assert.Equal(t, map[string]any{"event": "click", "count": float64(3)}, rec["data"])
}

func TestHandleNullBodyIsStored(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)

	resp, err := h.Handle(context.Background(), decodeEnvelope(t, `{"body": null}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rec := storedRecord(t, objects.Objects()[0])
	assert.Contains(t, rec, "data")
	assert.Nil(t, rec["data"])
}

func TestHandleBase64Body(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"event":"b64"}`))
	resp, err := h.Handle(context.Background(), models.Envelope{Body: models.RawBody(encoded), IsBase64Encoded: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rec := storedRecord(t, objects.Objects()[0])
	assert.Equal(t, map[string]any{"event": "b64"}, rec["data"])

	resp, err = h.Handle(context.Background(), models.Envelope{Body: models.RawBody("%%%"), IsBase64Encoded: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Body, "invalid base64 body")
	assert.Len(t, objects.Objects(), 1)
}

func TestHandleContextDefaulting(t *testing.T) {
	tests := []struct {
		name        string
		envelope    string
		wantPresent bool
	}{
		{name: "empty identity", envelope: `{"body": "{}", "requestContext": {"identity": {}}}`, wantPresent: true},
		{name: "no request context", envelope: `{"body": "{}"}`, wantPresent: false},
		{name: "request context without identity", envelope: `{"body": "{}", "requestContext": {}}`, wantPresent: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			objects := store.NewMemory()
			h := New(objects, testBucket)

			resp, err := h.Handle(context.Background(), decodeEnvelope(t, tc.envelope))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			rec := storedRecord(t, objects.Objects()[0])
			if tc.wantPresent {
				assert.Equal(t, "unknown", rec["source_ip"])
				assert.Equal(t, "unknown", rec["user_agent"])
			} else {
				assert.NotContains(t, rec, "source_ip")
				assert.NotContains(t, rec, "user_agent")
			}
		})
	}
}

func TestHandleIdenticalCallsProduceDistinctRecords(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)
	env := models.Envelope{Body: models.RawBody(`{"same":"payload"}`)}

	first, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), env)
	require.NoError(t, err)

	var a, b models.StoredResponse
	require.NoError(t, json.Unmarshal([]byte(first.Body), &a))
	require.NoError(t, json.Unmarshal([]byte(second.Body), &b))
	assert.NotEqual(t, a.LogID, b.LogID)
	assert.NotEqual(t, a.S3Location, b.S3Location)

	objs := objects.Objects()
	require.Len(t, objs, 2)
	assert.NotEqual(t, objs[0].Key, objs[1].Key)
}

func TestHandleUsesInjectedClockAndID(t *testing.T) {
	objects := store.NewMemory()
	now := time.Date(2024, time.December, 31, 23, 59, 59, 500000000, time.UTC)
	h := New(objects, testBucket,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "fixed-id" }),
	)

	resp, err := h.Handle(context.Background(), models.Envelope{Body: models.RawBody(`{"k":"v"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"stored","log_id":"fixed-id","s3_location":"s3://traffic-logs/logs/2024/12/31/23/fixed-id.json"}`, resp.Body)

	obj, ok := objects.Get(testBucket, "logs/2024/12/31/23/fixed-id.json")
	require.True(t, ok)
	assert.Equal(t, "{\n  \"id\": \"fixed-id\",\n  \"timestamp\": \"2024-12-31T23:59:59.500000Z\",\n  \"data\": {\n    \"k\": \"v\"\n  }\n}", string(obj.Body))
}

func TestHandleStoreFailure(t *testing.T) {
	objects := store.NewMemory()
	objects.FailWith(errors.New("bucket does not exist"))
	notifier := &fakeNotifier{}
	h := New(objects, testBucket, WithNotifier(notifier))

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	resp, err := h.Handle(ctx, models.Envelope{Body: models.RawBody(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assertCommonHeaders(t, resp)

	var eresp models.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &eresp))
	assert.Equal(t, "internal error", eresp.Error)
	assert.Equal(t, "bucket does not exist", eresp.Details)
	assert.Empty(t, notifier.notices)
}

func TestHandleNotifies(t *testing.T) {
	objects := store.NewMemory()
	notifier := &fakeNotifier{}
	h := New(objects, testBucket, WithNotifier(notifier), WithIDGenerator(func() string { return "n-1" }))

	env := decodeEnvelope(t, `{"body": "{}", "requestContext": {"identity": {"sourceIp": "192.0.2.1"}}}`)
	resp, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, notifier.notices, 1)
	n := notifier.notices[0]
	assert.Equal(t, "n-1", n.LogID)
	assert.Equal(t, testBucket, n.Bucket)
	assert.Equal(t, objects.Objects()[0].Key, n.Key)
	require.NotNil(t, n.SourceIP)
	assert.Equal(t, "192.0.2.1", *n.SourceIP)
	require.NotNil(t, n.UserAgent)
	assert.Equal(t, "unknown", *n.UserAgent)
}

func TestHandleNotifierFailureDoesNotChangeResponse(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket, WithNotifier(&fakeNotifier{err: errors.New("queue gone")}))

	resp, err := h.Handle(context.Background(), models.Envelope{Body: models.RawBody(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, objects.Objects(), 1)
}

func TestHandleConcurrentInvocations(t *testing.T) {
	objects := store.NewMemory()
	h := New(objects, testBucket)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _ := h.Handle(context.Background(), models.Envelope{Body: models.RawBody(`{"c":1}`)})
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()

	keys := map[string]bool{}
	for _, o := range objects.Objects() {
		keys[o.Key] = true
	}
	assert.Len(t, keys, n)
}
