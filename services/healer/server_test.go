package healer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, raw []byte) Response

func (f handlerFunc) Handle(ctx context.Context, raw []byte) Response { return f(ctx, raw) }

func TestEventsEndpoint(t *testing.T) {
	var got []byte
	h := handlerFunc(func(_ context.Context, raw []byte) Response {
		got = raw
		return Response{StatusCode: http.StatusNotFound, Body: `{"error":"instance i-1 not found"}`}
	})
	routes, err := Routes(ServerOptions{Handler: h})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"instance_id":"i-1"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"instance i-1 not found"}`, rec.Body.String())
	assert.Equal(t, `{"instance_id":"i-1"}`, string(got))
}

func TestEventsEndpointEnvelope(t *testing.T) {
	h := handlerFunc(func(context.Context, []byte) Response {
		return Response{StatusCode: http.StatusBadRequest, Body: `{"error":"x"}`}
	})
	routes, err := Routes(ServerOptions{Handler: h})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events?envelope=true", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"statusCode":400,"body":"{\"error\":\"x\"}"}`, rec.Body.String())
}

func TestHealthAndReadiness(t *testing.T) {
	ready := errors.New("database unreachable")
	routes, err := Routes(ServerOptions{
		Handler: handlerFunc(func(context.Context, []byte) Response { return Response{} }),
		Ready:   func(context.Context) error { return ready },
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unreachable")

	ready = nil
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	m.observeInvocation(200, 0)

	routes, err := Routes(ServerOptions{
		Handler:  handlerFunc(func(context.Context, []byte) Response { return Response{} }),
		Gatherer: reg,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `autoheal_invocations_total{status_code="200"} 1`)
}

type auditReaderFunc func(ctx context.Context, instanceID string, limit int) ([]AuditEntry, error)

func (f auditReaderFunc) Recent(ctx context.Context, instanceID string, limit int) ([]AuditEntry, error) {
	return f(ctx, instanceID, limit)
}

func TestInstanceAuditEndpoint(t *testing.T) {
	var gotLimit int
	routes, err := Routes(ServerOptions{
		Handler: handlerFunc(func(context.Context, []byte) Response { return Response{} }),
		Audit: auditReaderFunc(func(_ context.Context, id string, limit int) ([]AuditEntry, error) {
			gotLimit = limit
			return []AuditEntry{{InstanceID: id, Action: "reboot", Status: AuditInitiated}}, nil
		}),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/instances/i-0abc123/audit?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)
	assert.Contains(t, rec.Body.String(), `"action":"reboot"`)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/instances/web-1/audit", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/instances/i-0abc123/audit?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesRequiresHandler(t *testing.T) {
	_, err := Routes(ServerOptions{})
	assert.Error(t, err)
}

type subscriberFunc func(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)

func (f subscriberFunc) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	return f(ctx, subj, durable, fn)
}

func TestConsumeAlertsAlwaysAcks(t *testing.T) {
	var (
		gotSubject, gotDurable string
		deliver                func(ctx context.Context, data []byte) error
	)
	sub := subscriberFunc(func(_ context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
		gotSubject, gotDurable, deliver = subj, durable, fn
		return io.NopCloser(nil), nil
	})
	var handled []string
	h := handlerFunc(func(_ context.Context, raw []byte) Response {
		handled = append(handled, string(raw))
		return Response{StatusCode: http.StatusInternalServerError}
	})

	_, err := ConsumeAlerts(context.Background(), sub, "", "", h, testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultAlertsSubject, gotSubject)
	assert.Equal(t, "autoheal-alerts", gotDurable)

	require.NoError(t, deliver(context.Background(), []byte(`{"instance_id":"i-1"}`)))
	assert.Equal(t, []string{`{"instance_id":"i-1"}`}, handled)
}
