package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/documents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/documents/{id}", "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/documents/{id}", "404"))
	assert.Equal(t, before+1, after)
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(edits.WithLabelValues(ResultIgnored))
	ObserveEdit(ResultIgnored)
	assert.Equal(t, before+1, testutil.ToFloat64(edits.WithLabelValues(ResultIgnored)))

	SetPendingWrites(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingWrites))

	base := testutil.ToFloat64(socketConnections)
	SocketOpened()
	SocketOpened()
	SocketClosed()
	assert.Equal(t, base+1, testutil.ToFloat64(socketConnections))
	SocketClosed()
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveJoin(ResultOK)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "collabtext_document_joins_total"))
}

func TestRecorderHijackUnsupported(t *testing.T) {
	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	assert.Error(t, err)
}
