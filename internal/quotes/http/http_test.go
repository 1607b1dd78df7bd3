package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdviewer.com/internal/quotes/handler"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/internal/quotes/synthetic"
	"mdviewer.com/internal/quotes/ws"
	"mdviewer.com/pkg/common"
	"mdviewer.com/pkg/xerr"
)

func init() { gin.SetMode(gin.TestMode) }

// errProvider GetHistorical 固定返回 err
type errProvider struct{ err error }

func (p errProvider) Name() string { return "err" }

func (p errProvider) GetHistorical(context.Context, model.HistoricalRequest) (model.HistoricalResponse, error) {
	return model.HistoricalResponse{}, p.err
}

func (p errProvider) SubscribeLive(context.Context, []string, string) (*provider.LiveStream, error) {
	return nil, p.err
}

func newRouter(p provider.Provider, metrics bool) *gin.Engine {
	h := handler.NewQuotes(p, ws.NewServer(context.Background(), p))
	return NewRouter(Options{Service: "md-gateway-test", Metrics: metrics}, h)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var e common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	r := newRouter(synthetic.New(), false)
	w := do(r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(common.HeaderRequestID))
}

func TestRequestIDPropagated(t *testing.T) {
	r := newRouter(synthetic.New(), false)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(common.HeaderRequestID, "rid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-123", w.Header().Get(common.HeaderRequestID))
}

func TestHistorical_Trades(t *testing.T) {
	r := newRouter(synthetic.New(synthetic.WithSeed(1)), false)
	w := do(r, http.MethodPost, "/api/historical", `{
		"symbols": ["ES.FUT"],
		"schema": "trades",
		"start_rfc3339": "2024-01-02T14:30:00Z",
		"end_rfc3339": "2024-01-02T15:30:00Z",
		"limit": 5
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.HistoricalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.SchemaTrades, resp.Schema)
	assert.Len(t, resp.Trades, 5)
	for _, tr := range resp.Trades {
		assert.Equal(t, "ES.FUT", tr.Symbol)
	}
}

func TestHistorical_OhlcvOneHour(t *testing.T) {
	r := newRouter(synthetic.New(synthetic.WithSeed(1)), false)
	w := do(r, http.MethodPost, "/api/historical", `{
		"symbols": ["ES.FUT", "NQ.FUT"],
		"schema": "ohlcv-1m",
		"start_rfc3339": "2024-01-02T14:30:00Z",
		"end_rfc3339": "2024-01-02T15:30:00Z"
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.HistoricalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.SchemaOhlcv1m, resp.Schema)
	assert.Len(t, resp.Bars, 120)
}

func TestHistorical_EmptyDataIsArray(t *testing.T) {
	r := newRouter(synthetic.New(), false)
	w := do(r, http.MethodPost, "/api/historical", `{
		"symbols": ["ES.FUT"],
		"schema": "trades",
		"start_rfc3339": "2024-01-02T15:30:00Z",
		"end_rfc3339": "2024-01-02T14:30:00Z"
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"schema":"trades","data":[]}`, w.Body.String())
}

func TestHistorical_BadRequests(t *testing.T) {
	r := newRouter(synthetic.New(), false)
	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"schema", `{"symbols":["ES.FUT"],"schema":"mbp-10","start_rfc3339":"x","end_rfc3339":"y"}`, "Invalid schema: mbp-10"},
		{"start", `{"symbols":["ES.FUT"],"schema":"trades","start_rfc3339":"invalid-time","end_rfc3339":"2024-01-02T15:30:00Z"}`, "Invalid time format: start_rfc3339"},
		{"end", `{"symbols":["ES.FUT"],"schema":"trades","start_rfc3339":"2024-01-02T15:30:00Z","end_rfc3339":"tomorrow"}`, "Invalid time format: end_rfc3339"},
		{"body", `{"symbols":`, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/historical", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			e := decodeError(t, w)
			assert.Equal(t, uint16(http.StatusBadRequest), e.Code)
			assert.Contains(t, e.Error, tc.msg)
		})
	}
}

func TestHistorical_UpstreamStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{xerr.APIError("HTTP 500: boom"), http.StatusBadGateway},
		{xerr.ConnectionError("dial tcp: refused"), http.StatusBadGateway},
		{xerr.NotConfigured("api key is empty"), http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	body := `{"symbols":["ES.FUT"],"schema":"trades","start_rfc3339":"2024-01-02T14:30:00Z","end_rfc3339":"2024-01-02T15:30:00Z"}`
	for _, tc := range cases {
		w := do(newRouter(errProvider{err: tc.err}, false), http.MethodPost, "/api/historical", body)
		assert.Equal(t, tc.status, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, uint16(tc.status), e.Code)
		assert.Equal(t, tc.err.Error(), e.Error)
	}
}

func TestLiveThroughRouter(t *testing.T) {
	srv := httptest.NewServer(newRouter(synthetic.New(synthetic.WithSeed(3)), false))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live?symbols=CL.FUT&schema=trades"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	var first model.LiveMessage
	require.NoError(t, c.ReadJSON(&first))
	assert.Equal(t, model.Connected([]string{"CL.FUT"}, "trades"), first)

	var next model.LiveMessage
	require.NoError(t, c.ReadJSON(&next))
	assert.Equal(t, model.TypeTrade, next.Type)
	assert.Equal(t, "CL.FUT", next.Trade.Symbol)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(synthetic.New(), true)
	do(r, http.MethodGet, "/api/health", "")
	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mdviewer_")
}
