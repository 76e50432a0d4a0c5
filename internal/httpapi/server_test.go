package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyhelmet/helmetmon/internal/engine"
	"github.com/spyhelmet/helmetmon/internal/metrics"
	"github.com/spyhelmet/helmetmon/internal/models"
	"github.com/spyhelmet/helmetmon/internal/report"
)

type fakeViews struct {
	mu   sync.Mutex
	view engine.View
	subs []chan engine.View
}

func (f *fakeViews) View() engine.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeViews) Subscribe() (<-chan engine.View, func()) {
	ch := make(chan engine.View, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeViews) push(v engine.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = v
	for _, ch := range f.subs {
		ch <- v
	}
}

func (f *fakeViews) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeReports struct {
	mu          sync.Mutex
	doc         models.Report
	err         error
	opens       int
	closed      bool
	invalidated bool
}

func (f *fakeReports) Open(ctx context.Context) (models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.doc, f.err
}

func (f *fakeReports) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeReports) Invalidate() {
	f.mu.Lock()
	f.invalidated = true
	f.mu.Unlock()
}

func (f *fakeReports) State() report.State {
	return report.State{Visible: true}
}

func newTestServer(t *testing.T, views *fakeViews, reports *fakeReports, g prometheus.Gatherer) *httptest.Server {
	t.Helper()
	s := New("", views, reports, g, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeViews{}, &fakeReports{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestState_ReturnsView(t *testing.T) {
	views := &fakeViews{view: engine.View{
		Seq:        7,
		Connection: models.ConnectionState{LastFetchStatus: models.FetchSuccess, LatencyMs: 40, PacketNo: "A1"},
	}}
	ts := newTestServer(t, views, &fakeReports{}, nil)

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got engine.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, int64(40), got.Connection.LatencyMs)
	assert.Equal(t, "A1", got.Connection.PacketNo)
}

func TestState_RejectsPost(t *testing.T) {
	ts := newTestServer(t, &fakeViews{}, &fakeReports{}, nil)

	resp, err := http.Post(ts.URL+"/api/state", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestReport_OpenCloseInvalidate(t *testing.T) {
	reports := &fakeReports{doc: models.Report{WorkerID: "W-7", RiskLevel: models.RiskHigh}}
	ts := newTestServer(t, &fakeViews{}, reports, nil)

	resp, err := http.Get(ts.URL + "/api/report")
	require.NoError(t, err)
	var doc models.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "W-7", doc.WorkerID)

	resp, err = http.Post(ts.URL+"/api/report/close", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/report", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	reports.mu.Lock()
	defer reports.mu.Unlock()
	assert.Equal(t, 1, reports.opens)
	assert.True(t, reports.closed)
	assert.True(t, reports.invalidated)
}

func TestReport_FailureIsBadGateway(t *testing.T) {
	reports := &fakeReports{err: errors.New("service down")}
	ts := newTestServer(t, &fakeViews{}, reports, nil)

	resp, err := http.Get(ts.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "service down")
}

func TestMetrics_Exposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	require.NoError(t, err)
	rec.TickSkipped()

	ts := newTestServer(t, &fakeViews{}, &fakeReports{}, reg)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "helmetmon_ticks_skipped_total 1")
}

func TestMetrics_OmittedWithoutGatherer(t *testing.T) {
	ts := newTestServer(t, &fakeViews{}, &fakeReports{}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocket_PushesViews(t *testing.T) {
	views := &fakeViews{view: engine.View{Seq: 1}}
	ts := newTestServer(t, views, &fakeReports{}, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first engine.View
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Seq)

	require.Eventually(t, func() bool { return views.subscribers() == 1 }, time.Second, 5*time.Millisecond)
	views.push(engine.View{Seq: 2})

	var next engine.View
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(2), next.Seq)
}

func TestRecovery_HandlerPanicIs500(t *testing.T) {
	s := New("", &fakeViews{}, &fakeReports{}, nil, nil)
	h := s.Handler()

	// A nil view source panics inside the handler.
	s.views = nil
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
