package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"segmentline/internal/collector"
	"segmentline/internal/config"
	"segmentline/internal/domain"
	"segmentline/internal/engine"
	"segmentline/internal/metrics"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type fakeCollector struct {
	mu     sync.Mutex
	status int
	body   string
	bodies []string
	types  []string
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(b))
	f.types = append(f.types, r.Header.Get("Content-Type"))
	status, body := f.status, f.body
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeCollector) Request(i int) (body, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i], f.types[i]
}

func (f *fakeCollector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func newTestServer(t *testing.T, fc *fakeCollector) (*testServer, func()) {
	t.Helper()
	upstream := httptest.NewServer(fc)
	rec := metrics.New()
	e := engine.New(config.DefaultCatalog(), collector.New(upstream.URL, 0))
	e.Metrics = rec
	handler, err := New(Config{Engine: e, Session: e.NewSession(), BasePath: "/v0", Metrics: rec})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			upstream.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeView(t *testing.T, data []byte) domain.View {
	t.Helper()
	var v domain.View
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal view: %v (%s)", err, string(data))
	}
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return env
}

func mustStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d: %s", res.Request.Method, res.Request.URL.Path, want, res.StatusCode, string(data))
	}
}

func TestComposeAndSubmit(t *testing.T) {
	fc := &fakeCollector{}
	srv, cleanup := newTestServer(t, fc)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/open", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	v := decodeView(t, data)
	if !v.Open || len(v.Slots) != 1 {
		t.Fatalf("unexpected open view %+v", v)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/name", map[string]any{"name": "Power Users"}, nil)
	mustStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/0", map[string]any{"value": "age"}, nil)
	mustStatus(t, res, data, http.StatusOK)
	v = decodeView(t, data)
	if len(v.Preview.Schema) != 1 || v.Preview.Schema[0]["age"] != "Age" {
		t.Fatalf("unexpected preview %+v", v.Preview)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/submit", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	v = decodeView(t, data)
	if v.Status != domain.StatusSucceeded || v.Result == nil || v.Result.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", v)
	}
	if fc.Calls() != 1 {
		t.Fatalf("expected one collector call, got %d", fc.Calls())
	}
	body, contentType := fc.Request(0)
	if body != `{"segment_name":"Power Users","schema":[{"age":"Age"}]}` {
		t.Fatalf("unexpected collector body %s", body)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type %s", contentType)
	}
}

func TestAvailabilityOverAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, &fakeCollector{})
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/open", nil, nil)
	doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/0", map[string]any{"value": "city"}, nil)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/slots", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	v := decodeView(t, data)
	for _, e := range v.Availability[1] {
		if e.Value == "city" {
			t.Fatalf("slot 1 must not offer city")
		}
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/1", map[string]any{"value": "city"}, nil)
	mustStatus(t, res, data, http.StatusUnprocessableEntity)
	if env := decodeError(t, data); env.Error.Code != "validation_failed" {
		t.Fatalf("unexpected error code %s", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/0", map[string]any{"value": ""}, nil)
	mustStatus(t, res, data, http.StatusOK)
	v = decodeView(t, data)
	found := false
	for _, e := range v.Availability[1] {
		if e.Value == "city" {
			found = true
		}
	}
	if !found {
		t.Fatalf("city should be offered in slot 1 again")
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/compose/slots/5", nil, nil)
	mustStatus(t, res, data, http.StatusBadRequest)
	if env := decodeError(t, data); env.Error.Code != "index_out_of_range" {
		t.Fatalf("unexpected error code %s", env.Error.Code)
	}
}

func TestSubmitValidationMakesNoCall(t *testing.T) {
	fc := &fakeCollector{}
	srv, cleanup := newTestServer(t, fc)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/open", nil, nil)
	doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/0", map[string]any{"value": "age"}, nil)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/submit", nil, nil)
	mustStatus(t, res, data, http.StatusUnprocessableEntity)
	env := decodeError(t, data)
	if env.Error.Message != engine.ReasonMissingName {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
	if fc.Calls() != 0 {
		t.Fatalf("expected no collector call, got %d", fc.Calls())
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/compose", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	v := decodeView(t, data)
	if v.Status != domain.StatusFailed || v.Result == nil {
		t.Fatalf("expected failed status with message, got %+v", v)
	}
}

func TestSubmitCollectorFailure(t *testing.T) {
	fc := &fakeCollector{status: http.StatusInternalServerError, body: "nope"}
	srv, cleanup := newTestServer(t, fc)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/open", nil, nil)
	doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/name", map[string]any{"name": "X"}, nil)
	doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/0", map[string]any{"value": "first_name"}, nil)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/slots", nil, nil)
	doJSON(t, client, http.MethodPut, srv.URL+"/v0/compose/slots/1", map[string]any{"value": "city"}, nil)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/submit", nil, nil)
	mustStatus(t, res, data, http.StatusBadGateway)
	env := decodeError(t, data)
	if env.Error.Code != "submission_failed" || !strings.Contains(env.Error.Message, "500") {
		t.Fatalf("unexpected error %+v", env.Error)
	}
	if got, ok := env.Error.Details["collector_status"].(float64); !ok || got != 500 {
		t.Fatalf("expected collector_status 500, got %v", env.Error.Details["collector_status"])
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/compose", nil, nil)
	v := decodeView(t, data)
	if v.Name != "X" || strings.Join(v.Slots, ",") != "first_name,city" {
		t.Fatalf("draft must be preserved, got %+v", v)
	}
}

func TestIntentsBeforeOpenConflict(t *testing.T) {
	srv, cleanup := newTestServer(t, &fakeCollector{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/compose/name", map[string]any{"name": "X"}, nil)
	mustStatus(t, res, data, http.StatusConflict)
	if env := decodeError(t, data); env.Error.Code != "compose_closed" {
		t.Fatalf("unexpected code %s", env.Error.Code)
	}
}

func TestCatalogHealthAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t, &fakeCollector{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	mustStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/catalog", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	var cat CatalogResponse
	if err := json.Unmarshal(data, &cat); err != nil {
		t.Fatalf("unmarshal catalog: %v", err)
	}
	if len(cat.Items) != 7 || cat.Items[0].Value != "first_name" {
		t.Fatalf("unexpected catalog %+v", cat.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), "/v0/compose/submit") {
		t.Fatalf("openapi spec missing submit path")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil, nil)
	mustStatus(t, res, data, http.StatusOK)

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/compose/open", nil, nil)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	mustStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), `segmentline_intents_total{intent="open",result="ok"} 1`) {
		t.Fatalf("metrics missing open intent: %s", string(data))
	}
}

func TestOpenAPIConcurrentFirstFetch(t *testing.T) {
	e := engine.New(config.DefaultCatalog(), collector.New("http://127.0.0.1:9/hook", 0))
	handler, err := New(Config{Engine: e, Session: e.NewSession()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}

	const n = 16
	start := make(chan struct{})
	bodies := make([]string, n)
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/openapi.json", nil))
			codes[i] = rec.Code
			bodies[i] = rec.Body.String()
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		if codes[i] != http.StatusOK {
			t.Fatalf("request %d: status %d", i, codes[i])
		}
		if bodies[i] != bodies[0] {
			t.Fatalf("request %d served a different document", i)
		}
	}
	if !strings.Contains(bodies[0], `"default"`) {
		t.Fatalf("openapi document missing default error responses")
	}
}
