package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mr1hm/go-quake-safety/internal/broadcast"
	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
	"github.com/mr1hm/go-quake-safety/internal/repository"
	"github.com/mr1hm/go-quake-safety/internal/safety"
	"github.com/mr1hm/go-quake-safety/internal/service"
	"github.com/mr1hm/go-quake-safety/internal/sources"
	"github.com/mr1hm/go-quake-safety/internal/telemetry"
)

type fakeEvaluator struct {
	result *service.Result
	err    error
	last   service.Request
	calls  int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req service.Request) (*service.Result, error) {
	f.calls++
	f.last = req
	return f.result, f.err
}

// mockRepo implements repository.EarthquakeRepository for testing
type mockRepo struct {
	quakes     []models.Earthquake
	lastFilter repository.Filter
}

func (m *mockRepo) Add(ctx context.Context, e *models.Earthquake) error {
	m.quakes = append(m.quakes, *e)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*models.Earthquake, error) {
	for _, e := range m.quakes {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockRepo) Exists(ctx context.Context, id string) (bool, error) {
	for _, e := range m.quakes {
		if e.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListEarthquakes(ctx context.Context, opts repository.Filter) ([]models.Earthquake, error) {
	m.lastFilter = opts
	results := m.quakes

	// Apply magnitude filter
	if opts.MinMagnitude != nil {
		var filtered []models.Earthquake
		for _, e := range results {
			if e.Magnitude >= *opts.MinMagnitude {
				filtered = append(filtered, e)
			}
		}
		results = filtered
	}

	// Apply limit
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}

func (m *mockRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type testCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID       string `json:"id"`
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func okResult() *service.Result {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &service.Result{
		Status:       service.StatusOK,
		UserLocation: &service.Location{Lat: 0, Lon: 0.05},
		Epicenter:    &service.Epicenter{Lat: 0, Lon: 0, Place: "Offshore", ID: "usgs_a", Time: &ts},
		Magnitude:    4,
		SafePlaces: []service.SafePlace{
			{Place: service.PlaceInfo{Name: "Field", Lat: 0, Lon: 0.25}, DistToUser: 22.239, SafetyScore: 0.394, Zone: "green"},
			{Place: service.PlaceInfo{Name: "School", Lat: 0, Lon: 0.15}, DistToUser: 11.119, SafetyScore: 0.199, Zone: "yellow"},
		},
	}
}

type routerDeps struct {
	eval        *fakeEvaluator
	repo        *mockRepo
	broadcaster *broadcast.Broadcaster
	metrics     *telemetry.Metrics
}

func setupTestRouter(d routerDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())

	var repo repository.EarthquakeRepository
	if d.repo != nil {
		repo = d.repo
	}
	handler := NewHandler(d.eval, repo, d.broadcaster, d.metrics)
	handler.RegisterRoutes(router)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestGetSafePlaces_OK(t *testing.T) {
	eval := &fakeEvaluator{result: okResult()}
	router := setupTestRouter(routerDeps{eval: eval})

	w := get(router, "/api/safe-places?lat=0&lon=0.05&top=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if eval.last.User == nil || eval.last.User.Longitude != 0.05 {
		t.Errorf("expected user point to be forwarded, got %+v", eval.last.User)
	}
	if eval.last.TopN != 2 {
		t.Errorf("expected top 2, got %d", eval.last.TopN)
	}

	var body struct {
		Status     string `json:"status"`
		Magnitude  float64
		SafePlaces []struct {
			Zone string `json:"zone"`
		} `json:"safe_places"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "ok" || len(body.SafePlaces) != 2 || body.SafePlaces[0].Zone != "green" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestGetSafePlaces_NoCoordinatesUsesLocator(t *testing.T) {
	eval := &fakeEvaluator{result: okResult()}
	router := setupTestRouter(routerDeps{eval: eval})

	w := get(router, "/api/safe-places")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if eval.last.User != nil {
		t.Errorf("expected nil user so the service falls back to its locator")
	}
}

func TestGetSafePlaces_NoQuakes(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{result: service.NoQuakes()}})

	w := get(router, "/api/safe-places?lat=10&lon=10")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "no_quakes" {
		t.Errorf("expected no_quakes status, got %v", body["status"])
	}
	if _, ok := body["safe_places"]; ok {
		t.Errorf("no_quakes result should not carry safe_places")
	}
}

func TestGetSafePlaces_BadRequest(t *testing.T) {
	tests := []string{
		"/api/safe-places?lat=10",
		"/api/safe-places?lon=10",
		"/api/safe-places?lat=abc&lon=10",
		"/api/safe-places?lat=91&lon=10",
		"/api/safe-places?lat=10&lon=10&top=0",
		"/api/safe-places?lat=10&lon=10&top=many",
		fmt.Sprintf("/api/safe-places?lat=10&lon=10&top=%d", maxTopN+1),
	}

	for _, path := range tests {
		eval := &fakeEvaluator{result: okResult()}
		router := setupTestRouter(routerDeps{eval: eval})

		w := get(router, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
		if eval.calls != 0 {
			t.Errorf("%s: evaluator should not be called", path)
		}
	}
}

func TestGetSafePlaces_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid magnitude", fmt.Errorf("rank: %w", safety.ErrInvalidMagnitude), http.StatusUnprocessableEntity},
		{"invalid coordinate", fmt.Errorf("user: %w", geo.ErrInvalidCoordinate), http.StatusBadRequest},
		{"no location", fmt.Errorf("%w: ipinfo down", service.ErrLocationUnavailable), http.StatusServiceUnavailable},
		{"upstream", fmt.Errorf("%w: overpass: status 504", sources.ErrUpstream), http.StatusBadGateway},
		{"bad upstream record", fmt.Errorf("%w: usgs_x: latitude 200", service.ErrInvalidEpicenter), http.StatusBadGateway},
		{"timeout", fmt.Errorf("usgs: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(routerDeps{eval: &fakeEvaluator{err: tt.err}})

			w := get(router, "/api/safe-places?lat=1&lon=1")
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}

			var body map[string]string
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["error"] == "" {
				t.Errorf("expected error message in body")
			}
		})
	}
}

func TestGetSafePlacesGeoJSON(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{result: okResult()}})

	w := get(router, "/api/safe-places.geojson?lat=0&lon=0.05")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	var fc testCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("expected type FeatureCollection, got %s", fc.Type)
	}
	// user + epicenter + 2 places
	if len(fc.Features) != 4 {
		t.Fatalf("expected 4 features, got %d", len(fc.Features))
	}

	if fc.Features[0].Properties["kind"] != kindUser {
		t.Errorf("expected user feature first, got %v", fc.Features[0].Properties["kind"])
	}
	if fc.Features[1].Properties["kind"] != kindEpicenter || fc.Features[1].ID != "usgs_a" {
		t.Errorf("expected epicenter feature second, got %+v", fc.Features[1])
	}

	first := fc.Features[2]
	if first.Properties["zone"] != "green" || first.Properties["rank"] != float64(1) {
		t.Errorf("unexpected first safe place: %v", first.Properties)
	}
	// GeoJSON is lon,lat
	if c := first.Geometry.Coordinates; len(c) != 2 || c[0] != 0.25 || c[1] != 0 {
		t.Errorf("expected coordinates [0.25 0], got %v", c)
	}
}

func TestGetSafePlacesGeoJSON_NoQuakes(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{result: service.NoQuakes()}})

	w := get(router, "/api/safe-places.geojson?lat=0&lon=0")

	var fc testCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(fc.Features) != 0 {
		t.Errorf("expected empty collection, got %d features", len(fc.Features))
	}
}

func TestGetEarthquakes_ReturnsGeoJSON(t *testing.T) {
	repo := &mockRepo{
		quakes: []models.Earthquake{
			{
				ID:        "usgs_1",
				Source:    "usgs",
				Title:     "M 5.5 - Test",
				Magnitude: 5.5,
				Latitude:  35.0,
				Longitude: 139.0,
				Depth:     10,
				Time:      time.Now(),
			},
		},
	}
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}, repo: repo})

	w := get(router, "/api/earthquakes")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var fc testCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}

	f := fc.Features[0]
	if f.ID != "usgs_1" {
		t.Errorf("expected id usgs_1, got %s", f.ID)
	}
	if c := f.Geometry.Coordinates; len(c) != 3 || c[0] != 139.0 || c[1] != 35.0 || c[2] != 10 {
		t.Errorf("expected [139 35 10], got %v", c)
	}
	if repo.lastFilter.Limit != 20 {
		t.Errorf("expected default limit 20, got %d", repo.lastFilter.Limit)
	}
}

func TestGetEarthquakes_Filters(t *testing.T) {
	repo := &mockRepo{
		quakes: []models.Earthquake{
			{ID: "e1", Magnitude: 6.0, Time: time.Now()},
			{ID: "e2", Magnitude: 4.0, Time: time.Now()},
			{ID: "e3", Magnitude: 7.5, Time: time.Now()},
		},
	}
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}, repo: repo})

	w := get(router, "/api/earthquakes?min_magnitude=5.0&limit=1&lat=35&lon=139&radius_km=250&since=2025-01-02")

	var fc testCollection
	json.Unmarshal(w.Body.Bytes(), &fc)
	if len(fc.Features) != 1 {
		t.Errorf("expected 1 earthquake, got %d", len(fc.Features))
	}

	f := repo.lastFilter
	if f.MinMagnitude == nil || *f.MinMagnitude != 5.0 {
		t.Errorf("expected min magnitude 5.0, got %v", f.MinMagnitude)
	}
	if f.Near == nil || f.Near.Latitude != 35 || f.RadiusKm != 250 {
		t.Errorf("expected near 35,139 within 250km, got %+v", f)
	}
	if f.Since == nil || !f.Since.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected since 2025-01-02, got %v", f.Since)
	}
}

func TestGetEarthquakes_BadCenter(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}, repo: &mockRepo{}})

	w := get(router, "/api/earthquakes?lat=35")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}})

	for _, path := range []string{"/api/earthquakes", "/api/earthquakes/stream", "/metrics"} {
		if w := get(router, path); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}, metrics: telemetry.NewMetrics()})

	w := get(router, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("expected go runtime metrics in output")
	}
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}})

	w := get(router, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestRequestID(t *testing.T) {
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}})

	w := get(router, "/health")
	if _, err := uuid.Parse(w.Header().Get(requestIDHeader)); err != nil {
		t.Errorf("expected generated request id, got %q", w.Header().Get(requestIDHeader))
	}

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, supplied)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != supplied {
		t.Errorf("expected request id %s to be echoed, got %s", supplied, got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	send := func(remote string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remote
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("192.0.2.1:1000"); code != http.StatusOK {
		t.Errorf("first request: expected 200, got %d", code)
	}
	if code := send("192.0.2.1:1001"); code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", code)
	}
	// Another client has its own budget
	if code := send("192.0.2.2:1000"); code != http.StatusOK {
		t.Errorf("other client: expected 200, got %d", code)
	}
}

func TestRateLimitMiddleware_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		proxies []string
		second  int
	}{
		{"no trusted proxies", nil, http.StatusTooManyRequests},
		{"peer is a trusted proxy", []string{"192.0.2.1"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := NewEngine(tt.proxies)
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}
			router.Use(RateLimitMiddleware(1))
			router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

			send := func(forwardedFor string) int {
				w := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "/ping", nil)
				req.RemoteAddr = "192.0.2.1:1000"
				req.Header.Set("X-Forwarded-For", forwardedFor)
				router.ServeHTTP(w, req)
				return w.Code
			}

			if code := send("203.0.113.1"); code != http.StatusOK {
				t.Errorf("first request: expected 200, got %d", code)
			}
			if code := send("203.0.113.2"); code != tt.second {
				t.Errorf("second request with new forwarded IP: expected %d, got %d", tt.second, code)
			}
		})
	}
}

func TestNewEngine_InvalidProxy(t *testing.T) {
	if _, err := NewEngine([]string{"not-an-ip"}); err == nil {
		t.Error("expected error for invalid proxy")
	}
}

func TestStreamEarthquakes(t *testing.T) {
	b := broadcast.NewBroadcaster()
	defer b.Close()

	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}, broadcaster: b})
	srv := httptest.NewServer(router)
	defer srv.Close()

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for b.SubscriberCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		b.Broadcast(&models.Earthquake{ID: "small", Magnitude: 3.0})
		b.Broadcast(&models.Earthquake{ID: "big", Magnitude: 6.2, Place: "Offshore"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/earthquakes/stream?min_magnitude=5", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	var event, data string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event:"); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = v
			break
		}
	}

	if event != "earthquake" {
		t.Errorf("expected earthquake event, got %q", event)
	}
	var got quakeEvent
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("failed to parse event data %q: %v", data, err)
	}
	if got.ID != "big" {
		t.Errorf("expected only the M6.2 event, got %s", got.ID)
	}
}

func TestStreamEarthquakes_BadMinMagnitude(t *testing.T) {
	b := broadcast.NewBroadcaster()
	defer b.Close()
	router := setupTestRouter(routerDeps{eval: &fakeEvaluator{}, broadcaster: b})

	w := get(router, "/api/earthquakes/stream?min_magnitude=-1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
