package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dealspulse/config"
	"dealspulse/feed"
	"dealspulse/models"
	"dealspulse/processor"
)

type fakeSnapshots struct{}

func (fakeSnapshots) FetchActive(ctx context.Context, prefixes []string, category *models.DealCategory) ([]models.Deal, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *feed.Store, *processor.Reconciler) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Feed.DefaultRadiusMiles = 5
	cfg.Feed.RefetchPerSecond = 100
	cfg.Feed.ExpirySweep = time.Hour
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Address = ":0"

	store := feed.NewStore()
	events := make(chan models.ChangeEvent)
	engine := processor.NewReconciler(cfg, store, fakeSnapshots{}, events)

	srv := NewServer(cfg.Dashboard, store, engine)
	if srv == nil {
		t.Fatal("expected server for enabled dashboard config")
	}
	return srv, store, engine
}

func newTestRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	srv.registerRoutes(router)
	return router
}

func TestNewServerDisabled(t *testing.T) {
	srv := NewServer(config.DashboardConfig{Enabled: false}, nil, nil)
	if srv != nil {
		t.Fatal("expected nil server when dashboard is disabled")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := newTestRouter(srv)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestFeedEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	router := newTestRouter(srv)

	expires := time.Now().Add(time.Hour)
	store.ReplaceAll([]models.FeedEntry{
		{Deal: models.Deal{ID: "d1", Title: "Half-price tacos", ExpiresAt: expires}, DistanceMiles: 0.4},
		{Deal: models.Deal{ID: "d2", Title: "Two-for-one coffee", ExpiresAt: expires}, DistanceMiles: 3.2},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/feed", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Entries []struct {
			Deal struct {
				ID string `json:"id"`
			} `json:"deal"`
			Distance string `json:"distance"`
		} `json:"entries"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got count=%d len=%d", resp.Count, len(resp.Entries))
	}
	if resp.Entries[0].Deal.ID != "d1" || resp.Entries[0].Distance != "0.4 mi" {
		t.Fatalf("unexpected first entry: %+v", resp.Entries[0])
	}
	if resp.Entries[1].Distance != "3 mi" {
		t.Fatalf("expected rounded distance for far entry, got %q", resp.Entries[1].Distance)
	}
}

func TestStateEndpointNoLocation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := newTestRouter(srv)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var st processor.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != processor.StateNoLocation {
		t.Fatalf("expected %q state, got %q", processor.StateNoLocation, st.State)
	}
}

func TestSetLocationEndpoint(t *testing.T) {
	srv, _, engine := newTestServer(t)
	router := newTestRouter(srv)

	body := strings.NewReader(`{"lat": 37.7749, "lng": -122.4194}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/location", body))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	params, ok := engine.Params()
	if !ok {
		t.Fatal("expected location to be set")
	}
	if params.CenterLat != 37.7749 || params.CenterLng != -122.4194 {
		t.Fatalf("unexpected center: %+v", params)
	}
}

func TestSetLocationEndpointRejectsOutOfRange(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := newTestRouter(srv)

	body := strings.NewReader(`{"lat": 120.0, "lng": 0.5}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/location", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range latitude, got %d", w.Code)
	}
}

func TestSetFiltersEndpoint(t *testing.T) {
	srv, _, engine := newTestServer(t)
	router := newTestRouter(srv)

	body := strings.NewReader(`{"radius_miles": 20, "category": "food"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/filters", body))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	params, _ := engine.Params()
	if params.RadiusMiles != 20 {
		t.Fatalf("expected radius 20, got %v", params.RadiusMiles)
	}
	if params.Category == nil || *params.Category != models.CategoryFood {
		t.Fatalf("expected food category, got %v", params.Category)
	}
}

func TestSetFiltersEndpointRejectsNonPositiveRadius(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := newTestRouter(srv)

	body := strings.NewReader(`{"radius_miles": -1}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/filters", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative radius, got %d", w.Code)
	}
}
