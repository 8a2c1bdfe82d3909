package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-civic-dashboard/components/portal"
)

func TestNewHTTPClientAppendsAPIPrefix(t *testing.T) {
	client, err := NewHTTPClient(HTTPConfig{BaseURL: "http://backend.local/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.BaseURL() != "http://backend.local/api" {
		t.Fatalf("unexpected base url %s", client.BaseURL())
	}
	client, err = NewHTTPClient(HTTPConfig{BaseURL: "http://backend.local/api"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.BaseURL() != "http://backend.local/api" {
		t.Fatalf("prefix should not be doubled, got %s", client.BaseURL())
	}
	if _, err := NewHTTPClient(HTTPConfig{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestHTTPClientStates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/dashboard/geo/states" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected auth header, got %s", got)
		}
		_, _ = io.WriteString(w, `{"states":["Karnataka","Maharashtra"]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "secret", Validator: NewSchemaValidator()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	states, err := client.States(context.Background())
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	if len(states) != 2 || states[1] != "Maharashtra" {
		t.Fatalf("unexpected states %#v", states)
	}
}

func TestHTTPClientCitiesSendsBothAncestors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "state_cd=Maharashtra&c_district=Pune" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"cities":["Haveli"]}`)
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	cities, err := client.Cities(context.Background(), "Maharashtra", "Pune")
	if err != nil {
		t.Fatalf("cities: %v", err)
	}
	if len(cities) != 1 || cities[0] != "Haveli" {
		t.Fatalf("unexpected cities %#v", cities)
	}
}

func TestHTTPClientSchemaRejectsMalformedGeoList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"districts":"Pune"}`)
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL, Validator: NewSchemaValidator()})
	if _, err := client.Districts(context.Background(), "Maharashtra"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestHTTPClientGetPayloadWrapsArrays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "10" {
			t.Errorf("expected limit query, got %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"maker_model":"Swift","volume":900}]`)
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	payload, err := client.GetPayload(context.Background(), "/dashboard/vahan/oem/top-models", map[string][]string{"limit": {"10"}})
	if err != nil {
		t.Fatalf("get payload: %v", err)
	}
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected wrapped items, got %#v", payload)
	}
}

func TestHTTPClientErrorCarriesStatusAndDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"database unavailable"}`)
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	_, err := client.GetPayload(context.Background(), "/dashboard/executive-summary", nil)
	var fe *portal.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Status != http.StatusInternalServerError || fe.Message != "database unavailable" {
		t.Fatalf("unexpected error %#v", fe)
	}
	want := "Failed to fetch dashboard data (HTTP 500): database unavailable"
	if got := portal.ErrorMessage("dashboard data", err); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestHTTPClientInsights(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/kpi/insights" || r.URL.Query().Get("section") != "fleet" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"insights": []any{
				map[string]any{"type": "insight", "title": "Growth", "description": "Up 5%"},
				map[string]any{"type": "recommendation", "title": "Drive", "description": "Run a fitness drive"},
			},
		})
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL, Validator: NewSchemaValidator()})
	payload, err := client.FetchInsights(context.Background(), portal.InsightQuery{State: "MH", Month: "2025-02", Section: "fleet"})
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if len(payload.Insights) != 1 || len(payload.Recommendations) != 1 {
		t.Fatalf("unexpected insights %#v", payload)
	}
}

func TestHTTPClientEngineTimeoutIsSlowOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL, EngineTimeout: 20 * time.Millisecond})
	_, err := client.DetectVehicle(context.Background(), Upload{Name: "car.jpg", Content: strings.NewReader("jpeg")})
	if !errors.Is(err, portal.ErrSlowOperation) {
		t.Fatalf("expected slow operation error, got %v", err)
	}
	fe := portal.NormalizeError(err)
	if !fe.Timeout || fe.Message != portal.SlowOperationMessage {
		t.Fatalf("unexpected error %#v", fe)
	}
}

func TestHTTPClientDashboardTimeoutIsNotSlowOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	_, err := client.GetPayload(context.Background(), "/kpi/summary", nil)
	if err == nil {
		t.Fatalf("expected timeout")
	}
	if errors.Is(err, portal.ErrSlowOperation) {
		t.Fatalf("dashboard timeouts must not use the engine message")
	}
	if !portal.NormalizeError(err).Timeout {
		t.Fatalf("expected timeout flag")
	}
}

func TestHTTPClientVerifyAadhaarSendsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("aadhaar_number"); got != "123412341234" {
			t.Errorf("expected stripped number, got %q", got)
		}
		if got := r.FormValue("name"); got != "Asha Patil" {
			t.Errorf("unexpected name %q", got)
		}
		file, header, err := r.FormFile("image_file")
		if err != nil {
			t.Errorf("missing image: %v", err)
		} else {
			file.Close()
			if header.Filename != "card.png" {
				t.Errorf("unexpected filename %s", header.Filename)
			}
		}
		_, _ = io.WriteString(w, `{"is_verified":true}`)
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	result, err := client.VerifyAadhaar(context.Background(), AadhaarRequest{
		Name:          "Asha Patil",
		DOB:           "1990-01-01",
		AadhaarNumber: "1234 1234 1234",
		Gender:        "female",
		Image:         Upload{Name: "/tmp/card.png", Content: strings.NewReader("png")},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result["is_verified"] != true {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestHTTPClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{Response: "echo: " + req.Message, SessionID: "s-1"})
	}))
	t.Cleanup(server.Close)

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	resp, err := client.Chat(context.Background(), ChatRequest{Message: "hello", Language: "english"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Response != "echo: hello" || resp.SessionID != "s-1" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestMockClient(t *testing.T) {
	client := NewMockClient(DemoData())
	districts, err := client.Districts(context.Background(), "Maharashtra")
	if err != nil || len(districts) != 3 {
		t.Fatalf("unexpected districts %#v (%v)", districts, err)
	}
	client.Fail(PathExecutive, errors.New("boom"))
	if _, err := client.GetPayload(context.Background(), PathExecutive, nil); err == nil {
		t.Fatalf("expected injected failure")
	}
	client.Fail(PathExecutive, nil)
	payload, err := client.GetPayload(context.Background(), PathExecutive, nil)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if portal.DecodeExecutive(payload).TotalRegistrations != 9536 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if client.Calls(PathExecutive) != 2 {
		t.Fatalf("expected 2 calls, got %d", client.Calls(PathExecutive))
	}
}

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (o *recordingObserver) ObserveRequest(path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func TestHTTPClientObservesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"detail":"maintenance"}`)
	}))
	t.Cleanup(server.Close)

	observer := &recordingObserver{}
	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, Observer: observer})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GetPayload(context.Background(), PathExecutive, nil); err == nil {
		t.Fatalf("expected error")
	}
	if len(observer.paths) != 1 || observer.paths[0] != "/api"+PathExecutive || observer.statuses[0] != http.StatusServiceUnavailable {
		t.Fatalf("unexpected observations %#v %#v", observer.paths, observer.statuses)
	}
}
