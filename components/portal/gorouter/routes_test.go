package gorouter

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	router "github.com/goliatone/go-router"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/components/portal/httpapi"
	"github.com/goliatone/go-civic-dashboard/pkg/backend"
)

func TestRegisterValidatesConfig(t *testing.T) {
	if err := Register(Config{}); err == nil {
		t.Fatalf("expected error when router/controller missing")
	}
}

func TestRegisterMountsRoutes(t *testing.T) {
	service, controller, _ := newTestPortal(t)
	mock := newMockRouter()
	err := Register(Config{
		Router:     mock,
		Controller: controller,
		API:        httpapi.NewCommandExecutor(service, nil),
		Broadcast:  service.Broadcast(),
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	for _, key := range []string{
		"GET:/portal/:section",
		"GET:/portal/_state",
		"POST:/portal/filter",
		"DELETE:/portal/filter",
		"POST:/portal/refresh",
		"POST:/portal/drilldown",
		"DELETE:/portal/drilldown",
	} {
		if _, ok := mock.routes[key]; !ok {
			t.Fatalf("expected route %s to be registered", key)
		}
	}
	if _, ok := mock.ws["/portal/ws"]; !ok {
		t.Fatalf("expected websocket route")
	}
	if mock.order[len(mock.order)-1] != "GET:/portal/:section" {
		t.Fatalf("page route must be mounted last, got %v", mock.order)
	}
}

func TestHTMLRouteOpensSession(t *testing.T) {
	_, controller, renderer := newTestPortal(t)
	routes := Routes(Config{Controller: controller})
	if len(routes) != 1 {
		t.Fatalf("expected only the page route without an API, got %d", len(routes))
	}

	ctx := newMockContext()
	ctx.params["section"] = "executive"
	ctx.query["state_cd"] = "Maharashtra"
	ctx.query["tab"] = "ignored"
	if err := routes[0].Handle(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if renderer.calls == 0 || string(ctx.body) != "ok" {
		t.Fatalf("renderer not invoked")
	}
	if ctx.headers[httpapi.SessionHeader] == "" {
		t.Fatalf("expected session header")
	}
}

func TestHTMLRouteUnknownSection(t *testing.T) {
	_, controller, _ := newTestPortal(t)
	ctx := newMockContext()
	ctx.params["section"] = "permits"
	if err := Routes(Config{Controller: controller})[0].Handle(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if ctx.status != 404 {
		t.Fatalf("expected 404, got %d", ctx.status)
	}
}

func TestFilterAndStateRoutes(t *testing.T) {
	service, controller, _ := newTestPortal(t)
	session, err := service.OpenSession(context.Background(), "executive", "")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	session.Wait()
	routes := routeIndex(Routes(Config{Controller: controller, API: httpapi.NewCommandExecutor(service, nil)}))

	ctx := newMockContext()
	ctx.query["session"] = session.ID
	ctx.body = []byte(`{"field":"state","value":"Maharashtra"}`)
	if err := routes["POST:/portal/filter"](ctx); err != nil {
		t.Fatalf("filter handler returned error: %v", err)
	}
	if ctx.status != 202 {
		t.Fatalf("expected 202, got %d: %s", ctx.status, ctx.body)
	}
	session.Wait()

	ctx = newMockContext()
	ctx.headers[httpapi.SessionHeader] = session.ID
	if err := routes["GET:/portal/_state"](ctx); err != nil {
		t.Fatalf("state handler returned error: %v", err)
	}
	var snap portal.SessionSnapshot
	if err := json.Unmarshal(ctx.body, &snap); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if snap.Filter.State != "Maharashtra" || snap.URL != "/portal/executive?state_cd=Maharashtra" {
		t.Fatalf("unexpected snapshot %#v", snap)
	}

	ctx = newMockContext()
	ctx.query["session"] = session.ID
	ctx.body = []byte(`{"field":"city","value":"Haveli"}`)
	if err := routes["POST:/portal/filter"](ctx); err != nil {
		t.Fatalf("filter handler returned error: %v", err)
	}
	if ctx.status != 400 {
		t.Fatalf("expected 400 for orphan city, got %d", ctx.status)
	}
}

// --- Test helpers ---

func newTestPortal(t *testing.T) (*portal.Service, *portal.Controller, *stubRenderer) {
	t.Helper()
	service, err := portal.NewService(portal.Options{Backend: backend.NewMockClient(backend.DemoData())})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(service.Close)
	renderer := &stubRenderer{}
	controller := portal.NewController(portal.ControllerOptions{Service: service, Renderer: renderer})
	return service, controller, renderer
}

func routeIndex(routes []Route) map[string]func(requestContext) error {
	out := make(map[string]func(requestContext) error, len(routes))
	for _, r := range routes {
		out[r.Method+":"+r.Path] = r.Handle
	}
	return out
}

type mockRouter struct {
	routes map[string]router.HandlerFunc
	ws     map[string]func(router.WebSocketContext) error
	order  []string
}

func newMockRouter() *mockRouter {
	return &mockRouter{
		routes: map[string]router.HandlerFunc{},
		ws:     map[string]func(router.WebSocketContext) error{},
	}
}

func (m *mockRouter) record(method, path string, handler router.HandlerFunc) {
	key := method + ":" + path
	m.routes[key] = handler
	m.order = append(m.order, key)
}

func (m *mockRouter) Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	m.record("GET", path, handler)
	return mockRouteInfo{}
}

func (m *mockRouter) Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	m.record("POST", path, handler)
	return mockRouteInfo{}
}

func (m *mockRouter) Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	m.record("DELETE", path, handler)
	return mockRouteInfo{}
}

func (m *mockRouter) WebSocket(path string, cfg router.WebSocketConfig, handler func(router.WebSocketContext) error) router.RouteInfo {
	m.ws[path] = handler
	return mockRouteInfo{}
}

type mockRouteInfo struct{}

func (mockRouteInfo) SetName(string) router.RouteInfo        { return mockRouteInfo{} }
func (mockRouteInfo) SetDescription(string) router.RouteInfo { return mockRouteInfo{} }
func (mockRouteInfo) SetSummary(string) router.RouteInfo     { return mockRouteInfo{} }
func (mockRouteInfo) AddTags(...string) router.RouteInfo     { return mockRouteInfo{} }
func (mockRouteInfo) AddParameter(string, string, bool, map[string]any) router.RouteInfo {
	return mockRouteInfo{}
}
func (mockRouteInfo) SetRequestBody(string, bool, map[string]any) router.RouteInfo {
	return mockRouteInfo{}
}
func (mockRouteInfo) AddResponse(int, string, map[string]any) router.RouteInfo {
	return mockRouteInfo{}
}

type mockContext struct {
	ctx     context.Context
	headers map[string]string
	params  map[string]string
	query   map[string]string
	body    []byte
	status  int
}

func newMockContext() *mockContext {
	return &mockContext{
		ctx:     context.Background(),
		headers: map[string]string{},
		params:  map[string]string{},
		query:   map[string]string{},
	}
}

func (m *mockContext) Context() context.Context { return m.ctx }

func (m *mockContext) Param(name string, defaultValue ...string) string {
	if v, ok := m.params[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *mockContext) Query(name string, defaultValue ...string) string {
	if v, ok := m.query[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *mockContext) Header(key string) string { return m.headers[key] }

func (m *mockContext) Body() []byte { return m.body }

func (m *mockContext) JSON(code int, v any) error {
	m.status = code
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.body = data
	return nil
}

func (m *mockContext) Send(b []byte) error {
	m.body = append([]byte{}, b...)
	return nil
}

func (m *mockContext) SetHeader(k, v string) router.Context {
	m.headers[k] = v
	return nil
}

type stubRenderer struct {
	calls int
}

func (s *stubRenderer) Render(name string, data any, out ...io.Writer) (string, error) {
	s.calls++
	if len(out) > 0 && out[0] != nil {
		out[0].Write([]byte("ok"))
	}
	return "ok", nil
}
