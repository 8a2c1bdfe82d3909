package gorouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	router "github.com/goliatone/go-router"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/components/portal/commands"
	"github.com/goliatone/go-civic-dashboard/components/portal/httpapi"
)

// Registrar is the subset of router.Router the portal mounts on.
type Registrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	WebSocket(path string, cfg router.WebSocketConfig, handler func(router.WebSocketContext) error) router.RouteInfo
}

// PageRenderer opens a section session and renders it as HTML.
type PageRenderer interface {
	Open(ctx context.Context, section, rawQuery string) (*portal.Session, error)
	RenderTemplate(ctx context.Context, session *portal.Session, out io.Writer) error
}

// Config wires go-router with the portal controller, API and event hook.
type Config struct {
	Router     Registrar
	Controller PageRenderer
	API        httpapi.Executor
	Broadcast  *portal.BroadcastHook
	BasePath   string
	Routes     RouteConfig
}

// RouteConfig customizes the relative paths used for portal endpoints.
type RouteConfig struct {
	HTML      string
	State     string
	Narrative string
	Filter    string
	Month     string
	Refresh   string
	DrillDown string
	Reload    string
	Session   string
	WebSocket string
}

// Route is one mounted endpoint.
type Route struct {
	Method string
	Path   string
	Handle func(requestContext) error
}

// requestContext is the part of router.Context the handlers read.
type requestContext interface {
	Context() context.Context
	Param(name string, defaultValue ...string) string
	Query(name string, defaultValue ...string) string
	Header(key string) string
	Body() []byte
	JSON(code int, v any) error
	Send(body []byte) error
	SetHeader(key, value string) router.Context
}

// geoQueryKeys are forwarded from the page URL into the session.
var geoQueryKeys = []string{"state_cd", "c_district", "city", "month"}

// Register mounts portal routes (HTML, JSON, WebSocket) on a go-router router.
func Register(cfg Config) error {
	if cfg.Router == nil {
		return errors.New("gorouter: router is required")
	}
	if cfg.Controller == nil {
		return errors.New("gorouter: controller is required")
	}
	if cfg.Broadcast != nil {
		registerWebSocket(cfg.Router, cfg.Broadcast, joinPath(base(cfg), cfg.routes().WebSocket))
	}
	for _, route := range Routes(cfg) {
		handler := wrap(route.Handle)
		switch route.Method {
		case http.MethodGet:
			cfg.Router.Get(route.Path, handler)
		case http.MethodPost:
			cfg.Router.Post(route.Path, handler)
		case http.MethodDelete:
			cfg.Router.Delete(route.Path, handler)
		}
	}
	return nil
}

func wrap(handle func(requestContext) error) router.HandlerFunc {
	return router.WrapHandler(func(ctx router.Context) error {
		return handle(ctx)
	})
}

// Routes lists the endpoints Register mounts, with absolute paths.
func Routes(cfg Config) []Route {
	routes := cfg.routes()
	b := base(cfg)
	page := Route{Method: http.MethodGet, Path: joinPath(b, routes.HTML), Handle: htmlHandler(cfg.Controller)}
	if cfg.API == nil {
		return []Route{page}
	}
	api := cfg.API
	// The page route matches any segment, so it is mounted last.
	return []Route{
		Route{http.MethodGet, joinPath(b, routes.State), func(ctx requestContext) error {
			snap, err := api.State(ctx.Context(), sessionID(ctx))
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, snap)
		}},
		Route{http.MethodGet, joinPath(b, routes.Narrative), func(ctx requestContext) error {
			view, err := api.Narrative(ctx.Context(), sessionID(ctx))
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, view)
		}},
		Route{http.MethodPost, joinPath(b, routes.Filter), func(ctx requestContext) error {
			var payload commands.SetFilterInput
			if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
				return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			if payload.SessionID == "" {
				payload.SessionID = sessionID(ctx)
			}
			if err := api.SetFilter(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "filtered"})
		}},
		Route{http.MethodDelete, joinPath(b, routes.Filter), func(ctx requestContext) error {
			if err := api.ClearFilter(ctx.Context(), commands.ClearFilterInput{SessionID: sessionID(ctx)}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "cleared"})
		}},
		Route{http.MethodPost, joinPath(b, routes.Month), func(ctx requestContext) error {
			var payload commands.SetMonthInput
			if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
				return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			if payload.SessionID == "" {
				payload.SessionID = sessionID(ctx)
			}
			if err := api.SetMonth(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "month"})
		}},
		Route{http.MethodPost, joinPath(b, routes.Refresh), func(ctx requestContext) error {
			id := sessionID(ctx)
			if err := api.Refresh(ctx.Context(), commands.RefreshInput{SessionID: id}); err != nil {
				return respondError(ctx, err)
			}
			snap, err := api.State(ctx.Context(), id)
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, snap)
		}},
		Route{http.MethodPost, joinPath(b, routes.DrillDown), func(ctx requestContext) error {
			var payload commands.OpenDrillDownInput
			if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
				return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			if payload.SessionID == "" {
				payload.SessionID = sessionID(ctx)
			}
			if err := api.OpenDrillDown(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "loading"})
		}},
		Route{http.MethodPost, joinPath(b, routes.Reload), func(ctx requestContext) error {
			if err := api.ReloadDrillDown(ctx.Context(), commands.ReloadDrillDownInput{SessionID: sessionID(ctx)}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "loading"})
		}},
		Route{http.MethodDelete, joinPath(b, routes.DrillDown), func(ctx requestContext) error {
			if err := api.CloseDrillDown(ctx.Context(), commands.CloseDrillDownInput{SessionID: sessionID(ctx)}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "closed"})
		}},
		Route{http.MethodDelete, joinPath(b, routes.Session), func(ctx requestContext) error {
			if err := api.CloseSession(ctx.Context(), sessionID(ctx)); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "closed"})
		}},
		page,
	}
}

func htmlHandler(controller PageRenderer) func(requestContext) error {
	return func(ctx requestContext) error {
		session, err := controller.Open(ctx.Context(), ctx.Param("section", "executive"), pageQuery(ctx))
		if err != nil {
			return respondError(ctx, err)
		}
		var buf bytes.Buffer
		if err := controller.RenderTemplate(ctx.Context(), session, &buf); err != nil {
			return respondError(ctx, err)
		}
		ctx.SetHeader(httpapi.SessionHeader, session.ID)
		ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.Send(buf.Bytes())
	}
}

func pageQuery(ctx requestContext) string {
	values := url.Values{}
	for _, key := range geoQueryKeys {
		if v := strings.TrimSpace(ctx.Query(key)); v != "" {
			values.Set(key, v)
		}
	}
	return portal.EncodeQuery(values)
}

func registerWebSocket(r Registrar, hook *portal.BroadcastHook, path string) {
	cfg := router.DefaultWebSocketConfig()
	r.WebSocket(path, cfg, func(ws router.WebSocketContext) error {
		events, cancel := hook.SubscribeSession(strings.TrimSpace(ws.Query("session")))
		defer cancel()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if err := ws.WriteJSON(event); err != nil {
					return err
				}
			case <-ws.Context().Done():
				return ws.Close()
			}
		}
	})
}

func sessionID(ctx requestContext) string {
	if id := strings.TrimSpace(ctx.Query("session")); id != "" {
		return id
	}
	return strings.TrimSpace(ctx.Header(httpapi.SessionHeader))
}

func respondError(ctx requestContext, err error) error {
	return ctx.JSON(httpapi.StatusFor(err), map[string]string{"error": err.Error()})
}

func base(cfg Config) string {
	if cfg.BasePath == "" {
		return "/portal"
	}
	return strings.TrimRight(cfg.BasePath, "/")
}

func joinPath(base, rel string) string {
	return base + "/" + strings.TrimLeft(rel, "/")
}

func (cfg Config) routes() RouteConfig {
	routes := cfg.Routes
	if routes.HTML == "" {
		routes.HTML = "/:section"
	}
	if routes.State == "" {
		routes.State = "/_state"
	}
	if routes.Narrative == "" {
		routes.Narrative = "/_narrative"
	}
	if routes.Filter == "" {
		routes.Filter = "/filter"
	}
	if routes.Month == "" {
		routes.Month = "/month"
	}
	if routes.Refresh == "" {
		routes.Refresh = "/refresh"
	}
	if routes.DrillDown == "" {
		routes.DrillDown = "/drilldown"
	}
	if routes.Reload == "" {
		routes.Reload = "/drilldown/reload"
	}
	if routes.Session == "" {
		routes.Session = "/session"
	}
	if routes.WebSocket == "" {
		routes.WebSocket = "/ws"
	}
	return routes
}
