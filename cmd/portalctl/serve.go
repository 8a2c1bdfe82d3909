package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	router "github.com/goliatone/go-router"
	"golang.org/x/sync/errgroup"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/components/portal/gorouter"
	"github.com/goliatone/go-civic-dashboard/components/portal/httpapi"
	"github.com/goliatone/go-civic-dashboard/pkg/config"
	"github.com/goliatone/go-civic-dashboard/pkg/logging"
)

type serveCmd struct {
	Addr            string        `help:"Listen address (overrides config)."`
	Transport       string        `help:"router (go-router on fiber) or http (net/http); overrides config."`
	ShutdownTimeout time.Duration `default:"10s" help:"Grace period for in-flight requests on shutdown."`
}

func (cmd *serveCmd) Run(ctx context.Context, g *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	if cmd.Addr != "" {
		a.cfg.Server.Addr = cmd.Addr
	}
	if cmd.Transport != "" {
		a.cfg.Server.Transport = cmd.Transport
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	renderer, err := portal.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("portalctl: templates: %w", err)
	}
	controller := portal.NewController(portal.ControllerOptions{
		Service:  a.service,
		Renderer: renderer,
		Charts:   a.charts,
	})
	executor := httpapi.NewCommandExecutor(a.service, a.metrics)

	eg, ctx := errgroup.WithContext(ctx)
	switch a.cfg.Server.Transport {
	case config.TransportHTTP:
		srv := &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           logging.AccessMiddleware(a.logger)(a.httpHandler(controller, executor)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveHTTP(ctx, eg, a.logger, srv, cmd.ShutdownTimeout)
	default:
		server := router.NewFiberAdapter()
		if err := gorouter.Register(gorouter.Config{
			Router:     server.Router(),
			Controller: controller,
			API:        executor,
			Broadcast:  a.service.Broadcast(),
			BasePath:   a.cfg.Server.BasePath,
		}); err != nil {
			return err
		}
		eg.Go(func() error {
			a.logger.InfoContext(ctx, "portal listening", "addr", a.cfg.Server.Addr, "transport", config.TransportRouter)
			return server.Serve(a.cfg.Server.Addr)
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if a.cfg.Server.OpsAddr != "" {
		ops := http.NewServeMux()
		ops.Handle("GET /metrics", a.metrics.Handler())
		ops.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"status":"healthy","timestamp":%q}`, time.Now().Format(time.RFC3339))
		})
		serveHTTP(ctx, eg, a.logger, &http.Server{Addr: a.cfg.Server.OpsAddr, Handler: ops, ReadHeaderTimeout: 5 * time.Second}, cmd.ShutdownTimeout)
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// httpHandler mounts the JSON API, the HTML pages and the event streams on
// a plain ServeMux.
func (a *app) httpHandler(controller *portal.Controller, executor httpapi.Executor) http.Handler {
	base := strings.TrimRight(a.cfg.Server.BasePath, "/")
	api := (&httpapi.Handlers{API: executor}).Mux(base)
	hook := a.service.Broadcast()
	api.HandleFunc("GET "+base+"/ws", hook.ServeWebSocket)
	api.HandleFunc("GET "+base+"/events", hook.ServeSSE)
	api.Handle("GET /metrics", a.metrics.Handler())
	api.HandleFunc("GET "+base+"/{section}", func(w http.ResponseWriter, r *http.Request) {
		session, err := controller.Open(r.Context(), r.PathValue("section"), pageQuery(r.URL.Query()))
		if err != nil {
			http.Error(w, err.Error(), httpapi.StatusFor(err))
			return
		}
		var buf bytes.Buffer
		if err := controller.RenderTemplate(r.Context(), session, &buf); err != nil {
			a.logger.ErrorContext(r.Context(), "render portal page", "section", session.Section().Code, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set(httpapi.SessionHeader, session.ID)
		w.Header().Set("Content-Type", fiber.MIMETextHTMLCharsetUTF8)
		_, _ = w.Write(buf.Bytes())
	})
	return api
}

// pageQuery keeps the parameters a portal page understands.
func pageQuery(q url.Values) string {
	values := url.Values{}
	for _, key := range []string{string(portal.FieldState), string(portal.FieldDistrict), string(portal.FieldCity), "month"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			values.Set(key, v)
		}
	}
	return portal.EncodeQuery(values)
}

func serveHTTP(ctx context.Context, eg *errgroup.Group, logger *slog.Logger, srv *http.Server, grace time.Duration) {
	eg.Go(func() error {
		logger.InfoContext(ctx, "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
