package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/forecast"
	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/revision"
)

const maxServeHorizon = 120

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the consolidated table and its analysis over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		table, err := loadTable(ctx, input, input == "")
		if err != nil {
			return err
		}
		v, err := newViewer(table, forecastOptions(0))
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(v, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Int("rows", table.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// viewer holds the read-only state the HTTP handlers serve. The revision
// analysis is computed once at start; forecasts are computed per request since
// the horizon varies.
type viewer struct {
	table    *consolidate.Table
	analysis *revision.Analysis
	opts     forecast.Options
}

func newViewer(t *consolidate.Table, opts forecast.Options) (*viewer, error) {
	a, err := revision.Analyze(t, revisionOptions())
	if err != nil {
		return nil, err
	}
	return &viewer{table: t, analysis: a, opts: opts}, nil
}

type errResponse struct {
	Error string `json:"error"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errResponse{Error: msg})
}

// buildRouter wires the viewer endpoints.
func buildRouter(v *viewer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		latest, _ := v.table.LatestVintage()
		render.JSON(w, r, map[string]any{
			"status":         "ok",
			"rows":           v.table.Len(),
			"latest_vintage": latest.Format(model.DateLayout),
		})
	})
	r.Get("/observations/{month}", v.observations)
	r.Get("/trajectory/{month}", v.trajectory)
	r.Get("/revisions/summary", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, v.analysis.Summary)
	})
	r.Get("/forecast", v.forecast)
	return r
}

func monthParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := chi.URLParam(r, "month")
	month, ok := model.ParseMonth(raw)
	if !ok {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid month %q, want YYYY-MM", raw))
	}
	return month, ok
}

func (v *viewer) observations(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	obs := v.table.ByObservation(month)
	if len(obs) == 0 {
		renderError(w, r, http.StatusNotFound, fmt.Sprintf("no vintages for %s", model.FormatMonth(month)))
		return
	}
	render.JSON(w, r, obs)
}

func (v *viewer) trajectory(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	tr, err := revision.Trace(v.table, month)
	if errors.Is(err, revision.ErrUnknownObservation) {
		renderError(w, r, http.StatusNotFound, fmt.Sprintf("no vintages for %s", model.FormatMonth(month)))
		return
	}
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, tr)
}

func (v *viewer) forecast(w http.ResponseWriter, r *http.Request) {
	opts := v.opts
	if raw := r.URL.Query().Get("h"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h < 1 || h > maxServeHorizon {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("h must be an integer in [1, %d]", maxServeHorizon))
			return
		}
		opts.Horizon = h
	}

	fc, err := forecast.Forecast(v.table, v.analysis.Summary, opts)
	if errors.Is(err, forecast.ErrInsufficientHistory) {
		renderError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, fc)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("input", "", "serve a consolidated CSV instead of the store")
	rootCmd.AddCommand(serveCmd)
}
