package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/palette"
	"github.com/sells-group/stylegen/internal/store"
	"github.com/sells-group/stylegen/internal/styler"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the style generation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: apiRouter(e),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func apiRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := e.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/palettes", func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string][]string)
		for _, name := range palette.Names() {
			out[name] = palette.Preview(name)
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Route("/styles", func(r chi.Router) {
		r.Post("/generate", handleGenerate(e, false))
		r.Post("/preview", handleGenerate(e, true))
		r.Get("/", handleListStyles(e))
		r.Get("/{id}", handleGetStyle(e))
		r.Get("/{id}/document", handleDocument(e))
		r.Get("/{id}/audit", handleAudit(e))
		r.Delete("/{id}", handleDeleteStyle(e))
	})

	r.Get("/columns/{table}", func(w http.ResponseWriter, r *http.Request) {
		cols, err := e.Gen.Columns(r.Context(), chi.URLParam(r, "table"))
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
			return
		}
		writeJSON(w, http.StatusOK, cols)
	})

	r.Get("/legend/{table}/{column}", func(w http.ResponseWriter, r *http.Request) {
		items, err := e.Gen.Legend(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "column"))
		if err != nil {
			writeError(w, http.StatusNotFound, eris.Cause(err).Error())
			return
		}
		writeJSON(w, http.StatusOK, items)
	})

	r.Post("/cache/invalidate/{table}", func(w http.ResponseWriter, r *http.Request) {
		n, err := e.Store.InvalidateStats(r.Context(), chi.URLParam(r, "table"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "invalidate failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
	})

	return r
}

// generateRequest is the JSON body of POST /styles/generate and preview.
type generateRequest struct {
	Table        string    `json:"table"`
	ColorBy      string    `json:"color_by"`
	Method       string    `json:"method"`
	NumClasses   int       `json:"num_classes"`
	Palette      string    `json:"palette"`
	CustomColors []string  `json:"custom_colors"`
	ManualBreaks []float64 `json:"manual_breaks"`
	Geometry     string    `json:"geometry"`
	FillOpacity  *float64  `json:"fill_opacity"`
	StrokeColor  string    `json:"stroke_color"`
	StrokeWidth  float64   `json:"stroke_width"`
	Publish      bool      `json:"publish"`
	Attach       bool      `json:"attach"`
	NoCache      bool      `json:"no_cache"`
	Actor        string    `json:"actor"`
}

func handleGenerate(e *env, preview bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Table == "" || body.ColorBy == "" {
			writeError(w, http.StatusBadRequest, "table and color_by are required")
			return
		}

		req := styler.Request{
			TableName:    body.Table,
			ColorBy:      body.ColorBy,
			Method:       model.Method(body.Method),
			NumClasses:   body.NumClasses,
			Palette:      body.Palette,
			CustomColors: body.CustomColors,
			ManualBreaks: body.ManualBreaks,
			Geometry:     model.GeometryKind(body.Geometry),
			FillOpacity:  body.FillOpacity,
			StrokeColor:  body.StrokeColor,
			StrokeWidth:  body.StrokeWidth,
			Publish:      body.Publish,
			Attach:       body.Attach,
			NoCache:      body.NoCache,
			Actor:        body.Actor,
		}

		var res *styler.Result
		var err error
		if preview {
			res, err = e.Gen.Preview(r.Context(), req)
		} else {
			res, err = e.Gen.Generate(r.Context(), req)
		}
		if err != nil {
			zap.L().Error("generation failed",
				zap.String("table", body.Table),
				zap.String("color_by", body.ColorBy),
				zap.Error(err))
			writeError(w, http.StatusUnprocessableEntity, eris.Cause(err).Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListStyles(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.StyleFilter{
			Workspace: q.Get("workspace"),
			TableName: q.Get("table"),
		}
		styles, err := e.Store.ListStyles(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, styles)
	}
}

func handleGetStyle(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sm, err := e.Store.GetStyleByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "style not found")
			return
		}
		writeJSON(w, http.StatusOK, sm)
	}
}

func handleDocument(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sm, err := e.Store.GetStyleByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "style not found")
			return
		}
		if len(sm.Document) == 0 {
			writeError(w, http.StatusNotFound, "style has not been generated yet")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(sm.Document)
	}
}

func handleAudit(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := e.Store.ListAudit(r.Context(), chi.URLParam(r, "id"), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "audit lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleDeleteStyle(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := e.Store.DeleteStyle(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusNotFound, "style not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
