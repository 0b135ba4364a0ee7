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

	"github.com/ramanngartan/arealens-geocode/internal/importer"
	"github.com/ramanngartan/arealens-geocode/internal/insights"
	"github.com/ramanngartan/arealens-geocode/internal/pipeline"
	"github.com/ramanngartan/arealens-geocode/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.store, env.pipeline, env.insights, ctx),
		}

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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api holds the handler dependencies. runCtx outlives individual requests so
// background geocode runs survive the client disconnecting.
type api struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	insights *insights.Engine
	runCtx   context.Context
}

func newRouter(st store.Store, pl *pipeline.Pipeline, eng *insights.Engine, runCtx context.Context) http.Handler {
	a := &api{store: st, pipeline: pl, insights: eng, runCtx: runCtx}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", a.health)
	r.Route("/api/uploads", func(r chi.Router) {
		r.Post("/", a.createUpload)
		r.Get("/{id}", a.getUpload)
		r.Post("/{id}/geocode", a.startGeocode)
		r.Get("/{id}/points", a.listPoints)
		r.Get("/{id}/insights", a.getInsights)
	})

	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createUpload accepts a multipart form with a "file" field holding CSV
// content and registers it as a new upload with all rows pending.
func (a *api) createUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart file field is required")
		return
	}
	defer file.Close() //nolint:errcheck

	records, err := importer.ReadCSV(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
		return
	}

	rows, err := importer.ParseRecords(records)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
		return
	}

	// Past validation every failure is infrastructure, not the client's file.
	upload, err := importer.Save(r.Context(), a.store, header.Filename, rows)
	if err != nil {
		zap.L().Error("store upload failed", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	writeJSON(w, http.StatusCreated, upload)
}

func (a *api) getUpload(w http.ResponseWriter, r *http.Request) {
	upload, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

// startGeocode kicks off a background geocode run and returns immediately.
// The upload's status reflects progress; poll GET /api/uploads/{id}.
func (a *api) startGeocode(w http.ResponseWriter, r *http.Request) {
	upload, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if upload.Status == store.UploadStatusProcessing {
		writeError(w, http.StatusConflict, "upload is already processing")
		return
	}

	go func() {
		if err := a.pipeline.Run(a.runCtx, upload.ID); err != nil {
			zap.L().Error("background geocode run failed",
				zap.String("upload_id", upload.ID),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"upload_id": upload.ID,
		"status":    store.UploadStatusProcessing,
	})
}

func (a *api) listPoints(w http.ResponseWriter, r *http.Request) {
	upload, ok := a.lookup(w, r)
	if !ok {
		return
	}

	points, err := a.store.ListPoints(r.Context(), upload.ID)
	if err != nil {
		zap.L().Error("list points failed", zap.String("upload_id", upload.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load points")
		return
	}
	if points == nil {
		points = []store.Point{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id": upload.ID,
		"points":    points,
	})
}

func (a *api) getInsights(w http.ResponseWriter, r *http.Request) {
	upload, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if upload.Status != store.UploadStatusDone {
		writeError(w, http.StatusConflict, fmt.Sprintf("upload is %s, insights need a completed geocode run", upload.Status))
		return
	}

	report, err := a.insights.Compute(r.Context(), upload.ID)
	if err != nil {
		zap.L().Error("compute insights failed", zap.String("upload_id", upload.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute insights")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// lookup loads the upload named by the {id} route parameter, writing the
// error response itself when the upload cannot be served.
func (a *api) lookup(w http.ResponseWriter, r *http.Request) (*store.Upload, bool) {
	id := chi.URLParam(r, "id")

	upload, err := a.store.GetUpload(r.Context(), id)
	if err != nil {
		zap.L().Error("get upload failed", zap.String("upload_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load upload")
		return nil, false
	}
	if upload == nil {
		writeError(w, http.StatusNotFound, "upload not found")
		return nil, false
	}
	return upload, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
