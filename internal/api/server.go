package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/UniQw/jobmanager-go/groupsync"
	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Jobs is the part of *jobmanager.Manager the API uses.
type Jobs interface {
	Add(ctx context.Context, job jobmanager.Job) (string, error)
	Jobs() []jobmanager.JobInfo
	Job(id string) (jobmanager.JobInfo, bool)
	Stats() jobmanager.Stats
}

// SyncJobFunc builds a group sync job. revision may be groupsync.Latest.
type SyncJobFunc func(id groupsync.GroupID, revision int) (jobmanager.Job, error)

// Server is the worker's HTTP API.
type Server struct {
	router  chi.Router
	jobs    Jobs
	newSync SyncJobFunc
	network *jobmanager.ReachabilityFlag
	log     zerolog.Logger
}

// NewServer builds the router. network backs the /network endpoints.
func NewServer(jobs Jobs, newSync SyncJobFunc, network *jobmanager.ReachabilityFlag, log zerolog.Logger) *Server {
	s := &Server{jobs: jobs, newSync: newSync, network: network, log: log}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Get("/jobs", s.listJobs)
	r.Get("/jobs/{id}", s.getJob)
	r.Post("/groups/{id}/sync", s.syncGroup)
	r.Get("/network", s.getNetwork)
	r.Put("/network", s.putNetwork)
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("api serving on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.log.Info().Msg("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/healthz" {
			return
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("dur", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type health struct {
	Status string `json:"status"`
	jobmanager.Stats
	Network bool `json:"network"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, health{
		Status:  "ok",
		Stats:   s.jobs.Stats(),
		Network: s.network.IsNetworkAvailable(),
	})
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.Jobs())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	info, ok := s.jobs.Job(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) syncGroup(w http.ResponseWriter, r *http.Request) {
	id, err := groupsync.ParseGroupID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	revision := groupsync.Latest
	if v := r.URL.Query().Get("revision"); v != "" {
		if revision, err = strconv.Atoi(v); err != nil || revision < 0 {
			s.writeError(w, http.StatusBadRequest, "revision must be a non-negative integer")
			return
		}
	}
	job, err := s.newSync(id, revision)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.jobs.Add(r.Context(), job)
	if err != nil {
		s.log.Error().Err(err).Str("group", id.String()).Msg("enqueue sync failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"id": jobID, "group_id": id, "revision": revision})
}

type networkState struct {
	Available *bool `json:"available"`
}

func (s *Server) getNetwork(w http.ResponseWriter, _ *http.Request) {
	up := s.network.IsNetworkAvailable()
	s.writeJSON(w, http.StatusOK, networkState{Available: &up})
}

func (s *Server) putNetwork(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req networkState
	if err := sonic.Unmarshal(body, &req); err != nil || req.Available == nil {
		s.writeError(w, http.StatusBadRequest, `body must be {"available": bool}`)
		return
	}
	s.network.Set(*req.Available)
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("encode response")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
