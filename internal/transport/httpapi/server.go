// Package httpapi exposes the collection store, workspace state, sync status
// and capture optimizer over a chi router.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/domain"
	"github.com/uxarchive/uxsync/internal/optimize"
	"github.com/uxarchive/uxsync/internal/outbox"
	"github.com/uxarchive/uxsync/internal/snapshot"
	"github.com/uxarchive/uxsync/internal/store"
	"github.com/uxarchive/uxsync/internal/synctrack"
	"github.com/uxarchive/uxsync/internal/workspace"
)

// maxCaptureBytes caps optimize upload size.
const maxCaptureBytes = 32 << 20

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 4 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Failed to read request body")
		return nil, err
	}
	return body, nil
}

// Server implements the uxsync HTTP API.
type Server struct {
	store     *store.Store
	snap      *snapshot.Source
	workspace *workspace.Store
	tracker   *synctrack.Tracker
	queue     *outbox.Queue
	optimizer *optimize.Optimizer
	logger    *zap.Logger

	resources map[domain.CollectionKey]resource
}

// NewServer creates an HTTP API server over the assembled services.
func NewServer(
	st *store.Store,
	snap *snapshot.Source,
	ws *workspace.Store,
	tracker *synctrack.Tracker,
	queue *outbox.Queue,
	optimizer *optimize.Optimizer,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:     st,
		snap:      snap,
		workspace: ws,
		tracker:   tracker,
		queue:     queue,
		optimizer: optimizer,
		logger:    logger,
		resources: map[domain.CollectionKey]resource{
			domain.KeyPatterns: collectionResource[domain.Pattern]{coll: st.Patterns},
			domain.KeyFolders:  collectionResource[domain.Folder]{coll: st.Folders},
			domain.KeyCaptures: collectionResource[domain.Capture]{coll: st.Captures},
			domain.KeyInsights: collectionResource[domain.Insight]{coll: st.Insights},
			domain.KeyTags:     collectionResource[domain.Tag]{coll: st.Tags},
		},
	}
}

// Routes registers all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/collections/{key}", func(r chi.Router) {
			r.Get("/", s.listCollection)
			r.Put("/", s.replaceCollection)
			r.Post("/", s.createEntity)
			r.Delete("/", s.clearCollection)
			r.Get("/{id}", s.getEntity)
			r.Put("/{id}", s.upsertEntity)
			r.Delete("/{id}", s.removeEntity)
		})
		r.Get("/snapshot", s.getSnapshot)
		r.Post("/seed", s.seed)
		r.Route("/workspace", func(r chi.Router) {
			r.Get("/", s.getWorkspace)
			r.Patch("/", s.patchWorkspace)
			r.Delete("/", s.resetWorkspace)
			r.Post("/tags/{id}/toggle", s.toggleTagFilter)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.syncStatus)
			r.Post("/retry", s.syncRetry)
			r.Put("/online", s.setOnline)
		})
		r.Post("/captures/optimize", s.optimizeCapture)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snap.Snapshot(r.Context()))
}

func (s *Server) seed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	seeded := s.snap.Seed(r.Context(), req.Force)
	writeJSON(w, http.StatusOK, map[string]bool{"seeded": seeded})
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workspace.State(r.Context()))
}

// workspacePatch carries partial workspace updates; absent fields are left
// untouched.
type workspacePatch struct {
	SearchTerm        *string `json:"search_term"`
	FolderFilter      *string `json:"folder_filter"`
	FavoriteOnly      *bool   `json:"favorite_only"`
	SelectedPatternID *string `json:"selected_pattern_id"`
	SelectedCaptureID *string `json:"selected_capture_id"`
	SelectedInsightID *string `json:"selected_insight_id"`
}

func (s *Server) patchWorkspace(w http.ResponseWriter, r *http.Request) {
	var p workspacePatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx := r.Context()
	if p.SearchTerm != nil {
		s.workspace.SetSearchTerm(ctx, *p.SearchTerm)
	}
	if p.FolderFilter != nil {
		s.workspace.SetFolderFilter(ctx, *p.FolderFilter)
	}
	if p.FavoriteOnly != nil {
		s.workspace.SetFavoriteOnly(ctx, *p.FavoriteOnly)
	}
	if p.SelectedPatternID != nil {
		s.workspace.SetSelectedPattern(ctx, *p.SelectedPatternID)
	}
	if p.SelectedCaptureID != nil {
		s.workspace.SetSelectedCapture(ctx, *p.SelectedCaptureID)
	}
	if p.SelectedInsightID != nil {
		s.workspace.SetSelectedInsight(ctx, *p.SelectedInsightID)
	}

	writeJSON(w, http.StatusOK, s.workspace.State(ctx))
}

func (s *Server) resetWorkspace(w http.ResponseWriter, r *http.Request) {
	s.workspace.Reset(r.Context())
	writeJSON(w, http.StatusOK, s.workspace.State(r.Context()))
}

func (s *Server) toggleTagFilter(w http.ResponseWriter, r *http.Request) {
	s.workspace.ToggleTagFilter(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, s.workspace.State(r.Context()))
}

func (s *Server) syncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) syncRetry(w http.ResponseWriter, r *http.Request) {
	s.tracker.RetryAll(r.Context())
	writeJSON(w, http.StatusAccepted, s.tracker.Status())
}

func (s *Server) setOnline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	s.queue.SetOnline(req.Online)
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

// optimizeResponse is the stored form of an uploaded capture.
type optimizeResponse struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Optimized bool   `json:"optimized"`
	Size      int    `json:"size"`
	Data      string `json:"data"` // base64
}

func (s *Server) optimizeCapture(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCaptureBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "Capture too large")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Empty capture body")
		return
	}

	res := s.optimizer.Optimize(r.Context(), optimize.Input{
		Name: r.URL.Query().Get("name"),
		Data: data,
	})

	writeJSON(w, http.StatusOK, optimizeResponse{
		Name:      res.Name,
		Width:     res.Width,
		Height:    res.Height,
		Optimized: res.Optimized,
		Size:      len(res.Data),
		Data:      base64.StdEncoding.EncodeToString(res.Data),
	})
}

const (
	codeBadRequest        = "bad_request"
	codeNotFound          = "not_found"
	codeUnknownCollection = "unknown_collection"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
