package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/uxarchive/uxsync/internal/domain"
	"github.com/uxarchive/uxsync/internal/store"
)

var errIDMismatch = errors.New("entity id does not match URL")

// resource erases the collection element type so the handlers can route by
// collection key alone.
type resource interface {
	list(ctx context.Context) any
	get(ctx context.Context, id string) (any, bool)
	replaceAll(ctx context.Context, body []byte) error
	create(ctx context.Context, body []byte) error
	upsert(ctx context.Context, id string, body []byte) error
	remove(ctx context.Context, id string)
	clear(ctx context.Context)
}

type collectionResource[T store.Entity[T]] struct {
	coll *store.Collection[T]
}

func (r collectionResource[T]) list(ctx context.Context) any {
	items := r.coll.GetAll(ctx)
	if items == nil {
		items = []T{}
	}
	return items
}

func (r collectionResource[T]) get(ctx context.Context, id string) (any, bool) {
	return r.coll.GetByID(ctx, id)
}

func (r collectionResource[T]) replaceAll(ctx context.Context, body []byte) error {
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return fmt.Errorf("parse entity list: %w", err)
	}
	r.coll.SetAll(ctx, items)
	return nil
}

func (r collectionResource[T]) create(ctx context.Context, body []byte) error {
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return fmt.Errorf("parse entity: %w", err)
	}
	if item.EntityID() == "" {
		return errors.New("entity id is required")
	}
	r.coll.Create(ctx, item)
	return nil
}

func (r collectionResource[T]) upsert(ctx context.Context, id string, body []byte) error {
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return fmt.Errorf("parse entity: %w", err)
	}
	if item.EntityID() != id {
		return errIDMismatch
	}
	r.coll.Upsert(ctx, item)
	return nil
}

func (r collectionResource[T]) remove(ctx context.Context, id string) {
	r.coll.Remove(ctx, id)
}

func (r collectionResource[T]) clear(ctx context.Context) {
	r.coll.Clear(ctx)
}

// resourceFor resolves the {key} URL parameter; an unknown key gets a 404.
func (s *Server) resourceFor(w http.ResponseWriter, r *http.Request) (resource, bool) {
	key := domain.CollectionKey(chi.URLParam(r, "key"))
	res, ok := s.resources[key]
	if !ok {
		writeError(w, http.StatusNotFound, codeUnknownCollection,
			fmt.Sprintf("Unknown collection %q", key))
	}
	return res, ok
}

func (s *Server) listCollection(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.list(r.Context()))
}

func (s *Server) replaceCollection(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		return
	}
	if err := res.replaceAll(r.Context(), body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.list(r.Context()))
}

func (s *Server) createEntity(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		return
	}
	if err := res.create(r.Context(), body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res.list(r.Context()))
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	item, found := res.get(r.Context(), id)
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("Entity %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) upsertEntity(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		return
	}
	if err := res.upsert(r.Context(), chi.URLParam(r, "id"), body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.list(r.Context()))
}

func (s *Server) removeEntity(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	res.remove(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearCollection(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	res.clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
