package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/ripple/pkg/jsondraft"
	"github.com/vango-dev/ripple/pkg/ripple"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// pathCell is the part of Composite used for path operations.
type pathCell interface {
	GetPath(path string) (any, bool)
	SetPath(path string, v any) error
	DeletePath(path string) error
}

// updater is the part of Composite used for recipe updates.
type updater interface {
	Update(ctx context.Context, recipe ripple.Recipe) error
}

// CellInfo describes one registered cell.
type CellInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Subscribers int    `json:"subscribers"`
}

// CellValue is the body of GET /cells/{name}.
type CellValue struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value"`
}

// Op is one step of POST /cells/{name}/update.
type Op struct {
	// Op is "set" or "delete".
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	infos := make([]CellInfo, 0, len(names))
	for _, name := range names {
		ref, ok := s.registry.Lookup(name)
		if !ok {
			continue
		}
		info := CellInfo{Name: name, Kind: ref.Kind().String()}
		if c, ok := ref.(interface{ SubscriberCount() int }); ok {
			info.Subscribers = c.SubscriberCount()
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name, ref, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if q := r.URL.Query().Get("query"); q != "" {
		res, err := jsondraft.Query(ref, q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !res.Exists() {
			writeError(w, http.StatusNotFound, fmt.Errorf("query %q matched nothing", q))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, res.Raw)
		return
	}

	path := r.URL.Query().Get("path")
	body := CellValue{Name: name, Kind: ref.Kind().String(), Path: path}
	if path == "" {
		body.Value = ref.Snapshot()
		writeJSON(w, http.StatusOK, body)
		return
	}

	pc, ok := asPathCell(w, ref)
	if !ok {
		return
	}
	v, found := pc.GetPath(path)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("no value at %q", path))
		return
	}
	if n, isNode := v.(*ripple.Node); isNode {
		v = n.Snapshot()
	}
	body.Value = v
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	_, ref, ok := s.lookup(w, r)
	if !ok {
		return
	}
	v, ok := readJSON(w, r)
	if !ok {
		return
	}
	if err := ref.SetAny(v); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	_, ref, ok := s.lookup(w, r)
	if !ok {
		return
	}
	pc, ok := asPathCell(w, ref)
	if !ok {
		return
	}
	v, ok := readJSON(w, r)
	if !ok {
		return
	}
	if err := pc.SetPath(r.URL.Query().Get("path"), v); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, ref, ok := s.lookup(w, r)
	if !ok {
		return
	}
	pc, ok := asPathCell(w, ref)
	if !ok {
		return
	}
	if err := pc.DeletePath(r.URL.Query().Get("path")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	_, ref, ok := s.lookup(w, r)
	if !ok {
		return
	}
	u, isUpdater := ref.(updater)
	if !isUpdater {
		writeError(w, http.StatusConflict, ripple.ErrNotComposite)
		return
	}

	var ops []Op
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&ops); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := u.Update(r.Context(), func(e ripple.Editor) error {
		for i, op := range ops {
			var err error
			switch op.Op {
			case "set":
				err = e.Set(op.Path, op.Value)
			case "delete":
				err = e.Delete(op.Path)
			default:
				err = fmt.Errorf("%w: unknown op %q", errBadOp, op.Op)
			}
			if err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errBadOp = errors.New("inspect: bad op")

// EmitResult is the body returned by POST /events/{event}.
type EmitResult struct {
	Event    string `json:"event"`
	Handlers int    `json:"handlers"`
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	var payload any
	if r.ContentLength != 0 {
		v, ok := readJSON(w, r)
		if !ok {
			return
		}
		payload = v
	}

	n := s.config.Events.Emit(r.Context(), event, payload)
	writeJSON(w, http.StatusOK, EmitResult{Event: event, Handlers: n})
}

// lookup resolves the {name} URL parameter, writing 404 if it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, ripple.Ref, bool) {
	name := chi.URLParam(r, "name")
	ref, ok := s.registry.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown cell %q", name))
		return name, nil, false
	}
	return name, ref, true
}

func asPathCell(w http.ResponseWriter, ref ripple.Ref) (pathCell, bool) {
	pc, ok := ref.(pathCell)
	if !ok {
		writeError(w, http.StatusConflict, ripple.ErrNotComposite)
		return nil, false
	}
	return pc, true
}

func readJSON(w http.ResponseWriter, r *http.Request) (any, bool) {
	var v any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return v, true
}

// statusFor maps ripple errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ripple.ErrTypeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ripple.ErrInvalidPath), errors.Is(err, errBadOp):
		return http.StatusBadRequest
	case errors.Is(err, ripple.ErrNotComposite):
		return http.StatusConflict
	case errors.Is(err, ripple.ErrTransformerUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
