package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/gorilla/mux"
)

// Handler exposes a domain.Contract over HTTP
type Handler struct {
	c      domain.Contract
	r      *mux.Router
	logger logging.Logger
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func toError(err error) *Error {
	switch {
	case errors.IsNotFoundError(err):
		return &Error{http.StatusNotFound, err.Error()}
	case errors.IsValidationError(err):
		return &Error{http.StatusBadRequest, err.Error()}
	case errors.IsConflictError(err):
		return &Error{http.StatusConflict, err.Error()}
	case errors.IsCancelledError(err), errors.IsTimeoutError(err):
		return &Error{http.StatusServiceUnavailable, err.Error()}
	default:
		return &Error{http.StatusInternalServerError, err.Error()}
	}
}

func (h *Handler) listProcesses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.c.Status(r.Context())
	if err != nil {
		h.writeError(w, toError(err))
		return
	}
	l := make([]ProcessInfo, 0, len(statuses))
	for _, status := range statuses {
		l = append(l, newProcessInfo(status))
	}
	h.writeJson(w, l)
}

func (h *Handler) getProcess(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	statuses, err := h.c.Status(r.Context())
	if err != nil {
		h.writeError(w, toError(err))
		return
	}
	for _, status := range statuses {
		if status.Name == name {
			h.writeJson(w, newProcessInfo(status))
			return
		}
	}
	h.writeError(w, &Error{http.StatusNotFound, "Process not found"})
}

func (h *Handler) command(call func(ctx context.Context, target string) ([]domain.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		results, err := call(r.Context(), name)
		if err != nil {
			h.logger.Warnf("REST command failed, path: %s, error: %v", r.URL.Path, err)
			h.writeError(w, toError(err))
			return
		}
		h.writeJson(w, newResultInfos(results))
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(c domain.Contract, logger logging.Logger) *Handler {
	r := mux.NewRouter()
	h := &Handler{c: c, r: r, logger: logger}
	r.HandleFunc("/processes", h.listProcesses).Methods("GET")
	r.HandleFunc("/processes/{name}", h.getProcess).Methods("GET")
	r.HandleFunc("/processes/{name}/start", h.command(c.Start)).Methods("POST")
	r.HandleFunc("/processes/{name}/stop", h.command(c.Stop)).Methods("POST")
	r.HandleFunc("/processes/{name}/restart", h.command(c.Restart)).Methods("POST")
	return h
}
