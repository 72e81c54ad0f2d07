package navwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/chatnav/kit"
	"github.com/hazyhaar/chatnav/navigator"
)

// NewRouter exposes ep over HTTP:
//
//	GET  /health
//	GET  /pages
//	GET  /pages/{id}/messages
//	GET  /pages/{id}/search?q=
//	POST /pages/{id}/messages/{index}/activate
//	POST /pages/{id}/rescan
//	GET  /pages/{id}/export
func NewRouter(ep *Endpoints) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/pages", serve(ep.ListPages, func(*http.Request) (any, error) {
		return nil, nil
	}))

	r.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/messages", serve(ep.Messages, pageRequest))
		r.Get("/search", serve(ep.Search, func(r *http.Request) (any, error) {
			return &SearchRequest{PageID: chi.URLParam(r, "id"), Query: r.URL.Query().Get("q")}, nil
		}))
		r.Post("/messages/{index}/activate", serve(ep.Activate, func(r *http.Request) (any, error) {
			idx, err := strconv.Atoi(chi.URLParam(r, "index"))
			if err != nil {
				return nil, fmt.Errorf("%w: index must be an integer", ErrBadRequest)
			}
			return &ActivateRequest{PageID: chi.URLParam(r, "id"), Index: idx}, nil
		}))
		r.Post("/rescan", serve(ep.Rescan, pageRequest))
		r.Get("/export", func(w http.ResponseWriter, r *http.Request) {
			resp, err := ep.Export(httpContext(r), &PageRequest{PageID: chi.URLParam(r, "id")})
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(resp.(ExportResponse).Markdown))
		})
	})
	return r
}

func pageRequest(r *http.Request) (any, error) {
	return &PageRequest{PageID: chi.URLParam(r, "id")}, nil
}

// serve adapts an endpoint to an HTTP handler answering JSON.
func serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		resp, err := ep(httpContext(r), req)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func httpContext(r *http.Request) context.Context {
	ctx := kit.WithTransport(r.Context(), "http")
	if id := middleware.GetReqID(ctx); id != "" {
		ctx = kit.WithRequestID(ctx, id)
	}
	if id := chi.URLParam(r, "id"); id != "" {
		ctx = kit.WithPageID(ctx, id)
	}
	return ctx
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownPage):
		return http.StatusNotFound
	case errors.Is(err, navigator.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, navigator.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
