package projects

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hatimhtm/portfolio-web/internal/httpmw"
	"github.com/hatimhtm/portfolio-web/internal/log"
)

// API exposes the catalogue under /api/projects.
type API struct {
	catalogue *Catalogue
}

func NewAPI(c *Catalogue) *API {
	return &API{catalogue: c}
}

type listResponse struct {
	Projects   []Project `json:"projects"`
	Categories []string  `json:"categories"`
}

// RegisterRoutes implements httpserver.RouteRegistrar.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/projects", func(r chi.Router) {
		r.Use(httpmw.Scope("projects"))
		r.Get("/", a.list)
		r.Get("/{slug}", a.get)
	})
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	ps := a.catalogue.All()
	if cat := r.URL.Query().Get("category"); cat != "" {
		ps = a.catalogue.InCategory(cat)
	}
	writeJSON(w, r, http.StatusOK, listResponse{Projects: ps, Categories: a.catalogue.Categories()})
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	p, ok := a.catalogue.BySlug(chi.URLParam(r, "slug"))
	if !ok {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "project not found"})
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "projects: write response", "err", err)
	}
}
