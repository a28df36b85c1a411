package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/alerthub-service/internal/adapter/storage"
	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/lifecycle"
	"github.com/couchcryptid/alerthub-service/internal/query"
)

const maxUploadBytes = 32 << 20

// Lifecycle is the write side of the report API.
type Lifecycle interface {
	Validate(req lifecycle.CreateRequest) error
	Create(ctx context.Context, req lifecycle.CreateRequest) (int64, error)
	Approve(ctx context.Context, disasterIndex int, municipality string) (int, error)
	Reject(ctx context.Context, disasterIndex int, municipality string) (int, error)
}

// Queries is the read side of the report API.
type Queries interface {
	Get(ctx context.Context, id int64, culture string) (query.ReportView, error)
	Active(ctx context.Context, page query.Page, culture string) (query.Paged[query.ReportView], error)
	Approved(ctx context.Context, page query.Page, culture string) (query.Paged[query.ArchivedView], error)
	Rejected(ctx context.Context, page query.Page, culture string) (query.Paged[query.ArchivedView], error)
	Importance(ctx context.Context, page query.Page, culture string) (query.Paged[query.ImportanceView], error)
	FilteredActive(ctx context.Context, disasterIndex int, municipality, culture string) ([]query.OperatorView, error)
}

// APIConfig configures role checks and static image serving.
type APIConfig struct {
	OperatorRole string
	RoleHeader   string
	// ImageDir is served under /UploadDangerReportImages when set.
	ImageDir string
}

// API serves the /api/DangerReport routes.
type API struct {
	lifecycle Lifecycle
	queries   Queries
	cfg       APIConfig
	logger    *slog.Logger
}

// NewAPI creates the report API handlers.
func NewAPI(lc Lifecycle, q Queries, cfg APIConfig, logger *slog.Logger) *API {
	return &API{lifecycle: lc, queries: q, cfg: cfg, logger: logger}
}

// Mount registers the API routes on r.
func (a *API) Mount(r chi.Router) {
	r.Route("/api/DangerReport", func(r chi.Router) {
		r.Post("/", a.handleCreate)
		r.Get("/", a.handleGet)
		r.Get("/GetActiveReportsByTimeDescending", a.handleActive)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(a.cfg.RoleHeader, a.cfg.OperatorRole))
			r.Get("/GetDisastersByMunicipalityAndImportance", a.handleImportance)
			r.Get("/GetActiveReportsByDisasterAndMunicipality", a.handleFiltered)
			r.Get("/GetRejectedDangerReportsByTimeDescending", a.handleArchived(a.queries.Rejected))
			r.Get("/GetApprovedDangerReportsByTimeDescending", a.handleArchived(a.queries.Approved))
			r.Post("/ApproveDangerReportsByDisasterAndMunicipality", a.handleTriage(a.lifecycle.Approve))
			r.Post("/RejectDangerReportsByDisasterAndMunicipality", a.handleTriage(a.lifecycle.Reject))
		})
	})

	if a.cfg.ImageDir != "" {
		prefix := "/" + storage.ImageDir + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(a.cfg.ImageDir))))
	}
}

// RequireRole rejects requests whose role header differs from role.
func RequireRole(header, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(header) != role {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed form"})
		return
	}

	ve := domain.NewValidationError()
	req := lifecycle.CreateRequest{
		DisasterType: r.FormValue("DisasterType"),
		Longitude:    formFloat(r, "Longitude", ve),
		Latitude:     formFloat(r, "Latitude", ve),
		Description:  r.FormValue("Description"),
		Culture:      r.FormValue("Culture"),
		UserID:       r.FormValue("UserId"),
	}

	file, header, err := r.FormFile("ImageFile")
	switch {
	case err == nil:
		defer file.Close()
		req.Image = &lifecycle.Image{ContentType: header.Header.Get("Content-Type"), Body: file}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed form"})
		return
	}

	// Unparseable fields are reported together with every other invalid one.
	if len(ve.Fields) > 0 {
		var rest *domain.ValidationError
		if err := a.lifecycle.Validate(req); errors.As(err, &rest) {
			ve.Merge(rest)
		}
		a.writeError(w, ve, true)
		return
	}

	id, err := a.lifecycle.Create(r.Context(), req)
	if err != nil {
		a.writeError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"dangerReportId": id})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	ve := domain.NewValidationError()
	id := queryInt64(r, "dangerReportId", ve)
	if err := ve.OrNil(); err != nil {
		a.writeError(w, err, false)
		return
	}

	view, err := a.queries.Get(r.Context(), id, culture(r))
	if err != nil {
		a.writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleActive(w http.ResponseWriter, r *http.Request) {
	page, ok := a.page(w, r)
	if !ok {
		return
	}
	res, err := a.queries.Active(r.Context(), page, culture(r))
	if err != nil {
		a.writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleImportance(w http.ResponseWriter, r *http.Request) {
	page, ok := a.page(w, r)
	if !ok {
		return
	}
	res, err := a.queries.Importance(r.Context(), page, culture(r))
	if err != nil {
		a.writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleArchived(list func(context.Context, query.Page, string) (query.Paged[query.ArchivedView], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := a.page(w, r)
		if !ok {
			return
		}
		res, err := list(r.Context(), page, culture(r))
		if err != nil {
			a.writeError(w, err, false)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *API) handleFiltered(w http.ResponseWriter, r *http.Request) {
	ve := domain.NewValidationError()
	idx := queryInt(r, "disasterIndex", ve)
	if err := ve.OrNil(); err != nil {
		a.writeError(w, err, false)
		return
	}
	items, err := a.queries.FilteredActive(r.Context(), idx, r.URL.Query().Get("municipality"), culture(r))
	if err != nil {
		a.writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleTriage(triage func(context.Context, int, string) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ve := domain.NewValidationError()
		idx := queryInt(r, "disasterIndex", ve)
		if err := ve.OrNil(); err != nil {
			a.writeError(w, err, true)
			return
		}
		n, err := triage(r.Context(), idx, r.URL.Query().Get("municipality"))
		if err != nil {
			a.writeError(w, err, true)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"transitioned": n})
	}
}

func (a *API) page(w http.ResponseWriter, r *http.Request) (query.Page, bool) {
	ve := domain.NewValidationError()
	p := query.Page{
		Number: queryInt(r, "pageNumber", ve),
		Size:   queryInt(r, "itemsPerPage", ve),
	}
	if err := ve.OrNil(); err != nil {
		a.writeError(w, err, false)
		return query.Page{}, false
	}
	return p, true
}

// writeError maps an error to a response. Failures on writes are reported as
// a generic 400, failures on reads as 500; neither carries the cause.
func (a *API) writeError(w http.ResponseWriter, err error, write bool) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]map[string]string{"errors": ve.Fields})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case write:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request failed"})
	default:
		a.logger.Error("query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// culture returns the requested display culture, the default one when absent.
func culture(r *http.Request) string {
	if c := strings.TrimSpace(r.URL.Query().Get("culture")); c != "" {
		return c
	}
	return domain.DefaultCulture
}

func formFloat(r *http.Request, key string, ve *domain.ValidationError) float64 {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		ve.Add(key, "is required")
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		ve.Add(key, "must be a number")
		return 0
	}
	return v
}

func queryInt(r *http.Request, key string, ve *domain.ValidationError) int {
	s := r.URL.Query().Get(key)
	v, err := strconv.Atoi(s)
	if err != nil {
		ve.Add(key, "must be an integer")
	}
	return v
}

func queryInt64(r *http.Request, key string, ve *domain.ValidationError) int64 {
	s := r.URL.Query().Get(key)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		ve.Add(key, "must be an integer")
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone
}
