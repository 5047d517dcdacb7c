package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/ingest"
	"github.com/AngelCh415/lead-funnel/internal/models"
	"github.com/AngelCh415/lead-funnel/internal/telemetry"
	"github.com/AngelCh415/lead-funnel/internal/utils"
)

// Engine is the read API the dashboard routes call.
type Engine interface {
	ComputeFunnel(ctx context.Context, spec filter.Spec, includeClicks bool) (*models.Funnel, error)
	ComputeApprovalReport(ctx context.Context, spec filter.Spec) (*models.ApprovalReport, error)
	ComputeRejectionReport(ctx context.Context, spec filter.Spec) (*models.RejectionReport, error)
	ComputeCommission(ctx context.Context, spec filter.Spec) (*models.Commission, error)
	ComputeKPIs(ctx context.Context, spec filter.Spec) (*models.KPIs, error)
	ComputeTimeline(ctx context.Context, spec filter.Spec, view, month string, includeClicks bool) ([]models.TimelinePoint, error)
	ListLeads(ctx context.Context, spec filter.Spec, page, limit int) (*models.LeadPage, error)
}

// Ingestor runs the write-side jobs exposed on ops routes.
type Ingestor interface {
	Run(ctx context.Context) (ingest.RunSummary, error)
	ExportDay(ctx context.Context, date time.Time) (int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log    *zap.Logger
	Rec    *telemetry.Recorder
	Engine Engine
	ETL    Ingestor
	Store  Pinger
	// Now is the clock used for default time ranges.
	Now func() time.Time
}

type handlers struct {
	Deps
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{d}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))
	mux.Use(utils.Metrics(d.Rec))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", h.ready)
	mux.Handle("/metrics", d.Rec.Handler())

	mux.Post("/ingest/run", h.ingestRun)
	mux.Post("/export/run", h.exportRun)

	mux.Route("/api/v1", func(r chi.Router) {
		r.Get("/leads/funnel", h.funnel)
		r.Get("/leads/detailed", h.detailed)
		r.Get("/reports/approval", h.approval)
		r.Get("/reports/rejection", h.rejection)
		r.Get("/dashboard/commission", h.commission)
		r.Get("/dashboard/kpis", h.kpis)
		r.Get("/analytics/timeline", h.timeline)
	})

	return mux
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func (h *handlers) ingestRun(w http.ResponseWriter, r *http.Request) {
	sum, err := h.ETL.Run(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, sum, nil)
}

func (h *handlers) exportRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("date")
	if q == "" {
		h.fail(w, r, fmt.Errorf("%w: date required (YYYY-MM-DD)", models.ErrInvalidFilter))
		return
	}
	t, err := time.Parse(models.DateLayout, q)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: bad date %q", models.ErrInvalidFilter, q))
		return
	}
	n, err := h.ETL.ExportDay(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, map[string]any{"exported": n}, nil)
}

func (h *handlers) funnel(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	clicks, err := boolParam(r, "include_clicks", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Engine.ComputeFunnel(r.Context(), spec, clicks)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res, nil)
}

func (h *handlers) detailed(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if q := r.URL.Query().Get("search"); q != "" {
		spec = spec.With(filter.Search(q))
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Engine.ListLeads(r.Context(), spec, page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pages := int64(0)
	if res.Limit > 0 {
		pages = (res.Total + int64(res.Limit) - 1) / int64(res.Limit)
	}
	ok(w, res.Rows, map[string]any{
		"page":       res.Page,
		"limit":      res.Limit,
		"total":      res.Total,
		"totalPages": pages,
	})
}

func (h *handlers) approval(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Engine.ComputeApprovalReport(r.Context(), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res, nil)
}

func (h *handlers) rejection(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Engine.ComputeRejectionReport(r.Context(), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res, nil)
}

func (h *handlers) commission(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Engine.ComputeCommission(r.Context(), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res, nil)
}

func (h *handlers) kpis(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Engine.ComputeKPIs(r.Context(), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res, nil)
}

func (h *handlers) timeline(w http.ResponseWriter, r *http.Request) {
	spec, err := h.spec(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	clicks, err := boolParam(r, "include_clicks", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := r.URL.Query().Get("view")
	month := r.URL.Query().Get("month")
	res, err := h.Engine.ComputeTimeline(r.Context(), spec, view, month, clicks)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res, map[string]any{"view": view, "month": month})
}

func (h *handlers) spec(r *http.Request) (filter.Spec, error) {
	return filter.Parse(r.URL.Query().Get("filters"), h.Now())
}

func boolParam(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", models.ErrInvalidFilter, key, v)
	}
	return b, nil
}

func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", models.ErrInvalidFilter, key, v)
	}
	return n, nil
}

type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func ok(w http.ResponseWriter, data any, meta map[string]any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Meta: meta})
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		h.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("rid", utils.RID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, code, envelope{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRange), errors.Is(err, models.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrSinkNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrUpstreamFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
