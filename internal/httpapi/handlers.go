// Package httpapi is the HTTP surface over the asset registry. It holds
// no business state: every operation delegates to registry.Service.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"assetblock.org/api/spec"
	"assetblock.org/internal/audit"
	"assetblock.org/internal/obs"
	"assetblock.org/internal/registry"
	"assetblock.org/internal/stream"
)

// ReadyProbe — readiness check backed by a DB ping when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tune the HTTP layer; zero values fall back to defaults.
type Options struct {
	RateBurst      int
	RatePerSec     int
	MaxUploadBytes int64
	TokenTTL       time.Duration
}

// API — HTTP слой.
type API struct {
	registry   registry.Service
	readyProbe ReadyProbe
	stream     *stream.Stream
	version    string

	rateBurst      int
	ratePerSec     int
	maxUploadBytes int64
	tokenTTL       time.Duration
}

func New(rp ReadyProbe, version string, svc registry.Service, st *stream.Stream, opts Options) *API {
	a := &API{
		registry:       svc,
		readyProbe:     rp,
		stream:         st,
		version:        version,
		rateBurst:      opts.RateBurst,
		ratePerSec:     opts.RatePerSec,
		maxUploadBytes: opts.MaxUploadBytes,
		tokenTTL:       opts.TokenTTL,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = 25 << 20
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 24 * time.Hour
	}
	return a
}

// Handler builds the routed handler, wrapped in metrics.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	// Multipart overhead on top of the file itself.
	r.Use(MaxBodyBytes(a.maxUploadBytes + 1<<20))
	r.Use(RateLimit(a.rateBurst, a.ratePerSec))
	r.Use(a.withAuth)

	r.Get("/", a.Root)
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/openapi.yaml", a.OpenAPISpec)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Post("/auth/token", a.issueToken)

		r.Post("/accounts", a.registerAccount)
		r.Get("/accounts", a.listAccounts)
		r.Get("/accounts/email/{email}", a.getAccountByEmail)
		r.Get("/accounts/{uid}", a.getAccount)
		r.Get("/accounts/{uid}/assets", a.listAssetsByOwner)

		r.Post("/assets", a.uploadAsset)
		r.Get("/assets", a.listAssets)
		r.Get("/assets/{id}", a.getAsset)
		r.Put("/assets/{id}/status", a.updateAssetStatus)
		r.Delete("/assets/{id}", a.deleteAsset)
		r.Get("/assets/{id}/history", a.transferHistory)

		r.Post("/transfers", a.transferAsset)

		r.Get("/activity", a.listAllActivity)
		r.Get("/activity/{uid}", a.listActivity)
		r.Get("/stats", a.stats)
		r.Get("/stream", a.Stream)
	})

	return obs.Instrument(r)
}

// --- service endpoints ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":     "AssetBlock",
		"version": a.version,
		"status":  "running",
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "assetblock-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "assetblock-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

// audit emits a structured audit event; failures only make noise in the log.
func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "audit event failed",
			"event": event,
			"error": err.Error(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *registry.DuplicateError
	switch {
	case errors.As(err, &dup):
		payload := map[string]any{
			"error":             dup.Error(),
			"existing_asset_id": dup.ExistingID,
			"existing_name":     dup.ExistingName,
		}
		if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusConflict, payload)
	case errors.Is(err, registry.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrInvalidArgument),
		errors.Is(err, registry.ErrInvalidStatus),
		errors.Is(err, registry.ErrSelfTransfer):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrRecipientNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func pathUID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "uid"))
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func parseLimit(raw string, def, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < 1 || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}
