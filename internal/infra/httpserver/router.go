package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/medimaging-bridge/internal/application/analysis"
	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/medimaging-bridge/internal/infra/whatsapp"
	"github.com/bryanwahyu/medimaging-bridge/internal/middleware"
)

// graphProvider is the only push-style provider wired today. The form
// transport has its own fixed route and never goes through here.
const graphProvider = "meta"

const maxUploadBytes = 10 << 20

type Deps struct {
	Svc         *appanalysis.Service
	Queue       *appanalysis.Queue
	DB          *sql.DB               // readiness probe only, may be nil
	ErrLog      domain.ErrorLogReader // optional, enriches the detail lookup
	AppSecret   []byte
	VerifyToken string

	AllowedOrigins []string
	AnalyzeBucket  *middleware.TokenBucket
	Logger         *slog.Logger
}

type Router struct {
	svc         *appanalysis.Service
	queue       *appanalysis.Queue
	errLog      domain.ErrorLogReader
	verifyToken string
	logger      *slog.Logger
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		svc:         deps.Svc,
		queue:       deps.Queue,
		errLog:      deps.ErrLog,
		verifyToken: deps.VerifyToken,
		logger:      logger,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.MetricsMiddleware)

	if len(deps.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	mux.Get("/health", middleware.LivenessHandler)

	checkers := map[string]middleware.HealthChecker{}
	if deps.DB != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: deps.DB}
	}
	mux.Get("/health/ready", middleware.ReadinessHandler(checkers))
	mux.Get("/metrics", middleware.MetricsHandler)

	// graph-style intake: signed body, queue-free synchronous handling
	mux.Route("/webhook/{provider}", func(rt chi.Router) {
		rt.Get("/", r.handleVerifyChallenge)
		rt.With(middleware.SignatureAuth(deps.AppSecret)).Post("/", r.wrap(r.handleGraphWebhook))
	})

	// form-style intake: immediate ACK, work rides the queue
	mux.Post("/webhook/whatsapp", r.wrap(r.handleFormWebhook))

	analyze := r.wrap(r.handleAnalyze)
	if deps.AnalyzeBucket != nil {
		mux.With(middleware.RateLimit(deps.AnalyzeBucket)).Post("/analyze", analyze)
	} else {
		mux.Post("/analyze", analyze)
	}

	mux.Get("/analyses/latest", r.wrap(r.handleLatest))
	mux.Get("/analyses/{message_id}", r.wrap(r.handleGet))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError lets a handler pin the exact status for one failure; all
// other errors go through the taxonomy mapping in wrap.
type httpError struct {
	status int
	kind   string
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }

func (e *httpError) Unwrap() error { return e.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var he *httpError
		if errors.As(err, &he) {
			writeError(w, he.status, he.kind, he.err.Error())
			return
		}

		var pe *domain.PersistenceError
		switch {
		case errors.As(err, &pe):
			r.logger.Error("request lost its record", "error", err)
			writeError(w, http.StatusInternalServerError, "persistence", "could not store the analysis record")
		case errors.Is(err, domain.ErrMalformedJSON),
			errors.Is(err, domain.ErrMissingRequiredField):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, domain.ErrClassifierUnavailable):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		default:
			r.logger.Error("request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
	}
}

// GET /webhook/{provider}
// Subscription handshake: echo hub.challenge when the verify token
// matches, otherwise 403.
func (r *Router) handleVerifyChallenge(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if q.Get("hub.mode") == "subscribe" &&
		r.verifyToken != "" &&
		q.Get("hub.verify_token") == r.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	writeError(w, http.StatusForbidden, "forbidden", "verify token mismatch")
}

// POST /webhook/{provider}
// Signature already checked by the route middleware. The pipeline runs
// before the response; the provider sees "processado" even when the
// pipeline failed, because the failure is recorded and a retry would
// not help.
func (r *Router) handleGraphWebhook(w http.ResponseWriter, req *http.Request) error {
	if !strings.EqualFold(chi.URLParam(req, "provider"), graphProvider) {
		return &httpError{http.StatusNotFound, "not_found", errors.New("unknown provider")}
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return &httpError{http.StatusBadRequest, "bad_request", err}
	}
	middleware.IncrementReceived()

	msg, err := whatsapp.ParseGraphPayload(body)
	if err != nil {
		return err
	}
	if msg == nil {
		// delivery without an image message: acknowledged, not recorded
		return writeJSON(w, http.StatusOK, map[string]string{"status": "ignorado"})
	}

	out, err := r.svc.Process(req.Context(), msg)
	if err != nil {
		return err
	}

	status := "processado"
	if out.Status == domain.StatusIgnored {
		status = "ignorado"
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// POST /webhook/whatsapp
// Form-style transport. Trust model differs from the graph intake:
// no signature, the deployment gates this route at the proxy.
func (r *Router) handleFormWebhook(w http.ResponseWriter, req *http.Request) error {
	if !r.svc.ClassifierConfigured() {
		return &httpError{http.StatusServiceUnavailable, "unavailable", domain.ErrClassifierUnavailable}
	}

	if err := req.ParseForm(); err != nil {
		return &httpError{http.StatusBadRequest, "bad_request", err}
	}
	middleware.IncrementReceived()

	msg, err := whatsapp.MessageFromForm(req.PostForm)
	if err != nil {
		return err
	}

	if !r.queue.Enqueue(msg) {
		return &httpError{http.StatusServiceUnavailable, "unavailable", errors.New("queue full, retry later")}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, werr := w.Write([]byte("ACK"))
	return werr
}

// POST /analyze
// Interactive inference for a multipart upload. Unlike the webhook
// path a backend failure surfaces here, as 502.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return &httpError{http.StatusBadRequest, "bad_request", err}
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return &httpError{http.StatusBadRequest, "bad_request", errors.New("multipart field 'file' is required")}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return &httpError{http.StatusBadRequest, "bad_request", err}
	}
	if len(data) == 0 {
		return &httpError{http.StatusBadRequest, "bad_request", errors.New("uploaded file is empty")}
	}

	scores, err := r.svc.AnalyzeUpload(req.Context(), data, header.Filename)
	if err != nil {
		if errors.Is(err, domain.ErrClassifierUnavailable) {
			return err
		}
		return &httpError{http.StatusBadGateway, "bad_gateway", err}
	}

	classes := make([]string, 0, len(scores))
	for label := range scores {
		classes = append(classes, label)
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"classes":       classes,
		"probabilities": scores,
	})
}

// GET /analyses/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Analysis{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /analyses/{message_id}
// Detail view: the record plus its per-phase failure audit entries.
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	messageID := chi.URLParam(req, "message_id")

	record, err := r.svc.Get(req.Context(), messageID)
	if err != nil {
		return err
	}
	if record == nil {
		return &httpError{http.StatusNotFound, "not_found", errors.New("no analysis for that message id")}
	}

	detail := struct {
		*domain.Analysis
		ProcessingErrors []*domain.ProcessingError `json:"processing_errors,omitempty"`
	}{Analysis: record}

	if r.errLog != nil {
		entries, lerr := r.errLog.ListByMessage(req.Context(), messageID, 0)
		if lerr != nil {
			return lerr
		}
		detail.ProcessingErrors = entries
	}
	return writeJSON(w, http.StatusOK, detail)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
