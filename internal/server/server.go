// Package server is the HTTP surface of the gateway. Handlers authenticate
// the caller, resolve the effective policy, run the query pipeline, and map
// the error taxonomy onto status codes. Raw query text exists only inside a
// request; responses, logs, audit events, and metrics carry redacted or
// metadata-only views.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrubgate-ai/scrubgate/internal/agent"
	"github.com/scrubgate-ai/scrubgate/internal/audit"
	"github.com/scrubgate-ai/scrubgate/internal/auth"
	"github.com/scrubgate-ai/scrubgate/internal/citation"
	"github.com/scrubgate-ai/scrubgate/internal/config"
	"github.com/scrubgate-ai/scrubgate/internal/detect"
	"github.com/scrubgate-ai/scrubgate/internal/entity"
	"github.com/scrubgate-ai/scrubgate/internal/pipeline"
	"github.com/scrubgate-ai/scrubgate/internal/policy"
	"github.com/scrubgate-ai/scrubgate/internal/redact"
	"github.com/scrubgate-ai/scrubgate/internal/telemetry"
)

// Server wraps the HTTP components of the gateway.
type Server struct {
	mux       *http.ServeMux
	snap      *config.Snapshot
	auth      *auth.Auth
	pipe      *pipeline.Pipeline
	audit     *audit.Emitter
	telemetry *telemetry.Provider
	store     *requestStore
}

// Options collects the dependencies of a Server.
type Options struct {
	Snapshot  *config.Snapshot
	Auth      *auth.Auth
	Pipeline  *pipeline.Pipeline
	Audit     *audit.Emitter
	Telemetry *telemetry.Provider
}

// New creates a server with all routes registered.
func New(opts Options) *Server {
	cfg := opts.Snapshot.Load()
	s := &Server{
		mux:       http.NewServeMux(),
		snap:      opts.Snapshot,
		auth:      opts.Auth,
		pipe:      opts.Pipeline,
		audit:     opts.Audit,
		telemetry: opts.Telemetry,
		store:     newRequestStore(cfg.Server.RequestTTL.Std()),
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/v1/detect", s.handleDetect)
	s.mux.HandleFunc("/v1/query", s.handleQuery)
	s.mux.HandleFunc("/v1/requests/", s.handleRequestStatus)

	return s
}

// Handler returns the route multiplexer for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server on the configured address until it fails.
func (s *Server) Start() error {
	cfg := s.snap.Load()
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Std(),
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       cfg.Server.IdleTimeout.Std(),
	}
	redact.Logf("scrubgate listening on %s", cfg.Server.Addr)
	return srv.ListenAndServe()
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type detectRequest struct {
	Text string `json:"text"`
	// Highlight includes a marked-up view of the original text in the
	// response for review tooling.
	Highlight bool `json:"highlight,omitempty"`
}

type detectResponse struct {
	RequestID    string          `json:"request_id"`
	RedactedText string          `json:"redacted_text"`
	Entities     []entity.Entity `json:"entities"`
	HasPII       bool            `json:"has_pii"`
	ShouldReject bool            `json:"should_reject"`
	Summary      map[string]int  `json:"summary,omitempty"`
	Highlighted  string          `json:"highlighted,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request")
		return
	}
	client, ok := s.authenticate(r)
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid or missing API key", "authentication_error")
		return
	}

	cfg := s.snap.Load()
	var reqBody detectRequest
	if !s.decodeBody(w, r, cfg, &reqBody) {
		return
	}
	if strings.TrimSpace(reqBody.Text) == "" {
		writeAPIError(w, http.StatusBadRequest, "text is empty", "invalid_request")
		return
	}

	pol := client.Policy(defaultPolicy(cfg))
	requestID := uuid.NewString()
	s.store.Start(requestID, client.ID)

	start := time.Now()
	res, err := s.pipe.Process(r.Context(), reqBody.Text, pol)
	detectionMs := millisSince(start)
	if err != nil {
		s.finishError(requestID, client, pol, cfg, audit.DecisionErrorDetection, err, audit.Timing{DetectionMs: detectionMs, TotalMs: detectionMs})
		status, errType := mapError(err)
		writeAPIError(w, status, "Entity detection failed", errType)
		return
	}

	s.finish(requestID, client, pol, cfg, res, nil, audit.Timing{DetectionMs: detectionMs, TotalMs: detectionMs})

	resp := detectResponse{
		RequestID:    requestID,
		RedactedText: res.RedactedText,
		Entities:     res.Entities,
		HasPII:       res.HasPII,
		ShouldReject: res.ShouldReject,
		Summary:      res.Summary(),
	}
	if reqBody.Highlight {
		resp.Highlighted = res.Highlight()
	}
	writeJSON(w, http.StatusOK, resp)
}

type queryRequest struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id,omitempty"`
}

type queryDetection struct {
	RedactedText string         `json:"redacted_text"`
	HasPII       bool           `json:"has_pii"`
	Summary      map[string]int `json:"summary,omitempty"`
}

type queryResponse struct {
	RequestID     string              `json:"request_id"`
	ShouldReject  bool                `json:"should_reject"`
	Detection     queryDetection      `json:"detection"`
	Answer        string              `json:"answer,omitempty"`
	Citations     []citation.Citation `json:"citations,omitempty"`
	ThreadID      string              `json:"thread_id,omitempty"`
	RunID         string              `json:"run_id,omitempty"`
	GroundingUsed bool                `json:"grounding_used"`
	// Message explains a rejection to the caller.
	Message string `json:"message,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request")
		return
	}
	client, ok := s.authenticate(r)
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid or missing API key", "authentication_error")
		return
	}

	cfg := s.snap.Load()
	var reqBody queryRequest
	if !s.decodeBody(w, r, cfg, &reqBody) {
		return
	}
	if strings.TrimSpace(reqBody.Text) == "" {
		writeAPIError(w, http.StatusBadRequest, "text is empty", "invalid_request")
		return
	}

	pol := client.Policy(defaultPolicy(cfg))
	requestID := uuid.NewString()
	s.store.Start(requestID, client.ID)

	start := time.Now()
	res, err := s.pipe.Process(r.Context(), reqBody.Text, pol)
	detectionMs := millisSince(start)
	if err != nil {
		s.finishError(requestID, client, pol, cfg, audit.DecisionErrorDetection, err, audit.Timing{DetectionMs: detectionMs, TotalMs: detectionMs})
		status, errType := mapError(err)
		writeAPIError(w, status, "Entity detection failed", errType)
		return
	}

	// Rejection is a business outcome: 200 with the decision, never an error
	// status. The caller learns what categories tripped the gate, not their
	// values.
	if res.ShouldReject {
		s.finish(requestID, client, pol, cfg, res, nil, audit.Timing{DetectionMs: detectionMs, TotalMs: detectionMs})
		writeJSON(w, http.StatusOK, queryResponse{
			RequestID:    requestID,
			ShouldReject: true,
			Detection:    detectionView(res),
			Message:      "Query contains PII/PHI and was rejected by policy. Remove identifying details and retry.",
		})
		return
	}

	groundStart := time.Now()
	grounded, err := s.pipe.Ground(r.Context(), res, reqBody.ThreadID, pol)
	groundingMs := millisSince(groundStart)
	timing := audit.Timing{DetectionMs: detectionMs, GroundingMs: groundingMs, TotalMs: detectionMs + groundingMs}
	if err != nil {
		s.finishError(requestID, client, pol, cfg, audit.DecisionErrorGrounding, err, timing)
		status, errType := mapError(err)
		// Detection already succeeded; include its outcome so the caller
		// keeps the redaction work even though grounding failed.
		writeJSON(w, status, struct {
			Error     apiErrorDetail `json:"error"`
			Detection queryDetection `json:"detection"`
		}{
			Error:     apiErrorDetail{Message: "Grounded response failed", Type: errType},
			Detection: detectionView(res),
		})
		return
	}

	grounding := &audit.Grounding{
		Used:      grounded.GroundingUsed,
		Citations: len(grounded.Citations),
		ThreadID:  grounded.ThreadID,
		RunID:     grounded.RunID,
	}
	s.finish(requestID, client, pol, cfg, res, grounding, timing)

	writeJSON(w, http.StatusOK, queryResponse{
		RequestID:     requestID,
		ShouldReject:  false,
		Detection:     detectionView(res),
		Answer:        grounded.Answer,
		Citations:     grounded.Citations,
		ThreadID:      grounded.ThreadID,
		RunID:         grounded.RunID,
		GroundingUsed: grounded.GroundingUsed,
	})
}

type requestStatusResponse struct {
	RequestID string       `json:"request_id"`
	Status    string       `json:"status"`
	Event     *audit.Event `json:"event,omitempty"`
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request")
		return
	}
	client, ok := s.authenticate(r)
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid or missing API key", "authentication_error")
		return
	}

	requestID := strings.TrimPrefix(r.URL.Path, "/v1/requests/")
	if requestID == "" || strings.Contains(requestID, "/") {
		writeAPIError(w, http.StatusBadRequest, "missing request id", "invalid_request")
		return
	}

	entry, ok := s.store.Get(requestID)
	if !ok || entry.clientID != client.ID {
		// Same answer for unknown and foreign ids.
		writeAPIError(w, http.StatusNotFound, "request not found", "not_found")
		return
	}

	writeJSON(w, http.StatusOK, requestStatusResponse{
		RequestID: requestID,
		Status:    entry.status,
		Event:     entry.event,
	})
}

// --- Helpers ---

func (s *Server) authenticate(r *http.Request) (auth.Client, bool) {
	apiKey, ok := parseBearerToken(r.Header.Get("Authorization"))
	if !ok || apiKey == "" {
		apiKey = strings.TrimSpace(r.Header.Get("X-API-Key"))
	}
	if apiKey == "" {
		return auth.Client{}, false
	}
	return s.auth.Lookup(apiKey)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, cfg *config.Config, out any) bool {
	body := http.MaxBytesReader(w, r.Body, cfg.Server.MaxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request")
			return false
		}
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return false
	}
	return true
}

func (s *Server) finish(requestID string, client auth.Client, pol policy.Policy, cfg *config.Config, res *entity.DetectionResult, grounding *audit.Grounding, timing audit.Timing) {
	decision := audit.DecisionAllowed
	switch {
	case res.ShouldReject:
		decision = audit.DecisionRejected
	case res.HasPII:
		decision = audit.DecisionRedacted
	}
	ev := audit.BuildEvent(decision, audit.BuildParams{
		RequestID: requestID,
		ClientID:  client.ID,
		Policy:    pol,
		Domain:    cfg.Detection.Domain,
		Result:    res,
		Grounding: grounding,
		Timing:    timing,
	})
	s.record(requestID, client, pol, ev, res, grounding, timing)
}

func (s *Server) finishError(requestID string, client auth.Client, pol policy.Policy, cfg *config.Config, decision audit.Decision, err error, timing audit.Timing) {
	ev := audit.BuildEvent(decision, audit.BuildParams{
		RequestID: requestID,
		ClientID:  client.ID,
		Policy:    pol,
		Domain:    cfg.Detection.Domain,
		Timing:    timing,
		Err:       err,
	})
	s.record(requestID, client, pol, ev, nil, nil, timing)
}

func (s *Server) record(requestID string, client auth.Client, pol policy.Policy, ev *audit.Event, res *entity.DetectionResult, grounding *audit.Grounding, timing audit.Timing) {
	s.store.Complete(requestID, ev)
	s.audit.Emit(context.Background(), ev)

	entities := 0
	if res != nil {
		entities = len(res.Entities)
	}
	citations := 0
	if grounding != nil {
		citations = grounding.Citations
	}
	s.telemetry.RecordQueryMetrics(string(ev.Decision), client.ID, string(pol.Mode), timing.DetectionMs, timing.GroundingMs, entities, citations)
}

func defaultPolicy(cfg *config.Config) policy.Policy {
	mode, err := policy.ParseMode(cfg.Detection.Mode)
	if err != nil {
		mode = policy.ModeRedact
	}
	return policy.Policy{Mode: mode, ConfidenceThreshold: cfg.Detection.ConfidenceThreshold}
}

func detectionView(res *entity.DetectionResult) queryDetection {
	return queryDetection{
		RedactedText: res.RedactedText,
		HasPII:       res.HasPII,
		Summary:      res.Summary(),
	}
}

// mapError translates the error taxonomy into HTTP status codes. Transient
// upstream failures are 502, the run deadline is 504, a busy thread is 409.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrRunTimeout):
		return http.StatusGatewayTimeout, "grounding_timeout"
	case errors.Is(err, agent.ErrThreadBusy):
		return http.StatusConflict, "thread_busy"
	case errors.Is(err, agent.ErrRejected):
		return http.StatusForbidden, "policy_rejected"
	case errors.Is(err, pipeline.ErrGroundingDisabled):
		return http.StatusBadRequest, "grounding_disabled"
	case errors.Is(err, detect.ErrUnsupportedDomain):
		return http.StatusInternalServerError, "configuration_error"
	}
	var derr *detect.ServiceError
	if errors.As(err, &derr) {
		return http.StatusBadGateway, "detection_error"
	}
	var gerr *agent.GroundingError
	if errors.As(err, &gerr) {
		return http.StatusBadGateway, "grounding_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func parseBearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeAPIError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, apiErrorBody{Error: apiErrorDetail{Message: message, Type: errType}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Logf("failed to write response: %v", err)
	}
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
