package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bess-edge/internal/audit"
	"bess-edge/internal/auth"
	balancing "bess-edge/internal/balancing/domain"
	balancingrepo "bess-edge/internal/balancing/infrastructure/postgres"
	"bess-edge/internal/cache"
	forecast "bess-edge/internal/forecast/domain"
	insights "bess-edge/internal/insights/domain"
	insightsifc "bess-edge/internal/insights/interfaces"
	"bess-edge/internal/observability/metrics"
	signal "bess-edge/internal/signal/domain"
)

// SignalReader serves the latest corrected signals.
type SignalReader interface {
	LatestPerSite(ctx context.Context) ([]signal.CorrectedSignals, error)
}

// ForecastReader serves per-site forecast summaries.
type ForecastReader interface {
	LatestSummary(ctx context.Context, horizonMin int) ([]forecast.EnergyForecast, error)
}

// BalancingReader serves imbalance summaries and the action queue.
type BalancingReader interface {
	PendingActions(ctx context.Context) ([]balancing.Action, error)
	UpdateActionStatus(ctx context.Context, actionID, status string) error
	SummarizeRecent(ctx context.Context) ([]balancingrepo.ImbalanceSummary, error)
}

// InsightsReader serves active findings and their lifecycle operations.
type InsightsReader interface {
	ActiveFindings(ctx context.Context) ([]insights.Finding, error)
	Acknowledge(ctx context.Context, findingID string) error
	Resolve(ctx context.Context, findingID string) error
}

// Handler serves the decision-support API.
type Handler struct {
	signals   SignalReader
	forecasts ForecastReader
	balancing BalancingReader
	insights  InsightsReader
	cache     *cache.Cache
	audits    audit.Logger
	logger    *log.Logger
}

// NewHandler constructs a handler. The cache and audit logger are optional.
func NewHandler(signals SignalReader, forecasts ForecastReader, balancingReader BalancingReader, insightsReader InsightsReader, c *cache.Cache, audits audit.Logger, logger *log.Logger) (*Handler, error) {
	if signals == nil || forecasts == nil || balancingReader == nil || insightsReader == nil {
		return nil, errors.New("api handler: nil dependency")
	}
	return &Handler{
		signals:   signals,
		forecasts: forecasts,
		balancing: balancingReader,
		insights:  insightsReader,
		cache:     c,
		audits:    audits,
		logger:    logger,
	}, nil
}

// ServeHTTP routes API endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/signals/latest" && r.Method == http.MethodGet:
		h.handleLatestSignals(w, r)
	case path == "/api/v1/forecasts/summary" && r.Method == http.MethodGet:
		h.handleForecastSummary(w, r)
	case path == "/api/v1/imbalance/summary" && r.Method == http.MethodGet:
		h.handleImbalanceSummary(w, r)
	case path == "/api/v1/actions/pending" && r.Method == http.MethodGet:
		h.handlePendingActions(w, r)
	case strings.HasPrefix(path, "/api/v1/actions/") && strings.HasSuffix(path, "/status") && r.Method == http.MethodPost:
		h.handleActionStatus(w, r)
	case path == "/api/v1/insights/active" && r.Method == http.MethodGet:
		h.handleActiveFindings(w, r)
	case strings.HasPrefix(path, "/api/v1/insights/") && strings.HasSuffix(path, "/ack") && r.Method == http.MethodPost:
		h.handleFindingFlag(w, r, "ack")
	case strings.HasPrefix(path, "/api/v1/insights/") && strings.HasSuffix(path, "/resolve") && r.Method == http.MethodPost:
		h.handleFindingFlag(w, r, "resolve")
	case strings.HasPrefix(path, "/api/v1/reports/operations."):
		h.handleReport(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleLatestSignals(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil && len(auth.SiteIDsFromContext(r.Context())) == 0 {
		if body, err := h.cache.GetLatestSignals(r.Context()); err == nil && body != nil {
			metrics.IncCache("hit")
			writeJSONBody(w, body)
			return
		}
		metrics.IncCache("miss")
	}

	rows, err := h.signals.LatestPerSite(r.Context())
	if err != nil {
		h.serverError(w, "latest signals", err)
		return
	}
	rows = filterSignals(r.Context(), rows)

	body, err := json.Marshal(rows)
	if err != nil {
		h.serverError(w, "latest signals", err)
		return
	}
	if h.cache != nil && len(auth.SiteIDsFromContext(r.Context())) == 0 {
		_ = h.cache.SetLatestSignals(r.Context(), body)
	}
	writeJSONBody(w, body)
}

func (h *Handler) handleForecastSummary(w http.ResponseWriter, r *http.Request) {
	horizonMin := 60
	if raw := r.URL.Query().Get("horizon_min"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid horizon_min", http.StatusBadRequest)
			return
		}
		horizonMin = parsed
	}

	rows, err := h.forecasts.LatestSummary(r.Context(), horizonMin)
	if err != nil {
		h.serverError(w, "forecast summary", err)
		return
	}

	var filtered []forecast.EnergyForecast
	for _, row := range rows {
		if auth.CanAccessSite(r.Context(), row.SiteID) {
			filtered = append(filtered, row)
		}
	}
	writeJSON(w, filtered)
}

func (h *Handler) handleImbalanceSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.balancing.SummarizeRecent(r.Context())
	if err != nil {
		h.serverError(w, "imbalance summary", err)
		return
	}
	var filtered []balancingrepo.ImbalanceSummary
	for _, row := range rows {
		if auth.CanAccessSite(r.Context(), row.SiteID) {
			filtered = append(filtered, row)
		}
	}
	writeJSON(w, filtered)
}

func (h *Handler) handlePendingActions(w http.ResponseWriter, r *http.Request) {
	scoped := len(auth.SiteIDsFromContext(r.Context())) > 0
	if h.cache != nil && !scoped {
		if body, err := h.cache.GetPendingActions(r.Context()); err == nil && body != nil {
			metrics.IncCache("hit")
			writeJSONBody(w, body)
			return
		}
		metrics.IncCache("miss")
	}

	rows, err := h.balancing.PendingActions(r.Context())
	if err != nil {
		h.serverError(w, "pending actions", err)
		return
	}
	var filtered []balancing.Action
	for _, row := range rows {
		if auth.CanAccessSite(r.Context(), row.SiteID) {
			filtered = append(filtered, row)
		}
	}

	body, err := json.Marshal(filtered)
	if err != nil {
		h.serverError(w, "pending actions", err)
		return
	}
	if h.cache != nil && !scoped {
		_ = h.cache.SetPendingActions(r.Context(), body)
	}
	writeJSONBody(w, body)
}

func (h *Handler) handleActionStatus(w http.ResponseWriter, r *http.Request) {
	actionID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/actions/"), "/status")
	if actionID == "" {
		http.Error(w, "action id required", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case "in_progress", "completed", "cancelled":
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	if err := h.balancing.UpdateActionStatus(r.Context(), actionID, req.Status); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if h.cache != nil {
		_ = h.cache.InvalidateActions(r.Context())
	}
	h.auditLog(r, "action_status_"+req.Status, "balancing_action", actionID)
	writeJSON(w, map[string]string{"action_id": actionID, "status": req.Status})
}

func (h *Handler) handleActiveFindings(w http.ResponseWriter, r *http.Request) {
	scoped := len(auth.SiteIDsFromContext(r.Context())) > 0
	if h.cache != nil && !scoped {
		if body, err := h.cache.GetActiveFindings(r.Context()); err == nil && body != nil {
			metrics.IncCache("hit")
			writeJSONBody(w, body)
			return
		}
		metrics.IncCache("miss")
	}

	rows, err := h.insights.ActiveFindings(r.Context())
	if err != nil {
		h.serverError(w, "active findings", err)
		return
	}
	var filtered []insights.Finding
	for _, row := range rows {
		if auth.CanAccessSite(r.Context(), row.SiteID) {
			filtered = append(filtered, row)
		}
	}

	body, err := json.Marshal(filtered)
	if err != nil {
		h.serverError(w, "active findings", err)
		return
	}
	if h.cache != nil && !scoped {
		_ = h.cache.SetActiveFindings(r.Context(), body)
	}
	writeJSONBody(w, body)
}

func (h *Handler) handleFindingFlag(w http.ResponseWriter, r *http.Request, op string) {
	findingID := strings.TrimPrefix(r.URL.Path, "/api/v1/insights/")
	findingID = strings.TrimSuffix(findingID, "/"+op)
	if findingID == "" || strings.Contains(findingID, "/") {
		http.Error(w, "finding id required", http.StatusBadRequest)
		return
	}

	var err error
	if op == "ack" {
		err = h.insights.Acknowledge(r.Context(), findingID)
	} else {
		err = h.insights.Resolve(r.Context(), findingID)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if h.cache != nil {
		_ = h.cache.InvalidateFindings(r.Context())
	}
	h.auditLog(r, "finding_"+op, "finding", findingID)
	writeJSON(w, map[string]string{"finding_id": findingID, "operation": op})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	format := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/operations.")
	if format != "xlsx" && format != "pdf" {
		http.Error(w, "unsupported format", http.StatusNotFound)
		return
	}

	started := time.Now()
	findings, err := h.insights.ActiveFindings(r.Context())
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		h.serverError(w, "report", err)
		return
	}
	actions, err := h.balancing.PendingActions(r.Context())
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		h.serverError(w, "report", err)
		return
	}

	now := time.Now().UTC()
	var body []byte
	var contentType string
	if format == "xlsx" {
		body, err = insightsifc.BuildFindingsXLSX(now, findings, actions)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else {
		body, err = insightsifc.BuildFindingsPDF(now, findings, actions)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		h.serverError(w, "report", err)
		return
	}

	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=operations."+format)
	_, _ = w.Write(body)
}

func filterSignals(ctx context.Context, rows []signal.CorrectedSignals) []signal.CorrectedSignals {
	var filtered []signal.CorrectedSignals
	for _, row := range rows {
		if auth.CanAccessSite(ctx, row.SiteID) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

func (h *Handler) auditLog(r *http.Request, action, resourceType, resourceID string) {
	if h.audits == nil {
		return
	}
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if err := h.audits.Log(r.Context(), entry); err != nil && h.logger != nil {
		h.logger.Printf("audit log failed: %v", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Printf("api %s failed: %v", op, err)
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
