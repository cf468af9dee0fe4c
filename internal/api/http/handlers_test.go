package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bess-edge/internal/auth"
	balancing "bess-edge/internal/balancing/domain"
	balancingrepo "bess-edge/internal/balancing/infrastructure/postgres"
	forecast "bess-edge/internal/forecast/domain"
	insights "bess-edge/internal/insights/domain"
	signal "bess-edge/internal/signal/domain"
)

type stubSignals struct {
	rows []signal.CorrectedSignals
	err  error
}

func (s *stubSignals) LatestPerSite(context.Context) ([]signal.CorrectedSignals, error) {
	return s.rows, s.err
}

type stubForecasts struct {
	rows       []forecast.EnergyForecast
	gotHorizon int
}

func (s *stubForecasts) LatestSummary(_ context.Context, horizonMin int) ([]forecast.EnergyForecast, error) {
	s.gotHorizon = horizonMin
	return s.rows, nil
}

type stubBalancing struct {
	actions   []balancing.Action
	summaries []balancingrepo.ImbalanceSummary
	updated   map[string]string
}

func (s *stubBalancing) PendingActions(context.Context) ([]balancing.Action, error) {
	return s.actions, nil
}

func (s *stubBalancing) UpdateActionStatus(_ context.Context, actionID, status string) error {
	if s.updated == nil {
		s.updated = map[string]string{}
	}
	for _, action := range s.actions {
		if action.ActionID == actionID {
			s.updated[actionID] = status
			return nil
		}
	}
	return errors.New("balancing repo: action not found")
}

func (s *stubBalancing) SummarizeRecent(context.Context) ([]balancingrepo.ImbalanceSummary, error) {
	return s.summaries, nil
}

type stubInsights struct {
	findings []insights.Finding
	acked    []string
	resolved []string
}

func (s *stubInsights) ActiveFindings(context.Context) ([]insights.Finding, error) {
	return s.findings, nil
}

func (s *stubInsights) Acknowledge(_ context.Context, findingID string) error {
	for _, finding := range s.findings {
		if finding.FindingID == findingID {
			s.acked = append(s.acked, findingID)
			return nil
		}
	}
	return errors.New("insights repo: finding not found")
}

func (s *stubInsights) Resolve(_ context.Context, findingID string) error {
	for _, finding := range s.findings {
		if finding.FindingID == findingID {
			s.resolved = append(s.resolved, findingID)
			return nil
		}
	}
	return errors.New("insights repo: finding not found")
}

func newTestHandler(t *testing.T, signals *stubSignals, forecasts *stubForecasts, balancingStub *stubBalancing, insightsStub *stubInsights) *Handler {
	t.Helper()
	handler, err := NewHandler(signals, forecasts, balancingStub, insightsStub, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler
}

func TestLatestSignalsEndpoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signals := &stubSignals{rows: []signal.CorrectedSignals{
		{SiteID: "site-001", TS: ts, SoCPctCorrected: 55, TrustScore: 92},
		{SiteID: "site-002", TS: ts, SoCPctCorrected: 40, TrustScore: 88},
	}}
	handler := newTestHandler(t, signals, &stubForecasts{}, &stubBalancing{}, &stubInsights{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/latest", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var got []signal.CorrectedSignals
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("rows = %d, want 2", len(got))
	}
}

func TestLatestSignalsSiteScope(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signals := &stubSignals{rows: []signal.CorrectedSignals{
		{SiteID: "site-001", TS: ts},
		{SiteID: "site-002", TS: ts},
	}}
	handler := newTestHandler(t, signals, &stubForecasts{}, &stubBalancing{}, &stubInsights{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/latest", nil)
	ctx := auth.WithIdentity(req.Context(), auth.RoleViewer, []string{"site-002"}, "user-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req.WithContext(ctx))

	var got []signal.CorrectedSignals
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].SiteID != "site-002" {
		t.Errorf("scoped rows = %v", got)
	}
}

func TestForecastSummaryDefaultsToHourHorizon(t *testing.T) {
	forecasts := &stubForecasts{}
	handler := newTestHandler(t, &stubSignals{}, forecasts, &stubBalancing{}, &stubInsights{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecasts/summary", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if forecasts.gotHorizon != 60 {
		t.Errorf("horizon = %d, want 60", forecasts.gotHorizon)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/forecasts/summary?horizon_min=240", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if forecasts.gotHorizon != 240 {
		t.Errorf("horizon = %d, want 240", forecasts.gotHorizon)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/forecasts/summary?horizon_min=bogus", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Code)
	}
}

func TestActionStatusUpdate(t *testing.T) {
	balancingStub := &stubBalancing{actions: []balancing.Action{
		{ActionID: "a-1", SiteID: "site-001", Priority: balancing.PriorityUrgent, Status: "pending"},
	}}
	handler := newTestHandler(t, &stubSignals{}, &stubForecasts{}, balancingStub, &stubInsights{})

	body := bytes.NewBufferString(`{"status":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/a-1/status", body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	if balancingStub.updated["a-1"] != "completed" {
		t.Errorf("updated = %v", balancingStub.updated)
	}

	body = bytes.NewBufferString(`{"status":"bogus"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/actions/a-1/status", body)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid status", resp.Code)
	}

	body = bytes.NewBufferString(`{"status":"completed"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/actions/missing/status", body)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown action", resp.Code)
	}
}

func TestFindingLifecycle(t *testing.T) {
	insightsStub := &stubInsights{findings: []insights.Finding{
		{FindingID: "f-1", SiteID: "site-001", Severity: insights.SeverityAlert, Category: insights.CategoryThermal},
	}}
	handler := newTestHandler(t, &stubSignals{}, &stubForecasts{}, &stubBalancing{}, insightsStub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/f-1/ack", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("ack status = %d", resp.Code)
	}
	if len(insightsStub.acked) != 1 || insightsStub.acked[0] != "f-1" {
		t.Errorf("acked = %v", insightsStub.acked)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/insights/f-1/resolve", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/insights/missing/resolve", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown finding", resp.Code)
	}
}

func TestOperationsReportEndpoints(t *testing.T) {
	insightsStub := &stubInsights{findings: []insights.Finding{
		{FindingID: "f-1", SiteID: "site-001", Severity: insights.SeverityCritical, Category: insights.CategoryEnergyAvailability, Title: "Low Energy Reserve"},
	}}
	balancingStub := &stubBalancing{actions: []balancing.Action{
		{ActionID: "a-1", SiteID: "site-001", RackID: "rack-01", ActionType: "immediate_balancing", Priority: balancing.PriorityUrgent},
	}}
	handler := newTestHandler(t, &stubSignals{}, &stubForecasts{}, balancingStub, insightsStub)

	for _, tc := range []struct {
		path        string
		contentType string
	}{
		{"/api/v1/reports/operations.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"/api/v1/reports/operations.pdf", "application/pdf"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Errorf("%s status = %d", tc.path, resp.Code)
			continue
		}
		if got := resp.Header().Get("Content-Type"); got != tc.contentType {
			t.Errorf("%s content type = %s", tc.path, got)
		}
		if resp.Body.Len() == 0 {
			t.Errorf("%s empty body", tc.path)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/operations.csv", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("csv status = %d, want 404", resp.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	handler := newTestHandler(t, &stubSignals{}, &stubForecasts{}, &stubBalancing{}, &stubInsights{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Code)
	}
}
