package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	assistantapp "fleet-risk-engine/internal/assistant/application"
	assistant "fleet-risk-engine/internal/assistant/domain"
	"fleet-risk-engine/internal/audit"
	"fleet-risk-engine/internal/auth"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/fleet/infrastructure/memory"
	healthapp "fleet-risk-engine/internal/health/application"
	health "fleet-risk-engine/internal/health/domain"
	qualityapp "fleet-risk-engine/internal/quality/application"
	riskapp "fleet-risk-engine/internal/risk/application"
	schedulingapp "fleet-risk-engine/internal/scheduling/application"
)

var (
	testNow    = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	testSecret = []byte("test-secret")
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubResponder struct{}

func (stubResponder) GenerateReply(_ context.Context, reply assistant.ReplyContext, message string) (string, error) {
	return "checked " + reply.VehicleSummary[:len("Vehicle:")] + " " + message, nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.actions = append(a.actions, entry.Action)
	return nil
}

func newRouter(t *testing.T, withAuth bool) (http.Handler, *memory.Store, *recordingAudit) {
	t.Helper()
	fixture, err := memory.DefaultFixture()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	store, err := memory.NewSeededStore(fixture)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	clock := fixedClock{now: testNow}

	scorer, err := health.NewScorer(health.DefaultThresholds())
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}
	healthService, err := healthapp.NewService(store, scorer, healthapp.WithClock(clock))
	if err != nil {
		t.Fatalf("health service: %v", err)
	}
	riskService, err := riskapp.NewService(store)
	if err != nil {
		t.Fatalf("risk service: %v", err)
	}
	schedulingService, err := schedulingapp.NewService(store, schedulingapp.WithClock(clock))
	if err != nil {
		t.Fatalf("scheduling service: %v", err)
	}
	qualityService, err := qualityapp.NewService(store, qualityapp.WithClock(clock))
	if err != nil {
		t.Fatalf("quality service: %v", err)
	}
	builder, err := assistantapp.NewContextBuilder(store)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	assistantService, err := assistantapp.NewService(builder, stubResponder{}, assistantapp.WithClock(clock))
	if err != nil {
		t.Fatalf("assistant service: %v", err)
	}

	recorder := &recordingAudit{}
	fleetHandler, err := NewFleetHandler(store, healthService, riskService, recorder, nil)
	if err != nil {
		t.Fatalf("fleet handler: %v", err)
	}
	schedulingHandler, err := NewSchedulingHandler(schedulingService, store, recorder, nil)
	if err != nil {
		t.Fatalf("scheduling handler: %v", err)
	}
	qualityHandler, err := NewQualityHandler(qualityService, store, recorder, nil)
	if err != nil {
		t.Fatalf("quality handler: %v", err)
	}
	assistantHandler, err := NewAssistantHandler(assistantService, nil)
	if err != nil {
		t.Fatalf("assistant handler: %v", err)
	}

	var mw *auth.Middleware
	if withAuth {
		mw = auth.NewMiddleware(testSecret, auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	}
	return NewRouter(mw, nil, fleetHandler, schedulingHandler, qualityHandler, assistantHandler), store, recorder
}

func do(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode %q: %v", resp.Body.String(), err)
	}
}

func TestNewHandlersRejectNilDeps(t *testing.T) {
	if _, err := NewFleetHandler(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected fleet handler error")
	}
	if _, err := NewSchedulingHandler(nil, nil, nil, nil); err == nil {
		t.Fatal("expected scheduling handler error")
	}
	if _, err := NewQualityHandler(nil, nil, nil, nil); err == nil {
		t.Fatal("expected quality handler error")
	}
	if _, err := NewAssistantHandler(nil, nil); err == nil {
		t.Fatal("expected assistant handler error")
	}
}

func TestVehicleEndpoints(t *testing.T) {
	router, _, _ := newRouter(t, false)

	resp := do(t, router, http.MethodGet, "/api/v1/vehicles/veh-004", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var view struct {
		Vehicle     fleet.Vehicle            `json:"vehicle"`
		Predictions []fleet.PredictedFailure `json:"predictions"`
	}
	decode(t, resp, &view)
	if view.Vehicle.ID != "veh-004" || len(view.Predictions) != 2 || view.Predictions[0].ID != "pred-001" {
		t.Fatalf("unexpected view %+v", view)
	}

	if resp := do(t, router, http.MethodGet, "/api/v1/vehicles/veh-404", nil, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp = do(t, router, http.MethodGet, "/api/v1/rankings?limit=2", nil, "")
	var ranks []struct {
		Vehicle fleet.Vehicle `json:"vehicle"`
	}
	decode(t, resp, &ranks)
	if len(ranks) != 2 || ranks[0].Vehicle.ID != "veh-004" || ranks[1].Vehicle.ID != "veh-009" {
		t.Fatalf("unexpected rankings %+v", ranks)
	}
}

func TestHealthRecomputeAndTelematicsIngest(t *testing.T) {
	router, store, recorder := newRouter(t, false)

	snapshot := fleet.TelematicsSnapshot{
		Timestamp:      testNow,
		EngineTemp:     90,
		OilPressure:    40,
		BrakeWear:      20,
		BatteryVoltage: 12.6,
		TirePressure:   fleet.AllWheels(32, 32, 32, 32),
		FuelLevel:      50,
	}
	if resp := do(t, router, http.MethodPost, "/api/v1/vehicles/veh-010/telematics", snapshot, ""); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	latest, err := store.GetLatestTelematics(context.Background(), "veh-010")
	if err != nil || latest == nil || !latest.Timestamp.Equal(testNow) {
		t.Fatalf("snapshot not stored: %+v (%v)", latest, err)
	}

	resp := do(t, router, http.MethodPost, "/api/v1/vehicles/veh-004/health/recompute", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result healthapp.Result
	decode(t, resp, &result)
	vehicle, _ := store.GetVehicle(context.Background(), "veh-004")
	if result.VehicleID != "veh-004" || vehicle.HealthScore != result.Score {
		t.Fatalf("score not persisted: %+v vs %v", result, vehicle.HealthScore)
	}
	if len(recorder.actions) != 1 || recorder.actions[0] != "health.recompute" {
		t.Fatalf("unexpected audit trail %v", recorder.actions)
	}
}

func TestScheduleAndTransition(t *testing.T) {
	router, store, recorder := newRouter(t, false)

	resp := do(t, router, http.MethodPost, "/api/v1/appointments", scheduleRequest{
		VehicleID:   "veh-009",
		From:        "2026-10-15",
		To:          "2026-10-18",
		ServiceType: "Battery Replacement",
		Priority:    fleet.PriorityHigh,
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var appointment fleet.Appointment
	decode(t, resp, &appointment)
	if appointment.ServiceCenterID != "sc-mumbai" || appointment.Status != fleet.AppointmentScheduled {
		t.Fatalf("unexpected appointment %+v", appointment)
	}

	resp = do(t, router, http.MethodPost, "/api/v1/appointments/"+appointment.ID+"/cancel", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	center, _ := store.GetServiceCenter(context.Background(), "sc-mumbai")
	if center.CurrentLoad != 14 {
		t.Fatalf("expected slot released, load %d", center.CurrentLoad)
	}
	if resp := do(t, router, http.MethodPost, "/api/v1/appointments/"+appointment.ID+"/confirm", nil, ""); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for terminal appointment, got %d", resp.Code)
	}
	if got := strings.Join(recorder.actions, ","); got != "appointment.schedule,appointment.cancel" {
		t.Fatalf("unexpected audit trail %s", got)
	}

	resp = do(t, router, http.MethodGet, "/api/v1/appointments?status=scheduled,confirmed&vehicle_id=veh-004", nil, "")
	var pending []fleet.Appointment
	decode(t, resp, &pending)
	if len(pending) != 1 || pending[0].ID != "appt-001" {
		t.Fatalf("unexpected pending appointments %+v", pending)
	}
}

func TestScheduleErrorMapping(t *testing.T) {
	router, _, _ := newRouter(t, false)

	invalid := do(t, router, http.MethodPost, "/api/v1/appointments", scheduleRequest{
		VehicleID: "veh-009", From: "2026-10-15", To: "2026-10-18", ServiceType: "Battery", Priority: "someday",
	}, "")
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", invalid.Code)
	}
	var body errorBody
	decode(t, invalid, &body)
	if body.Field == "" {
		t.Fatalf("expected offending field in %+v", body)
	}
	missing := do(t, router, http.MethodPost, "/api/v1/appointments", scheduleRequest{
		VehicleID: "veh-404", From: "2026-10-15", To: "2026-10-18", ServiceType: "Battery", Priority: fleet.PriorityLow,
	}, "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
	if resp := do(t, router, http.MethodGet, "/api/v1/scheduling/demand?from=2026-10-15&days=91", nil, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized horizon, got %d", resp.Code)
	}
}

func TestSweepAndDemand(t *testing.T) {
	router, _, _ := newRouter(t, false)

	resp := do(t, router, http.MethodPost, "/api/v1/scheduling/sweep", nil, "")
	var report schedulingapp.SweepReport
	decode(t, resp, &report)
	if report.Scheduled != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected sweep report %+v", report)
	}

	resp = do(t, router, http.MethodGet, "/api/v1/scheduling/demand?from=2026-10-20&days=1", nil, "")
	var days []struct {
		Date      string `json:"date"`
		Actual    int    `json:"actual"`
		Predicted int    `json:"predicted"`
	}
	decode(t, resp, &days)
	if len(days) != 1 || days[0].Actual != 1 || days[0].Predicted != 2 {
		t.Fatalf("unexpected demand %+v", days)
	}
}

func TestQualityEndpoints(t *testing.T) {
	router, _, _ := newRouter(t, false)

	resp := do(t, router, http.MethodGet, "/api/v1/quality/insights", nil, "")
	var insights []struct {
		Category string `json:"category"`
	}
	decode(t, resp, &insights)
	if len(insights) != 5 {
		t.Fatalf("expected 5 insights, got %+v", insights)
	}

	resp = do(t, router, http.MethodPost, "/api/v1/quality/rca/rca-003/status", map[string]string{"status": "open"}, "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("closed record must not reopen, got %d", resp.Code)
	}
	resp = do(t, router, http.MethodPost, "/api/v1/quality/rca/rca-002/status", map[string]string{"status": "in_progress"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	pdf := do(t, router, http.MethodGet, "/api/v1/quality/export.pdf", nil, "")
	if pdf.Code != http.StatusOK || !bytes.HasPrefix(pdf.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("unexpected pdf export %d", pdf.Code)
	}
	xlsx := do(t, router, http.MethodGet, "/api/v1/quality/export.xlsx", nil, "")
	if xlsx.Code != http.StatusOK || !strings.Contains(xlsx.Header().Get("Content-Disposition"), "quality-report-2026-10-15.xlsx") {
		t.Fatalf("unexpected xlsx export %d %v", xlsx.Code, xlsx.Header())
	}
}

func TestAssistantChat(t *testing.T) {
	router, _, _ := newRouter(t, false)

	resp := do(t, router, http.MethodPost, "/api/v1/assistant/chat", chatRequest{SessionID: "s1", VehicleID: "veh-004", Message: "brakes?"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var reply chatResponse
	decode(t, resp, &reply)
	if reply.Reply != "checked Vehicle: brakes?" {
		t.Fatalf("unexpected reply %q", reply.Reply)
	}
	resp = do(t, router, http.MethodGet, "/api/v1/assistant/sessions/s1/history", nil, "")
	var history []assistant.Message
	decode(t, resp, &history)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %+v", history)
	}
	if resp := do(t, router, http.MethodPost, "/api/v1/assistant/chat", chatRequest{Message: "hi"}, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session, got %d", resp.Code)
	}
}

func TestRouterEnforcesRoles(t *testing.T) {
	router, _, _ := newRouter(t, true)

	if resp := do(t, router, http.MethodGet, "/healthz", nil, ""); resp.Code != http.StatusOK {
		t.Fatalf("healthz should be open, got %d", resp.Code)
	}
	if resp := do(t, router, http.MethodGet, "/api/v1/vehicles", nil, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	viewer, _ := auth.IssueJWT(testSecret, "viewer-1", auth.RoleViewer, time.Hour)
	if resp := do(t, router, http.MethodGet, "/api/v1/vehicles", nil, viewer); resp.Code != http.StatusOK {
		t.Fatalf("viewer should read, got %d", resp.Code)
	}
	if resp := do(t, router, http.MethodPost, "/api/v1/appointments/appt-002/cancel", nil, viewer); resp.Code != http.StatusForbidden {
		t.Fatalf("viewer must not cancel, got %d", resp.Code)
	}
	operator, _ := auth.IssueJWT(testSecret, "ops-1", auth.RoleOperator, time.Hour)
	if resp := do(t, router, http.MethodPost, "/api/v1/appointments/appt-002/cancel", nil, operator); resp.Code != http.StatusOK {
		t.Fatalf("operator should cancel, got %d", resp.Code)
	}
}
