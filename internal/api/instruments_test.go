package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/davmor83/labrig-core/internal/auth"
	"github.com/davmor83/labrig-core/internal/rig"
)

// doRequest performs an authenticated request against the router and
// returns the recorder.
func doRequest(t *testing.T, router http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

// ─── Introspection Tests ───────────────────────────────────────────

func TestListInstruments(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	if count := resp["count"].(float64); count != 3 {
		t.Errorf("count = %v, want 3", count)
	}
	instruments := resp["instruments"].([]any)
	if len(instruments) != 3 {
		t.Errorf("instruments length = %d, want 3", len(instruments))
	}
}

func TestListInstruments_FamilyFilter(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments?family=load", token, nil)
	resp := decodeJSON(t, w)

	if count := resp["count"].(float64); count != 1 {
		t.Fatalf("count = %v, want 1", count)
	}
	first := resp["instruments"].([]any)[0].(map[string]any)
	if first["id"] != "load1" {
		t.Errorf("id = %v, want load1", first["id"])
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/instruments?family=oscilloscope", token, nil)
	resp = decodeJSON(t, w)
	if count := resp["count"].(float64); count != 0 {
		t.Errorf("count for unknown family = %v, want 0", count)
	}
}

func TestGetInstrument(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/load1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var info rig.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.ID != "load1" {
		t.Errorf("id = %q, want load1", info.ID)
	}
	if info.Family != "load" {
		t.Errorf("family = %q, want load", info.Family)
	}
	if !info.Simulated {
		t.Error("simulated should be true")
	}
	if !info.Online {
		t.Error("online should be true after InitializeAll")
	}
}

func TestGetInstrument_NotFound(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/ghost", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestInstrumentStats(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var stats rig.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Instruments != 3 {
		t.Errorf("instruments = %d, want 3", stats.Instruments)
	}
	if stats.Simulated != 3 {
		t.Errorf("simulated = %d, want 3", stats.Simulated)
	}
	if stats.ByFamily["load"] != 1 || stats.ByFamily["rsa"] != 1 || stats.ByFamily["ec1x"] != 1 {
		t.Errorf("by_family = %v, want one of each", stats.ByFamily)
	}
}

func TestListAttributes(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/load1/attributes", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	if count := resp["count"].(float64); count == 0 {
		t.Fatal("attribute count should be non-zero")
	}

	found := false
	for _, a := range resp["attributes"].([]any) {
		attr := a.(map[string]any)
		if attr["path"] == "current.setpoint" {
			found = true
			if attr["writable"] != true {
				t.Error("current.setpoint should be writable")
			}
		}
	}
	if !found {
		t.Error("current.setpoint missing from attribute list")
	}
}

// ─── Attribute Access Tests ────────────────────────────────────────

func TestGetAttribute(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/load1/attributes/current.setpoint", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	if resp["path"] != "current.setpoint" {
		t.Errorf("path = %v, want current.setpoint", resp["path"])
	}
	if resp["value"].(float64) != 0 {
		t.Errorf("default setpoint = %v, want 0", resp["value"])
	}
}

func TestSetAttribute_RoundTrip(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	body := strings.NewReader(`{"value": 2.5}`)
	w := doRequest(t, router, http.MethodPut, "/api/v1/instruments/load1/attributes/current.setpoint", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	if resp["value"].(float64) != 2.5 {
		t.Errorf("echoed value = %v, want 2.5", resp["value"])
	}

	// Read back through the cache
	w = doRequest(t, router, http.MethodGet, "/api/v1/instruments/load1/attributes/current.setpoint", token, nil)
	resp = decodeJSON(t, w)
	if resp["value"].(float64) != 2.5 {
		t.Errorf("read-back value = %v, want 2.5", resp["value"])
	}
}

func TestSetAttribute_ReadOnly(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	body := strings.NewReader(`{"value": "renamed"}`)
	w := doRequest(t, router, http.MethodPut, "/api/v1/instruments/load1/attributes/name", token, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	var errResp Error
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errResp.Code != ErrCodeValidation {
		t.Errorf("code = %q, want %q", errResp.Code, ErrCodeValidation)
	}
}

func TestSetAttribute_MissingValue(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPut, "/api/v1/instruments/load1/attributes/current.setpoint", token, strings.NewReader(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSetAttribute_UnknownPath(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	body := strings.NewReader(`{"value": 1}`)
	w := doRequest(t, router, http.MethodPut, "/api/v1/instruments/load1/attributes/no.such.path", token, body)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Measurement Operation Tests ───────────────────────────────────

func TestMeasure(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	body := strings.NewReader(`{"function": "voltage"}`)
	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/measure", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	if resp["function"] != "voltage" {
		t.Errorf("function = %v, want voltage", resp["function"])
	}
	if _, ok := resp["value"].(float64); !ok {
		t.Errorf("value = %v, want a number", resp["value"])
	}
	if resp["taken_at"] == "" {
		t.Error("taken_at should be set")
	}
}

func TestMeasure_UnknownFunction(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	body := strings.NewReader(`{"function": "flux"}`)
	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/measure", token, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMeasure_MissingFunction(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/measure", token, strings.NewReader(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestInitiateFetch(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/initiate", token, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("initiate status = %d, want 202; body: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	if resp["acquisition"] != "initiated" {
		t.Errorf("acquisition = %v, want initiated", resp["acquisition"])
	}

	body := strings.NewReader(`{"function": "voltage", "max_time_ms": 2000}`)
	w = doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/fetch", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("fetch status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp = decodeJSON(t, w)
	if _, ok := resp["value"].(float64); !ok {
		t.Errorf("fetch value = %v, want a number", resp["value"])
	}
}

func TestFetch_WithoutInitiate(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	body := strings.NewReader(`{"function": "voltage", "max_time_ms": 500}`)
	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/fetch", token, body)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}

func TestAbort(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/initiate", token, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("initiate status = %d; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/abort", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("abort status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	if resp["acquisition"] != "aborted" {
		t.Errorf("acquisition = %v, want aborted", resp["acquisition"])
	}
}

func TestSoftwareTrigger(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/trigger", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	if resp["triggered"] != true {
		t.Errorf("triggered = %v, want true", resp["triggered"])
	}
}

func TestSoftwareTrigger_Unsupported(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	// The spectrum analyzer has no bus trigger
	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/rsa1/trigger", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}

func TestSelfTest(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/self-test", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	if resp["code"].(float64) != 0 {
		t.Errorf("code = %v, want 0", resp["code"])
	}
	if resp["passed"] != true {
		t.Errorf("passed = %v, want true", resp["passed"])
	}
}

// ─── Setup Management Tests ────────────────────────────────────────

func TestMemorySaveRecall(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/memory/2/save", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	if resp["saved"] != true || resp["slot"].(float64) != 2 {
		t.Errorf("save response = %v", resp)
	}

	w = doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/memory/2/recall", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recall status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp = decodeJSON(t, w)
	if resp["recalled"] != true {
		t.Errorf("recalled = %v, want true", resp["recalled"])
	}
}

func TestMemory_SlotOutOfRange(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/memory/99/save", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
}

func TestMemory_SlotNotANumber(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	w := doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/memory/abc/save", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
}

func TestReset(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := testRoleToken(t, auth.RoleAdmin, "admin-1")

	// Write a value, reset, and verify the default came back
	body := strings.NewReader(`{"value": 3.0}`)
	w := doRequest(t, router, http.MethodPut, "/api/v1/instruments/load1/attributes/current.setpoint", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodPost, "/api/v1/instruments/load1/reset", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/instruments/load1/attributes/current.setpoint", token, nil)
	resp := decodeJSON(t, w)
	if resp["value"].(float64) != 0 {
		t.Errorf("setpoint after reset = %v, want 0", resp["value"])
	}
}

// ─── Access Scoping Tests ──────────────────────────────────────────

// scopedOperator grants op-1 configure on load1 and read on rsa1.
func scopedOperator(t *testing.T, srv *Server) string {
	t.Helper()

	createTestUser(t, srv.userRepo, "admin-1", "admin", "testpass123", auth.RoleAdmin, true)
	createTestUser(t, srv.userRepo, "op-1", "alice", "testpass123", auth.RoleOperator, true)

	grants := []auth.InstrumentAccessGrant{
		{InstrumentID: "load1", CanConfigure: true},
		{InstrumentID: "rsa1", CanConfigure: false},
	}
	if err := srv.accessRepo.SetInstrumentAccess(context.Background(), "op-1", grants, "admin-1"); err != nil {
		t.Fatalf("set instrument access: %v", err)
	}
	return testRoleToken(t, auth.RoleOperator, "op-1")
}

func TestScopedOperator_ListFiltered(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := scopedOperator(t, srv)

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	if count := resp["count"].(float64); count != 2 {
		t.Errorf("count = %v, want 2", count)
	}
}

func TestScopedOperator_StatsFiltered(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := scopedOperator(t, srv)

	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/stats", token, nil)
	var stats rig.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Instruments != 2 {
		t.Errorf("instruments = %d, want 2", stats.Instruments)
	}
	if stats.ByFamily["ec1x"] != 0 {
		t.Errorf("chamber should not be counted, got %v", stats.ByFamily)
	}
}

func TestScopedOperator_OutOfScopeHidden(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := scopedOperator(t, srv)

	// Out-of-scope instruments look like they don't exist
	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/chamber1", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404; body: %s", w.Code, w.Body.String())
	}
}

func TestScopedOperator_ConfigureDenied(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := scopedOperator(t, srv)

	// Read-only grant on rsa1: reads pass, writes fail
	w := doRequest(t, router, http.MethodGet, "/api/v1/instruments/rsa1", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("read status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	body := strings.NewReader(`{"value": 1000000}`)
	w = doRequest(t, router, http.MethodPut, "/api/v1/instruments/rsa1/attributes/frequency.center", token, body)
	if w.Code != http.StatusForbidden {
		t.Errorf("write status = %d, want 403; body: %s", w.Code, w.Body.String())
	}
}

func TestScopedOperator_ConfigureAllowed(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := scopedOperator(t, srv)

	body := strings.NewReader(`{"value": 1.0}`)
	w := doRequest(t, router, http.MethodPut, "/api/v1/instruments/load1/attributes/current.setpoint", token, body)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
}

func TestStation_ScopedOperations(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	rawToken := "bench-station-token"
	station := &auth.Station{
		Name:      "Bench 1",
		TokenHash: auth.HashToken(rawToken),
		IsActive:  true,
	}
	if err := srv.stationRepo.Create(context.Background(), station); err != nil {
		t.Fatalf("create station: %v", err)
	}
	if err := srv.stationRepo.SetInstruments(context.Background(), station.ID, []string{"load1"}); err != nil {
		t.Fatalf("set station instruments: %v", err)
	}

	stationReq := func(method, path string, body io.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		req.Header.Set("X-Station-Token", rawToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// List shows only the assigned instrument
	w := stationReq(http.MethodGet, "/api/v1/instruments", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d; body: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	if count := resp["count"].(float64); count != 1 {
		t.Errorf("count = %v, want 1", count)
	}

	// Stations can run measurements
	w = stationReq(http.MethodPost, "/api/v1/instruments/load1/measure", strings.NewReader(`{"function": "current"}`))
	if w.Code != http.StatusOK {
		t.Errorf("measure status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	// But never configure
	w = stationReq(http.MethodPut, "/api/v1/instruments/load1/attributes/current.setpoint", strings.NewReader(`{"value": 1}`))
	if w.Code != http.StatusForbidden {
		t.Errorf("configure status = %d, want 403; body: %s", w.Code, w.Body.String())
	}

	// And unassigned instruments do not exist for them
	w = stationReq(http.MethodGet, "/api/v1/instruments/rsa1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unassigned status = %d, want 404; body: %s", w.Code, w.Body.String())
	}
}
