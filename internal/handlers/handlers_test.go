package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agenticdebugger/internal/automation"
	"agenticdebugger/internal/codeintel"
	"agenticdebugger/internal/engine"
	"agenticdebugger/internal/middleware"
	"agenticdebugger/internal/models"
	"agenticdebugger/internal/permissions"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const testKey = "dev-agentic-key"

type testBridge struct {
	app      *fiber.App
	sim      *engine.Simulator
	cache    *services.SnapshotCache
	registry *services.InstanceRegistry
	metrics  *services.Metrics
	requests *services.RequestLogger
	policies *permissions.StaticSource
	provider *permissions.Provider
}

func setupTestApp(t *testing.T, primary bool) *testBridge {
	t.Helper()

	sim := engine.NewSimulator(`C:\src\Shop\Shop.sln`, "Shop.Api", "Shop.Tests")
	thread := automation.NewThread("handlers-test", 32)
	thread.Start()
	t.Cleanup(func() { thread.Stop(time.Second) })

	port := 27183
	if !primary {
		port = 40100
	}
	registry := services.NewInstanceRegistry(models.InstanceInfo{ID: "self", PID: 1, Port: port, IsPrimary: primary}, 15*time.Second)
	connections := services.NewConnectionManager()
	metrics := services.NewMetrics(prometheus.NewRegistry(), connections.Count, registry.Count)
	requests := services.NewRequestLogger(50, 1024)
	cache := services.NewSnapshotCache()
	executor := services.NewCommandExecutor(sim, thread, cache, metrics, 2*time.Second)

	source := permissions.NewStaticSource(permissions.DefaultPolicy())
	provider := permissions.NewProvider(source, thread, permissions.DefaultPolicy())

	index := codeintel.NewIndex(
		codeintel.Declaration{Symbol: codeintel.Symbol{Name: "Order", Kind: "class", Location: codeintel.Location{File: "Order.cs", Line: 3, Column: 14}}},
	)

	instances := NewInstanceHandler(registry, "X-Api-Key", testKey, func() string { return testKey }, time.Second)
	routes := Routes{
		Instances:     instances,
		Debugger:      NewDebuggerHandler(executor, cache, instances),
		Observability: NewObservabilityHandler(metrics, requests),
		Code:          NewCodeHandler(codeintel.NewCached(index, time.Minute), time.Second),
		Docs:          NewDocsHandler(),
		Stream:        NewStreamHandler(connections, cache, metrics),
	}

	app := fiber.New(AppConfig())
	app.Use(middleware.Audit(requests, metrics))
	app.Use(middleware.SharedKey("X-Api-Key", testKey, func() string { return provider.Current().APIKey }))
	app.Use(middleware.Permissions(provider))
	routes.Mount(app)

	return &testBridge{
		app:      app,
		sim:      sim,
		cache:    cache,
		registry: registry,
		metrics:  metrics,
		requests: requests,
		policies: source,
		provider: provider,
	}
}

func (b *testBridge) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode %s: %v", data, err)
	}
	return out
}

func TestCommand_MissingLineIsRejectedBeforeEngine(t *testing.T) {
	b := setupTestApp(t, true)

	status, body := b.do(t, "POST", "/command", `{"action":"setBreakpoint","file":"/x.cs"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", status, body)
	}
	if calls := b.sim.TotalCalls(); calls != 0 {
		t.Errorf("Expected no engine calls, got %d", calls)
	}
	resp := decode[map[string]any](t, body)
	if resp["ok"] != false || !strings.Contains(resp["error"].(string), "line") {
		t.Errorf("Unexpected error body %s", body)
	}
}

func TestCommand_MalformedJSON(t *testing.T) {
	b := setupTestApp(t, true)
	if status, _ := b.do(t, "POST", "/command", `{"action": go}`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
	if status, _ := b.do(t, "POST", "/batch", `[`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for batch, got %d", status)
	}
	if b.sim.TotalCalls() != 0 {
		t.Error("Expected no engine calls for malformed bodies")
	}
}

func TestBatch_ClearThenSetBreakpoint(t *testing.T) {
	b := setupTestApp(t, true)

	status, body := b.do(t, "POST", "/batch",
		`{"commands":[{"action":"clearBreakpoints"},{"action":"setBreakpoint","file":"/x.cs","line":5}],"stopOnError":true}`)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	resp := decode[models.BatchResponse](t, body)
	if !resp.OK || resp.SuccessCount != 2 || resp.FailureCount != 0 || len(resp.Results) != 2 {
		t.Errorf("Unexpected batch response %+v", resp)
	}
	if bps := b.sim.Breakpoints(); len(bps) != 1 || bps[0].Line != 5 {
		t.Errorf("Expected one breakpoint at line 5, got %+v", bps)
	}
}

func TestBatch_EmptyIsRejected(t *testing.T) {
	b := setupTestApp(t, true)
	if status, _ := b.do(t, "POST", "/batch", `{"commands":[]}`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
}

func TestCommand_EngineFailureIsOKFalse(t *testing.T) {
	b := setupTestApp(t, true)

	status, body := b.do(t, "POST", "/command", `{"action":"stepOver"}`)
	if status != fiber.StatusOK {
		t.Fatalf("Expected engine failures to be reported in the body, got %d", status)
	}
	resp := decode[models.CommandResponse](t, body)
	if resp.OK || resp.Snapshot == nil {
		t.Errorf("Expected ok=false with a snapshot, got %+v", resp)
	}
}

func TestBreakpointCapabilityToggledMidSession(t *testing.T) {
	b := setupTestApp(t, true)
	bp := `{"action":"setBreakpoint","file":"/x.cs","line":5}`

	if status, _ := b.do(t, "POST", "/command", bp); status != fiber.StatusOK {
		t.Fatalf("Expected breakpoint to be allowed, got %d", status)
	}

	b.policies.Set(permissions.DefaultPolicy().With(permissions.CapBreakpointControl, false))
	if err := b.provider.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	status, body := b.do(t, "POST", "/command", bp)
	if status != fiber.StatusForbidden || !strings.Contains(string(body), "breakpoint-control") {
		t.Errorf("Expected 403 naming breakpoint-control, got %d %s", status, body)
	}
	if status, _ := b.do(t, "POST", "/command", `{"action":"go"}`); status != fiber.StatusOK {
		t.Errorf("Expected debug control to stay allowed, got %d", status)
	}
}

func TestMixedCasePathsAreGated(t *testing.T) {
	b := setupTestApp(t, true)
	b.policies.Set(permissions.DefaultPolicy().
		With(permissions.CapBreakpointControl, false).
		With(permissions.CapReadOnlyObservability, false).
		With(permissions.CapConfiguration, false))
	if err := b.provider.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	requests := []struct {
		method, path, body string
	}{
		{"POST", "/Command", `{"action":"setBreakpoint","file":"/x.cs","line":5}`},
		{"POST", "/BATCH", `{"commands":[{"action":"bp","file":"/x.cs","line":5}]}`},
		{"GET", "/State", ""},
		{"DELETE", "/LOGS", ""},
		{"POST", "/Configure/", `{"activeConfiguration":"Release"}`},
	}
	for _, r := range requests {
		if status, body := b.do(t, r.method, r.path, r.body); status != fiber.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d %s", r.method, r.path, status, body)
		}
	}
	if calls := b.sim.Calls("SetBreakpoint"); calls != 0 {
		t.Errorf("Expected no engine calls, got SetBreakpoint calls=%d", calls)
	}

	// with the capability granted, only the canonical spelling is routed
	b.policies.Set(permissions.DefaultPolicy())
	if err := b.provider.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if status, _ := b.do(t, "GET", "/State", ""); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for /State, got %d", status)
	}
	if status, _ := b.do(t, "GET", "/state", ""); status != fiber.StatusOK {
		t.Errorf("Expected 200 for /state, got %d", status)
	}
}

func TestStepWhileBrokenPushesLocation(t *testing.T) {
	b := setupTestApp(t, true)
	b.do(t, "POST", "/command", `{"action":"go"}`)
	b.sim.HitBreakpoint("Order.cs", 12)

	status, body := b.do(t, "POST", "/command", `{"action":"stepInto"}`)
	resp := decode[models.CommandResponse](t, body)
	if status != fiber.StatusOK || !resp.OK {
		t.Fatalf("Expected step to succeed, got %d %s", status, body)
	}
	if resp.Snapshot == nil || resp.Snapshot.Mode != models.ModeBroken || resp.Snapshot.Line != 13 {
		t.Fatalf("Expected Broken at line 13, got %+v", resp.Snapshot)
	}

	_, body = b.do(t, "GET", "/state", "")
	if snap := decode[models.Snapshot](t, body); snap.Line != 13 || snap.File != "Order.cs" {
		t.Errorf("Expected cached snapshot at Order.cs:13, got %s:%d", snap.File, snap.Line)
	}
}

func TestState_EvalNoteAndLive(t *testing.T) {
	b := setupTestApp(t, true)
	b.sim.SetEvalResult("order.Total", "42.50")

	b.do(t, "POST", "/command", `{"action":"go"}`)
	b.sim.HitBreakpoint("Order.cs", 12)

	_, body := b.do(t, "POST", "/command", `{"action":"eval","expression":"order.Total"}`)
	resp := decode[models.CommandResponse](t, body)
	if !resp.OK || !strings.Contains(resp.Message, "42.50") {
		t.Fatalf("Unexpected eval response %+v", resp)
	}

	_, body = b.do(t, "GET", "/state", "")
	snap := decode[models.Snapshot](t, body)
	if snap.Mode != models.ModeBroken || !strings.Contains(snap.Notes, "42.50") {
		t.Errorf("Expected cached Broken snapshot carrying the eval note, got %s %q", snap.Mode, snap.Notes)
	}

	_, body = b.do(t, "GET", "/state?live=true", "")
	live := decode[models.Snapshot](t, body)
	if live.Line != 12 || live.File != "Order.cs" {
		t.Errorf("Expected live capture at Order.cs:12, got %s:%d", live.File, live.Line)
	}
}

func TestHostReads(t *testing.T) {
	b := setupTestApp(t, true)
	b.sim.SetBuildErrors(models.BuildError{File: "Order.cs", Line: 3, Column: 1, Severity: "error", Description: "CS1002: ; expected"})
	b.do(t, "POST", "/command", `{"action":"build"}`)

	_, body := b.do(t, "GET", "/errors", "")
	if errs := decode[map[string]any](t, body); errs["count"] != float64(1) {
		t.Errorf("Expected one build error, got %s", body)
	}

	_, body = b.do(t, "GET", "/projects", "")
	if !strings.Contains(string(body), "Shop.Tests") {
		t.Errorf("Expected projects listing, got %s", body)
	}

	status, body := b.do(t, "GET", "/output/build", "")
	if status != fiber.StatusOK || !strings.Contains(string(body), "0 succeeded, 1 failed") {
		t.Errorf("Expected build pane text, got %d %s", status, body)
	}
	if status, _ := b.do(t, "GET", "/output/Nope", ""); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for an unknown pane, got %d", status)
	}
}

func TestConfigure(t *testing.T) {
	b := setupTestApp(t, true)

	status, body := b.do(t, "POST", "/configure", `{"startupProject":"shop.tests","activeConfiguration":"Release"}`)
	if status != fiber.StatusOK || !strings.Contains(string(body), "Release") {
		t.Fatalf("Expected configure to succeed, got %d %s", status, body)
	}
	if status, _ := b.do(t, "POST", "/configure", `{"startupProject":"Missing"}`); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for an unknown project, got %d", status)
	}
	if status, _ := b.do(t, "POST", "/configure", `{}`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for an empty request, got %d", status)
	}

	b.policies.Set(permissions.DefaultPolicy().With(permissions.CapConfiguration, false))
	_ = b.provider.Refresh(context.Background())
	if status, _ := b.do(t, "POST", "/configure", `{"activeConfiguration":"Debug"}`); status != fiber.StatusForbidden {
		t.Errorf("Expected 403 with configuration disabled, got %d", status)
	}
}

func TestHealth_IdempotentAndDegrades(t *testing.T) {
	b := setupTestApp(t, true)

	first, body1 := b.do(t, "GET", "/health", "")
	second, body2 := b.do(t, "GET", "/health", "")
	if first != fiber.StatusOK || second != fiber.StatusOK {
		t.Fatalf("Expected healthy bridge, got %d/%d", first, second)
	}
	if decode[map[string]any](t, body1)["status"] != decode[map[string]any](t, body2)["status"] {
		t.Error("Expected repeated health checks to agree")
	}

	for i := 0; i < 3; i++ {
		b.do(t, "GET", "/nowhere", "")
	}
	status, body := b.do(t, "GET", "/health", "")
	if status != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503 once errors dominate, got %d %s", status, body)
	}
}

func TestLogs_FilterGetAndClear(t *testing.T) {
	b := setupTestApp(t, true)
	b.do(t, "GET", "/state", "")
	b.do(t, "POST", "/command", `{"action":"bp","file":"a.cs"}`)

	_, body := b.do(t, "GET", "/logs?minStatus=400", "")
	list := decode[struct {
		Logs  []models.LogEntry `json:"logs"`
		Count int               `json:"count"`
	}](t, body)
	if list.Count != 1 || list.Logs[0].Path != "/command" || list.Logs[0].StatusCode != 400 {
		t.Fatalf("Expected the failed command only, got %s", body)
	}
	if !strings.Contains(list.Logs[0].RequestBody, "a.cs") {
		t.Errorf("Expected the request body to be captured, got %q", list.Logs[0].RequestBody)
	}

	status, body := b.do(t, "GET", "/logs/"+list.Logs[0].ID, "")
	if status != fiber.StatusOK || decode[models.LogEntry](t, body).ID != list.Logs[0].ID {
		t.Errorf("Expected to fetch the entry by id, got %d", status)
	}
	if status, _ := b.do(t, "GET", "/logs/missing", ""); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for an unknown entry, got %d", status)
	}

	status, body = b.do(t, "DELETE", "/logs", "")
	if status != fiber.StatusOK || decode[map[string]any](t, body)["cleared"].(float64) < 4 {
		t.Errorf("Expected the log to be cleared, got %d %s", status, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	b := setupTestApp(t, true)
	b.do(t, "POST", "/command", `{"action":"build"}`)

	_, body := b.do(t, "GET", "/metrics", "")
	snap := decode[services.MetricsSnapshot](t, body)
	if snap.CommandsByName["build"] != 1 || snap.RequestsByEndpoint["/command"] != 1 {
		t.Errorf("Unexpected metrics %s", body)
	}
	if snap.InstanceCount != 1 {
		t.Errorf("Expected the bridge to count itself, got %d", snap.InstanceCount)
	}
}

func TestCode_FoundAndNotFound(t *testing.T) {
	b := setupTestApp(t, true)

	_, body := b.do(t, "POST", "/code/symbols", `{"query":"ord"}`)
	if resp := decode[map[string]any](t, body); resp["found"] != true || resp["count"] != float64(1) {
		t.Errorf("Expected one symbol, got %s", body)
	}

	status, body := b.do(t, "POST", "/code/definition", `{"file":"Nowhere.cs","line":1}`)
	if status != fiber.StatusOK || decode[map[string]any](t, body)["found"] != false {
		t.Errorf("Expected found=false with 200, got %d %s", status, body)
	}

	if status, _ := b.do(t, "POST", "/code/semantic", `{"file":"Order.cs"}`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 without a line, got %d", status)
	}
	if status, _ := b.do(t, "GET", "/code/outline", ""); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 without a file, got %d", status)
	}

	_, body = b.do(t, "GET", "/code/outline?file=Order.cs", "")
	if decode[map[string]any](t, body)["found"] != true {
		t.Errorf("Expected an outline for Order.cs, got %s", body)
	}
}

func TestInstances_RegisterListAndPrimaryOnly(t *testing.T) {
	b := setupTestApp(t, true)

	status, _ := b.do(t, "POST", "/register", `{"id":"second","pid":2,"port":40001}`)
	if status != fiber.StatusCreated {
		t.Fatalf("Expected 201 for a new instance, got %d", status)
	}
	if status, _ := b.do(t, "POST", "/register", `{"id":"second","pid":2,"port":40001}`); status != fiber.StatusOK {
		t.Errorf("Expected 200 for a heartbeat, got %d", status)
	}
	if status, _ := b.do(t, "POST", "/register", `{"id":"bad"}`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 without a port, got %d", status)
	}

	_, body := b.do(t, "GET", "/instances", "")
	list := decode[struct {
		Instances []models.InstanceInfo `json:"instances"`
	}](t, body)
	if len(list.Instances) != 2 || !list.Instances[0].IsPrimary || list.Instances[1].ID != "second" {
		t.Errorf("Unexpected instances %s", body)
	}

	secondary := setupTestApp(t, false)
	for _, path := range []string{"/instances", "/proxy/second/state"} {
		if status, _ := secondary.do(t, "GET", path, ""); status != fiber.StatusNotFound {
			t.Errorf("Expected 404 for %s on a secondary, got %d", path, status)
		}
	}
	if status, _ := secondary.do(t, "POST", "/register", `{"id":"x","port":40002}`); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for /register on a secondary, got %d", status)
	}
}

func TestProxy_ForwardsAndReportsFailures(t *testing.T) {
	b := setupTestApp(t, true)

	target := fiber.New()
	target.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"key": c.Get("X-Api-Key"), "q": c.Query("live")})
	})
	target.Post("/command", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusAccepted).Send(c.Body())
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go target.Listener(ln)
	t.Cleanup(func() { _ = target.Shutdown() })
	port := ln.Addr().(*net.TCPAddr).Port

	if _, _, err := b.registry.Register(models.InstanceInfo{ID: "second", Port: port}); err != nil {
		t.Fatal(err)
	}

	status, body := b.do(t, "GET", "/proxy/second/state?live=true", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected proxied 200, got %d %s", status, body)
	}
	got := decode[map[string]string](t, body)
	if got["key"] != testKey || got["q"] != "true" {
		t.Errorf("Expected the key and query to be forwarded, got %v", got)
	}

	status, body = b.do(t, "POST", "/command", `{"action":"go","instanceId":"second"}`)
	if status != fiber.StatusAccepted || !strings.Contains(string(body), `"instanceId":"second"`) {
		t.Errorf("Expected command routed to the instance, got %d %s", status, body)
	}
	if b.sim.TotalCalls() != 0 {
		t.Error("Expected a routed command to leave the local engine alone")
	}

	if status, _ := b.do(t, "GET", "/proxy/self/state", ""); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 when proxying to self, got %d", status)
	}
	if status, _ := b.do(t, "GET", "/proxy/ghost/state", ""); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for an unknown instance, got %d", status)
	}

	dead, _ := net.Listen("tcp", "127.0.0.1:0")
	deadPort := dead.Addr().(*net.TCPAddr).Port
	dead.Close()
	b.registry.Register(models.InstanceInfo{ID: "gone", Port: deadPort})
	if status, _ := b.do(t, "GET", "/proxy/gone/state", ""); status != fiber.StatusBadGateway {
		t.Errorf("Expected 502 for an unreachable instance, got %d", status)
	}
}

func TestInfoDocsAndSwagger(t *testing.T) {
	b := setupTestApp(t, true)

	_, body := b.do(t, "GET", "/", "")
	info := decode[map[string]any](t, body)
	if info["role"] != "primary" || info["keyHeader"] != "X-Api-Key" {
		t.Errorf("Unexpected info %s", body)
	}

	status, body := b.do(t, "GET", "/docs", "")
	if status != fiber.StatusOK || !strings.Contains(string(body), "<table>") {
		t.Errorf("Expected rendered HTML docs, got %d", status)
	}

	_, body = b.do(t, "GET", "/swagger.json", "")
	doc := decode[struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}](t, body)
	if doc.OpenAPI == "" {
		t.Fatal("Expected an OpenAPI version")
	}
	if _, ok := doc.Paths["/logs/{id}"]["get"]; !ok {
		t.Errorf("Expected /logs/{id} in the document, got %v", doc.Paths)
	}
	if _, ok := doc.Paths["/command"]["post"]; !ok {
		t.Error("Expected POST /command in the document")
	}
}

func TestWebSocketPathRequiresUpgrade(t *testing.T) {
	b := setupTestApp(t, true)
	if status, _ := b.do(t, "GET", "/ws", ""); status != fiber.StatusUpgradeRequired {
		t.Errorf("Expected 426 for a plain GET, got %d", status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidCommand, 400},
		{services.ErrProxyToSelf, 400},
		{services.ErrInstanceNotFound, 404},
		{engine.ErrPaneNotFound, 404},
		{context.DeadlineExceeded, 504},
		{automation.ErrStopped, 503},
		{fiber.NewError(418, "teapot"), 418},
		{io.EOF, 500},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
