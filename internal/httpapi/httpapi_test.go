package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/governor"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/procmgr"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/scheduler"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/skill"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/webhook"
)

func newTestServer(t *testing.T) (*httptest.Server, Services) {
	t.Helper()
	b := bus.New(nil)
	st := store.NewMemStore()

	procs := procmgr.New(procmgr.Config{MaxConcurrent: 10, MaxProcesses: 100, MailboxCap: 16}, b, st, nil)
	spawn := func(ownerUID string, cfg domain.SpawnConfig) (int, error) { return procs.Spawn(ownerUID, cfg) }

	gov := governor.New(governor.Defaults{MaxTokensPerSession: 1000000, MaxSteps: 1000}, b, st,
		governor.SignalFunc(func(pid int, sig string) error { return procs.Signal(pid, procmgr.Signal(sig)) }), nil)
	skills := skill.New(st, nil)
	sched := scheduler.New(time.Hour, spawn, b, st, nil)
	hooks := webhook.New(webhook.Config{}, spawn, b, st, nil)

	svc := Services{
		Procs: procs, Governor: gov, Skills: skills, Scheduler: sched,
		Webhooks: hooks, VFS: nil, Bus: b, Store: st,
		StartedAt: time.Now(), BuildVersion: "test",
	}
	srv := httptest.NewServer(NewRouter(svc, nil))
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func TestSpawnAndGetAgentRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/agents", spawnRequest{
		OwnerUID: "user_1",
		Config:   domain.SpawnConfig{Role: "researcher", Goal: "test", Priority: 3, Runtime: domain.RuntimeBuiltIn},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "1.0", resp.Header.Get("X-Aether-Version"))

	data := env.Data.(map[string]any)
	pid := int(data["pid"].(float64))
	require.NotZero(t, pid)

	getResp, getEnv := doJSON(t, http.MethodGet, srv.URL+"/agents/1", nil)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	proc := getEnv.Data.(map[string]any)
	require.Equal(t, "user_1", proc["ownerUid"])
}

func TestGetUnknownAgentReturnsNotFoundEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/agents/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errEnv errorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errEnv))
	require.Equal(t, CodeNotFound, errEnv.Error.Code)
}

func TestSpawnRejectsInvalidPriority(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/agents", spawnRequest{
		OwnerUID: "user_1",
		Config:   domain.SpawnConfig{Priority: 9},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCronJobCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/cron", createCronRequest{
		Name: "nightly", Expression: "0 0 * * *", OwnerUID: "user_1",
		Config: domain.SpawnConfig{Priority: 1}, Enabled: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	job := env.Data.(map[string]any)
	id := job["id"].(string)

	listResp, listEnv := doJSON(t, http.MethodGet, srv.URL+"/cron", nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	require.Len(t, listEnv.Data.([]any), 1)

	delResp, _ := doJSON(t, http.MethodDelete, srv.URL+"/cron/"+id, nil)
	require.Equal(t, http.StatusOK, delResp.StatusCode)
}

func TestWebhookRegisterEnableDisable(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/webhooks", domain.OutboundWebhook{
		Name: "notify", TargetURL: "http://example.invalid", Patterns: []string{"*"}, Enabled: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := env.Data.(map[string]any)["id"].(string)

	disResp, _ := doJSON(t, http.MethodPost, srv.URL+"/webhooks/"+id+"/disable", nil)
	require.Equal(t, http.StatusOK, disResp.StatusCode)

	enResp, _ := doJSON(t, http.MethodPost, srv.URL+"/webhooks/"+id+"/enable", nil)
	require.Equal(t, http.StatusOK, enResp.StatusCode)
}

func TestSystemStatusReportsCounts(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodGet, srv.URL+"/system/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := env.Data.(map[string]any)
	require.Equal(t, "ok", status["status"])
	require.Equal(t, float64(0), status["processes"])
	require.Equal(t, float64(0), status["queueLength"])
	require.Equal(t, float64(0), status["cronJobs"])
	require.Equal(t, float64(0), status["webhooks"])
}

func TestMiscRouteGroupsReportEmptyCollections(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodGet, srv.URL+"/integrations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, env.Data.([]any))
}

func TestAuthRejectsMissingBearerTokenWhenConfigured(t *testing.T) {
	b := bus.New(nil)
	st := store.NewMemStore()
	procs := procmgr.New(procmgr.Config{MaxConcurrent: 10, MaxProcesses: 100}, b, st, nil)
	svc := Services{Procs: procs, Tokens: []string{"secret-token"}, StartedAt: time.Now()}
	srv := httptest.NewServer(NewRouter(svc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
