package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/notecrew/internal/profile"
	"github.com/hrygo/notecrew/store"
	"github.com/hrygo/notecrew/store/db/sqlite"
)

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Addr:   "127.0.0.1",
		Data:   filepath.Join(t.TempDir(), "output"),
		Driver: "sqlite",
	}
	p.FromEnv()
	// 端口 0 由系统分配
	p.Port = 0
	p.LLMAPIKey = "sk-test"
	p.LLMBaseURL = "http://127.0.0.1:1/v1"
	p.APIKeys = nil
	p.TemplateDir = ""
	require.NoError(t, p.Validate())
	return p
}

func TestServerLifecycle(t *testing.T) {
	p := testProfile(t)
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	s, err := NewServer(ctx, p, st)
	require.NoError(t, err)
	require.Nil(t, s.Addr())
	require.NoError(t, s.Start(ctx))
	defer s.Shutdown(ctx)

	base := fmt.Sprintf("http://%s", s.Addr().String())
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "templates": "ok"}, body.Checks)

	metricsResp, err := client.Get(base + "/metrics")
	require.NoError(t, err)
	metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)

	runResp, err := client.Get(base + "/api/v1/xhs/notes/runs/missing")
	require.NoError(t, err)
	runResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, runResp.StatusCode)
}

func TestNewRuntime_RequiresAPIKey(t *testing.T) {
	p := testProfile(t)
	p.LLMAPIKey = ""
	_, err := NewRuntime(p, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create LLM client")
}

func TestRuntime_CheckTemplates(t *testing.T) {
	p := testProfile(t)
	rt, err := NewRuntime(p, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, rt.CheckTemplates(context.Background()))

	p.TemplateDir = t.TempDir()
	rt, err = NewRuntime(p, nil, nil)
	require.NoError(t, err, "empty template dir falls back to the embedded templates")
	assert.NoError(t, rt.CheckTemplates(context.Background()))
}
