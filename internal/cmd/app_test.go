package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/todohub/internal/config"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	_, mr := testutil.NewStore(t)

	cfg := config.Default()
	cfg.Auth.Secret = testutil.TestSecret
	cfg.Redis.Addr = mr.Addr()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.Mode = "test"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	return cfg
}

func postJSON(t *testing.T, url, token string, body any) map[string]any {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestApp_ServeWatchShutdown(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logging.NopLogger())
	require.NoError(t, err)
	ln, err := a.listen()
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- a.serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	login := postJSON(t, base+"/auth", "", map[string]string{"name": "alice"})
	token := login["token"].(string)
	created := postJSON(t, base+"/collections", token, nil)
	key := created["collection"].(map[string]any)["key"].(string)

	out := &syncBuffer{}
	watched := make(chan error, 1)
	go func() {
		watched <- watchCollection(context.Background(), "ws://"+ln.Addr().String()+cfg.Server.WSPath, token, key, out, plainPalette())
	}()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "present: alice")
	}, 2*time.Second, 10*time.Millisecond)

	postJSON(t, base+"/todos", token, map[string]string{"text": "ship it", "status": "TODO", "collectionKey": key})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `create`) && strings.Contains(out.String(), `"ship it"`)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	select {
	case err := <-watched:
		assert.NoError(t, err, "a going-away close is a clean end of watch")
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after shutdown")
	}
}

func TestNewApp_Errors(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.Secret = ""
		_, err := newApp(context.Background(), cfg, logging.NopLogger())
		assert.Error(t, err)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig(t)
		mr := testutil.NewRedis(t)
		cfg.Redis.Addr = mr.Addr()
		mr.Close()

		_, err := newApp(context.Background(), cfg, logging.NopLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect to redis")
	})

	t.Run("bad origin pattern", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Server.AllowedOrigins = []string{"[unterminated"}
		_, err := newApp(context.Background(), cfg, logging.NopLogger())
		assert.Error(t, err)
	})
}

func TestWatchCollection_Rejected(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logging.NopLogger())
	require.NoError(t, err)
	ln, err := a.listen()
	require.NoError(t, err)
	go func() { _ = a.serve(ctx, ln) }()

	err = watchCollection(ctx, "ws://"+ln.Addr().String()+"/ws", "not-a-token", "k", &syncBuffer{}, plainPalette())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
