package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/devrev/shardrouter/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func shardServer(t *testing.T, handler http.HandlerFunc) (string, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host, srv.Close
}

func TestPool_RunCommandOk(t *testing.T) {
	var gotPath string
	var gotCmd model.Document

	host, closeSrv := shardServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCmd))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Document{"ok": 1, "lastOp": "4:2"})
	})
	defer closeSrv()

	pool := NewPool(5*time.Second, 2, zap.NewNop())
	defer pool.Close()

	conn, err := pool.Acquire(context.Background(), host)
	require.NoError(t, err)
	defer conn.Release()

	result, err := conn.Run(context.Background(), "admin", model.Document{"getLastError": 1, "w": 2})
	require.NoError(t, err)

	assert.True(t, result.Ok)
	assert.Equal(t, "/command/admin", gotPath)
	assert.Equal(t, float64(1), gotCmd["getLastError"])
	assert.Equal(t, float64(2), gotCmd["w"])
}

func TestPool_RunCommandNotOkIsNotAnError(t *testing.T) {
	host, closeSrv := shardServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Document{"ok": 0, "errmsg": "not primary"})
	})
	defer closeSrv()

	pool := NewPool(5*time.Second, 2, zap.NewNop())
	defer pool.Close()

	conn, err := pool.Acquire(context.Background(), host)
	require.NoError(t, err)
	defer conn.Release()

	result, err := conn.Run(context.Background(), "admin", model.Document{})
	require.NoError(t, err)

	assert.False(t, result.Ok)
	assert.Equal(t, "not primary", result.ErrMsg())
}

func TestPool_UnreachableShardIsConnectionError(t *testing.T) {
	host, closeSrv := shardServer(t, func(w http.ResponseWriter, r *http.Request) {})
	closeSrv() // shard goes away before the command

	pool := NewPool(2*time.Second, 2, zap.NewNop())
	defer pool.Close()

	conn, err := pool.Acquire(context.Background(), host)
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.Run(context.Background(), "admin", model.Document{})
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, host, connErr.Host)
}

func TestPool_AcquireRejectsNonCanonicalHost(t *testing.T) {
	pool := NewPool(2*time.Second, 2, zap.NewNop())
	defer pool.Close()

	_, err := pool.Acquire(context.Background(), "shard-a")
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestPool_BadReplyIsConnectionError(t *testing.T) {
	host, closeSrv := shardServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer closeSrv()

	pool := NewPool(2*time.Second, 2, zap.NewNop())
	defer pool.Close()

	conn, err := pool.Acquire(context.Background(), host)
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.Run(context.Background(), "admin", model.Document{})
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestPool_ReusesClientPerHost(t *testing.T) {
	host, closeSrv := shardServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Document{"ok": 1})
	})
	defer closeSrv()

	pool := NewPool(2*time.Second, 2, zap.NewNop())
	defer pool.Close()

	c1, err := pool.Acquire(context.Background(), host)
	require.NoError(t, err)
	c1.Release()

	c2, err := pool.Acquire(context.Background(), host)
	require.NoError(t, err)
	c2.Release()

	pool.mu.Lock()
	defer pool.mu.Unlock()
	assert.Len(t, pool.clients, 1)
}
