package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/devrev/shardrouter/internal/model"
	"go.uber.org/zap"
)

// ConnectionError indicates that a shard endpoint could not be reached or a
// command could not be delivered to it.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("shard connection to %s failed: %v", e.Host, e.Err)
}

// Unwrap returns the underlying error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Conn is a leased connection to one shard endpoint. Callers must Release
// the connection when done, success or failure.
type Conn interface {
	// Run issues a command against the named database on the shard.
	Run(ctx context.Context, dbName string, cmd model.Document) (model.CommandResult, error)
	// Release returns the connection to its pool.
	Release()
}

// Provider acquires connections to shard endpoints by canonical host:port.
type Provider interface {
	Acquire(ctx context.Context, host string) (Conn, error)
}

// Pool is an HTTP-backed Provider. It keeps one transport per shard host so
// that keep-alive connections are reused across leases, mirroring a
// per-endpoint socket pool.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*http.Client

	timeout     time.Duration
	maxIdle     int
	dialTimeout time.Duration
	logger      *zap.Logger
}

// NewPool creates a shard connection pool
func NewPool(timeout time.Duration, maxIdlePerHost int, logger *zap.Logger) *Pool {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = 4
	}

	return &Pool{
		clients:     make(map[string]*http.Client),
		timeout:     timeout,
		maxIdle:     maxIdlePerHost,
		dialTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// Acquire leases a connection to the given shard host. The host must be a
// canonical "host:port" identity; anything else is a ConnectionError.
func (p *Pool) Acquire(ctx context.Context, host string) (Conn, error) {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return nil, &ConnectionError{Host: host, Err: fmt.Errorf("not a canonical host:port: %w", err)}
	}

	p.mu.Lock()
	httpClient, ok := p.clients[host]
	if !ok {
		httpClient = &http.Client{
			Timeout: p.timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: p.dialTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: p.maxIdle,
				IdleConnTimeout:     90 * time.Second,
			},
		}
		p.clients[host] = httpClient
	}
	p.mu.Unlock()

	return &shardConn{host: host, client: httpClient, logger: p.logger}, nil
}

// Close shuts down idle connections to every shard host.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.clients {
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}

// shardConn is one lease from the pool. Release is a no-op for the HTTP
// transport; the keep-alive connection stays pooled in the shared client.
type shardConn struct {
	host   string
	client *http.Client
	logger *zap.Logger
}

// Run posts the command document to the shard's command interface and
// decodes the reply. Transport failures come back as ConnectionError; a
// shard that answers with ok=0 is a delivered, not-ok result, not an error.
func (c *shardConn) Run(ctx context.Context, dbName string, cmd model.Document) (model.CommandResult, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return model.CommandResult{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	url := fmt.Sprintf("http://%s/command/%s", c.host, dbName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.CommandResult{}, fmt.Errorf("failed to build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.CommandResult{}, &ConnectionError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	var doc model.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return model.CommandResult{}, &ConnectionError{Host: c.host, Err: fmt.Errorf("bad command reply: %w", err)}
	}

	result := model.CommandResult{Ok: replyOk(doc), Doc: doc}

	c.logger.Debug("shard command completed",
		zap.String("shard_host", c.host),
		zap.String("db", dbName),
		zap.Bool("ok", result.Ok))

	return result, nil
}

// Release implements Conn.
func (c *shardConn) Release() {}

// replyOk interprets the "ok" field of a command reply. JSON decoding turns
// numbers into float64; shards may also send it as a bool.
func replyOk(doc model.Document) bool {
	switch v := doc["ok"].(type) {
	case bool:
		return v
	case float64:
		return v == 1
	default:
		return false
	}
}
