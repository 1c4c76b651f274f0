// Package writeconcern confirms that shards written by a previous request
// have durably reached the recorded op-times.
package writeconcern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/devrev/shardrouter/internal/client"
	"github.com/devrev/shardrouter/internal/metrics"
	"github.com/devrev/shardrouter/internal/model"
	"go.uber.org/zap"
)

// opTimeField is the field injected into the caller's write-concern document
// carrying the op-time the shard must have reached.
const opTimeField = "wOpTime"

// Result is the outcome of one enforcement call. A failed confirmation is an
// expected, recoverable condition and is always reported here as data, never
// as an error.
type Result struct {
	Ok         bool
	FailedHost string
	Message    string
}

// Enforcer runs the fan-out confirmation: for every shard the previous
// request wrote to, ask the shard whether it has reached the recorded
// op-time under the caller's write concern. The check is sequential and
// fail-fast; a single shard failing invalidates the whole write concern.
type Enforcer struct {
	provider client.Provider
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewEnforcer creates a write-concern enforcer
func NewEnforcer(provider client.Provider, m *metrics.Metrics, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		provider: provider,
		metrics:  m,
		logger:   logger,
	}
}

// Enforce confirms the given host op-times against the shards, issuing the
// caller's write-concern document with the per-host target op-time injected.
// Hosts are contacted in lexicographic order, one call in flight at a time;
// the first failure aborts the remaining hosts and is the one reported.
func (e *Enforcer) Enforce(
	ctx context.Context,
	dbName string,
	options model.Document,
	hostOpTimes model.HostOpTimeMap,
) Result {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.EnforceDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if len(hostOpTimes) == 0 {
		return Result{Ok: true}
	}

	hosts := make([]string, 0, len(hostOpTimes))
	for host := range hostOpTimes {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	for _, host := range hosts {
		opTime := hostOpTimes[host]

		e.logger.Debug("enforcing write concern",
			zap.String("shard_host", host),
			zap.String("op_time", opTime.String()),
			zap.String("db", dbName))

		if res := e.confirmHost(ctx, dbName, options, host, opTime); !res.Ok {
			return res
		}
	}

	return Result{Ok: true}
}

// confirmHost issues the confirmation command to one shard.
func (e *Enforcer) confirmHost(
	ctx context.Context,
	dbName string,
	options model.Document,
	host string,
	opTime model.OpTime,
) Result {
	cmd := options.Clone()
	cmd[opTimeField] = opTime

	conn, err := e.provider.Acquire(ctx, host)
	if err != nil {
		return e.failure(host, "connection", err.Error())
	}
	defer conn.Release()

	result, err := conn.Run(ctx, dbName, cmd)
	if err != nil {
		return e.failure(host, "connection", err.Error())
	}
	if !result.Ok {
		return e.failure(host, "not_ok", result.ErrMsg())
	}
	return Result{Ok: true}
}

func (e *Enforcer) failure(host, reason, cause string) Result {
	msg := fmt.Sprintf("could not enforce write concern on %s: %s", host, cause)

	e.logger.Warn("write concern not enforced",
		zap.String("shard_host", host),
		zap.String("reason", reason),
		zap.String("cause", cause))

	return Result{Ok: false, FailedHost: host, Message: msg}
}
