package service

import (
	"context"
	"sort"

	"github.com/devrev/shardrouter/internal/model"
	"github.com/devrev/shardrouter/internal/session"
	"github.com/devrev/shardrouter/internal/writeconcern"
	"go.uber.org/zap"
)

// AckResult is the reply document of an acknowledgement check. Ok reports
// whether the write concern was satisfied; a failed confirmation is an
// ordinary result, the connection keeps serving afterward.
type AckResult struct {
	Ok         bool     `json:"ok"`
	Err        string   `json:"err,omitempty"`
	FailedHost string   `json:"failed_host,omitempty"`
	WrittenTo  []string `json:"written_to"`
}

// AckService runs acknowledgement-style commands against a session: it reads
// the previous request's write record and re-confirms each touched shard
// through the write-concern enforcer.
type AckService struct {
	enforcer *writeconcern.Enforcer
	logger   *zap.Logger
}

// NewAckService creates a new acknowledgement service
func NewAckService(enforcer *writeconcern.Enforcer, logger *zap.Logger) *AckService {
	return &AckService{
		enforcer: enforcer,
		logger:   logger,
	}
}

// LastError answers "did my last write concern get satisfied" for the
// session, without the client re-sending write data.
//
// Acknowledgement commands do not advance the request boundary; instead the
// session's current/previous roles are swapped for the duration of the
// command, so any shard bookkeeping done while it runs lands in the stale
// record rather than the one being read, and swapped back afterward so a
// repeated acknowledgement reads the same record again.
func (s *AckService) LastError(
	ctx context.Context,
	sess *session.ClientSession,
	dbName string,
	options model.Document,
) AckResult {
	sess.DisableForCommand()

	writtenTo := make([]string, 0, len(sess.SinceLastAck()))
	for host := range sess.SinceLastAck() {
		writtenTo = append(writtenTo, host)
	}
	sort.Strings(writtenTo)

	res := s.enforcer.Enforce(ctx, dbName, options, sess.PrevHostOpTimes())

	sess.DisableForCommand()

	// Touched shards reset after every check, satisfied or not.
	sess.ClearSinceLastAck()

	if !res.Ok {
		s.logger.Warn("write concern not satisfied",
			zap.String("conn_id", sess.ConnID()),
			zap.String("failed_host", res.FailedHost),
			zap.String("message", res.Message))

		return AckResult{
			Ok:         false,
			Err:        res.Message,
			FailedHost: res.FailedHost,
			WrittenTo:  writtenTo,
		}
	}

	return AckResult{Ok: true, WrittenTo: writtenTo}
}
