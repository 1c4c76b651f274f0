package registry

import (
	"sync"
	"testing"

	"github.com/devrev/shardrouter/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHandle struct {
	remote string
}

func (h *fakeHandle) Remote() string { return h.remote }

func newTestRegistry() *SessionRegistry {
	return New(true, nil, nil, zap.NewNop())
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	r := newTestRegistry()
	handle := &fakeHandle{remote: "10.0.0.1:51334"}

	s1, err := r.GetOrCreate("conn-1", handle)
	require.NoError(t, err)
	require.NotNil(t, s1)
	assert.Equal(t, "10.0.0.1:51334", s1.Remote())

	s2, err := r.GetOrCreate("conn-1", handle)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreate_NilHandleSkipsValidation(t *testing.T) {
	r := newTestRegistry()

	s1, err := r.GetOrCreate("conn-1", &fakeHandle{remote: "10.0.0.1:1"})
	require.NoError(t, err)

	s2, err := r.GetOrCreate("conn-1", nil)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestGetOrCreate_HandleMismatch(t *testing.T) {
	r := newTestRegistry()

	_, err := r.GetOrCreate("conn-1", &fakeHandle{remote: "10.0.0.1:1"})
	require.NoError(t, err)

	_, err = r.GetOrCreate("conn-1", &fakeHandle{remote: "10.0.0.1:1"})
	require.Error(t, err)

	var mismatch *HandleMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "conn-1", mismatch.ConnID)
}

func TestCreate_FailsOnDuplicate(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Create("conn-1", nil)
	require.NoError(t, err)

	_, err = r.Create("conn-1", nil)
	require.Error(t, err)

	var dup *DuplicateSessionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "conn-1", dup.ConnID)
}

func TestGetOrCreate_ConcurrentCallersShareOneSession(t *testing.T) {
	r := newTestRegistry()

	const callers = 64
	results := make([]*session.ClientSession, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate("conn-1", nil)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, r.Len())
}

func TestExistsAndRemove(t *testing.T) {
	r := newTestRegistry()

	assert.False(t, r.Exists("conn-1"))

	_, err := r.Create("conn-1", nil)
	require.NoError(t, err)
	assert.True(t, r.Exists("conn-1"))

	r.Remove("conn-1")
	assert.False(t, r.Exists("conn-1"))
	assert.Equal(t, 0, r.Len())

	// Removing an unknown connection is a no-op.
	r.Remove("conn-unknown")
}

func TestGet_ReturnsNilForUnknownConnection(t *testing.T) {
	r := newTestRegistry()

	s, err := r.Get("conn-1", nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestCreate_PerformsImplicitFirstRequest(t *testing.T) {
	r := newTestRegistry()

	s, err := r.Create("conn-1", nil)
	require.NoError(t, err)

	// The implicit first request means write attribution can start
	// immediately and the previous record is empty.
	assert.False(t, s.LastAccess().IsZero())
	assert.Empty(t, s.PrevWrittenHosts())
}

func TestAuthFactory_AttachmentBoundAtCreation(t *testing.T) {
	type authState struct{ user string }

	r := New(true, func() interface{} { return &authState{user: "router"} }, nil, zap.NewNop())

	s, err := r.Create("conn-1", nil)
	require.NoError(t, err)

	attachment, ok := s.Auth().(*authState)
	require.True(t, ok)
	assert.Equal(t, "router", attachment.user)
}

func TestSnapshot(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Create("conn-1", &fakeHandle{remote: "10.0.0.1:1"})
	require.NoError(t, err)
	_, err = r.Create("conn-2", &fakeHandle{remote: "10.0.0.2:2"})
	require.NoError(t, err)

	infos := r.Snapshot()
	assert.Len(t, infos, 2)

	remotes := map[string]string{}
	for _, info := range infos {
		remotes[info.ConnID] = info.Remote
	}
	assert.Equal(t, "10.0.0.1:1", remotes["conn-1"])
	assert.Equal(t, "10.0.0.2:2", remotes["conn-2"])
}
