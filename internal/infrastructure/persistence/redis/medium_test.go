package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/domain/shared"
)

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	cfg.Host = "cache.internal"
	cfg.Port = 6380
	opts := cfg.Options()
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)
	assert.Equal(t, cfg.ReadTimeout, opts.ReadTimeout)
}

func TestEscapePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mathApp_", "mathApp_"},
		{"a*b", `a\*b`},
		{"what?", `what\?`},
		{"[x]", `\[x\]`},
		{`back\slash`, `back\\slash`},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapePattern(tt.in))
		})
	}
}

func TestMedium_RedisKey(t *testing.T) {
	m := &Medium{prefix: "learnerhub:"}
	assert.Equal(t, "learnerhub:mathApp_userData", m.redisKey(learner.RecordKey("mathApp_")))
}

// serverReply mimics an error reply sent by a Redis server.
type serverReply string

func (e serverReply) Error() string { return string(e) }
func (serverReply) RedisError() {}

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(unavailable("Connect", serverReply("WRONGPASS invalid username-password pair"))))
	assert.True(t, IsRejected(serverReply("NOAUTH Authentication required.")))
	assert.True(t, IsRejected(serverReply("ERR DB index is out of range")))

	assert.False(t, IsRejected(serverReply("LOADING Redis is loading the dataset in memory")))
	assert.False(t, IsRejected(redis.Nil))
	assert.False(t, IsRejected(errors.New("dial tcp 127.0.0.1:1: connect: connection refused")))
	assert.False(t, IsRejected(nil))
}

func TestNewMedium_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 1
	cfg.MaxRetries = 0
	cfg.DialTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewMedium(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPersistenceUnavailable))
}

// TestMedium_Live runs against a real server when LEARNERHUB_TEST_REDIS_ADDR
// is set, e.g. "localhost:6379".
func TestMedium_Live(t *testing.T) {
	addr := os.Getenv("LEARNERHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEARNERHUB_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	opts := cfg.Options()
	opts.Addr = addr

	ctx := context.Background()
	m := NewMediumFromClient(redis.NewClient(opts), "learnerhub-test:")
	defer m.Close()
	require.NoError(t, m.DeletePrefix(ctx, ""))

	_, err := m.Get(ctx, "mathApp_userData")
	assert.ErrorIs(t, err, learner.ErrKeyNotFound)

	require.NoError(t, m.Set(ctx, "mathApp_userData", []byte(`{"stars":3}`)))
	require.NoError(t, m.Set(ctx, "mathApp_other", []byte(`1`)))
	require.NoError(t, m.Set(ctx, "elsewhere", []byte(`2`)))

	got, err := m.Get(ctx, "mathApp_userData")
	require.NoError(t, err)
	assert.Equal(t, `{"stars":3}`, string(got))

	require.NoError(t, m.DeletePrefix(ctx, "mathApp_"))
	_, err = m.Get(ctx, "mathApp_other")
	assert.ErrorIs(t, err, learner.ErrKeyNotFound)
	_, err = m.Get(ctx, "elsewhere")
	assert.NoError(t, err)
}
