package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"Fractal/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotJob struct {
	Symbol string `json:"symbol"`
	Asof   string `json:"asof"`
}

func TestMessageRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	msg, err := NewMessage("id-1", "snapshot.write", snapshotJob{Symbol: "BTC", Asof: "2024-03-01"}, now)
	require.NoError(t, err)
	assert.Equal(t, "snapshot.write", msg.Type)
	assert.JSONEq(t, `{"symbol":"BTC","asof":"2024-03-01"}`, string(msg.Payload))

	got, err := DecodePayload[snapshotJob](msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "BTC", got.Symbol)

	_, err = DecodePayload[snapshotJob]([]byte("not json"))
	assert.Error(t, err)
}

func TestRetryDelayDoubles(t *testing.T) {
	base := 10 * time.Second
	assert.Equal(t, 10*time.Second, retryDelay(base, 1))
	assert.Equal(t, 20*time.Second, retryDelay(base, 2))
	assert.Equal(t, 40*time.Second, retryDelay(base, 3))
	assert.Equal(t, time.Hour, retryDelay(base, 30))
}

type noopJob struct{}

func (noopJob) Name() string                                  { return "noop" }
func (noopJob) Type() string                                  { return "noop.run" }
func (noopJob) Handle(context.Context, json.RawMessage) error { return nil }

func TestNewRedisQueueDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := NewRedisQueue(logger.Nop(), nil, client, WithKeyPrefix("fractal:jobs"))
	assert.Equal(t, 1, q.cfg.Workers)
	assert.Equal(t, 10*time.Second, q.cfg.RetryDelay)
	assert.Equal(t, time.Second, q.cfg.Poll)
	assert.True(t, q.consume)
	assert.Equal(t, keys{
		messages: "fractal:jobs:messages",
		retry:    "fractal:jobs:retry",
		dead:     "fractal:jobs:dlq",
		pending:  "fractal:jobs:pending:",
	}, q.keys)

	assert.False(t, NewRedisQueue(logger.Nop(), nil, client, ProducerOnly()).consume)
	assert.Equal(t, "fractal:queue:messages", NewRedisQueue(logger.Nop(), nil, client, WithKeyPrefix("")).keys.messages)
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := NewRedisQueue(logger.Nop(), &QueueConfig{Workers: 2}, client)
	q.RegisterJobs([]Job{noopJob{}, noopJob{}})
	assert.Len(t, q.jobs, 1)

	err := q.Enqueue(context.Background(), "noop.run", map[string]string{})
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = q.EnqueueUnique(context.Background(), "noop.run", "BTC", nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	assert.NoError(t, q.Stop(context.Background()))
}

func TestMessageRejectsUnknownType(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := NewRedisQueue(logger.Nop(), nil, client)
	q.running = true
	_, err := q.message("missing", nil)
	assert.ErrorContains(t, err, "no job registered")

	q.consume = false
	msg, err := q.message("missing", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "missing", msg.Type)
	assert.NotEmpty(t, msg.ID)
}
