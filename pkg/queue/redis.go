package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"Fractal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "fractal:queue"
	sweepEvery    = 5 * time.Second
	pendingTTL    = time.Hour
)

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("queue not running")

// RedisQueue is a list-backed job queue. Failed messages wait in a sorted set
// scored by their retry time; exhausted ones land on a dead letter list.
type RedisQueue struct {
	log     *logger.Logger
	cfg     QueueConfig
	client  *redis.Client
	keys    keys
	consume bool
	now     func() time.Time
	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ctx     context.Context
}

type keys struct {
	messages, retry, dead, pending string
}

func newKeys(prefix string) keys {
	return keys{
		messages: prefix + ":messages",
		retry:    prefix + ":retry",
		dead:     prefix + ":dlq",
		pending:  prefix + ":pending:",
	}
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keys = newKeys(prefix)
		}
	}
}

// ProducerOnly disables the workers; the queue only enqueues.
func ProducerOnly() RedisQueueOption {
	return func(r *RedisQueue) { r.consume = false }
}

// NewRedisQueue creates a queue that both enqueues and consumes unless ProducerOnly is given.
func NewRedisQueue(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	c := QueueConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.Poll <= 0 {
		c.Poll = time.Second
	}

	r := &RedisQueue{
		log:     lgr.With(logger.String("component", "queue")),
		cfg:     c,
		client:  client,
		keys:    newKeys(defaultPrefix),
		consume: true,
		now:     time.Now,
		jobs:    make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJobs registers jobs by message type. Duplicates keep the first job.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, ok := r.jobs[job.Type()]; ok {
			r.log.Warn("job already registered", logger.String("job", job.Name()))
			continue
		}
		r.jobs[job.Type()] = job
		r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
	}
}

// Start pings Redis and launches the workers and the retry sweeper.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	if !r.consume {
		r.log.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.sweeper()

	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("queue", r.keys.messages))
	return nil
}

// Stop cancels the workers and waits for in-flight handlers or ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes one message of msgType.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	msg, err := r.message(msgType, payload)
	if err != nil {
		return err
	}
	return r.push(ctx, msg)
}

// EnqueueUnique pushes a message unless another one with the same key is still
// pending. It reports whether a new message was pushed.
func (r *RedisQueue) EnqueueUnique(ctx context.Context, msgType, key string, payload interface{}) (bool, error) {
	msg, err := r.message(msgType, payload)
	if err != nil {
		return false, err
	}
	msg.Key = msgType + ":" + key

	ok, err := r.client.SetNX(ctx, r.keys.pending+msg.Key, msg.ID, pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim pending key: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := r.push(ctx, msg); err != nil {
		r.release(msg)
		return false, err
	}
	return true, nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Depth reports the number of waiting, retrying and dead messages.
func (r *RedisQueue) Depth(ctx context.Context) (waiting, retrying, dead int64, err error) {
	pipe := r.client.Pipeline()
	w := pipe.LLen(ctx, r.keys.messages)
	rt := pipe.ZCard(ctx, r.keys.retry)
	d := pipe.LLen(ctx, r.keys.dead)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return w.Val(), rt.Val(), d.Val(), nil
}

func (r *RedisQueue) message(msgType string, payload interface{}) (Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return Message{}, ErrNotRunning
	}
	if r.consume {
		if _, ok := r.jobs[msgType]; !ok {
			return Message{}, fmt.Errorf("no job registered for type: %s", msgType)
		}
	}
	return NewMessage(uuid.NewString(), msgType, payload, r.now())
}

func (r *RedisQueue) push(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.keys.messages, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.log.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		msg, ok := r.pop()
		if ok {
			r.process(msg)
		}
	}
	r.log.Debug("queue worker stopped", logger.Int("worker_id", id))
}

func (r *RedisQueue) pop() (Message, bool) {
	res, err := r.client.BRPop(r.ctx, r.cfg.Poll, r.keys.messages).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
			return Message{}, false
		}
		r.log.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return Message{}, false
	}
	if len(res) < 2 {
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.log.Error("unmarshal message", logger.Error(err))
		return Message{}, false
	}
	return msg, true
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.bury(msg)
		return
	}

	ctx := r.ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(r.ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	start := r.now()
	err := job.Handle(ctx, msg.Payload)
	fields := []logger.Field{
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Duration("elapsed", r.now().Sub(start)),
	}

	switch {
	case err == nil:
		r.release(msg)
		r.log.Debug("message processed", fields...)
	case errors.Is(err, context.Canceled) && r.ctx.Err() != nil:
		// Shutdown interrupted the handler; run it again on the next start.
		r.retry(msg, r.now())
		r.log.Warn("message interrupted", fields...)
	case msg.Attempts < r.cfg.RetryLimit:
		msg.Attempts++
		at := r.now().Add(retryDelay(r.cfg.RetryDelay, msg.Attempts))
		r.retry(msg, at)
		r.log.Warn("message failed, retry scheduled", append(fields,
			logger.Int("attempt", msg.Attempts),
			logger.Time("retry_at", at),
			logger.Error(err))...)
	default:
		r.bury(msg)
		r.log.Error("message failed, retries exhausted", append(fields, logger.Error(err))...)
	}
}

func (r *RedisQueue) retry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.keys.retry, redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.log.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) bury(msg Message) {
	r.release(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.keys.dead, data).Err(); err != nil {
		r.log.Error("lpush dlq", logger.Error(err))
	}
}

// release frees the pending key of a unique message so it can be enqueued again.
func (r *RedisQueue) release(msg Message) {
	if msg.Key == "" {
		return
	}
	if err := r.client.Del(context.Background(), r.keys.pending+msg.Key).Err(); err != nil {
		r.log.Warn("release pending key", logger.String("key", msg.Key), logger.Error(err))
	}
}

func (r *RedisQueue) sweeper() {
	defer r.wg.Done()
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.requeueDue()
		}
	}
}

// requeueDue moves retries whose time has come back onto the main list.
func (r *RedisQueue) requeueDue() {
	upto := strconv.FormatInt(r.now().Unix(), 10)
	due, err := r.client.ZRangeByScore(r.ctx, r.keys.retry, &redis.ZRangeBy{Min: "0", Max: upto}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.log.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, data := range due {
		if r.ctx.Err() != nil {
			return
		}
		// Only the instance whose ZREM wins re-queues the message.
		removed, err := r.client.ZRem(r.ctx, r.keys.retry, data).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.keys.messages, data).Err(); err != nil {
			r.log.Error("move retry to queue", logger.Error(err))
		}
	}
}
