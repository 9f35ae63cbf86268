package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// popScript atomically moves up to ARGV[2] message ids from the pending
// list into the in-flight set, scored by their visibility deadline, and
// bumps each message's receive count.
var popScript = redis.NewScript(`
local ids = {}
for i = 1, tonumber(ARGV[2]) do
    local id = redis.call('RPOP', KEYS[1])
    if not id then break end
    redis.call('ZADD', KEYS[2], ARGV[1], id)
    redis.call('HINCRBY', ARGV[3] .. id, 'receives', 1)
    ids[#ids + 1] = id
end
return ids
`)

// reapScript requeues in-flight messages whose visibility deadline has
// passed. Messages that already hit the max receive count go to the DLQ
// instead of being redelivered.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(expired) do
    redis.call('ZREM', KEYS[1], id)
    local receives = tonumber(redis.call('HGET', ARGV[3] .. id, 'receives') or '0')
    if receives >= tonumber(ARGV[2]) then
        redis.call('LPUSH', KEYS[3], id)
    else
        redis.call('LPUSH', KEYS[2], id)
    end
end
return #expired
`)

// RedisQueue implements Queue on Redis using go-redis/v9. A pending list
// holds undelivered message ids; received ids sit in a sorted set keyed by
// visibility deadline until acknowledged.
type RedisQueue struct {
	client *redis.Client
	name   string
	opts   Options
}

// NewClient creates a Redis client from a URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// New creates a named queue on the given client.
func New(client *redis.Client, name string, opts Options) *RedisQueue {
	return &RedisQueue{client: client, name: name, opts: opts.withDefaults()}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Send(ctx context.Context, body string) error {
	return q.SendBatch(ctx, []string{body})
}

func (q *RedisQueue) SendBatch(ctx context.Context, bodies []string) error {
	if len(bodies) == 0 {
		return nil
	}
	pipe := q.client.TxPipeline()
	for _, body := range bodies {
		id := uuid.NewString()
		pipe.HSet(ctx, messagePrefix(q.name)+id, "body", body, "receives", 0)
		pipe.LPush(ctx, pendingKey(q.name), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("send to queue %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(q.opts.WaitTime)

	for {
		if err := q.reap(ctx); err != nil {
			return nil, err
		}

		msgs, err := q.pop(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := q.opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *RedisQueue) pop(ctx context.Context, max int) ([]Message, error) {
	visibleDeadline := time.Now().Add(q.opts.VisibilityTimeout).UnixMilli()
	res, err := popScript.Run(ctx, q.client,
		[]string{pendingKey(q.name), inflightKey(q.name)},
		visibleDeadline, max, messagePrefix(q.name)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("receive from queue %s: %w", q.name, err)
	}

	msgs := make([]Message, 0, len(res))
	for _, id := range res {
		body, err := q.client.HGet(ctx, messagePrefix(q.name)+id, "body").Result()
		if err != nil {
			return nil, fmt.Errorf("read message %s body: %w", id, err)
		}
		msgs = append(msgs, Message{Body: body, ReceiptHandle: id})
	}
	return msgs, nil
}

func (q *RedisQueue) reap(ctx context.Context) error {
	err := reapScript.Run(ctx, q.client,
		[]string{inflightKey(q.name), pendingKey(q.name), dlqKey(q.name)},
		time.Now().UnixMilli(), q.opts.MaxReceiveCount, messagePrefix(q.name)).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("requeue expired messages: %w", err)
	}
	return nil
}

func (q *RedisQueue) Delete(ctx context.Context, receiptHandle string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey(q.name), receiptHandle)
	// The message may have been requeued if its visibility expired between
	// receive and acknowledge; remove it there too.
	pipe.LRem(ctx, pendingKey(q.name), 0, receiptHandle)
	pipe.Del(ctx, messagePrefix(q.name)+receiptHandle)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete from queue %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	pipe := q.client.TxPipeline()
	pending := pipe.LLen(ctx, pendingKey(q.name))
	inflight := pipe.ZCard(ctx, inflightKey(q.name))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue %s length: %w", q.name, err)
	}
	return pending.Val() + inflight.Val(), nil
}

func (q *RedisQueue) PopDLQ(ctx context.Context) (string, bool, error) {
	id, err := q.client.RPop(ctx, dlqKey(q.name)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pop dlq for queue %s: %w", q.name, err)
	}

	body, err := q.client.HGet(ctx, messagePrefix(q.name)+id, "body").Result()
	if err != nil && err != redis.Nil {
		return "", false, fmt.Errorf("read dlq message %s body: %w", id, err)
	}
	q.client.Del(ctx, messagePrefix(q.name)+id)
	return body, true, nil
}
