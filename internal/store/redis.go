package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"todoapi/internal/todo"
)

// RedisStore provides item persistence in Redis.
//
// Items of one owner live in a hash at todos:{userId} keyed by todo id, with
// a sorted set at todos-order:{userId} scoring each id by an insertion
// sequence kept at todos-seq:{userId}.
type RedisStore struct {
	client *redis.Client
}

// createScript stores the item and, if it is not indexed yet, indexes it
// under the owner's next sequence number.
var createScript = redis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if not redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  redis.call('ZADD', KEYS[2], redis.call('INCR', KEYS[3]), ARGV[1])
end
return 1
`)

// patchScript merges a JSON object into a single existing item and returns
// the stored result, or nil when the item does not exist.
var patchScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return false
end
local item = cjson.decode(redis.call('HGET', KEYS[1], ARGV[1]))
for k, v in pairs(cjson.decode(ARGV[2])) do
  item[k] = v
end
local data = cjson.encode(item)
redis.call('HSET', KEYS[1], ARGV[1], data)
return data
`)

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func itemsKey(userID string) string { return "todos:" + userID }

func orderKey(userID string) string { return "todos-order:" + userID }

func seqKey(userID string) string { return "todos-seq:" + userID }

// ListByOwner returns the owner's items, most recently added first.
func (s *RedisStore) ListByOwner(ctx context.Context, userID string) ([]todo.Item, error) {
	ids, err := s.client.ZRevRange(ctx, orderKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []todo.Item{}, nil
	}
	vals, err := s.client.HMGet(ctx, itemsKey(userID), ids...).Result()
	if err != nil {
		return nil, err
	}
	items := make([]todo.Item, 0, len(vals))
	for _, v := range vals {
		data, ok := v.(string)
		if !ok {
			// index entry without a record
			continue
		}
		var item todo.Item
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Get retrieves an item. The boolean is false when it does not exist.
func (s *RedisStore) Get(ctx context.Context, userID, todoID string) (todo.Item, bool, error) {
	data, err := s.client.HGet(ctx, itemsKey(userID), todoID).Result()
	if err != nil {
		if err == redis.Nil {
			return todo.Item{}, false, nil
		}
		return todo.Item{}, false, err
	}
	var item todo.Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return todo.Item{}, false, err
	}
	return item, true, nil
}

// Create stores item, overwriting any item with the same key. An overwritten
// item keeps its position in the listing.
func (s *RedisStore) Create(ctx context.Context, item todo.Item) (todo.Item, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return todo.Item{}, err
	}
	keys := []string{itemsKey(item.UserID), orderKey(item.UserID), seqKey(item.UserID)}
	if err := createScript.Run(ctx, s.client, keys, item.TodoID, data).Err(); err != nil {
		return todo.Item{}, err
	}
	return item, nil
}

// Update sets name, due date and done on an existing item and returns the
// stored result.
func (s *RedisStore) Update(ctx context.Context, userID, todoID, name, dueDate string, done bool) (todo.Item, error) {
	return s.patch(ctx, userID, todoID, map[string]any{
		"name":    name,
		"dueDate": dueDate,
		"done":    done,
	})
}

// SetAttachmentURL sets the attachment reference of an existing item.
func (s *RedisStore) SetAttachmentURL(ctx context.Context, userID, todoID, url string) error {
	_, err := s.patch(ctx, userID, todoID, map[string]any{"attachmentUrl": url})
	return err
}

// patch merges fields into an existing item atomically on the server.
func (s *RedisStore) patch(ctx context.Context, userID, todoID string, fields map[string]any) (todo.Item, error) {
	p, err := json.Marshal(fields)
	if err != nil {
		return todo.Item{}, err
	}
	data, err := patchScript.Run(ctx, s.client, []string{itemsKey(userID)}, todoID, p).Text()
	if err != nil {
		if err == redis.Nil {
			return todo.Item{}, fmt.Errorf("todo %s: %w", todoID, todo.ErrNotFound)
		}
		return todo.Item{}, err
	}
	var item todo.Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return todo.Item{}, err
	}
	return item, nil
}

// Delete removes an item. Deleting a missing item is not an error.
func (s *RedisStore) Delete(ctx context.Context, userID, todoID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, itemsKey(userID), todoID)
		pipe.ZRem(ctx, orderKey(userID), todoID)
		return nil
	})
	return err
}
