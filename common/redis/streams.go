package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamStart is the ID preceding every entry of a stream.
const StreamStart = "0-0"

// StreamMessage Redis Streams entry
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// StreamValues converts arbitrary values to the string form Redis Streams stores.
func StreamValues(values map[string]interface{}) (map[string]interface{}, error) {
	streamValues := make(map[string]interface{}, len(values))
	for k, v := range values {
		var strValue string
		switch val := v.(type) {
		case string:
			strValue = val
		case []byte:
			strValue = string(val)
		case int:
			strValue = strconv.Itoa(val)
		case int32:
			strValue = strconv.FormatInt(int64(val), 10)
		case int64:
			strValue = strconv.FormatInt(val, 10)
		case float32:
			strValue = strconv.FormatFloat(float64(val), 'f', -1, 32)
		case float64:
			strValue = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			strValue = strconv.FormatBool(val)
		default:
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			strValue = string(jsonBytes)
		}
		streamValues[k] = strValue
	}
	return streamValues, nil
}

// AddToStream queues an XADD on cmd, trimming the stream to roughly maxLen entries
// when maxLen > 0. cmd may be a client or a pipeline.
func AddToStream(ctx context.Context, cmd redis.Cmdable, stream string, maxLen int64, values map[string]interface{}) (*redis.StringCmd, error) {
	streamValues, err := StreamValues(values)
	if err != nil {
		return nil, err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return cmd.XAdd(ctx, args), nil
}

// PublishToStream appends one entry and returns its ID.
func PublishToStream(ctx context.Context, client *redis.Client, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	cmd, err := AddToStream(ctx, client, stream, maxLen, values)
	if err != nil {
		return "", err
	}
	return cmd.Result()
}

// LastStreamID returns the ID of the newest entry, or StreamStart for an empty
// or missing stream.
func LastStreamID(ctx context.Context, client *redis.Client, stream string) (string, error) {
	msgs, err := client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StreamStart, nil
		}
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return StreamStart, nil
	}
	return msgs[0].ID, nil
}

// ReadStreamAfter reads up to count entries newer than lastID, blocking for at
// most block. A timeout yields an empty slice and no error.
func ReadStreamAfter(ctx context.Context, client *redis.Client, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}
