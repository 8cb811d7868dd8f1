package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"samco-bridge/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Reader reads bars back from the Redis Streams written by Writer.
type Reader struct {
	client *goredis.Client
}

// NewReader wraps an existing client.
func NewReader(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// ReadBars returns the bars of sym and period starting in [from, to), oldest
// first. A bar written more than once is returned once, with its last value.
func (r *Reader) ReadBars(ctx context.Context, sym model.Symbol, period time.Duration, from, to time.Time) ([]model.Bar, error) {
	msgs, err := r.client.XRange(ctx, StreamKey(sym, period), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange %s: %w", StreamKey(sym, period), err)
	}
	return collectBars(sym, period, from, to, msgs)
}

func collectBars(sym model.Symbol, period time.Duration, from, to time.Time, msgs []goredis.XMessage) ([]model.Bar, error) {
	byTS := make(map[int64]model.Bar, len(msgs))
	for _, m := range msgs {
		b, err := parseBar(sym, period, m.Values)
		if err != nil {
			return nil, fmt.Errorf("stream entry %s: %w", m.ID, err)
		}
		if b.Time.Before(from) || !b.Time.Before(to) {
			continue
		}
		byTS[b.Time.Unix()] = b
	}

	bars := make([]model.Bar, 0, len(byTS))
	for _, b := range byTS {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// Latest returns the newest bar written for sym and period.
// ok is false when none is cached.
func (r *Reader) Latest(ctx context.Context, sym model.Symbol, period time.Duration) (bar model.Bar, ok bool, err error) {
	vals, err := r.client.HGetAll(ctx, LatestKey(sym, period)).Result()
	if err != nil {
		return model.Bar{}, false, err
	}
	if len(vals) == 0 {
		return model.Bar{}, false, nil
	}
	fields := make(map[string]any, len(vals))
	for k, v := range vals {
		fields[k] = v
	}
	bar, err = parseBar(sym, period, fields)
	if err != nil {
		return model.Bar{}, false, err
	}
	return bar, true, nil
}

// Close closes the client.
func (r *Reader) Close() error {
	return r.client.Close()
}
