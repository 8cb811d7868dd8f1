package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"samco-bridge/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const (
	// Stream trimming: a year of daily bars, a few sessions of minute bars.
	streamMaxLen     = 20000
	defaultLatestTTL = 24 * time.Hour
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// NewClient connects to Redis and pings the server.
func NewClient(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// Writer appends bars to per-symbol Redis Streams and keeps the latest bar
// of each stream under a plain key.
type Writer struct {
	client *goredis.Client
}

// NewWriter wraps an existing client.
func NewWriter(client *goredis.Client) *Writer {
	return &Writer{client: client}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// StreamKey names the stream holding bars of sym at period.
func StreamKey(sym model.Symbol, period time.Duration) string {
	return "bars:" + strconv.FormatInt(int64(period/time.Second), 10) + "s:" + sym.Key()
}

// LatestKey names the key holding the newest bar of a stream.
func LatestKey(sym model.Symbol, period time.Duration) string {
	return "latest:" + StreamKey(sym, period)
}

// WriteBars appends bars in a single pipeline and returns the first error.
func (w *Writer) WriteBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range bars {
		b := &bars[i]
		fields := barFields(b)
		stream := StreamKey(b.Symbol, b.Period)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: fields,
		})
		pipe.HSet(ctx, LatestKey(b.Symbol, b.Period), fields)
		pipe.Expire(ctx, LatestKey(b.Symbol, b.Period), defaultLatestTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %d bars: %w", len(bars), err)
	}
	return nil
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}

func barFields(b *model.Bar) map[string]any {
	return map[string]any{
		"ts":     b.Time.Unix(),
		"open":   b.Open.String(),
		"high":   b.High.String(),
		"low":    b.Low.String(),
		"close":  b.Close.String(),
		"volume": b.Volume,
	}
}

// parseBar rebuilds a bar from stream or hash fields.
func parseBar(sym model.Symbol, period time.Duration, fields map[string]any) (model.Bar, error) {
	str := func(k string) string {
		switch v := fields[k].(type) {
		case string:
			return v
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}

	ts, err := strconv.ParseInt(str("ts"), 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("bar ts %q: %w", str("ts"), err)
	}
	b := model.Bar{Symbol: sym, Time: time.Unix(ts, 0).UTC(), Period: period}
	for _, f := range []struct {
		key string
		dst *decimal.Decimal
	}{{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}} {
		d, err := decimal.NewFromString(str(f.key))
		if err != nil {
			return model.Bar{}, fmt.Errorf("bar %s %q: %w", f.key, str(f.key), err)
		}
		*f.dst = d
	}
	if v := str("volume"); v != "" {
		if b.Volume, err = strconv.ParseInt(v, 10, 64); err != nil {
			return model.Bar{}, fmt.Errorf("bar volume %q: %w", v, err)
		}
	}
	return b, nil
}
