package instruments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"samco-bridge/internal/markethours"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"
)

// Fetcher downloads the raw scrip master CSV.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, error) { return f(ctx) }

// HTTPFetcher downloads the catalogue with a plain GET. The catalogue is
// public; it is not signed and does not go through the broker rate limit.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher for url (default: ScripMasterURL).
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if url == "" {
		url = ScripMasterURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download scrip master: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download scrip master: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &samco.HTTPError{Endpoint: "GET " + f.URL, StatusCode: resp.StatusCode, Status: resp.Status, Body: raw}
	}
	return raw, nil
}

// SharedFetcher is a Fetcher backed by a copy shared between processes.
// The cache publishes a catalogue only after it parsed cleanly, and asks for
// the origin when the shared copy is rejected.
type SharedFetcher interface {
	Fetcher
	// Publish shares raw for the current cutoff day.
	Publish(ctx context.Context, raw []byte)
	// Origin discards the shared copy and downloads from the origin.
	Origin(ctx context.Context) ([]byte, error)
}

// StoreFetcher serves the catalogue from a shared store when one was already
// published for the current cutoff day, and otherwise downloads it. It never
// writes to the store from Fetch. Store failures are logged, never returned.
type StoreFetcher struct {
	Next  Fetcher
	Store model.CatalogueStore
	Now   func() time.Time
}

func (f *StoreFetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *StoreFetcher) day(now time.Time) string {
	return markethours.DayKey(markethours.LastCatalogueCutoff(now))
}

func (f *StoreFetcher) Fetch(ctx context.Context) ([]byte, error) {
	day := f.day(f.now())
	cached, err := f.Store.LoadCatalogue(ctx, day)
	if err != nil {
		slog.Warn("catalogue store read failed, downloading",
			slog.String("component", "instruments"), slog.String("day", day), slog.Any("error", err))
	} else if len(cached) > 0 {
		slog.Debug("catalogue served from store", slog.String("component", "instruments"), slog.String("day", day))
		return cached, nil
	}
	return f.Next.Fetch(ctx)
}

// Publish stores raw until the next cutoff.
func (f *StoreFetcher) Publish(ctx context.Context, raw []byte) {
	now := f.now()
	day := f.day(now)
	ttl := markethours.NextCatalogueCutoff(now).Sub(now)
	if err := f.Store.SaveCatalogue(ctx, day, raw, ttl); err != nil {
		slog.Warn("catalogue store write failed",
			slog.String("component", "instruments"), slog.String("day", day), slog.Any("error", err))
	}
}

// Origin deletes the stored copy for the current day so other processes stop
// serving it, then downloads from Next.
func (f *StoreFetcher) Origin(ctx context.Context) ([]byte, error) {
	day := f.day(f.now())
	if err := f.Store.DeleteCatalogue(ctx, day); err != nil {
		slog.Warn("catalogue store delete failed",
			slog.String("component", "instruments"), slog.String("day", day), slog.Any("error", err))
	}
	return f.Next.Fetch(ctx)
}
