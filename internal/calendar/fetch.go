package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	appLog "audiosched/internal/log"
)

// cacheEntry holds HTTP cache metadata for a single calendar URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetchResult contains the outcome of fetching a remote calendar table.
type FetchResult struct {
	Body      []byte
	FromCache bool // true if the cached body was reused (304 or network failure)
}

// Fetcher downloads calendar tables over HTTP with ETag / Last-Modified
// revalidation and a disk cache, so a flaky network never empties the schedule.
type Fetcher struct {
	client   *http.Client
	fs       afero.Fs
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir on fs.
func NewFetcher(fs afero.Fs, cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cacheDir == "" {
		cacheDir = "./var/calendar-cache"
	}
	return &Fetcher{client: client, fs: fs, cacheDir: cacheDir}
}

// Fetch downloads url, honoring cached validators and falling back to the
// cached body on network errors or non-OK responses.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("calendar URL is empty")
	}

	cachePath := f.cachePathForURL(url)
	if err := f.fs.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := afero.ReadFile(f.fs, filepath.Join(cachePath, "body"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("calendar fetch start", "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("calendar fetch network error, using cached body", err, "url", redactURL(url))
			return FetchResult{Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}
		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("calendar cache save failed", err, "url", redactURL(url))
		}
		appLog.Info("calendar fetch success", "url", redactURL(url), "bytes", len(body))
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("calendar not modified; using cache", "url", redactURL(url))
		return FetchResult{Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("calendar fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(url), "status", resp.StatusCode)
			return FetchResult{Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := afero.ReadFile(f.fs, filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := afero.WriteFile(f.fs, filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(f.fs, filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; calendar URLs may carry tokens.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "calendar://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
