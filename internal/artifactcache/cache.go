package artifactcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"waveline/internal/config"
)

// Client fetches previously computed artifacts from a content-addressed
// remote cache. Artifacts are keyed by the analyzer configuration hash and
// the source file hash, so a cache hit is exactly the artifact the analyzer
// would produce. Conditional retrieval via entity tags keeps unchanged
// artifacts from being re-downloaded; a "not modified" outcome is a hit,
// not an error.
type Client struct {
	baseURL    string
	dir        string
	configHash string
	client     *http.Client

	maxRetries uint64
}

// New constructs a cache client, or returns nil when the cache is disabled.
func New(cfg *config.Config) *Client {
	if cfg == nil || !cfg.ArtifactCache.Enabled {
		return nil
	}
	return &Client{
		baseURL:    cfg.ArtifactCache.BaseURL,
		dir:        cfg.ArtifactCache.Dir,
		configHash: ConfigHash(cfg.Analyzer),
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
}

// ConfigHash fingerprints the analyzer configuration that shapes artifact
// contents. Two installs with the same hash produce interchangeable
// artifacts.
func ConfigHash(a config.Analyzer) string {
	h := sha256.New()
	io.WriteString(h, a.Binary)
	for _, arg := range a.ExtraArgs {
		io.WriteString(h, "\x00")
		io.WriteString(h, arg)
	}
	io.WriteString(h, "\x00")
	io.WriteString(h, a.OutputExtension)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SourceHash hashes a source file's contents.
func SourceHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source for hashing: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash source: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fetch retrieves the cached artifact for a source file. It returns the
// local path and true on a hit (fresh download or validated local copy),
// and false on a miss. Transport failures are retried with bounded
// exponential backoff before being reported.
func (c *Client) Fetch(ctx context.Context, sourcePath string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}

	srcHash, err := SourceHash(sourcePath)
	if err != nil {
		return "", false, err
	}

	localPath := filepath.Join(c.dir, c.configHash+"-"+srcHash)
	etagPath := localPath + ".etag"
	url := fmt.Sprintf("%s/artifacts/%s/%s", c.baseURL, c.configHash, srcHash)

	var (
		hit  bool
		path string
	)
	operation := func() error {
		var opErr error
		path, hit, opErr = c.fetchOnce(ctx, url, localPath, etagPath)
		return opErr
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", false, err
	}
	return path, hit, nil
}

func (c *Client) fetchOnce(ctx context.Context, url, localPath, etagPath string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, backoff.Permanent(fmt.Errorf("build cache request: %w", err))
	}
	if etag := readETag(etagPath); etag != "" {
		if _, statErr := os.Stat(localPath); statErr == nil {
			req.Header.Set("If-None-Match", etag)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch cached artifact: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return localPath, true, nil
	case http.StatusNotFound:
		return "", false, nil
	case http.StatusOK:
		if err := c.store(resp, localPath, etagPath); err != nil {
			return "", false, backoff.Permanent(err)
		}
		return localPath, true, nil
	default:
		if resp.StatusCode >= 500 {
			return "", false, fmt.Errorf("artifact cache returned %s", resp.Status)
		}
		return "", false, backoff.Permanent(fmt.Errorf("artifact cache returned %s", resp.Status))
	}
}

func (c *Client) store(resp *http.Response, localPath, etagPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("ensure cache directory: %w", err)
	}

	tempPath := localPath + ".partial"
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("download cached artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("flush cache temp file: %w", err)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("promote cached artifact: %w", err)
	}

	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" {
		_ = os.WriteFile(etagPath, []byte(etag), 0o644)
	} else {
		_ = os.Remove(etagPath)
	}
	return nil
}

func readETag(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
