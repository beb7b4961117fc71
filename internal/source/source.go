// Package source fetches raw audio file bytes for the decode layer.
//
// Two channels are supported: direct filesystem reads (the fast path for a
// locally mounted sample library) and a legacy HTTP endpoint that returns a
// base64 envelope, kept for setups where the library is served by an older
// desktop shell.
package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Common errors for byte fetching.
var (
	ErrNotFound    = errors.New("audio file not found")
	ErrBadResponse = errors.New("bad byte-source response")
)

// ByteSource fetches the raw bytes of an audio file. Implementations must
// be safe for concurrent fetches of distinct paths and idempotent per path.
type ByteSource interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FileSource reads files directly from the local filesystem. An optional
// root confines relative paths to the sample library directory.
type FileSource struct {
	Root string
}

// Fetch reads the file in one call. Absolute paths bypass the root.
func (s *FileSource) Fetch(_ context.Context, path string) ([]byte, error) {
	p := path
	if s.Root != "" && !filepath.IsAbs(p) {
		p = filepath.Join(s.Root, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// RemoteSource fetches bytes over the legacy HTTP channel. The endpoint
// answers GET /file?path=... with {"path": ..., "data": "<base64>"}.
type RemoteSource struct {
	BaseURL string
	Client  *http.Client
}

// NewRemoteSource returns a source talking to the given base URL with a
// request timeout suited to interactive playback.
func NewRemoteSource(baseURL string) *RemoteSource {
	return &RemoteSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type fileEnvelope struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

// Fetch requests the encoded envelope and decodes it.
func (s *RemoteSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	u := fmt.Sprintf("%s/file?path=%s", s.BaseURL, url.QueryEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var env fileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return data, nil
}

func (s *RemoteSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// Chain tries a preferred source first and falls back to a secondary one.
// Used to prefer the local channel while keeping the legacy encoded
// fallback transparent to callers.
type Chain struct {
	Primary  ByteSource
	Fallback ByteSource
}

// Fetch tries the primary source and falls back on any error.
func (c *Chain) Fetch(ctx context.Context, path string) ([]byte, error) {
	data, err := c.Primary.Fetch(ctx, path)
	if err == nil || c.Fallback == nil {
		return data, err
	}
	log.Debug("primary byte source failed, trying fallback", "path", path, "error", err)
	return c.Fallback.Fetch(ctx, path)
}
