package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
)

// Fetcher downloads a remote input into dir. It returns one ResolvedFile per
// object fetched, with Source set to the path used for ids and docvars.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL, dir string) ([]models.ResolvedFile, error)
}

// HTTPFetcher fetches http and https URLs.
type HTTPFetcher struct {
	client *http.Client
}

// DefaultFetchTimeout bounds one download when no client is supplied.
const DefaultFetchTimeout = 5 * time.Minute

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets a default one.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &HTTPFetcher{client: client}
}

// Fetch downloads u. The format is taken from the URL path, never from the
// response content type.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL, dir string) ([]models.ResolvedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = "index"
	}
	local, err := saveBody(dir, name, resp.Body)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("fetched url", zap.String("url", u.String()), zap.String("path", local))
	return []models.ResolvedFile{{Path: local, Source: u.Host + u.Path}}, nil
}

// saveBody writes r into a fresh subdirectory of dir so equal names from
// different URLs cannot overwrite each other.
func saveBody(dir, name string, r io.Reader) (string, error) {
	sub, err := os.MkdirTemp(dir, "fetch-")
	if err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	local := filepath.Join(sub, name)
	if err := writeFile(local, r); err != nil {
		return "", err
	}
	return local, nil
}
