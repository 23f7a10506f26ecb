package index

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Remote is a published index page.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a remote index for the page at url.
func NewRemote(url string) *Remote {
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Load downloads the page and returns the file names it lists.
func (r *Remote) Load(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading index: HTTP %d", resp.StatusCode)
	}

	return NewParser(resp.Body).Parse()
}
