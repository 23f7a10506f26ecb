// Package downloader fetches published wheels in parallel.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Job is one file to fetch.
type Job struct {
	URL      string
	DestPath string
}

// Result is the outcome of a Job. Skipped is set when DestPath already existed.
type Result struct {
	Job     Job
	Skipped bool
	Error   error
}

// Downloader handles parallel HTTP downloads.
type Downloader struct {
	workers int
	client  *http.Client
}

// NewDownloader creates a new downloader with the specified number of workers.
func NewDownloader(workers int) *Downloader {
	if workers < 1 {
		workers = 1
	}
	return &Downloader{
		workers: workers,
		client:  &http.Client{},
	}
}

// Download fetches every job and returns the results in job order. Files
// that already exist are not fetched again. Jobs not yet started when ctx
// is cancelled fail with the context's error.
func (d *Downloader) Download(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	// Failures are recorded per job; workers never return an error.
	var g errgroup.Group
	g.SetLimit(d.workers)

	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Job: job, Error: err}
				return nil
			}
			skipped, err := d.downloadOne(ctx, job)
			results[i] = Result{Job: job, Skipped: skipped, Error: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Downloader) downloadOne(ctx context.Context, job Job) (bool, error) {
	// Already present
	if _, err := os.Stat(job.DestPath); err == nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0755); err != nil {
		return false, fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("downloading %s: %w", job.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("downloading %s: HTTP %d", job.URL, resp.StatusCode)
	}

	// Write to temp file first, then rename
	tmpPath := job.DestPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return false, fmt.Errorf("creating file: %w", err)
	}

	_, err = io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("writing file: %w", err)
	}

	if err := os.Rename(tmpPath, job.DestPath); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("renaming file: %w", err)
	}

	return false, nil
}
