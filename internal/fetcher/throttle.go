package fetcher

import (
	"context"
)

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// ThrottledPages delays page fetches through a Waiter.
type ThrottledPages struct {
	Pages  PageFetcher
	Waiter Waiter
}

// Fetch implements PageFetcher.
func (t ThrottledPages) Fetch(ctx context.Context, url string) (Page, error) {
	if err := t.Waiter.Wait(ctx, url); err != nil {
		return Page{}, err
	}
	return t.Pages.Fetch(ctx, url)
}

// ThrottledDownloader delays downloads through a Waiter.
type ThrottledDownloader struct {
	Downloader Downloader
	Waiter     Waiter
}

// Download implements Downloader.
func (t ThrottledDownloader) Download(ctx context.Context, url, dst string) (int64, error) {
	if err := t.Waiter.Wait(ctx, url); err != nil {
		return 0, err
	}
	return t.Downloader.Download(ctx, url, dst)
}
