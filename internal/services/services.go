// package services defines the content provider client used by the sync engine
package services

import (
	"context"

	"github.com/desertthunder/dlx/internal/models"
)

// Provider lists a remote account's items and materializes their media locally.
type Provider interface {
	// ListItems returns a lazy pager over the account's items, newest first.
	// maxCount is a page-size hint; 0 means no hint.
	ListItems(ctx context.Context, externalID string, maxCount int) ItemPager

	// DownloadItem writes every media file of the item under dir and returns their paths.
	DownloadItem(ctx context.Context, item models.ItemDescriptor, dir string) ([]string, error)

	// Name returns the provider name for logs.
	Name() string
}

// ItemPager yields listing pages in order. It is finite and cannot be restarted.
//
// Next returns [io.EOF] once the listing is exhausted.
type ItemPager interface {
	Next(ctx context.Context) ([]models.ItemDescriptor, error)
}
