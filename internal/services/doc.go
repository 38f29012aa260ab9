// Package services defines the [Provider] interface for remote content sources and implements it over HTTP.
//
// # Provider Interface
//
// A provider exposes two operations to the sync engine:
//   - [Provider.ListItems] : a lazy [ItemPager] over an account's items
//   - [Provider.DownloadItem] : fetch every media URL of one item into a directory
//
// Pagers are finite and single-use. Every sync lists from the first page again and
// relies on the content store to skip items already downloaded.
//
// # HTTP Implementation
//
// [HTTPProvider] speaks a JSON paging API:
//
//	GET /v1/accounts/{id}/items?count=N&cursor=C
//	{"items": [...], "next_cursor": "..."}
//
// An empty next_cursor marks the last page. The static credential token is attached as
// a bearer header by an [oauth2] client; no token exchange or refresh happens here.
// Listing and media requests share one [rate.Limiter].
//
// # Error Handling
//
// Non-2xx responses map onto sentinels from the shared package:
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrServiceUnavailable] : 429 and 5xx
//   - [shared.ErrAPIRequest] : anything else
//
// Download failures additionally wrap [shared.ErrItemDownload].
package services
