// HTTP implementation of [Provider]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

const (
	defaultProviderURL = "http://127.0.0.1:8090"
	defaultPageSize    = 50
)

// ItemPage is one page of GET /v1/accounts/{id}/items.
type ItemPage struct {
	Items      []models.ItemDescriptor `json:"items"`
	NextCursor string                  `json:"next_cursor"`
}

// HTTPProvider implements [Provider] against the JSON paging API.
//
// Every request, listing or media, waits on one shared limiter.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewHTTPProvider creates a provider client that attaches the configured bearer token to every request.
//
// A requestsPerSecond <= 0 disables pacing.
func NewHTTPProvider(cfg shared.ProviderConfig, requestsPerSecond float64, logger *log.Logger) (*HTTPProvider, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: provider token is required", shared.ErrMissingCredentials)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultProviderURL
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &HTTPProvider{
		baseURL:    baseURL,
		httpClient: oauth2.NewClient(context.Background(), src),
		limiter:    rate.NewLimiter(limit, 1),
		logger:     shared.WithLogger(logger, "svc", "provider"),
	}, nil
}

func (p *HTTPProvider) Name() string {
	return "HTTP Provider"
}

// ListItems returns a pager that fetches pages on demand, following next_cursor.
func (p *HTTPProvider) ListItems(_ context.Context, externalID string, maxCount int) ItemPager {
	size := defaultPageSize
	if maxCount > 0 && maxCount < size {
		size = maxCount
	}
	return &httpPager{provider: p, externalID: externalID, pageSize: size}
}

// DownloadItem fetches each media URL into dir as <item id>[_<n>]<ext>.
func (p *HTTPProvider) DownloadItem(ctx context.Context, item models.ItemDescriptor, dir string) ([]string, error) {
	if len(item.MediaURLs) == 0 {
		return nil, fmt.Errorf("%w: item %s has no media", shared.ErrItemDownload, item.ID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", shared.ErrItemDownload, dir, err)
	}

	base, err := SafeName(item.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrItemDownload, err)
	}

	paths := make([]string, 0, len(item.MediaURLs))
	for i, raw := range item.MediaURLs {
		mediaURL, err := p.resolve(raw)
		if err != nil {
			return paths, fmt.Errorf("%w: item %s: %v", shared.ErrItemDownload, item.ID, err)
		}

		name := base
		if len(item.MediaURLs) > 1 {
			name = fmt.Sprintf("%s_%d", base, i+1)
		}
		dest := filepath.Join(dir, name+mediaExt(mediaURL, item.Kind))

		if err := p.fetchFile(ctx, mediaURL, dest); err != nil {
			return paths, fmt.Errorf("%w: item %s: %v", shared.ErrItemDownload, item.ID, err)
		}
		p.logger.Debug("media downloaded", "item", item.ID, "path", dest)
		paths = append(paths, dest)
	}
	return paths, nil
}

func (p *HTTPProvider) listPage(ctx context.Context, externalID, cursor string, count int) (*ItemPage, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("/v1/accounts/%s/items?%s", url.PathEscape(externalID), q.Encode())

	var page ItemPage
	if err := p.doRequest(ctx, http.MethodGet, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// doRequest performs a paced, authenticated request and decodes a JSON response.
func (p *HTTPProvider) doRequest(ctx context.Context, method, endpoint string, result any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// fetchFile streams a media URL into a temp file beside dest, renaming on success.
func (p *HTTPProvider) fetchFile(ctx context.Context, mediaURL, dest string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".dlx-*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// resolve turns a relative media URL into one rooted at the provider.
func (p *HTTPProvider) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid media url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(p.baseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp struct {
		Detail string `json:"detail"`
	}
	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
		detail = errResp.Detail
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		sentinel = shared.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		sentinel = shared.ErrServiceUnavailable
	default:
		sentinel = shared.ErrAPIRequest
	}

	if detail != "" {
		return fmt.Errorf("%w (status %d): %s", sentinel, resp.StatusCode, detail)
	}
	return fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
}

func mediaExt(mediaURL string, kind models.ItemKind) string {
	if u, err := url.Parse(mediaURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if kind == models.KindGallery {
		return ".jpg"
	}
	return ".mp4"
}

type httpPager struct {
	provider   *HTTPProvider
	externalID string
	pageSize   int
	cursor     string
	done       bool
}

// Next fetches the following page. Empty pages with a cursor are skipped over.
func (pg *httpPager) Next(ctx context.Context) ([]models.ItemDescriptor, error) {
	for !pg.done {
		page, err := pg.provider.listPage(ctx, pg.externalID, pg.cursor, pg.pageSize)
		if err != nil {
			return nil, err
		}

		pg.cursor = page.NextCursor
		pg.done = page.NextCursor == ""
		if len(page.Items) > 0 {
			return page.Items, nil
		}
	}
	return nil, io.EOF
}

// SafeName checks that a remote id can be used as a single path element.
// Ids with separators, dot segments or NUL bytes would escape the target directory.
func SafeName(id string) (string, error) {
	switch {
	case id == "", id == ".", id == "..":
		return "", fmt.Errorf("%w: unusable path name %q", shared.ErrInvalidInput, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return "", fmt.Errorf("%w: path name %q contains a separator", shared.ErrInvalidInput, id)
	}
	return id, nil
}
