package testing

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/services"
)

// Descriptors builds n video descriptors with ids prefix-1 .. prefix-n.
func Descriptors(prefix string, n int) []models.ItemDescriptor {
	items := make([]models.ItemDescriptor, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s-%d", prefix, i)
		items = append(items, models.ItemDescriptor{
			ID:        id,
			Kind:      models.KindVideo,
			Title:     "item " + id,
			MediaURLs: []string{"https://media.example.com/" + id + ".mp4"},
		})
	}
	return items
}

// SlicePager serves fixed pages, then [io.EOF].
type SlicePager struct {
	mu    sync.Mutex
	pages [][]models.ItemDescriptor
	err   error // returned after the pages instead of io.EOF
	next  int
}

func NewSlicePager(pages ...[]models.ItemDescriptor) *SlicePager {
	return &SlicePager{pages: pages}
}

func (p *SlicePager) Next(ctx context.Context) ([]models.ItemDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next < len(p.pages) {
		page := p.pages[p.next]
		p.next++
		return page, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	return nil, io.EOF
}

// MockProvider is a test double for [services.Provider].
//
// Downloads block on Gate when it is set; Started receives each item id as its download begins.
type MockProvider struct {
	Gate    chan struct{}
	Started chan string

	mu          sync.Mutex
	pages       map[string][][]models.ItemDescriptor
	listErr     map[string]error
	downloadErr map[string]error
	panicOn     map[string]bool
	downloads   []string
	listCalls   map[string]int

	inFlight atomic.Int64
	peak     atomic.Int64
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		pages:       make(map[string][][]models.ItemDescriptor),
		listErr:     make(map[string]error),
		downloadErr: make(map[string]error),
		panicOn:     make(map[string]bool),
		listCalls:   make(map[string]int),
	}
}

// AddItems appends items for an account, split into pages of pageSize.
func (m *MockProvider) AddItems(externalID string, pageSize int, items ...models.ItemDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pageSize < 1 {
		pageSize = len(items)
	}
	for start := 0; start < len(items); start += pageSize {
		end := min(start+pageSize, len(items))
		m.pages[externalID] = append(m.pages[externalID], items[start:end])
	}
}

// FailListing makes listing for the account fail with err after its pages are served.
func (m *MockProvider) FailListing(externalID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr[externalID] = err
}

// FailDownload makes the item's download return err.
func (m *MockProvider) FailDownload(itemID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadErr[itemID] = err
}

// PanicOnDownload makes the item's download panic.
func (m *MockProvider) PanicOnDownload(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicOn[itemID] = true
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) ListItems(_ context.Context, externalID string, _ int) services.ItemPager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls[externalID]++
	pager := NewSlicePager(m.pages[externalID]...)
	pager.err = m.listErr[externalID]
	return pager
}

func (m *MockProvider) DownloadItem(ctx context.Context, item models.ItemDescriptor, dir string) ([]string, error) {
	m.mu.Lock()
	m.downloads = append(m.downloads, item.ID)
	err := m.downloadErr[item.ID]
	shouldPanic := m.panicOn[item.ID]
	m.mu.Unlock()

	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.Started != nil {
		m.Started <- item.ID
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if shouldPanic {
		panic("download exploded: " + item.ID)
	}
	if err != nil {
		return nil, err
	}

	if item.IsGallery() {
		paths := make([]string, 0, len(item.MediaURLs))
		for i := range item.MediaURLs {
			paths = append(paths, filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", item.ID, i+1)))
		}
		return paths, nil
	}
	return []string{filepath.Join(dir, item.ID+".mp4")}, nil
}

// Downloads returns the ids passed to DownloadItem in call order.
func (m *MockProvider) Downloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.downloads...)
}

func (m *MockProvider) ListCalls(externalID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[externalID]
}

// PeakInFlight returns the most concurrent DownloadItem calls observed.
func (m *MockProvider) PeakInFlight() int { return int(m.peak.Load()) }

// MockProcessor is a test double for media.Processor that tracks concurrent probes.
type MockProcessor struct {
	Duration float64
	Err      error
	Delay    time.Duration
	Hold     chan struct{} // When set, each probe waits for a receive or close

	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (m *MockProcessor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.Hold != nil {
		select {
		case <-m.Hold:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return m.Duration, m.Err
}

func (m *MockProcessor) Calls() int        { return int(m.calls.Load()) }
func (m *MockProcessor) PeakInFlight() int { return int(m.peak.Load()) }
