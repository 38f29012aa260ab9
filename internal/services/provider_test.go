package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

func newTestProvider(t *testing.T, baseURL string) *HTTPProvider {
	t.Helper()
	p, err := NewHTTPProvider(shared.ProviderConfig{Token: "test-token", BaseURL: baseURL}, 0, nil)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

func TestHTTPProvider(t *testing.T) {
	t.Run("NewHTTPProvider", func(t *testing.T) {
		t.Run("requires token", func(t *testing.T) {
			_, err := NewHTTPProvider(shared.ProviderConfig{}, 1, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Fatalf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("uses default URL", func(t *testing.T) {
			p, err := NewHTTPProvider(shared.ProviderConfig{Token: "x"}, 1, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if p.baseURL != defaultProviderURL {
				t.Errorf("expected baseURL to be %s, got %s", defaultProviderURL, p.baseURL)
			}
		})
	})

	t.Run("ListItems", func(t *testing.T) {
		t.Run("follows cursors until exhausted", func(t *testing.T) {
			pages := map[string]ItemPage{
				"": {
					Items:      []models.ItemDescriptor{{ID: "a", Kind: models.KindVideo}, {ID: "b", Kind: models.KindVideo}},
					NextCursor: "c1",
				},
				"c1": {Items: []models.ItemDescriptor{}, NextCursor: "c2"},
				"c2": {Items: []models.ItemDescriptor{{ID: "c", Kind: models.KindGallery}}},
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/accounts/acct-1/items" {
					t.Errorf("expected path /v1/accounts/acct-1/items, got %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
					t.Errorf("expected bearer token, got %q", got)
				}
				if got := r.URL.Query().Get("count"); got != "10" {
					t.Errorf("expected count=10, got %s", got)
				}

				page, ok := pages[r.URL.Query().Get("cursor")]
				if !ok {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(page)
			}))
			defer server.Close()

			p := newTestProvider(t, server.URL)
			pager := p.ListItems(context.Background(), "acct-1", 10)

			var ids []string
			for {
				items, err := pager.Next(context.Background())
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				for _, item := range items {
					ids = append(ids, item.ID)
				}
			}

			if strings.Join(ids, ",") != "a,b,c" {
				t.Errorf("expected a,b,c, got %v", ids)
			}

			if _, err := pager.Next(context.Background()); !errors.Is(err, io.EOF) {
				t.Errorf("expected exhausted pager to keep returning EOF, got %v", err)
			}
		})

		t.Run("maps status codes", func(t *testing.T) {
			tests := []struct {
				status int
				want   error
			}{
				{http.StatusNotFound, shared.ErrNotFound},
				{http.StatusTooManyRequests, shared.ErrServiceUnavailable},
				{http.StatusBadGateway, shared.ErrServiceUnavailable},
				{http.StatusUnauthorized, shared.ErrAPIRequest},
			}

			for _, tt := range tests {
				t.Run(http.StatusText(tt.status), func(t *testing.T) {
					server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						w.WriteHeader(tt.status)
						json.NewEncoder(w).Encode(map[string]string{"detail": "nope"})
					}))
					defer server.Close()

					_, err := newTestProvider(t, server.URL).ListItems(context.Background(), "acct", 0).Next(context.Background())
					if !errors.Is(err, tt.want) {
						t.Fatalf("expected %v, got %v", tt.want, err)
					}
					if !strings.Contains(err.Error(), "nope") {
						t.Errorf("expected detail in error, got %v", err)
					}
				})
			}
		})
	})

	t.Run("DownloadItem", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/media/clip.mp4":
				fmt.Fprint(w, "video-bytes")
			case "/media/1.png", "/media/2.png":
				fmt.Fprint(w, "image-"+filepath.Base(r.URL.Path))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		p := newTestProvider(t, server.URL)

		t.Run("single media", func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "acct-1")
			item := models.ItemDescriptor{ID: "v1", Kind: models.KindVideo, MediaURLs: []string{server.URL + "/media/clip.mp4"}}

			paths, err := p.DownloadItem(context.Background(), item, dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(paths) != 1 || paths[0] != filepath.Join(dir, "v1.mp4") {
				t.Fatalf("unexpected paths %v", paths)
			}
			data, err := os.ReadFile(paths[0])
			if err != nil || string(data) != "video-bytes" {
				t.Errorf("unexpected file content %q (%v)", data, err)
			}
		})

		t.Run("gallery with relative urls", func(t *testing.T) {
			dir := t.TempDir()
			item := models.ItemDescriptor{ID: "g1", Kind: models.KindGallery, MediaURLs: []string{"media/1.png", "/media/2.png"}}

			paths, err := p.DownloadItem(context.Background(), item, dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := []string{filepath.Join(dir, "g1_1.png"), filepath.Join(dir, "g1_2.png")}
			if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
				t.Errorf("expected %v, got %v", want, paths)
			}
		})

		t.Run("missing media", func(t *testing.T) {
			item := models.ItemDescriptor{ID: "x", Kind: models.KindVideo, MediaURLs: []string{"/media/missing.mp4"}}
			_, err := p.DownloadItem(context.Background(), item, t.TempDir())
			if !errors.Is(err, shared.ErrItemDownload) {
				t.Fatalf("expected ErrItemDownload, got %v", err)
			}
		})

		t.Run("no media urls", func(t *testing.T) {
			_, err := p.DownloadItem(context.Background(), models.ItemDescriptor{ID: "x"}, t.TempDir())
			if !errors.Is(err, shared.ErrItemDownload) {
				t.Fatalf("expected ErrItemDownload, got %v", err)
			}
		})

		t.Run("rejects ids that leave the directory", func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "a", "b")

			for _, id := range []string{"../../escaped", "..", "nested/name", `win\name`} {
				item := models.ItemDescriptor{ID: id, Kind: models.KindVideo, MediaURLs: []string{"/media/clip.mp4"}}
				paths, err := p.DownloadItem(context.Background(), item, dir)
				if !errors.Is(err, shared.ErrItemDownload) || !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("id %q: expected ErrItemDownload and ErrInvalidInput, got %v", id, err)
				}
				if len(paths) != 0 {
					t.Errorf("id %q: expected no paths, got %v", id, paths)
				}
			}

			if _, err := os.Stat(filepath.Join(root, "escaped.mp4")); !os.IsNotExist(err) {
				t.Errorf("expected no file outside the download dir, stat err %v", err)
			}
		})
	})
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"abc123", true},
		{"clip.v2", true},
		{"..hidden", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../x", false},
		{"a/b", false},
		{`a\b`, false},
		{"a\x00b", false},
	}

	for _, tt := range tests {
		name, err := SafeName(tt.id)
		if tt.ok {
			if err != nil || name != tt.id {
				t.Errorf("SafeName(%q) = %q, %v; want %q", tt.id, name, err, tt.id)
			}
			continue
		}
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("SafeName(%q): expected ErrInvalidInput, got %v", tt.id, err)
		}
	}
}
