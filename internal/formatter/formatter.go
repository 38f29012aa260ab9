// package formatter exports a parent's downloaded items to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dlx/internal/models"
)

// Format names an export format accepted by [Write].
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// Formats lists every supported format, in help-text order.
var Formats = []Format{FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ParseFormat accepts a format name or its common alias (md, text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ItemExport is a parent together with the items downloaded for it.
type ItemExport struct {
	Parent     *models.Parent
	Items      []*models.Item
	ExportedAt time.Time
}

// parentMetadata is the JSON shape of an export's parent.
type parentMetadata struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	Name         string     `json:"name"`
	MaxItems     int        `json:"max_items"`
	CronExpr     string     `json:"cron_expr,omitempty"`
	AutoSync     bool       `json:"auto_sync"`
	SyncStatus   string     `json:"sync_status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	ItemCount    int        `json:"item_count"`
	ExportedAt   time.Time  `json:"exported_at"`
}

type itemRecord struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Title           string     `json:"title"`
	DurationSeconds float64    `json:"duration_seconds"`
	MediaPaths      []string   `json:"media_paths"`
	RemoteCreatedAt *time.Time `json:"remote_created_at,omitempty"`
	DownloadedAt    time.Time  `json:"downloaded_at"`
}

func metadata(export *ItemExport) parentMetadata {
	p := export.Parent
	return parentMetadata{
		ID:           p.ID,
		ExternalID:   p.ExternalID,
		Name:         p.DisplayName(),
		MaxItems:     p.MaxItems,
		CronExpr:     p.Schedule.CronExpr,
		AutoSync:     p.Schedule.Enabled,
		SyncStatus:   string(p.SyncStatus),
		LastSyncedAt: p.LastSyncedAt,
		ItemCount:    len(export.Items),
		ExportedAt:   export.ExportedAt,
	}
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour. Zero renders as "-".
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ExportToCSV converts an ItemExport to CSV format with columns: ID, Kind, Title, Duration, Files, Created, Downloaded
func ExportToCSV(export *ItemExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Kind", "Title", "Duration", "Files", "Created", "Downloaded"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range export.Items {
		created := ""
		if item.RemoteCreatedAt != nil {
			created = item.RemoteCreatedAt.Format(time.RFC3339)
		}
		record := []string{
			item.ID,
			string(item.Kind),
			item.Title,
			strconv.FormatFloat(item.DurationSeconds, 'f', -1, 64),
			strings.Join(item.MediaPaths, ";"),
			created,
			item.DownloadedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an ItemExport to Markdown. Media links are made relative to baseDir when possible.
func ExportToMarkdown(export *ItemExport, baseDir string) ([]byte, error) {
	var buf bytes.Buffer
	p := export.Parent

	fmt.Fprintf(&buf, "# %s\n\n", p.DisplayName())
	fmt.Fprintf(&buf, "**Account**: %s\n", p.ExternalID)
	fmt.Fprintf(&buf, "**Items**: %d\n", len(export.Items))
	fmt.Fprintf(&buf, "**Status**: %s\n", p.SyncStatus)
	if p.LastSyncedAt != nil {
		fmt.Fprintf(&buf, "**Last synced**: %s\n", p.LastSyncedAt.Format(time.RFC3339))
	}
	if p.Schedule.Enabled && p.Schedule.CronExpr != "" {
		fmt.Fprintf(&buf, "**Schedule**: `%s`\n", p.Schedule.CronExpr)
	}

	buf.WriteString("\n## Items\n\n")
	for i, item := range export.Items {
		title := item.Title
		if title == "" {
			title = item.ID
		}
		fmt.Fprintf(&buf, "%d. %s (%s) [%s]\n", i+1, title, item.Kind, FormatDuration(item.DurationSeconds))
		for _, path := range item.MediaPaths {
			link := path
			if baseDir != "" {
				if rel, err := filepath.Rel(baseDir, path); err == nil {
					link = filepath.ToSlash(rel)
				}
			}
			if item.Kind == models.KindGallery {
				fmt.Fprintf(&buf, "   - ![%s](%s)\n", filepath.Base(path), link)
			} else {
				fmt.Fprintf(&buf, "   - [%s](%s)\n", filepath.Base(path), link)
			}
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts an ItemExport to plain text format
func ExportToText(export *ItemExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Parent: %s (%s)\n", export.Parent.DisplayName(), export.Parent.ExternalID)
	fmt.Fprintf(&buf, "Items: %d\n\n", len(export.Items))

	for i, item := range export.Items {
		fmt.Fprintf(&buf, "%d. [%s] %s - %s\n", i+1, item.Kind, item.ID, item.Title)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts an ItemExport to indented JSON with parent metadata and items.
func ExportToJSON(export *ItemExport) ([]byte, error) {
	records := make([]itemRecord, len(export.Items))
	for i, item := range export.Items {
		paths := item.MediaPaths
		if paths == nil {
			paths = []string{}
		}
		records[i] = itemRecord{
			ID:              item.ID,
			Kind:            string(item.Kind),
			Title:           item.Title,
			DurationSeconds: item.DurationSeconds,
			MediaPaths:      paths,
			RemoteCreatedAt: item.RemoteCreatedAt,
			DownloadedAt:    item.DownloadedAt,
		}
	}

	return json.MarshalIndent(struct {
		Parent parentMetadata `json:"parent"`
		Items  []itemRecord   `json:"items"`
	}{metadata(export), records}, "", "  ")
}

// ToMetadataJSON generates a JSON representation of the parent metadata (without items)
func ToMetadataJSON(export *ItemExport) ([]byte, error) {
	return json.MarshalIndent(metadata(export), "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ItemsFile    string
	MetadataFile string
}

// WriteCSVExport exports items to CSV format with accompanying metadata JSON file.
//
// Defaults to the parent's external id as the base filename & creates {base}_items.csv and {base}_metadata.json
func WriteCSVExport(export *ItemExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Parent.ExternalID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	itemsFile := baseFilepath + "_items.csv"
	if err := os.WriteFile(itemsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		ItemsFile:    itemsFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteMarkdownExport writes {dir}/README.md. The directory defaults to the parent's external id.
func WriteMarkdownExport(export *ItemExport, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = export.Parent.ExternalID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	base, err := filepath.Abs(outputDir)
	if err != nil {
		base = outputDir
	}
	mdData, err := ExportToMarkdown(export, base)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteTextExport exports items to plain text format.
//
// Defaults to {external_id}_items.txt as the filename.
func WriteTextExport(export *ItemExport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_items.txt", export.Parent.ExternalID)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport exports items to JSON format.
//
// Defaults to {external_id}_items.json as the filename.
func WriteJSONExport(export *ItemExport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_items.json", export.Parent.ExternalID)
	}

	data, err := ExportToJSON(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}

	return path, nil
}

// Write exports in the given format and returns the created files.
func Write(format Format, export *ItemExport, output string) ([]string, error) {
	switch format {
	case FormatCSV:
		res, err := WriteCSVExport(export, output)
		if err != nil {
			return nil, err
		}
		return []string{res.ItemsFile, res.MetadataFile}, nil
	case FormatMarkdown:
		path, err := WriteMarkdownExport(export, output)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatText:
		path, err := WriteTextExport(export, output)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatJSON:
		path, err := WriteJSONExport(export, output)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}
