// Package archive writes and reads the JSON archive of normalized posts.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
)

// TimestampLayout formats the export time in archive filenames
const TimestampLayout = "20060102_150405"

// Image is one image attachment of a post
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text"`
}

// Post is a normalized feed post
type Post struct {
	CreatedAt string  `json:"created_at"`
	Text      string  `json:"text"`
	Images    []Image `json:"images"`
}

// Filename returns <handle>_posts_<YYYYMMDD_HHMMSS>.json
func Filename(handle string, ts time.Time) string {
	return fmt.Sprintf("%s_posts_%s.json", handle, ts.Format(TimestampLayout))
}

// TrimmedFilename returns <handle>_posts_<YYYYMMDD_HHMMSS>_trimmed.json
func TrimmedFilename(handle string, ts time.Time) string {
	return fmt.Sprintf("%s_posts_%s_trimmed.json", handle, ts.Format(TimestampLayout))
}

// Manager writes archives into an output directory
type Manager struct {
	outputDir string
	logger    logger.Logger
	now       func() time.Time
}

// NewManager creates a new archive manager
func NewManager(outputDir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if outputDir == "" {
		outputDir = "."
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		outputDir: outputDir,
		logger:    log,
		now:       time.Now,
	}, nil
}

// WithLogger returns a copy of the manager that logs to log
func (m *Manager) WithLogger(log logger.Logger) *Manager {
	c := *m
	c.logger = log
	return &c
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Save sorts posts newest first in place and writes them to a new
// timestamped archive. It returns the path written.
func (m *Manager) Save(handle string, posts []Post) (string, error) {
	SortNewestFirst(posts)
	path := filepath.Join(m.outputDir, Filename(handle, m.now()))
	if err := m.write(path, posts); err != nil {
		return "", err
	}
	return path, nil
}

// SaveTrimmed writes posts, already ordered, to a _trimmed archive
func (m *Manager) SaveTrimmed(handle string, posts []Post) (string, error) {
	path := filepath.Join(m.outputDir, TrimmedFilename(handle, m.now()))
	if err := m.write(path, posts); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) write(path string, posts []Post) error {
	data, err := Encode(posts)
	if err != nil {
		return err
	}
	if err := WriteFile(path, data); err != nil {
		return err
	}

	m.logger.InfoWithFields("archive written", map[string]interface{}{
		"path":  path,
		"posts": len(posts),
		"bytes": len(data),
	})
	return nil
}

// Encode renders posts as indented UTF-8 JSON. HTML characters are kept
// as is and a post without images gets an empty array, never null.
func Encode(posts []Post) ([]byte, error) {
	out := make([]Post, len(posts))
	for i, p := range posts {
		if p.Images == nil {
			p.Images = []Image{}
		}
		out[i] = p
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("failed to encode archive: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes data to path through a temporary file and rename
func WriteFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary archive file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write archive: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync archive file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename archive file: %w", err)
	}
	return nil
}

// Read parses an archive file
func Read(path string) ([]Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var posts []Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("failed to parse archive %s: %w", path, err)
	}
	return posts, nil
}

// Layouts tried when comparing created_at values as instants. Some clients
// omit the zone; those values are taken as UTC.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

// SortKey maps created_at to a string that orders like the instant it
// names. Unparsable values are returned unchanged.
func SortKey(createdAt string) string {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, createdAt); err == nil {
			return t.UTC().Format(sortKeyLayout)
		}
	}
	return createdAt
}

// SortNewestFirst stable-sorts posts by created_at descending. Posts with
// equal timestamps keep their arrival order.
func SortNewestFirst(posts []Post) {
	keys := make([]string, len(posts))
	for i := range posts {
		keys[i] = SortKey(posts[i].CreatedAt)
	}
	sort.Stable(byKeyDesc{posts: posts, keys: keys})
}

// IsSortedNewestFirst reports whether posts are ordered by created_at
// descending
func IsSortedNewestFirst(posts []Post) bool {
	for i := 1; i < len(posts); i++ {
		if SortKey(posts[i-1].CreatedAt) < SortKey(posts[i].CreatedAt) {
			return false
		}
	}
	return true
}

type byKeyDesc struct {
	posts []Post
	keys  []string
}

func (b byKeyDesc) Len() int           { return len(b.posts) }
func (b byKeyDesc) Less(i, j int) bool { return b.keys[i] > b.keys[j] }
func (b byKeyDesc) Swap(i, j int) {
	b.posts[i], b.posts[j] = b.posts[j], b.posts[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}
