package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// PassageStore defines the storage operations needed by Indexer.
// Interfaces are defined by the consumer, not the provider.
type PassageStore interface {
	Add(ctx context.Context, p Passage) error
}

// defaultExtensions are the file types indexed by default.
var defaultExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Passage chunking bounds. Embedding models truncate long inputs, so
// oversized files are split into overlapping chunks before indexing.
const (
	maxChunkSize = 4 * 1024
	chunkOverlap = 256
)

// IndexResult summarizes one indexing run.
type IndexResult struct {
	FilesAdded    int
	FilesSkipped  int
	FilesFailed   int
	PassagesAdded int
	Duration      time.Duration
}

// Indexer ingests local files into the passage store.
type Indexer struct {
	store      PassageStore
	extensions map[string]bool
}

// NewIndexer creates a file indexer. extensions overrides the default
// supported file types when non-empty.
func NewIndexer(store PassageStore, extensions []string) *Indexer {
	extMap := make(map[string]bool, len(defaultExtensions))
	if len(extensions) > 0 {
		for _, ext := range extensions {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		for k, v := range defaultExtensions {
			extMap[k] = v
		}
	}
	return &Indexer{store: store, extensions: extMap}
}

// AddFile indexes a single file, splitting it into passages when it
// exceeds the chunk size.
func (idx *Indexer) AddFile(ctx context.Context, filePath string) (int, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !idx.extensions[ext] {
		return 0, fmt.Errorf("unsupported file type: %s", ext)
	}

	// os.Root confines reads to the parent directory, blocking symlink
	// escapes and path traversal.
	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return 0, fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	content, err := root.ReadFile(filepath.Base(absPath))
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	return idx.addPassages(ctx, absPath, string(content))
}

// AddDirectory recursively indexes all supported files under dirPath,
// honoring the directory's .gitignore when present. Individual file
// failures are counted, not fatal.
func (idx *Indexer) AddDirectory(ctx context.Context, dirPath string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving directory path: %w", err)
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	var gitIgnore *ignore.GitIgnore
	if _, statErr := os.Stat(filepath.Join(absDir, ".gitignore")); statErr == nil {
		// A malformed .gitignore is ignored rather than failing the run.
		gitIgnore, _ = ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	}

	walkErr := filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if !idx.extensions[strings.ToLower(filepath.Ext(path))] {
			result.FilesSkipped++
			return nil
		}

		content, err := root.ReadFile(relPath)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		added, err := idx.addPassages(ctx, path, string(content))
		if err != nil {
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.PassagesAdded += added
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking directory: %w", walkErr)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// addPassages chunks content and stores each chunk as its own passage.
func (idx *Indexer) addPassages(ctx context.Context, absPath, content string) (int, error) {
	chunks := splitChunks(content, maxChunkSize, chunkOverlap)
	baseID := passageID(absPath)
	indexedAt := time.Now().Format(time.RFC3339)

	for i, chunk := range chunks {
		p := Passage{
			ID:      fmt.Sprintf("%s_%d", baseID, i),
			Content: chunk,
			Metadata: map[string]string{
				"file_path":  absPath,
				"file_name":  filepath.Base(absPath),
				"chunk":      fmt.Sprintf("%d", i),
				"indexed_at": indexedAt,
			},
		}
		if err := idx.store.Add(ctx, p); err != nil {
			return i, fmt.Errorf("adding passage %q: %w", p.ID, err)
		}
	}
	return len(chunks), nil
}

// splitChunks splits text into chunks of at most size bytes, with overlap
// bytes repeated between adjacent chunks. Chunk boundaries prefer the last
// newline inside the window so passages break on line boundaries.
func splitChunks(text string, size, overlap int) []string {
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		if nl := strings.LastIndexByte(text[start:end], '\n'); nl > size/2 {
			end = start + nl + 1
		}
		chunks = append(chunks, text[start:end])
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// passageID derives a stable passage ID prefix from the file's absolute path.
func passageID(absPath string) string {
	hash := sha256.Sum256([]byte(absPath))
	return "file_" + hex.EncodeToString(hash[:16])
}
