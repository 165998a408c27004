package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakePassageStore records added passages.
type fakePassageStore struct {
	passages []Passage
	addErr   error
}

func (f *fakePassageStore) Add(_ context.Context, p Passage) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.passages = append(f.passages, p)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAddFile_SingleChunk(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "short document")

	store := &fakePassageStore{}
	idx := NewIndexer(store, nil)

	added, err := idx.AddFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if added != 1 || len(store.passages) != 1 {
		t.Fatalf("expected one passage, got %d", len(store.passages))
	}

	p := store.passages[0]
	if p.Content != "short document" {
		t.Errorf("content = %q", p.Content)
	}
	if !strings.HasPrefix(p.ID, "file_") || !strings.HasSuffix(p.ID, "_0") {
		t.Errorf("unexpected passage ID: %s", p.ID)
	}
	if p.Metadata["file_name"] != "notes.md" {
		t.Errorf("unexpected metadata: %v", p.Metadata)
	}
}

func TestAddFile_ChunksLargeFile(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("line of repeated content\n", 600) // ~15KB
	path := writeFile(t, dir, "big.txt", content)

	store := &fakePassageStore{}
	idx := NewIndexer(store, nil)

	added, err := idx.AddFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if added < 2 {
		t.Fatalf("expected multiple chunks, got %d", added)
	}
	for i, p := range store.passages {
		if len(p.Content) > maxChunkSize {
			t.Errorf("chunk %d exceeds max size: %d", i, len(p.Content))
		}
		if p.Metadata["chunk"] == "" {
			t.Errorf("chunk %d missing chunk metadata", i)
		}
	}
}

func TestAddFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "binary.exe", "not text")

	idx := NewIndexer(&fakePassageStore{}, nil)
	if _, err := idx.AddFile(context.Background(), path); err == nil {
		t.Error("expected error for unsupported file type")
	}
}

func TestAddDirectory_SkipsIgnoredAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "kept content")
	writeFile(t, dir, "skip.bin", "binary")
	writeFile(t, dir, "ignored.md", "ignored content")
	writeFile(t, dir, ".gitignore", "ignored.md\n")

	store := &fakePassageStore{}
	idx := NewIndexer(store, nil)

	result, err := idx.AddDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	if result.FilesAdded != 1 {
		t.Errorf("FilesAdded = %d, want 1", result.FilesAdded)
	}
	if result.FilesSkipped < 2 {
		t.Errorf("FilesSkipped = %d, want at least 2", result.FilesSkipped)
	}
	if len(store.passages) != 1 || store.passages[0].Content != "kept content" {
		t.Errorf("unexpected passages: %+v", store.passages)
	}
}

func TestAddDirectory_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", "a,b,c")
	writeFile(t, dir, "notes.md", "markdown")

	store := &fakePassageStore{}
	idx := NewIndexer(store, []string{".csv"})

	result, err := idx.AddDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	if result.FilesAdded != 1 || store.passages[0].Content != "a,b,c" {
		t.Errorf("expected only the csv indexed, got %+v", store.passages)
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    int
	}{
		{name: "fits in one chunk", text: "short", size: 100, overlap: 10, want: 1},
		{name: "empty text", text: "", size: 100, overlap: 10, want: 1},
		{name: "exact boundary", text: strings.Repeat("a", 100), size: 100, overlap: 10, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitChunks(tt.text, tt.size, tt.overlap)
			if len(got) != tt.want {
				t.Errorf("got %d chunks, want %d", len(got), tt.want)
			}
		})
	}

	t.Run("overlap between chunks", func(t *testing.T) {
		text := strings.Repeat("x", 250)
		chunks := splitChunks(text, 100, 20)
		if len(chunks) < 3 {
			t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
		}
		// Each chunk after the first starts with the tail of the previous one.
		for i := 1; i < len(chunks); i++ {
			prev := chunks[i-1]
			if !strings.HasPrefix(chunks[i], prev[len(prev)-20:]) {
				t.Errorf("chunk %d does not overlap with previous", i)
			}
		}
	})

	t.Run("prefers newline boundaries", func(t *testing.T) {
		text := strings.Repeat("some line\n", 30) // 300 bytes
		chunks := splitChunks(text, 100, 10)
		if !strings.HasSuffix(chunks[0], "\n") {
			t.Errorf("first chunk does not end on newline: %q", chunks[0])
		}
	})
}
