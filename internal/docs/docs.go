// Package docs discovers and reads the knowledge documents under a project's
// docs root. Documents are read-only to the engine: nothing in this package
// writes to the tree.
package docs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxFileSize bounds the size of a single document
const MaxFileSize = 10 << 20

// DefaultExtensions are the document formats indexed when none are configured
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

var (
	// ErrRootMissing is returned when the docs root does not exist
	ErrRootMissing = errors.New("docs root does not exist")
	// ErrTooLarge is returned for documents over MaxFileSize
	ErrTooLarge = errors.New("document exceeds size limit")
)

// File is one discovered document
type File struct {
	Path    string // Slash-separated, relative to the docs root
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Discover lists documents under root whose extension is in exts, sorted by
// path. Hidden files and directories are skipped.
func Discover(root string, exts []string) ([]File, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs root %s is not a directory", root)
	}

	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden entries, but never the root itself
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !HasExtension(path, exts) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, File{
			Path:    filepath.ToSlash(rel),
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read returns the content of a document. Invalid UTF-8 sequences are
// replaced so a badly encoded file still yields searchable text.
func Read(absPath string) ([]byte, error) {
	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if fi.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, absPath, fi.Size())
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	return content, nil
}

// HasExtension reports whether path ends in one of exts, case-insensitively
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// IsMarkdown reports whether a path names a markdown document
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// IsPlaceholderReadme reports whether path is a README.md inside a category
// directory. Those files describe the directory and are not knowledge entries.
func IsPlaceholderReadme(path string) bool {
	path = filepath.ToSlash(path)
	return strings.Contains(path, "/") && filepath.Base(path) == "README.md"
}

// TopDir returns the first path segment of a relative path, or "" for files
// at the root.
func TopDir(path string) string {
	path = filepath.ToSlash(path)
	if i := strings.Index(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}
