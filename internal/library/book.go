package library

import (
	"os"
	"path/filepath"
	"strings"
)

// CompletedMarker is the suffix of output folders holding a finished conversion.
const CompletedMarker = " TTS"

// FormatPriority lists the supported ebook extensions, best first.
var FormatPriority = []string{".epub", ".azw3", ".azw", ".mobi", ".txt", ".pdf"}

// Book describes one convertible ebook.
type Book struct {
	// Path is the absolute path of the chosen source file.
	Path string
	// Name is the book directory name.
	Name string
	// LangCode is the language passed to the converter.
	LangCode string
	// RelativePath is the slash-separated book directory path below the ebooks root.
	RelativePath string
}

// OutputName returns the audiobook name, "<Name> TTS".
func (b Book) OutputName() string {
	return b.Name + CompletedMarker
}

// OutputDir returns the slash-separated destination directory below the
// audiobooks root, mirroring the source layout.
func (b Book) OutputDir() string {
	parent := parentSlash(b.RelativePath)
	if parent == "" {
		return b.OutputName()
	}
	return parent + "/" + b.OutputName()
}

// FindBestEbookFile returns the file in dir with the highest-priority
// extension, or "" when there is none. Within one extension the first
// entry in directory order wins.
func FindBestEbookFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, ext := range FormatPriority {
		for _, e := range entries {
			if isDir(dir, e) {
				continue
			}
			if strings.HasSuffix(strings.ToLower(e.Name()), ext) {
				return filepath.Join(dir, e.Name()), nil
			}
		}
	}
	return "", nil
}

func parentSlash(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return ""
	}
	return rel[:i]
}
