package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LanguageResolver maps a language directory name to a language code.
type LanguageResolver interface {
	LanguageCode(dir string) string
}

// Options configures a scan.
type Options struct {
	EbooksRoot     string
	AudiobooksRoot string
	// MonolingualCode selects monolingual mode when non-empty.
	MonolingualCode string
	// Languages resolves codes in multilingual mode.
	Languages LanguageResolver
	// ManualExclusions holds slash-separated relative paths to skip.
	ManualExclusions map[string]struct{}
}

// Scanner finds books to convert.
type Scanner struct {
	opts   Options
	logger zerolog.Logger
}

// NewScanner creates a scanner.
func NewScanner(opts Options, logger zerolog.Logger) *Scanner {
	return &Scanner{opts: opts, logger: logger}
}

// Scan returns the books that are not yet converted or excluded.
func (s *Scanner) Scan() ([]Book, error) {
	root, err := filepath.Abs(s.opts.EbooksRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ebooks root: %w", err)
	}
	completed, err := CompletedBooks(s.opts.AudiobooksRoot)
	if err != nil {
		return nil, err
	}
	if s.opts.MonolingualCode != "" {
		s.logger.Info().Str("language", s.opts.MonolingualCode).Msg("Scanning in monolingual mode")
		return s.scanMonolingual(root, completed)
	}
	s.logger.Info().Msg("Scanning in multilingual mode (language/category/book)")
	return s.scanMultilingual(root, completed)
}

// CompletedBooks returns the lower-cased names of books that already have an
// output folder ending in CompletedMarker anywhere below root.
func CompletedBooks(root string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if root == "" {
		return set, nil
	}
	marker := strings.ToLower(CompletedMarker)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		name := strings.ToLower(d.Name())
		if strings.HasSuffix(name, marker) {
			set[strings.TrimSuffix(name, marker)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audiobooks root %s: %w", root, err)
	}
	return set, nil
}

func (s *Scanner) excluded(name, rel string, completed map[string]struct{}) bool {
	if _, ok := completed[strings.ToLower(name)]; ok {
		return true
	}
	_, ok := s.opts.ManualExclusions[rel]
	return ok
}

func (s *Scanner) scanMonolingual(root string, completed map[string]struct{}) ([]Book, error) {
	var books []Book
	if err := s.walkMonolingual(root, root, completed, map[string]struct{}{}, &books); err != nil {
		return nil, fmt.Errorf("failed to scan ebooks root %s: %w", root, err)
	}
	return books, nil
}

// walkMonolingual descends dir until it finds book directories. Symlinked
// directories are followed; seen holds resolved paths to break cycles.
func (s *Scanner) walkMonolingual(root, dir string, completed, seen map[string]struct{}, books *[]Book) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if _, ok := seen[resolved]; ok {
		return nil
	}
	seen[resolved] = struct{}{}

	names, err := subdirs(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		best, err := FindBestEbookFile(path)
		if err != nil {
			return err
		}
		if best == "" {
			if err := s.walkMonolingual(root, path, completed, seen, books); err != nil {
				return err
			}
			continue
		}

		// A book directory is a leaf, never a category.
		rel, err := relSlash(root, path)
		if err != nil {
			return err
		}
		if !s.excluded(name, rel, completed) {
			*books = append(*books, Book{
				Path:         best,
				Name:         name,
				LangCode:     s.opts.MonolingualCode,
				RelativePath: rel,
			})
		}
	}
	return nil
}

func (s *Scanner) scanMultilingual(root string, completed map[string]struct{}) ([]Book, error) {
	var books []Book

	langDirs, err := subdirs(root)
	if err != nil {
		return nil, err
	}
	for _, lang := range langDirs {
		code := DefaultCode
		if s.opts.Languages != nil {
			code = s.opts.Languages.LanguageCode(lang)
		}

		categories, err := subdirs(filepath.Join(root, lang))
		if err != nil {
			return nil, err
		}
		for _, category := range categories {
			bookDirs, err := subdirs(filepath.Join(root, lang, category))
			if err != nil {
				return nil, err
			}
			for _, name := range bookDirs {
				rel := lang + "/" + category + "/" + name
				if s.excluded(name, rel, completed) {
					continue
				}
				best, err := FindBestEbookFile(filepath.Join(root, lang, category, name))
				if err != nil {
					return nil, err
				}
				if best == "" {
					continue
				}
				books = append(books, Book{
					Path:         best,
					Name:         name,
					LangCode:     code,
					RelativePath: rel,
				})
			}
		}
	}
	return books, nil
}

// DefaultCode is used in multilingual mode when no resolver is configured.
const DefaultCode = "en"

// subdirs lists the directories in dir, including symlinks to directories.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if isDir(dir, e) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func isDir(dir string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}

func relSlash(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
