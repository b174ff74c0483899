// Package library scans a local ebook tree for books that still need an
// audiobook.
//
// A book is a directory that directly contains a file with one of the
// extensions in [FormatPriority]. Two layouts are supported:
//
//   - monolingual: books may sit at any depth and share one language code;
//   - multilingual: books sit at exactly language/category/book and take
//     their code from the language directory.
//
// Books whose name matches an existing "<name> TTS" folder under the
// audiobooks root, or whose relative path is in the manual exclusion list,
// are skipped.
package library
