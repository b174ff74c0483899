// Package audiotag writes title and cover metadata into M4B audiobooks.
package audiotag

import (
	"fmt"

	"github.com/imamik/ebookcast/internal/cover"

	"github.com/Sorrow446/go-mp4tag"
)

// Tagger edits audiobook metadata in place.
type Tagger interface {
	SetTitle(path, title string) error
	SetCover(path string, img *cover.Image) error
}

// MP4 is the Tagger for MP4 containers (.m4b, .m4a).
type MP4 struct{}

var _ Tagger = MP4{}

// SetTitle sets the title atom.
func (MP4) SetTitle(path, title string) error {
	return write(path, &mp4tag.MP4Tags{Title: title}, nil)
}

// SetCover replaces the cover art. Other tags are kept.
func (MP4) SetCover(path string, img *cover.Image) error {
	imageType, err := pictureType(img.Format)
	if err != nil {
		return err
	}
	if len(img.Data) < 4 {
		return fmt.Errorf("cover image too small (%d bytes)", len(img.Data))
	}
	// The library appends pictures to the existing ones unless told otherwise.
	return write(path, &mp4tag.MP4Tags{
		Pictures: []*mp4tag.MP4Picture{{Format: imageType, Data: img.Data}},
	}, []string{"allpictures"})
}

func pictureType(f cover.Format) (mp4tag.ImageType, error) {
	switch f {
	case cover.FormatJPEG:
		return mp4tag.ImageTypeJPEG, nil
	case cover.FormatPNG:
		return mp4tag.ImageTypePNG, nil
	default:
		return 0, fmt.Errorf("unsupported cover format %s", f)
	}
}

func write(path string, tags *mp4tag.MP4Tags, remove []string) error {
	f, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if remove == nil {
		remove = []string{}
	}
	if err := f.Write(tags, remove); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}
