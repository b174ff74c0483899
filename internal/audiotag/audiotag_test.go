package audiotag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/imamik/ebookcast/internal/cover"

	"github.com/Sorrow446/go-mp4tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPictureType(t *testing.T) {
	got, err := pictureType(cover.FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, mp4tag.ImageTypeJPEG, got)

	got, err = pictureType(cover.FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, mp4tag.ImageTypePNG, got)

	_, err = pictureType(cover.Format(0))
	require.Error(t, err)
}

func TestMP4_RejectsNonMP4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.m4b")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an mp4 container"), 0o644))

	err := MP4{}.SetTitle(path, "Foo TTS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestMP4_MissingFile(t *testing.T) {
	err := MP4{}.SetCover(filepath.Join(t.TempDir(), "missing.m4b"), &cover.Image{Format: cover.FormatPNG, Data: []byte{0x89, 1, 2, 3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}

func TestMP4_UnsupportedCover(t *testing.T) {
	err := MP4{}.SetCover("unused.m4b", &cover.Image{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported cover format")
}

// fixtureCopy copies the untitled M4B fixture into a temp dir.
func fixtureCopy(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "silence.m4b"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "Foo TTS.m4b")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readTags(t *testing.T, path string) *mp4tag.MP4Tags {
	t.Helper()
	f, err := mp4tag.Open(path)
	require.NoError(t, err)
	defer f.Close()
	tags, err := f.Read()
	require.NoError(t, err)
	return tags
}

func TestMP4_SetTitle(t *testing.T) {
	path := fixtureCopy(t)

	require.NoError(t, MP4{}.SetTitle(path, "Foo TTS"))

	assert.Equal(t, "Foo TTS", readTags(t, path).Title)
}

func TestMP4_SetCoverKeepsTitle(t *testing.T) {
	path := fixtureCopy(t)
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

	require.NoError(t, MP4{}.SetTitle(path, "Foo TTS"))
	require.NoError(t, MP4{}.SetCover(path, &cover.Image{Format: cover.FormatJPEG, Data: jpeg}))

	tags := readTags(t, path)
	assert.Equal(t, "Foo TTS", tags.Title)
	require.Len(t, tags.Pictures, 1)
	assert.Equal(t, mp4tag.ImageTypeJPEG, tags.Pictures[0].Format)
	assert.Equal(t, jpeg, tags.Pictures[0].Data)

	require.NoError(t, MP4{}.SetCover(path, &cover.Image{Format: cover.FormatPNG, Data: png}))

	tags = readTags(t, path)
	assert.Equal(t, "Foo TTS", tags.Title)
	require.Len(t, tags.Pictures, 1, "a new cover replaces the old one")
	assert.Equal(t, mp4tag.ImageTypePNG, tags.Pictures[0].Format)
	assert.Equal(t, png, tags.Pictures[0].Data)
}

func TestMP4_TinyCover(t *testing.T) {
	err := MP4{}.SetCover(fixtureCopy(t), &cover.Image{Format: cover.FormatJPEG, Data: []byte{0xff}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}
