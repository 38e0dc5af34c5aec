package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/zhaarey/go-mp4tag"
)

// WriteTags tags path according to its extension.
func WriteTags(path string, t model.TrackTags) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return TagMP3(path, t)
	case ".m4a", ".m4b", ".mp4":
		return TagMP4(path, t)
	default:
		return fmt.Errorf("tagging not supported for %s", filepath.Ext(path))
	}
}

// TagMP3 replaces the ID3v2 tag of path.
func TagMP3(path string, t model.TrackTags) error {
	mp3, err := id3v2.Open(path, id3v2.Options{Parse: false})
	if err != nil {
		return fmt.Errorf("failed to open %s for tagging: %w", path, err)
	}
	defer mp3.Close()

	mp3.SetDefaultEncoding(id3v2.EncodingUTF8)
	mp3.SetTitle(t.Title)
	mp3.SetArtist(t.Artist)
	if t.Album != "" {
		mp3.SetAlbum(t.Album)
	}
	if t.Genre != "" {
		mp3.SetGenre(t.Genre)
	}
	if t.Year != "" {
		mp3.SetYear(t.Year)
	}
	if t.Composer != "" {
		mp3.AddTextFrame(mp3.CommonID("Composer"), id3v2.EncodingUTF8, t.Composer)
	}
	if t.TrackNumber > 0 {
		mp3.AddTextFrame(mp3.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(t.TrackNumber))
	}
	if len(t.Cover) > 0 {
		mp3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    coverMIME(t),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     t.Cover,
		})
	}
	if err := mp3.Save(); err != nil {
		return fmt.Errorf("failed to save tags to %s: %w", path, err)
	}
	return nil
}

// TagMP4 writes iTunes-style atoms to an MP4/M4B file.
func TagMP4(path string, t model.TrackTags) error {
	tags := &mp4tag.MP4Tags{
		Title:       t.Title,
		TitleSort:   t.Title,
		Artist:      t.Artist,
		ArtistSort:  t.Artist,
		Album:       t.Album,
		AlbumSort:   t.Album,
		AlbumArtist: t.Artist,
		Composer:    t.Composer,
		CustomGenre: t.Genre,
		Date:        t.Year,
		TrackNumber: int16(t.TrackNumber),
	}
	if len(t.Cover) > 0 {
		tags.Pictures = []*mp4tag.MP4Picture{{Data: t.Cover}}
	}

	mp4, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for tagging: %w", path, err)
	}
	defer mp4.Close()
	if err := mp4.Write(tags, []string{}); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

// ReadTags reads the common tags and cover of any format dhowden/tag knows.
func ReadTags(path string) (model.TrackTags, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.TrackTags{}, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return model.TrackTags{}, "", fmt.Errorf("failed to read tags: %w", err)
	}
	track, _ := m.Track()
	out := model.TrackTags{
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		Composer:    m.Composer(),
		Genre:       m.Genre(),
		TrackNumber: track,
	}
	if m.Year() > 0 {
		out.Year = strconv.Itoa(m.Year())
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		out.Cover = pic.Data
		out.CoverMIME = pic.MIMEType
	}
	return out, string(m.Format()), nil
}

func coverMIME(t model.TrackTags) string {
	if t.CoverMIME != "" && strings.HasPrefix(t.CoverMIME, "image/") {
		return t.CoverMIME
	}
	return http.DetectContentType(t.Cover)
}
