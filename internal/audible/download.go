package audible

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/download"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

const (
	downloadCodec  = "LC_128_44100_stereo"
	maxCoverBytes  = 10 << 20
	audiobookGenre = "Audiobook"
)

// ErrNotAAX is returned when the download endpoint answered with a web page
// instead of an AAX file.
var ErrNotAAX = errors.New("download returned a web page instead of an AAX file")

// DownloadURL is the AAX download endpoint for asin.
func (a *Auth) DownloadURL(asin string) string {
	q := url.Values{}
	q.Set("asin", asin)
	q.Set("codec", downloadCodec)
	return a.Base() + "/library/download?" + q.Encode()
}

// AAXPath is where DownloadBook stores book.
func AAXPath(book model.Book, outDir string) string {
	return filepath.Join(outDir, helpers.BuildFileName(book.Author, book.Title, ".aax"))
}

// DownloadBook downloads the AAX file of book into outDir. An existing file
// is kept as is.
func (a *Auth) DownloadBook(ctx context.Context, book model.Book, outDir string, onProgress func(downloaded, total, speed int64)) (string, error) {
	if !a.HasCookies() {
		return "", model.ErrNotAuthenticated
	}
	path := AAXPath(book, outDir)
	if exists, err := helpers.FileExists(path); err != nil {
		return "", err
	} else if exists {
		ui.PrintInfo("AAX already present: " + filepath.Base(path))
		return path, nil
	}

	_, err := download.File(ctx, a.Client, a.DownloadURL(book.ASIN), path, download.Options{
		Label:      "audible.download",
		OnProgress: onProgress,
		Resume:     true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", book.ASIN, err)
	}
	if err := checkAAX(path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// checkAAX rejects files that are HTML error or sign-in pages.
func checkAAX(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]
	if n == 0 {
		return fmt.Errorf("%w: empty file", ErrNotAAX)
	}
	if strings.HasPrefix(http.DetectContentType(head), "text/html") {
		return ErrNotAAX
	}
	return nil
}

// BookTags maps a library entry to audio tags.
func BookTags(book model.Book) model.TrackTags {
	return model.TrackTags{
		Title:    book.Title,
		Artist:   book.Author,
		Album:    book.Title,
		Composer: book.Narrator,
		Genre:    audiobookGenre,
	}
}

// ConvertBook decrypts in to out with the stored activation bytes and tags
// the result. book may be nil for files without library metadata.
func (a *Auth) ConvertBook(ctx context.Context, ffmpeg, in, out string, book *model.Book, onProgress func(float64)) error {
	key := a.Config.ActivationBytes
	if key == "" {
		return fmt.Errorf("%w: run 'udl audible activation' first", model.ErrInvalidActivationBytes)
	}
	if err := media.ConvertAAX(ctx, ffmpeg, in, out, key, onProgress); err != nil {
		return err
	}
	if book == nil {
		return nil
	}

	tags := BookTags(*book)
	if book.CoverURL != "" {
		data, mime, err := download.Bytes(ctx, a.Client, "audible.cover", book.CoverURL, maxCoverBytes)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Cover for %s unavailable: %v", book.Title, err))
		} else {
			tags.Cover, tags.CoverMIME = data, mime
		}
	}
	if err := media.WriteTags(out, tags); err != nil {
		ui.PrintWarning(fmt.Sprintf("Tagging %s failed: %v", filepath.Base(out), err))
	}
	return nil
}
