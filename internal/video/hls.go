package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"github.com/msebastian100/universal-downloader/internal/download"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

const maxPlaylistBytes = 8 << 20

// ErrNoVariants is returned for master playlists without streams.
var ErrNoVariants = errors.New("master playlist has no variants")

// IsHLS reports whether rawURL points at an m3u8 playlist.
func IsHLS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// VariantHeight returns the vertical resolution of a variant, 0 if unknown.
func VariantHeight(v *m3u8.Variant) int {
	_, h, ok := strings.Cut(v.Resolution, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

// ChooseVariant picks the highest-bandwidth variant, or with maxHeight > 0
// the best one whose height does not exceed it. When every variant is
// taller, the smallest is used.
func ChooseVariant(master *m3u8.MasterPlaylist, maxHeight int) (*m3u8.Variant, error) {
	var variants []*m3u8.Variant
	for _, v := range master.Variants {
		if v != nil && v.URI != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}
	sort.SliceStable(variants, func(x, y int) bool {
		return variants[x].Bandwidth > variants[y].Bandwidth
	})
	if maxHeight <= 0 {
		return variants[0], nil
	}

	var smallest *m3u8.Variant
	for _, v := range variants {
		h := VariantHeight(v)
		if h > 0 && h <= maxHeight {
			return v, nil
		}
		if h > 0 && (smallest == nil || h < VariantHeight(smallest)) {
			smallest = v
		}
	}
	if smallest != nil {
		ui.PrintInfo(fmt.Sprintf("No variant at or below %dp, using %dp", maxHeight, VariantHeight(smallest)))
		return smallest, nil
	}
	return variants[0], nil
}

// resolveURI resolves a playlist reference against the playlist URL.
func resolveURI(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func (d *Downloader) fetchPlaylist(ctx context.Context, rawURL string) (m3u8.Playlist, m3u8.ListType, error) {
	data, _, err := download.Bytes(ctx, d.Client, "hls.playlist", rawURL, maxPlaylistBytes)
	if err != nil {
		return nil, 0, err
	}
	return m3u8.DecodeFrom(bytes.NewReader(data), true)
}

// resolveMedia follows a master playlist to the chosen variant and returns
// the media playlist URL with its segments.
func (d *Downloader) resolveMedia(ctx context.Context, rawURL string, maxHeight int) (string, *m3u8.MediaPlaylist, error) {
	playlist, kind, err := d.fetchPlaylist(ctx, rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	if kind == m3u8.MASTER {
		variant, err := ChooseVariant(playlist.(*m3u8.MasterPlaylist), maxHeight)
		if err != nil {
			return "", nil, err
		}
		if rawURL, err = resolveURI(rawURL, variant.URI); err != nil {
			return "", nil, err
		}
		ui.Debugf("hls variant %s (%d bps)", variant.Resolution, variant.Bandwidth)
		if playlist, kind, err = d.fetchPlaylist(ctx, rawURL); err != nil {
			return "", nil, fmt.Errorf("failed to read variant playlist: %w", err)
		}
		if kind != m3u8.MEDIA {
			return "", nil, errors.New("variant is not a media playlist")
		}
	}
	return rawURL, playlist.(*m3u8.MediaPlaylist), nil
}

// SegmentURLs lists the absolute segment URLs and the total duration of a
// media playlist.
func SegmentURLs(mediaURL string, pl *m3u8.MediaPlaylist) ([]string, time.Duration, error) {
	var (
		urls  []string
		total float64
	)
	for _, seg := range pl.Segments {
		if seg == nil {
			break
		}
		u, err := resolveURI(mediaURL, seg.URI)
		if err != nil {
			return nil, 0, err
		}
		urls = append(urls, u)
		total += seg.Duration
	}
	return urls, time.Duration(total * float64(time.Second)), nil
}

// downloadHLS saves an HLS stream to out. ffmpeg remuxes the stream when
// available; otherwise the segments are fetched directly and kept as .ts.
func (d *Downloader) downloadHLS(ctx context.Context, rawURL, out string, opts Options) (string, error) {
	mediaURL, pl, err := d.resolveMedia(ctx, rawURL, opts.MaxHeight)
	if err != nil {
		return "", err
	}
	segURLs, total, err := SegmentURLs(mediaURL, pl)
	if err != nil {
		return "", err
	}
	if len(segURLs) == 0 {
		return "", errors.New("media playlist has no segments")
	}

	if d.FFmpeg != "" {
		err := media.RemuxHLS(ctx, d.FFmpeg, mediaURL, out, total, opts.OnProgress)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		ui.PrintWarning(fmt.Sprintf("ffmpeg could not read the stream, fetching segments: %v", err))
	}

	tsPath := helpers.ReplaceExt(out, ".ts")
	err = download.Segments(ctx, d.Client, tsPath, segURLs, func(n, of int) {
		if opts.OnProgress != nil {
			opts.OnProgress(float64(n-1) / float64(of))
		}
	})
	if err != nil {
		return "", err
	}
	if d.FFmpeg == "" {
		ui.PrintWarning("ffmpeg not found, keeping the transport stream: " + tsPath)
		return tsPath, nil
	}
	if err := media.TsToMp4(ctx, d.FFmpeg, tsPath, out); err != nil {
		return tsPath, fmt.Errorf("remux of %s failed: %w", tsPath, err)
	}
	_ = os.Remove(tsPath)
	if opts.OnProgress != nil {
		opts.OnProgress(1)
	}
	return out, nil
}
