// Package download streams remote files to disk with progress accounting.
// Partial downloads are written to a .part file and renamed on success, so a
// file at the final path is always complete.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/model"
)

// PartSuffix is appended to files while they are being written.
const PartSuffix = ".part"

// Options controls a single file download.
type Options struct {
	// Label names the request in the API log.
	Label string
	// Header is added to the request (Referer, Cookie, ...).
	Header http.Header
	// OnProgress receives bytes downloaded, total (0 when unknown) and speed in bytes/s.
	OnProgress func(downloaded, total, speed int64)
	// Resume continues an existing .part file with a Range request.
	Resume bool
}

// ErrUnexpectedStatus wraps non-2xx download responses.
var ErrUnexpectedStatus = errors.New("unexpected download status")

type counter struct {
	wc *model.WriteCounter
}

func (c *counter) Write(p []byte) (int, error) {
	n := len(p)
	c.wc.Downloaded += int64(n)
	if c.wc.Total > 0 {
		c.wc.Percentage = int(float64(c.wc.Downloaded) / float64(c.wc.Total) * model.MaxProgressPercent)
	}
	var speed int64
	if elapsed := time.Now().UnixMilli() - c.wc.StartTime; elapsed > 0 {
		speed = c.wc.Downloaded * model.KBpsDivisor / elapsed
	}
	if c.wc.OnProgress != nil {
		c.wc.OnProgress(c.wc.Downloaded, c.wc.Total, speed)
	}
	return n, nil
}

// File downloads rawURL to path through the API gateway and returns the number
// of bytes in the finished file.
func File(ctx context.Context, client *api.Client, rawURL, path string, opts Options) (int64, error) {
	if opts.Label == "" {
		opts.Label = "download"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	partPath := path + PartSuffix

	var startByte int64
	if opts.Resume {
		if info, err := os.Stat(partPath); err == nil {
			startByte = info.Size()
		}
	}

	resp, err := client.Do(ctx, opts.Label, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range opts.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if startByte > 0 {
			req.Header.Set("Range", "bytes="+strconv.FormatInt(startByte, 10)+"-")
		}
		return req, nil
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		startByte = 0
		flags |= os.O_TRUNC
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	f, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return 0, err
	}

	total := resp.ContentLength
	if total > 0 {
		total += startByte
	}
	totalStr := model.UnknownSizeLabelLower
	if total > 0 {
		totalStr = humanize.Bytes(uint64(total))
	}
	c := &counter{wc: &model.WriteCounter{
		Total:      max(total, 0),
		TotalStr:   totalStr,
		Downloaded: startByte,
		StartTime:  time.Now().UnixMilli(),
		OnProgress: opts.OnProgress,
	}}

	_, copyErr := io.Copy(f, io.TeeReader(resp.Body, c))
	closeErr := f.Close()
	if copyErr != nil {
		if !opts.Resume {
			os.Remove(partPath)
		}
		return c.wc.Downloaded, copyErr
	}
	if closeErr != nil {
		return c.wc.Downloaded, closeErr
	}
	if err := os.Rename(partPath, path); err != nil {
		return c.wc.Downloaded, err
	}
	return c.wc.Downloaded, nil
}

// Bytes fetches a small resource (cover art, playlists) fully into memory.
// Bodies larger than limit bytes are rejected.
func Bytes(ctx context.Context, client *api.Client, label, rawURL string, limit int64) ([]byte, string, error) {
	resp, err := client.Get(ctx, label, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%s exceeds %s", rawURL, humanize.Bytes(uint64(limit)))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Segments concatenates HLS media segments into path, reporting the segment
// number as it goes.
func Segments(ctx context.Context, client *api.Client, path string, segURLs []string, onProgress func(segNum, segTotal int)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	partPath := path + PartSuffix
	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		f.Close()
		os.Remove(partPath)
		return err
	}

	for i, segURL := range segURLs {
		if onProgress != nil {
			onProgress(i+1, len(segURLs))
		}
		resp, err := client.Get(ctx, "hls.segment", segURL, nil)
		if err != nil {
			return fail(err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fail(fmt.Errorf("%w: segment %d: %s", ErrUnexpectedStatus, i+1, resp.Status))
		}
		_, err = io.Copy(f, resp.Body)
		resp.Body.Close()
		if err != nil {
			return fail(err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return err
	}
	return os.Rename(partPath, path)
}
