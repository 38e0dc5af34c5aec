package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/runtime"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

func runTags(cmd *model.TagsCmd) error {
	var errs []error
	for _, f := range cmd.Files {
		tags, format, err := media.ReadTags(f)
		if err != nil {
			ui.PrintError(fmt.Sprintf("%s: %v", f, err))
			errs = append(errs, err)
			continue
		}
		ui.PrintSection(f)
		ui.PrintKeyValue("Format", format, ui.ColorCyan)
		ui.PrintKeyValue("Title", tags.Title, ui.ColorReset)
		ui.PrintKeyValue("Artist", tags.Artist, ui.ColorReset)
		ui.PrintKeyValue("Album", tags.Album, ui.ColorReset)
		if tags.Composer != "" {
			ui.PrintKeyValue("Composer", tags.Composer, ui.ColorReset)
		}
		if tags.Genre != "" {
			ui.PrintKeyValue("Genre", tags.Genre, ui.ColorReset)
		}
		if tags.Year != "" {
			ui.PrintKeyValue("Year", tags.Year, ui.ColorReset)
		}
		if tags.TrackNumber > 0 {
			ui.PrintKeyValue("Track", strconv.Itoa(tags.TrackNumber), ui.ColorReset)
		}
		if len(tags.Cover) > 0 {
			ui.PrintKeyValue("Cover", fmt.Sprintf("%s, %s", tags.CoverMIME, ui.DescribeSize(int64(len(tags.Cover)))), ui.ColorReset)
		}
	}
	return errors.Join(errs...)
}

// runCancel asks a running queue to stop through the control file.
func runCancel() error {
	st, err := runtime.ReadRuntimeStatus()
	if err != nil || st.State != runtime.StateRunning || !runtime.IsProcessAlive(st.PID) {
		ui.PrintInfo("No queue is running")
		return nil
	}
	if err := runtime.RequestRuntimeCancel(); err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Cancel requested for pid %d", st.PID))
	return nil
}
