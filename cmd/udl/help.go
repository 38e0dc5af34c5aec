package main

import (
	"fmt"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

func init() {
	// Wire the colored help text into model.Args.Description()
	model.ArgsDescriptionFunc = argsDescription
}

func argsDescription() string {
	var b strings.Builder
	rule := strings.Repeat(ui.BoxHorizontal, 77)

	heading := func(title string) {
		fmt.Fprintf(&b, "\n%s%s %s%s\n", ui.ColorBold, ui.BulletDiamond, title, ui.ColorReset)
		fmt.Fprintf(&b, "%s%s%s\n", ui.ColorCyan, rule, ui.ColorReset)
	}
	cmd := func(syntax, description string) {
		fmt.Fprintf(&b, "  %s%s%s %s%-36s%s %s\n", ui.ColorGreen, ui.BulletCircle, ui.ColorReset, ui.ColorCyan, syntax, ui.ColorReset, description)
	}
	example := func(syntax string) {
		fmt.Fprintf(&b, "  %s%s%s %s%s%s\n", ui.ColorYellow, ui.BulletArrow, ui.ColorReset, ui.ColorCyan, syntax, ui.ColorReset)
	}

	fmt.Fprintf(&b, "%s%s Download audiobooks, music and videos%s\n", ui.ColorBold, ui.SymbolBook, ui.ColorReset)

	heading("AUDIBLE")
	cmd("audible login [--email E]", "Sign in through a browser window")
	cmd("audible import <file|header>", "Import cookies from an export or Cookie header")
	cmd("audible status | logout", "Check or forget the stored session")
	cmd("audible library [--refresh]", "List the titles in your library")
	cmd("audible activation [--set KEY]", "Extract or store activation bytes")
	cmd("audible download <ASIN...|all>", "Download AAX and convert to m4b or mp3")
	cmd("audible convert <in.aax> [out]", "Convert a local AAX file")

	heading("DEEZER")
	cmd("deezer login | arl [ARL]", "Capture or store the ARL cookie")
	cmd("deezer status", "Validate the stored ARL")
	cmd("deezer get <url|track:ID...>", "Capture tracks, albums or playlists")
	cmd("deezer search <query>", "Search the public catalog")

	heading("VIDEO AND RECORDING")
	cmd("video <url...> [--max-height N]", "Download via yt-dlp or the HLS fallback")
	cmd("record <out.mp3> [-d 3m]", "Record system audio")
	cmd("tags <file...>", "Print embedded tags")

	heading("QUEUE")
	cmd("queue <url|audible:ASIN|file.txt...>", "Run items one at a time")
	cmd("status | cancel", "Inspect or stop a running queue")
	cmd("completion <bash|zsh|fish>", "Print a shell completion script")

	heading("EXAMPLES")
	example("udl audible activation")
	example("udl audible download B0036S4B2G --format mp3")
	example("udl deezer get https://www.deezer.com/de/album/302127")
	example("udl video https://www.ardmediathek.de/video/... --max-height 720")
	example("udl queue urls.txt")

	return b.String()
}
