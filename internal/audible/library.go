package audible

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/msebastian100/universal-downloader/internal/cache"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

const (
	libraryPageSize = 50
	maxLibraryPages = 200
	// LibraryCacheTTL is how long a cached library listing stays fresh.
	LibraryCacheTTL = 24 * time.Hour
	libraryCacheKey = model.ProviderAudible
)

var runtimeText = regexp.MustCompile(`\d+\s*(Std|hrs?|Min|mins?)\b`)

// ParseLibraryPage extracts the books of one /library/titles page. The bool
// reports whether the page links to a next page.
func ParseLibraryPage(r io.Reader) ([]model.Book, bool, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse library page: %w", err)
	}

	var books []model.Book
	seen := make(map[string]bool)
	doc.Find(".adbl-library-content-row").Each(func(_ int, row *goquery.Selection) {
		b := parseLibraryRow(row)
		if b.ASIN == "" || b.Title == "" || seen[b.ASIN] {
			return
		}
		seen[b.ASIN] = true
		books = append(books, b)
	})

	hasNext := doc.Find("a[rel='next']").Length() > 0
	doc.Find(".nextButton").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("bc-button-disabled") {
			return
		}
		if s.Find("a, button").Not("[disabled], [aria-disabled='true']").Length() > 0 {
			hasNext = true
		}
	})
	return books, hasNext, nil
}

func parseLibraryRow(row *goquery.Selection) model.Book {
	var b model.Book

	if id, ok := row.Attr("id"); ok {
		b.ASIN = strings.TrimPrefix(id, "adbl-library-content-row-")
		if b.ASIN == id {
			b.ASIN = ""
		}
	}
	if b.ASIN == "" {
		if asin, ok := row.Find("[data-asin]").First().Attr("data-asin"); ok {
			b.ASIN = asin
		}
	}
	b.ASIN = strings.TrimSpace(b.ASIN)

	title := row.Find(".bc-size-headline3").First()
	if title.Length() == 0 {
		title = row.Find("a[href*='/pd/']").First()
	}
	b.Title = cleanText(title.Text())
	b.Author = labelValue(row, ".authorLabel")
	b.Narrator = labelValue(row, ".narratorLabel")
	b.Runtime = cleanText(row.Find(".runtimeLabel").First().Text())
	if b.Runtime == "" {
		row.Find(".bc-text").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := cleanText(s.Text()); len(t) < 40 && runtimeText.MatchString(t) {
				b.Runtime = t
				return false
			}
			return true
		})
	}
	if src, ok := row.Find("img").First().Attr("src"); ok {
		b.CoverURL = src
	}
	return b
}

// labelValue joins the link texts inside a "By:"/"Narrated by:" item.
func labelValue(row *goquery.Selection, selector string) string {
	item := row.Find(selector).First()
	if item.Length() == 0 {
		return ""
	}
	var names []string
	item.Find("a").Each(func(_ int, a *goquery.Selection) {
		if n := cleanText(a.Text()); n != "" {
			names = append(names, n)
		}
	})
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	text := cleanText(item.Text())
	if _, after, ok := strings.Cut(text, ":"); ok {
		text = strings.TrimSpace(after)
	}
	return text
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// LibraryPageURL is the URL of library page n (1-based).
func (a *Auth) LibraryPageURL(page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(libraryPageSize))
	return a.Base() + "/library/titles?" + q.Encode()
}

// FetchLibrary scrapes every page of the library.
func (a *Auth) FetchLibrary(ctx context.Context) ([]model.Book, error) {
	if !a.HasCookies() {
		return nil, model.ErrNotAuthenticated
	}
	var all []model.Book
	seen := make(map[string]bool)
	for page := 1; page <= maxLibraryPages; page++ {
		books, hasNext, err := a.fetchLibraryPage(ctx, page)
		if err != nil {
			return all, fmt.Errorf("library page %d: %w", page, err)
		}
		added := 0
		for _, b := range books {
			if seen[b.ASIN] {
				continue
			}
			seen[b.ASIN] = true
			all = append(all, b)
			added++
		}
		ui.Debugf("library page %d: %d titles", page, len(books))
		if added == 0 || !hasNext {
			break
		}
	}
	return all, nil
}

func (a *Auth) fetchLibraryPage(ctx context.Context, page int) ([]model.Book, bool, error) {
	resp, err := a.Client.Get(ctx, "audible.library", a.LibraryPageURL(page), nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if IsSignInURL(resp.FinalURL()) {
		return nil, false, model.ErrSignInRedirect
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("HTTP %s", resp.Status)
	}
	return ParseLibraryPage(resp.Body)
}

// Library returns the cached listing when it is fresh, otherwise it scrapes
// the library and refreshes the cache.
func (a *Auth) Library(ctx context.Context, refresh bool) ([]model.Book, error) {
	if !refresh {
		var cached []model.Book
		ok, err := cache.ReadListing(libraryCacheKey, LibraryCacheTTL, &cached)
		if err != nil {
			ui.Debugf("library cache unreadable: %v", err)
		} else if ok {
			return cached, nil
		}
	}
	books, err := a.FetchLibrary(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.WriteListing(libraryCacheKey, books); err != nil {
		ui.PrintWarning(fmt.Sprintf("Failed to cache library listing: %v", err))
	}
	return books, nil
}

// FindBook looks an ASIN up in the library listing.
func FindBook(books []model.Book, asin string) (model.Book, bool) {
	for _, b := range books {
		if strings.EqualFold(b.ASIN, asin) {
			return b, true
		}
	}
	return model.Book{}, false
}
