package source

import (
	"booksync/internal/adapters/util"
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mmcdole/gofeed/atom"
	"go.uber.org/zap"
)

var _ ports.CatalogSource = (*OPDSAdapter)(nil)

type OPDSAdapter struct {
	catalogURL string
	username   string
	password   string
	libraryID  int64
	client     *http.Client
	logger     *zap.Logger
	clock      clockwork.Clock
}

type OPDSOpt func(*OPDSAdapter)

func WithLogger(logger *zap.Logger) OPDSOpt {
	return func(a *OPDSAdapter) {
		a.logger = logger
	}
}

func WithClock(clock clockwork.Clock) OPDSOpt {
	return func(a *OPDSAdapter) {
		a.clock = clock
	}
}

func WithHTTPClient(client *http.Client) OPDSOpt {
	return func(a *OPDSAdapter) {
		a.client = client
	}
}

// NewOPDSAdapter reads an OPDS catalog into the given library.
func NewOPDSAdapter(catalogURL, username, password string, libraryID int64, opts ...OPDSOpt) *OPDSAdapter {
	// Automated path generation
	if catalogURL != "" {
		if u, err := url.Parse(catalogURL); err == nil && u.Scheme != "" {
			if u.Path == "" || u.Path == "/" {
				u.Path = "/feed.xml"
				catalogURL = u.String()
			}
		}
	}

	a := &OPDSAdapter{
		catalogURL: catalogURL,
		username:   username,
		password:   password,
		libraryID:  libraryID,
		logger:     zap.NewNop(),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = &http.Client{
			Transport: &util.LoggingTransport{Logger: a.logger.Named("http")},
			Timeout:   5 * time.Minute,
		}
	}
	return a
}

func (a *OPDSAdapter) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *OPDSAdapter) now() time.Time {
	if a.clock == nil {
		return time.Now().UTC()
	}
	return a.clock.Now().UTC()
}

type queuedPage struct {
	url   string
	depth int
}

// FetchNewBooks walks the catalog, following pagination and subsections, and
// returns the entries updated after since (unix seconds). Pages that fail to
// load are logged and skipped.
func (a *OPDSAdapter) FetchNewBooks(ctx context.Context, since int64) ([]models.CatalogEntry, error) {
	a.log().Debug("fetching opds catalog", zap.Int64("since", since), zap.Time("since_time", time.Unix(since, 0).UTC()))
	if a.catalogURL == "" {
		return nil, fmt.Errorf("OPDS URL is not configured")
	}

	var all []models.CatalogEntry
	visited := make(map[string]bool)
	queue := []queuedPage{{a.catalogURL, 0}}

	const maxDepth = 3
	processedPages := 0
	const maxPages = 50 // Avoid infinite loops or memory exhaustion from massive catalogs

	for len(queue) > 0 && processedPages < maxPages {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		current := queue[0]
		queue = queue[1:]

		if visited[current.url] {
			continue
		}
		visited[current.url] = true
		processedPages++

		books, next, subsections, err := a.fetchPage(ctx, current.url, since)
		if err != nil {
			a.log().Warn("failed to fetch opds page", zap.String("url", current.url), zap.Error(err))
			continue
		}
		if len(books) > 0 {
			a.log().Debug("found catalog entries", zap.Int("count", len(books)), zap.String("url", current.url))
		}
		all = append(all, books...)

		// Pagination remains at the same depth
		if next != "" && !visited[next] {
			queue = append(queue, queuedPage{next, current.depth})
		}

		if current.depth < maxDepth {
			for _, sub := range subsections {
				if !visited[sub] {
					queue = append(queue, queuedPage{sub, current.depth + 1})
				}
			}
		}
	}

	return all, nil
}

const (
	relNext        = "next"
	relAcquisition = "http://opds-spec.org/acquisition"
	relOpenAccess  = "http://opds-spec.org/acquisition/open-access"
	relSubsection  = "subsection"
	relCatalog     = "http://opds-spec.org/catalog"
)

var formatsByMediaType = map[string]models.Format{
	"application/epub+zip":           models.FormatEPUB,
	"application/kepub+zip":          models.FormatKEPUB,
	"application/x-kobo-epub+zip":    models.FormatKEPUB,
	"application/pdf":                models.FormatPDF,
	"application/x-mobipocket-ebook": models.FormatMOBI,
	"application/x-mobi8-ebook":      models.FormatAZW3,
	"application/vnd.amazon.ebook":   models.FormatAZW3,
	"application/vnd.comicbook+zip":  models.FormatCBZ,
	"application/x-cbz":              models.FormatCBZ,
}

// formatOf maps an acquisition link to a format by media type, falling back to
// the file extension when the feed leaves the type out.
func formatOf(link *atom.Link) (models.Format, bool) {
	if link.Type != "" {
		if mt, _, err := mime.ParseMediaType(link.Type); err == nil {
			if f, ok := formatsByMediaType[mt]; ok {
				return f, true
			}
		}
	}
	href := strings.ToLower(link.Href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	switch {
	case strings.HasSuffix(href, ".kepub.epub"):
		return models.FormatKEPUB, true
	case strings.HasSuffix(href, ".epub"):
		return models.FormatEPUB, true
	}
	if i := strings.LastIndexByte(href, '.'); i >= 0 {
		return models.ParseFormat(href[i+1:])
	}
	return "", false
}

func (a *OPDSAdapter) fetchPage(ctx context.Context, targetURL string, since int64) ([]models.CatalogEntry, string, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, "", nil, err
	}

	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to fetch OPDS feed from %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", nil, fmt.Errorf("OPDS feed returned status: %d", resp.StatusCode)
	}

	fp := &atom.Parser{}
	feed, err := fp.Parse(resp.Body)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to parse OPDS feed as Atom: %w", err)
	}

	var books []models.CatalogEntry
	var subsections []string
	baseURL, _ := url.Parse(targetURL)
	resolve := func(href string) (string, bool) {
		ref, err := url.Parse(href)
		if err != nil {
			return "", false
		}
		return baseURL.ResolveReference(ref).String(), true
	}

	for _, entry := range feed.Entries {
		for _, link := range entry.Links {
			if link.Rel == relSubsection || link.Rel == relCatalog {
				if u, ok := resolve(link.Href); ok {
					subsections = append(subsections, u)
				}
			}
		}

		var updated, published time.Time
		if entry.UpdatedParsed != nil {
			updated = entry.UpdatedParsed.UTC()
		}
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		}
		if updated.IsZero() {
			updated = published
		}

		if !updated.IsZero() && updated.Unix() <= since {
			a.log().Debug("skipping entry updated before watermark",
				zap.String("title", entry.Title),
				zap.Time("updated", updated),
			)
			continue
		}

		var (
			acquisitions int
			formats      []models.Format
			seen         = make(map[models.Format]bool)
		)
		for _, link := range entry.Links {
			if link.Rel != relAcquisition && link.Rel != relOpenAccess {
				continue
			}
			acquisitions++
			if f, ok := formatOf(link); ok && !seen[f] {
				seen[f] = true
				formats = append(formats, f)
			}
		}
		if acquisitions == 0 || entry.ID == "" {
			continue
		}

		book := models.CatalogEntry{
			UUID:         entry.ID,
			LibraryID:    a.libraryID,
			Title:        entry.Title,
			Author:       "Unknown",
			Description:  entry.Summary,
			Formats:      formats,
			LastModified: updated,
			CreatedAt:    published,
		}
		if book.LastModified.IsZero() {
			book.LastModified = a.now()
		}
		if book.CreatedAt.IsZero() {
			book.CreatedAt = book.LastModified
		}
		if len(entry.Authors) > 0 {
			book.Author = entry.Authors[0].Name
		}
		books = append(books, book)
	}

	nextPageURL := ""
	for _, link := range feed.Links {
		switch link.Rel {
		case relSubsection, relCatalog:
			if u, ok := resolve(link.Href); ok {
				subsections = append(subsections, u)
			}
		case relNext:
			if nextPageURL == "" {
				if u, ok := resolve(link.Href); ok {
					nextPageURL = u
				}
			}
		}
	}

	return books, nextPageURL, subsections, nil
}
