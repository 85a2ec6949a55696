package listpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/board-collector/internal/adapter"
	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/fetcher"
	"github.com/JakeFAU/board-collector/internal/metrics"
)

// HostLimiter throttles requests across every adapter hitting the same host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Deps carries the collaborators an Adapter needs.
type Deps struct {
	Fetcher fetcher.Fetcher
	Clock   collector.Clock
	Hosts   HostLimiter
	// Archive receives every fetched list page when Config.Archive is set.
	Archive       collector.BlobStore
	ArchivePrefix string
	Logger        *zap.Logger
}

// Adapter crawls one board described by a Config.
type Adapter struct {
	name      string
	cfg       Config
	fetch     fetcher.Fetcher
	clock     collector.Clock
	archive   collector.BlobStore
	prefix    string
	limiter   *rate.Limiter
	hosts     HostLimiter
	session   *adapter.Session
	times     timeParser
	idPattern *regexp.Regexp
	headers   http.Header
	logger    *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
}

var _ collector.Adapter = (*Adapter)(nil)

// New builds the adapter for source name.
func New(name string, cfg Config, deps Deps) (*Adapter, error) {
	if err := cfg.Validate("adapters." + name); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil {
		return nil, errors.New("listpage: fetcher is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("listpage: clock is required")
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		name:    name,
		cfg:     cfg,
		fetch:   deps.Fetcher,
		clock:   deps.Clock,
		archive: deps.Archive,
		prefix:  deps.ArchivePrefix,
		limiter: newLimiter(cfg.RequestsPerSecond),
		hosts:   deps.Hosts,
		times:   newTimeParser(loc, cfg.TimeLayouts),
		headers: http.Header{},
		logger:  logger.With(zap.String("source", name)),
		wait:    sleep,
	}
	for k, v := range cfg.Headers {
		a.headers.Set(k, v)
	}
	if cfg.SourceIDPattern != "" {
		a.idPattern = regexp.MustCompile(cfg.SourceIDPattern)
	}
	if cfg.Session.WarmupURL != "" {
		a.session = adapter.NewSession(a.warmup, cfg.Session.TTL, deps.Clock)
	}
	return a, nil
}

// Crawl walks list pages from StartPage until it meets a row older than
// lowerBound, an empty page, or the MaxPages ceiling.
func (a *Adapter) Crawl(ctx context.Context, lowerBound time.Time) ([]collector.Item, error) {
	var items []collector.Item
	last := a.cfg.StartPage + a.cfg.MaxPages
	for page := a.cfg.StartPage; page < last; page++ {
		pageURL := fmt.Sprintf(a.cfg.URLTemplate, page)
		if page > a.cfg.StartPage {
			if err := a.pace(ctx); err != nil {
				return items, &collector.AdapterTransportError{URL: pageURL, Page: page, Err: err}
			}
		}
		resp, err := a.fetchPage(ctx, pageURL)
		if err != nil {
			metrics.ObservePage(a.name, "error")
			return items, &collector.AdapterTransportError{URL: pageURL, Page: page, Err: err}
		}
		metrics.ObservePage(a.name, "ok")
		a.archivePage(ctx, page, resp.Body)

		results, err := a.extract(resp.Body, resp.URL)
		if err != nil {
			return items, &collector.AdapterTransportError{URL: pageURL, Page: page, Err: err}
		}
		if len(results) == 0 {
			a.logger.Debug("empty list page, stopping", zap.Int("page", page))
			break
		}

		skipped, reached := 0, false
		for _, r := range results {
			if r.Skipped() {
				skipped++
				a.logger.Debug("row skipped", zap.Int("page", page), zap.String("reason", r.Reason))
				continue
			}
			if r.Item.CreatedAt.Before(lowerBound) {
				reached = true
				break
			}
			items = append(items, r.Item)
		}
		metrics.ObserveSkippedRows(a.name, skipped)
		if reached {
			a.logger.Debug("reached lower bound", zap.Int("page", page), zap.Time("lower_bound", lowerBound))
			break
		}
	}
	return items, nil
}

func (a *Adapter) fetchPage(ctx context.Context, pageURL string) (fetcher.Response, error) {
	resp, err := a.fetchOnce(ctx, pageURL)
	var statusErr *fetcher.StatusError
	if a.session != nil && errors.As(err, &statusErr) &&
		(statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		a.logger.Info("session rejected, refreshing", zap.Int("status", statusErr.StatusCode))
		a.session.Invalidate()
		resp, err = a.fetchOnce(ctx, pageURL)
	}
	return resp, err
}

func (a *Adapter) fetchOnce(ctx context.Context, pageURL string) (fetcher.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return fetcher.Response{}, fmt.Errorf("rate limit wait: %w", err)
	}
	if a.hosts != nil {
		if err := a.hosts.Wait(ctx, pageURL); err != nil {
			return fetcher.Response{}, err
		}
	}
	req := fetcher.Request{URL: pageURL, Headers: a.headers.Clone()}
	if a.session != nil {
		cookies, err := a.session.Cookies(ctx)
		if err != nil {
			return fetcher.Response{}, err
		}
		req.Cookies = cookies
	}
	resp, err := a.fetch.Fetch(ctx, req)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("fetch list page: %w", err)
	}
	if resp.URL == "" {
		resp.URL = pageURL
	}
	return resp, nil
}

func (a *Adapter) warmup(ctx context.Context) ([]*http.Cookie, error) {
	resp, err := a.fetch.Fetch(ctx, fetcher.Request{URL: a.cfg.Session.WarmupURL, Headers: a.headers.Clone()})
	if err != nil {
		return nil, fmt.Errorf("warm-up %s: %w", a.cfg.Session.WarmupURL, err)
	}
	a.logger.Debug("session warmed up", zap.Int("cookies", len(resp.Cookies)))
	return resp.Cookies, nil
}

func (a *Adapter) pace(ctx context.Context) error {
	d := a.cfg.PageDelayMin
	if spread := a.cfg.PageDelayMax - a.cfg.PageDelayMin; spread > 0 {
		d += rand.N(spread)
	}
	if d <= 0 {
		return nil
	}
	metrics.ObservePageDelay(a.name, d)
	return a.wait(ctx, d)
}

func (a *Adapter) archivePage(ctx context.Context, page int, body []byte) {
	if !a.cfg.Archive || a.archive == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/page-%03d.html", a.name, a.clock.Now().UTC().Format("20060102T150405Z"), page)
	if a.prefix != "" {
		path = strings.TrimSuffix(a.prefix, "/") + "/" + path
	}
	if _, err := a.archive.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(body)); err != nil {
		a.logger.Warn("archive list page failed", zap.Int("page", page), zap.Error(err))
	}
}

func (a *Adapter) extract(body []byte, pageURL string) ([]adapter.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse list page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	now := a.clock.Now()
	var results []adapter.Result
	doc.Find(a.cfg.RowSelector).Each(func(_ int, row *goquery.Selection) {
		if a.cfg.SkipRowSelector != "" && row.Is(a.cfg.SkipRowSelector) {
			return
		}
		results = append(results, a.parseRow(row, base, now))
	})
	return results, nil
}

func (a *Adapter) parseRow(row *goquery.Selection, base *url.URL, now time.Time) adapter.Result {
	f := a.cfg.Fields
	title := value(row, f.Title)
	if title == "" {
		return adapter.Skip("missing title")
	}
	linkField := f.Link
	if linkField.Attr == "" {
		linkField.Attr = "href"
	}
	href := value(row, linkField)
	if href == "" {
		return adapter.Skip("missing link")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return adapter.Skip("bad link: " + err.Error())
	}
	link := base.ResolveReference(ref).String()

	createdAt, err := a.times.parse(value(row, f.CreatedAt), now)
	if err != nil {
		return adapter.Skip(err.Error())
	}
	sourceID, err := a.sourceID(row, link)
	if err != nil {
		return adapter.Skip(err.Error())
	}

	return adapter.OK(collector.Item{
		Source:              a.name,
		SourceID:            sourceID,
		Link:                link,
		Title:               title,
		Author:              value(row, f.Author),
		CommentCount:        parseCount(value(row, f.Comments)),
		ViewCount:           parseCount(value(row, f.Views)),
		RecommendationCount: parseCount(value(row, f.Recommends)),
		CreatedAt:           createdAt,
	})
}

func (a *Adapter) sourceID(row *goquery.Selection, link string) (int64, error) {
	switch {
	case a.cfg.Fields.SourceID.Selector != "" || a.cfg.Fields.SourceID.Attr != "":
		raw := value(row, a.cfg.Fields.SourceID)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad source id %q", raw)
		}
		return id, nil
	case a.idPattern != nil:
		m := a.idPattern.FindStringSubmatch(link)
		if m == nil {
			return 0, fmt.Errorf("no source id in %s", link)
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad source id %q", m[1])
		}
		return id, nil
	default:
		return 0, nil
	}
}

// value reads a field from the row, collapsing whitespace in text values.
func value(row *goquery.Selection, f Field) string {
	if f.Selector == "" && f.Attr == "" {
		return ""
	}
	sel := row
	if f.Selector != "" {
		sel = row.Find(f.Selector).First()
		if sel.Length() == 0 {
			return ""
		}
	}
	if f.Attr != "" {
		v, _ := sel.Attr(f.Attr)
		return strings.TrimSpace(v)
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("page delay canceled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
