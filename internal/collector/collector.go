package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"

	"github.com/tbourn/news-archive/internal/domain"
)

var tracer = otel.Tracer("github.com/tbourn/news-archive/internal/collector")

// Store is the subset of the raw news store the collector writes to.
type Store interface {
	Save(ctx context.Context, records []domain.RawNewsRecord) (int, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// Collector fetches every configured feed, saves the items, and trims the
// raw collection to Keep records afterwards. A Keep of 0 or less skips the
// trim.
type Collector struct {
	Store   Store
	Feeds   []Feed
	Keep    int
	Timeout time.Duration

	parser *gofeed.Parser
	now    func() time.Time
}

// New returns a Collector with a default gofeed parser.
func New(store Store, feeds []Feed, keep int, timeout time.Duration) *Collector {
	p := gofeed.NewParser()
	p.UserAgent = "news-archive-collector/1.0"
	return &Collector{
		Store:   store,
		Feeds:   feeds,
		Keep:    keep,
		Timeout: timeout,
		parser:  p,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Result summarizes one collection pass.
type Result struct {
	Feeds   int   `json:"feeds"`
	Failed  int   `json:"failed"`
	Items   int   `json:"items"`
	Created int   `json:"created"`
	Pruned  int64 `json:"pruned"`
}

// CollectOnce runs a single pass over all feeds. A feed that cannot be
// fetched or parsed is logged and skipped. Storage errors abort the pass.
func (c *Collector) CollectOnce(ctx context.Context) (Result, error) {
	res := Result{Feeds: len(c.Feeds)}

	for _, feed := range c.Feeds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		records, err := c.fetch(ctx, feed)
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Str("feed", feed.Name).Msg("feed fetch failed, skipping")
			continue
		}
		if len(records) == 0 {
			continue
		}
		res.Items += len(records)

		created, err := c.Store.Save(ctx, records)
		res.Created += created
		if err != nil {
			return res, fmt.Errorf("save %s: %w", feed.Name, err)
		}
		log.Debug().Str("feed", feed.Name).Int("items", len(records)).Int("created", created).Msg("feed collected")
	}

	if c.Keep > 0 {
		n, err := c.Store.Prune(ctx, c.Keep)
		if err != nil {
			return res, fmt.Errorf("prune raw news: %w", err)
		}
		res.Pruned = n
	}

	log.Info().
		Int("feeds", res.Feeds).
		Int("failed", res.Failed).
		Int("items", res.Items).
		Int("created", res.Created).
		Int64("pruned", res.Pruned).
		Msg("collection pass completed")
	return res, nil
}

// Run calls CollectOnce immediately and then every interval until ctx is
// done. A non-positive interval disables the loop.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("collector loop disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("collector stopped")
			return
		case <-ticker.C:
			c.runLogged(ctx)
		}
	}
}

func (c *Collector) runLogged(ctx context.Context) {
	if _, err := c.CollectOnce(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("collection pass failed (will retry on next interval)")
	}
}

func (c *Collector) fetch(ctx context.Context, feed Feed) (out []domain.RawNewsRecord, err error) {
	ctx, span := tracer.Start(ctx, "collector.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("feed.name", feed.Name), attribute.String("feed.url", feed.URL)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
		}
		span.SetAttributes(attribute.Int("feed.items", len(out)))
		span.End()
	}()

	fctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	parsed, err := c.parser.ParseURLWithContext(feed.URL, fctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feed.URL, err)
	}

	source := feed.Name
	if source == "" {
		source = clean(parsed.Title)
	}

	out = make([]domain.RawNewsRecord, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if rec, ok := toRecord(item, source, c.now()); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// toRecord maps a feed item to a raw record. Items without a usable link are
// dropped.
func toRecord(item *gofeed.Item, source string, collectedAt time.Time) (domain.RawNewsRecord, bool) {
	if item == nil {
		return domain.RawNewsRecord{}, false
	}
	link := strings.TrimSpace(item.Link)
	if link == "" && isHTTPURL(item.GUID) {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return domain.RawNewsRecord{}, false
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}

	var published *time.Time
	switch {
	case item.PublishedParsed != nil:
		p := item.PublishedParsed.UTC()
		published = &p
	case item.UpdatedParsed != nil:
		p := item.UpdatedParsed.UTC()
		published = &p
	}

	extra := datatypes.JSONMap{}
	if item.GUID != "" {
		extra["guid"] = item.GUID
	}
	if item.Author != nil && item.Author.Name != "" {
		extra["author"] = clean(item.Author.Name)
	}
	if len(item.Categories) > 0 {
		extra["categories"] = item.Categories
	}
	if len(extra) == 0 {
		extra = nil
	}

	return domain.RawNewsRecord{
		OriginalLink: link,
		Link:         strings.TrimSpace(item.Link),
		Title:        clean(item.Title),
		Description:  clean(description),
		Source:       source,
		PublishedAt:  published,
		CollectedAt:  collectedAt,
		Extra:        extra,
	}, true
}

// clean trims s and converts it to Unicode NFC so that visually identical
// titles from different feeds compare equal.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func isHTTPURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
