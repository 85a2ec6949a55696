// Package redis stores search documents in Redis hashes.
//
// Each document lives at "<prefix>:doc:<id>"; the set "<prefix>:ids" holds
// every indexed ID and backs Count. A per-source sorted set
// "<prefix>:source:<source>" scores IDs by creation time for recency scans.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// Index is a Redis-backed collector.IndexStore.
type Index struct {
	client redis.UniversalClient
	prefix string
}

var _ collector.IndexStore = (*Index)(nil)

// New constructs an Index. An empty prefix defaults to "posts".
func New(client redis.UniversalClient, prefix string) (*Index, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = "posts"
	}
	return &Index{client: client, prefix: prefix}, nil
}

// SaveAll upserts docs in one MULTI/EXEC round trip.
func (x *Index) SaveAll(ctx context.Context, docs []collector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := x.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, doc := range docs {
			if doc.ID == 0 {
				return collector.ErrUnpersisted
			}
			id := strconv.FormatInt(doc.ID, 10)
			pipe.HSet(ctx, x.docKey(doc.ID), fields(doc))
			pipe.SAdd(ctx, x.idsKey(), id)
			pipe.ZAdd(ctx, x.sourceKey(doc.Source), redis.Z{Score: float64(doc.CreatedAt.Unix()), Member: id})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %d documents: %w", len(docs), err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (x *Index) Count(ctx context.Context) (int64, error) {
	n, err := x.client.SCard(ctx, x.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Get loads one document.
func (x *Index) Get(ctx context.Context, id int64) (collector.Document, bool, error) {
	vals, err := x.client.HGetAll(ctx, x.docKey(id)).Result()
	if err != nil {
		return collector.Document{}, false, fmt.Errorf("get document %d: %w", id, err)
	}
	if len(vals) == 0 {
		return collector.Document{}, false, nil
	}
	doc, err := parseFields(vals)
	if err != nil {
		return collector.Document{}, false, fmt.Errorf("decode document %d: %w", id, err)
	}
	return doc, true, nil
}

// Latest returns up to limit document IDs of source, newest first.
func (x *Index) Latest(ctx context.Context, source string, limit int64) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := x.client.ZRevRange(ctx, x.sourceKey(source), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("latest documents for %s: %w", source, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (x *Index) docKey(id int64) string {
	return x.prefix + ":doc:" + strconv.FormatInt(id, 10)
}

func (x *Index) idsKey() string {
	return x.prefix + ":ids"
}

func (x *Index) sourceKey(source string) string {
	return x.prefix + ":source:" + source
}

func fields(doc collector.Document) map[string]any {
	return map[string]any{
		"id":                   doc.ID,
		"title":                doc.Title,
		"source":               doc.Source,
		"author":               doc.Author,
		"link":                 doc.Link,
		"comment_count":        doc.CommentCount,
		"view_count":           doc.ViewCount,
		"recommendation_count": doc.RecommendationCount,
		"created_at":           doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseFields(vals map[string]string) (collector.Document, error) {
	var (
		doc collector.Document
		err error
	)
	if doc.ID, err = strconv.ParseInt(vals["id"], 10, 64); err != nil {
		return doc, fmt.Errorf("id: %w", err)
	}
	counts := []struct {
		key string
		dst *int
	}{
		{"comment_count", &doc.CommentCount},
		{"view_count", &doc.ViewCount},
		{"recommendation_count", &doc.RecommendationCount},
	}
	for _, c := range counts {
		if *c.dst, err = strconv.Atoi(vals[c.key]); err != nil {
			return doc, fmt.Errorf("%s: %w", c.key, err)
		}
	}
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, vals["created_at"]); err != nil {
		return doc, fmt.Errorf("created_at: %w", err)
	}
	doc.Title = vals["title"]
	doc.Source = vals["source"]
	doc.Author = vals["author"]
	doc.Link = vals["link"]
	return doc, nil
}
