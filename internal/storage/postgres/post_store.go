package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/board-collector/internal/collector"
)

const postColumns = "id, source, source_id, link, title, author, comment_count, view_count, recommendation_count, created_at"

// PostStore is the primary store of collected items.
type PostStore struct {
	db    DB
	table string
}

var _ collector.PrimaryStore = (*PostStore)(nil)

// NewPostStore wraps db. An empty table defaults to "posts".
func NewPostStore(db DB, table string) (*PostStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	table, err := checkTable(table, "posts")
	if err != nil {
		return nil, err
	}
	return &PostStore{db: db, table: table}, nil
}

// Migrate creates the table and its indexes if they are missing.
func (s *PostStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	source_id BIGINT NOT NULL DEFAULT 0,
	link TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	comment_count INTEGER NOT NULL DEFAULT 0,
	view_count INTEGER NOT NULL DEFAULT 0,
	recommendation_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, link)
);
CREATE INDEX IF NOT EXISTS %[1]s_source_created_at_idx ON %[1]s (source, created_at DESC)`, s.table)
	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// ExistsBySource reports whether any row of source exists.
func (s *PostStore) ExistsBySource(ctx context.Context, source string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE source = $1)`, s.table)
	var exists bool
	if err := s.db.QueryRow(ctx, query, source).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists by source: %w", err)
	}
	return exists, nil
}

// FindLatestBySource returns the newest row of source by created_at.
func (s *PostStore) FindLatestBySource(ctx context.Context, source string) (collector.Item, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE source = $1 ORDER BY created_at DESC LIMIT 1`, postColumns, s.table)
	rows, err := s.db.Query(ctx, query, source)
	if err != nil {
		return collector.Item{}, false, fmt.Errorf("find latest by source: %w", err)
	}
	item, err := pgx.CollectOneRow(rows, scanItem)
	if errors.Is(err, pgx.ErrNoRows) {
		return collector.Item{}, false, nil
	}
	if err != nil {
		return collector.Item{}, false, fmt.Errorf("find latest by source: %w", err)
	}
	return item, true, nil
}

// FindBySourceAndLinks returns the rows of source whose link is in links.
func (s *PostStore) FindBySourceAndLinks(ctx context.Context, source string, links []string) ([]collector.Item, error) {
	if len(links) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE source = $1 AND link = ANY($2)`, postColumns, s.table)
	rows, err := s.db.Query(ctx, query, source, links)
	if err != nil {
		return nil, fmt.Errorf("find by source and links: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("find by source and links: %w", err)
	}
	return items, nil
}

// SaveAll writes items in one transaction. Rows without an ID are inserted
// (an existing (source, link) row is updated instead); rows with an ID are
// updated in place. The returned items carry their IDs in input order.
func (s *PostStore) SaveAll(ctx context.Context, items []collector.Item) ([]collector.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (source, source_id, link, title, author, comment_count, view_count, recommendation_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (source, link) DO UPDATE SET
	title = EXCLUDED.title,
	comment_count = EXCLUDED.comment_count,
	view_count = EXCLUDED.view_count,
	recommendation_count = EXCLUDED.recommendation_count,
	updated_at = now()
RETURNING id`, s.table)
	update := fmt.Sprintf(`
UPDATE %s SET title = $2, comment_count = $3, view_count = $4, recommendation_count = $5, updated_at = now()
WHERE id = $1`, s.table)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("save posts: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	saved := make([]collector.Item, 0, len(items))
	for _, item := range items {
		if item.ID == 0 {
			err := tx.QueryRow(ctx, insert,
				item.Source, item.SourceID, item.Link, item.Title, item.Author,
				item.CommentCount, item.ViewCount, item.RecommendationCount, item.CreatedAt,
			).Scan(&item.ID)
			if err != nil {
				return nil, fmt.Errorf("save posts: insert %s: %w", item.Link, err)
			}
		} else {
			tag, err := tx.Exec(ctx, update,
				item.ID, item.Title, item.CommentCount, item.ViewCount, item.RecommendationCount,
			)
			if err != nil {
				return nil, fmt.Errorf("save posts: update %d: %w", item.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return nil, fmt.Errorf("save posts: update %d: no such row", item.ID)
			}
		}
		saved = append(saved, item)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("save posts: commit: %w", err)
	}
	committed = true
	return saved, nil
}

// Count returns the number of rows.
func (s *PostStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// FindPage returns rows ordered by id. One extra row is read to fill HasNext.
func (s *PostStore) FindPage(ctx context.Context, page, size int) (collector.Page, error) {
	if page < 0 || size <= 0 {
		return collector.Page{}, fmt.Errorf("invalid page %d size %d", page, size)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT $1 OFFSET $2`, postColumns, s.table)
	rows, err := s.db.Query(ctx, query, size+1, page*size)
	if err != nil {
		return collector.Page{}, fmt.Errorf("find page: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return collector.Page{}, fmt.Errorf("find page: %w", err)
	}
	hasNext := len(items) > size
	if hasNext {
		items = items[:size]
	}
	return collector.Page{Items: items, Number: page, Size: size, HasNext: hasNext}, nil
}

func scanItem(row pgx.CollectableRow) (collector.Item, error) {
	var item collector.Item
	err := row.Scan(
		&item.ID,
		&item.Source,
		&item.SourceID,
		&item.Link,
		&item.Title,
		&item.Author,
		&item.CommentCount,
		&item.ViewCount,
		&item.RecommendationCount,
		&item.CreatedAt,
	)
	return item, err
}
