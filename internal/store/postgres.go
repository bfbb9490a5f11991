package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres migrates the database at dsn and returns a pooled store.
// dsn must be a postgres:// URL.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	if err := MigratePostgres(dsn); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(pool), nil
}

// MigratePostgres applies the embedded migrations.
func MigratePostgres(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

const pgLinkColumns = `id, short_code, original_url, title, description, domain, is_active, expires_at, password_hash, max_clicks, created_at`

func scanPgLink(row pgx.Row) (*Link, error) {
	var (
		l       Link
		expires *time.Time
	)
	err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.Title, &l.Description, &l.Domain,
		&l.IsActive, &expires, &l.PasswordHash, &l.MaxClicks, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires != nil {
		t := expires.UTC()
		l.ExpiresAt = &t
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}

func (p *Postgres) FindLinkByShortCode(ctx context.Context, code string) (*Link, error) {
	return scanPgLink(p.pool.QueryRow(ctx, `SELECT `+pgLinkColumns+` FROM links WHERE short_code = $1`, code))
}

func (p *Postgres) FindLinkByID(ctx context.Context, id int64) (*Link, error) {
	return scanPgLink(p.pool.QueryRow(ctx, `SELECT `+pgLinkColumns+` FROM links WHERE id = $1`, id))
}

func (p *Postgres) CreateLink(ctx context.Context, l *Link) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	err := p.pool.QueryRow(ctx, `INSERT INTO links(short_code, original_url, title, description, domain, is_active, expires_at, password_hash, max_clicks, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		l.ShortCode, l.OriginalURL, l.Title, l.Description, l.Domain, l.IsActive, l.ExpiresAt, l.PasswordHash, l.MaxClicks, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (p *Postgres) AppendClick(ctx context.Context, ev ClickEvent) (bool, error) {
	var unique bool
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT is_unique FROM clicks WHERE id = $1`, ev.ID).Scan(&unique)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		tag, err := tx.Exec(ctx, `INSERT INTO click_visitors(link_id, ip_address, first_click_id, first_seen_at)
			VALUES($1, $2, $3, $4) ON CONFLICT (link_id, ip_address) DO NOTHING`,
			ev.LinkID, ev.IPAddress, ev.ID, ev.ClickedAt)
		if err != nil {
			return fmt.Errorf("insert visitor: %w", err)
		}
		unique = tag.RowsAffected() == 1

		_, err = tx.Exec(ctx, `INSERT INTO clicks(id, link_id, ip_address, user_agent, device, browser, os, referer, clicked_at, is_unique)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			ev.ID, ev.LinkID, ev.IPAddress, ev.UserAgent, ev.Device, ev.Browser, ev.OS, ev.Referer, ev.ClickedAt, unique)
		if err != nil {
			return fmt.Errorf("insert click: %w", err)
		}
		return nil
	})
	return unique, err
}

func (p *Postgres) ApplyClick(ctx context.Context, ev ClickEvent, unique bool) (Counters, error) {
	var out Counters
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE clicks SET counted = TRUE WHERE id = $1 AND NOT counted`, ev.ID)
		if err != nil {
			return fmt.Errorf("mark counted: %w", err)
		}
		if tag.RowsAffected() == 0 {
			out, err = p.counters(ctx, tx, ev.LinkID)
			return err
		}

		var inc int64
		if unique {
			inc = 1
		}
		var last *time.Time
		err = tx.QueryRow(ctx, `INSERT INTO link_stats(link_id, total_clicks, unique_clicks, last_click_at)
			VALUES($1, 1, $2, $3)
			ON CONFLICT (link_id) DO UPDATE SET
				total_clicks = link_stats.total_clicks + 1,
				unique_clicks = link_stats.unique_clicks + EXCLUDED.unique_clicks,
				last_click_at = GREATEST(link_stats.last_click_at, EXCLUDED.last_click_at)
			RETURNING total_clicks, unique_clicks, last_click_at`,
			ev.LinkID, inc, ev.ClickedAt,
		).Scan(&out.TotalClicks, &out.UniqueClicks, &last)
		if err != nil {
			return fmt.Errorf("update stats: %w", err)
		}
		out.LastClickAt = utcPtr(last)
		return nil
	})
	return out, err
}

func (p *Postgres) Counters(ctx context.Context, linkID int64) (Counters, error) {
	return p.counters(ctx, p.pool, linkID)
}

func (p *Postgres) counters(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, linkID int64) (Counters, error) {
	var (
		out  Counters
		last *time.Time
	)
	err := q.QueryRow(ctx, `SELECT total_clicks, unique_clicks, last_click_at FROM link_stats WHERE link_id = $1`, linkID).
		Scan(&out.TotalClicks, &out.UniqueClicks, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counters{}, nil
	}
	if err != nil {
		return Counters{}, fmt.Errorf("read stats: %w", err)
	}
	out.LastClickAt = utcPtr(last)
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
