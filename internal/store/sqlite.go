package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// OpenSQLite opens dsn with the sqlite3 driver, tunes the pool and applies
// the schema. Writers rely on _txlock=immediate and _busy_timeout in the DSN
// to serialise instead of failing with SQLITE_BUSY.
func OpenSQLite(dsn string, maxConns int) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return NewSQLite(db), nil
}

const linkColumns = `id, short_code, original_url, title, description, domain, is_active, expires_at, password_hash, max_clicks, created_at`

func scanLink(row interface{ Scan(...any) error }) (*Link, error) {
	var (
		l       Link
		expires sql.NullTime
		created sql.NullTime
	)
	err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.Title, &l.Description, &l.Domain,
		&l.IsActive, &expires, &l.PasswordHash, &l.MaxClicks, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time.UTC()
		l.ExpiresAt = &t
	}
	if created.Valid {
		l.CreatedAt = created.Time.UTC()
	}
	return &l, nil
}

func (s *SQLite) FindLinkByShortCode(ctx context.Context, code string) (*Link, error) {
	return scanLink(s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE short_code = ?`, code))
}

func (s *SQLite) FindLinkByID(ctx context.Context, id int64) (*Link, error) {
	return scanLink(s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id))
}

func (s *SQLite) CreateLink(ctx context.Context, l *Link) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	var expires any
	if l.ExpiresAt != nil {
		expires = l.ExpiresAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO links(short_code, original_url, title, description, domain, is_active, expires_at, password_hash, max_clicks, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ShortCode, l.OriginalURL, l.Title, l.Description, l.Domain, l.IsActive, expires, l.PasswordHash, l.MaxClicks, l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

func (s *SQLite) AppendClick(ctx context.Context, ev ClickEvent) (bool, error) {
	var unique bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT is_unique FROM clicks WHERE id = ?`, ev.ID).Scan(&unique)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO click_visitors(link_id, ip_address, first_click_id, first_seen_at)
			VALUES(?, ?, ?, ?) ON CONFLICT(link_id, ip_address) DO NOTHING`,
			ev.LinkID, ev.IPAddress, ev.ID, ev.ClickedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert visitor: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		unique = n == 1

		_, err = tx.ExecContext(ctx, `INSERT INTO clicks(id, link_id, ip_address, user_agent, device, browser, os, referer, clicked_at, is_unique)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.LinkID, ev.IPAddress, ev.UserAgent, ev.Device, ev.Browser, ev.OS, ev.Referer, ev.ClickedAt.UTC(), unique)
		if err != nil {
			return fmt.Errorf("insert click: %w", err)
		}
		return nil
	})
	return unique, err
}

func (s *SQLite) ApplyClick(ctx context.Context, ev ClickEvent, unique bool) (Counters, error) {
	var out Counters
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE clicks SET counted = 1 WHERE id = ? AND counted = 0`, ev.ID)
		if err != nil {
			return fmt.Errorf("mark counted: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			var inc int64
			if unique {
				inc = 1
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO link_stats(link_id, total_clicks, unique_clicks, last_click_at)
				VALUES(?, 1, ?, ?)
				ON CONFLICT(link_id) DO UPDATE SET
					total_clicks = total_clicks + 1,
					unique_clicks = unique_clicks + excluded.unique_clicks,
					last_click_at = CASE
						WHEN last_click_at IS NULL OR excluded.last_click_at > last_click_at THEN excluded.last_click_at
						ELSE last_click_at END`,
				ev.LinkID, inc, ev.ClickedAt.UTC())
			if err != nil {
				return fmt.Errorf("update stats: %w", err)
			}
		}
		out, err = readCounters(ctx, tx, ev.LinkID)
		return err
	})
	return out, err
}

func (s *SQLite) Counters(ctx context.Context, linkID int64) (Counters, error) {
	return readCounters(ctx, s.db, linkID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readCounters(ctx context.Context, q queryRower, linkID int64) (Counters, error) {
	var (
		out  Counters
		last sql.NullTime
	)
	err := q.QueryRowContext(ctx, `SELECT total_clicks, unique_clicks, last_click_at FROM link_stats WHERE link_id = ?`, linkID).
		Scan(&out.TotalClicks, &out.UniqueClicks, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return Counters{}, nil
	}
	if err != nil {
		return Counters{}, fmt.Errorf("read stats: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		out.LastClickAt = &t
	}
	return out, nil
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

// Migrate ensures schema exists
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			short_code TEXT UNIQUE NOT NULL,
			original_url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			expires_at DATETIME,
			password_hash TEXT NOT NULL DEFAULT '',
			max_clicks INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS clicks (
			id TEXT PRIMARY KEY,
			link_id INTEGER NOT NULL REFERENCES links(id) ON DELETE CASCADE,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			device TEXT NOT NULL DEFAULT '',
			browser TEXT NOT NULL DEFAULT '',
			os TEXT NOT NULL DEFAULT '',
			referer TEXT NOT NULL DEFAULT '',
			clicked_at DATETIME NOT NULL,
			is_unique INTEGER NOT NULL DEFAULT 0,
			counted INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_link_ip_ts ON clicks(link_id, ip_address, clicked_at);`,
		`CREATE TABLE IF NOT EXISTS click_visitors (
			link_id INTEGER NOT NULL REFERENCES links(id) ON DELETE CASCADE,
			ip_address TEXT NOT NULL,
			first_click_id TEXT NOT NULL,
			first_seen_at DATETIME NOT NULL,
			PRIMARY KEY (link_id, ip_address)
		);`,
		`CREATE TABLE IF NOT EXISTS link_stats (
			link_id INTEGER PRIMARY KEY REFERENCES links(id) ON DELETE CASCADE,
			total_clicks INTEGER NOT NULL DEFAULT 0,
			unique_clicks INTEGER NOT NULL DEFAULT 0,
			last_click_at DATETIME
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
