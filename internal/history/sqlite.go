package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"smscast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history: sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, e Entry) (Record, error) {
	if strings.TrimSpace(e.Recipient) == "" {
		return Record{}, ErrInvalidEntry
	}
	now := s.now()
	r := Record{
		Date:      now.Format(dateLayout),
		Time:      now.Format("15:04:05"),
		Timestamp: now.UnixMilli(),
		Recipient: e.Recipient,
		Phone:     e.Phone,
		Message:   e.Message,
		Status:    statusOf(e),
		Error:     e.Error,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_history(date, time, ts, recipient, phone, message, status, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.Date, r.Time, r.Timestamp, r.Recipient, r.Phone, r.Message, r.Status, nullStr(r.Error),
	)
	if err != nil {
		return Record{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, err
	}
	r.ID = id
	return r, nil
}

func (s *sqliteStore) AppendBatch(ctx context.Context, entries []Entry) ([]Record, error) {
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		r, err := s.Append(ctx, e)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

const recordCols = `id, date, time, ts, recipient, phone, message, status, COALESCE(err, '')`

func (s *sqliteStore) Query(ctx context.Context, w Window) ([]Record, error) {
	cutoff, bounded := cutoffDate(w, s.now())
	if !bounded {
		return s.scan(ctx, `SELECT `+recordCols+` FROM delivery_history ORDER BY id DESC`)
	}
	return s.scan(ctx, `SELECT `+recordCols+` FROM delivery_history WHERE date >= ? ORDER BY id DESC`, cutoff)
}

func (s *sqliteStore) Stats(ctx context.Context, w Window) (Stats, error) {
	q := `SELECT COUNT(*), COALESCE(SUM(status = ?), 0) FROM delivery_history`
	args := []any{StatusSuccess}
	if cutoff, bounded := cutoffDate(w, s.now()); bounded {
		q += ` WHERE date >= ?`
		args = append(args, cutoff)
	}

	var st Stats
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&st.Total, &st.Success); err != nil {
		return Stats{}, err
	}
	st.Failed = st.Total - st.Success
	st.SuccessRate = rate(st.Success, st.Total)
	return st, nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit < 0 {
		limit = 0
	}
	return s.scan(ctx, `SELECT `+recordCols+` FROM delivery_history ORDER BY id DESC LIMIT ?`, limit)
}

func (s *sqliteStore) ByDate(ctx context.Context, date string) ([]Record, error) {
	return s.scan(ctx, `SELECT `+recordCols+` FROM delivery_history WHERE date = ? ORDER BY id DESC`, date)
}

func (s *sqliteStore) MonthlySummary(ctx context.Context) (map[string]Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(date, 1, 7) AS ym, COUNT(*), COALESCE(SUM(status = ?), 0)
		 FROM delivery_history GROUP BY ym`, StatusSuccess)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sum := make(map[string]Stats)
	for rows.Next() {
		var ym string
		var st Stats
		if err := rows.Scan(&ym, &st.Total, &st.Success); err != nil {
			return nil, err
		}
		st.Failed = st.Total - st.Success
		st.SuccessRate = rate(st.Success, st.Total)
		sum[ym] = st
	}
	return sum, rows.Err()
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM delivery_history WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delivery_history`)
	return err
}

func (s *sqliteStore) scan(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Date, &r.Time, &r.Timestamp, &r.Recipient, &r.Phone, &r.Message, &r.Status, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
