package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"             // sqlite driver
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const schema = `
create table if not exists sessions (
	id             text primary key,
	extracted_text text not null default '',
	lines          text not null default '[]',
	has_text       boolean not null default false,
	engine         text not null default '',
	updated_at     timestamp not null
)`

// SQLStore keeps sessions in a single "sessions" table on Postgres or SQLite.
// Rows older than ttl are ignored on load and removed by PurgeOlderThan.
type SQLStore struct {
	DB     *sql.DB
	driver string
	ttl    time.Duration
}

// OpenSQL opens and pings a pool for the given driver.
func OpenSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver == DriverSQLite && !strings.Contains(dsn, "_time_format") {
		// "YYYY-MM-DD HH:MM:SS.fff+00:00" timestamps
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

func NewSQLStore(db *sql.DB, driver string, ttl time.Duration) *SQLStore {
	return &SQLStore{DB: db, driver: driver, ttl: ttl}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Load(ctx context.Context, id string) (*State, error) {
	q := s.rebind(`select extracted_text, lines, has_text, engine, updated_at
	               from sessions where id=?`)
	var (
		st    = State{ID: id}
		lines string
	)
	err := s.DB.QueryRowContext(ctx, q, id).Scan(&st.ExtractedText, &lines, &st.HasText, &st.Engine, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return New(id), nil
	}
	if err != nil {
		return nil, err
	}
	if expired(&st, s.ttl) {
		return New(id), nil
	}
	if lines != "" {
		// broken lines only lose the re-display, the text itself is intact
		_ = json.Unmarshal([]byte(lines), &st.Lines)
	}
	return &st, nil
}

func (s *SQLStore) Save(ctx context.Context, st *State) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	lines, _ := json.Marshal(st.Lines)
	if st.Lines == nil {
		lines = []byte("[]")
	}
	q := s.rebind(`
insert into sessions(id, extracted_text, lines, has_text, engine, updated_at)
values (?,?,?,?,?,?)
on conflict (id)
do update set extracted_text=excluded.extracted_text, lines=excluded.lines,
              has_text=excluded.has_text, engine=excluded.engine, updated_at=excluded.updated_at`)
	_, err := s.DB.ExecContext(ctx, q, st.ID, st.ExtractedText, string(lines), st.HasText, st.Engine, st.UpdatedAt.UTC())
	return err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, s.rebind(`delete from sessions where id=?`), id)
	return err
}

// PurgeOlderThan deletes sessions not updated since cutoff and returns how
// many were removed.
func (s *SQLStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, s.rebind(`delete from sessions where updated_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.DB.Close() }

// rebind turns ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
