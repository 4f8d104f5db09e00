package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"lostfound.gg/internal/sim/world"
)

// Store keeps retired player results in a SQLite file. Writes go through a
// single background goroutine so the game loop never waits on disk; reads
// flush the queue first, which makes a freshly retired player visible to the
// records endpoint immediately after the tick that retired it.
type Store struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type req struct {
	row  *world.RetiredPlayer
	sync chan struct{}
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan req, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS retired_players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			score INTEGER NOT NULL,
			play_time_ms INTEGER NOT NULL,
			retired_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_retired_rank
			ON retired_players(score DESC, play_time_ms, name);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveRetired queues a retirement row. Unlike a metrics sink, results must
// not be lost, so the send blocks when the writer falls behind.
func (s *Store) SaveRetired(r world.RetiredPlayer) error {
	if s.closed.Load() {
		return fmt.Errorf("record store is closed")
	}
	s.ch <- req{row: &r}
	return nil
}

// Records returns the leaderboard page [start, start+limit), best first.
func (s *Store) Records(start, limit int) ([]world.PlayerRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.flush()

	rows, err := s.db.Query(
		`SELECT name, score, play_time_ms FROM retired_players
		 ORDER BY score DESC, play_time_ms ASC, name ASC
		 LIMIT ? OFFSET ?`, limit, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.PlayerRecord
	for rows.Next() {
		var r world.PlayerRecord
		if err := rows.Scan(&r.Name, &r.Score, &r.PlayTimeMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// flush waits until every row queued before the call has been committed.
func (s *Store) flush() {
	if s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{sync: done}
	<-done
}

func (s *Store) loop() {
	ctx := context.Background()

	insert, err := s.db.Prepare(
		`INSERT OR REPLACE INTO retired_players(id,name,score,play_time_ms,retired_at)
		 VALUES(?,?,?,?,?)`)
	if err != nil {
		// Without the statement every write would fail anyway; drain and quit.
		for r := range s.ch {
			if r.sync != nil {
				close(r.sync)
			}
		}
		return
	}
	defer insert.Close()

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 64
		commitWait  = time.Second
	)

	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.sync != nil {
			commit()
			close(r.sync)
			continue
		}
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			tx = txx
			lastCommit = time.Now()
		}
		row := r.row
		if _, err := tx.Stmt(insert).Exec(
			row.ID.String(),
			row.Name,
			row.Score,
			row.PlayTime.Milliseconds(),
			time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitWait {
			commit()
		}
	}
	commit()
}
