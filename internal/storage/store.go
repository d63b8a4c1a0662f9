// Package storage persists fetched NFL data in a local SQLite database and
// exposes the health probe consumed by the health checker.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/gtonic/nfl-mcp-sub001/pkg/api"
)

// Store wraps the SQLite database holding teams, games, standings, and news
type Store struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewStore opens (or creates) the database at path and ensures the schema
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.WithField("path", path).Info("Storage initialized")
	return s, nil
}

// initSchema creates the tables if they do not exist
func (s *Store) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			abbreviation TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			team TEXT NOT NULL,
			week INTEGER NOT NULL,
			opponent TEXT NOT NULL,
			date TEXT,
			home INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (team, week)
		)`,
		`CREATE TABLE IF NOT EXISTS standings (
			team TEXT PRIMARY KEY,
			wins INTEGER NOT NULL,
			losses INTEGER NOT NULL,
			ties INTEGER NOT NULL DEFAULT 0,
			win_pct REAL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS news (
			headline TEXT PRIMARY KEY,
			summary TEXT,
			published TEXT,
			link TEXT,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertTeams inserts or updates the given teams
func (s *Store) UpsertTeams(ctx context.Context, teams []api.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, t := range teams {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO teams (abbreviation, name, location, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(abbreviation) DO UPDATE SET name=excluded.name, location=excluded.location, updated_at=excluded.updated_at`,
			t.Abbreviation, t.Name, t.Location, now)
		if err != nil {
			return fmt.Errorf("failed to upsert team %s: %w", t.Abbreviation, err)
		}
	}

	return tx.Commit()
}

// Teams returns all stored teams ordered by abbreviation
func (s *Store) Teams(ctx context.Context) ([]api.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT abbreviation, name, COALESCE(location, '') FROM teams ORDER BY abbreviation`)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []api.Team
	for rows.Next() {
		var t api.Team
		if err := rows.Scan(&t.Abbreviation, &t.Name, &t.Location); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// UpsertSchedule inserts or updates the given games for a team
func (s *Store) UpsertSchedule(ctx context.Context, team string, games []api.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, g := range games {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO games (team, week, opponent, date, home, result, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(team, week) DO UPDATE SET opponent=excluded.opponent, date=excluded.date, home=excluded.home, result=excluded.result, updated_at=excluded.updated_at`,
			team, g.Week, g.Opponent, g.Date, g.Home, g.Result, now)
		if err != nil {
			return fmt.Errorf("failed to upsert game week %d: %w", g.Week, err)
		}
	}

	return tx.Commit()
}

// Schedule returns the stored schedule for a team ordered by week
func (s *Store) Schedule(ctx context.Context, team string) ([]api.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week, opponent, COALESCE(date, ''), home, COALESCE(result, '') FROM games WHERE team = ? ORDER BY week`,
		team)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	var games []api.Game
	for rows.Next() {
		var g api.Game
		if err := rows.Scan(&g.Week, &g.Opponent, &g.Date, &g.Home, &g.Result); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpsertStandings inserts or updates the given standings
func (s *Store) UpsertStandings(ctx context.Context, standings []api.Standing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, st := range standings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO standings (team, wins, losses, ties, win_pct, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(team) DO UPDATE SET wins=excluded.wins, losses=excluded.losses, ties=excluded.ties, win_pct=excluded.win_pct, updated_at=excluded.updated_at`,
			st.Team, st.Wins, st.Losses, st.Ties, st.WinPct, now)
		if err != nil {
			return fmt.Errorf("failed to upsert standing for %s: %w", st.Team, err)
		}
	}

	return tx.Commit()
}

// Standings returns all stored standings ordered by win percentage
func (s *Store) Standings(ctx context.Context) ([]api.Standing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team, wins, losses, ties, COALESCE(win_pct, 0) FROM standings ORDER BY win_pct DESC, team`)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()

	var standings []api.Standing
	for rows.Next() {
		var st api.Standing
		if err := rows.Scan(&st.Team, &st.Wins, &st.Losses, &st.Ties, &st.WinPct); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}

// UpsertNews inserts or updates the given news items
func (s *Store) UpsertNews(ctx context.Context, items []api.NewsItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, n := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO news (headline, summary, published, link, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(headline) DO UPDATE SET summary=excluded.summary, published=excluded.published, link=excluded.link, updated_at=excluded.updated_at`,
			n.Headline, n.Summary, n.Published, n.Link, now)
		if err != nil {
			return fmt.Errorf("failed to upsert news item: %w", err)
		}
	}

	return tx.Commit()
}

// News returns the most recently updated news items, up to limit
func (s *Store) News(ctx context.Context, limit int) ([]api.NewsItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT headline, COALESCE(summary, ''), COALESCE(published, ''), COALESCE(link, '') FROM news ORDER BY updated_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	defer rows.Close()

	var items []api.NewsItem
	for rows.Next() {
		var n api.NewsItem
		if err := rows.Scan(&n.Headline, &n.Summary, &n.Published, &n.Link); err != nil {
			return nil, fmt.Errorf("failed to scan news item: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// HealthCheck probes the database and reports whether it is reachable,
// along with row counts as details. It never returns an error; failures are
// reflected in the healthy flag.
func (s *Store) HealthCheck(ctx context.Context) (bool, map[string]interface{}) {
	details := map[string]interface{}{
		"path": s.path,
	}

	if err := s.db.PingContext(ctx); err != nil {
		details["error"] = err.Error()
		return false, details
	}

	for _, table := range []string{"teams", "games", "standings", "news"} {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			details["error"] = err.Error()
			return false, details
		}
		details[table] = count
	}

	return true, details
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
