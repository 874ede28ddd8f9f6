package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS earthquakes (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			place TEXT NOT NULL DEFAULT '',
			magnitude REAL NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			depth REAL NOT NULL DEFAULT 0,
			time_ms INTEGER NOT NULL DEFAULT 0,
			url TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_earthquakes_time ON earthquakes(time_ms);
		CREATE INDEX IF NOT EXISTS idx_earthquakes_lat_lon ON earthquakes(latitude, longitude);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Add(ctx context.Context, e *models.Earthquake) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO earthquakes (id, source, title, place, magnitude, latitude, longitude, depth, time_ms, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Title, e.Place, e.Magnitude, e.Latitude, e.Longitude, e.Depth,
		toMillis(e.Time), e.URL, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("error inserting earthquake %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Earthquake, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM earthquakes WHERE id = ?`, id)

	e, err := scanEarthquake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning earthquake %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLiteDB) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM earthquakes WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking earthquake %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteDB) ListEarthquakes(ctx context.Context, opts Filter) ([]models.Earthquake, error) {
	var (
		where []string
		args  []any
	)

	if opts.Since != nil {
		where = append(where, "time_ms >= ?")
		args = append(args, toMillis(*opts.Since))
	}
	if opts.MinMagnitude != nil {
		where = append(where, "magnitude >= ?")
		args = append(args, *opts.MinMagnitude)
	}
	if opts.Near != nil {
		minLat, maxLat, minLon, maxLon := geo.BoundingBox(*opts.Near, opts.RadiusKm)
		where = append(where, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, minLat, maxLat, minLon, maxLon)
	}

	query := `SELECT ` + columns + ` FROM earthquakes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_ms DESC, id ASC"

	// the bounding box over-selects, so the limit is applied after the exact radius check
	if opts.Limit > 0 && opts.Near == nil {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing earthquakes: %w", err)
	}
	defer rows.Close()

	var results []models.Earthquake
	for rows.Next() {
		e, err := scanEarthquake(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning earthquake: %w", err)
		}
		if opts.Near != nil && geo.DistanceKm(*opts.Near, e.Point()) > opts.RadiusKm {
			continue
		}
		results = append(results, *e)
		if opts.Limit > 0 && len(results) == opts.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earthquakes: %w", err)
	}

	return results, nil
}

// Prune removes events that occurred before the cutoff. Events without an
// origin time are aged by their ingestion time instead.
func (s *SQLiteDB) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := toMillis(before)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM earthquakes
		WHERE (time_ms > 0 AND time_ms < ?) OR (time_ms = 0 AND created_at < ?)`, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error pruning earthquakes: %w", err)
	}
	return res.RowsAffected()
}

const columns = `id, source, title, place, magnitude, latitude, longitude, depth, time_ms, url, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEarthquake(row scanner) (*models.Earthquake, error) {
	var (
		e                 models.Earthquake
		timeMs, createdMs int64
	)
	if err := row.Scan(&e.ID, &e.Source, &e.Title, &e.Place, &e.Magnitude, &e.Latitude, &e.Longitude,
		&e.Depth, &timeMs, &e.URL, &createdMs); err != nil {
		return nil, err
	}
	e.Time = fromMillis(timeMs)
	e.CreatedAt = fromMillis(createdMs)
	return &e, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
