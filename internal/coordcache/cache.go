// Package coordcache persists geocoded parcel coordinates in SQLite so
// repeated runs do not geocode the same address twice. The cache is
// best-effort: a miss or a lookup failure leaves the parcel without
// coordinates, it never fails an extraction.
package coordcache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/parcel-sampler/internal/address"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// Cache is a caller-owned coordinate cache keyed by normalized address.
type Cache struct {
	db *sql.DB
}

// Entry is one cached coordinate.
type Entry struct {
	Address string
	Coords  model.Coords
	Source  string
}

// Open opens a SQLite database at dsn and configures WAL mode.
func Open(dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "coordcache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "coordcache: exec %s", pragma)
		}
	}
	return &Cache{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS parcel_coords (
	address_key TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	lat         REAL NOT NULL,
	lng         REAL NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the cache table.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "coordcache: migrate")
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached coordinates for addr, or nil on a miss.
func (c *Cache) Get(ctx context.Context, addr string) (*model.Coords, error) {
	key := address.Normalize(addr)
	if key == "" {
		return nil, nil
	}
	var coords model.Coords
	err := c.db.QueryRowContext(ctx,
		`SELECT lat, lng FROM parcel_coords WHERE address_key = ?`, key,
	).Scan(&coords.Lat, &coords.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "coordcache: get %q", addr)
	}
	return &coords, nil
}

// Put stores or replaces the coordinates of addr.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	key := address.Normalize(e.Address)
	if key == "" {
		return eris.New("coordcache: empty address")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO parcel_coords (address_key, address, lat, lng, source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address_key) DO UPDATE SET
			address = excluded.address,
			lat = excluded.lat,
			lng = excluded.lng,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		key, e.Address, e.Coords.Lat, e.Coords.Lng, e.Source, time.Now().UTC(),
	)
	return eris.Wrapf(err, "coordcache: put %q", e.Address)
}

// Count returns the number of cached addresses.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parcel_coords`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "coordcache: count")
	}
	return n, nil
}

// AttachStats counts the outcome of Attach.
type AttachStats struct {
	Hits   int
	Misses int
	Failed int
}

// Attach returns copies of parcels with cached coordinates filled in where
// a parcel has none. Lookup errors are logged and the parcel stays
// coordinate-less. Only context cancellation is returned.
func (c *Cache) Attach(ctx context.Context, parcels []model.Parcel) ([]model.Parcel, AttachStats, error) {
	var stats AttachStats
	out := make([]model.Parcel, len(parcels))
	for i, p := range parcels {
		if err := ctx.Err(); err != nil {
			return nil, stats, eris.Wrap(err, "coordcache: attach")
		}
		out[i] = p.Clone()
		if p.Coords != nil {
			continue
		}
		coords, err := c.Get(ctx, p.Address)
		switch {
		case err != nil:
			stats.Failed++
			zap.L().Debug("coordcache: lookup failed", zap.String("address", p.Address), zap.Error(err))
		case coords == nil:
			stats.Misses++
		default:
			stats.Hits++
			out[i].Coords = coords
		}
	}
	zap.L().Info("coordcache: coordinates attached",
		zap.Int("hits", stats.Hits),
		zap.Int("misses", stats.Misses),
		zap.Int("failed", stats.Failed),
	)
	return out, stats, nil
}

// ImportRows stores address/lat/lng rows under a header row. Header
// spellings follow the parcel workbooks (주소/위도/경도 or
// address/lat/lng). It returns the number of rows stored.
func (c *Cache) ImportRows(ctx context.Context, rows [][]string, source string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	addrIdx, latIdx, lngIdx := columnIndex(rows[0])
	if addrIdx < 0 || latIdx < 0 || lngIdx < 0 {
		return 0, eris.New("coordcache: header needs address, lat and lng columns")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "coordcache: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO parcel_coords (address_key, address, lat, lng, source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address_key) DO UPDATE SET
			address = excluded.address, lat = excluded.lat, lng = excluded.lng,
			source = excluded.source, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "coordcache: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	stored, skipped := 0, 0
	for _, row := range rows[1:] {
		e, ok := parseRow(row, addrIdx, latIdx, lngIdx)
		if !ok {
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx, address.Normalize(e.Address), e.Address, e.Coords.Lat, e.Coords.Lng, source, now); err != nil {
			return 0, eris.Wrapf(err, "coordcache: import %q", e.Address)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "coordcache: commit import")
	}

	zap.L().Info("coordcache: rows imported", zap.Int("stored", stored), zap.Int("skipped", skipped))
	return stored, nil
}
