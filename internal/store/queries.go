package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/trop"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting every query
// method below run either standalone or inside a caller-managed
// transaction — the allocator and plan builder always pass the active
// *sql.Tx so reads observe the in-transaction view.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB returns the store's underlying Queryer for read-only callers that do
// not need an explicit transaction.
func (s *Store) DB() Queryer { return s.db }

const reservationColumns = `path, tag, port, project, task, sticky, created_at, last_used_at`

func scanReservation(row interface{ Scan(...any) error }) (reservation.Reservation, error) {
	var (
		path       string
		tag        sql.NullString
		port       int
		project    sql.NullString
		task       sql.NullString
		sticky     int
		createdAt  int64
		lastUsedAt int64
	)
	if err := row.Scan(&path, &tag, &port, &project, &task, &sticky, &createdAt, &lastUsedAt); err != nil {
		return reservation.Reservation{}, err
	}
	p, err := portspec.NewPort(port)
	if err != nil {
		return reservation.Reservation{}, err
	}
	r := reservation.Reservation{
		Key:        reservation.Key{Path: path, Tag: tag.String},
		Port:       p,
		Project:    project.String,
		Task:       task.String,
		Sticky:     sticky != 0,
		CreatedAt:  unixToTime(createdAt),
		LastUsedAt: unixToTime(lastUsedAt),
	}
	return r, nil
}

// GetReservation returns the reservation for key, or nil if none exists.
func GetReservation(ctx context.Context, q Queryer, key reservation.Key) (*reservation.Reservation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE path = ? AND tag IS ?`,
		key.Path, nullableTag(key.Tag))
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to read reservation %s", key)
	}
	return &r, nil
}

// GetReservationByPort returns the reservation holding port, or nil.
func GetReservationByPort(ctx context.Context, q Queryer, port portspec.Port) (*reservation.Reservation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE port = ?`, int(port))
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to read reservation for port %d", port)
	}
	return &r, nil
}

// IsPortReserved reports whether any reservation currently holds port.
func IsPortReserved(ctx context.Context, q Queryer, port portspec.Port) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE port = ?`, int(port)).Scan(&count); err != nil {
		return false, trop.Wrap(trop.KindIO, err, "failed to check port %d", port)
	}
	return count > 0, nil
}

// ListAll returns every reservation, ordered by port ascending.
func ListAll(ctx context.Context, q Queryer) ([]reservation.Reservation, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY port ASC`)
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to list reservations")
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListProjects returns the distinct, non-null, alphabetically sorted
// project names across all reservations.
func ListProjects(ctx context.Context, q Queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT project FROM reservations WHERE project IS NOT NULL AND project != '' ORDER BY project ASC`)
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to list projects")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, trop.Wrap(trop.KindIO, err, "failed to scan project")
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// GetReservationsByPath returns every reservation at exactly path,
// regardless of tag.
func GetReservationsByPath(ctx context.Context, q Queryer, path string) ([]reservation.Reservation, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE path = ? ORDER BY port ASC`, path)
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to query by path")
	}
	defer rows.Close()
	return scanAll(rows)
}

// GetReservationsByPathPrefix returns reservations whose key path equals
// prefix or has prefix as an ancestor directory.
func GetReservationsByPathPrefix(ctx context.Context, q Queryer, prefix string) ([]reservation.Reservation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE path = ? OR path LIKE ? ORDER BY port ASC`,
		prefix, prefix+"/%")
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to query by path prefix")
	}
	defer rows.Close()
	return scanAll(rows)
}

// GetReservedPortsInRange returns the ports currently reserved within r.
func GetReservedPortsInRange(ctx context.Context, q Queryer, r portspec.PortRange) ([]portspec.Port, error) {
	rows, err := q.QueryContext(ctx, `SELECT port FROM reservations WHERE port >= ? AND port <= ? ORDER BY port ASC`, int(r.Min), int(r.Max))
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to query reserved ports in range")
	}
	defer rows.Close()
	var out []portspec.Port
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, trop.Wrap(trop.KindIO, err, "failed to scan port")
		}
		out = append(out, portspec.Port(p))
	}
	return out, rows.Err()
}

// FindExpired returns reservations unused for longer than maxAge, measured
// against now.
func FindExpired(ctx context.Context, q Queryer, maxAgeSeconds int64, now int64) ([]reservation.Reservation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE (? - last_used_at) > ? ORDER BY port ASC`,
		now, maxAgeSeconds)
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "failed to query expired reservations")
	}
	defer rows.Close()
	return scanAll(rows)
}

// Create inserts a new reservation row.
func Create(ctx context.Context, q Queryer, r reservation.Reservation) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO reservations(path, tag, port, project, task, sticky, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Key.Path, nullableTag(r.Key.Tag), int(r.Port), nullableString(r.Project), nullableString(r.Task),
		boolToInt(r.Sticky), r.CreatedAt.Unix(), r.LastUsedAt.Unix())
	if err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to create reservation %s", r.Key)
	}
	return nil
}

// Update replaces the row for r.Key with r's values.
func Update(ctx context.Context, q Queryer, r reservation.Reservation) error {
	_, err := q.ExecContext(ctx,
		`UPDATE reservations SET port = ?, project = ?, task = ?, sticky = ?, created_at = ?, last_used_at = ?
		 WHERE path = ? AND tag IS ?`,
		int(r.Port), nullableString(r.Project), nullableString(r.Task), boolToInt(r.Sticky),
		r.CreatedAt.Unix(), r.LastUsedAt.Unix(), r.Key.Path, nullableTag(r.Key.Tag))
	if err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to update reservation %s", r.Key)
	}
	return nil
}

// Delete removes the row for key, if present (no-op if missing).
func Delete(ctx context.Context, q Queryer, key reservation.Key) error {
	_, err := q.ExecContext(ctx, `DELETE FROM reservations WHERE path = ? AND tag IS ?`, key.Path, nullableTag(key.Tag))
	if err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to delete reservation %s", key)
	}
	return nil
}

// UpdateLastUsed bumps last_used_at for key to now.
func UpdateLastUsed(ctx context.Context, q Queryer, key reservation.Key, now int64) error {
	_, err := q.ExecContext(ctx, `UPDATE reservations SET last_used_at = ? WHERE path = ? AND tag IS ?`, now, key.Path, nullableTag(key.Tag))
	if err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to touch reservation %s", key)
	}
	return nil
}

// BatchCreate inserts every reservation in rs using the supplied Queryer
// (expected to be an active transaction for atomicity).
func BatchCreate(ctx context.Context, q Queryer, rs []reservation.Reservation) error {
	for _, r := range rs {
		if err := Create(ctx, q, r); err != nil {
			return err
		}
	}
	return nil
}

// BatchDelete removes every key in keys using the supplied Queryer.
func BatchDelete(ctx context.Context, q Queryer, keys []reservation.Key) error {
	for _, k := range keys {
		if err := Delete(ctx, q, k); err != nil {
			return err
		}
	}
	return nil
}

func scanAll(rows *sql.Rows) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, trop.Wrap(trop.KindIO, err, "failed to scan reservation row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableTag(tag string) any {
	if tag == "" {
		return nil
	}
	return tag
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
