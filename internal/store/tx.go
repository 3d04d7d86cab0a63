package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/trop-dev/trop/internal/trop"
)

// retryLimiter spaces out lock-acquisition retries instead of busy-looping
// tight against SQLITE_BUSY; the SQLite-level busy_timeout PRAGMA already
// handles most contention, this is a second line of defense for the rare
// case a BEGIN IMMEDIATE itself is rejected immediately.
var retryLimiter = rate.NewLimiter(rate.Every(20*time.Millisecond), 1)

// BeginImmediate opens an immediate transaction (reserving the write lock
// up front to avoid upgrade deadlocks), retrying with bounded backoff until
// cfg.BusyTimeout elapses. The store's DSN carries _txlock=immediate, so
// the driver's own BEGIN (issued inside BeginTx) is already an immediate
// one; a second explicit "BEGIN IMMEDIATE" would fail since the
// transaction is already open.
func (s *Store) BeginImmediate(ctx context.Context) (*sql.Tx, error) {
	deadline := nowFunc().Add(s.cfg.BusyTimeout)
	if s.cfg.BusyTimeout <= 0 {
		deadline = nowFunc().Add(5 * time.Second)
	}

	for {
		tx, err := s.db.BeginTx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		if isBusy(err) {
			if waitErr := waitForRetry(ctx, deadline); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		return nil, trop.Wrap(trop.KindIO, err, "failed to begin transaction")
	}
}

func waitForRetry(ctx context.Context, deadline time.Time) error {
	if nowFunc().After(deadline) {
		return trop.New(trop.KindLockTimeout, "timed out waiting for the reservation store lock")
	}
	if err := retryLimiter.Wait(ctx); err != nil {
		return trop.Wrap(trop.KindIO, err, "interrupted while waiting for store lock")
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
