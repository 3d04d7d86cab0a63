// Package reservation defines the reservation key and entity, along with
// the sticky-field authority rule used by the plan builder.
package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/trop"
)

// Key identifies a reservation by directory path and an optional tag.
type Key struct {
	Path string
	Tag  string // empty means no tag; NULL at the store layer
}

func (k Key) String() string {
	if k.Tag == "" {
		return k.Path
	}
	return fmt.Sprintf("%s:%s", k.Path, k.Tag)
}

// Reservation is the root entity persisted by the store.
type Reservation struct {
	Key         Key
	Port        portspec.Port
	Project     string // empty means unset
	Task        string // empty means unset
	Sticky      bool
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// Option customizes New's defaults; used by tests to pin timestamps.
type Option func(*Reservation)

// WithTimestamps overrides the created/last-used times that otherwise
// default to now.
func WithTimestamps(createdAt, lastUsedAt time.Time) Option {
	return func(r *Reservation) {
		r.CreatedAt = createdAt
		r.LastUsedAt = lastUsedAt
	}
}

// WithProject sets the sticky project field, trimmed and validated non-empty.
func WithProject(project string) Option {
	return func(r *Reservation) { r.Project = project }
}

// WithTask sets the sticky task field, trimmed and validated non-empty.
func WithTask(task string) Option {
	return func(r *Reservation) { r.Task = task }
}

// WithSticky sets the sticky flag (reserved for future use, defaults false).
func WithSticky(sticky bool) Option {
	return func(r *Reservation) { r.Sticky = sticky }
}

// New builds a validated Reservation for key/port. Project and task, if
// supplied via options, must be non-empty after trimming.
func New(key Key, port portspec.Port, opts ...Option) (Reservation, error) {
	now := time.Now()
	r := Reservation{
		Key:        key,
		Port:       port,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.CreatedAt.After(r.LastUsedAt) {
		r.LastUsedAt = r.CreatedAt
	}
	if err := validateTrimmed("project", r.Project); err != nil {
		return Reservation{}, err
	}
	if err := validateTrimmed("task", r.Task); err != nil {
		return Reservation{}, err
	}
	r.Project = strings.TrimSpace(r.Project)
	r.Task = strings.TrimSpace(r.Task)
	return r, nil
}

func validateTrimmed(field, value string) error {
	if value == "" {
		return nil
	}
	if strings.TrimSpace(value) == "" {
		return trop.New(trop.KindValidation, "%s must be non-empty after trimming", field)
	}
	return nil
}

// Authority captures which overrides the caller presented to change a
// sticky field. It is evaluated once per plan build, never re-derived at
// individual call sites.
type Authority struct {
	Force              bool
	AllowProjectChange bool
	AllowTaskChange    bool
	AllowChange        bool
}

func (a Authority) allows(field string) bool {
	if a.Force || a.AllowChange {
		return true
	}
	switch field {
	case "project":
		return a.AllowProjectChange
	case "task":
		return a.AllowTaskChange
	}
	return false
}

// CheckStickyChange returns an error if changing a sticky field from
// oldValue to newValue is not authorized. Equal values (including both
// empty) are never a violation.
func CheckStickyChange(field, oldValue, newValue string, authority Authority) error {
	if oldValue == newValue {
		return nil
	}
	if authority.allows(field) {
		return nil
	}
	return &trop.Error{
		Kind:    trop.KindStickyFieldChange,
		Field:   field,
		Message: fmt.Sprintf("refusing to change sticky field %q from %q to %q without authorization", field, oldValue, newValue),
	}
}
