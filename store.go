package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repository is the capability set every dashboard collection exposes.
type Repository[T Record] interface {
	Find(ctx context.Context, q string) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Insert(ctx context.Context, rec T) error
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, id string) error
}

// Repos groups the dashboard collections handed to the HTTP layer.
type Repos struct {
	Members       Repository[*Member]
	Organizations Repository[*Organization]
	Subscriptions Repository[*Subscription]
	APIKeys       Repository[*APIKey]
}

const (
	tableMembers       = "members"
	tableOrganizations = "organizations"
	tableSubscriptions = "subscriptions"
	tableAPIKeys       = "api_keys"
)

var docTables = []string{tableMembers, tableOrganizations, tableSubscriptions, tableAPIKeys}

func newMemoryRepos() Repos {
	return Repos{
		Members:       newMemRepo[*Member](),
		Organizations: newMemRepo[*Organization](),
		Subscriptions: newMemRepo[*Subscription](),
		APIKeys:       newMemRepo[*APIKey](),
	}
}

func newSQLRepos(db *sql.DB, ph placeholder) Repos {
	return Repos{
		Members:       newSQLRepo(db, tableMembers, ph, func() *Member { return new(Member) }),
		Organizations: newSQLRepo(db, tableOrganizations, ph, func() *Organization { return new(Organization) }),
		Subscriptions: newSQLRepo(db, tableSubscriptions, ph, func() *Subscription { return new(Subscription) }),
		APIKeys:       newSQLRepo(db, tableAPIKeys, ph, func() *APIKey { return new(APIKey) }),
	}
}

// memRepo keeps records in insertion order.
type memRepo[T Record] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

func newMemRepo[T Record]() *memRepo[T] {
	return &memRepo[T]{items: map[string]T{}}
}

func (m *memRepo[T]) Find(_ context.Context, q string) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		if rec := m.items[id]; rec.Matches(q) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRepo[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return rec, nil
}

func (m *memRepo[T]) Insert(_ context.Context, rec T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := rec.RecordID()
	if _, ok := m.items[id]; ok {
		return ErrDuplicate
	}
	m.items[id] = rec
	m.order = append(m.order, id)
	return nil
}

func (m *memRepo[T]) Update(_ context.Context, rec T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := rec.RecordID()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	m.items[id] = rec
	return nil
}

func (m *memRepo[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type placeholder func(n int) string

func questionMark(int) string { return "?" }
func dollar(n int) string     { return "$" + strconv.Itoa(n) }

// sqlRepo stores each record as a JSON document keyed by id.
type sqlRepo[T Record] struct {
	db    *sql.DB
	table string
	ph    placeholder
	newT  func() T
}

func newSQLRepo[T Record](db *sql.DB, table string, ph placeholder, newT func() T) *sqlRepo[T] {
	return &sqlRepo[T]{db: db, table: table, ph: ph, newT: newT}
}

func (s *sqlRepo[T]) decode(body string) (T, error) {
	rec := s.newT()
	if err := json.Unmarshal([]byte(body), rec); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s record: %w", s.table, err)
	}
	return rec, nil
}

func (s *sqlRepo[T]) Find(ctx context.Context, q string) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM `+s.table+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := s.decode(body)
		if err != nil {
			return nil, err
		}
		if rec.Matches(q) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *sqlRepo[T]) Get(ctx context.Context, id string) (T, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM `+s.table+` WHERE id = `+s.ph(1), id).Scan(&body)
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	return s.decode(body)
}

func (s *sqlRepo[T]) Insert(ctx context.Context, rec T) error {
	if _, err := s.Get(ctx, rec.RecordID()); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+s.table+`(id,body) VALUES(`+s.ph(1)+`,`+s.ph(2)+`)`, rec.RecordID(), string(body))
	return err
}

func (s *sqlRepo[T]) Update(ctx context.Context, rec T) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+s.table+` SET body = `+s.ph(1)+` WHERE id = `+s.ph(2), string(body), rec.RecordID())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlRepo[T]) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = `+s.ph(1), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
