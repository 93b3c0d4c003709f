package main

import (
	"database/sql"
	"errors"
	"sync"
	"time"
)

// DB interface for database operations
type DB interface {
	Init() error
	// Identity operations
	CreateUser(email, password, fullName, role string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id int64) (*User, error)
	// Dashboard collections
	Repos() Repos
}

var errUserExists = errors.New("user exists")

// Memory DB
type MemDB struct {
	mu    sync.Mutex
	users map[string]*User
	seq   int64
	repos Repos
}

func NewMemoryDB() *MemDB {
	return &MemDB{users: map[string]*User{}, seq: 1, repos: newMemoryRepos()}
}

func (m *MemDB) Init() error  { return nil }
func (m *MemDB) Repos() Repos { return m.repos }

func (m *MemDB) CreateUser(email, password, fullName, role string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, errUserExists
	}
	u := &User{ID: m.seq, Email: email, Password: password, FullName: fullName, Role: role, CreatedAt: time.Now().UTC()}
	m.seq++
	m.users[email] = u
	return u, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// SQLite DB
type SQLiteDB struct {
	db    *sql.DB
	path  string
	repos Repos
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path, repos: newSQLRepos(d, questionMark)}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT UNIQUE, password TEXT, full_name TEXT NOT NULL DEFAULT '', image TEXT NOT NULL DEFAULT '', role TEXT NOT NULL DEFAULT 'user', email_verified INTEGER NOT NULL DEFAULT 0, created_at TEXT);`,
	}
	for _, t := range docTables {
		queries = append(queries, `CREATE TABLE IF NOT EXISTS `+t+` (seq INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT UNIQUE NOT NULL, body TEXT NOT NULL, created_at TEXT DEFAULT CURRENT_TIMESTAMP);`)
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) Repos() Repos { return s.repos }

func (s *SQLiteDB) CreateUser(email, password, fullName, role string) (*User, error) {
	if existing, err := s.GetUserByEmail(email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errUserExists
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO users(email,password,full_name,role,created_at) VALUES(?,?,?,?,?)`, email, password, fullName, role, now.Format(sqliteTime))
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Email: email, Password: password, FullName: fullName, Role: role, CreatedAt: now}, nil
}

const sqliteTime = "2006-01-02 15:04:05"

const userColumns = `id,email,password,full_name,image,role,email_verified,created_at`

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return scanSQLiteUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	return scanSQLiteUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func scanSQLiteUser(row *sql.Row) (*User, error) {
	var u User
	var verified int
	var created sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Image, &u.Role, &verified, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.EmailVerified = verified != 0
	if created.Valid {
		u.CreatedAt, _ = time.Parse(sqliteTime, created.String)
	}
	return &u, nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
