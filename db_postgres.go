package main

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db    *sql.DB
	dsn   string
	repos Repos
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn, repos: newSQLRepos(d, dollar)}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func (p *PostgresDB) Repos() Repos { return p.repos }

func (p *PostgresDB) CreateUser(email, password, fullName, role string) (*User, error) {
	u := &User{Email: email, Password: password, FullName: fullName, Role: role}
	err := p.db.QueryRow(`INSERT INTO users(email,password,full_name,role,created_at) VALUES($1,$2,$3,$4,now()) RETURNING id,created_at`, email, password, fullName, role).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, errUserExists
		}
		return nil, err
	}
	return u, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	return scanPostgresUser(p.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	return scanPostgresUser(p.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func scanPostgresUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Image, &u.Role, &u.EmailVerified, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
