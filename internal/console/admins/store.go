// Package admins manages persistent administrator accounts. The store speaks
// database/sql and picks its driver from the DSN: Postgres and MySQL for real
// deployments, SQLite for local development and tests.
package admins

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	ErrAdminNotFound       = errors.New("admin not found")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAdminDisabled       = errors.New("admin disabled")
	ErrUsernameAlreadyUsed = errors.New("username already exists")
)

// Admin is a persistent console administrator account.
type Admin struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Store manages admins persisted in a SQL database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the admin database and migrates schema. The driver is
// derived from the DSN: postgres:// and postgresql:// use pgx, mysql:// uses
// the MySQL driver, anything else is treated as a SQLite path.
func Open(dsn string) (*Store, error) {
	driver, dataSource := driverFor(dsn)

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("open admins db: %w", err)
	}

	if driver == "sqlite" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL: %w", err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS admins (
		id            VARCHAR(64) PRIMARY KEY,
		username      VARCHAR(128) NOT NULL UNIQUE,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(128) NOT NULL,
		role          VARCHAR(32) NOT NULL CHECK (role IN ('admin', 'super_admin')),
		enabled       INTEGER NOT NULL DEFAULT 1,
		created_at    VARCHAR(64) NOT NULL,
		last_login    VARCHAR(64)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create admins table: %w", err)
	}

	s := &Store{db: db, driver: driver}
	_, _ = db.Exec(s.rebind(`CREATE INDEX IF NOT EXISTS idx_admins_username ON admins(username)`))

	return s, nil
}

// Create creates a new admin with a generated UUID ID and bcrypt password hash.
func (s *Store) Create(username, email, password, role string) (*Admin, error) {
	if !validRole(role) {
		return nil, ErrInvalidRole
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	a := &Admin{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		Role:         role,
		Enabled:      true,
		CreatedAt:    now,
	}

	_, err = s.db.Exec(s.rebind(`INSERT INTO admins (id, username, email, password_hash, role, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`),
		a.ID, a.Username, a.Email, a.PasswordHash, a.Role, a.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameAlreadyUsed
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	return a, nil
}

// Get fetches an admin by ID.
func (s *Store) Get(id string) (*Admin, error) {
	return s.queryOne(`SELECT id, username, email, password_hash, role, enabled, created_at, last_login FROM admins WHERE id = ?`, id)
}

// GetByUsername fetches an admin by username.
func (s *Store) GetByUsername(username string) (*Admin, error) {
	return s.queryOne(`SELECT id, username, email, password_hash, role, enabled, created_at, last_login FROM admins WHERE username = ?`, username)
}

// List returns all admins.
func (s *Store) List() ([]Admin, error) {
	rows, err := s.db.Query(`SELECT id, username, email, password_hash, role, enabled, created_at, last_login FROM admins ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	admins := make([]Admin, 0)
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admins rows: %w", err)
	}

	return admins, nil
}

// UpdatePassword updates an admin's password hash.
func (s *Store) UpdatePassword(id, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.Exec(s.rebind(`UPDATE admins SET password_hash = ? WHERE id = ?`), string(hash), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return checkRowsAffected(res, ErrAdminNotFound)
}

// SetEnabled enables/disables an admin account. Disabling does not revoke
// already-issued tokens; those stay valid until expiry.
func (s *Store) SetEnabled(id string, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}

	res, err := s.db.Exec(s.rebind(`UPDATE admins SET enabled = ? WHERE id = ?`), enabledInt, id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}

	return checkRowsAffected(res, ErrAdminNotFound)
}

// Delete permanently removes an admin.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(s.rebind(`DELETE FROM admins WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}

	return checkRowsAffected(res, ErrAdminNotFound)
}

// Authenticate checks username/password and updates last_login.
func (s *Store) Authenticate(username, password string) (*Admin, error) {
	a, err := s.GetByUsername(username)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !a.Enabled {
		return nil, ErrAdminDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(s.rebind(`UPDATE admins SET last_login = ? WHERE id = ?`), now.Format(time.RFC3339Nano), a.ID); err != nil {
		return nil, fmt.Errorf("update last_login: %w", err)
	}

	a.LastLogin = &now
	return a, nil
}

// Count returns total number of admins.
func (s *Store) Count() int {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryOne(query string, args ...any) (*Admin, error) {
	row := s.db.QueryRow(s.rebind(query), args...)
	return scanAdmin(row)
}

// rebind rewrites ? placeholders to $N for the Postgres driver.
func (s *Store) rebind(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func driverFor(dsn string) (driver, dataSource string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	default:
		return "sqlite", dsn
	}
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAdmin(s scanner) (*Admin, error) {
	var (
		a                    Admin
		enabled              int
		createdAt, lastLogin sql.NullString
	)

	if err := s.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &enabled, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("scan admin: %w", err)
	}

	a.Enabled = enabled == 1
	if createdAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, createdAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		a.CreatedAt = t
	}
	if lastLogin.Valid && lastLogin.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_login: %w", err)
		}
		a.LastLogin = &t
	}

	return &a, nil
}

func checkRowsAffected(res sql.Result, errWhenZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errWhenZero
	}
	return nil
}

func validRole(role string) bool {
	switch role {
	case "admin", "super_admin":
		return true
	default:
		return false
	}
}
