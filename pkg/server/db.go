package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gatovid/arena/pkg/server/internal/db"
)

// User is a registered account as the match runtime sees it. Email is the
// primary key; Name is the unique display name used as the in-game identity.
type User struct {
	Email    string
	Name     string
	AvatarID int
	BoardID  int
	Coins    int
}

// StatsDelta is the per-user outcome of a finished game, applied on top of
// the stored totals.
type StatsDelta struct {
	Coins        int
	PlaytimeMins int
	Wins         int
	Losses       int
}

// Database defines the interface for database operations
type Database interface {
	// UserByToken resolves a session token to its account
	UserByToken(token string) (*User, error)
	// UserByEmail returns the account with the given email
	UserByEmail(email string) (*User, error)
	// UserByName returns the account with the given display name
	UserByName(name string) (*User, error)

	// PersistStatsDelta applies a finished game's outcome to a user
	PersistStatsDelta(email string, delta StatsDelta) error

	// Close closes the database connection
	Close() error
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (Database, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	sqldb, err := db.NewDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &sqlDatabase{db: sqldb}, nil
}

// sqlDatabase adapts the sqlite layer to the Database interface.
type sqlDatabase struct {
	db *db.DB
}

func fromRow(row *db.UserRow) *User {
	return &User{
		Email:    row.Email,
		Name:     row.Name,
		AvatarID: row.AvatarID,
		BoardID:  row.BoardID,
		Coins:    row.Coins,
	}
}

func (s *sqlDatabase) UserByToken(token string) (*User, error) {
	row, err := s.db.UserByToken(token)
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

func (s *sqlDatabase) UserByEmail(email string) (*User, error) {
	row, err := s.db.UserByEmail(email)
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

func (s *sqlDatabase) UserByName(name string) (*User, error) {
	row, err := s.db.UserByName(name)
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

func (s *sqlDatabase) PersistStatsDelta(email string, delta StatsDelta) error {
	return s.db.UpdateStats(email, delta.Coins, delta.PlaytimeMins,
		delta.Wins, delta.Losses)
}

func (s *sqlDatabase) Close() error {
	return s.db.Close()
}
