package db

import (
	"database/sql"
	"fmt"
)

// DB represents the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL UNIQUE,
			avatar_id INTEGER NOT NULL DEFAULT 0,
			board_id INTEGER NOT NULL DEFAULT 0,
			coins INTEGER NOT NULL DEFAULT 0,
			playtime_mins INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// UserRow is a row of the users table.
type UserRow struct {
	Email        string
	Name         string
	Token        string
	AvatarID     int
	BoardID      int
	Coins        int
	PlaytimeMins int
	Wins         int
	Losses       int
}

const userColumns = `email, name, token, avatar_id, board_id, coins, playtime_mins, wins, losses`

func scanUser(row *sql.Row) (*UserRow, error) {
	var u UserRow
	err := row.Scan(&u.Email, &u.Name, &u.Token, &u.AvatarID, &u.BoardID,
		&u.Coins, &u.PlaytimeMins, &u.Wins, &u.Losses)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %v", err)
	}
	return &u, nil
}

// UserByEmail returns the user with the given email
func (db *DB) UserByEmail(email string) (*UserRow, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// UserByToken returns the user holding the given session token
func (db *DB) UserByToken(token string) (*UserRow, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE token = ?`, token))
}

// UserByName returns the user with the given display name
func (db *DB) UserByName(name string) (*UserRow, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE name = ?`, name))
}

// CreateUser inserts a new user row
func (db *DB) CreateUser(u *UserRow) error {
	_, err := db.Exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.Email, u.Name, u.Token, u.AvatarID, u.BoardID,
		u.Coins, u.PlaytimeMins, u.Wins, u.Losses)
	if err != nil {
		return fmt.Errorf("failed to create user: %v", err)
	}
	return nil
}

// UpdateStats applies a post-game stats delta to a user in one transaction
func (db *DB) UpdateStats(email string, coins, playtimeMins, wins, losses int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE users SET
			coins = coins + ?,
			playtime_mins = playtime_mins + ?,
			wins = wins + ?,
			losses = losses + ?
		WHERE email = ?
	`, coins, playtimeMins, wins, losses, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user not found")
	}

	return tx.Commit()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
