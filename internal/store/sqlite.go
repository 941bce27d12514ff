package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"todoapi/internal/todo"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore provides item persistence in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = "user_id, todo_id, created_at, name, due_date, done, attachment_url"

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (todo.Item, error) {
	var item todo.Item
	err := row.Scan(&item.UserID, &item.TodoID, &item.CreatedAt, &item.Name, &item.DueDate, &item.Done, &item.AttachmentURL)
	return item, err
}

// ListByOwner returns the owner's items, most recently added first.
func (s *SQLiteStore) ListByOwner(ctx context.Context, userID string) ([]todo.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM todos WHERE user_id = ? ORDER BY rowid DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []todo.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get retrieves an item. The boolean is false when it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, userID, todoID string) (todo.Item, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM todos WHERE user_id = ? AND todo_id = ?", userID, todoID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return todo.Item{}, false, nil
	}
	if err != nil {
		return todo.Item{}, false, err
	}
	return item, true, nil
}

// Create stores item, overwriting any item with the same key.
func (s *SQLiteStore) Create(ctx context.Context, item todo.Item) (todo.Item, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO todos (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, todo_id) DO UPDATE SET
    created_at = excluded.created_at,
    name = excluded.name,
    due_date = excluded.due_date,
    done = excluded.done,
    attachment_url = excluded.attachment_url`,
		item.UserID, item.TodoID, item.CreatedAt, item.Name, item.DueDate, item.Done, item.AttachmentURL)
	if err != nil {
		return todo.Item{}, err
	}
	return item, nil
}

// Update sets name, due date and done on an existing item and returns the
// stored result.
func (s *SQLiteStore) Update(ctx context.Context, userID, todoID, name, dueDate string, done bool) (todo.Item, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET name = ?, due_date = ?, done = ? WHERE user_id = ? AND todo_id = ?",
		name, dueDate, done, userID, todoID)
	if err := checkAffected(res, err, todoID); err != nil {
		return todo.Item{}, err
	}
	item, found, err := s.Get(ctx, userID, todoID)
	if err != nil {
		return todo.Item{}, err
	}
	if !found {
		return todo.Item{}, fmt.Errorf("todo %s: %w", todoID, todo.ErrNotFound)
	}
	return item, nil
}

// SetAttachmentURL sets the attachment reference of an existing item.
func (s *SQLiteStore) SetAttachmentURL(ctx context.Context, userID, todoID, url string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET attachment_url = ? WHERE user_id = ? AND todo_id = ?", url, userID, todoID)
	return checkAffected(res, err, todoID)
}

func checkAffected(res sql.Result, err error, todoID string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("todo %s: %w", todoID, todo.ErrNotFound)
	}
	return nil
}

// Delete removes an item. Deleting a missing item is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, userID, todoID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE user_id = ? AND todo_id = ?", userID, todoID)
	return err
}
