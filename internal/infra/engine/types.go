package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// Row is a single record exchanged with the data engine.
type Row = map[string]any

// Result carries the engine's returned representation plus the number of rows
// it contains. Count is accurate even when zero rows matched.
type Result struct {
	Data  json.RawMessage
	Count int
}

// Object is one entry of a storage listing.
type Object struct {
	Name      string `json:"name"`
	ID        string `json:"id,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Database is the row-store surface of the data engine.
type Database interface {
	Select(ctx context.Context, table string, columns []string, filters map[string]string) (*Result, error)
	Insert(ctx context.Context, table string, rows []Row) (*Result, error)
	Upsert(ctx context.Context, table string, rows []Row) (*Result, error)
	Update(ctx context.Context, table string, values Row, filters map[string]string) (*Result, error)
	Delete(ctx context.Context, table string, filters map[string]string) (*Result, error)
}

// Storage is the object-store surface of the data engine.
type Storage interface {
	Upload(ctx context.Context, bucket, path string, content []byte, contentType string) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Remove(ctx context.Context, bucket string, paths []string) error
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
}

// Procedures invokes named remote procedures on the data engine.
type Procedures interface {
	Call(ctx context.Context, function string, args map[string]any) (json.RawMessage, error)
}

// Error is a failure reported by the data engine itself. The engine's own
// message is preserved so callers can pass it through unmodified.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(status int, body []byte) *Error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		case payload.Msg != "":
			msg = payload.Msg
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("data engine returned status %d", status)
	}
	return &Error{StatusCode: status, Message: msg}
}
