package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nimbusoft/datagate/internal/infra/engine"
)

// Operation is the closed set of request variants the router dispatches.
// Every variant is built by ParseRequest; nothing else implements it.
type Operation interface {
	isOperation()
}

type HealthOp struct{}

type DatabaseAction string

const (
	ActionSelect DatabaseAction = "select"
	ActionInsert DatabaseAction = "insert"
	ActionUpdate DatabaseAction = "update"
	ActionDelete DatabaseAction = "delete"
	ActionUpsert DatabaseAction = "upsert"
)

type DatabaseOp struct {
	Action  DatabaseAction
	Table   string
	Columns []string
	Filters map[string]string
	Rows    []engine.Row // insert, upsert
	Values  engine.Row   // update
	ID      string       // update, delete target row
}

type StorageAction string

const (
	ActionUpload   StorageAction = "upload"
	ActionDownload StorageAction = "download"
	ActionRemove   StorageAction = "remove"
	ActionList     StorageAction = "list"
)

type StorageOp struct {
	Action      StorageAction
	Bucket      string
	Path        string
	Paths       []string // remove
	Prefix      string   // list
	Content     string   // upload, base64-encoded payload
	ContentType string
}

type RPCOp struct {
	Function string
	Args     map[string]any
}

func (HealthOp) isOperation()    {}
func (*DatabaseOp) isOperation() {}
func (*StorageOp) isOperation()  {}
func (*RPCOp) isOperation()      {}

// envelope is the wire shape of a proxy request body. Fields beyond resource
// and operation are resource-specific.
type envelope struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`

	Table   string          `json:"table"`
	Columns []string        `json:"columns"`
	Filters map[string]any  `json:"filters"`
	Values  json.RawMessage `json:"values"`
	ID      any             `json:"id"`

	Bucket      string   `json:"bucket"`
	Path        string   `json:"path"`
	Paths       []string `json:"paths"`
	Prefix      string   `json:"prefix"`
	Content     string   `json:"content"`
	ContentType string   `json:"contentType"`

	Function string         `json:"function"`
	Args     map[string]any `json:"args"`
}

// ParseRequest decodes a request body into its operation variant. Unknown
// resources and sub-operations fail with ErrUnsupported; recognized
// operations with missing or undecodable fields fail with ErrInvalidRequest.
func ParseRequest(body []byte) (Operation, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	switch env.Resource {
	case "health":
		return HealthOp{}, nil
	case "database":
		return parseDatabase(&env)
	case "storage":
		return parseStorage(&env)
	case "rpc":
		return parseRPC(&env)
	case "":
		return nil, fmt.Errorf("%w: missing resource", ErrInvalidRequest)
	default:
		return nil, fmt.Errorf("%w: unknown resource %q", ErrUnsupported, env.Resource)
	}
}

func parseDatabase(env *envelope) (Operation, error) {
	if env.Table == "" {
		return nil, fmt.Errorf("%w: database operations require a table", ErrInvalidRequest)
	}

	filters, err := stringifyFilters(env.Filters)
	if err != nil {
		return nil, err
	}

	op := &DatabaseOp{
		Table:   env.Table,
		Columns: env.Columns,
		Filters: filters,
	}

	switch DatabaseAction(env.Operation) {
	case ActionSelect:
		op.Action = ActionSelect
	case ActionInsert, ActionUpsert:
		op.Action = DatabaseAction(env.Operation)
		rows, err := decodeRows(env.Values)
		if err != nil {
			return nil, err
		}
		op.Rows = rows
	case ActionUpdate:
		op.Action = ActionUpdate
		if op.ID, err = targetID(env.ID); err != nil {
			return nil, err
		}
		var values engine.Row
		if len(env.Values) == 0 {
			return nil, fmt.Errorf("%w: update requires values", ErrInvalidRequest)
		}
		if err := json.Unmarshal(env.Values, &values); err != nil {
			return nil, fmt.Errorf("%w: undecodable update values: %w", ErrInvalidRequest, err)
		}
		op.Values = values
	case ActionDelete:
		op.Action = ActionDelete
		if op.ID, err = targetID(env.ID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown database operation %q", ErrUnsupported, env.Operation)
	}

	return op, nil
}

func parseStorage(env *envelope) (Operation, error) {
	if env.Bucket == "" {
		return nil, fmt.Errorf("%w: storage operations require a bucket", ErrInvalidRequest)
	}

	op := &StorageOp{
		Bucket:      env.Bucket,
		Path:        env.Path,
		Paths:       env.Paths,
		Prefix:      env.Prefix,
		Content:     env.Content,
		ContentType: env.ContentType,
	}

	switch StorageAction(env.Operation) {
	case ActionUpload:
		if env.Path == "" || env.Content == "" {
			return nil, fmt.Errorf("%w: upload requires a path and content", ErrInvalidRequest)
		}
		op.Action = ActionUpload
	case ActionDownload:
		if env.Path == "" {
			return nil, fmt.Errorf("%w: download requires a path", ErrInvalidRequest)
		}
		op.Action = ActionDownload
	case ActionRemove:
		if len(env.Paths) == 0 && env.Path != "" {
			op.Paths = []string{env.Path}
		}
		if len(op.Paths) == 0 {
			return nil, fmt.Errorf("%w: remove requires at least one path", ErrInvalidRequest)
		}
		op.Action = ActionRemove
	case ActionList:
		op.Action = ActionList
	default:
		return nil, fmt.Errorf("%w: unknown storage operation %q", ErrUnsupported, env.Operation)
	}

	return op, nil
}

func parseRPC(env *envelope) (Operation, error) {
	function := env.Function
	if function == "" && env.Operation != "" && env.Operation != "call" {
		// Allow the function name to ride in the operation field.
		function = env.Operation
	}
	if function == "" {
		return nil, fmt.Errorf("%w: rpc requires a function name", ErrInvalidRequest)
	}

	return &RPCOp{Function: function, Args: env.Args}, nil
}

func decodeRows(raw json.RawMessage) ([]engine.Row, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: insert requires values", ErrInvalidRequest)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []engine.Row
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("%w: undecodable values: %w", ErrInvalidRequest, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: insert requires at least one record", ErrInvalidRequest)
		}
		return rows, nil
	}

	var row engine.Row
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, fmt.Errorf("%w: undecodable values: %w", ErrInvalidRequest, err)
	}
	return []engine.Row{row}, nil
}

func targetID(id any) (string, error) {
	s, err := scalarString(id)
	if err != nil || s == "" {
		return "", fmt.Errorf("%w: a target row id is required", ErrInvalidRequest)
	}
	return s, nil
}

func stringifyFilters(filters map[string]any) (map[string]string, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(filters))
	for column, value := range filters {
		s, err := scalarString(value)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q must be a scalar", ErrInvalidRequest, column)
		}
		out[column] = s
	}
	return out, nil
}

func scalarString(v any) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	case json.Number:
		return value.String(), nil
	case bool:
		return fmt.Sprintf("%t", value), nil
	default:
		return "", fmt.Errorf("not a scalar: %T", v)
	}
}
