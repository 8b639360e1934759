package proxy

import (
	"fmt"
	"path"
	"strings"

	"github.com/nimbusoft/datagate/internal/infra/engine"
)

// Scope binds every data operation to the verified subject. The owner column
// and RPC argument names are schema conventions the data engine must honor;
// both are configuration, not constants.
type Scope struct {
	ownerColumn  string
	rpcArgument  string
	publicTables map[string]struct{}
}

func NewScope(ownerColumn, rpcArgument string, publicTables []string) Scope {
	public := make(map[string]struct{}, len(publicTables))
	for _, table := range publicTables {
		public[table] = struct{}{}
	}
	return Scope{
		ownerColumn:  ownerColumn,
		rpcArgument:  rpcArgument,
		publicTables: public,
	}
}

// ReadFilters returns the caller's filters with the owner constraint appended,
// unless the table is on the public allow-list. Appending after the caller's
// filters means a caller-supplied owner filter is always overwritten.
func (s Scope) ReadFilters(subject, table string, filters map[string]string) map[string]string {
	if _, public := s.publicTables[table]; public {
		return filters
	}
	return s.WriteFilters(subject, filters)
}

// WriteFilters always appends the owner constraint. Mutations are scoped even
// on publicly readable tables.
func (s Scope) WriteFilters(subject string, filters map[string]string) map[string]string {
	scoped := make(map[string]string, len(filters)+1)
	for column, value := range filters {
		scoped[column] = value
	}
	scoped[s.ownerColumn] = subject
	return scoped
}

// OwnRows copies the records with the owner column forced to the subject,
// discarding any caller-supplied owner value.
func (s Scope) OwnRows(subject string, rows []engine.Row) []engine.Row {
	owned := make([]engine.Row, len(rows))
	for i, row := range rows {
		copied := make(engine.Row, len(row)+1)
		for column, value := range row {
			copied[column] = value
		}
		copied[s.ownerColumn] = subject
		owned[i] = copied
	}
	return owned
}

// StripOwner removes the owner column from update values so a row can never
// be reassigned to another subject.
func (s Scope) StripOwner(values engine.Row) engine.Row {
	stripped := make(engine.Row, len(values))
	for column, value := range values {
		if column == s.ownerColumn {
			continue
		}
		stripped[column] = value
	}
	return stripped
}

// ObjectPath resolves a caller-supplied path under the subject's namespace.
// The path is cleaned against a synthetic root first, so no traversal
// sequence can address another subject's prefix.
func (s Scope) ObjectPath(subject, callerPath string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+callerPath), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: empty object path", ErrInvalidRequest)
	}
	return subject + "/" + cleaned, nil
}

// ObjectPrefix namespaces a listing prefix. An empty prefix lists the whole
// of the subject's namespace.
func (s Scope) ObjectPrefix(subject, callerPrefix string) string {
	cleaned := strings.TrimPrefix(path.Clean("/"+callerPrefix), "/")
	if cleaned == "" || cleaned == "." {
		return subject
	}
	return subject + "/" + cleaned
}

// Args copies the caller's RPC arguments with the identity argument set last,
// so a caller-supplied argument of the same name can never win.
func (s Scope) Args(subject string, args map[string]any) map[string]any {
	scoped := make(map[string]any, len(args)+1)
	for name, value := range args {
		scoped[name] = value
	}
	scoped[s.rpcArgument] = subject
	return scoped
}

// OwnerColumn exposes the configured owner column name for result shaping.
func (s Scope) OwnerColumn() string {
	return s.ownerColumn
}
