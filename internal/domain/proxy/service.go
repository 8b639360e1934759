package proxy

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/nimbusoft/datagate/internal/domain/identity"
	"github.com/nimbusoft/datagate/internal/infra/engine"
)

// targetColumn is the primary-key column update and delete operations match
// their target row against.
const targetColumn = "id"

// Router dispatches parsed operations to the data engine with the verified
// identity bound into every read and write.
type Router struct {
	db    engine.Database
	store engine.Storage
	procs engine.Procedures
	scope Scope
}

func NewRouter(db engine.Database, store engine.Storage, procs engine.Procedures, scope Scope) *Router {
	return &Router{
		db:    db,
		store: store,
		procs: procs,
		scope: scope,
	}
}

// Route executes one operation on behalf of the identity. Engine failures are
// returned as-is so their messages survive to the response envelope.
func (r *Router) Route(ctx context.Context, op Operation, ident *identity.Identity) (any, error) {
	switch op := op.(type) {
	case HealthOp:
		return map[string]any{"status": "ok", "userId": ident.Subject}, nil
	case *DatabaseOp:
		return r.routeDatabase(ctx, op, ident.Subject)
	case *StorageOp:
		return r.routeStorage(ctx, op, ident.Subject)
	case *RPCOp:
		return r.procs.Call(ctx, op.Function, r.scope.Args(ident.Subject, op.Args))
	default:
		return nil, fmt.Errorf("%w: unhandled operation variant %T", ErrUnsupported, op)
	}
}

func (r *Router) routeDatabase(ctx context.Context, op *DatabaseOp, subject string) (any, error) {
	switch op.Action {
	case ActionSelect:
		res, err := r.db.Select(ctx, op.Table, op.Columns, r.scope.ReadFilters(subject, op.Table, op.Filters))
		if err != nil {
			return nil, err
		}
		return res.Data, nil

	case ActionInsert:
		return rowData(r.db.Insert(ctx, op.Table, r.scope.OwnRows(subject, op.Rows)))

	case ActionUpsert:
		return rowData(r.db.Upsert(ctx, op.Table, r.scope.OwnRows(subject, op.Rows)))

	case ActionUpdate:
		filters := targetFilters(op)
		return rowData(r.db.Update(ctx, op.Table, r.scope.StripOwner(op.Values), r.scope.WriteFilters(subject, filters)))

	case ActionDelete:
		filters := targetFilters(op)
		return rowData(r.db.Delete(ctx, op.Table, r.scope.WriteFilters(subject, filters)))

	default:
		return nil, fmt.Errorf("%w: unknown database operation %q", ErrUnsupported, op.Action)
	}
}

// targetFilters combines the caller's filters with the target-row match. The
// owner constraint is appended afterwards by the scope, so a cross-owner
// target simply matches zero rows.
func targetFilters(op *DatabaseOp) map[string]string {
	filters := make(map[string]string, len(op.Filters)+1)
	for column, value := range op.Filters {
		filters[column] = value
	}
	filters[targetColumn] = op.ID
	return filters
}

func rowData(res *engine.Result, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"rows": res.Data, "count": res.Count}, nil
}

func (r *Router) routeStorage(ctx context.Context, op *StorageOp, subject string) (any, error) {
	switch op.Action {
	case ActionUpload:
		scoped, err := r.scope.ObjectPath(subject, op.Path)
		if err != nil {
			return nil, err
		}
		content, err := base64.StdEncoding.DecodeString(op.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: content is not valid base64: %w", ErrInvalidRequest, err)
		}
		if err := r.store.Upload(ctx, op.Bucket, scoped, content, op.ContentType); err != nil {
			return nil, err
		}
		return map[string]any{"path": scoped}, nil

	case ActionDownload:
		scoped, err := r.scope.ObjectPath(subject, op.Path)
		if err != nil {
			return nil, err
		}
		content, err := r.store.Download(ctx, op.Bucket, scoped)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"path":    scoped,
			"content": base64.StdEncoding.EncodeToString(content),
		}, nil

	case ActionRemove:
		scoped := make([]string, len(op.Paths))
		for i, p := range op.Paths {
			resolved, err := r.scope.ObjectPath(subject, p)
			if err != nil {
				return nil, err
			}
			scoped[i] = resolved
		}
		if err := r.store.Remove(ctx, op.Bucket, scoped); err != nil {
			return nil, err
		}
		return map[string]any{"paths": scoped}, nil

	case ActionList:
		objects, err := r.store.List(ctx, op.Bucket, r.scope.ObjectPrefix(subject, op.Prefix))
		if err != nil {
			return nil, err
		}
		return objects, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage operation %q", ErrUnsupported, op.Action)
	}
}
