package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulexconde/bizassess/pkg/fault"
)

// PostgreSQL error codes the data store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type dataStore[T any] struct {
	db        *sqlx.DB
	tablename string
	hooks     Hooks
	mu        sync.RWMutex
}

func NewDataStore[T any](db *sqlx.DB, tablename string) *dataStore[T] {
	return &dataStore[T]{
		db:        db,
		tablename: tablename,
	}
}

func (s *dataStore[T]) SetHooks(hooks Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks.PreSave = append(s.hooks.PreSave, hooks.PreSave...)
	s.hooks.PostSave = append(s.hooks.PostSave, hooks.PostSave...)
}

func (s *dataStore[T]) snapshotHooks() Hooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

// querier returns the transaction carried by ctx, falling back to the pool.
func (s *dataStore[T]) querier(ctx context.Context) sqlx.ExtContext {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return s.db
}

func (s *dataStore[T]) QueryRow(ctx context.Context, query string, args ...any) (any, error) {
	row := s.querier(ctx).QueryRowxContext(ctx, query, args...)

	var result any

	err := row.Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.ErrNotFound
		}
		return nil, err
	}

	return result, nil
}

func (s *dataStore[T]) Get(ctx context.Context, query string, args ...any) (*T, error) {
	var result T

	if err := sqlx.GetContext(ctx, s.querier(ctx), &result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.ErrNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (s *dataStore[T]) Select(ctx context.Context, query string, args ...any) ([]T, error) {
	results := []T{}

	if err := sqlx.SelectContext(ctx, s.querier(ctx), &results, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []T{}, nil
		}
		return nil, err
	}

	return results, nil
}

func (s *dataStore[T]) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func (s *dataStore[T]) Create(ctx context.Context, data DTO) (*T, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	hooks := s.snapshotHooks()
	var model *T

	err := InTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, hook := range hooks.PreSave {
			if err := hook(ctx, tx, data, true); err != nil {
				return err
			}
		}

		columns, placeholders := insertClause(data)
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *", s.tablename, columns, placeholders)

		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		var created T
		if err := stmt.QueryRowxContext(ctx, data).StructScan(&created); err != nil {
			return translate(err)
		}

		for _, hook := range hooks.PostSave {
			if err := hook(ctx, tx, data, &created, true); err != nil {
				return err
			}
		}

		model = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return model, nil
}

func (s *dataStore[T]) Update(ctx context.Context, id int64, data DTO) (*T, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	hooks := s.snapshotHooks()
	var model *T

	err := InTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, hook := range hooks.PreSave {
			if err := hook(ctx, tx, data, false); err != nil {
				return err
			}
		}

		params := map[string]any{"id": id}
		setClause := updateClause(data, params)
		if setClause == "" {
			return fmt.Errorf("no fields to update")
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id RETURNING *", s.tablename, setClause)

		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		var updated T
		if err := stmt.QueryRowxContext(ctx, params).StructScan(&updated); err != nil {
			return translate(err)
		}

		for _, hook := range hooks.PostSave {
			if err := hook(ctx, tx, data, &updated, false); err != nil {
				return err
			}
		}

		model = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return model, nil
}

// translate maps driver errors onto the fault sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fault.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", fault.ErrUniqueViolation, pqErr.Constraint)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", fault.ErrForeignKeyViolation, pqErr.Constraint)
		}
	}

	return err
}

// Translate exposes the driver error mapping for hand-written queries.
func Translate(err error) error {
	return translate(err)
}
