package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
)

// DTO is the write shape of a row. Only fields with a db tag are persisted.
type DTO interface {
	TableName() string
}

// Hooks for database operations. They run inside the write transaction.
type Hooks struct {
	PreSave  []func(ctx context.Context, tx *sqlx.Tx, data DTO, isNew bool) error
	PostSave []func(ctx context.Context, tx *sqlx.Tx, data DTO, model any, isNew bool) error
}

type Datastorer[T any] interface {
	Create(ctx context.Context, data DTO) (*T, error)
	Update(ctx context.Context, id int64, data DTO) (*T, error)
	QueryRow(ctx context.Context, query string, args ...any) (any, error)
	Get(ctx context.Context, query string, args ...any) (*T, error)
	Select(ctx context.Context, query string, args ...any) ([]T, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Set hooks.
	SetHooks(hooks Hooks)
}

type txKey struct{}

// WithTx stores tx in ctx so every data store called with it joins the same transaction.
func WithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok && tx != nil
}

// InTx runs fn inside the transaction carried by ctx, or a new one it commits.
func InTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	if tx, ok := TxFrom(ctx); ok {
		return fn(ctx, tx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(WithTx(ctx, tx), tx); err != nil {
		return err
	}

	return tx.Commit()
}

func columnsOf(v reflect.Value) []reflect.StructField {
	t := v.Type()
	var fields []reflect.StructField
	for i := range t.NumField() {
		field := t.Field(i)
		dbTag := field.Tag.Get("db")
		if dbTag == "" || dbTag == "-" {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

func indirect(dto DTO) reflect.Value {
	v := reflect.ValueOf(dto)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}

// insertClause extracts column names and named placeholders from a DTO struct.
func insertClause(dto DTO) (columns string, placeholders string) {
	var columnNames []string
	var placeholderNames []string

	for _, field := range columnsOf(indirect(dto)) {
		dbTag := field.Tag.Get("db")
		columnNames = append(columnNames, dbTag)
		placeholderNames = append(placeholderNames, placeholder(field, dbTag))
	}

	return strings.Join(columnNames, ", "), strings.Join(placeholderNames, ", ")
}

// updateClause builds "col = :col" pairs for every non-empty DTO field.
func updateClause(dto DTO, params map[string]any) string {
	v := indirect(dto)
	t := v.Type()

	var fields []string

	for i := range v.NumField() {
		field := t.Field(i)
		value := v.Field(i)

		columnName := field.Tag.Get("db")
		if columnName == "" || columnName == "-" {
			continue
		}

		if isEmpty(value) {
			continue
		}

		fields = append(fields, fmt.Sprintf("%s = %s", columnName, placeholder(field, columnName)))
		params[columnName] = value.Interface()
	}

	return strings.Join(fields, ", ")
}

func isEmpty(value reflect.Value) bool {
	switch value.Kind() {
	case reflect.Ptr, reflect.Interface:
		return value.IsNil()
	case reflect.String:
		return value.String() == ""
	case reflect.Slice, reflect.Map:
		return value.IsNil()
	}
	return false
}

func placeholder(field reflect.StructField, column string) string {
	if cast := field.Tag.Get("cast"); cast != "" {
		return fmt.Sprintf("CAST(:%s AS %s)", column, cast)
	}
	return ":" + column
}
