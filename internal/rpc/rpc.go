// Package rpc calls Postgres stored procedures and returns their rows as JSON.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/hexflows/tripflow-backend/internal/utils"
	"gorm.io/gorm"
)

var ErrBadIdentifier = errors.New("invalid SQL identifier")

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	typeRe  = regexp.MustCompile(`^[a-z][a-z0-9_ ]*(\[\])?$`)
)

// Param is one named argument of a stored procedure call.
type Param struct {
	Name  string
	Value any
	// Type is the SQL cast applied to the placeholder, e.g. "date" or "text[]".
	Type string
}

// Caller invokes stored procedures. Call is for set-returning procedures and
// yields one JSON document per row; CallScalar is for procedures returning a
// single value (e.g. jsonb), which is passed through as is, the way the
// hosted REST gateway does it.
type Caller interface {
	Call(ctx context.Context, fn string, params ...Param) ([]json.RawMessage, error)
	CallScalar(ctx context.Context, fn string, params ...Param) (json.RawMessage, error)
}

// BuildQuery renders the set-returning SELECT for fn using named argument notation.
func BuildQuery(fn string, params []Param) (string, []any, error) {
	call, args, err := buildCall(fn, params)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT to_jsonb(r) FROM %s AS r", call), args, nil
}

// BuildScalarQuery renders the SELECT for a procedure returning one value.
func BuildScalarQuery(fn string, params []Param) (string, []any, error) {
	call, args, err := buildCall(fn, params)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT to_jsonb(%s)", call), args, nil
}

func buildCall(fn string, params []Param) (string, []any, error) {
	if !identRe.MatchString(fn) {
		return "", nil, fmt.Errorf("%w: function %q", ErrBadIdentifier, fn)
	}

	parts := make([]string, 0, len(params))
	args := make([]any, 0, len(params))
	for _, p := range params {
		if !identRe.MatchString(p.Name) || strings.Contains(p.Name, ".") {
			return "", nil, fmt.Errorf("%w: parameter %q", ErrBadIdentifier, p.Name)
		}
		placeholder := "?"
		if p.Type != "" {
			if !typeRe.MatchString(p.Type) {
				return "", nil, fmt.Errorf("%w: type %q", ErrBadIdentifier, p.Type)
			}
			placeholder += "::" + p.Type
		}
		parts = append(parts, p.Name+" => "+placeholder)
		args = append(args, p.Value)
	}

	return fmt.Sprintf("%s(%s)", fn, strings.Join(parts, ", ")), args, nil
}

// GormCaller runs procedures through a gorm connection. When the request
// context carries a bearer token it is exposed to the procedure as the
// transaction-local setting request.jwt.token.
type GormCaller struct {
	DB        *gorm.DB
	SlowQuery time.Duration
}

func NewGormCaller(db *gorm.DB, slow time.Duration) *GormCaller {
	return &GormCaller{DB: db, SlowQuery: slow}
}

func (c *GormCaller) Call(ctx context.Context, fn string, params ...Param) ([]json.RawMessage, error) {
	query, args, err := BuildQuery(fn, params)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, fn, query, args)
}

func (c *GormCaller) CallScalar(ctx context.Context, fn string, params ...Param) (json.RawMessage, error) {
	query, args, err := BuildScalarQuery(fn, params)
	if err != nil {
		return nil, err
	}
	rows, err := c.run(ctx, fn, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return json.RawMessage("null"), nil
	}
	return rows[0], nil
}

func (c *GormCaller) run(ctx context.Context, fn, query string, args []any) ([]json.RawMessage, error) {
	start := time.Now()
	out := []json.RawMessage{}

	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if token, ok := utils.GetBearerTokenFromContext(ctx); ok {
			if err := tx.Exec(`SELECT set_config('request.jwt.token', ?, true)`, token).Error; err != nil {
				return fmt.Errorf("forward bearer token: %w", err)
			}
		}

		rows, err := tx.Raw(query, args...).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var b []byte
			if err := rows.Scan(&b); err != nil {
				return fmt.Errorf("scan %s row: %w", fn, err)
			}
			if b == nil {
				b = []byte("null")
			}
			out = append(out, json.RawMessage(b))
		}
		return rows.Err()
	})

	elapsed := time.Since(start)
	if err != nil {
		logError(fn, elapsed, err)
		return nil, fmt.Errorf("rpc %s: %w", fn, err)
	}
	if c.SlowQuery > 0 && elapsed > c.SlowQuery {
		logSlow(fn, elapsed, len(out))
	}
	return out, nil
}

func logError(fn string, d time.Duration, err error) {
	log.Printf("[rpc] %s failed after %dms: %v", fn, d.Milliseconds(), err)
}

func logSlow(fn string, d time.Duration, rows int) {
	log.Printf("[rpc] slow call %s duration=%dms rows=%d", fn, d.Milliseconds(), rows)
}
