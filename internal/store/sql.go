package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// rowScanner is satisfied by pgx.Row and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// rowsIter is the common subset of pgx.Rows and *sql.Rows.
type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// queryer runs the shared SQL against one backend. Statements are written
// with ? placeholders; backends rebind them as needed. queryRow maps the
// backend's no-rows error to ErrNotFound.
type queryer interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) rowScanner
	query(ctx context.Context, query string, args ...any) (rowsIter, error)
}

// sqlStore implements the query side of Store on top of a queryer.
type sqlStore struct {
	q    queryer
	name string
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) wrap(err error, action string) error {
	if err == nil {
		return nil
	}
	if eris.Is(err, ErrNotFound) {
		return err
	}
	return eris.Wrapf(err, "%s: %s", s.name, action)
}

func (s *sqlStore) count(ctx context.Context, action, query string, args ...any) (int, error) {
	var n int
	if err := s.q.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.wrap(err, action)
	}
	return n, nil
}

func (s *sqlStore) listStrings(ctx context.Context, action, query string, args ...any) ([]string, error) {
	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, action)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, s.wrap(err, action)
		}
		out = append(out, v)
	}
	return out, s.wrap(rows.Err(), action)
}

// parseDec parses a decimal column read as text.
func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "parse decimal %q", s)
	}
	return d, nil
}

// parseNullDec parses a nullable decimal column read as text.
func parseNullDec(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDec(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// decs parses several text columns into their targets in order.
func decs(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		dst := pairs[i].(*decimal.Decimal)
		src := pairs[i+1].(string)
		d, err := parseDec(src)
		if err != nil {
			return err
		}
		*dst = d
	}
	return nil
}

func decArg(d decimal.Decimal) string {
	return d.String()
}

func nullDecArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullStrArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
