package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/models"
)

// PostgresStore compiles lookup queries to SQL using the pg_trgm
// similarity() function. The extension must be installed.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresStore{db: db, logger: log.WithFields(map[string]interface{}{"store": "postgres"})}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return lookup.StoreUnavailable("postgres ping", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, q *lookup.Query) ([]lookup.Candidate, error) {
	query, args, err := CompileSQL(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPostgresError(string(q.Tier), err)
	}
	defer rows.Close()

	var out []lookup.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows, q)
		if err != nil {
			return nil, classifyPostgresError(string(q.Tier), err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgresError(string(q.Tier), err)
	}

	s.logger.Debug("tier query executed", map[string]interface{}{
		"kind":       string(q.Kind),
		"tier":       string(q.Tier),
		"rows":       len(out),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// CompileSQL renders q as a parameterized SELECT. Equality on dates and
// addresses is cast on the parameter side so indexes on the columns apply.
func CompileSQL(q *lookup.Query) (string, []interface{}, error) {
	if q == nil || q.Table == "" || len(q.Columns) == 0 {
		return "", nil, lookup.QueryFailed("compile", errors.New("query needs a table and columns"))
	}

	var (
		b    strings.Builder
		args []interface{}
	)
	bind := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		cols[i] = pq.QuoteIdentifier(c)
	}
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(q.Table))

	for i, p := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		col := pq.QuoteIdentifier(p.Column)

		switch p.Op {
		case lookup.OpEqual:
			switch v := p.Value.(type) {
			case string:
				fmt.Fprintf(&b, "%s = %s", col, bind(v))
			case time.Time:
				fmt.Fprintf(&b, "%s = %s::date", col, bind(v.Format(lookup.DateLayout)))
			case models.StructuredAddress:
				data, err := v.Canonical()
				if err != nil {
					return "", nil, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: err}
				}
				fmt.Fprintf(&b, "%s = %s::jsonb", col, bind(string(data)))
			default:
				return "", nil, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: fmt.Errorf("unsupported value type %T", p.Value)}
			}
		case lookup.OpSimilar:
			value, ok := p.Value.(string)
			if !ok {
				return "", nil, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: errors.New("similarity needs text")}
			}
			fmt.Fprintf(&b, "similarity(%s, %s) > %s", col, bind(value), bind(p.Threshold))
		default:
			return "", nil, lookup.QueryFailed("compile", fmt.Errorf("unsupported operator %s", p.Op))
		}
	}

	b.WriteString(" ORDER BY ")
	if q.Ranked() {
		terms := make([]string, len(q.Order))
		for i, t := range q.Order {
			terms[i] = fmt.Sprintf("(1 - similarity(%s, %s)) * %s",
				pq.QuoteIdentifier(t.Column), bind(t.Value), bind(t.Weight))
		}
		b.WriteString(strings.Join(terms, " + "))
		b.WriteString(" ASC, ")
	}
	b.WriteString(pq.QuoteIdentifier("id"))
	b.WriteString(" ASC")

	return b.String(), args, nil
}

func scanCandidate(rows *sql.Rows, q *lookup.Query) (lookup.Candidate, error) {
	c := lookup.Candidate{ClientType: q.Kind}
	dest := make([]interface{}, len(q.Columns))
	texts := make(map[string]*sql.NullString, len(q.Columns))
	var birthDate sql.NullTime

	for i, col := range q.Columns {
		switch col {
		case "id":
			dest[i] = &c.ID
		case "birth_date":
			dest[i] = &birthDate
		default:
			ns := &sql.NullString{}
			texts[col] = ns
			dest[i] = ns
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return lookup.Candidate{}, err
	}

	text := func(col string) *string {
		ns, ok := texts[col]
		if !ok || !ns.Valid {
			return nil
		}
		v := ns.String
		return &v
	}
	c.FirstName = text("first_name")
	c.LastName = text("last_name")
	c.MiddleName = text("middle_name")
	c.BirthPlace = text("birth_place")
	c.FullName = text("full_name")
	c.INN = text("inn")
	if birthDate.Valid {
		d := time.Date(birthDate.Time.Year(), birthDate.Time.Month(), birthDate.Time.Day(), 0, 0, 0, 0, time.UTC)
		c.BirthDate = &d
	}
	return c, nil
}

// classifyPostgresError maps driver errors onto the lookup taxonomy.
func classifyPostgresError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, lookup.ErrInvalidCriterion) || errors.Is(err, lookup.ErrQueryFailed) || errors.Is(err, lookup.ErrStoreUnavailable) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22":
			return &lookup.CriterionError{Err: err}
		case "08", "53":
			return lookup.StoreUnavailable(op, err)
		case "57":
			// 57014 is a statement timeout, 57P0x are shutdowns
			return lookup.StoreUnavailable(op, err)
		}
		return lookup.QueryFailed(op, err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		return lookup.StoreUnavailable(op, err)
	}
	return lookup.QueryFailed(op, err)
}
