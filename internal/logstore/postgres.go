package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx as database/sql driver for goose
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/logstore/migrations"
)

// PostgresStore keeps documents as JSONB rows in a single table, one row per
// document, partitioned logically by collection name. The timestamp lives in
// a typed column so range filters and ordering use the index.
type PostgresStore struct {
	db     *pgxpool.Pool
	dsn    string
	logger *zap.Logger
}

// NewPostgres creates a PostgresStore with a pgx connection pool.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresStore{db: pool, dsn: dsn, logger: logger}, nil
}

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlDB, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("open sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("migration %d (%s): %w", r.Source.Version, r.Source.Path, r.Error)
		}
		s.logger.Info("Migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

// Add inserts a record into collection.
func (s *PostgresStore) Add(ctx context.Context, collection string, rec Record) (string, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	doc := rec.Document()
	body, err := doc.body()
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO log_documents (id, collection, doc, created_at)
		VALUES ($1, $2, $3::jsonb, $4)`,
		id, collection, string(body), doc[TimestampField],
	)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// Find returns the documents selected by q.
func (s *PostgresStore) Find(ctx context.Context, q Query) ([]Document, error) {
	var out []Document
	err := s.Stream(ctx, q, func(d Document) error {
		out = append(out, d)
		return nil
	})
	return out, err
}

// Count runs a server-side count(*) over the matching rows.
func (s *PostgresStore) Count(ctx context.Context, collection string, filters []Filter) (int64, error) {
	where, args, err := buildWhere(collection, filters, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM log_documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Stream iterates the matching rows without buffering them.
func (s *PostgresStore) Stream(ctx context.Context, q Query, fn func(Document) error) error {
	stmt, args, err := selectSQL(q)
	if err != nil {
		return err
	}
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			body      []byte
			createdAt time.Time
		)
		if err := rows.Scan(&body, &createdAt); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		doc := Document{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		doc[TimestampField] = createdAt.UTC()
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

func sqlOp(op Op) string {
	if op == OpEq {
		return "="
	}
	if op == OpNe {
		return "<>"
	}
	return string(op)
}

// buildWhere translates filters into a WHERE clause. Non-timestamp fields are
// compared as JSONB; range operators additionally require both sides to share
// a JSON type so "10" never sorts against 10.
func buildWhere(collection string, filters []Filter, args []any) (string, []any, error) {
	args = append(args, collection)
	conds := []string{fmt.Sprintf("collection = $%d", len(args))}

	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return "", nil, err
		}
		op := sqlOp(f.Op)
		if f.Field == TimestampField {
			ts, _ := ParseTime(f.Value)
			args = append(args, ts)
			conds = append(conds, fmt.Sprintf("created_at %s $%d", op, len(args)))
			continue
		}

		raw, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("marshal filter value for %s: %w", f.Field, err)
		}
		args = append(args, f.Path())
		expr := fmt.Sprintf("(doc #> $%d::text[])", len(args))
		args = append(args, string(raw))
		val := fmt.Sprintf("$%d::jsonb", len(args))

		cond := fmt.Sprintf("jsonb_typeof(%s) <> 'null' AND %s %s %s", expr, expr, op, val)
		if f.Op != OpEq && f.Op != OpNe {
			cond = fmt.Sprintf("jsonb_typeof(%s) = jsonb_typeof(%s) AND %s", expr, val, cond)
		}
		conds = append(conds, "("+cond+")")
	}
	return strings.Join(conds, " AND "), args, nil
}

func selectSQL(q Query) (string, []any, error) {
	where, args, err := buildWhere(q.Collection, q.Filters, nil)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT doc, created_at FROM log_documents WHERE ")
	b.WriteString(where)

	if q.Order != nil && q.Order.Field != "" {
		dir := "DESC"
		if q.Order.Direction == Ascending {
			dir = "ASC"
		}
		if q.Order.Field == TimestampField {
			fmt.Fprintf(&b, " ORDER BY created_at %s", dir)
		} else {
			args = append(args, SplitPath(q.Order.Field))
			expr := fmt.Sprintf("(doc #> $%d::text[])", len(args))
			fmt.Fprintf(&b, " AND jsonb_typeof(%s) <> 'null' ORDER BY %s %s", expr, expr, dir)
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}
