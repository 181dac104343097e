package mysql

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gighop/internal/domain"
)

// MySQL server error numbers worth retrying a whole transaction for.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

const txAttempts = 5

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo is a document store over the documents table.
type Repo struct {
	docs
	db *sql.DB
}

func New(db *sql.DB) *Repo { return &Repo{docs: docs{q: db}, db: db} }

// Open parses dsn, forces the options the store relies on and pings.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	conn, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(conn)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// InTx runs fn in a transaction in which GetDocument takes a row lock.
// Deadlocks and lock wait timeouts retry the whole function.
func (r *Repo) InTx(ctx context.Context, fn func(tx domain.DocumentStore) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("mysql tx conflict, retrying")
	}
	return err
}

func (r *Repo) runTx(ctx context.Context, fn func(tx domain.DocumentStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txDocs{docs{q: tx, forUpdate: true}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func retryable(err error) bool {
	var me *driver.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTimeout
	}
	return false
}

type txDocs struct{ docs }

// nested transactions join the outer one
func (t *txDocs) InTx(ctx context.Context, fn func(tx domain.DocumentStore) error) error {
	return fn(t)
}

type docs struct {
	q         querier
	forUpdate bool
}

func (d docs) lock(q string) string {
	if d.forUpdate {
		return q + lockSuffix
	}
	return q
}

func (d docs) GetDocument(ctx context.Context, collection, id string) (domain.Document, error) {
	var body []byte
	err := d.q.QueryRowContext(ctx, d.lock(getDocSQL), collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
		}
		return domain.Document{}, err
	}
	fields, err := decodeBody(body)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	return domain.Document{ID: id, Fields: fields}, nil
}

func (d docs) Query(ctx context.Context, collection string, preds ...domain.Predicate) ([]domain.Document, error) {
	var sb strings.Builder
	sb.WriteString(queryDocsPrefix)
	args := make([]any, 0, 1+2*len(preds))
	args = append(args, collection)
	for _, p := range preds {
		val, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("predicate %s: %w", p.Field, err)
		}
		sb.WriteString(queryDocsPredicate)
		args = append(args, jsonPath(p.Field), string(val))
	}
	sb.WriteString(queryDocsOrder)

	// scans stay non-locking; a full-collection FOR UPDATE would serialize every writer
	rows, err := d.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		fields, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, err)
		}
		out = append(out, domain.Document{ID: id, Fields: fields})
	}
	return out, rows.Err()
}

func (d docs) UpsertDocument(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := d.q.ExecContext(ctx, upsertDocSQL, collection, id, string(body)); err != nil {
		return "", err
	}
	return id, nil
}

func (d docs) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	res, err := d.q.ExecContext(ctx, mergeDocSQL, string(patch), collection, id)
	if err != nil {
		return err
	}
	// 0 affected also happens when the patch changes nothing; tell that apart from a missing row
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	if err := d.q.QueryRowContext(ctx, existsDocSQL, collection, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// decodeBody keeps numbers as json.Number so int64 timestamps survive.
func decodeBody(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}

// jsonPath quotes the key so names with dots or dashes stay one member.
func jsonPath(field string) string {
	return "$." + strconv.Quote(field)
}
