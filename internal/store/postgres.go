package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "routeopt/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS optimization_results (
    problem_id TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    result     JSONB,
    error      TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Postgres struct {
    db  *sql.DB
    now func() time.Time
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an open handle.
func NewPostgresFromDB(db *sql.DB) *Postgres {
    return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the results table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

// MigrateDir applies every .sql file in dir in lexical order.
func (p *Postgres) MigrateDir(ctx context.Context, dir string) error {
    files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
    if err != nil {
        return err
    }
    sort.Strings(files)
    for _, f := range files {
        b, err := os.ReadFile(f)
        if err != nil {
            return err
        }
        if strings.TrimSpace(string(b)) == "" {
            continue
        }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", filepath.Base(f), err)
        }
    }
    return nil
}

func (p *Postgres) Save(ctx context.Context, rec Record) error {
    if rec.UpdatedAt.IsZero() {
        rec.UpdatedAt = p.now().UTC()
    }
    var result any
    if rec.Result != nil {
        b, err := json.Marshal(rec.Result)
        if err != nil {
            return err
        }
        result = b
    }
    _, err := p.db.ExecContext(ctx, `INSERT INTO optimization_results (problem_id, status, result, error, updated_at) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (problem_id) DO UPDATE SET status=EXCLUDED.status, result=EXCLUDED.result, error=EXCLUDED.error, updated_at=EXCLUDED.updated_at`,
        rec.ProblemID, string(rec.Status), result, nullIfEmpty(rec.Error), rec.UpdatedAt)
    return err
}

func (p *Postgres) Get(ctx context.Context, problemID string) (Record, error) {
    rec := Record{ProblemID: problemID}
    var status string
    var result []byte
    var errText sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT status, result, error, updated_at FROM optimization_results WHERE problem_id=$1`, problemID).
        Scan(&status, &result, &errText, &rec.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return Record{}, ErrNotFound
    }
    if err != nil {
        return Record{}, err
    }
    rec.Status = Status(status)
    rec.Error = errText.String
    if len(result) > 0 {
        var res model.OptimizationResult
        if err := json.Unmarshal(result, &res); err != nil {
            return Record{}, fmt.Errorf("decode result of %s: %w", problemID, err)
        }
        rec.Result = &res
    }
    return rec, nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
