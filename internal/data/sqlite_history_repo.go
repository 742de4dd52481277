package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/pagination"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analysis_history (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL,
	source_url     TEXT NOT NULL DEFAULT '',
	file_size      INTEGER NOT NULL DEFAULT 0,
	file_type      TEXT NOT NULL DEFAULT '',
	score          REAL NOT NULL,
	classification TEXT NOT NULL,
	justification  TEXT NOT NULL,
	video_result   BLOB,
	phash          INTEGER,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_history_created_at ON analysis_history (created_at, id);
CREATE INDEX IF NOT EXISTS idx_analysis_history_phash ON analysis_history (phash);
`

// OpenSQLite opens (creating if needed) a SQLite history database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

type sqliteHistoryRepo struct {
	db *sql.DB
}

// NewSQLiteHistoryRepo creates a HistoryRepo on an opened SQLite database.
func NewSQLiteHistoryRepo(db *sql.DB) biz.HistoryRepo {
	return &sqliteHistoryRepo{db: db}
}

func (r *sqliteHistoryRepo) Save(ctx context.Context, a *biz.Analysis) error {
	video, err := encodeVideo(a.Video)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO analysis_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, string(a.Kind), a.Name, a.SourceURL, a.FileSize, a.FileType, a.Score,
		string(a.Classification), a.Justification, video, phashParam(a.PHash),
		a.CreatedAt.UTC().Format(sqliteTimeLayout))
	return err
}

func (r *sqliteHistoryRepo) Get(ctx context.Context, id string) (*biz.Analysis, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM analysis_history WHERE id = ?`, id)
	a, err := scanSQLiteAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, biz.ErrAnalysisNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *sqliteHistoryRepo) List(ctx context.Context, req *pagination.OffsetRequest) ([]*biz.Analysis, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_history`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + historyColumns + ` FROM analysis_history ORDER BY ` +
		pagination.SQLOrderBy("created_at", req.GetSortOrder()) + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, req.GetPageSize(), req.GetOffset())
	if err != nil {
		return nil, 0, err
	}
	items, err := collectSQLiteAnalyses(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *sqliteHistoryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_history WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return biz.ErrAnalysisNotFound
	}
	return nil
}

func (r *sqliteHistoryRepo) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_history`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindSimilar ranks fingerprints in process since SQLite has no popcount.
func (r *sqliteHistoryRepo) FindSimilar(ctx context.Context, fp hash.Fingerprint, maxDistance, limit int) ([]*biz.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM analysis_history
		WHERE phash IS NOT NULL
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	all, err := collectSQLiteAnalyses(rows)
	if err != nil {
		return nil, err
	}

	found := make([]*biz.Analysis, 0)
	for _, a := range all {
		if a.PHash.IsSimilar(fp, maxDistance) {
			found = append(found, a)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].PHash.Distance(fp) < found[j].PHash.Distance(fp)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func collectSQLiteAnalyses(rows *sql.Rows) ([]*biz.Analysis, error) {
	defer rows.Close()
	items := make([]*biz.Analysis, 0)
	for rows.Next() {
		a, err := scanSQLiteAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAnalysis(row rowScanner) (*biz.Analysis, error) {
	var (
		a              biz.Analysis
		kind           string
		classification string
		video          []byte
		phash          sql.NullInt64
		createdAt      string
	)
	if err := row.Scan(&a.ID, &kind, &a.Name, &a.SourceURL, &a.FileSize, &a.FileType, &a.Score,
		&classification, &a.Justification, &video, &phash, &createdAt); err != nil {
		return nil, err
	}
	ts, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", a.ID, err)
	}
	var ph *int64
	if phash.Valid {
		ph = &phash.Int64
	}
	return fillAnalysis(&a, kind, classification, video, ph, ts)
}
