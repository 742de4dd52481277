package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/detector"
	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/media"
	"deepfake/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

const historyColumns = `id, kind, name, source_url, file_size, file_type, score,
	classification, justification, video_result, phash, created_at`

type historyRepo struct {
	data *Data
	log  *log.Helper
}

// NewHistoryRepo creates a new HistoryRepo on the configured database. Without
// a database the history is kept in process memory.
func NewHistoryRepo(data *Data, logger log.Logger) biz.HistoryRepo {
	switch {
	case data == nil:
		return NewMemoryHistoryRepo()
	case data.SQLite != nil:
		return NewSQLiteHistoryRepo(data.SQLite)
	case data.Pool == nil:
		return NewMemoryHistoryRepo()
	}
	return &historyRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Save implements biz.HistoryRepo.
func (r *historyRepo) Save(ctx context.Context, a *biz.Analysis) error {
	video, err := encodeVideo(a.Video)
	if err != nil {
		return err
	}
	_, err = r.data.Pool.Exec(ctx, `
		INSERT INTO analysis_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, string(a.Kind), a.Name, a.SourceURL, a.FileSize, a.FileType, a.Score,
		string(a.Classification), a.Justification, video, phashParam(a.PHash), a.CreatedAt)
	return err
}

// Get implements biz.HistoryRepo.
func (r *historyRepo) Get(ctx context.Context, id string) (*biz.Analysis, error) {
	row := r.data.Pool.QueryRow(ctx, `SELECT `+historyColumns+` FROM analysis_history WHERE id = $1`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, biz.ErrAnalysisNotFound
		}
		return nil, err
	}
	return a, nil
}

// List implements biz.HistoryRepo.
func (r *historyRepo) List(ctx context.Context, req *pagination.OffsetRequest) ([]*biz.Analysis, int64, error) {
	var total int64
	if err := r.data.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_history`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + historyColumns + ` FROM analysis_history ORDER BY ` +
		pagination.SQLOrderBy("created_at", req.GetSortOrder()) + ` LIMIT $1 OFFSET $2`
	rows, err := r.data.Pool.Query(ctx, query, req.GetPageSize(), req.GetOffset())
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAnalyses(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Delete implements biz.HistoryRepo.
func (r *historyRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.data.Pool.Exec(ctx, `DELETE FROM analysis_history WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return biz.ErrAnalysisNotFound
	}
	return nil
}

// Clear implements biz.HistoryRepo.
func (r *historyRepo) Clear(ctx context.Context) (int64, error) {
	tag, err := r.data.Pool.Exec(ctx, `DELETE FROM analysis_history`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindSimilar implements biz.HistoryRepo. Requires PostgreSQL 14 for bit_count.
func (r *historyRepo) FindSimilar(ctx context.Context, fp hash.Fingerprint, maxDistance, limit int) ([]*biz.Analysis, error) {
	rows, err := r.data.Pool.Query(ctx, `
		SELECT `+historyColumns+` FROM analysis_history
		WHERE phash IS NOT NULL AND bit_count((phash # $1)::bit(64)) <= $2
		ORDER BY bit_count((phash # $1)::bit(64)) ASC, created_at DESC
		LIMIT $3
	`, int64(fp), maxDistance, limit)
	if err != nil {
		return nil, err
	}
	return collectAnalyses(rows)
}

func collectAnalyses(rows pgx.Rows) ([]*biz.Analysis, error) {
	defer rows.Close()
	items := make([]*biz.Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func scanAnalysis(row pgx.Row) (*biz.Analysis, error) {
	var (
		a              biz.Analysis
		kind           string
		classification string
		video          []byte
		phash          *int64
		createdAt      time.Time
	)
	if err := row.Scan(&a.ID, &kind, &a.Name, &a.SourceURL, &a.FileSize, &a.FileType, &a.Score,
		&classification, &a.Justification, &video, &phash, &createdAt); err != nil {
		return nil, err
	}
	return fillAnalysis(&a, kind, classification, video, phash, createdAt)
}

// fillAnalysis decodes the column values shared by every history store.
func fillAnalysis(a *biz.Analysis, kind, classification string, video []byte, phash *int64, createdAt time.Time) (*biz.Analysis, error) {
	a.Kind = media.Kind(kind)
	a.Classification = detector.Classification(classification)
	a.CreatedAt = createdAt.UTC()
	if len(video) > 0 {
		var v detector.VideoVerdict
		if err := json.Unmarshal(video, &v); err != nil {
			return nil, fmt.Errorf("failed to decode video verdict of %s: %w", a.ID, err)
		}
		a.Video = &v
	}
	if phash != nil {
		fp := hash.Fingerprint(uint64(*phash))
		a.PHash = &fp
	}
	return a, nil
}

func encodeVideo(v *detector.VideoVerdict) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode video verdict: %w", err)
	}
	return b, nil
}

func phashParam(fp *hash.Fingerprint) *int64 {
	if fp == nil {
		return nil
	}
	v := int64(*fp)
	return &v
}
