package data

import (
	"context"
	"errors"

	"deepfake/internal/pkg/detector"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

type assessmentCacheRepo struct {
	data *Data
	log  *log.Helper
}

// NewAssessmentCacheRepo creates the persistent layer of the assessment cache.
// It returns nil without a database.
func NewAssessmentCacheRepo(data *Data, logger log.Logger) detector.AssessmentStore {
	if data == nil || data.Pool == nil {
		return nil
	}
	return &assessmentCacheRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// FindAssessment implements detector.AssessmentStore.
func (r *assessmentCacheRepo) FindAssessment(ctx context.Context, contentHash string) (*detector.Assessment, error) {
	var a detector.Assessment
	err := r.data.Pool.QueryRow(ctx,
		`SELECT score, justification FROM assessment_cache WHERE content_hash = $1`,
		contentHash,
	).Scan(&a.Score, &a.Justification)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &a, nil
}

// SaveAssessment implements detector.AssessmentStore.
func (r *assessmentCacheRepo) SaveAssessment(ctx context.Context, contentHash, mimeType string, a detector.Assessment) error {
	_, err := r.data.Pool.Exec(ctx, `
		INSERT INTO assessment_cache (content_hash, mime_type, score, justification)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash) DO UPDATE
		SET score = EXCLUDED.score, justification = EXCLUDED.justification, updated_at = NOW()
	`, contentHash, mimeType, a.Score, a.Justification)
	return err
}
