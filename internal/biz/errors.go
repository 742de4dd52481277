package biz

import (
	"context"
	stderrors "errors"
	"net/http"

	"deepfake/internal/pkg/detector"
	"deepfake/internal/pkg/fetch"
	"deepfake/internal/pkg/media"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons returned to API callers.
const (
	ReasonInputMissing     = "INPUT_MISSING"
	ReasonInputTooLarge    = "INPUT_TOO_LARGE"
	ReasonUnsupportedKind  = "UNSUPPORTED_KIND"
	ReasonFetchFailed      = "FETCH_FAILED"
	ReasonDemuxFailed      = "DEMUX_FAILED"
	ReasonAssessmentFailed = "ASSESSMENT_FAILED"
	ReasonNotFound         = "NOT_FOUND"
	ReasonUnexpected       = "UNEXPECTED"
)

var (
	// ErrInputMissing is returned when no media was supplied.
	ErrInputMissing = errors.BadRequest(ReasonInputMissing, "Please provide a file or a URL to analyze.")
	// ErrInputTooLarge is returned when an upload exceeds the configured limit.
	ErrInputTooLarge = errors.New(http.StatusRequestEntityTooLarge, ReasonInputTooLarge, "The file is too large to analyze.")
	// ErrUnsupportedKind is returned for unknown kinds or payloads that do not match the kind.
	ErrUnsupportedKind = errors.BadRequest(ReasonUnsupportedKind, "The media type is not supported for this analysis.")
	// ErrAnalysisNotFound is returned for unknown history ids.
	ErrAnalysisNotFound = errors.NotFound(ReasonNotFound, "analysis not found")
)

// toUserError converts a pipeline failure into a single user-visible error.
func toUserError(err error) error {
	if err == nil {
		return nil
	}
	if se := new(errors.Error); stderrors.As(err, &se) {
		return se
	}

	var (
		fetchErr  *fetch.Error
		demuxErr  *media.DemuxError
		assessErr *detector.AssessmentError
	)
	switch {
	case stderrors.As(err, &fetchErr):
		return errors.BadRequest(ReasonFetchFailed, fetch.UserMessage).WithCause(err)
	case stderrors.As(err, &demuxErr):
		msg := "Could not process the video file."
		switch {
		case stderrors.Is(err, context.DeadlineExceeded):
			msg = "Video processing timed out."
		case stderrors.Is(err, media.ErrNoFrames):
			msg = "Could not extract any frames from the video."
		}
		return errors.New(http.StatusUnprocessableEntity, ReasonDemuxFailed, msg).WithCause(err)
	case stderrors.Is(err, detector.ErrUnsupportedMedia):
		return ErrUnsupportedKind.WithCause(err)
	case stderrors.As(err, &assessErr):
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.GatewayTimeout(ReasonAssessmentFailed, "The analysis model timed out.").WithCause(err)
		}
		return errors.ServiceUnavailable(ReasonAssessmentFailed, "The analysis model could not assess the media.").WithCause(err)
	case stderrors.Is(err, context.Canceled):
		return errors.ClientClosed(ReasonUnexpected, "The request was cancelled.").WithCause(err)
	default:
		return errors.InternalServer(ReasonUnexpected, "An unexpected error occurred during analysis.").WithCause(err)
	}
}
