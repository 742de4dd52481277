package service

import (
	"context"
	"errors"
	"io"
	"net/http"

	"deepfake/internal/biz"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationAnalyzeUpload  = "/deepfake.v1.Analysis/AnalyzeUpload"
	OperationAnalyzeURL     = "/deepfake.v1.Analysis/AnalyzeURL"
	OperationListHistory    = "/deepfake.v1.History/ListHistory"
	OperationGetAnalysis    = "/deepfake.v1.History/GetAnalysis"
	OperationListSimilar    = "/deepfake.v1.History/ListSimilar"
	OperationDeleteAnalysis = "/deepfake.v1.History/DeleteAnalysis"
	OperationClearHistory   = "/deepfake.v1.History/ClearHistory"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// RegisterAnalysisHTTPServer mounts the analysis routes. maxUpload bounds the
// uploaded file size, 0 means unlimited.
func RegisterAnalysisHTTPServer(s *khttp.Server, srv *AnalysisService, maxUpload int64) {
	r := s.Route("/")
	r.POST("/v1/analyze/url", analyzeURLHandler(srv))
	r.POST("/v1/analyze/{kind}", analyzeUploadHandler(srv, maxUpload))
}

// RegisterHistoryHTTPServer mounts the history routes.
func RegisterHistoryHTTPServer(s *khttp.Server, srv *HistoryService) {
	r := s.Route("/")
	r.GET("/v1/history", listHistoryHandler(srv))
	r.DELETE("/v1/history", clearHistoryHandler(srv))
	r.GET("/v1/history/{id}", getAnalysisHandler(srv))
	r.GET("/v1/history/{id}/similar", listSimilarHandler(srv))
	r.DELETE("/v1/history/{id}", deleteAnalysisHandler(srv))
}

func analyzeUploadHandler(srv *AnalysisService, maxUpload int64) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		req := ctx.Request()
		if maxUpload > 0 {
			req.Body = http.MaxBytesReader(ctx.Response(), req.Body, maxUpload+multipartMemory)
		}
		in, err := decodeUpload(req, maxUpload)
		if err != nil {
			return err
		}
		in.Kind = ctx.Vars().Get("kind")
		khttp.SetOperation(ctx, OperationAnalyzeUpload)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.AnalyzeUpload(ctx, req.(*UploadRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func analyzeURLHandler(srv *AnalysisService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		var in AnalyzeURLRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		khttp.SetOperation(ctx, OperationAnalyzeURL)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.AnalyzeURL(ctx, req.(*AnalyzeURLRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func listHistoryHandler(srv *HistoryService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		q := ctx.Query()
		in := &HistoryRequest{
			Page:     q.Get("page"),
			PageSize: q.Get("page_size"),
			Order:    q.Get("order"),
		}
		khttp.SetOperation(ctx, OperationListHistory)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.ListHistory(ctx, req.(*HistoryRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func getAnalysisHandler(srv *HistoryService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		in := &IDRequest{ID: ctx.Vars().Get("id")}
		khttp.SetOperation(ctx, OperationGetAnalysis)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.GetAnalysis(ctx, req.(*IDRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func listSimilarHandler(srv *HistoryService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		in := &IDRequest{ID: ctx.Vars().Get("id")}
		khttp.SetOperation(ctx, OperationListSimilar)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.ListSimilar(ctx, req.(*IDRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func deleteAnalysisHandler(srv *HistoryService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		in := &IDRequest{ID: ctx.Vars().Get("id")}
		khttp.SetOperation(ctx, OperationDeleteAnalysis)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.DeleteAnalysis(ctx, req.(*IDRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func clearHistoryHandler(srv *HistoryService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		khttp.SetOperation(ctx, OperationClearHistory)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return srv.ClearHistory(ctx, req.(*ClearRequest))
		})
		out, err := h(ctx, &ClearRequest{})
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

// decodeUpload reads the "file" part of a multipart request.
func decodeUpload(r *http.Request, maxUpload int64) (*UploadRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, biz.ErrInputTooLarge
		}
		return nil, biz.ErrInputMissing.WithCause(err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, biz.ErrInputMissing.WithCause(err)
	}
	defer file.Close()

	if maxUpload > 0 && header.Size > maxUpload {
		return nil, biz.ErrInputTooLarge
	}
	var reader io.Reader = file
	if maxUpload > 0 {
		reader = io.LimitReader(file, maxUpload+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, biz.ErrInputMissing.WithCause(err)
	}
	if maxUpload > 0 && int64(len(data)) > maxUpload {
		return nil, biz.ErrInputTooLarge
	}

	return &UploadRequest{
		Input: biz.MediaInput{
			Data:     data,
			MIMEType: header.Header.Get("Content-Type"),
			Name:     header.Filename,
			Size:     int64(len(data)),
		},
	}, nil
}
