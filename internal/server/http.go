package server

import (
	"encoding/json"
	"net/http"

	"deepfake/internal/conf"
	"deepfake/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, ac *conf.Analysis, analysis *service.AnalysisService, history *service.HistoryService, logger log.Logger) *khttp.Server {
	var opts = []khttp.ServerOption{
		khttp.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
	}
	if c != nil && c.HTTP != nil {
		if c.HTTP.Network != "" {
			opts = append(opts, khttp.Network(c.HTTP.Network))
		}
		if c.HTTP.Addr != "" {
			opts = append(opts, khttp.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout > 0 {
			opts = append(opts, khttp.Timeout(c.HTTP.Timeout.AsDuration()))
		}
	}
	srv := khttp.NewServer(opts...)

	var maxUpload int64
	if ac != nil {
		maxUpload = ac.MaxUploadBytes
	}
	srv.HandleFunc("/healthz", healthz)
	service.RegisterAnalysisHTTPServer(srv, analysis, maxUpload)
	service.RegisterHistoryHTTPServer(srv, history)
	return srv
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
