package server

import (
	"deepfake/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	kgrpc "github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc"
)

// maxRecvMsgSize bounds inbound gRPC messages.
const maxRecvMsgSize = 16 << 20

// NewGRPCServer new a gRPC server. It carries the health and reflection services.
func NewGRPCServer(c *conf.Server, logger log.Logger) *kgrpc.Server {
	var opts = []kgrpc.ServerOption{
		kgrpc.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
		kgrpc.Options(grpc.MaxRecvMsgSize(maxRecvMsgSize)),
	}
	if c != nil && c.GRPC != nil {
		if c.GRPC.Network != "" {
			opts = append(opts, kgrpc.Network(c.GRPC.Network))
		}
		if c.GRPC.Addr != "" {
			opts = append(opts, kgrpc.Address(c.GRPC.Addr))
		}
		if c.GRPC.Timeout > 0 {
			opts = append(opts, kgrpc.Timeout(c.GRPC.Timeout.AsDuration()))
		}
	}
	return kgrpc.NewServer(opts...)
}
