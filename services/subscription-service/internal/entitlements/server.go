//go:build protogen

package entitlements

import (
	"context"

	"google.golang.org/grpc"

	entitlementsv1 "github.com/arenatime/arenatime/protos/gen/entitlements/v1"
	"github.com/arenatime/arenatime/services/subscription-service/internal/storage"
)

type server struct {
	entitlementsv1.UnimplementedEntitlementsServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	entitlementsv1.RegisterEntitlementsServiceServer(grpcServer, &server{repo: repo})
}

func (s *server) GetEntitlements(ctx context.Context, req *entitlementsv1.EntitlementsRequest) (*entitlementsv1.EntitlementsResponse, error) {
	// Missing rows and lookup errors both answer free tier; the caller
	// treats this RPC as advisory and falls back on its own default.
	limits := LimitsForTier("free")
	if s.repo != nil && req.GetAdminId() != "" {
		sub, err := s.repo.GetSubscription(ctx, req.GetAdminId())
		if err == nil && sub.Status == "active" {
			limits = LimitsForTier(sub.Tier)
		}
	}
	return &entitlementsv1.EntitlementsResponse{
		Tier:                   limits.Tier,
		MaxCourts:              uint32(limits.MaxCourts),
		MaxMonthlyAppointments: uint32(limits.MaxMonthlyAppointments),
		OnlinePayments:         limits.OnlinePayments,
	}, nil
}
