//go:build protogen

package entitlements

import (
	"context"
	"log/slog"
	"time"

	"github.com/arenatime/arenatime/libs/grpcx"
	entitlementsv1 "github.com/arenatime/arenatime/protos/gen/entitlements/v1"
)

type grpcProvider struct {
	client entitlementsv1.EntitlementsServiceClient
}

func NewSubscriptionProvider(logger *slog.Logger, fallback Entitlements, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider(fallback), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc entitlements provider unavailable, using fallback", "err", err)
		return NewStaticProvider(fallback), nil
	}

	logger.Info("grpc entitlements provider enabled", "addr", addr)
	return &grpcProvider{client: entitlementsv1.NewEntitlementsServiceClient(conn)}, nil
}

func (p *grpcProvider) GetEntitlements(ctx context.Context, adminID string) (Entitlements, error) {
	resp, err := p.client.GetEntitlements(ctx, &entitlementsv1.EntitlementsRequest{AdminId: adminID})
	if err != nil {
		return Entitlements{}, err
	}
	return Entitlements{
		Tier:           resp.GetTier(),
		OnlinePayments: resp.GetOnlinePayments(),
	}, nil
}
