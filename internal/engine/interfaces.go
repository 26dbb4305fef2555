package engine

import (
	"context"
	"copin/types"
)

type simulator interface {
	Simulate(ctx context.Context, protocol types.Protocol, req types.SimulateRequest) ([]types.BackTestResultData, error)
}

type sharer interface {
	Share(ctx context.Context, protocol types.Protocol, req types.ShareRequest) (string, error)
}

type traderSource interface {
	Traders(ctx context.Context, protocol types.Protocol, accounts []string) (map[string]types.TraderData, error)
}

type settingsStore interface {
	SaveLastSettings(ctx context.Context, owner string, protocol types.Protocol, req types.RequestBackTestData) error
}
