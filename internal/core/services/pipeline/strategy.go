package pipeline

import (
	"context"

	"github.com/meshgram/meshgram/internal/core/domain"
)

// processingStrategy is selected once per packet from the effective routing
// mode. Selection is a plain switch over the mode enum.
type processingStrategy interface {
	process(ctx context.Context, p *domain.PacketRecord, userID *int64)
}

func (s *Service) strategyFor(mode domain.RoutingMode) processingStrategy {
	switch mode {
	case domain.ModePrivate:
		return privateStrategy{s}
	case domain.ModeGroup:
		return groupStrategy{s}
	case domain.ModePrivateGroup:
		return privateGroupStrategy{s}
	default:
		return allStrategy{s}
	}
}

// privateStrategy delivers only to the addressed user.
type privateStrategy struct{ svc *Service }

func (st privateStrategy) process(ctx context.Context, p *domain.PacketRecord, userID *int64) {
	st.svc.sendDirect(ctx, p, userID)
}

// groupStrategy posts text packets to the shared channel through the
// aggregation engine and drops everything else.
type groupStrategy struct{ svc *Service }

func (st groupStrategy) process(ctx context.Context, p *domain.PacketRecord, userID *int64) {
	if p.HasText() {
		st.svc.notifyChannel(ctx, p)
	}
}

// privateGroupStrategy delivers to the addressed user and to the shared
// channel.
type privateGroupStrategy struct{ svc *Service }

func (st privateGroupStrategy) process(ctx context.Context, p *domain.PacketRecord, userID *int64) {
	st.svc.sendDirect(ctx, p, userID)
	if p.HasText() {
		st.svc.notifyChannel(ctx, p)
	}
}

// allStrategy is the unscoped default: text goes to the shared channel,
// anything else becomes a direct notification to the allowed users.
type allStrategy struct{ svc *Service }

func (st allStrategy) process(ctx context.Context, p *domain.PacketRecord, userID *int64) {
	if p.HasText() {
		st.svc.notifyChannel(ctx, p)
		return
	}
	st.svc.broadcastToUsers(ctx, p)
}
