package cli

import (
	"context"
	"time"

	"rupiya_directory/internal/api/shop/models"
	shopsvc "rupiya_directory/internal/api/shop/service"
)

// ServicesBackend gom Engine, ShopDeletionService và LedgerService thành Backend
type ServicesBackend struct {
	*shopsvc.Services
}

func (b ServicesBackend) SweepExpired(ctx context.Context, actor models.Actor, now time.Time) (shopsvc.SweepResult, error) {
	return b.Engine.SweepExpired(ctx, actor, now)
}

func (b ServicesBackend) RecomputeAgent(ctx context.Context, agentID string) (shopsvc.AgentRecompute, error) {
	return b.Ledger.RecomputeAgent(ctx, agentID)
}

func (b ServicesBackend) RecomputeAllAgents(ctx context.Context) (shopsvc.AllAgentsRecompute, error) {
	return b.Ledger.RecomputeAllAgents(ctx)
}

func (b ServicesBackend) RecomputeRevenue(ctx context.Context, district, day string) (models.RevenueEntry, error) {
	return b.Ledger.RecomputeRevenue(ctx, district, day)
}

func (b ServicesBackend) DeductOnly(ctx context.Context, actor models.Actor, refs []models.Ref) (shopsvc.DeductResult, error) {
	return b.Deletion.DeductOnly(ctx, actor, refs)
}

func (b ServicesBackend) ProcessReconcileTasks(ctx context.Context, limit int) (shopsvc.ReconcileReport, error) {
	return b.Ledger.ProcessReconcileTasks(ctx, limit)
}

var _ Backend = ServicesBackend{}
