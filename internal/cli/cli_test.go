package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rupiya_directory/internal/api/shop/models"
	shopsvc "rupiya_directory/internal/api/shop/service"
	"rupiya_directory/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	sweepActor models.Actor
	sweepNow   time.Time
	sweep      shopsvc.SweepResult
	agentID    string
	district   string
	day        string
	refs       []models.Ref
	limit      int
}

func (f *fakeBackend) SweepExpired(_ context.Context, actor models.Actor, now time.Time) (shopsvc.SweepResult, error) {
	f.sweepActor, f.sweepNow = actor, now
	return f.sweep, nil
}

func (f *fakeBackend) RecomputeAgent(_ context.Context, agentID string) (shopsvc.AgentRecompute, error) {
	f.agentID = agentID
	return shopsvc.AgentRecompute{AgentID: agentID, Changed: true}, nil
}

func (f *fakeBackend) RecomputeAllAgents(_ context.Context) (shopsvc.AllAgentsRecompute, error) {
	return shopsvc.AllAgentsRecompute{}, nil
}

func (f *fakeBackend) RecomputeRevenue(_ context.Context, district, day string) (models.RevenueEntry, error) {
	f.district, f.day = district, day
	return models.RevenueEntry{}, nil
}

func (f *fakeBackend) DeductOnly(_ context.Context, _ models.Actor, refs []models.Ref) (shopsvc.DeductResult, error) {
	f.refs = refs
	return shopsvc.DeductResult{TotalCommissionDeducted: 20}, nil
}

func (f *fakeBackend) ProcessReconcileTasks(_ context.Context, limit int) (shopsvc.ReconcileReport, error) {
	f.limit = limit
	return shopsvc.ReconcileReport{Processed: 1}, nil
}

func execute(t *testing.T, b *fakeBackend, args ...string) (string, error) {
	t.Helper()
	closed := false
	load := func(context.Context) (Backend, func(), error) {
		return b, func() { closed = true }, nil
	}
	cmd := NewRootCommand(load)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		assert.True(t, closed, "backend phải được đóng")
	}
	return out.String(), err
}

func TestSweepCommand(t *testing.T) {
	b := &fakeBackend{sweep: shopsvc.SweepResult{Moved: 3}}
	out, err := execute(t, b, "sweep", "--now", "2026-03-10T00:00:00Z", "--format", "json")
	require.NoError(t, err)

	assert.Equal(t, CLIActor, b.sweepActor)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), b.sweepNow.UTC())
	var res shopsvc.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Moved)
}

func TestSweepCommand_ComponentErrorsFailTheCommand(t *testing.T) {
	b := &fakeBackend{sweep: shopsvc.SweepResult{Errors: []common.ComponentError{{Component: "store", Ref: "admin", Message: "down"}}}}
	_, err := execute(t, b, "sweep")
	require.Error(t, err)
	_, ok := common.AsPartialFailure(err)
	assert.True(t, ok)
}

func TestSweepCommand_BadNow(t *testing.T) {
	_, err := execute(t, &fakeBackend{}, "sweep", "--now", "yesterday")
	assert.Error(t, err)
}

func TestRecomputeCommands(t *testing.T) {
	b := &fakeBackend{}
	_, err := execute(t, b, "recompute-agent", "agent-x")
	require.NoError(t, err)
	assert.Equal(t, "agent-x", b.agentID)

	_, err = execute(t, b, "recompute-revenue", "--district", "Patna", "--day", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, "Patna", b.district)
	assert.Equal(t, "2026-03-10", b.day)

	_, err = execute(t, b, "recompute-revenue", "--district", "Patna")
	assert.Error(t, err)
}

func TestDeductCommand(t *testing.T) {
	b := &fakeBackend{}
	_, err := execute(t, b, "deduct", "agent:a1", "legacy:l1")
	require.NoError(t, err)
	assert.Equal(t, []models.Ref{{Origin: models.OriginAgent, ID: "a1"}, {Origin: models.OriginLegacy, ID: "l1"}}, b.refs)

	_, err = execute(t, b, "deduct", "a1")
	assert.Error(t, err)
	_, err = execute(t, b, "deduct", "branch:a1")
	assert.Error(t, err)
}

func TestReconcileCommand(t *testing.T) {
	b := &fakeBackend{}
	_, err := execute(t, b, "reconcile", "--limit", "7")
	require.NoError(t, err)
	assert.Equal(t, 7, b.limit)

	_, err = execute(t, b, "reconcile", "--limit", "0")
	assert.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, &fakeBackend{}, "recompute-all", "--format", "xml")
	assert.Error(t, err)
}

func TestLoaderError(t *testing.T) {
	cmd := NewRootCommand(func(context.Context) (Backend, func(), error) {
		return nil, nil, errors.New("mongo down")
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"recompute-all"})
	assert.ErrorContains(t, cmd.Execute(), "mongo down")
}
