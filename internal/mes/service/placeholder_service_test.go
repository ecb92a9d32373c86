package service_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var placeholderCodeFormat = regexp.MustCompile(`^PH-\d{8}-[0-9A-F]{8}$`)

func TestCreatePlaceholder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PH-1", nil)
	svc := env.Services.Placeholder

	ph, err := svc.CreatePlaceholder(ctx, service.CreatePlaceholderReq{PartID: part.ID, WorkOrderID: "WO-9", LotNumber: "L1"}, "planner")
	require.NoError(t, err)
	assert.Equal(t, entity.PlaceholderStatusPending, ph.Status)
	assert.Regexp(t, placeholderCodeFormat, ph.PlaceholderCode)
	require.NotNil(t, ph.WorkOrderID)
	assert.Equal(t, "WO-9", *ph.WorkOrderID)
	assert.Nil(t, ph.IdentityID)

	batch, err := svc.CreateBatchPlaceholders(ctx, service.CreatePlaceholderReq{PartID: part.ID, Count: 5}, "planner")
	require.NoError(t, err)
	require.Len(t, batch, 5)
	codes := map[string]bool{ph.PlaceholderCode: true}
	for _, item := range batch {
		assert.False(t, codes[item.PlaceholderCode])
		codes[item.PlaceholderCode] = true
	}

	pending, err := svc.GetPendingPlaceholders(ctx, part.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 6)

	filtered, err := svc.GetPlaceholders(ctx, service.PlaceholderFilter{PartID: part.ID, WorkOrderID: "WO-9"})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	for _, n := range []int{0, 101} {
		_, err = svc.CreateBatchPlaceholders(ctx, service.CreatePlaceholderReq{PartID: part.ID, Count: n}, "planner")
		assert.True(t, service.IsValidation(err), "count %d", n)
	}
	_, err = svc.CreatePlaceholder(ctx, service.CreatePlaceholderReq{PartID: "missing"}, "planner")
	assert.True(t, service.IsNotFound(err))
}

func TestAssignSerialToPlaceholder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PH-2", nil)
	svc := env.Services.Placeholder

	ph, err := svc.CreatePlaceholder(ctx, service.CreatePlaceholderReq{PartID: part.ID, LotNumber: "L7"}, "planner")
	require.NoError(t, err)

	_, err = svc.AssignSerialToPlaceholder(ctx, ph.ID, service.AssignSerialReq{SerialNumber: "LS-1"}, "op")
	assert.True(t, service.IsValidation(err), "operation code is required")

	done, err := svc.AssignSerialToPlaceholder(ctx, ph.ID, service.AssignSerialReq{
		SerialNumber: " LS-1 ", OperationCode: "OP30", Notes: "laser marked",
	}, "op")
	require.NoError(t, err)
	assert.Equal(t, entity.PlaceholderStatusSerialized, done.Status)
	assert.Equal(t, "LS-1", done.SerialNumber)
	assert.Equal(t, "OP30", done.AssignmentOperationCode)
	assert.Equal(t, "laser marked", done.Notes)
	require.NotNil(t, done.SerializedBy)
	assert.Equal(t, "op", *done.SerializedBy)
	require.NotNil(t, done.Identity)
	assert.Equal(t, entity.OriginLateAssignment, done.Identity.OriginMethod)
	require.NotNil(t, done.Identity.LotNumber)
	assert.Equal(t, "L7", *done.Identity.LotNumber)

	events, err := env.Services.Audit.History(ctx, entity.SubjectPlaceholder, ph.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, entity.AuditEventSerialized, events[1].EventType)

	// 终态不可再迁移
	_, err = svc.AssignSerialToPlaceholder(ctx, ph.ID, service.AssignSerialReq{SerialNumber: "LS-2", OperationCode: "OP30"}, "op")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already has a serial (LS-1)")

	_, err = svc.MarkPlaceholderFailed(ctx, ph.ID, "scrap", "op")
	assert.True(t, service.IsConflict(err))
}

func TestAssignSerialToPlaceholder_GloballyUnique(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PH-3", nil)
	other := testutil.SeedPart(t, env.DB, "PH-4", nil)
	testutil.SeedIdentity(t, env.DB, other.ID, "TAKEN-1")
	svc := env.Services.Placeholder

	ph, err := svc.CreatePlaceholder(ctx, service.CreatePlaceholderReq{PartID: part.ID}, "planner")
	require.NoError(t, err)

	_, err = svc.AssignSerialToPlaceholder(ctx, ph.ID, service.AssignSerialReq{SerialNumber: "TAKEN-1", OperationCode: "OP10"}, "op")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "not unique")

	still, err := svc.GetPlaceholder(ctx, ph.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PlaceholderStatusPending, still.Status, "failed assignment leaves the placeholder pending")
	assert.Nil(t, still.IdentityID)
}

func TestMarkPlaceholderFailed(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PH-5", nil)
	svc := env.Services.Placeholder

	ph, err := svc.CreatePlaceholder(ctx, service.CreatePlaceholderReq{PartID: part.ID}, "planner")
	require.NoError(t, err)

	_, err = svc.MarkPlaceholderFailed(ctx, ph.ID, "", "op")
	assert.True(t, service.IsValidation(err))

	failed, err := svc.MarkPlaceholderFailed(ctx, ph.ID, "marking unreadable", "op")
	require.NoError(t, err)
	assert.Equal(t, entity.PlaceholderStatusFailed, failed.Status)
	assert.Equal(t, "marking unreadable", failed.FailureReason)
	assert.NotNil(t, failed.FailedAt)

	_, err = svc.AssignSerialToPlaceholder(ctx, ph.ID, service.AssignSerialReq{SerialNumber: "X-1", OperationCode: "OP10"}, "op")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "is marked as failed")

	_, err = svc.MarkPlaceholderFailed(ctx, "missing", "x", "op")
	assert.True(t, service.IsNotFound(err))
}

func TestPlaceholderStatistics(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PH-6", nil)
	svc := env.Services.Placeholder

	empty, err := svc.GetPlaceholderStatistics(ctx, part.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.SerializedPercent)
	assert.Zero(t, empty.PendingPercent)

	items, err := svc.CreateBatchPlaceholders(ctx, service.CreatePlaceholderReq{PartID: part.ID, Count: 3}, "planner")
	require.NoError(t, err)
	_, err = svc.AssignSerialToPlaceholder(ctx, items[0].ID, service.AssignSerialReq{SerialNumber: "ST-1", OperationCode: "OP10"}, "op")
	require.NoError(t, err)
	_, err = svc.MarkPlaceholderFailed(ctx, items[1].ID, "lost", "op")
	require.NoError(t, err)

	stats, err := svc.GetPlaceholderStatistics(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Serialized)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Pending)
	assert.InDelta(t, 100.0, stats.SerializedPercent+stats.FailedPercent+stats.PendingPercent, 1e-9)
	assert.InDelta(t, 33.333, stats.SerializedPercent, 0.01)

	serialized, err := svc.GetSerializedFromPlaceholders(ctx, part.ID, nil)
	require.NoError(t, err)
	require.Len(t, serialized, 1)
	assert.Equal(t, "ST-1", serialized[0].SerialNumber)

	future := time.Now().Add(time.Hour)
	serialized, err = svc.GetSerializedFromPlaceholders(ctx, part.ID, &service.DateRange{From: &future})
	require.NoError(t, err)
	assert.Empty(t, serialized)
}
