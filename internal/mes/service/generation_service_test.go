package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/pattern"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

var halloween = time.Date(2025, 10, 31, 8, 0, 0, 0, time.UTC)

func TestGenerateSystemSerial_SequentialCounter(t *testing.T) {
	env := testutil.NewTestEnv(t)
	site := testutil.SeedSite(t, env.DB, "S1")
	part := testutil.SeedPart(t, env.DB, "PN-100", site)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "{SITE}-{PART}-{SEQ:3}", 1, 1)
	gen := env.Services.Generation

	first, err := gen.GenerateSystemSerial(ctx, part.ID, "alice", service.GenerateOptions{WorkOrderID: "WO-1"})
	require.NoError(t, err)
	assert.Equal(t, "S1-PN-100-001", first.SerialNumber)
	assert.Equal(t, entity.OriginSystemGenerated, first.OriginMethod)
	assert.Equal(t, entity.IdentityStatusActive, first.Status)
	require.NotNil(t, first.FormatConfigID)
	assert.Equal(t, cfg.ID, *first.FormatConfigID)
	require.NotNil(t, first.WorkOrderID)
	assert.Equal(t, "WO-1", *first.WorkOrderID)
	assert.Nil(t, first.LotNumber)

	second, err := gen.GenerateSystemSerial(ctx, part.ID, "alice", service.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "S1-PN-100-002", second.SerialNumber)

	stored, err := env.Repos.FormatConfig.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.NextSequence)
}

func TestGenerateBatchSerials_ClaimsContiguousRange(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-200", nil)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "B-{SEQ:4}", 10, 5)

	items, err := env.Services.Generation.GenerateBatchSerials(ctx, part.ID, "bob", 3, service.GenerateOptions{LotNumber: "LOT-7"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "B-0010", items[0].SerialNumber)
	assert.Equal(t, "B-0015", items[1].SerialNumber)
	assert.Equal(t, "B-0020", items[2].SerialNumber)
	for _, item := range items {
		require.NotNil(t, item.LotNumber)
		assert.Equal(t, "LOT-7", *item.LotNumber)
	}

	stored, err := env.Repos.FormatConfig.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stored.NextSequence)

	events, err := env.Services.Identity.GetAuditHistory(ctx, items[1].ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.AuditEventCreated, events[0].EventType)
	assert.Equal(t, entity.AuditSourceSystemGeneration, events[0].EventSource)
	assert.Equal(t, "bob", events[0].Actor)
}

func TestGenerateBatchSerials_CountBounds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-201", nil)
	testutil.SeedFormatConfig(t, env.DB, part.ID, "B-{SEQ:4}", 1, 1)

	for _, n := range []int{0, -1, env.Services.Generation.MaxBatchSize() + 1} {
		_, err := env.Services.Generation.GenerateBatchSerials(ctx, part.ID, "bob", n, service.GenerateOptions{})
		assert.True(t, service.IsValidation(err), "count %d: %v", n, err)
	}
}

func TestGenerateBatchSerials_RollsBackOnCollision(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-300", nil)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "C-{SEQ:4}", 1, 1)
	testutil.SeedIdentity(t, env.DB, part.ID, "C-0002")

	_, err := env.Services.Generation.GenerateBatchSerials(ctx, part.ID, "bob", 3, service.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already exists")

	stored, err := env.Repos.FormatConfig.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.NextSequence, "counter must roll back with the batch")

	items, err := env.Services.Generation.GetGeneratedSerials(ctx, part.ID, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1, "only the seeded identity remains")
}

func TestGenerateSystemSerial_DeterministicTemplateConflicts(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-400", nil)
	testutil.SeedFormatConfig(t, env.DB, part.ID, "FIXED-{PART}", 1, 1)
	gen := env.Services.Generation

	first, err := gen.GenerateSystemSerial(ctx, part.ID, "u", service.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "FIXED-PN-400", first.SerialNumber)

	_, err = gen.GenerateSystemSerial(ctx, part.ID, "u", service.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))

	_, err = gen.GenerateBatchSerials(ctx, part.ID, "u", 2, service.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "not unique within the batch")
}

func TestGenerateSystemSerial_ConfigResolution(t *testing.T) {
	env := testutil.NewTestEnv(t)
	site := testutil.SeedSite(t, env.DB, "SZ")
	part := testutil.SeedPart(t, env.DB, "PN-500", site)
	gen := env.Services.Generation

	_, err := gen.GenerateSystemSerial(ctx, part.ID, "u", service.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, service.IsConfiguration(err))
	assert.Contains(t, err.Error(), "no active serial format configuration")

	siteCfg, err := gen.CreateFormatConfig(ctx, service.CreateFormatConfigReq{
		Name:            "site default",
		SiteID:          site.ID,
		PatternTemplate: "{SITE}{SEQ:2}",
	}, "eng")
	require.NoError(t, err)

	active, err := gen.GetActiveFormatConfig(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, siteCfg.ID, active.ID)

	identity, err := gen.GenerateSystemSerial(ctx, part.ID, "u", service.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SZ01", identity.SerialNumber)

	partCfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "P{SEQ:2}", 1, 1)
	active, err = gen.GetActiveFormatConfig(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, partCfg.ID, active.ID, "part level config wins over site level")

	inactive := false
	disabled, err := gen.CreateFormatConfig(ctx, service.CreateFormatConfigReq{
		Name:            "disabled",
		PartID:          part.ID,
		PatternTemplate: "X{SEQ:2}",
		IsActive:        &inactive,
	}, "eng")
	require.NoError(t, err)
	_, err = gen.GenerateSystemSerial(ctx, part.ID, "u", service.GenerateOptions{FormatConfigID: disabled.ID})
	assert.True(t, service.IsConfiguration(err))

	_, err = gen.GenerateSystemSerial(ctx, "missing-part", "u", service.GenerateOptions{})
	assert.True(t, service.IsNotFound(err))
}

func TestCreateFormatConfig_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-600", nil)
	gen := env.Services.Generation

	_, err := gen.CreateFormatConfig(ctx, service.CreateFormatConfigReq{Name: "bad", PartID: part.ID, PatternTemplate: "{SEQ:9}"}, "eng")
	require.Error(t, err)
	assert.True(t, service.IsValidation(err))
	assert.Contains(t, err.Error(), "SEQ length")

	_, err = gen.CreateFormatConfig(ctx, service.CreateFormatConfigReq{Name: "unscoped", PatternTemplate: "{SEQ:4}"}, "eng")
	assert.True(t, service.IsValidation(err))

	_, err = gen.CreateFormatConfig(ctx, service.CreateFormatConfigReq{Name: "neg", PartID: part.ID, PatternTemplate: "{SEQ:4}", SequentialIncrement: -1}, "eng")
	assert.True(t, service.IsValidation(err))

	start := int64(100)
	cfg, err := gen.CreateFormatConfig(ctx, service.CreateFormatConfigReq{
		Name:            "ok",
		PartID:          part.ID,
		PatternTemplate: "{SEQ:4}",
		SequentialStart: &start,
	}, "eng")
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.NextSequence)
	assert.Equal(t, int64(1), cfg.SequentialIncrement)
	assert.True(t, cfg.IsActive)

	items, err := gen.ListFormatConfigs(ctx, map[string]string{"part_id": part.ID, "is_active": "true"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPreviewSerial_DoesNotClaim(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-700", nil)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "{YYYY}{MM}{DD}-{SEQ:3}-{CHECK:luhn}", 7, 1)
	gen := env.Services.Generation
	opts := service.GenerateOptions{Timestamp: &halloween}

	p1, err := gen.PreviewSerial(ctx, part.ID, opts)
	require.NoError(t, err)
	p2, err := gen.PreviewSerial(ctx, part.ID, opts)
	require.NoError(t, err)
	assert.Equal(t, p1.Serial, p2.Serial)
	assert.Equal(t, int64(7), p1.Sequence)
	assert.Equal(t, cfg.ID, p1.FormatConfigID)
	assert.True(t, p1.Metadata.HasCheckDigit)

	identity, err := gen.GenerateSystemSerial(ctx, part.ID, "u", opts)
	require.NoError(t, err)
	assert.Equal(t, p1.Serial, identity.SerialNumber)
	assert.True(t, pattern.ValidateAgainstPattern(identity.SerialNumber, cfg.PatternTemplate))
	assert.Contains(t, identity.SerialNumber, "20251031-007-")
}

func TestGenerateSystemSerial_ConcurrentCallersGetDistinctSerials(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-800", nil)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "CC-{SEQ:5}", 1, 1)

	const workers = 8
	var wg sync.WaitGroup
	serials := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := env.Services.Generation.GenerateSystemSerial(ctx, part.ID, "worker", service.GenerateOptions{})
			if err != nil {
				errs <- err
				return
			}
			serials <- identity.SerialNumber
		}()
	}
	wg.Wait()
	close(serials)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for s := range serials {
		assert.False(t, seen[s], "duplicate serial %s", s)
		seen[s] = true
	}
	assert.Len(t, seen, workers)

	stored, err := env.Repos.FormatConfig.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), stored.NextSequence)
}

func TestTriggerSerialGeneration(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-900", nil)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "T-{SEQ:3}", 1, 1)
	gen := env.Services.Generation
	inactive := false

	_, err := gen.CreateTrigger(ctx, service.CreateTriggerReq{
		PartID: part.ID, TriggerType: entity.TriggerOperationComplete, OperationCode: "OP10",
		IsBatchMode: true, BatchSize: 2, FormatConfigID: cfg.ID,
	}, "eng")
	require.NoError(t, err)
	_, err = gen.CreateTrigger(ctx, service.CreateTriggerReq{
		PartID: part.ID, TriggerType: entity.TriggerOperationComplete, FormatConfigID: cfg.ID, IsActive: &inactive,
	}, "eng")
	require.NoError(t, err)
	_, err = gen.CreateTrigger(ctx, service.CreateTriggerReq{
		PartID: part.ID, TriggerType: entity.TriggerOperationComplete, AssignmentType: entity.OriginLateAssignment,
		FormatConfigID: cfg.ID,
	}, "eng")
	require.NoError(t, err)

	items, err := gen.TriggerSerialGeneration(ctx, part.ID, entity.TriggerOperationComplete, service.TriggerContext{
		OperationCode: "OP10", Actor: "line-1",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "T-001", items[0].SerialNumber)
	assert.Equal(t, "T-002", items[1].SerialNumber)
	assert.Equal(t, "line-1", items[0].CreatedBy)

	items, err = gen.TriggerSerialGeneration(ctx, part.ID, entity.TriggerOperationComplete, service.TriggerContext{OperationCode: "OP20"})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	items, err = gen.TriggerSerialGeneration(ctx, part.ID, entity.TriggerBatchComplete, service.TriggerContext{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = gen.TriggerSerialGeneration(ctx, part.ID, "SOMETHING_ELSE", service.TriggerContext{})
	assert.True(t, service.IsValidation(err))

	triggers, err := gen.ListTriggers(ctx, part.ID)
	require.NoError(t, err)
	assert.Len(t, triggers, 3)
}

func TestCreateTrigger_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-901", nil)
	cfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "T-{SEQ:3}", 1, 1)
	gen := env.Services.Generation

	_, err := gen.CreateTrigger(ctx, service.CreateTriggerReq{PartID: part.ID, TriggerType: "NOPE", FormatConfigID: cfg.ID}, "eng")
	assert.True(t, service.IsValidation(err))

	_, err = gen.CreateTrigger(ctx, service.CreateTriggerReq{
		PartID: part.ID, TriggerType: entity.TriggerWorkOrderCreate, FormatConfigID: cfg.ID, IsBatchMode: true,
	}, "eng")
	assert.True(t, service.IsValidation(err))

	_, err = gen.CreateTrigger(ctx, service.CreateTriggerReq{PartID: part.ID, TriggerType: entity.TriggerWorkOrderCreate, FormatConfigID: "nope"}, "eng")
	assert.True(t, service.IsNotFound(err))

	trigger, err := gen.CreateTrigger(ctx, service.CreateTriggerReq{PartID: part.ID, TriggerType: entity.TriggerWorkOrderCreate, FormatConfigID: cfg.ID}, "eng")
	require.NoError(t, err)
	require.NoError(t, gen.SetTriggerActive(ctx, trigger.ID, false))

	items, err := gen.TriggerSerialGeneration(ctx, part.ID, entity.TriggerWorkOrderCreate, service.TriggerContext{})
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.True(t, service.IsNotFound(gen.SetTriggerActive(ctx, "missing", true)))
}

func TestGetGeneratedSerials_FiltersByOriginAndRange(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-950", nil)
	testutil.SeedFormatConfig(t, env.DB, part.ID, "G-{SEQ:3}", 1, 1)
	gen := env.Services.Generation

	_, err := gen.GenerateBatchSerials(ctx, part.ID, "u", 3, service.GenerateOptions{})
	require.NoError(t, err)

	ph, err := env.Services.Placeholder.CreatePlaceholder(ctx, service.CreatePlaceholderReq{PartID: part.ID}, "u")
	require.NoError(t, err)
	_, err = env.Services.Placeholder.AssignSerialToPlaceholder(ctx, ph.ID, service.AssignSerialReq{SerialNumber: "LATE-1", OperationCode: "OP10"}, "u")
	require.NoError(t, err)

	items, err := gen.GetGeneratedSerials(ctx, part.ID, nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	items, err = gen.GetGeneratedSerials(ctx, part.ID, &service.DateRange{From: &past, To: &future})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = gen.GetGeneratedSerials(ctx, part.ID, &service.DateRange{From: &future})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGenerateSystemSerial_DefaultSiteCode(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-NOSITE", nil)
	testutil.SeedFormatConfig(t, env.DB, part.ID, "{SITE}-{SEQ:2}", 1, 1)

	identity, err := env.Services.Generation.GenerateSystemSerial(ctx, part.ID, "u", service.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "S1-01", identity.SerialNumber)
}

func TestTriggerSerialGeneration_AllOrNothing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "PN-901", nil)
	seqCfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "A-{SEQ:3}", 1, 1)
	fixedCfg := testutil.SeedFormatConfig(t, env.DB, part.ID, "FIXED", 1, 1)
	testutil.SeedIdentity(t, env.DB, part.ID, "FIXED")
	gen := env.Services.Generation

	for _, cfgID := range []string{seqCfg.ID, fixedCfg.ID} {
		_, err := gen.CreateTrigger(ctx, service.CreateTriggerReq{
			PartID: part.ID, TriggerType: entity.TriggerWorkOrderCreate, FormatConfigID: cfgID,
		}, "eng")
		require.NoError(t, err)
	}

	items, err := gen.TriggerSerialGeneration(ctx, part.ID, entity.TriggerWorkOrderCreate, service.TriggerContext{Actor: "line-1"})
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already exists")
	assert.Nil(t, items)

	generated, err := gen.GetGeneratedSerials(ctx, part.ID, nil)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, "FIXED", generated[0].SerialNumber)

	stored, err := env.Repos.FormatConfig.FindByID(ctx, seqCfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.NextSequence)
}
