package service_test

import (
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, env *testutil.TestEnv, vendor, partID, serial string) *entity.VendorSerial {
	t.Helper()
	vs, err := env.Services.VendorSerial.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{
		VendorSerialNumber: serial,
		VendorName:         vendor,
		PartID:             partID,
	}, "receiver")
	require.NoError(t, err)
	return vs
}

func TestReceiveVendorSerial_UniquePerVendorAndPart(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-1", nil)
	other := testutil.SeedPart(t, env.DB, "VP-2", nil)
	svc := env.Services.VendorSerial

	vs := receive(t, env, "ACME", part.ID, "V-0001")
	assert.Equal(t, entity.VendorSerialStatusPending, vs.Status)
	assert.False(t, vs.ReceivedDate.IsZero())

	_, err := svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{
		VendorSerialNumber: "V-0001", VendorName: "ACME", PartID: part.ID,
	}, "receiver")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already exists")

	// 其他供应商或其他物料允许相同序列号
	receive(t, env, "GLOBEX", part.ID, "V-0001")
	receive(t, env, "ACME", other.ID, "V-0001")

	items, err := svc.ListVendorSerials(ctx, service.VendorSerialFilter{PartID: part.ID})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.ListVendorSerials(ctx, service.VendorSerialFilter{VendorName: "ACME"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	events, err := env.Services.Audit.History(ctx, entity.SubjectVendorSerial, vs.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.AuditEventReceived, events[0].EventType)
}

func TestReceiveVendorSerial_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-3", nil)
	svc := env.Services.VendorSerial

	_, err := svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{VendorName: "ACME", PartID: part.ID}, "r")
	assert.True(t, service.IsValidation(err))
	_, err = svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{VendorSerialNumber: "X", PartID: part.ID}, "r")
	assert.True(t, service.IsValidation(err))
	_, err = svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{VendorSerialNumber: "X", VendorName: "ACME", PartID: "missing"}, "r")
	assert.True(t, service.IsNotFound(err))
}

func TestReceiveVendorSerial_LengthLimits(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-LEN", nil)
	svc := env.Services.VendorSerial

	_, err := svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{
		VendorSerialNumber: strings.Repeat("A", 200), VendorName: "ACME", PartID: part.ID,
	}, "r")
	require.Error(t, err)
	assert.True(t, service.IsValidation(err))
	assert.Contains(t, err.Error(), "exceeds 100 characters")

	_, err = svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{
		VendorSerialNumber: "V-1", VendorName: strings.Repeat("N", 129), PartID: part.ID,
	}, "r")
	assert.True(t, service.IsValidation(err))

	vs, err := svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{
		VendorSerialNumber: strings.Repeat("A", service.MaxVendorSerialLength), VendorName: "ACME", PartID: part.ID,
	}, "r")
	require.NoError(t, err)
	assert.Len(t, vs.VendorSerialNumber, 100)
}

func TestValidateVendorSerial(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-4", nil)
	svc := env.Services.VendorSerial

	good := receive(t, env, "ACME", part.ID, "GOOD-1")
	res, err := svc.ValidateVendorSerial(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.True(t, res.FormatValid)
	assert.True(t, res.IsUnique)
	assert.Empty(t, res.Errors)

	bad := receive(t, env, "ACME", part.ID, "BAD SERIAL#")
	res, err = svc.ValidateVendorSerial(ctx, bad.ID)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.False(t, res.FormatValid)
	assert.NotEmpty(t, res.Errors)

	// 超长序列号在接收时即被拒绝
	_, err = svc.ReceiveVendorSerial(ctx, service.ReceiveVendorSerialReq{
		VendorSerialNumber: strings.Repeat("A", service.MaxVendorSerialLength+1), VendorName: "ACME", PartID: part.ID,
	}, "r")
	assert.True(t, service.IsValidation(err))

	_, err = svc.AcceptVendorSerial(ctx, good.ID, "qa", "")
	require.NoError(t, err)
	res, err = svc.ValidateVendorSerial(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Contains(t, res.Warnings, "vendor serial is already accepted")

	rejected := receive(t, env, "ACME", part.ID, "REJ-1")
	_, err = svc.RejectVendorSerial(ctx, rejected.ID, "damaged label", "qa")
	require.NoError(t, err)
	res, err = svc.ValidateVendorSerial(ctx, rejected.ID)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[len(res.Errors)-1], "damaged label")

	testutil.SeedIdentity(t, env.DB, part.ID, "CLASH-1")
	clash := receive(t, env, "ACME", part.ID, "CLASH-1")
	res, err = svc.ValidateVendorSerial(ctx, clash.ID)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "already exists")

	_, err = svc.ValidateVendorSerial(ctx, "missing")
	assert.True(t, service.IsNotFound(err))
}

func TestAcceptRejectVendorSerial_TerminalStates(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-5", nil)
	svc := env.Services.VendorSerial

	accepted := receive(t, env, "ACME", part.ID, "A-1")
	vs, err := svc.AcceptVendorSerial(ctx, accepted.ID, "qa", "")
	require.NoError(t, err)
	assert.Equal(t, entity.VendorSerialStatusAccepted, vs.Status)
	require.NotNil(t, vs.AcceptedBy)
	assert.Equal(t, "qa", *vs.AcceptedBy)
	assert.NotNil(t, vs.AcceptedAt)

	_, err = svc.AcceptVendorSerial(ctx, accepted.ID, "qa", "")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already accepted")

	_, err = svc.RejectVendorSerial(ctx, accepted.ID, "late", "qa")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already accepted")

	rejected := receive(t, env, "ACME", part.ID, "R-1")
	_, err = svc.RejectVendorSerial(ctx, rejected.ID, "  ", "qa")
	assert.True(t, service.IsValidation(err))

	vs, err = svc.RejectVendorSerial(ctx, rejected.ID, "wrong revision", "qa")
	require.NoError(t, err)
	assert.Equal(t, entity.VendorSerialStatusRejected, vs.Status)
	assert.Equal(t, "wrong revision", vs.RejectionReason)

	_, err = svc.AcceptVendorSerial(ctx, rejected.ID, "qa", "")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "already rejected")

	events, err := env.Services.Audit.History(ctx, entity.SubjectVendorSerial, rejected.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, entity.AuditEventRejected, events[1].EventType)
	assert.Equal(t, entity.VendorSerialStatusPending, events[1].FromStatus)
	assert.Equal(t, entity.VendorSerialStatusRejected, events[1].ToStatus)
}

func TestAcceptVendorSerial_LinkedIdentityMustMatchPart(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-6", nil)
	other := testutil.SeedPart(t, env.DB, "VP-7", nil)
	svc := env.Services.VendorSerial

	foreign := testutil.SeedIdentity(t, env.DB, other.ID, "F-1")
	own := testutil.SeedIdentity(t, env.DB, part.ID, "O-1")
	vs := receive(t, env, "ACME", part.ID, "L-1")

	_, err := svc.AcceptVendorSerial(ctx, vs.ID, "qa", foreign.ID)
	assert.True(t, service.IsValidation(err))
	_, err = svc.AcceptVendorSerial(ctx, vs.ID, "qa", "missing")
	assert.True(t, service.IsNotFound(err))

	accepted, err := svc.AcceptVendorSerial(ctx, vs.ID, "qa", own.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.LinkedIdentityID)
	assert.Equal(t, own.ID, *accepted.LinkedIdentityID)
	require.NotNil(t, accepted.LinkedIdentity)
	assert.Equal(t, "O-1", accepted.LinkedIdentity.SerialNumber)
}

func TestPropagateVendorSerial(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-8", nil)
	svc := env.Services.VendorSerial

	pending := receive(t, env, "ACME", part.ID, "P-1")
	_, err := svc.PropagateVendorSerial(ctx, pending.ID, "OP10", 1, "op")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Contains(t, err.Error(), "must be accepted")

	_, err = svc.AcceptVendorSerial(ctx, pending.ID, "qa", "")
	require.NoError(t, err)
	_, err = svc.PropagateVendorSerial(ctx, pending.ID, "OP10", 1, "op")
	assert.True(t, service.IsConflict(err), "accepted without a linked identity cannot propagate")

	identity, err := svc.RegisterVendorIdentity(ctx, pending.ID, "qa")
	require.NoError(t, err)
	assert.Equal(t, entity.OriginVendorAssigned, identity.OriginMethod)
	assert.Equal(t, "P-1", identity.SerialNumber)

	_, err = svc.RegisterVendorIdentity(ctx, pending.ID, "qa")
	assert.True(t, service.IsConflict(err))

	edge, err := svc.PropagateVendorSerial(ctx, pending.ID, "OP10", 1, "op")
	require.NoError(t, err)
	assert.Equal(t, entity.PropagationPassThrough, edge.PropagationType)
	assert.Equal(t, []string{identity.ID}, []string(edge.ParentIdentityIDs))

	_, err = svc.PropagateVendorSerial(ctx, pending.ID, "", 1, "op")
	assert.True(t, service.IsValidation(err))
}

func TestRegisterVendorIdentity_SerialClash(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "VP-9", nil)
	svc := env.Services.VendorSerial

	testutil.SeedIdentity(t, env.DB, part.ID, "DUP-1")
	vs := receive(t, env, "ACME", part.ID, "DUP-1")
	_, err := svc.AcceptVendorSerial(ctx, vs.ID, "qa", "")
	require.NoError(t, err)

	_, err = svc.RegisterVendorIdentity(ctx, vs.ID, "qa")
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))

	after, err := svc.GetVendorSerial(ctx, vs.ID)
	require.NoError(t, err)
	assert.Nil(t, after.LinkedIdentityID, "failed registration must not link")
}
