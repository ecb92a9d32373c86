package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := run(t, "validate", "{PREFIX:SN}-{SEQ:5}")
	require.NoError(t, err)
	var res validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.IsValid)
	assert.True(t, res.Metadata.HasSequential)

	out, err = run(t, "validate", "{SEQ:0}-{BAD}")
	require.Error(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.IsValid)
	assert.Len(t, res.Errors, 2)
}

func TestRenderCmd(t *testing.T) {
	out, err := run(t, "render", "{SITE}-{PART}-{YYYY}{MM}-{SEQ:3}", "--site", "SZ", "--part", "P1",
		"--seq", "9", "--count", "2", "--at", "2025-10-31")
	require.NoError(t, err)
	var serials []string
	require.NoError(t, json.Unmarshal([]byte(out), &serials))
	assert.Equal(t, []string{"SZ-P1-202510-009", "SZ-P1-202510-010"}, serials)

	_, err = run(t, "render", "{SEQ:3}", "--count", "0")
	assert.Error(t, err)
	_, err = run(t, "render", "{SEQ:3}", "--at", "31/10/2025")
	assert.Error(t, err)
}

func TestRenderCmd_SiteFromEnv(t *testing.T) {
	t.Setenv("MESCTL_SITE", "ENV")
	out, err := run(t, "render", "{SITE}")
	require.NoError(t, err)
	assert.Contains(t, out, `"ENV"`)
}

func TestParseAndMatchCmd(t *testing.T) {
	out, err := run(t, "parse", "A{SEQ:2}{UUID}")
	require.NoError(t, err)
	var comps []componentOutput
	require.NoError(t, json.Unmarshal([]byte(out), &comps))
	require.Len(t, comps, 2)
	assert.Equal(t, "SEQ", string(comps[0].Type))
	assert.Equal(t, 1, comps[0].Span.Start)

	_, err = run(t, "match", "SN-{SEQ:3}", "SN-001", "SN-002")
	assert.NoError(t, err)

	out, err = run(t, "match", "SN-{SEQ:3}", "SN-001", "SN-1")
	assert.Error(t, err)
	var result map[string]bool
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result["SN-001"])
	assert.False(t, result["SN-1"])
}
