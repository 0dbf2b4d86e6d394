package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: valid
description: "A valid scenario"
mode: append
kinds:
  - name: page
    collection: pages
    version_field: rev
    retention_count: 2
steps:
  - op: save
    kind: page
    id: p1
    set:
      title: "Draft"
      tags: [a, b]
  - op: restore
    kind: page
    id: p1
    to: 0
    as_of: 1
    expect: NOT_FOUND
assertions:
  - type: live_field
    kind: page
    id: p1
    field: title
    value: "Draft"
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, "append", s.Mode)
	require.Len(t, s.Kinds, 1)
	assert.Equal(t, "rev", s.Kinds[0].VersionField)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, OpSave, s.Steps[0].Op)
	assert.Equal(t, "Draft", s.Steps[0].Set["title"])
	assert.Equal(t, OutcomeOK, s.Steps[0].expected())
	require.NotNil(t, s.Steps[1].To)
	assert.Equal(t, int64(0), *s.Steps[1].To)
	require.NotNil(t, s.Steps[1].AsOf)
	assert.Equal(t, int64(1), *s.Steps[1].AsOf)
	assert.Equal(t, "NOT_FOUND", s.Steps[1].expected())
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertLiveField, s.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	const kinds = `
kinds:
  - { name: note, collection: notes, retention_count: 1 }
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nstep: []\n" + kinds,
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: save, kind: note, id: n1}]\n" + kinds,
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nsteps: [{op: save, kind: note, id: n1}]\n" + kinds,
			wantErr: "description is required",
		},
		{
			name:    "no kinds",
			yaml:    "name: x\ndescription: d\nsteps: [{op: save, kind: note, id: n1}]\n",
			wantErr: "kinds list is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: d\n" + kinds,
			wantErr: "steps list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: x\ndescription: d\nsteps: [{op: delete, kind: note, id: n1}]\n" + kinds,
			wantErr: `unknown op "delete"`,
		},
		{
			name:    "restore without target",
			yaml:    "name: x\ndescription: d\nsteps: [{op: restore, kind: note, id: n1}]\n" + kinds,
			wantErr: "restore requires to",
		},
		{
			name:    "undeclared kind",
			yaml:    "name: x\ndescription: d\nsteps: [{op: save, kind: page, id: p1}]\n" + kinds,
			wantErr: `undeclared kind "page"`,
		},
		{
			name:    "missing id",
			yaml:    "name: x\ndescription: d\nsteps: [{op: save, kind: note}]\n" + kinds,
			wantErr: "id is required",
		},
		{
			name:    "unknown outcome",
			yaml:    "name: x\ndescription: d\nsteps: [{op: save, kind: note, id: n1, expect: BOOM}]\n" + kinds,
			wantErr: `unknown outcome "BOOM"`,
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nsteps: [{op: save, kind: note, id: n1}]\nassertions: [{type: trace_count, kind: note, id: n1}]\n" + kinds,
			wantErr: `unknown type "trace_count"`,
		},
		{
			name:    "live_field without field",
			yaml:    "name: x\ndescription: d\nsteps: [{op: save, kind: note, id: n1}]\nassertions: [{type: live_field, kind: note, id: n1}]\n" + kinds,
			wantErr: "live_field requires field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
