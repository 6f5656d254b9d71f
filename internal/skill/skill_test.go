package skill

import (
	"context"
	"testing"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestExecuteCountThenStringify(t *testing.T) {
	r := New(nil, nil)
	def := Definition{
		ID:      "sk1",
		Name:    "count-and-stringify",
		Version: "1.0.0",
		Inputs: map[string]domain.SkillInput{
			"list": {Type: "array", Required: true},
		},
		Steps: []domain.SkillStep{
			{ID: "count", Action: "transform.json", Params: map[string]any{"op": "count", "input": "{{inputs.list}}"}},
			{ID: "stringify", Action: "transform.json", Params: map[string]any{"op": "stringify", "input": "{{steps.count}}"}},
		},
		OutputTemplate: "{{steps.stringify}}",
	}
	require.NoError(t, r.Register(def))

	result, err := r.Execute(context.Background(), "sk1", map[string]any{"list": []any{1, 2, 3}})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "3", result.Output)
	require.Equal(t, 3, result.Steps[0].Output)
}

func TestRegisterRejectsDuplicateStepIDs(t *testing.T) {
	r := New(nil, nil)
	def := Definition{
		ID: "sk2", Name: "bad", Version: "1.0.0",
		Steps:          []domain.SkillStep{{ID: "a", Action: "transform.json"}, {ID: "a", Action: "transform.json"}},
		OutputTemplate: "done",
	}
	err := r.Register(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestReregisterReplacesWithoutGrowingList(t *testing.T) {
	r := New(nil, nil)
	def := Definition{ID: "sk3", Name: "v1", Version: "1.0.0", Steps: []domain.SkillStep{{ID: "a", Action: "transform.json"}}, OutputTemplate: "x"}
	require.NoError(t, r.Register(def))
	def.Name = "v2"
	require.NoError(t, r.Register(def))

	require.Len(t, r.List(), 1)
	got, ok := r.Get("sk3")
	require.True(t, ok)
	require.Equal(t, "v2", got.Name)
}

func TestConditionSkipsStepOnFalsy(t *testing.T) {
	r := New(nil, nil)
	def := Definition{
		ID: "sk4", Name: "conditional", Version: "1.0.0",
		Steps: []domain.SkillStep{
			{ID: "maybe", Action: "transform.text", Condition: "false", Params: map[string]any{"op": "uppercase", "input": "hi"}},
		},
		OutputTemplate: "done",
	}
	require.NoError(t, r.Register(def))
	result, err := r.Execute(context.Background(), "sk4", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, result.Steps[0].Skipped)
}

func TestMissingRequiredInputFails(t *testing.T) {
	r := New(nil, nil)
	def := Definition{
		ID: "sk5", Name: "needs-input", Version: "1.0.0",
		Inputs:         map[string]domain.SkillInput{"name": {Required: true}},
		Steps:          []domain.SkillStep{{ID: "a", Action: "transform.json"}},
		OutputTemplate: "x",
	}
	require.NoError(t, r.Register(def))
	result, err := r.Execute(context.Background(), "sk5", nil)
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestUnresolvedTemplatePathNeverLeavesLiteralBraces(t *testing.T) {
	result := interpolateString("value: {{missing.path}}", map[string]any{"inputs": map[string]any{}, "steps": map[string]any{}})
	require.Equal(t, "value: ", result)
}
