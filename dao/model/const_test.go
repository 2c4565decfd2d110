package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStageAction(t *testing.T) {
	cases := map[string]Action{
		"approve":         ActionApprove,
		"reject":          ActionReject,
		"request_changes": ActionRequestChanges,
		"skip":            ActionSkip,
	}
	for input, want := range cases {
		got, err := ParseStageAction(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	for _, input := range []string{"", "submit", "resubmit", "cancel", "APPROVE", "nope"} {
		_, err := ParseStageAction(input)
		assert.Error(t, err, input)
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.True(t, RequestStatusApproved.Terminal())
	assert.True(t, RequestStatusRejected.Terminal())
	assert.True(t, RequestStatusCanceled.Terminal())

	// ChangesRequested must stay actionable for resubmission.
	assert.False(t, RequestStatusChangesRequested.Terminal())
	assert.False(t, RequestStatusPending.Terminal())
	assert.False(t, RequestStatusInProgress.Terminal())
}

func TestActionNeedsComment(t *testing.T) {
	for _, a := range []Action{ActionApprove, ActionReject, ActionRequestChanges, ActionSkip, ActionCancel} {
		assert.True(t, a.NeedsComment(), a.String())
	}
	for _, a := range []Action{ActionSubmit, ActionResubmit} {
		assert.False(t, a.NeedsComment(), a.String())
	}
}

func TestTemplateValidateStages(t *testing.T) {
	tmpl := &WorkflowTemplate{
		Name: "Standard Approval",
		Stages: []StageTemplate{
			{Name: "Content Review", Order: 1},
			{Name: "Manager Approval", Order: 2},
		},
	}
	require.NoError(t, tmpl.ValidateStages())

	tmpl.Stages[1].Order = 3 // gap
	assert.Error(t, tmpl.ValidateStages())

	empty := &WorkflowTemplate{Name: "Empty"}
	assert.Error(t, empty.ValidateStages())
}
