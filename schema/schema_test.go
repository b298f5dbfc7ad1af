package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraphd/taskgraph/core"
)

func TestSubmissionSchemaAcceptsMinimalValidPayload(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"goal":"ship the feature"}`))
	assert.NoError(t, err)
}

func TestSubmissionSchemaAcceptsFullPayload(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"goal":"ship it","maxConcurrency":4,"maxSteps":10}`))
	assert.NoError(t, err)
}

func TestSubmissionSchemaRejectsEmptyGoal(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"goal":""}`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestSubmissionSchemaRejectsMissingGoal(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"maxConcurrency":2}`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestSubmissionSchemaRejectsZeroMaxConcurrency(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"goal":"x","maxConcurrency":0}`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestSubmissionSchemaRejectsUnknownFields(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"goal":"x","unexpected":true}`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestPlannerResponseSchemaAcceptsValidDAG(t *testing.T) {
	v, err := Compile("planner-response.json", PlannerResponseSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"nodes":[{"id":"a","task":"research"},{"id":"b","task":"write","dependsOn":["a"]}]}`))
	assert.NoError(t, err)
}

func TestPlannerResponseSchemaRejectsEmptyNodesArray(t *testing.T) {
	v, err := Compile("planner-response.json", PlannerResponseSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"nodes":[]}`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestPlannerResponseSchemaRejectsNodeMissingTask(t *testing.T) {
	v, err := Compile("planner-response.json", PlannerResponseSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`{"nodes":[{"id":"a"}]}`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	v, err := Compile("submission.json", SubmissionSchema)
	require.NoError(t, err)

	err = v.Validate([]byte(`not json`))
	assert.ErrorIs(t, err, core.ErrValidationFailed)
}
