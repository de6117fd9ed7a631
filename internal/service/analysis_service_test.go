package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/facts"
	"github.com/qs3c/engage_go_server/internal/model"
)

func TestAnalysisService_BuildFacts(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	item := env.surfItem(t)

	run, err := env.tracker.Start(ctx, item.ID, model.DefaultTaskFlags(), "api")
	require.NoError(t, err)
	env.completeSteps(t, item.ID, run.RunID, surfResults())

	rec, err := env.analysis.BuildFacts(ctx, item.ID, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, run.RunID, rec.RunID)
	assert.Equal(t, []string{"surfboard", "person", "wave"}, rec.Facts.ObjectLabels())
	assert.Equal(t, []string{"beach", "ocean"}, rec.Facts.Scenes)
	assert.ElementsMatch(t, []string{"dawnpatrol", "surfing"}, rec.Facts.Hashtags)
	assert.Equal(t, 1, rec.Facts.Faces.Primary)
	assert.True(t, rec.Facts.Identity.OwnUsernameMentioned)
	assert.Equal(t, model.OwnershipOwned, rec.Ownership.Label)
	assert.True(t, rec.Policy.AllowComment)
	assert.True(t, rec.Policy.AllowAutoPost)
	assert.Equal(t, facts.ReasonAllowed, rec.Policy.ReasonCode)

	stored, err := env.analysis.GetAnalysis(item.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RunID, stored.RunID)
	assert.Equal(t, rec.Facts.SignalScore, stored.Facts.SignalScore)
}

func TestAnalysisService_BuildFacts_SkipsFailedSteps(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	item := env.surfItem(t)

	run, err := env.tracker.Start(ctx, item.ID, model.DefaultTaskFlags(), "api")
	require.NoError(t, err)
	env.completeSteps(t, item.ID, run.RunID, surfResults(), model.StepVisual)

	rec, err := env.analysis.BuildFacts(ctx, item.ID, run.RunID)
	require.NoError(t, err)
	assert.Empty(t, rec.Facts.Objects)
	assert.Empty(t, rec.Facts.Scenes)
	assert.Equal(t, 1, rec.Facts.Faces.Total)
}

func TestAnalysisService_BuildFacts_StaleRun(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	item := env.surfItem(t)

	_, err := env.tracker.Start(ctx, item.ID, model.DefaultTaskFlags(), "api")
	require.NoError(t, err)

	rec, err := env.analysis.BuildFacts(ctx, item.ID, "run-from-yesterday")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = env.analysis.GetAnalysis(item.ID)
	assert.ErrorIs(t, err, ErrAnalysisNotReady)
}

func TestAnalysisService_BuildFacts_MalformedResult(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	item := env.surfItem(t)

	run, err := env.tracker.Start(ctx, item.ID, model.TaskFlags{OCR: true}, "api")
	require.NoError(t, err)
	_, err = env.tracker.MarkStepCompleted(ctx, item.ID, run.RunID, model.StepOCR, model.StepStatusSucceeded, []byte(`"not an object"`), "")
	require.NoError(t, err)

	_, err = env.analysis.BuildFacts(ctx, item.ID, run.RunID)
	assert.Error(t, err)
}

func TestAnalysisService_GetAnalysis_NotFound(t *testing.T) {
	env := setupEnv(t)
	_, err := env.analysis.GetAnalysis(404)
	assert.ErrorIs(t, err, ErrItemNotFound)
}
