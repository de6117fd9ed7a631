package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/generator"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
	"github.com/qs3c/engage_go_server/internal/policy"
	"github.com/qs3c/engage_go_server/internal/testutil"
)

// analyzedItem 跑完步骤并写入分析记录
func (e *testEnv) analyzedItem(t *testing.T, opts ...func(*model.AnalysisItem)) (*model.AnalysisItem, string) {
	t.Helper()
	ctx := context.Background()
	item := e.surfItem(t, opts...)
	run, err := e.tracker.Start(ctx, item.ID, model.DefaultTaskFlags(), "api")
	require.NoError(t, err)
	e.completeSteps(t, item.ID, run.RunID, surfResults())
	_, err = e.analysis.BuildFacts(ctx, item.ID, run.RunID)
	require.NoError(t, err)
	return item, run.RunID
}

func TestCommentService_GeneratePostComments(t *testing.T) {
	env := setupEnv(t)
	env.llm.Script(testPrimaryModel, commentsJSON(t, surfComments...))
	item, runID := env.analyzedItem(t)

	out, err := env.comments.GeneratePostComments(context.Background(), item.ID, runID)
	require.NoError(t, err)

	assert.Equal(t, model.GenerationStatusGenerated, out.Generation.Status)
	assert.Equal(t, model.SourceModel, out.Generation.Source)
	assert.Equal(t, testPrimaryModel, out.Generation.SelectedModel)
	assert.NotZero(t, out.Generation.ID)
	require.NotEmpty(t, out.Suggestions)

	for i, s := range out.Suggestions {
		assert.Equal(t, i+1, s.Rank)
		assert.Equal(t, out.Generation.ID, s.GenerationID)
		assert.Equal(t, runID, s.RunID)
		assert.LessOrEqual(t, len(s.Text), textutil.MaxCommentBytes)
		if i > 0 {
			assert.GreaterOrEqual(t, out.Suggestions[i-1].Score, s.Score)
		}
	}

	var telemetry generator.Telemetry
	require.NoError(t, json.Unmarshal(out.Generation.Telemetry, &telemetry))
	assert.Equal(t, "primary", telemetry.SelectedTier)
	assert.NotEmpty(t, telemetry.Passes)

	stored, err := env.commentRepo.ListByGenerationID(out.Generation.ID)
	require.NoError(t, err)
	assert.Len(t, stored, len(out.Suggestions))

	latest, err := env.comments.LatestGeneration(item.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Generation.ID, latest.Generation.ID)
	assert.Equal(t, telemetry.SelectedTier, latest.Telemetry.SelectedTier)
}

func TestCommentService_UsesAccountHistory(t *testing.T) {
	env := setupEnv(t)
	env.llm.Script(testPrimaryModel, commentsJSON(t, surfComments...))

	// 同一账号之前已经发过的评论
	earlier := testutil.TestItem(t, env.db, testutil.WithCaption("Sunset session at Pipeline"))
	testutil.TestSuggestion(t, env.db, earlier, surfComments[0])
	testutil.TestSuggestion(t, env.db, earlier, surfComments[2])

	item, runID := env.analyzedItem(t)
	out, err := env.comments.GeneratePostComments(context.Background(), item.ID, runID)
	require.NoError(t, err)

	for _, s := range out.Suggestions {
		assert.NotEqual(t, surfComments[0], s.Text)
		assert.NotEqual(t, surfComments[2], s.Text)
	}

	var diag generator.PolicyDiagnostics
	require.NoError(t, json.Unmarshal(out.Generation.PolicyDiagnostics, &diag))
	assert.GreaterOrEqual(t, diag.ReasonCounts[policy.ReasonHistorySimilarity], 2)

	prompt := env.llm.Calls()[0].Prompt
	assert.Contains(t, prompt, "Sunset session at Pipeline")
}

func TestCommentService_ManualReviewDisablesAutoPost(t *testing.T) {
	env := setupEnv(t)
	env.llm.Script(testPrimaryModel, commentsJSON(t, surfComments...))
	item, runID := env.analyzedItem(t)

	// 把策略改成需要人工复核
	stored, err := env.items.GetByID(item.ID)
	require.NoError(t, err)
	rec, err := stored.AnalysisRecord()
	require.NoError(t, err)
	rec.Policy.AllowAutoPost = false
	rec.Policy.ManualReviewRequired = true
	require.NoError(t, stored.SetAnalysisRecord(rec))
	require.NoError(t, env.items.Update(stored))

	out, err := env.comments.GeneratePostComments(context.Background(), item.ID, runID)
	require.NoError(t, err)
	require.NotEmpty(t, out.Suggestions)
	for _, s := range out.Suggestions {
		assert.False(t, s.AutoPostEligible, s.Text)
	}
}

func TestCommentService_AnalysisNotReady(t *testing.T) {
	env := setupEnv(t)
	item := env.surfItem(t)

	_, err := env.comments.GeneratePostComments(context.Background(), item.ID, "")
	assert.ErrorIs(t, err, ErrAnalysisNotReady)

	analyzed, _ := env.analyzedItem(t)
	_, err = env.comments.GeneratePostComments(context.Background(), analyzed.ID, "run-superseded")
	assert.ErrorIs(t, err, ErrAnalysisNotReady)
}

func TestCommentService_LatestGeneration_NotFound(t *testing.T) {
	env := setupEnv(t)
	_, err := env.comments.LatestGeneration(1)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestRelationshipFor(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "unknown"},
		{1, "new"},
		{5, "warm"},
		{19, "warm"},
		{20, "familiar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relationshipFor(tt.n), "n=%d", tt.n)
	}
}
