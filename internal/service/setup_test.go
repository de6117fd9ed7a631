package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/facts"
	"github.com/qs3c/engage_go_server/internal/generator"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pipeline"
	"github.com/qs3c/engage_go_server/internal/pkg/lock"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/queue"
	"github.com/qs3c/engage_go_server/internal/policy"
	"github.com/qs3c/engage_go_server/internal/repository"
	"github.com/qs3c/engage_go_server/internal/scoring"
	"github.com/qs3c/engage_go_server/internal/testutil"
)

const (
	testPrimaryModel = "fast-model"
	testQueueName    = "pipeline_steps"
)

var surfComments = []string{
	"That surfboard looks freshly waxed for the morning session",
	"How long did you wait for that wave to roll in?",
	"The beach light behind you is unreal",
	"Proud of you for paddling out when the ocean looked that rough",
	"Jealous of those glassy waves, haha",
	"Surfing at sunrise suits you so well",
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	events []*pubsub.PipelineEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev *pubsub.PipelineEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) stages() []string {
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Stage)
	}
	return out
}

type testEnv struct {
	db          *gorm.DB
	redis       *redis.Client
	items       *repository.ItemRepository
	generations *repository.GenerationRepository
	commentRepo *repository.CommentRepository
	tracker     *pipeline.Tracker
	queue       *queue.Queue
	events      *recordingPublisher
	llm         *capability.FakeGenerator
	analysis    *AnalysisService
	comments    *CommentService
	pipeline    *PipelineService
	itemSvc     *ItemService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	})

	log := logger.Nop()
	env := &testEnv{
		db:          db,
		redis:       client,
		items:       repository.NewItemRepository(db),
		generations: repository.NewGenerationRepository(db),
		commentRepo: repository.NewCommentRepository(db),
		queue:       queue.NewQueue(client, testQueueName),
		events:      &recordingPublisher{},
		llm:         capability.NewFakeGenerator(),
	}
	env.tracker = pipeline.NewTracker(env.items, lock.NewLocalLocker(), log)

	gen := generator.New(env.llm, policy.NewEngine(nil, policy.DefaultMaxAccepted), generator.Options{
		PrimaryModel: testPrimaryModel,
	}, log)

	env.analysis = NewAnalysisService(env.items, env.tracker, facts.NewBuilder(3), log)
	env.comments = NewCommentService(env.items, env.generations, env.commentRepo, gen, scoring.NewScorer(2.0), 40, log)
	env.pipeline = NewPipelineService(env.items, env.tracker, env.queue, env.events, env.analysis, env.comments,
		RetryPolicy{Attempts: 2, Backoff: time.Millisecond}, log)
	env.itemSvc = NewItemService(env.items)
	return env
}

// surfItem 本人发布的冲浪帖
func (e *testEnv) surfItem(t *testing.T, opts ...func(*model.AnalysisItem)) *model.AnalysisItem {
	t.Helper()
	opts = append([]func(*model.AnalysisItem){
		testutil.WithCaption("Dawn patrol with @maya.travels #surfing"),
		testutil.WithTopics("surfing", "beach"),
	}, opts...)
	return testutil.TestItem(t, e.db, opts...)
}

// surfResults 各步骤的识别结果
func surfResults() map[string]facts.RawCapabilityOutput {
	return map[string]facts.RawCapabilityOutput{
		model.StepVisual: {
			Objects: []capability.Label{
				{Label: "surfboard", Confidence: 0.92},
				{Label: "person", Confidence: 0.9},
				{Label: "wave", Confidence: 0.8},
			},
			Scenes: []string{"beach", "ocean"},
		},
		model.StepFace: {
			Faces: []capability.Face{{Confidence: 0.95, Role: model.FaceRolePrimary}},
		},
		model.StepOCR:      {},
		model.StepMetadata: {Hashtags: []string{"dawnpatrol"}},
	}
}

// completeSteps 把运行的所有必需步骤按给定结果跑完
func (e *testEnv) completeSteps(t *testing.T, itemID int64, runID string, results map[string]facts.RawCapabilityOutput, failed ...string) {
	t.Helper()
	ctx := context.Background()
	run, err := e.tracker.CurrentRun(itemID)
	require.NoError(t, err)
	require.NotNil(t, run)

	failedSet := map[string]bool{}
	for _, s := range failed {
		failedSet[s] = true
	}
	for _, step := range run.RequiredSteps {
		_, err := e.tracker.MarkStepRunning(ctx, itemID, runID, step, "")
		require.NoError(t, err)
		if failedSet[step] {
			_, err = e.tracker.MarkStepCompleted(ctx, itemID, runID, step, model.StepStatusFailed, nil, "boom")
			require.NoError(t, err)
			continue
		}
		data, err := json.Marshal(results[step])
		require.NoError(t, err)
		_, err = e.tracker.MarkStepCompleted(ctx, itemID, runID, step, model.StepStatusSucceeded, data, "")
		require.NoError(t, err)
	}
}

func commentsJSON(t *testing.T, comments ...string) string {
	t.Helper()
	b, err := json.Marshal(map[string][]string{"comments": comments})
	require.NoError(t, err)
	return string(b)
}
