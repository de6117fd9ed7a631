package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/engage_go_server/internal/api/middleware"
	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/facts"
	"github.com/qs3c/engage_go_server/internal/generator"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pipeline"
	"github.com/qs3c/engage_go_server/internal/pkg/jwt"
	"github.com/qs3c/engage_go_server/internal/pkg/lock"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/queue"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/policy"
	"github.com/qs3c/engage_go_server/internal/repository"
	"github.com/qs3c/engage_go_server/internal/scoring"
	"github.com/qs3c/engage_go_server/internal/service"
	"github.com/qs3c/engage_go_server/internal/testutil"
)

const (
	testSecret = "handler-test-secret"
	fastModel  = "fast-model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, *pubsub.PipelineEvent) error { return nil }

type handlerEnv struct {
	db       *gorm.DB
	redis    *redis.Client
	queue    *queue.Queue
	tracker  *pipeline.Tracker
	llm      *capability.FakeGenerator
	analysis *service.AnalysisService
	engine   *gin.Engine
}

func setupHandlers(t *testing.T) *handlerEnv {
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
	items := repository.NewItemRepository(db)
	env := &handlerEnv{
		db:    db,
		redis: client,
		queue: queue.NewQueue(client, "pipeline_steps"),
		llm:   capability.NewFakeGenerator(),
	}
	env.tracker = pipeline.NewTracker(items, lock.NewLocalLocker(), log)

	gen := generator.New(env.llm, policy.NewEngine(nil, policy.DefaultMaxAccepted), generator.Options{PrimaryModel: fastModel}, log)
	env.analysis = service.NewAnalysisService(items, env.tracker, facts.NewBuilder(3), log)
	comments := service.NewCommentService(items, repository.NewGenerationRepository(db), repository.NewCommentRepository(db), gen, scoring.NewScorer(2.0), 40, log)
	pipelines := service.NewPipelineService(items, env.tracker, env.queue, nopPublisher{}, env.analysis, comments,
		service.RetryPolicy{Attempts: 1, Backoff: time.Millisecond}, log)
	itemSvc := service.NewItemService(items)

	itemH := NewItemHandler(itemSvc, pipelines, log)
	pipelineH := NewPipelineHandler(itemSvc, pipelines, log)
	analysisH := NewAnalysisHandler(itemSvc, env.analysis)
	commentH := NewCommentHandler(itemSvc, comments, log)

	engine := gin.New()
	api := engine.Group("/api/v1", middleware.Auth(testSecret))
	api.GET("/accounts/:account_id/items", itemH.ListByAccount)
	api.POST("/items", itemH.Create)
	api.GET("/items/:id", itemH.Get)
	api.POST("/items/:id/pipeline", pipelineH.Start)
	api.GET("/items/:id/pipeline", pipelineH.Status)
	api.GET("/items/:id/analysis", analysisH.Get)
	api.GET("/items/:id/comments", commentH.Latest)
	api.POST("/items/:id/comments/generate", commentH.Regenerate)
	env.engine = engine
	return env
}

// token accountID 为 0 时不限账号
func token(t *testing.T, accountID int64) string {
	t.Helper()
	tok, err := jwt.GenerateToken("test-client", accountID, testSecret, 1)
	require.NoError(t, err)
	return tok
}

func (e *handlerEnv) do(t *testing.T, method, path string, accountID int64, body interface{}) response.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, accountID))
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decode 把 Data 转成目标结构
func decode(t *testing.T, resp response.Response, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

// analyzedItem 跑完所有步骤并构建事实
func (e *handlerEnv) analyzedItem(t *testing.T) *model.AnalysisItem {
	t.Helper()
	ctx := context.Background()
	item := testutil.TestItem(t, e.db,
		testutil.WithCaption("Dawn patrol with @maya.travels #surfing"),
		testutil.WithTopics("surfing", "beach"),
	)
	run, err := e.tracker.Start(ctx, item.ID, model.DefaultTaskFlags(), "api")
	require.NoError(t, err)

	results := map[string]facts.RawCapabilityOutput{
		model.StepVisual: {
			Objects: []capability.Label{
				{Label: "surfboard", Confidence: 0.92},
				{Label: "person", Confidence: 0.9},
				{Label: "wave", Confidence: 0.8},
			},
			Scenes:  []string{"beach", "ocean"},
		},
		model.StepFace:     {Faces: []capability.Face{{Confidence: 0.95, Role: model.FaceRolePrimary}}},
		model.StepMetadata: {Hashtags: []string{"dawnpatrol"}},
	}
	for _, step := range run.RequiredSteps {
		_, err := e.tracker.MarkStepRunning(ctx, item.ID, run.RunID, step, "")
		require.NoError(t, err)
		data, err := json.Marshal(results[step])
		require.NoError(t, err)
		_, err = e.tracker.MarkStepCompleted(ctx, item.ID, run.RunID, step, model.StepStatusSucceeded, data, "")
		require.NoError(t, err)
	}
	_, err = e.analysis.BuildFacts(ctx, item.ID, run.RunID)
	require.NoError(t, err)
	return item
}

var surfComments = []string{
	"That surfboard looks freshly waxed for the morning session",
	"How long did you wait for that wave to roll in?",
	"The beach light behind you is unreal",
	"Proud of you for paddling out when the ocean looked that rough",
	"Jealous of those glassy waves, haha",
	"Surfing at sunrise suits you so well",
}

func commentsJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(map[string][]string{"comments": surfComments})
	require.NoError(t, err)
	return string(b)
}
