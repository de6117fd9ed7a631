package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/model/dto"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/testutil"
)

func TestAnalysisHandler_Get(t *testing.T) {
	env := setupHandlers(t)

	pending := testutil.TestItem(t, env.db)
	resp := env.do(t, "GET", "/api/v1/items/"+itoa(pending.ID)+"/analysis", 0, nil)
	assert.Equal(t, response.CodeNotReady, resp.Code)

	item := env.analyzedItem(t)
	resp = env.do(t, "GET", "/api/v1/items/"+itoa(item.ID)+"/analysis", 0, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	var rec model.AnalysisRecord
	decode(t, resp, &rec)
	assert.Contains(t, rec.Facts.ObjectLabels(), "surfboard")
	assert.Equal(t, model.OwnershipOwned, rec.Ownership.Label)
	assert.True(t, rec.Policy.AllowComment)
}

func TestCommentHandler_RegenerateAndLatest(t *testing.T) {
	env := setupHandlers(t)
	env.llm.Script(fastModel, commentsJSON(t))
	item := env.analyzedItem(t)
	path := "/api/v1/items/" + itoa(item.ID) + "/comments"

	resp := env.do(t, "GET", path, 0, nil)
	assert.Equal(t, response.CodeNotReady, resp.Code)

	resp = env.do(t, "POST", path+"/generate", 0, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var generated dto.GenerationResponse
	decode(t, resp, &generated)
	assert.Equal(t, model.GenerationStatusGenerated, generated.Status)
	require.NotEmpty(t, generated.Suggestions)
	assert.Nil(t, generated.Telemetry)

	resp = env.do(t, "GET", path+"?verbose=1", 0, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var latest dto.GenerationResponse
	decode(t, resp, &latest)
	assert.Equal(t, generated.GenerationID, latest.GenerationID)
	assert.Len(t, latest.Suggestions, len(generated.Suggestions))
	assert.Equal(t, 1, latest.Suggestions[0].Rank)
	assert.NotEmpty(t, latest.Telemetry)
	assert.NotEmpty(t, latest.Diagnostics)
}

func TestCommentHandler_RegenerateErrors(t *testing.T) {
	env := setupHandlers(t)

	pending := testutil.TestItem(t, env.db)
	resp := env.do(t, "POST", "/api/v1/items/"+itoa(pending.ID)+"/comments/generate", 0, nil)
	assert.Equal(t, response.CodeNotReady, resp.Code)

	env.llm.Fail(fastModel, &capability.HTTPError{StatusCode: 503, Body: "overloaded"})
	item := env.analyzedItem(t)
	resp = env.do(t, "POST", "/api/v1/items/"+itoa(item.ID)+"/comments/generate", 0, nil)
	assert.Equal(t, response.CodeUnavailable, resp.Code)
}
