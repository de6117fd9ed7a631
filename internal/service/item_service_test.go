package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/model/dto"
)

func TestItemService_Register(t *testing.T) {
	env := setupEnv(t)

	item, err := env.itemSvc.Register(&dto.CreateItemRequest{
		AccountID:       7,
		AccountUsername: " @Maya.Travels ",
		MediaKey:        "media/7.jpg",
		Caption:         "Golden hour",
		Topics:          []string{"travel", "Travel", "sunset"},
	})
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.Equal(t, "maya.travels", item.AccountUsername)
	assert.Equal(t, model.ItemKindPost, item.Kind)
	assert.Equal(t, model.MediaTypeImage, item.MediaType)
	assert.Equal(t, model.ItemStatusPending, item.Status)
	assert.Equal(t, []string{"travel", "sunset"}, []string(item.Topics))
}

func TestItemService_Register_MissingMedia(t *testing.T) {
	env := setupEnv(t)
	_, err := env.itemSvc.Register(&dto.CreateItemRequest{AccountID: 1, AccountUsername: "maya"})
	assert.ErrorIs(t, err, ErrMissingMedia)
}

func TestItemService_Get(t *testing.T) {
	env := setupEnv(t)
	item := env.surfItem(t)

	detail, err := env.itemSvc.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, detail.ID)
	assert.Equal(t, []string{"surfing", "beach"}, detail.Topics)
	assert.Equal(t, 0, detail.Progress)

	run, err := env.tracker.Start(context.Background(), item.ID, model.TaskFlags{OCR: true, Metadata: true}, "api")
	require.NoError(t, err)
	_, err = env.tracker.MarkStepCompleted(context.Background(), item.ID, run.RunID, model.StepOCR, model.StepStatusSucceeded, []byte(`{}`), "")
	require.NoError(t, err)

	detail, err = env.itemSvc.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusRunning, detail.Status)
	assert.Equal(t, 50, detail.Progress)

	_, err = env.itemSvc.Get(12345)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestItemService_ListByAccount(t *testing.T) {
	env := setupEnv(t)
	env.surfItem(t)
	env.surfItem(t)

	list, err := env.itemSvc.ListByAccount(1, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = env.itemSvc.ListByAccount(2, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
