package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/capability"
)

type fakeObjects struct {
	data map[string][]byte
	err  error
}

func (f *fakeObjects) Download(key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func TestMediaStore_FetchObject(t *testing.T) {
	store := NewMediaStore(&fakeObjects{data: map[string][]byte{"media/1.jpg": []byte("jpeg")}}, 0)

	data, err := store.Fetch(context.Background(), "media/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = store.Fetch(context.Background(), "media/missing.jpg")
	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "素材不存在或已删除", me.UserMessage)

	_, err = store.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestMediaStore_NoObjectStore(t *testing.T) {
	store := NewMediaStore(nil, 0)
	_, err := store.Fetch(context.Background(), "media/1.jpg")
	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "素材存储未配置", me.UserMessage)
}

func TestMediaStore_FetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Write([]byte("remote-jpeg"))
		case "/busy.jpg":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/private.jpg":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	store := NewMediaStore(nil, 0)

	data, err := store.Fetch(context.Background(), srv.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote-jpeg"), data)

	_, err = store.Fetch(context.Background(), srv.URL+"/busy.jpg")
	require.Error(t, err)
	assert.True(t, capability.IsTransient(err))

	tests := []struct {
		path string
		want string
	}{
		{"/private.jpg", "素材访问被拒绝"},
		{"/gone.jpg", "素材不存在或已删除"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := store.Fetch(context.Background(), srv.URL+tt.path)
			var me *MediaError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.want, me.UserMessage)
			assert.False(t, capability.IsTransient(err))
		})
	}
}

func TestStepErrorText(t *testing.T) {
	assert.Equal(t, "素材过大", stepErrorText(&MediaError{UserMessage: "素材过大", RawError: errors.New("too big")}))
	assert.Equal(t, "boom", stepErrorText(errors.New("boom")))
}
