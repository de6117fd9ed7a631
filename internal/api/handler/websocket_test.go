package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/ws"
	"github.com/qs3c/engage_go_server/internal/repository"
	"github.com/qs3c/engage_go_server/internal/service"
	"github.com/qs3c/engage_go_server/internal/testutil"
)

func TestWebSocketHandler(t *testing.T) {
	env := setupHandlers(t)
	item := testutil.TestItem(t, env.db)
	hub := ws.NewHub(logger.Nop())
	h := NewWebSocketHandler(hub, service.NewItemService(repository.NewItemRepository(env.db)), testSecret, nil, logger.Nop())

	engine := gin.New()
	engine.GET("/ws", h.Handle)
	server := httptest.NewServer(engine)
	defer server.Close()
	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	t.Run("rejects bad requests", func(t *testing.T) {
		tests := []struct {
			name  string
			query string
			code  int
		}{
			{"missing token", "?item_id=" + itoa(item.ID), http.StatusUnauthorized},
			{"invalid token", "?token=bad&item_id=" + itoa(item.ID), http.StatusUnauthorized},
			{"bad item id", "?token=" + token(t, 0) + "&item_id=x", http.StatusBadRequest},
			{"unknown item", "?token=" + token(t, 0) + "&item_id=99999", http.StatusNotFound},
			{"other account", "?token=" + token(t, item.AccountID+1) + "&item_id=" + itoa(item.ID), http.StatusForbidden},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, resp, err := websocket.DefaultDialer.Dial(base+tt.query, nil)
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, tt.code, resp.StatusCode)
			})
		}
	})

	t.Run("streams item events", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token(t, item.AccountID)+"&item_id="+itoa(item.ID), nil)
		require.NoError(t, err)
		defer conn.Close()
		require.Eventually(t, func() bool { return hub.IsWatched(item.ID) }, time.Second, 10*time.Millisecond)

		hub.HandleEvent(&pubsub.PipelineEvent{ItemID: item.ID, RunID: "run-9", Stage: pubsub.StageDone, Status: "completed", Progress: 100})

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), ws.MessageTypeProgress)
		assert.Contains(t, string(msg), "run-9")

		conn.Close()
		require.Eventually(t, func() bool { return !hub.IsWatched(item.ID) }, time.Second, 10*time.Millisecond)
	})
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no config", nil, "https://evil.com", true},
		{"no origin header", []string{"https://studio.example.com"}, "", true},
		{"allowed", []string{"https://studio.example.com"}, "https://studio.example.com", true},
		{"wildcard", []string{"*"}, "https://evil.com", true},
		{"rejected", []string{"https://studio.example.com"}, "https://evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(req))
		})
	}
}
