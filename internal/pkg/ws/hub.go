package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
)

// MessageTypeProgress 流水线进度推送
const MessageTypeProgress = "pipeline_progress"

// Hub 按 item 分组的连接，一个 item 可以被多个连接订阅
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	log     *logger.Logger
}

type Client struct {
	ItemID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewHub 创建 WebSocket 连接中心
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     log.With("component", "ws_hub"),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.ItemID] == nil {
		h.clients[client.ItemID] = make(map[*Client]struct{})
	}
	h.clients[client.ItemID][client] = struct{}{}
	h.log.Debug("client subscribed", "item_id", client.ItemID, "item_conns", len(h.clients[client.ItemID]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.ItemID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.ItemID)
		}
	}
	h.log.Debug("client unsubscribed", "item_id", client.ItemID)
}

// SendToItem 向订阅该 item 的所有连接发送消息
func (h *Hub) SendToItem(itemID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[itemID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn("websocket write failed", "item_id", itemID, "error", err)
		}
	}
	return nil
}

// HandleEvent 作为 pubsub 订阅回调，把进度事件转发给订阅者
func (h *Hub) HandleEvent(ev *pubsub.PipelineEvent) {
	if err := h.SendToItem(ev.ItemID, &Message{Type: MessageTypeProgress, Data: ev}); err != nil {
		h.log.Warn("forward pipeline event failed", "item_id", ev.ItemID, "error", err)
	}
}

// IsWatched 是否有连接在订阅该 item
func (h *Hub) IsWatched(itemID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[itemID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
