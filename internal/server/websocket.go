package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/phabrix"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage WebSocket 控制消息
type WSMessage struct {
	Action   string  `json:"action"`
	Interval float64 `json:"interval"` // 拉取间隔(秒)
	Input    int     `json:"input"`    // 分析器输入 1-3
}

// LiveSession 实时事件会话。
// 每个连接独占一个 Phabrix 轮询协程，解码结果以 JSON 推送。
type LiveSession struct {
	ws  *websocket.Conn
	cfg config.PhabrixConfig

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	interval time.Duration
	input    int
}

// liveEvent 推送给浏览器的事件
type liveEvent struct {
	Type        string              `json:"type"`
	SessionID   string              `json:"sessionId"`
	Timestamp   string              `json:"timestamp"`
	PayloadHex  string              `json:"payloadHex"`
	Message     *models.MessageView `json:"message,omitempty"`
	DecodeError string              `json:"decodeError,omitempty"`
}

// HandleLiveWebSocket WebSocket 处理器，GET /ws/live
func (h *Handlers) HandleLiveWebSocket(ctx iris.Context) {
	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		fmt.Printf("[WS] Upgrade error: %v\n", err)
		return
	}
	defer ws.Close()

	session := &LiveSession{
		ws:       ws,
		cfg:      h.phabrix,
		interval: time.Duration(h.phabrix.IntervalSeconds) * time.Second,
		input:    h.phabrix.Input,
	}

	sessionID := fmt.Sprintf("%p", ws)
	fmt.Printf("[WS] 新连接: %s\n", sessionID)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WS] Error: %v\n", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			session.sendJSON(map[string]interface{}{"error": "无效的 JSON"})
			continue
		}

		switch msg.Action {
		case "start":
			session.stop()
			if msg.Interval > 0 {
				session.setInterval(time.Duration(msg.Interval * float64(time.Second)))
			}
			if msg.Input > 0 {
				session.setInput(msg.Input)
			}
			session.start()
			fmt.Printf("[WS] 开始轮询: input=%d, interval=%s\n",
				session.getInput(), session.getInterval())

		case "stop":
			session.stop()
			fmt.Printf("[WS] 停止轮询\n")

		case "interval":
			if msg.Interval > 0 {
				session.setInterval(time.Duration(msg.Interval * float64(time.Second)))
				// 运行中则带新间隔重启
				if session.isRunning() {
					session.stop()
					session.start()
				}
				fmt.Printf("[WS] 间隔变更: %s\n", session.getInterval())
			}
		}
	}

	session.stop()
	fmt.Printf("[WS] 断开连接: %s\n", sessionID)
}

// start 启动轮询协程
func (s *LiveSession) start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	interval := s.interval
	input := s.input
	s.mu.Unlock()

	poller := &phabrix.Poller{
		Client: phabrix.NewClient(s.cfg.Addr()),
		Config: phabrix.RunConfig{
			Interval: interval,
			Input:    input,
		},
		OnEvent: s.sendEvent,
	}

	go func() {
		err := poller.Run(ctx)

		// stop() 主动取消时状态已清理，这里只处理自然结束
		if ctx.Err() == nil {
			s.mu.Lock()
			s.running = false
			s.cancel = nil
			s.mu.Unlock()
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			s.sendJSON(map[string]interface{}{"error": err.Error()})
		}
		s.sendJSON(map[string]interface{}{"type": "poll_end"})
	}()
}

func (s *LiveSession) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.running = false
	}
}

func (s *LiveSession) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *LiveSession) setInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

func (s *LiveSession) getInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *LiveSession) setInput(input int) {
	s.mu.Lock()
	s.input = input
	s.mu.Unlock()
}

func (s *LiveSession) getInput() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *LiveSession) sendJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(v)
}

// sendEvent 把一次轮询结果推给浏览器
func (s *LiveSession) sendEvent(ev phabrix.Event) {
	out := liveEvent{
		Type:        "event",
		SessionID:   ev.SessionID,
		Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339),
		PayloadHex:  ev.PayloadHex,
		DecodeError: ev.DecodeError,
	}
	if ev.Message != nil {
		out.Message = models.NewMessageView(ev.Message)
	}
	s.sendJSON(out)
}
