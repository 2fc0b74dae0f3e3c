package handlers

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kataras/iris/v12/websocket"
	"github.com/kataras/neffos"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/server"
)

// replayMagic 二进制帧载荷的前导魔数
const replayMagic = "SCTE"

// replayHeaderSize 二进制帧头长度: 魔数 4 + 帧号 8 + 分类 1 + 长度 4
const replayHeaderSize = 17

// ReplaySession 回放会话，按帧节奏重放一个录像的解码帧序列
type ReplaySession struct {
	recording  string
	frames     []models.DecodedFrame
	currentIdx int
	playing    bool
	speed      float64
	mu         sync.Mutex
}

// ReplayHandler WebSocket 回放处理器
type ReplayHandler struct {
	API      *server.Handlers
	sessions map[*neffos.Conn]*ReplaySession
	mu       sync.RWMutex
}

// NewReplayHandler 创建回放处理器
func NewReplayHandler(api *server.Handlers) *ReplayHandler {
	return &ReplayHandler{
		API:      api,
		sessions: make(map[*neffos.Conn]*ReplaySession),
	}
}

// OnConnect 连接建立
func (ws *ReplayHandler) OnConnect(c *neffos.NSConn, msg neffos.Message) error {
	fmt.Printf("[Replay] 客户端连接: %s\n", c.Conn.ID())
	return nil
}

// OnDisconnect 连接断开
func (ws *ReplayHandler) OnDisconnect(c *neffos.NSConn, msg neffos.Message) error {
	fmt.Printf("[Replay] 客户端断开: %s\n", c.Conn.ID())
	ws.mu.Lock()
	delete(ws.sessions, c.Conn)
	ws.mu.Unlock()
	return nil
}

// OnOpen 打开录像的帧序列
func (ws *ReplayHandler) OnOpen(c *neffos.NSConn, msg neffos.Message) error {
	var req struct {
		Recording string `json:"recording"`
	}
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}

	res := ws.API.ResolveResult(req.Recording)
	if res == nil || len(res.Frames) == 0 {
		c.Emit("error", []byte(`{"error": "recording not found"}`))
		return nil
	}

	session := &ReplaySession{
		recording:  res.Recording,
		frames:     res.Frames,
		currentIdx: 0,
		playing:    false,
		speed:      1.0,
	}

	ws.mu.Lock()
	ws.sessions[c.Conn] = session
	ws.mu.Unlock()

	c.Emit("opened", []byte(fmt.Sprintf(`{"frame_count": %d, "event_count": %d}`,
		len(res.Frames), len(res.Events))))

	return nil
}

// OnPlay 开始回放
func (ws *ReplayHandler) OnPlay(c *neffos.NSConn, msg neffos.Message) error {
	ws.mu.RLock()
	session := ws.sessions[c.Conn]
	ws.mu.RUnlock()

	if session == nil {
		return nil
	}

	session.mu.Lock()
	alreadyPlaying := session.playing
	session.playing = true
	session.mu.Unlock()

	if !alreadyPlaying {
		go ws.streamFrames(c, session)
	}
	return nil
}

// OnPause 暂停回放
func (ws *ReplayHandler) OnPause(c *neffos.NSConn, msg neffos.Message) error {
	ws.mu.RLock()
	session := ws.sessions[c.Conn]
	ws.mu.RUnlock()

	if session != nil {
		session.mu.Lock()
		session.playing = false
		session.mu.Unlock()
	}
	return nil
}

// OnSeek 跳转到相对位置 0.0-1.0
func (ws *ReplayHandler) OnSeek(c *neffos.NSConn, msg neffos.Message) error {
	var req struct {
		Position float64 `json:"position"`
	}
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}

	ws.mu.RLock()
	session := ws.sessions[c.Conn]
	ws.mu.RUnlock()

	if session != nil {
		session.mu.Lock()
		session.currentIdx = seekIndex(len(session.frames), req.Position)
		session.mu.Unlock()
	}
	return nil
}

// seekIndex 相对位置换算为帧下标，越界收拢
func seekIndex(total int, position float64) int {
	idx := int(float64(total) * position)
	if idx >= total {
		idx = total - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// OnSpeed 设置回放速度
func (ws *ReplayHandler) OnSpeed(c *neffos.NSConn, msg neffos.Message) error {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}

	ws.mu.RLock()
	session := ws.sessions[c.Conn]
	ws.mu.RUnlock()

	if session != nil && req.Speed > 0 {
		session.mu.Lock()
		session.speed = req.Speed
		session.mu.Unlock()
	}
	return nil
}

// OnClose 关闭会话
func (ws *ReplayHandler) OnClose(c *neffos.NSConn, msg neffos.Message) error {
	ws.mu.Lock()
	session := ws.sessions[c.Conn]
	delete(ws.sessions, c.Conn)
	ws.mu.Unlock()

	if session != nil {
		session.mu.Lock()
		session.playing = false
		session.mu.Unlock()
	}

	c.Emit("closed", nil)
	return nil
}

// streamFrames 按帧节奏流式发送帧
func (ws *ReplayHandler) streamFrames(c *neffos.NSConn, session *ReplaySession) {
	for {
		session.mu.Lock()
		if !session.playing {
			session.mu.Unlock()
			break
		}

		if session.currentIdx >= len(session.frames) {
			session.playing = false
			session.mu.Unlock()
			c.Emit("ended", nil)
			break
		}

		frame := session.frames[session.currentIdx]
		speed := session.speed

		// 相邻帧号差决定发送间隔，序列尾部按单帧时长处理
		intervalMs := int64(config.FrameDurationMs)
		if session.currentIdx+1 < len(session.frames) {
			intervalMs = replayIntervalMs(frame, session.frames[session.currentIdx+1])
		}

		session.currentIdx++
		idx := session.currentIdx
		total := len(session.frames)
		session.mu.Unlock()

		payload, err := EncodeReplayFrame(frame)
		if err != nil {
			continue
		}

		c.EmitBinary("frame", payload)

		progress := float64(idx) / float64(total)
		c.Emit("progress", []byte(fmt.Sprintf(`{"position": %.4f, "index": %d}`,
			progress, idx)))

		sleepDuration := time.Duration(float64(intervalMs)/speed) * time.Millisecond
		if sleepDuration > 0 && sleepDuration < time.Second {
			time.Sleep(sleepDuration)
		} else if sleepDuration >= time.Second {
			time.Sleep(time.Second)
		}
	}
}

// replayIntervalMs 两个相邻帧之间的回放间隔(毫秒)
func replayIntervalMs(cur, next models.DecodedFrame) int64 {
	return int64(next.FrameNumber-cur.FrameNumber) * config.FrameDurationMs
}

// EncodeReplayFrame 编码二进制帧载荷。
// 布局: "SCTE" + 大端帧号 uint64 + 分类字节 + 大端长度 uint32 + JSON 帧体
func EncodeReplayFrame(frame models.DecodedFrame) ([]byte, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, replayHeaderSize+len(body))
	copy(buf[0:4], replayMagic)
	binary.BigEndian.PutUint64(buf[4:12], uint64(frame.FrameNumber))
	buf[12] = byte(frame.Classification)
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(body)))
	copy(buf[17:], body)
	return buf, nil
}

// RegisterEvents 注册 WebSocket 事件
func (ws *ReplayHandler) RegisterEvents() websocket.Namespaces {
	return websocket.Namespaces{
		"analyzer": websocket.Events{
			websocket.OnNamespaceConnected:  ws.OnConnect,
			websocket.OnNamespaceDisconnect: ws.OnDisconnect,
			"open":  ws.OnOpen,
			"play":  ws.OnPlay,
			"pause": ws.OnPause,
			"seek":  ws.OnSeek,
			"speed": ws.OnSpeed,
			"close": ws.OnClose,
		},
	}
}
