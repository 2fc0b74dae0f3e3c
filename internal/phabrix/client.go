// Package phabrix 实现 Phabrix 波形监测设备前端:
// 通过远控口拉取 ANC 网格视图，还原出 SCTE-104 载荷并解码。
package phabrix

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/scte104"
)

// Client 设备远控客户端。
// 请求为一行 "<消息码> <条目码> 0 0"，应答为制表符分隔的十进制词表。
type Client struct {
	Addr    string
	Timeout time.Duration
}

// NewClient 创建客户端，默认 5 秒超时
func NewClient(addr string) *Client {
	return &Client{Addr: addr, Timeout: 5 * time.Second}
}

// ItemCodeForInput 分析器输入对应的 ANC 视图条目码
func ItemCodeForInput(input int) int {
	switch input {
	case 2:
		return config.ItemAncDataInput2
	case 3:
		return config.ItemAncDataInput3
	default:
		return config.ItemAncData
	}
}

// FetchANC 拉取一次 ANC 网格，返回原始词表
func (c *Client) FetchANC(ctx context.Context, itemCode int) ([]string, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%d %d 0 0\n", config.MsgGetItemValues, itemCode); err != nil {
		return nil, err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, err
	}
	return strings.Split(strings.TrimRight(line, "\r\n"), "\t"), nil
}

// ============================================================================
// 轮询
// ============================================================================

// RunConfig 一次轮询运行的配置
type RunConfig struct {
	OneShot  bool
	Interval time.Duration // 连续模式的拉取间隔，默认 1 秒
	Input    int           // 分析器输入 1-3
}

// Event 一次拉取的解码结果
type Event struct {
	SessionID   string
	Timestamp   time.Time // UTC
	PayloadHex  string
	Message     *scte104.SpliceMessage
	DecodeError string
}

// Poller 设备轮询器，每个新载荷经 OnEvent 上报
type Poller struct {
	Client  *Client
	Config  RunConfig
	OnEvent func(Event)
}

// Run 执行轮询。连续模式间隔拉取并对相同载荷去重，
// 直到 ctx 取消才返回。
func (p *Poller) Run(ctx context.Context) error {
	session := uuid.NewString()
	itemCode := ItemCodeForInput(p.Config.Input)
	interval := p.Config.Interval
	if interval <= 0 {
		interval = time.Second
	}

	scte104.LogInfo("Phabrix 轮询开始",
		"addr", p.Client.Addr, "item", itemCode,
		"oneShot", p.Config.OneShot, "session", session)

	if p.Config.OneShot {
		words, err := p.Client.FetchANC(ctx, itemCode)
		if err != nil {
			return err
		}
		p.emit(session, words)
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	previous := ""
	for {
		p.pollOnce(ctx, session, itemCode, &previous)

		select {
		case <-ctx.Done():
			scte104.LogInfo("Phabrix 轮询结束", "session", session)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce 拉取一次，载荷与上次不同才上报
func (p *Poller) pollOnce(ctx context.Context, session string, itemCode int, previous *string) {
	words, err := p.Client.FetchANC(ctx, itemCode)
	if err != nil {
		scte104.LogWarn("ANC 拉取失败", "error", err)
		return
	}
	payload, err := Preprocess(words)
	if err != nil {
		scte104.LogWarn("ANC 网格预处理失败", "error", err)
		return
	}
	if payload == *previous {
		scte104.LogDebug("Same data. Omitted.")
		return
	}
	*previous = payload
	p.emitPayload(session, payload)
}

func (p *Poller) emit(session string, words []string) {
	payload, err := Preprocess(words)
	if err != nil {
		scte104.LogWarn("ANC 网格预处理失败", "error", err)
		return
	}
	p.emitPayload(session, payload)
}

func (p *Poller) emitPayload(session, payloadHex string) {
	ev := Event{
		SessionID:  session,
		Timestamp:  time.Now().UTC(),
		PayloadHex: payloadHex,
	}

	data, err := hex.DecodeString(payloadHex)
	if err != nil {
		ev.DecodeError = err.Error()
	} else if msg, derr := scte104.Decode(data); derr != nil {
		ev.DecodeError = derr.Error()
		scte104.LogWarn("SCTE-104 解码失败", "error", derr)
	} else {
		ev.Message = msg
		scte104.LogInfo("SCTE-104 消息", "name", msg.Name(), "timestamp", msg.Timestamp.String())
	}

	if p.OnEvent != nil {
		p.OnEvent(ev)
	}
}
