// Package correlate 实现帧/事件相关器:
// 按帧序扫描解码结果，把帧分类为宣告/触发/边界，
// 度量宣告时刻与实际触发帧之间的帧差，并报告未触发的宣告。
package correlate

import (
	"fmt"
	"sort"

	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/scte104"
)

// Observation 一个源帧上的解码尝试，由前端按帧序提供
type Observation struct {
	FrameNumber  int
	FileTimecode string
	UTCTimecode  string
	// 解码失败时 Message 为 nil 且 Err 说明原因
	Message *scte104.SpliceMessage
	Err     error
	// 宣告消息声明的拼接时刻相对本帧的帧数，由前端从时码换算；
	// 0 表示立即或未知
	DeclaredOffset int
}

// Result 一个录像的相关结果
type Result struct {
	Frames     []models.DecodedFrame
	Events     []models.CueEvent
	Unresolved []models.UnresolvedAnnouncement
	KeepAlives int
	Failures   int
	Decoded    int
	// 所有载荷都解码失败，多半选错了数据流或设备输入
	AllFailed bool
}

// 操作对事件的作用
type role int

const (
	roleAnnounce role = iota + 1
	roleTrigger
	roleCancel
)

// 等待触发的宣告
type pending struct {
	eventID       uint32
	frame         int
	declaredFrame int // -1 表示未声明拼接时刻
	resolved      bool
}

// Run 按帧序执行相关。padding 为触发帧两侧的边界窗口宽度(帧)。
func Run(observations []Observation, padding int) *Result {
	c := &correlator{
		frames: make(map[int]*models.DecodedFrame),
		byID:   make(map[uint32]*pending),
		result: &Result{},
	}
	for _, obs := range observations {
		if obs.FrameNumber > c.maxFrame {
			c.maxFrame = obs.FrameNumber
		}
	}
	for _, obs := range observations {
		c.observe(obs)
	}
	c.finish(padding)
	return c.result
}

type correlator struct {
	frames   map[int]*models.DecodedFrame
	pendings []*pending
	byID     map[uint32]*pending
	maxFrame int
	attempts int
	result   *Result
}

func (c *correlator) observe(obs Observation) {
	c.attempts++

	if obs.Err != nil {
		c.result.Failures++
		f := c.frame(obs.FrameNumber, obs)
		f.DecodeError = obs.Err.Error()
		return
	}
	if obs.Message == nil {
		c.frame(obs.FrameNumber, obs)
		return
	}
	if obs.Message.IsKeepAlive() {
		c.result.KeepAlives++
		return
	}
	c.result.Decoded++

	// 已到声明时刻的宣告先行触发
	c.fireDue(obs.FrameNumber)

	f := c.frame(obs.FrameNumber, obs)
	for _, e := range messageRoles(obs.Message) {
		switch e.role {
		case roleAnnounce:
			c.announce(f, obs, e.eventID)
		case roleTrigger:
			c.trigger(f, obs.FrameNumber, e.eventID)
		case roleCancel:
			if p := c.byID[e.eventID]; p != nil && !p.resolved {
				p.resolved = true
			}
		}
	}
}

// 一个消息内按线序排出的事件作用，同一事件后出现的操作覆盖先出现的
type eventRole struct {
	eventID uint32
	role    role
}

func messageRoles(msg *scte104.SpliceMessage) []eventRole {
	var order []uint32
	latest := make(map[uint32]role)
	record := func(id uint32, r role) {
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = r
	}

	timed := msg.Type == scte104.MultipleOperation &&
		msg.Timestamp.TimeType != scte104.TimeTypeNone
	for _, op := range msg.Operations {
		switch o := op.(type) {
		case *scte104.SpliceRequest:
			switch o.InsertType {
			case scte104.SpliceStartNormal, scte104.SpliceEndNormal:
				record(o.EventID, roleAnnounce)
			case scte104.SpliceStartImmediate, scte104.SpliceEndImmediate:
				record(o.EventID, roleTrigger)
			case scte104.SpliceCancel:
				record(o.EventID, roleCancel)
			}
		case *scte104.InsertSegmentationDescriptor:
			if timed {
				record(o.EventID, roleAnnounce)
			} else {
				record(o.EventID, roleTrigger)
			}
		}
	}

	roles := make([]eventRole, 0, len(order))
	for _, id := range order {
		roles = append(roles, eventRole{eventID: id, role: latest[id]})
	}
	return roles
}

func (c *correlator) announce(f *models.DecodedFrame, obs Observation, eventID uint32) {
	// 同一事件的再次宣告取代旧宣告
	if old := c.byID[eventID]; old != nil && !old.resolved {
		old.resolved = true
	}
	declared := -1
	if obs.DeclaredOffset > 0 {
		declared = obs.FrameNumber + obs.DeclaredOffset
	}
	p := &pending{eventID: eventID, frame: obs.FrameNumber, declaredFrame: declared}
	c.pendings = append(c.pendings, p)
	c.byID[eventID] = p

	if f.Classification != models.ClassTrigger {
		f.Classification = models.ClassAnnouncement
		f.EventID = eventID
	}
	if cue := cueEvent(obs, eventID); cue != nil {
		c.result.Events = append(c.result.Events, *cue)
	}
}

func (c *correlator) trigger(f *models.DecodedFrame, frame int, eventID uint32) {
	f.Classification = models.ClassTrigger
	f.EventID = eventID
	if p := c.byID[eventID]; p != nil && !p.resolved {
		p.resolved = true
		if p.declaredFrame >= 0 {
			offset := frame - p.declaredFrame
			f.OffsetFrames = &offset
		}
	}
}

// fireDue 声明时刻已过的宣告在声明帧上合成触发
func (c *correlator) fireDue(now int) {
	for _, p := range c.pendings {
		if p.resolved || p.declaredFrame < 0 || p.declaredFrame >= now {
			continue
		}
		c.fireAt(p)
	}
}

func (c *correlator) fireAt(p *pending) {
	p.resolved = true
	f, ok := c.frames[p.declaredFrame]
	if !ok {
		f = &models.DecodedFrame{FrameNumber: p.declaredFrame}
		c.frames[p.declaredFrame] = f
	}
	if f.Classification == models.ClassTrigger {
		return
	}
	f.Classification = models.ClassTrigger
	f.EventID = p.eventID
	offset := 0
	f.OffsetFrames = &offset
}

func (c *correlator) finish(padding int) {
	// 录像范围内已到时刻的宣告触发，其余进入未触发报告
	for _, p := range c.pendings {
		if p.resolved {
			continue
		}
		if p.declaredFrame >= 0 && p.declaredFrame <= c.maxFrame {
			c.fireAt(p)
			continue
		}
		note := "no trigger before end of recording"
		if p.declaredFrame > c.maxFrame {
			note = fmt.Sprintf("declared splice frame %d beyond end of recording", p.declaredFrame)
		}
		c.result.Unresolved = append(c.result.Unresolved, models.UnresolvedAnnouncement{
			EventID:     p.eventID,
			FrameNumber: p.frame,
			Note:        note,
		})
	}

	// 触发帧两侧的边界窗口，纯帧号运算
	if padding > 0 {
		for n, f := range c.frames {
			if f.Classification != models.ClassTrigger {
				continue
			}
			lo, hi := n-padding, n+padding
			if lo < 0 {
				lo = 0
			}
			if hi > c.maxFrame {
				hi = c.maxFrame
			}
			for i := lo; i <= hi; i++ {
				if g, ok := c.frames[i]; ok && g.Classification == models.ClassNone {
					g.Classification = models.ClassBoundary
				}
			}
		}
	}

	c.result.AllFailed = c.attempts > 0 && c.result.Failures == c.attempts

	c.result.Frames = make([]models.DecodedFrame, 0, len(c.frames))
	for _, f := range c.frames {
		c.result.Frames = append(c.result.Frames, *f)
	}
	sort.Slice(c.result.Frames, func(i, j int) bool {
		return c.result.Frames[i].FrameNumber < c.result.Frames[j].FrameNumber
	})
}

func (c *correlator) frame(n int, obs Observation) *models.DecodedFrame {
	if f, ok := c.frames[n]; ok {
		if f.Message == nil && obs.Message != nil {
			f.Message = models.NewMessageView(obs.Message)
		}
		return f
	}
	f := &models.DecodedFrame{
		FrameNumber:  n,
		FileTimecode: obs.FileTimecode,
		UTCTimecode:  obs.UTCTimecode,
	}
	if obs.Message != nil {
		f.Message = models.NewMessageView(obs.Message)
	}
	c.frames[n] = f
	return f
}

// cueEvent 从宣告消息提取呈现摘要
func cueEvent(obs Observation, eventID uint32) *models.CueEvent {
	msg := obs.Message
	cue := &models.CueEvent{
		FrameNumber: obs.FrameNumber,
		EventID:     eventID,
	}
	if msg.Type == scte104.MultipleOperation {
		cue.Timestamp = msg.Timestamp.String()
	}
	if ts := msg.GetTimeSignal(); ts != nil {
		cue.PreRollMs = int(ts.PreRollTime)
	}

	if sd := msg.GetSegmentationDescriptor(); sd != nil && sd.EventID == eventID {
		cue.DurationSeconds = int(sd.Duration)
		cue.UPID = sd.FormattedUPID()
		cue.TypeID = fmt.Sprintf("0x%02x", sd.TypeID)
		cue.TypeName = sd.TypeName()
		return cue
	}
	if sr := msg.GetSpliceRequest(); sr != nil && sr.EventID == eventID {
		cue.PreRollMs = int(sr.PreRollTime)
		cue.DurationSeconds = int(sr.BreakDuration) / 10
		cue.TypeID = fmt.Sprintf("0x%02x", sr.InsertType)
		cue.TypeName = sr.InsertTypeName()
		return cue
	}
	return nil
}
