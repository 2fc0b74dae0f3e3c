package correlate

import (
	"errors"
	"testing"

	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/scte104"
)

// blankFrames 生成 n 个无载荷的帧序观测
func blankFrames(n int) []Observation {
	obs := make([]Observation, n)
	for i := range obs {
		obs[i] = Observation{FrameNumber: i}
	}
	return obs
}

// timedAnnounce 定时多操作宣告消息(time_signal + 分段描述符)
func timedAnnounce(eventID uint32, typeID uint8) *scte104.SpliceMessage {
	return &scte104.SpliceMessage{
		Type: scte104.MultipleOperation,
		Timestamp: scte104.Timestamp{
			TimeType: scte104.TimeTypeSMPTE,
			Hours:    9, Minutes: 21, Seconds: 59, Frames: 9,
		},
		Operations: []scte104.Operation{
			&scte104.TimeSignal{PreRollTime: 200},
			&scte104.InsertSegmentationDescriptor{
				EventID:  eventID,
				Duration: 30,
				UPIDType: 0x01,
				UPID:     []byte("POS"),
				TypeID:   typeID,
			},
		},
	}
}

// immediateTrigger 立即执行的多操作触发消息
func immediateTrigger(eventID uint32) *scte104.SpliceMessage {
	return &scte104.SpliceMessage{
		Type:      scte104.MultipleOperation,
		Timestamp: scte104.Timestamp{TimeType: scte104.TimeTypeNone},
		Operations: []scte104.Operation{
			&scte104.TimeSignal{},
			&scte104.InsertSegmentationDescriptor{EventID: eventID, TypeID: 0x30},
		},
	}
}

// frameByNumber 按帧号取结果帧
func frameByNumber(t *testing.T, frames []models.DecodedFrame, n int) models.DecodedFrame {
	t.Helper()
	for _, f := range frames {
		if f.FrameNumber == n {
			return f
		}
	}
	t.Fatalf("Frame %d not found in result", n)
	return models.DecodedFrame{}
}

// TestAnnounceTriggerBoundary 验证宣告/触发/边界的基本分类:
// 帧 2 宣告事件 7(声明偏移 +5)，帧 7 显式触发，边界宽度 2
func TestAnnounceTriggerBoundary(t *testing.T) {
	obs := blankFrames(10)
	obs[2].Message = timedAnnounce(7, 0x30)
	obs[2].DeclaredOffset = 5
	obs[7].Message = immediateTrigger(7)

	res := Run(obs, 2)

	if len(res.Frames) != 10 {
		t.Fatalf("Expected 10 frames, got %d", len(res.Frames))
	}

	expected := map[int]models.Classification{
		0: models.ClassNone,
		1: models.ClassNone,
		2: models.ClassAnnouncement,
		3: models.ClassNone,
		4: models.ClassNone,
		5: models.ClassBoundary,
		6: models.ClassBoundary,
		7: models.ClassTrigger,
		8: models.ClassBoundary,
		9: models.ClassBoundary,
	}
	for n, want := range expected {
		f := frameByNumber(t, res.Frames, n)
		if f.Classification != want {
			t.Errorf("Frame %d: expected classification %s, got %s", n, want, f.Classification)
		}
	}

	ann := frameByNumber(t, res.Frames, 2)
	if ann.EventID != 7 {
		t.Errorf("Expected announcement event id 7, got %d", ann.EventID)
	}
	if ann.Message == nil {
		t.Error("Expected message view on announcement frame")
	}

	trig := frameByNumber(t, res.Frames, 7)
	if trig.EventID != 7 {
		t.Errorf("Expected trigger event id 7, got %d", trig.EventID)
	}
	if trig.OffsetFrames == nil {
		t.Fatal("Expected measured offset on trigger frame")
	}
	if *trig.OffsetFrames != 0 {
		t.Errorf("Expected measured offset 0, got %d", *trig.OffsetFrames)
	}

	if len(res.Unresolved) != 0 {
		t.Errorf("Expected no unresolved announcements, got %d", len(res.Unresolved))
	}
	if res.Decoded != 2 {
		t.Errorf("Expected 2 decoded messages, got %d", res.Decoded)
	}

	if len(res.Events) != 1 {
		t.Fatalf("Expected 1 cue event, got %d", len(res.Events))
	}
	cue := res.Events[0]
	if cue.FrameNumber != 2 {
		t.Errorf("Expected cue event at frame 2, got %d", cue.FrameNumber)
	}
	if cue.EventID != 7 {
		t.Errorf("Expected cue event id 7, got %d", cue.EventID)
	}
	if cue.Timestamp != "09:21:59:09" {
		t.Errorf("Expected cue timestamp 09:21:59:09, got %s", cue.Timestamp)
	}
	if cue.PreRollMs != 200 {
		t.Errorf("Expected pre-roll 200 ms, got %d", cue.PreRollMs)
	}
	if cue.DurationSeconds != 30 {
		t.Errorf("Expected duration 30 s, got %d", cue.DurationSeconds)
	}
	if cue.UPID != "POS" {
		t.Errorf("Expected UPID POS, got %s", cue.UPID)
	}
	if cue.TypeID != "0x30" {
		t.Errorf("Expected type id 0x30, got %s", cue.TypeID)
	}
	if cue.TypeName != "Provider Advertisement Start" {
		t.Errorf("Expected type name Provider Advertisement Start, got %s", cue.TypeName)
	}
}

// TestSynthesizedTrigger 无显式触发消息时在声明帧上合成触发。
// 广告开始与结束先后宣告同一事件号，两个声明时刻都应触发。
func TestSynthesizedTrigger(t *testing.T) {
	obs := blankFrames(51)
	obs[10].Message = timedAnnounce(0x229, 0x30)
	obs[10].DeclaredOffset = 10
	obs[30].Message = timedAnnounce(0x229, 0x31)
	obs[30].DeclaredOffset = 10

	res := Run(obs, 2)

	for _, n := range []int{10, 30} {
		f := frameByNumber(t, res.Frames, n)
		if f.Classification != models.ClassAnnouncement {
			t.Errorf("Frame %d: expected Announcement, got %s", n, f.Classification)
		}
	}
	for _, n := range []int{20, 40} {
		f := frameByNumber(t, res.Frames, n)
		if f.Classification != models.ClassTrigger {
			t.Errorf("Frame %d: expected Trigger, got %s", n, f.Classification)
		}
		if f.OffsetFrames == nil || *f.OffsetFrames != 0 {
			t.Errorf("Frame %d: expected synthesized offset 0", n)
		}
	}
	for _, n := range []int{18, 19, 21, 22, 38, 39, 41, 42} {
		f := frameByNumber(t, res.Frames, n)
		if f.Classification != models.ClassBoundary {
			t.Errorf("Frame %d: expected Boundary, got %s", n, f.Classification)
		}
	}

	if len(res.Unresolved) != 0 {
		t.Errorf("Expected no unresolved announcements, got %d", len(res.Unresolved))
	}
	if len(res.Events) != 2 {
		t.Errorf("Expected 2 cue events, got %d", len(res.Events))
	}
}

// TestUnresolvedAnnouncements 录像结束仍未触发的宣告进入报告:
// 声明时刻超出录像范围，或根本未声明时刻
func TestUnresolvedAnnouncements(t *testing.T) {
	obs := blankFrames(10)
	obs[1].Message = &scte104.SpliceMessage{
		Type:      scte104.MultipleOperation,
		Timestamp: scte104.Timestamp{TimeType: scte104.TimeTypeNone},
		Operations: []scte104.Operation{
			&scte104.SpliceRequest{InsertType: scte104.SpliceStartNormal, EventID: 11},
		},
	}
	obs[8].Message = timedAnnounce(9, 0x30)
	obs[8].DeclaredOffset = 5

	res := Run(obs, 2)

	if len(res.Unresolved) != 2 {
		t.Fatalf("Expected 2 unresolved announcements, got %d", len(res.Unresolved))
	}

	first := res.Unresolved[0]
	if first.EventID != 11 {
		t.Errorf("Expected event id 11, got %d", first.EventID)
	}
	if first.FrameNumber != 1 {
		t.Errorf("Expected frame 1, got %d", first.FrameNumber)
	}
	if first.Note != "no trigger before end of recording" {
		t.Errorf("Unexpected note: %s", first.Note)
	}

	second := res.Unresolved[1]
	if second.EventID != 9 {
		t.Errorf("Expected event id 9, got %d", second.EventID)
	}
	if second.FrameNumber != 8 {
		t.Errorf("Expected frame 8, got %d", second.FrameNumber)
	}
	if second.Note != "declared splice frame 13 beyond end of recording" {
		t.Errorf("Unexpected note: %s", second.Note)
	}

	for _, n := range []int{1, 8} {
		f := frameByNumber(t, res.Frames, n)
		if f.Classification != models.ClassAnnouncement {
			t.Errorf("Frame %d: expected Announcement, got %s", n, f.Classification)
		}
	}
}

// TestLaterOperationWins 同一消息内同一事件先宣告后立即触发，
// 线序靠后的操作决定帧分类
func TestLaterOperationWins(t *testing.T) {
	obs := blankFrames(5)
	obs[3].Message = &scte104.SpliceMessage{
		Type:      scte104.MultipleOperation,
		Timestamp: scte104.Timestamp{TimeType: scte104.TimeTypeNone},
		Operations: []scte104.Operation{
			&scte104.SpliceRequest{InsertType: scte104.SpliceStartNormal, EventID: 7},
			&scte104.SpliceRequest{InsertType: scte104.SpliceStartImmediate, EventID: 7},
		},
	}

	res := Run(obs, 0)

	f := frameByNumber(t, res.Frames, 3)
	if f.Classification != models.ClassTrigger {
		t.Errorf("Expected Trigger, got %s", f.Classification)
	}
	if f.EventID != 7 {
		t.Errorf("Expected event id 7, got %d", f.EventID)
	}
	if len(res.Unresolved) != 0 {
		t.Errorf("Expected no unresolved announcements, got %d", len(res.Unresolved))
	}
}

// TestReAnnouncementSupersedes 同一事件再次宣告取代旧宣告，
// 只有最新的声明时刻触发
func TestReAnnouncementSupersedes(t *testing.T) {
	obs := blankFrames(10)
	obs[1].Message = timedAnnounce(5, 0x30)
	obs[1].DeclaredOffset = 2
	obs[2].Message = timedAnnounce(5, 0x30)
	obs[2].DeclaredOffset = 4

	res := Run(obs, 0)

	triggers := 0
	for _, f := range res.Frames {
		if f.Classification == models.ClassTrigger {
			triggers++
			if f.FrameNumber != 6 {
				t.Errorf("Expected trigger at frame 6, got %d", f.FrameNumber)
			}
		}
	}
	if triggers != 1 {
		t.Errorf("Expected exactly 1 trigger, got %d", triggers)
	}

	f := frameByNumber(t, res.Frames, 3)
	if f.Classification != models.ClassNone {
		t.Errorf("Frame 3: expected None, got %s", f.Classification)
	}
	if len(res.Unresolved) != 0 {
		t.Errorf("Expected no unresolved announcements, got %d", len(res.Unresolved))
	}
}

// TestBoundaryClampedAtZero 边界窗口不越过帧 0
func TestBoundaryClampedAtZero(t *testing.T) {
	obs := blankFrames(4)
	obs[1].Message = immediateTrigger(3)

	res := Run(obs, 3)

	if f := frameByNumber(t, res.Frames, 1); f.Classification != models.ClassTrigger {
		t.Errorf("Frame 1: expected Trigger, got %s", f.Classification)
	}
	for _, n := range []int{0, 2, 3} {
		f := frameByNumber(t, res.Frames, n)
		if f.Classification != models.ClassBoundary {
			t.Errorf("Frame %d: expected Boundary, got %s", n, f.Classification)
		}
	}
}

// TestKeepAliveAndFailures 保活消息只计数不产出帧，解码失败记录错误
func TestKeepAliveAndFailures(t *testing.T) {
	keepAlive := &scte104.SpliceMessage{
		Type:       scte104.SingleOperation,
		Operations: []scte104.Operation{&scte104.AliveRequest{}},
	}
	obs := []Observation{
		{FrameNumber: 0, Message: keepAlive},
		{FrameNumber: 1, Err: errors.New("not SCTE-104 data")},
		{FrameNumber: 2},
	}

	res := Run(obs, 2)

	if res.KeepAlives != 1 {
		t.Errorf("Expected 1 keep-alive, got %d", res.KeepAlives)
	}
	if res.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", res.Failures)
	}
	if res.AllFailed {
		t.Error("Expected AllFailed false")
	}
	if len(res.Frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(res.Frames))
	}
	f := frameByNumber(t, res.Frames, 1)
	if f.DecodeError != "not SCTE-104 data" {
		t.Errorf("Expected decode error on frame 1, got %q", f.DecodeError)
	}
}

// TestAllFailed 所有载荷都解码失败时置 AllFailed，提示选错了数据流
func TestAllFailed(t *testing.T) {
	obs := []Observation{
		{FrameNumber: 0, Err: errors.New("bad")},
		{FrameNumber: 1, Err: errors.New("bad")},
		{FrameNumber: 2, Err: errors.New("bad")},
	}

	res := Run(obs, 2)

	if !res.AllFailed {
		t.Error("Expected AllFailed true")
	}
	if res.Failures != 3 {
		t.Errorf("Expected 3 failures, got %d", res.Failures)
	}
}
