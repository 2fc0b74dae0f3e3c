package handlers

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"scte104-analyzer/internal/models"
)

// TestEncodeReplayFrame 二进制帧载荷的布局
func TestEncodeReplayFrame(t *testing.T) {
	offset := 0
	frame := models.DecodedFrame{
		FrameNumber:    254,
		FileTimecode:   "00:00:10:04",
		Classification: models.ClassTrigger,
		EventID:        0x229,
		OffsetFrames:   &offset,
	}

	buf, err := EncodeReplayFrame(frame)
	if err != nil {
		t.Fatalf("EncodeReplayFrame failed: %v", err)
	}

	if len(buf) < replayHeaderSize {
		t.Fatalf("Expected at least %d bytes, got %d", replayHeaderSize, len(buf))
	}
	if string(buf[0:4]) != "SCTE" {
		t.Errorf("Expected magic SCTE, got %q", buf[0:4])
	}
	if got := binary.BigEndian.Uint64(buf[4:12]); got != 254 {
		t.Errorf("Expected frame number 254, got %d", got)
	}
	if buf[12] != byte(models.ClassTrigger) {
		t.Errorf("Expected classification byte %d, got %d", models.ClassTrigger, buf[12])
	}

	bodyLen := binary.BigEndian.Uint32(buf[13:17])
	if int(bodyLen) != len(buf)-replayHeaderSize {
		t.Errorf("Expected body length %d, got %d", len(buf)-replayHeaderSize, bodyLen)
	}

	var decoded struct {
		FrameNumber    int    `json:"frameNumber"`
		FileTimecode   string `json:"fileTimecode"`
		Classification string `json:"classification"`
		EventID        uint32 `json:"eventId"`
	}
	if err := json.Unmarshal(buf[replayHeaderSize:], &decoded); err != nil {
		t.Fatalf("Body is not valid JSON: %v", err)
	}
	if decoded.FrameNumber != 254 || decoded.EventID != 0x229 {
		t.Errorf("Unexpected body: %+v", decoded)
	}
	if decoded.Classification != "Trigger" {
		t.Errorf("Expected classification Trigger, got %s", decoded.Classification)
	}
	if decoded.FileTimecode != "00:00:10:04" {
		t.Errorf("Expected file timecode 00:00:10:04, got %s", decoded.FileTimecode)
	}
}

// TestReplayInterval 相邻帧号差换算为毫秒间隔
func TestReplayInterval(t *testing.T) {
	cases := []struct {
		cur, next int
		want      int64
	}{
		{100, 101, 40},
		{100, 254, 6160},
		{0, 0, 0},
	}
	for _, c := range cases {
		got := replayIntervalMs(
			models.DecodedFrame{FrameNumber: c.cur},
			models.DecodedFrame{FrameNumber: c.next},
		)
		if got != c.want {
			t.Errorf("Interval %d->%d: expected %d ms, got %d", c.cur, c.next, c.want, got)
		}
	}
}

// TestSeekIndex 相对位置换算并收拢到有效范围
func TestSeekIndex(t *testing.T) {
	cases := []struct {
		total    int
		position float64
		want     int
	}{
		{100, 0.0, 0},
		{100, 0.5, 50},
		{100, 1.0, 99},
		{100, 1.5, 99},
		{100, -0.2, 0},
		{3, 0.34, 1},
	}
	for _, c := range cases {
		if got := seekIndex(c.total, c.position); got != c.want {
			t.Errorf("seekIndex(%d, %.2f): expected %d, got %d", c.total, c.position, c.want, got)
		}
	}
}

// TestRegisterEvents 命名空间与事件注册齐全
func TestRegisterEvents(t *testing.T) {
	ws := NewReplayHandler(nil)
	namespaces := ws.RegisterEvents()

	events, ok := namespaces["analyzer"]
	if !ok {
		t.Fatal("Expected analyzer namespace")
	}

	for _, name := range []string{"open", "play", "pause", "seek", "speed", "close"} {
		if _, ok := events[name]; !ok {
			t.Errorf("Expected event %q registered", name)
		}
	}
}
