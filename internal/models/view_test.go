package models

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"scte104-analyzer/internal/scte104"
)

// TestNewMessageView 实际捕获消息的呈现视图
func TestNewMessageView(t *testing.T) {
	payload, err := hex.DecodeString(
		"ffff002c0000dd0002000209153b0402010400021f40010b0012000002290000000000310000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := scte104.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	view := NewMessageView(msg)
	if view.OpID != "0xffff" {
		t.Errorf("Expected opID 0xffff, got %s", view.OpID)
	}
	if view.Name != "multiple_operation_message" {
		t.Errorf("Expected multiple_operation_message, got %s", view.Name)
	}
	if view.Timestamp != "09:21:59:04" {
		t.Errorf("Expected timestamp 09:21:59:04, got %s", view.Timestamp)
	}
	if len(view.Operations) != 2 {
		t.Fatalf("Expected 2 operations, got %d", len(view.Operations))
	}

	ts, ok := view.Operations[0].Data.(TimeSignalData)
	if !ok {
		t.Fatalf("Expected TimeSignalData, got %T", view.Operations[0].Data)
	}
	if ts.PreRollMs != 8000 {
		t.Errorf("Expected pre-roll 8000, got %d", ts.PreRollMs)
	}

	sd, ok := view.Operations[1].Data.(SegmentationData)
	if !ok {
		t.Fatalf("Expected SegmentationData, got %T", view.Operations[1].Data)
	}
	if sd.EventID != 0x229 {
		t.Errorf("Expected event id 0x229, got 0x%X", sd.EventID)
	}
	if sd.TypeName != "Provider Advertisement End" {
		t.Errorf("Expected Provider Advertisement End, got %s", sd.TypeName)
	}
	if sd.TypeID != "0x31" {
		t.Errorf("Expected type id 0x31, got %s", sd.TypeID)
	}

	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"opID":"0xffff"`, `"preRollMs":8000`, `"typeName":"Provider Advertisement End"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON missing %s in %s", want, data)
		}
	}
}

// TestClassificationJSON 分类以名称形式序列化
func TestClassificationJSON(t *testing.T) {
	frame := DecodedFrame{FrameNumber: 7, Classification: ClassTrigger, EventID: 9}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"classification":"Trigger"`) {
		t.Errorf("Expected classification name, got %s", data)
	}
	if ClassBoundary.String() != "Boundary" {
		t.Errorf("Expected Boundary, got %s", ClassBoundary.String())
	}
	if Classification(9).String() != "Unknown(9)" {
		t.Errorf("Expected Unknown(9), got %s", Classification(9).String())
	}
}

// TestUnrecognizedOperationView 未识别操作保留原始字节的十六进制
func TestUnrecognizedOperationView(t *testing.T) {
	view := NewOperationView(&scte104.Unrecognized{Code: 0x0105, Raw: []byte{0x01, 0x02}})
	if view.Name != "transmit_schedule_request_data" {
		t.Errorf("Expected transmit_schedule_request_data, got %s", view.Name)
	}
	raw, ok := view.Data.(RawData)
	if !ok {
		t.Fatalf("Expected RawData, got %T", view.Data)
	}
	if raw.Hex != "0102" {
		t.Errorf("Expected 0102, got %s", raw.Hex)
	}
}
