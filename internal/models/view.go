package models

import (
	"fmt"

	"scte104-analyzer/internal/scte104"
)

// ============================================================================
// 解码消息的 JSON 视图
// ============================================================================

// MessageView SpliceMessage 的呈现形式
type MessageView struct {
	OpID            string          `json:"opID"`
	Name            string          `json:"name"`
	MessageType     string          `json:"messageType"`
	MessageSize     int             `json:"messageSize"`
	ProtocolVersion int             `json:"protocolVersion"`
	MessageNumber   int             `json:"messageNumber"`
	Timestamp       string          `json:"timestamp,omitempty"`
	Operations      []OperationView `json:"operations"`
}

// OperationView 单个操作的呈现形式
type OperationView struct {
	OpID string `json:"opID"`
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// SpliceRequestData splice_request 的呈现字段
type SpliceRequestData struct {
	InsertType      string `json:"insertType"`
	EventID         uint32 `json:"eventId"`
	UniqueProgramID uint16 `json:"uniqueProgramId"`
	PreRollMs       uint16 `json:"preRollMs"`
	BreakDuration   uint16 `json:"breakDuration"`
	AvailNum        uint8  `json:"availNum"`
	AvailsExpected  uint8  `json:"availsExpected"`
	AutoReturnFlag  uint8  `json:"autoReturnFlag"`
}

// TimeSignalData time_signal 的呈现字段
type TimeSignalData struct {
	PreRollMs uint16 `json:"preRollMs"`
}

// SegmentationData 分段描述符的呈现字段
type SegmentationData struct {
	EventID          uint32 `json:"eventId"`
	Cancel           uint8  `json:"cancel"`
	DurationSeconds  uint16 `json:"durationSeconds"`
	UPIDType         string `json:"upidType"`
	UPID             string `json:"upid,omitempty"`
	TypeID           string `json:"typeId"`
	TypeName         string `json:"typeName"`
	SegmentNum       uint8  `json:"segmentNum"`
	SegmentsExpected uint8  `json:"segmentsExpected"`
}

// DTMFData transmit_DTMF 的呈现字段
type DTMFData struct {
	PreRoll uint8  `json:"preRoll"`
	Chars   string `json:"chars"`
}

// AvailData insert_avail_descriptor 的呈现字段
type AvailData struct {
	ProviderAvailID uint32 `json:"providerAvailId"`
}

// TierData insert_tier 的呈现字段
type TierData struct {
	Tier string `json:"tier"`
}

// RawData 未识别操作的原始字节
type RawData struct {
	Hex string `json:"hex"`
}

// NewMessageView 由解码消息构建呈现视图
func NewMessageView(msg *scte104.SpliceMessage) *MessageView {
	view := &MessageView{
		OpID:            fmt.Sprintf("0x%04x", msg.OpID()),
		Name:            msg.Name(),
		MessageType:     msg.Type.String(),
		MessageSize:     int(msg.MessageSize),
		ProtocolVersion: int(msg.ProtocolVersion),
		MessageNumber:   int(msg.MessageNumber),
		Operations:      make([]OperationView, 0, len(msg.Operations)),
	}
	if msg.Type == scte104.MultipleOperation {
		view.Timestamp = msg.Timestamp.String()
	}
	for _, op := range msg.Operations {
		view.Operations = append(view.Operations, NewOperationView(op))
	}
	return view
}

// NewOperationView 由解码操作构建呈现视图
func NewOperationView(op scte104.Operation) OperationView {
	view := OperationView{
		OpID: fmt.Sprintf("0x%04x", op.OpID()),
		Name: scte104.OperationName(op.OpID()),
	}

	switch o := op.(type) {
	case *scte104.SpliceRequest:
		view.Data = SpliceRequestData{
			InsertType:      o.InsertTypeName(),
			EventID:         o.EventID,
			UniqueProgramID: o.UniqueProgramID,
			PreRollMs:       o.PreRollTime,
			BreakDuration:   o.BreakDuration,
			AvailNum:        o.AvailNum,
			AvailsExpected:  o.AvailsExpected,
			AutoReturnFlag:  o.AutoReturnFlag,
		}
	case *scte104.TimeSignal:
		view.Data = TimeSignalData{PreRollMs: o.PreRollTime}
	case *scte104.InsertSegmentationDescriptor:
		view.Data = SegmentationData{
			EventID:          o.EventID,
			Cancel:           o.Cancel,
			DurationSeconds:  o.Duration,
			UPIDType:         o.UPIDTypeName(),
			UPID:             o.FormattedUPID(),
			TypeID:           fmt.Sprintf("0x%02x", o.TypeID),
			TypeName:         o.TypeName(),
			SegmentNum:       o.SegmentNum,
			SegmentsExpected: o.SegmentsExpected,
		}
	case *scte104.TransmitDTMF:
		view.Data = DTMFData{PreRoll: o.PreRollTime, Chars: o.Chars}
	case *scte104.InsertAvailDescriptor:
		view.Data = AvailData{ProviderAvailID: o.ProviderAvailID}
	case *scte104.InsertTier:
		view.Data = TierData{Tier: fmt.Sprintf("0x%04x", o.Tier)}
	case *scte104.Unrecognized:
		if len(o.Raw) > 0 {
			view.Data = RawData{Hex: fmt.Sprintf("%x", o.Raw)}
		}
	}
	return view
}
