package scte104

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// 操作体
// ============================================================================

// Operation 解码后的单个注入操作。
// 具体类型由 opID 决定，未识别的操作码保留原始字节。
type Operation interface {
	// OpID 操作码
	OpID() uint16
	encodeBody() []byte
}

// SpliceRequest splice_request_data (0x0101)，广告切入/切出请求。
type SpliceRequest struct {
	InsertType      uint8
	EventID         uint32
	UniqueProgramID uint16
	PreRollTime     uint16 // 毫秒
	BreakDuration   uint16 // 0.1 秒
	AvailNum        uint8
	AvailsExpected  uint8
	AutoReturnFlag  uint8
}

// OpID 操作码
func (o *SpliceRequest) OpID() uint16 { return OpSpliceRequest }

// InsertTypeName splice_insert_type 对应的名称
func (o *SpliceRequest) InsertTypeName() string { return SpliceInsertTypeName(o.InsertType) }

func (o *SpliceRequest) encodeBody() []byte {
	body := make([]byte, 14)
	body[0] = o.InsertType
	binary.BigEndian.PutUint32(body[1:5], o.EventID)
	binary.BigEndian.PutUint16(body[5:7], o.UniqueProgramID)
	binary.BigEndian.PutUint16(body[7:9], o.PreRollTime)
	binary.BigEndian.PutUint16(body[9:11], o.BreakDuration)
	body[11] = o.AvailNum
	body[12] = o.AvailsExpected
	body[13] = o.AutoReturnFlag
	return body
}

// SpliceNull splice_null_request_data (0x0102)，无操作心跳。
type SpliceNull struct{}

// OpID 操作码
func (o *SpliceNull) OpID() uint16 { return OpSpliceNull }

func (o *SpliceNull) encodeBody() []byte { return nil }

// TimeSignal time_signal_request_data (0x0104)，时间信号请求。
type TimeSignal struct {
	PreRollTime uint16 // 毫秒
}

// OpID 操作码
func (o *TimeSignal) OpID() uint16 { return OpTimeSignal }

func (o *TimeSignal) encodeBody() []byte {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, o.PreRollTime)
	return body
}

// TransmitDTMF transmit_DTMF_request_data (0x0108)，DTMF 音序请求。
type TransmitDTMF struct {
	PreRollTime uint8 // 0.1 秒
	Chars       string
}

// OpID 操作码
func (o *TransmitDTMF) OpID() uint16 { return OpTransmitDTMF }

func (o *TransmitDTMF) encodeBody() []byte {
	body := make([]byte, 2+len(o.Chars))
	body[0] = o.PreRollTime
	body[1] = uint8(len(o.Chars))
	copy(body[2:], o.Chars)
	return body
}

// InsertAvailDescriptor insert_avail_descriptor_request_data (0x0109)。
type InsertAvailDescriptor struct {
	ProviderAvailID uint32
}

// OpID 操作码
func (o *InsertAvailDescriptor) OpID() uint16 { return OpInsertAvailDescriptor }

func (o *InsertAvailDescriptor) encodeBody() []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, o.ProviderAvailID)
	return body
}

// InsertSegmentationDescriptor insert_segmentation_descriptor_request_data (0x010B)，
// 分段描述符，广告边界标记的主要载体。
type InsertSegmentationDescriptor struct {
	EventID               uint32
	Cancel                uint8
	Duration              uint16 // 秒
	UPIDType              uint8
	UPID                  []byte
	TypeID                uint8
	SegmentNum            uint8
	SegmentsExpected      uint8
	DurationExtFrames     uint8
	DeliveryNotRestricted uint8
	WebDeliveryAllowed    uint8
	NoRegionalBlackout    uint8
	ArchiveAllowed        uint8
	DeviceRestrictions    uint8
}

// OpID 操作码
func (o *InsertSegmentationDescriptor) OpID() uint16 { return OpInsertSegmentationDescriptor }

// TypeName 分段类型名称
func (o *InsertSegmentationDescriptor) TypeName() string { return SegmentationTypeName(o.TypeID) }

// UPIDTypeName UPID 类型名称
func (o *InsertSegmentationDescriptor) UPIDTypeName() string { return UPIDTypeName(o.UPIDType) }

// FormattedUPID 按 UPID 类型格式化后的值
func (o *InsertSegmentationDescriptor) FormattedUPID() string {
	return FormatUPID(o.UPIDType, o.UPID)
}

func (o *InsertSegmentationDescriptor) encodeBody() []byte {
	n := len(o.UPID)
	body := make([]byte, 18+n)
	binary.BigEndian.PutUint32(body[0:4], o.EventID)
	body[4] = o.Cancel
	binary.BigEndian.PutUint16(body[5:7], o.Duration)
	body[7] = o.UPIDType
	body[8] = uint8(n)
	copy(body[9:9+n], o.UPID)
	body[9+n] = o.TypeID
	body[10+n] = o.SegmentNum
	body[11+n] = o.SegmentsExpected
	body[12+n] = o.DurationExtFrames
	body[13+n] = o.DeliveryNotRestricted
	body[14+n] = o.WebDeliveryAllowed
	body[15+n] = o.NoRegionalBlackout
	body[16+n] = o.ArchiveAllowed
	body[17+n] = o.DeviceRestrictions
	return body
}

// InsertTier insert_tier_data (0x010F)。
type InsertTier struct {
	Tier uint16
}

// OpID 操作码
func (o *InsertTier) OpID() uint16 { return OpInsertTier }

func (o *InsertTier) encodeBody() []byte {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, o.Tier)
	return body
}

// AliveRequest alive_request_data (0x0003)，自动化系统的保活消息。
// 只以单操作消息出现，消息体为空。
type AliveRequest struct{}

// OpID 操作码
func (o *AliveRequest) OpID() uint16 { return OpAliveRequest }

func (o *AliveRequest) encodeBody() []byte { return nil }

// Unrecognized 未识别的操作，保留原始消息体以便重编码。
type Unrecognized struct {
	Code uint16
	Raw  []byte
}

// OpID 操作码
func (o *Unrecognized) OpID() uint16 { return o.Code }

func (o *Unrecognized) encodeBody() []byte { return o.Raw }

// ============================================================================
// 操作体解码
// ============================================================================

// decodeOperation 按操作码解析消息体，返回实际消耗的字节数。
// 消息体不足以容纳固定布局时返回 ErrTruncatedOperation。
func decodeOperation(code uint16, body []byte) (Operation, int, error) {
	switch code {
	case OpSpliceRequest:
		if len(body) < 14 {
			return nil, 0, fmt.Errorf("%w: splice_request needs 14 bytes, got %d",
				ErrTruncatedOperation, len(body))
		}
		op := &SpliceRequest{
			InsertType:      body[0],
			EventID:         binary.BigEndian.Uint32(body[1:5]),
			UniqueProgramID: binary.BigEndian.Uint16(body[5:7]),
			PreRollTime:     binary.BigEndian.Uint16(body[7:9]),
			BreakDuration:   binary.BigEndian.Uint16(body[9:11]),
			AvailNum:        body[11],
			AvailsExpected:  body[12],
			AutoReturnFlag:  body[13],
		}
		return op, 14, nil

	case OpSpliceNull:
		return &SpliceNull{}, 0, nil

	case OpTimeSignal:
		if len(body) < 2 {
			return nil, 0, fmt.Errorf("%w: time_signal needs 2 bytes, got %d",
				ErrTruncatedOperation, len(body))
		}
		return &TimeSignal{PreRollTime: binary.BigEndian.Uint16(body[0:2])}, 2, nil

	case OpTransmitDTMF:
		if len(body) < 2 {
			return nil, 0, fmt.Errorf("%w: transmit_DTMF needs 2 bytes, got %d",
				ErrTruncatedOperation, len(body))
		}
		n := int(body[1])
		if 2+n > len(body) {
			return nil, 0, fmt.Errorf("%w: transmit_DTMF declares %d chars, %d bytes left",
				ErrTruncatedOperation, n, len(body)-2)
		}
		return &TransmitDTMF{PreRollTime: body[0], Chars: string(body[2 : 2+n])}, 2 + n, nil

	case OpInsertAvailDescriptor:
		if len(body) < 4 {
			return nil, 0, fmt.Errorf("%w: insert_avail_descriptor needs 4 bytes, got %d",
				ErrTruncatedOperation, len(body))
		}
		return &InsertAvailDescriptor{ProviderAvailID: binary.BigEndian.Uint32(body[0:4])}, 4, nil

	case OpInsertSegmentationDescriptor:
		if len(body) < 9 {
			return nil, 0, fmt.Errorf("%w: insert_segmentation_descriptor needs 9 bytes, got %d",
				ErrTruncatedOperation, len(body))
		}
		n := int(body[8])
		if 18+n > len(body) {
			return nil, 0, fmt.Errorf("%w: insert_segmentation_descriptor declares %d upid bytes, %d bytes left",
				ErrTruncatedOperation, n, len(body)-18)
		}
		op := &InsertSegmentationDescriptor{
			EventID:               binary.BigEndian.Uint32(body[0:4]),
			Cancel:                body[4],
			Duration:              binary.BigEndian.Uint16(body[5:7]),
			UPIDType:              body[7],
			UPID:                  append([]byte(nil), body[9:9+n]...),
			TypeID:                body[9+n],
			SegmentNum:            body[10+n],
			SegmentsExpected:      body[11+n],
			DurationExtFrames:     body[12+n],
			DeliveryNotRestricted: body[13+n],
			WebDeliveryAllowed:    body[14+n],
			NoRegionalBlackout:    body[15+n],
			ArchiveAllowed:        body[16+n],
			DeviceRestrictions:    body[17+n],
		}
		return op, 18 + n, nil

	case OpInsertTier:
		if len(body) < 2 {
			return nil, 0, fmt.Errorf("%w: insert_tier needs 2 bytes, got %d",
				ErrTruncatedOperation, len(body))
		}
		return &InsertTier{Tier: binary.BigEndian.Uint16(body[0:2])}, 2, nil

	case OpAliveRequest:
		return &AliveRequest{}, 0, nil

	default:
		return &Unrecognized{Code: code, Raw: append([]byte(nil), body...)}, len(body), nil
	}
}
