// Package scte104 实现 SCTE-104 拼接消息的解码与编码。
//
// SCTE-104 是广播设施内部触发广告插播拼接事件的信令协议，消息经由
// VANC(垂直辅助数据)通道传输。本包只处理字节载荷到结构化消息的转换，
// 不做任何 I/O，三个前端(MXF、Morpheus 日志、Phabrix 设备)各自负责
// 把载荷字节送进来。
package scte104

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// 常量定义
// ============================================================================

const (
	// 多操作消息固定头长度(reserved 到 scte35ProtocolVersion)
	multiOpHeaderSize = 10
	// 多操作消息最小长度(固定头 + timeType + numOps)
	minMultiOpSize = 12
	// 单操作消息固定头长度
	singleOpHeaderSize = 13
)

// 时间戳类型
const (
	TimeTypeNone  uint8 = 0 // 立即执行，无时间字段
	TimeTypeUTC   uint8 = 1 // UTC 秒 + 微秒
	TimeTypeSMPTE uint8 = 2 // VITC 时码 HH:MM:SS:FF
	TimeTypeGPI   uint8 = 3 // GPI 引脚触发
)

// MessageType 消息封装类型
type MessageType uint8

const (
	// SingleOperation 单操作消息，13 字节头后跟随一个操作体
	SingleOperation MessageType = iota
	// MultipleOperation 多操作消息，以保留值 0xFFFF 开头
	MultipleOperation
)

// String 封装类型名称
func (t MessageType) String() string {
	if t == MultipleOperation {
		return "multiple_operation_message"
	}
	return "single_operation_message"
}

// ============================================================================
// 时间戳
// ============================================================================

// Timestamp 多操作消息头中的执行时间，按 TimeType 取不同字段。
type Timestamp struct {
	TimeType uint8

	// TimeTypeUTC
	UTCSeconds      uint32
	UTCMicroseconds uint16

	// TimeTypeSMPTE
	Hours   uint8
	Minutes uint8
	Seconds uint8
	Frames  uint8

	// TimeTypeGPI
	GPINumber uint8
	GPIEdge   uint8
}

// encodedSize 含 timeType 字节的编码长度。未知类型只占 timeType 一个字节。
func (t *Timestamp) encodedSize() int {
	switch t.TimeType {
	case TimeTypeUTC:
		return 7
	case TimeTypeSMPTE:
		return 5
	case TimeTypeGPI:
		return 3
	default:
		return 1
	}
}

// String 时间戳的可读形式
func (t *Timestamp) String() string {
	switch t.TimeType {
	case TimeTypeNone:
		return "immediate"
	case TimeTypeUTC:
		return fmt.Sprintf("utc %d.%06d", t.UTCSeconds, t.UTCMicroseconds)
	case TimeTypeSMPTE:
		return fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
	case TimeTypeGPI:
		return fmt.Sprintf("gpi %d edge %d", t.GPINumber, t.GPIEdge)
	default:
		return fmt.Sprintf("time_type %d", t.TimeType)
	}
}

// decodeTimestamp 从 p 起始处解析时间戳，返回消耗的字节数。
func decodeTimestamp(p []byte) (Timestamp, int, error) {
	if len(p) < 1 {
		return Timestamp{}, 0, fmt.Errorf("%w: no room for time type", ErrTrailingOrMissingBytes)
	}
	ts := Timestamp{TimeType: p[0]}
	need := ts.encodedSize()
	if len(p) < need {
		return Timestamp{}, 0, fmt.Errorf("%w: time type %d needs %d bytes, got %d",
			ErrTrailingOrMissingBytes, ts.TimeType, need, len(p))
	}
	switch ts.TimeType {
	case TimeTypeUTC:
		ts.UTCSeconds = binary.BigEndian.Uint32(p[1:5])
		ts.UTCMicroseconds = binary.BigEndian.Uint16(p[5:7])
	case TimeTypeSMPTE:
		ts.Hours = p[1]
		ts.Minutes = p[2]
		ts.Seconds = p[3]
		ts.Frames = p[4]
	case TimeTypeGPI:
		ts.GPINumber = p[1]
		ts.GPIEdge = p[2]
	}
	return ts, need, nil
}

func (t *Timestamp) appendTo(buf []byte) []byte {
	buf = append(buf, t.TimeType)
	switch t.TimeType {
	case TimeTypeUTC:
		buf = binary.BigEndian.AppendUint32(buf, t.UTCSeconds)
		buf = binary.BigEndian.AppendUint16(buf, t.UTCMicroseconds)
	case TimeTypeSMPTE:
		buf = append(buf, t.Hours, t.Minutes, t.Seconds, t.Frames)
	case TimeTypeGPI:
		buf = append(buf, t.GPINumber, t.GPIEdge)
	}
	return buf
}

// ============================================================================
// 拼接消息
// ============================================================================

// SpliceMessage 解码后的 SCTE-104 消息。
// 单操作消息恰好携带一个操作，多操作消息按线序携带零个或多个。
type SpliceMessage struct {
	Type            MessageType
	MessageSize     uint16
	ProtocolVersion uint8
	AsIndex         uint8
	MessageNumber   uint8
	DpiPidIndex     uint16

	// 单操作消息字段
	Result          uint16
	ResultExtension uint16

	// 多操作消息字段
	Scte35ProtocolVersion uint8
	Timestamp             Timestamp

	Operations []Operation
}

// OpID 消息级操作码。多操作消息返回保留值 0xFFFF。
func (m *SpliceMessage) OpID() uint16 {
	if m.Type == MultipleOperation {
		return MultiOpReserved
	}
	if len(m.Operations) == 1 {
		return m.Operations[0].OpID()
	}
	return 0
}

// Name 消息级操作码对应的名称
func (m *SpliceMessage) Name() string {
	return OperationName(m.OpID())
}

// IsKeepAlive 是否为自动化系统保活消息(单操作 alive_request)
func (m *SpliceMessage) IsKeepAlive() bool {
	if m.Type != SingleOperation || len(m.Operations) != 1 {
		return false
	}
	_, ok := m.Operations[0].(*AliveRequest)
	return ok
}

// GetTimeSignal 返回第一个 time_signal 操作，不存在时返回 nil
func (m *SpliceMessage) GetTimeSignal() *TimeSignal {
	for _, op := range m.Operations {
		if ts, ok := op.(*TimeSignal); ok {
			return ts
		}
	}
	return nil
}

// GetSegmentationDescriptor 返回第一个分段描述符操作，不存在时返回 nil
func (m *SpliceMessage) GetSegmentationDescriptor() *InsertSegmentationDescriptor {
	for _, op := range m.Operations {
		if sd, ok := op.(*InsertSegmentationDescriptor); ok {
			return sd
		}
	}
	return nil
}

// GetSpliceRequest 返回第一个 splice_request 操作，不存在时返回 nil
func (m *SpliceMessage) GetSpliceRequest() *SpliceRequest {
	for _, op := range m.Operations {
		if sr, ok := op.(*SpliceRequest); ok {
			return sr
		}
	}
	return nil
}

// ============================================================================
// 解码
// ============================================================================

// Decode 解码一条完整的 SCTE-104 消息。
// 消息之后只允许出现 VANC 填充(可选的一个校验字节，其后全部为 0x00)，
// 其它残留字节返回 ErrTrailingOrMissingBytes。
func Decode(payload []byte) (*SpliceMessage, error) {
	msg, n, err := DecodePrefix(payload)
	if err != nil {
		return nil, err
	}
	if !isTrailingPadding(payload[n:]) {
		return nil, fmt.Errorf("%w: %d unexpected bytes after message end",
			ErrTrailingOrMissingBytes, len(payload)-n)
	}
	return msg, nil
}

// DecodePrefix 从载荷开头解码一条消息，返回其占用的字节数。
// 供 Morpheus 日志前端使用，日志行在消息之后还带有驱动层的传输残留。
func DecodePrefix(payload []byte) (*SpliceMessage, int, error) {
	if len(payload) < 4 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrNotScteData, len(payload))
	}
	if binary.BigEndian.Uint16(payload[0:2]) == MultiOpReserved {
		return decodeMultiple(payload)
	}
	return decodeSingle(payload)
}

// decodeMultiple 解码以 0xFFFF 开头的多操作消息
func decodeMultiple(payload []byte) (*SpliceMessage, int, error) {
	size := int(binary.BigEndian.Uint16(payload[2:4]))
	if size < minMultiOpSize {
		return nil, 0, fmt.Errorf("%w: declared size %d below minimum %d",
			ErrTrailingOrMissingBytes, size, minMultiOpSize)
	}
	if size > len(payload) {
		return nil, 0, fmt.Errorf("%w: declared size %d exceeds payload %d",
			ErrTrailingOrMissingBytes, size, len(payload))
	}
	p := payload[:size]

	msg := &SpliceMessage{
		Type:                  MultipleOperation,
		MessageSize:           uint16(size),
		ProtocolVersion:       p[4],
		AsIndex:               p[5],
		MessageNumber:         p[6],
		DpiPidIndex:           binary.BigEndian.Uint16(p[7:9]),
		Scte35ProtocolVersion: p[9],
	}

	ts, consumed, err := decodeTimestamp(p[multiOpHeaderSize:])
	if err != nil {
		return nil, 0, err
	}
	msg.Timestamp = ts
	pos := multiOpHeaderSize + consumed

	if pos >= size {
		return nil, 0, fmt.Errorf("%w: no room for operation count", ErrTrailingOrMissingBytes)
	}
	numOps := int(p[pos])
	pos++

	msg.Operations = make([]Operation, 0, numOps)
	for i := 0; i < numOps; i++ {
		if pos+4 > size {
			return nil, 0, fmt.Errorf("%w: operation %d header at %d exceeds size %d",
				ErrTrailingOrMissingBytes, i, pos, size)
		}
		opID := binary.BigEndian.Uint16(p[pos : pos+2])
		dataLength := int(binary.BigEndian.Uint16(p[pos+2 : pos+4]))
		pos += 4
		if pos+dataLength > size {
			return nil, 0, fmt.Errorf("%w: operation %d (0x%04x) declares %d bytes, %d left",
				ErrTruncatedOperation, i, opID, dataLength, size-pos)
		}
		op, used, err := decodeOperation(opID, p[pos:pos+dataLength])
		if err != nil {
			return nil, 0, fmt.Errorf("operation %d (0x%04x): %w", i, opID, err)
		}
		if used != dataLength {
			return nil, 0, fmt.Errorf("%w: operation %d (0x%04x) declares %d bytes, decoder used %d",
				ErrOperationLengthMismatch, i, opID, dataLength, used)
		}
		msg.Operations = append(msg.Operations, op)
		pos += dataLength
	}

	if pos != size {
		return nil, 0, fmt.Errorf("%w: operations end at %d, message declares %d",
			ErrTrailingOrMissingBytes, pos, size)
	}
	return msg, size, nil
}

// decodeSingle 解码单操作消息
func decodeSingle(payload []byte) (*SpliceMessage, int, error) {
	if len(payload) < singleOpHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrNotScteData, len(payload))
	}
	size := int(binary.BigEndian.Uint16(payload[2:4]))
	if size < singleOpHeaderSize || size > len(payload) {
		return nil, 0, fmt.Errorf("%w: implausible single-op size %d", ErrNotScteData, size)
	}
	p := payload[:size]

	opID := binary.BigEndian.Uint16(p[0:2])
	msg := &SpliceMessage{
		Type:            SingleOperation,
		MessageSize:     uint16(size),
		Result:          binary.BigEndian.Uint16(p[4:6]),
		ResultExtension: binary.BigEndian.Uint16(p[6:8]),
		ProtocolVersion: p[8],
		AsIndex:         p[9],
		MessageNumber:   p[10],
		DpiPidIndex:     binary.BigEndian.Uint16(p[11:13]),
	}

	body := p[singleOpHeaderSize:]
	op, used, err := decodeOperation(opID, body)
	if err != nil {
		return nil, 0, fmt.Errorf("operation 0x%04x: %w", opID, err)
	}
	if used != len(body) {
		return nil, 0, fmt.Errorf("%w: body is %d bytes, decoder used %d",
			ErrOperationLengthMismatch, len(body), used)
	}
	msg.Operations = []Operation{op}
	return msg, size, nil
}

// isTrailingPadding 识别消息后的 VANC 填充:
// 空、全零、或一个校验字节后跟全零。
func isTrailingPadding(tail []byte) bool {
	if len(tail) == 0 {
		return true
	}
	for _, b := range tail[1:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// ============================================================================
// 编码
// ============================================================================

// Encode 将消息重新序列化为线上字节。
// 对不含尾部填充的有效载荷，Decode 后 Encode 逐字节还原原始输入。
func (m *SpliceMessage) Encode() ([]byte, error) {
	if m.Type == MultipleOperation {
		return m.encodeMultiple()
	}
	return m.encodeSingle()
}

func (m *SpliceMessage) encodeMultiple() ([]byte, error) {
	if len(m.Operations) > 255 {
		return nil, fmt.Errorf("too many operations: %d", len(m.Operations))
	}

	size := multiOpHeaderSize + m.Timestamp.encodedSize() + 1
	bodies := make([][]byte, len(m.Operations))
	for i, op := range m.Operations {
		bodies[i] = op.encodeBody()
		if len(bodies[i]) > 0xFFFF {
			return nil, fmt.Errorf("operation %d body too large: %d", i, len(bodies[i]))
		}
		size += 4 + len(bodies[i])
	}
	if size > 0xFFFF {
		return nil, fmt.Errorf("message too large: %d", size)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, MultiOpReserved)
	buf = binary.BigEndian.AppendUint16(buf, uint16(size))
	buf = append(buf, m.ProtocolVersion, m.AsIndex, m.MessageNumber)
	buf = binary.BigEndian.AppendUint16(buf, m.DpiPidIndex)
	buf = append(buf, m.Scte35ProtocolVersion)
	buf = m.Timestamp.appendTo(buf)
	buf = append(buf, uint8(len(m.Operations)))
	for i, op := range m.Operations {
		buf = binary.BigEndian.AppendUint16(buf, op.OpID())
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(bodies[i])))
		buf = append(buf, bodies[i]...)
	}
	return buf, nil
}

func (m *SpliceMessage) encodeSingle() ([]byte, error) {
	if len(m.Operations) != 1 {
		return nil, fmt.Errorf("single-operation message must carry exactly one operation, got %d",
			len(m.Operations))
	}
	op := m.Operations[0]
	if op.OpID() == MultiOpReserved {
		return nil, fmt.Errorf("operation code 0x%04x is reserved for multiple-operation messages",
			MultiOpReserved)
	}
	body := op.encodeBody()
	size := singleOpHeaderSize + len(body)
	if size > 0xFFFF {
		return nil, fmt.Errorf("message too large: %d", size)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, op.OpID())
	buf = binary.BigEndian.AppendUint16(buf, uint16(size))
	buf = binary.BigEndian.AppendUint16(buf, m.Result)
	buf = binary.BigEndian.AppendUint16(buf, m.ResultExtension)
	buf = append(buf, m.ProtocolVersion, m.AsIndex, m.MessageNumber)
	buf = binary.BigEndian.AppendUint16(buf, m.DpiPidIndex)
	buf = append(buf, body...)
	return buf, nil
}
