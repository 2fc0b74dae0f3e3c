package scte104

import "fmt"

// ============================================================================
// 操作码表
// ============================================================================

// 多操作消息中的操作码
const (
	OpInjectSection                 = 0x0100
	OpSpliceRequest                 = 0x0101
	OpSpliceNull                    = 0x0102
	OpStartScheduleDownload         = 0x0103
	OpTimeSignal                    = 0x0104
	OpTransmitSchedule              = 0x0105
	OpComponentModeDPI              = 0x0106
	OpTransmitDTMF                  = 0x0108
	OpInsertAvailDescriptor         = 0x0109
	OpInsertDescriptor              = 0x010A
	OpInsertSegmentationDescriptor  = 0x010B
	OpProprietaryCommand            = 0x010D
	OpInsertTier                    = 0x010F
	OpInsertTimeDescriptor          = 0x0110
	OpDeleteControlWord             = 0x0300
	OpUpdateControlWord             = 0x0301
)

// 单操作消息中的操作码
const (
	OpAliveRequest    = 0x0003
	OpUserDefined     = 0x0018
	OpAliveResponse   = 0x8022
	OpGeneralResponse = 0xFFFA
	OpInjectResponse  = 0xFFFC

	// MultiOpReserved 多操作消息的判别值，占用单操作 opID 的位置
	MultiOpReserved = 0xFFFF
)

var operationNames = map[uint16]string{
	OpAliveRequest:                 "alive_request_data",
	OpUserDefined:                  "user_defined_data",
	OpAliveResponse:                "alive_response_data",
	OpGeneralResponse:              "general_response_data",
	OpInjectResponse:               "inject_response_data",
	MultiOpReserved:                "multiple_operation_message",
	OpInjectSection:                "inject_section_data",
	OpSpliceRequest:                "splice_request_data",
	OpSpliceNull:                   "splice_null_request_data",
	OpStartScheduleDownload:        "start_schedule_download_request_data",
	OpTimeSignal:                   "time_signal_request_data",
	OpTransmitSchedule:             "transmit_schedule_request_data",
	OpComponentModeDPI:             "component_mode_DPI_request_data",
	OpTransmitDTMF:                 "transmit_DTMF_request_data",
	OpInsertAvailDescriptor:        "insert_avail_descriptor_request_data",
	OpInsertDescriptor:             "insert_descriptor_request_data",
	OpInsertSegmentationDescriptor: "insert_segmentation_descriptor_request_data",
	OpProprietaryCommand:           "proprietary_command_request_data",
	OpInsertTier:                   "insert_tier_data",
	OpInsertTimeDescriptor:         "insert_time_descriptor",
	OpDeleteControlWord:            "delete_control_word_data",
	OpUpdateControlWord:            "update_control_word_data",
}

// OperationName 操作码对应的名称
func OperationName(code uint16) string {
	if name, ok := operationNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown_op_id_type_0x%04x", code)
}

// ============================================================================
// splice_insert_type
// ============================================================================

const (
	SpliceStartNormal    = 1
	SpliceStartImmediate = 2
	SpliceEndNormal      = 3
	SpliceEndImmediate   = 4
	SpliceCancel         = 5
)

var spliceInsertTypeNames = map[uint8]string{
	SpliceStartNormal:    "spliceStart_normal",
	SpliceStartImmediate: "spliceStart_immediate",
	SpliceEndNormal:      "spliceEnd_normal",
	SpliceEndImmediate:   "spliceEnd_immediate",
	SpliceCancel:         "splice_cancel",
}

// SpliceInsertTypeName splice_insert_type 对应的名称
func SpliceInsertTypeName(t uint8) string {
	if name, ok := spliceInsertTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown_splice_insert_type_0x%02x", t)
}

// ============================================================================
// 分段类型表 (SCTE-35 10.3.3.1，外加 Morpheus 私有类型)
// ============================================================================

var segmentationTypeNames = map[uint8]string{
	0x00: "Not Indicated",
	0x01: "Content Identification",
	0x10: "Program Start",
	0x11: "Program End",
	0x12: "Program Early Termination",
	0x13: "Program Breakaway",
	0x14: "Program Resumption",
	0x15: "Program Runover Planned",
	0x16: "Program Runover Unplanned",
	0x17: "Program Overlap Start",
	0x18: "Program Blackout Override",
	0x19: "Program Start - In Progress",
	0x20: "Chapter Start",
	0x21: "Chapter End",
	0x22: "Break Start",
	0x23: "Break End",
	0x24: "Opening Credit Start",
	0x25: "Opening Credit End",
	0x26: "Closing Credit Start",
	0x27: "Closing Credit End",
	0x30: "Provider Advertisement Start",
	0x31: "Provider Advertisement End",
	0x32: "Distributor Advertisement Start",
	0x33: "Distributor Advertisement End",
	0x34: "Provider Placement Opportunity Start",
	0x35: "Provider Placement Opportunity End",
	0x36: "Distributor Placement Opportunity Start",
	0x37: "Distributor Placement Opportunity End",
	0x38: "Provider Overlay Placement Opportunity Start",
	0x39: "Provider Overlay Placement Opportunity End",
	0x3A: "Distributor Overlay Placement Opportunity Start",
	0x3B: "Distributor Overlay Placement Opportunity End",
	0x40: "Unscheduled Event Start",
	0x41: "Unscheduled Event End",
	0x50: "Network Start",
	0x51: "Network End",
	0x52: "No Time",
	0x53: "Sample By Count",
	0x54: "Sample By Time",

	// Morpheus 私有类型(实测观察到)
	0x88: "Morpheus Content Marker",
	0x98: "Morpheus Program Boundary",
	0xA0: "Morpheus Advertisement",
	0xB0: "Morpheus Interstitial",
	0xC0: "Morpheus Other Content",
}

// SegmentationTypeName 分段类型对应的名称
func SegmentationTypeName(id uint8) string {
	if name, ok := segmentationTypeNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Type (0x%02x)", id)
}

// ============================================================================
// UPID 类型表
// ============================================================================

var upidTypeNames = map[uint8]string{
	0x00: "Not Used",
	0x01: "User Defined",
	0x02: "ISCI",
	0x03: "Ad-ID",
	0x04: "UMID",
	0x05: "ISAN",
	0x06: "EIDR",
	0x07: "TID",
	0x08: "TI",
	0x09: "ADI",
	0x0A: "UUID",
}

// UPIDTypeName UPID 类型对应的名称
func UPIDTypeName(t uint8) string {
	if name, ok := upidTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown UPID Type (0x%02x)", t)
}

// FormatUPID 按类型格式化 UPID 值。
// User Defined 尝试按 ASCII 解释，UUID 按 8-4-4-4-12 分段，其余保留十六进制。
func FormatUPID(upidType uint8, upid []byte) string {
	switch upidType {
	case 0x01:
		for _, b := range upid {
			if b < 0x20 || b > 0x7E {
				return fmt.Sprintf("%x", upid)
			}
		}
		return string(upid)
	case 0x0A:
		if len(upid) == 16 {
			return fmt.Sprintf("%x-%x-%x-%x-%x",
				upid[0:4], upid[4:6], upid[6:8], upid[8:10], upid[10:16])
		}
		return fmt.Sprintf("%x", upid)
	default:
		return fmt.Sprintf("%x", upid)
	}
}
