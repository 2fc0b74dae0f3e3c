package scte104

import "testing"

// TestOperationNames 操作码名称表
func TestOperationNames(t *testing.T) {
	cases := []struct {
		code uint16
		name string
	}{
		{OpSpliceRequest, "splice_request_data"},
		{OpTimeSignal, "time_signal_request_data"},
		{OpInsertSegmentationDescriptor, "insert_segmentation_descriptor_request_data"},
		{OpAliveRequest, "alive_request_data"},
		{MultiOpReserved, "multiple_operation_message"},
		{0x0BAD, "unknown_op_id_type_0x0bad"},
	}
	for _, tc := range cases {
		if got := OperationName(tc.code); got != tc.name {
			t.Errorf("0x%04x: expected %s, got %s", tc.code, tc.name, got)
		}
	}
}

// TestSegmentationTypeNames 分段类型名称表，含 Morpheus 私有类型
func TestSegmentationTypeNames(t *testing.T) {
	cases := []struct {
		id   uint8
		name string
	}{
		{0x10, "Program Start"},
		{0x30, "Provider Advertisement Start"},
		{0x31, "Provider Advertisement End"},
		{0x54, "Sample By Time"},
		{0x88, "Morpheus Content Marker"},
		{0x98, "Morpheus Program Boundary"},
		{0xA0, "Morpheus Advertisement"},
		{0x77, "Unknown Type (0x77)"},
	}
	for _, tc := range cases {
		if got := SegmentationTypeName(tc.id); got != tc.name {
			t.Errorf("0x%02x: expected %s, got %s", tc.id, tc.name, got)
		}
	}
}

// TestUPIDTypeNames UPID 类型名称表
func TestUPIDTypeNames(t *testing.T) {
	cases := []struct {
		id   uint8
		name string
	}{
		{0x00, "Not Used"},
		{0x08, "TI"},
		{0x0A, "UUID"},
		{0x55, "Unknown UPID Type (0x55)"},
	}
	for _, tc := range cases {
		if got := UPIDTypeName(tc.id); got != tc.name {
			t.Errorf("0x%02x: expected %s, got %s", tc.id, tc.name, got)
		}
	}
}

// TestFormatUPID UPID 按类型的格式化规则
func TestFormatUPID(t *testing.T) {
	cases := []struct {
		name     string
		upidType uint8
		upid     []byte
		want     string
	}{
		{"user_defined_ascii", 0x01, []byte("Ad42"), "Ad42"},
		{"user_defined_binary", 0x01, []byte{0x01, 0x02}, "0102"},
		{"uuid", 0x0A, []byte{
			0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0,
			0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
		}, "12345678-9abc-def0-1122-334455667788"},
		{"uuid_wrong_length", 0x0A, []byte{0x12, 0x34}, "1234"},
		{"ti_hex", 0x08, []byte{0x00, 0x00, 0x3E, 0xA1}, "00003ea1"},
	}
	for _, tc := range cases {
		if got := FormatUPID(tc.upidType, tc.upid); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
