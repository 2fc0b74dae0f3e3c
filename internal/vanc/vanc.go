// Package vanc 处理 VANC(垂直辅助数据)封装:
// DID/SDID 识别、校验和、奇偶校验位、UDW 提取，以及从
// ffprobe -show_data 十六进制转储中扫描 ANC 包。
package vanc

import "fmt"

// ============================================================================
// DID/SDID 常量
// ============================================================================

const (
	// SCTE-104 (RP 2010)
	DIDScte104  = 0x41
	SDIDScte104 = 0x07

	// AFD/Bar 数据与 SMPTE 2010 变体，扫描时识别但不解码
	SDIDAfdBar           = 0x05
	SDIDScte104Smpte2010 = 0x08

	// 诊断输出中识别的其它包类型
	DIDCaption   = 0x61
	SDIDCaption  = 0x01 // EIA-708B CDP
	DIDTimecode  = 0x60
	SDIDTimecode = 0x60 // SMPTE 12M
)

// PacketTypeName DID/SDID 对应的包类型名称
func PacketTypeName(did, sdid uint8) string {
	switch {
	case did == DIDScte104 && sdid == SDIDScte104:
		return "SCTE-104"
	case did == DIDScte104 && sdid == SDIDScte104Smpte2010:
		return "SCTE-104 (SMPTE 2010)"
	case did == DIDScte104 && sdid == SDIDAfdBar:
		return "AFD/Bar Data"
	case did == DIDCaption && sdid == SDIDCaption:
		return "EIA-708B CDP"
	case did == DIDTimecode && sdid == SDIDTimecode:
		return "SMPTE 12M Timecode"
	default:
		return fmt.Sprintf("Unknown (DID=0x%02x, SDID=0x%02x)", did, sdid)
	}
}

// IsScte104 是否为 SCTE-104 包
func IsScte104(did, sdid uint8) bool {
	return did == DIDScte104 && sdid == SDIDScte104
}

// ============================================================================
// 校验和与校验位
// ============================================================================

// Checksum VANC 校验和: 字节和的低 8 位。
// 调用方传入 DID、SDID、DC 与 UDW 字节。
func Checksum(data []byte) uint8 {
	var sum int
	for _, b := range data {
		sum += int(b)
	}
	return uint8(sum & 0xFF)
}

// VerifyChecksum 校验和是否匹配
func VerifyChecksum(data []byte, checksum uint8) bool {
	return Checksum(data) == checksum
}

// evenParityBit b0..b7 的异或
func evenParityBit(b uint8) uint16 {
	b ^= b >> 4
	b ^= b >> 2
	b ^= b >> 1
	return uint16(b & 1)
}

// Word10 将 8 位数据字扩展为 10 位 ANC 字:
// b8 为偶校验位，b9 为其反码。
func Word10(b uint8) uint16 {
	p := evenParityBit(b)
	return uint16(b) | p<<8 | (1-p)<<9
}

// ============================================================================
// UDW 提取
// ============================================================================

// ExtractUDW 从 ANC 包字节(DID 起始)剥离 DID、SDID、DBN、DC，
// 返回交给 SCTE-104 解码器的用户数据字。
func ExtractUDW(packet []byte) ([]byte, error) {
	if len(packet) < 4 {
		return nil, fmt.Errorf("anc packet too short: %d bytes", len(packet))
	}
	return packet[4:], nil
}
