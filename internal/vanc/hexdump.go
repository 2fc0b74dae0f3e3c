package vanc

import (
	"encoding/hex"
	"strings"
)

// 转储中标记 ANC 包起始的 DID/SDID 组
var didStartGroups = map[string]bool{
	"4105": true,
	"4107": true,
	"4108": true,
}

// 要提取的包类型
const scteGroup = "4107"

// ScanHexDump 在 ffprobe -show_data 的转储文本中查找第一个 SCTE-104 ANC 包，
// 返回其原始字节(DID 起始)。未找到时返回 nil。
//
// 转储每行为一个内存地址、8 组 4 位十六进制字符和右侧的 ASCII 列；
// 数据以换行符开头，因此首个切分结果为空行被跳过。累积从识别的
// DID/SDID 组开始，到下一个识别组或转储结尾结束。
func ScanHexDump(dump string) []byte {
	var sb strings.Builder

	lines := strings.Split(dump, "\n")
	if len(lines) < 2 {
		return nil
	}
	for _, line := range lines[1:] {
		fields := strings.Split(line, " ")
		end := len(fields)
		if end > 9 {
			end = 9
		}
		for _, group := range fields[1:end] {
			if didStartGroups[group] {
				if sb.Len() == 0 {
					sb.WriteString(group)
					continue
				}
				// 新包开始，先导出已累积的包
				if packet := finishPacket(sb.String()); packet != nil {
					return packet
				}
				sb.Reset()
				sb.WriteString(group)
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString(group)
			}
		}
	}
	return finishPacket(sb.String())
}

// finishPacket 累积结束，只保留以 4107 开头的包
func finishPacket(s string) []byte {
	if len(s) < 4 || s[0:4] != scteGroup {
		return nil
	}
	packet, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return packet
}
