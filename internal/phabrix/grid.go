package phabrix

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// ANC 网格预处理
// ============================================================================

// 设备返回的是它的 ANC 网格视图: 前 22 个词和后 8 个词是设备内部数据，
// 网格每 20 个数据词后插一个行号词，剩下的才是 10 位 ANC 字序列:
// [0..2] ADF 0x000 0x3FF 0x3FF, [3] DID, [4] SDID, [5] DBN, [6] DC,
// 之后是 UDW，最后一个词是校验和。

const (
	gridHeadSkip = 22
	gridTailSkip = 8
	gridRowWidth = 20
	// ADF(3) + DID + SDID + DBN + DC
	udwStart = 7
)

// SkipEnvelope 去掉设备内部的前导与尾部词
func SkipEnvelope(words []string) []string {
	if len(words) <= gridHeadSkip+gridTailSkip {
		return nil
	}
	return words[gridHeadSkip : len(words)-gridTailSkip]
}

// ParseWords 十进制词转 10 位整数
func ParseWords(words []string) ([]uint16, error) {
	out := make([]uint16, len(words))
	for i, w := range words {
		n, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil {
			return nil, fmt.Errorf("bad grid word %d: %q", i, w)
		}
		out[i] = uint16(n)
	}
	return out, nil
}

// DropRowIndexes 丢弃设备注入的网格行号(每 20 个数据词后一个)
func DropRowIndexes(words []uint16) []uint16 {
	out := make([]uint16, 0, len(words))
	index := 1
	for _, w := range words {
		if index == gridRowWidth+1 {
			index = 1
			continue
		}
		out = append(out, w)
		index++
	}
	return out
}

// AssembleUDW 从网格字序列取 UDW 段，每个 10 位字取低 8 位拼成十六进制串。
// 末尾的校验字不取，包后的全零网格区保留为 "00"，由解码器按填充处理。
func AssembleUDW(words []uint16) string {
	if len(words) <= udwStart+1 {
		return ""
	}
	var b strings.Builder
	for _, w := range words[udwStart : len(words)-1] {
		fmt.Fprintf(&b, "%02x", uint8(w&0xFF))
	}
	return b.String()
}

// Preprocess 网格预处理流水线: 去信封、解析、去行号、取 UDW
func Preprocess(words []string) (string, error) {
	grid := SkipEnvelope(words)
	if grid == nil {
		return "", fmt.Errorf("anc grid too short: %d words", len(words))
	}
	parsed, err := ParseWords(grid)
	if err != nil {
		return "", err
	}
	return AssembleUDW(DropRowIndexes(parsed)), nil
}
