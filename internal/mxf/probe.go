package mxf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/scte104"
	"scte104-analyzer/internal/timecode"
	"scte104-analyzer/internal/vanc"
)

// ============================================================================
// ffprobe 调用与逐包提取
// ============================================================================

// ffprobe JSON 输出中用到的字段
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Packets []probePacket `json:"packets"`
}

type probeFormat struct {
	Tags map[string]string `json:"tags"`
}

type probePacket struct {
	PTS     int64  `json:"pts"`
	PTSTime string `json:"pts_time"`
	Data    string `json:"data"`
}

// Packet 数据流包中找到的一个 SCTE-104 ANC 包
type Packet struct {
	FrameNumber  int
	FileTimecode timecode.Timecode
	UTCTimecode  timecode.Timecode
	// DID 起始的原始 ANC 字节
	Raw []byte
}

// Probe 一次 ffprobe 输出的提取结果
type Probe struct {
	// format.tags.timecode 中的录像起始时码
	Start   timecode.Timecode
	Packets []Packet
}

// RunFFProbe 以 JSON 形式导出指定数据流的全部包与十六进制数据
func RunFFProbe(ctx context.Context, file string, streamIndex int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-select_streams", strconv.Itoa(streamIndex),
		"-show_packets",
		"-show_data",
		file,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe 执行失败: %w (%s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// LoadOrProbe 返回 ffprobe 的 JSON 输出。
// 结果目录下已有 output.json 时直接复用，避免对大文件重复分析。
func LoadOrProbe(ctx context.Context, file, resultsFolder string, streamIndex int) ([]byte, error) {
	outputFile := filepath.Join(resultsFolder, "output.json")
	if data, err := os.ReadFile(outputFile); err == nil {
		scte104.LogInfo("复用已有的 ffprobe 结果", "path", outputFile)
		return data, nil
	}

	scte104.LogInfo("ffprobe 分析开始", "file", file, "stream", streamIndex)
	data, err := RunFFProbe(ctx, file, streamIndex)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		scte104.LogWarn("ffprobe 结果保存失败", "path", outputFile, "error", err)
	}
	return data, nil
}

// ParsePackets 从 ffprobe JSON 中逐包扫描 SCTE-104 ANC 数据。
// 文件内时码由 pts_time 换算，UTC 时码为起始时码前进相应帧数。
func ParsePackets(raw []byte) (*Probe, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ffprobe 输出解析失败: %w", err)
	}
	startStr, ok := out.Format.Tags["timecode"]
	if !ok {
		return nil, fmt.Errorf("录像缺少起始时码 (format.tags.timecode)")
	}
	start, err := timecode.Parse(startStr)
	if err != nil {
		return nil, fmt.Errorf("起始时码无效: %w", err)
	}

	probe := &Probe{Start: start}
	for _, pkt := range out.Packets {
		anc := vanc.ScanHexDump(pkt.Data)
		if anc == nil {
			continue
		}
		file, err := fileTimecode(pkt.PTSTime)
		if err != nil {
			scte104.LogWarn("包时间戳无效", "pts", pkt.PTS, "error", err)
			continue
		}
		probe.Packets = append(probe.Packets, Packet{
			FrameNumber:  int(pkt.PTS),
			FileTimecode: file,
			UTCTimecode:  start.Add(file),
			Raw:          anc,
		})
	}
	return probe, nil
}

// fileTimecode 把 pts_time 秒值转成文件内时码，小数部分四舍五入为帧
func fileTimecode(ptsTime string) (timecode.Timecode, error) {
	v, err := strconv.ParseFloat(ptsTime, 64)
	if err != nil || v < 0 {
		return timecode.Timecode{}, fmt.Errorf("bad pts_time %q", ptsTime)
	}
	sec, frac := math.Modf(v)
	frames := int(math.Round(frac * 1000 / float64(config.FrameDurationMs)))
	return timecode.FromSecondsAndFrames(int(sec), frames), nil
}
