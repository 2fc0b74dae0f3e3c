// Package morpheus 解析 Morpheus 自动化系统的 KernelDiags 日志。
// 控制卡驱动把发往 probel 卡的每条 SCTE-104 消息逐字节记在日志行里，
// 本包从相关行还原载荷并解码。
package morpheus

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"scte104-analyzer/internal/scte104"
	"scte104-analyzer/internal/timecode"
)

const (
	// KeywordSendData 相关日志行必含的关键字
	KeywordSendData = "SendData"
	// 保活消息的十六进制特征，出现即跳过解码
	keepAliveHex = "0003000dffffffff0000"
	// 数据段尾部 "  [NNN-Active]" 固定 14 字符
	probelTailLen = 14
)

// LogLine 一条相关日志行的解析与解码结果
type LogLine struct {
	Timecode    timecode.Timecode
	UTCTimecode timecode.Timecode
	Device      string
	Probel      string // probel token 原文，便于排查
	PayloadHex  string
	KeepAlive   bool
	Message     *scte104.SpliceMessage
	DecodeError string
}

// LogParser KernelDiags 日志解析器
type LogParser struct {
	FilePath        string
	Device          string // 过滤的设备名
	IgnoreKeepAlive bool   // 保活行只计数不解码
	UTCAdjust       bool   // 设备时码加布鲁塞尔时区相对 UTC 的偏移

	Lines      []LogLine
	KeepAlives int
	Failures   int

	locOnce sync.Once
	loc     *time.Location
}

// NewLogParser 创建解析器，默认跳过保活并做 UTC 调整
func NewLogParser(filePath, device string) *LogParser {
	return &LogParser{
		FilePath:        filePath,
		Device:          device,
		IgnoreKeepAlive: true,
		UTCAdjust:       true,
	}
}

// Parse 扫描日志文件
func (p *LogParser) Parse() error {
	f, err := os.Open(p.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		p.scanLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	scte104.LogInfo("KernelDiags 解析完成",
		"file", filepath.Base(p.FilePath),
		"lines", len(p.Lines),
		"keepAlives", p.KeepAlives,
		"failures", p.Failures)
	return nil
}

func (p *LogParser) scanLine(text string) {
	if !strings.Contains(text, p.Device) || !strings.Contains(text, KeywordSendData) {
		return
	}

	line, err := p.parseLine(text)
	if err != nil {
		p.Failures++
		scte104.LogWarn("日志行解析失败", "error", err)
		return
	}

	if line.KeepAlive {
		p.KeepAlives++
		if p.IgnoreKeepAlive {
			return
		}
	}

	// 行尾跟着驱动残留字节，只解码前缀
	payload, err := hex.DecodeString(line.PayloadHex)
	if err != nil {
		line.DecodeError = err.Error()
		p.Failures++
	} else if msg, _, derr := scte104.DecodePrefix(payload); derr != nil {
		line.DecodeError = derr.Error()
		p.Failures++
		scte104.LogWarn("SCTE-104 解码失败",
			"timecode", line.Timecode.String(), "error", derr)
	} else {
		line.Message = msg
	}

	p.Lines = append(p.Lines, line)
}

// parseLine 按 ":" 切分日志行。
// 例: 10_240_33_166|167 26-AUG-2022 12:30:40:06: SCTE104_AdsProtocol,SendData, data sent: 0x0 [0] ... 0x2 [12]  [166-Active]
// 字段 0 尾两位是小时，字段 1-3 是分/秒/帧，字段 4 逗号前是设备名，
// 字段 5 去掉首字符和尾部 14 字符后是 probel token 串。
func (p *LogParser) parseLine(text string) (LogLine, error) {
	fields := strings.Split(text, ":")
	if len(fields) < 6 {
		return LogLine{}, fmt.Errorf("字段不足: %d", len(fields))
	}

	header := fields[0]
	if len(header) < 2 {
		return LogLine{}, fmt.Errorf("缺少小时字段: %q", header)
	}
	hours := header[len(header)-2:]
	tc, err := timecode.Parse(fmt.Sprintf("%s:%s:%s:%s", hours, fields[1], fields[2], fields[3]))
	if err != nil {
		return LogLine{}, err
	}

	device := strings.TrimSpace(strings.SplitN(fields[4], ",", 2)[0])

	data := fields[5]
	if len(data) < probelTailLen+1 {
		return LogLine{}, fmt.Errorf("数据段过短: %q", data)
	}
	probel := data[1 : len(data)-probelTailLen]

	line := LogLine{
		Timecode:    tc,
		UTCTimecode: tc,
		Device:      device,
		Probel:      probel,
		PayloadHex:  FilterProbel(probel),
	}
	line.KeepAlive = strings.Contains(line.PayloadHex, keepAliveHex)
	if p.UTCAdjust {
		line.UTCTimecode = tc.AddFrames(p.offsetHours(header) * 3600 * timecode.FPS)
	}
	return line, nil
}

// offsetHours 布鲁塞尔时区在日志日期的 UTC 偏移(小时)。
// 字段 0 含 "26-AUG-2022" 形式的日期，取不到时退回当前时间。
func (p *LogParser) offsetHours(header string) int {
	p.locOnce.Do(func() {
		loc, err := time.LoadLocation("Europe/Brussels")
		if err != nil {
			scte104.LogWarn("时区数据加载失败", "error", err)
			return
		}
		p.loc = loc
	})
	if p.loc == nil {
		return 0
	}

	at := time.Now()
	if parts := strings.Fields(header); len(parts) >= 2 {
		if d, err := time.Parse("02-Jan-2006", parts[1]); err == nil {
			at = time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC)
		}
	}
	_, offset := at.In(p.loc).Zone()
	return offset / 3600
}

// FilterProbel 把 "0x0 [0] 0x3 [1] ..." 形式的 token 串还原为十六进制载荷:
// 取偶数位 token，去掉 0x 前缀，补齐两位后拼接
func FilterProbel(s string) string {
	var b strings.Builder
	for i, token := range strings.Split(s, " ") {
		if i%2 != 0 {
			continue
		}
		t := strings.TrimPrefix(token, "0x")
		for len(t) < 2 {
			t = "0" + t
		}
		b.WriteString(t)
	}
	return b.String()
}

// Decoded 成功解码的行数
func (p *LogParser) Decoded() int {
	n := 0
	for i := range p.Lines {
		if p.Lines[i].Message != nil {
			n++
		}
	}
	return n
}

// TimeRange 已解析行的设备时码范围
func (p *LogParser) TimeRange() (start, end timecode.Timecode) {
	if len(p.Lines) == 0 {
		return
	}
	start = p.Lines[0].Timecode
	end = p.Lines[0].Timecode
	for _, l := range p.Lines[1:] {
		if l.Timecode.TotalFrames() < start.TotalFrames() {
			start = l.Timecode
		}
		if l.Timecode.TotalFrames() > end.TotalFrames() {
			end = l.Timecode
		}
	}
	return
}
