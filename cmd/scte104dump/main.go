package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata" // Windows 无系统时区数据库

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/morpheus"
	"scte104-analyzer/internal/mxf"
	"scte104-analyzer/internal/phabrix"
	"scte104-analyzer/internal/report"
	"scte104-analyzer/internal/scte104"
)

func main() {
	hexPayload := flag.String("hex", "", "Decode a single hex payload")
	logFile := flag.String("log", "", "Morpheus KernelDiags log file")
	device := flag.String("device", "tln", "Log device: tln or ads")
	utcAdjust := flag.Bool("utc", true, "Adjust device timecodes to UTC")
	mxfFile := flag.String("mxf", "", "MXF recording file")
	outDir := flag.String("out", "", "Output folder (default results/<name>)")
	padding := flag.Int("padding", config.MinThumbnailPadding, "Boundary window in frames")
	thumbs := flag.Bool("thumbs", false, "Generate thumbnails (requires ffmpeg)")
	phabrixAddr := flag.String("phabrix", "", "Phabrix device host[:port]")
	watch := flag.Bool("watch", false, "Keep polling the device")
	input := flag.Int("input", 1, "Phabrix analyzer input 1-3")
	jsonOut := flag.Bool("json", false, "JSON output")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		scte104.SetDebugMode(true)
	}
	// JSON 模式下日志不能混进标准输出
	if *jsonOut {
		scte104.SetQuietMode(true)
	}

	switch {
	case *hexPayload != "":
		runHex(*hexPayload, *jsonOut)
	case *logFile != "":
		runLog(*logFile, *device, *utcAdjust, *jsonOut)
	case *mxfFile != "":
		runMXF(*mxfFile, *outDir, *padding, *thumbs, *jsonOut)
	case *phabrixAddr != "":
		runPhabrix(*phabrixAddr, *watch, *input, *jsonOut)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func banner(title string) {
	fmt.Println("============================================================")
	fmt.Println(title)
	fmt.Println("============================================================")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
	os.Exit(1)
}

func dumpJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fail("JSON 输出失败: %v", err)
	}
}

// ==================== -hex ====================

func runHex(payload string, jsonOut bool) {
	clean := strings.NewReplacer(" ", "", "\n", "", "\t", "", "0x", "").Replace(payload)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		fail("非法的十六进制串: %v", err)
	}

	msg, err := scte104.Decode(raw)
	if err != nil {
		fail("解码失败: %v", err)
	}

	view := models.NewMessageView(msg)
	if jsonOut {
		dumpJSON(view)
		return
	}

	banner("SCTE-104 载荷解码")
	printMessage(view)
	fmt.Printf("✓ %d 字节, %d 个操作\n", len(raw), len(view.Operations))
}

// printMessage 控制台形式的消息详情
func printMessage(view *models.MessageView) {
	fmt.Printf("[Message] %s (%s)\n", view.Name, view.OpID)
	fmt.Printf("  大小: %d 字节  协议版本: %d  消息号: %d\n",
		view.MessageSize, view.ProtocolVersion, view.MessageNumber)
	if view.Timestamp != "" {
		fmt.Printf("  时间戳: %s\n", view.Timestamp)
	}

	for _, op := range view.Operations {
		fmt.Printf("  [Op] %s (%s)\n", op.Name, op.OpID)
		switch d := op.Data.(type) {
		case models.TimeSignalData:
			fmt.Printf("       预卷: %d ms\n", d.PreRollMs)
		case models.SpliceRequestData:
			fmt.Printf("       %s  事件 ID: 0x%x  节目 ID: %d\n",
				d.InsertType, d.EventID, d.UniqueProgramID)
			fmt.Printf("       预卷: %d ms  时长: %d (0.1s)  自动返回: %d\n",
				d.PreRollMs, d.BreakDuration, d.AutoReturnFlag)
		case models.SegmentationData:
			fmt.Printf("       事件 ID: 0x%x  类型: %s (%s)\n",
				d.EventID, d.TypeName, d.TypeID)
			fmt.Printf("       时长: %d s  UPID 类型: %s", d.DurationSeconds, d.UPIDType)
			if d.UPID != "" {
				fmt.Printf("  UPID: %s", d.UPID)
			}
			fmt.Println()
		case models.DTMFData:
			fmt.Printf("       预卷: %d (0.1s)  DTMF: %s\n", d.PreRoll, d.Chars)
		case models.AvailData:
			fmt.Printf("       Avail ID: %d\n", d.ProviderAvailID)
		case models.TierData:
			fmt.Printf("       Tier: %s\n", d.Tier)
		case models.RawData:
			fmt.Printf("       数据: %s\n", d.Hex)
		}
	}
}

// ==================== -log ====================

// logLineDump 日志行的 JSON 形式
type logLineDump struct {
	Timecode    string              `json:"timecode"`
	UTCTimecode string              `json:"utcTimecode"`
	PayloadHex  string              `json:"payloadHex"`
	Message     *models.MessageView `json:"message,omitempty"`
	DecodeError string              `json:"decodeError,omitempty"`
}

func runLog(file, device string, utcAdjust, jsonOut bool) {
	morphCfg := config.MorpheusConfig{Device: device, UTCAdjust: utcAdjust}

	p := morpheus.NewLogParser(file, morphCfg.DeviceName())
	p.UTCAdjust = utcAdjust
	if err := p.Parse(); err != nil {
		fail("日志解析失败: %v", err)
	}

	if jsonOut {
		out := struct {
			File       string        `json:"file"`
			Device     string        `json:"device"`
			Lines      []logLineDump `json:"lines"`
			Decoded    int           `json:"decoded"`
			KeepAlives int           `json:"keepAlives"`
			Failures   int           `json:"failures"`
		}{
			File:       file,
			Device:     morphCfg.DeviceName(),
			Decoded:    p.Decoded(),
			KeepAlives: p.KeepAlives,
			Failures:   p.Failures,
		}
		for _, line := range p.Lines {
			dump := logLineDump{
				Timecode:    line.Timecode.String(),
				UTCTimecode: line.UTCTimecode.String(),
				PayloadHex:  line.PayloadHex,
				DecodeError: line.DecodeError,
			}
			if line.Message != nil {
				dump.Message = models.NewMessageView(line.Message)
			}
			out.Lines = append(out.Lines, dump)
		}
		dumpJSON(out)
		return
	}

	banner("Morpheus KernelDiags 日志分析")
	fmt.Printf("文件: %s\n", file)
	fmt.Printf("设备: %s\n\n", morphCfg.DeviceName())

	for i := range p.Lines {
		line := &p.Lines[i]
		fmt.Printf("[%s]", line.Timecode)
		if utcAdjust {
			fmt.Printf(" (UTC %s)", line.UTCTimecode)
		}
		if line.Message != nil {
			fmt.Printf(" %s", line.Message.Name())
			if ts := line.Message.Timestamp; ts.TimeType != scte104.TimeTypeNone {
				fmt.Printf(" @ %s", ts.String())
			}
			if sd := line.Message.GetSegmentationDescriptor(); sd != nil {
				fmt.Printf("  事件 0x%x %s", sd.EventID, sd.TypeName())
			}
			fmt.Println()
		} else {
			fmt.Printf(" 解码失败: %s\n", line.DecodeError)
		}
	}

	if len(p.Lines) > 0 {
		start, end := p.TimeRange()
		fmt.Printf("\n时码范围: %s - %s\n", start, end)
	}
	fmt.Printf("✓ %d 行, %d 解码, %d 保活, %d 失败\n",
		len(p.Lines), p.Decoded(), p.KeepAlives, p.Failures)
}

// ==================== -mxf ====================

func runMXF(file, outDir string, padding int, thumbs, jsonOut bool) {
	defer report.GetManager().Close()

	res, err := mxf.Analyze(context.Background(), file, mxf.Options{
		OutputDir:   outDir,
		Padding:     padding,
		Thumbnails:  thumbs,
		StreamIndex: config.GetConfigWithDefaults().Analysis.DataStreamIndex,
	})
	if err != nil && res == nil {
		fail("分析失败: %v", err)
	}

	if jsonOut {
		dumpJSON(struct {
			Recording     string                 `json:"recording"`
			ResultsFolder string                 `json:"resultsFolder"`
			Frames        []models.DecodedFrame  `json:"frames"`
			Events        []models.CueEvent      `json:"events"`
			Summary       models.AnalysisSummary `json:"summary"`
		}{res.Recording, res.ResultsFolder, res.Frames, res.Events, res.Summary})
		return
	}

	banner("MXF 录像分析")
	fmt.Printf("录像: %s\n", res.Recording)
	fmt.Printf("输出: %s\n\n", res.ResultsFolder)
	if err != nil {
		fmt.Printf("! %v\n\n", err)
	}

	for _, f := range res.Frames {
		fmt.Printf("[Frame %d] %s", f.FrameNumber, f.FileTimecode)
		if f.UTCTimecode != "" {
			fmt.Printf(" (UTC %s)", f.UTCTimecode)
		}
		if f.DecodeError != "" {
			fmt.Printf("  解码失败: %s\n", f.DecodeError)
			continue
		}
		fmt.Printf("  %s", f.Classification)
		if f.EventID != 0 {
			fmt.Printf("  事件 0x%x", f.EventID)
		}
		if f.OffsetFrames != nil {
			fmt.Printf("  偏差 %d 帧", *f.OffsetFrames)
		}
		fmt.Println()
	}

	if len(res.Events) > 0 {
		fmt.Println()
		for _, e := range res.Events {
			fmt.Printf("[Event 0x%x] 帧 %d  注入 %s  预卷 %d ms  %s",
				e.EventID, e.FrameNumber, e.Timestamp, e.PreRollMs, e.TypeName)
			if e.DurationSeconds > 0 {
				fmt.Printf("  时长 %d s", e.DurationSeconds)
			}
			fmt.Println()
		}
	}

	for _, u := range res.Summary.Unresolved {
		fmt.Printf("[Unresolved 0x%x] 帧 %d  %s\n", u.EventID, u.FrameNumber, u.Note)
	}
	if res.Summary.AllFailed {
		fmt.Println("! 所有包均解码失败，数据流可能不是 SCTE-104")
	}

	s := res.Summary
	fmt.Printf("\n✓ %d 包, %d 解码, %d 保活, %d 失败, %d 事件\n",
		s.TotalPackets, s.DecodedMessages, s.KeepAlives, s.Failures, s.Events)
}

// ==================== -phabrix ====================

func runPhabrix(addr string, watch bool, input int, jsonOut bool) {
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, config.PhabrixPort)
	}

	if !jsonOut {
		banner("Phabrix 设备轮询")
		fmt.Printf("设备: %s  输入: %d\n\n", addr, input)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	poller := &phabrix.Poller{
		Client: phabrix.NewClient(addr),
		Config: phabrix.RunConfig{OneShot: !watch, Input: input},
		OnEvent: func(ev phabrix.Event) {
			printEvent(ev, jsonOut)
		},
	}

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fail("轮询失败: %v", err)
	}
}

func printEvent(ev phabrix.Event, jsonOut bool) {
	if jsonOut {
		dump := struct {
			SessionID   string              `json:"sessionId"`
			Timestamp   string              `json:"timestamp"`
			PayloadHex  string              `json:"payloadHex"`
			Message     *models.MessageView `json:"message,omitempty"`
			DecodeError string              `json:"decodeError,omitempty"`
		}{
			SessionID:   ev.SessionID,
			Timestamp:   ev.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			PayloadHex:  ev.PayloadHex,
			DecodeError: ev.DecodeError,
		}
		if ev.Message != nil {
			dump.Message = models.NewMessageView(ev.Message)
		}
		dumpJSON(dump)
		return
	}

	fmt.Printf("[%s] 载荷 %d 字节\n",
		ev.Timestamp.UTC().Format("15:04:05"), len(ev.PayloadHex)/2)
	if ev.DecodeError != "" {
		fmt.Printf("✗ 解码失败: %s\n", ev.DecodeError)
		fmt.Printf("  %s\n", ev.PayloadHex)
		return
	}
	printMessage(models.NewMessageView(ev.Message))
}
