// Package mxf 实现 MXF 录像前端:
// 用 ffprobe 导出数据流包，从 VANC 转储提取 SCTE-104 载荷，
// 经解码与帧相关得到逐帧分类，结果写入扫描缓存供重复分析与查看器复用。
package mxf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/correlate"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/report"
	"scte104-analyzer/internal/scte104"
	"scte104-analyzer/internal/timecode"
	"scte104-analyzer/internal/vanc"
)

// ProgressFunc 各阶段的进度回调
type ProgressFunc func(phase string, current, total int)

// Options 一次 MXF 分析的选项
type Options struct {
	// 输出目录，空值时为 <ResultsDir>/<文件名主干>
	OutputDir string
	// 默认结果根目录
	ResultsDir string
	// 触发帧两侧的边界窗口宽度(帧)，同时也是缩略图边距
	Padding int
	// 生成缩略图
	Thumbnails bool
	// ffprobe 数据流序号
	StreamIndex int
	// 解码工作协程数，0 为自动
	Workers  int
	Progress ProgressFunc
}

// Result 一个录像的完整分析结果
type Result struct {
	Recording     string
	ResultsFolder string
	Frames        []models.DecodedFrame
	Events        []models.CueEvent
	Summary       models.AnalysisSummary
}

// Analyze 执行完整的 MXF 分析流水线。
// 已有扫描缓存时跳过 ffprobe 与 VANC 提取，从缓存记录重建;
// 缩略图生成失败时仍返回分析结果和错误。
func Analyze(ctx context.Context, file string, opts Options) (*Result, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("录像文件不存在: %w", err)
	}
	folder, err := resultsFolder(file, opts)
	if err != nil {
		return nil, err
	}

	padding := opts.Padding
	if padding < config.MinThumbnailPadding {
		scte104.LogWarn("边距低于下限，已提升",
			"padding", padding, "min", config.MinThumbnailPadding)
		padding = config.MinThumbnailPadding
	}

	var fresh *analysis
	cache, err := report.GetManager().GetOrBuild(file, func() ([]report.Entry, error) {
		a, err := runPipeline(ctx, file, folder, padding, opts)
		if err != nil {
			return nil, err
		}
		fresh = a
		return a.entries, nil
	})
	if err != nil {
		return nil, err
	}

	var res *Result
	if fresh != nil {
		res = fresh.result
	} else {
		res = resultFromCache(file, folder, cache, padding, opts.Progress)
	}

	scte104.LogInfo("MXF 分析完成",
		"file", file,
		"frames", len(res.Frames),
		"events", len(res.Events),
		"failures", res.Summary.Failures)

	if opts.Thumbnails {
		if err := GenerateThumbnails(ctx, file, res.Frames, res.Events, padding, folder); err != nil {
			return res, fmt.Errorf("缩略图生成失败: %w", err)
		}
	}
	return res, nil
}

// analysis 新鲜流水线的产出: 分析结果加待写入缓存的扫描记录
type analysis struct {
	result  *Result
	entries []report.Entry
}

func runPipeline(ctx context.Context, file, folder string, padding int, opts Options) (*analysis, error) {
	raw, err := LoadOrProbe(ctx, file, folder, opts.StreamIndex)
	if err != nil {
		return nil, err
	}
	probe, err := ParsePackets(raw)
	if err != nil {
		return nil, err
	}
	scte104.LogInfo("SCTE-104 包提取完成",
		"packets", len(probe.Packets), "start", probe.Start.String())

	observations, utcKeepAlives := decodeAll(probe, opts.Workers, opts.Progress)
	corr := correlate.Run(observations, padding)
	fillSynthesizedTimecodes(corr.Frames, probe.Start)

	result := &Result{
		Recording:     file,
		ResultsFolder: folder,
		Frames:        corr.Frames,
		Events:        corr.Events,
		Summary:       summarize(file, len(probe.Packets), corr, utcKeepAlives),
	}
	return &analysis{result: result, entries: cacheEntries(corr.Frames, probe)}, nil
}

// decodeAll 用有界工作池并行解码各包，观察序列按帧序返回
func decodeAll(probe *Probe, workers int, progress ProgressFunc) ([]correlate.Observation, int) {
	total := len(probe.Packets)
	if total == 0 {
		return nil, 0
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > 8 {
		workers = 8
	}
	if workers > total {
		workers = total
	}

	type item struct {
		index int
		pkt   Packet
	}
	type outcome struct {
		index        int
		obs          *correlate.Observation
		utcKeepAlive bool
	}

	workChan := make(chan item, total)
	for i, pkt := range probe.Packets {
		workChan <- item{index: i, pkt: pkt}
	}
	close(workChan)

	resultChan := make(chan outcome, total)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range workChan {
				obs, utc := observePacket(it.pkt)
				resultChan <- outcome{index: it.index, obs: obs, utcKeepAlive: utc}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	slots := make([]*correlate.Observation, total)
	utcKeepAlives := 0
	processed := 0
	for res := range resultChan {
		processed++
		slots[res.index] = res.obs
		if res.utcKeepAlive {
			utcKeepAlives++
		}
		if progress != nil {
			progress("decode", processed, total)
		}
	}

	observations := make([]correlate.Observation, 0, total)
	for _, obs := range slots {
		if obs != nil {
			observations = append(observations, *obs)
		}
	}
	// 相关器要求帧序输入
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].FrameNumber < observations[j].FrameNumber
	})
	return observations, utcKeepAlives
}

// observePacket 解码一个 ANC 包。
// UTC 打点的心跳消息不产出观察，只计数。
func observePacket(pkt Packet) (*correlate.Observation, bool) {
	obs := &correlate.Observation{
		FrameNumber:  pkt.FrameNumber,
		FileTimecode: pkt.FileTimecode.String(),
		UTCTimecode:  pkt.UTCTimecode.String(),
	}

	udw, err := vanc.ExtractUDW(pkt.Raw)
	if err != nil {
		obs.Err = err
		return obs, false
	}
	msg, err := scte104.Decode(udw)
	if err != nil {
		obs.Err = err
		return obs, false
	}

	switch msg.Timestamp.TimeType {
	case scte104.TimeTypeUTC:
		scte104.LogDebug("UTC 心跳消息", "frame", pkt.FrameNumber)
		return nil, true
	case scte104.TimeTypeSMPTE:
		obs.DeclaredOffset = declaredOffset(msg, pkt.UTCTimecode)
	}
	obs.Message = msg
	return obs, false
}

// declaredOffset 宣告声明的拼接时刻(消息时间戳加预滚)相对包 UTC 时码的帧差。
// 声明时刻已过的异常宣告返回 0，进入未触发报告而不是倒推触发帧。
func declaredOffset(msg *scte104.SpliceMessage, utc timecode.Timecode) int {
	preRollMs := 0
	if ts := msg.GetTimeSignal(); ts != nil {
		preRollMs = int(ts.PreRollTime)
	} else if sr := msg.GetSpliceRequest(); sr != nil {
		preRollMs = int(sr.PreRollTime)
	}
	splice := timecode.Timecode{
		Hours:   int(msg.Timestamp.Hours),
		Minutes: int(msg.Timestamp.Minutes),
		Seconds: int(msg.Timestamp.Seconds),
		Frames:  int(msg.Timestamp.Frames),
	}.AddFrames(timecode.MillisecondsToFrames(preRollMs))

	off := splice.Sub(utc)
	if off < 0 {
		scte104.LogWarn("拼接时刻早于包时码", "splice", splice.String(), "utc", utc.String())
		return 0
	}
	return off
}

// fillSynthesizedTimecodes 合成触发帧没有来源包，按帧号补全两种时码
func fillSynthesizedTimecodes(frames []models.DecodedFrame, start timecode.Timecode) {
	for i := range frames {
		if frames[i].FileTimecode != "" {
			continue
		}
		file := timecode.FromFrames(frames[i].FrameNumber)
		frames[i].FileTimecode = file.String()
		frames[i].UTCTimecode = start.Add(file).String()
	}
}

// cacheEntries 把相关结果转成扫描缓存记录，载荷为 ANC 包头剥离后的消息字节
func cacheEntries(frames []models.DecodedFrame, probe *Probe) []report.Entry {
	payloads := make(map[int][]byte, len(probe.Packets))
	for _, pkt := range probe.Packets {
		if udw, err := vanc.ExtractUDW(pkt.Raw); err == nil {
			payloads[pkt.FrameNumber] = udw
		}
	}

	entries := make([]report.Entry, 0, len(frames))
	for _, f := range frames {
		e := report.Entry{
			FrameNumber:    uint32(f.FrameNumber),
			Classification: uint8(f.Classification),
		}
		if tc, err := timecode.Parse(f.FileTimecode); err == nil {
			e.FileTimecodeFrames = uint32(tc.TotalFrames())
		}
		if tc, err := timecode.Parse(f.UTCTimecode); err == nil {
			e.UTCTimecodeFrames = uint32(tc.TotalFrames())
		}
		if f.DecodeError != "" {
			e.Flags |= report.FlagDecodeFailed
		}
		if payload, ok := payloads[f.FrameNumber]; ok {
			e.Payload = payload
		} else {
			e.Flags |= report.FlagSynthesized
		}
		entries = append(entries, e)
	}
	return entries
}

// resultFromCache 从扫描缓存重建观察序列并重新相关。
// 合成帧的记录没有载荷，作为裸观察喂回，让相关器在原帧位重新合成触发;
// 心跳包不入缓存，其计数以新鲜扫描为准。
func resultFromCache(file, folder string, cache *report.ScanCache, padding int, progress ProgressFunc) *Result {
	scte104.LogInfo("从扫描缓存加载", "file", file, "records", cache.Count())

	var observations []correlate.Observation
	var start timecode.Timecode
	haveStart := false
	total := cache.Count()
	packets := 0
	for i := 0; i < total; i++ {
		rec := cache.Records[i]
		if progress != nil {
			progress("cache", i+1, total)
		}

		fileTC := timecode.FromFrames(int(rec.FileTimecodeFrames))
		utcTC := timecode.FromFrames(int(rec.UTCTimecodeFrames))
		obs := correlate.Observation{
			FrameNumber:  int(rec.FrameNumber),
			FileTimecode: fileTC.String(),
			UTCTimecode:  utcTC.String(),
		}
		if rec.Flags&report.FlagSynthesized != 0 {
			observations = append(observations, obs)
			continue
		}
		packets++
		if !haveStart {
			start = utcTC.AddFrames(-fileTC.TotalFrames())
			haveStart = true
		}

		msg, err := scte104.Decode(cache.Payload(i))
		if err != nil {
			obs.Err = err
		} else {
			if msg.Timestamp.TimeType == scte104.TimeTypeSMPTE {
				obs.DeclaredOffset = declaredOffset(msg, utcTC)
			}
			obs.Message = msg
		}
		observations = append(observations, obs)
	}

	corr := correlate.Run(observations, padding)
	fillSynthesizedTimecodes(corr.Frames, start)

	return &Result{
		Recording:     file,
		ResultsFolder: folder,
		Frames:        corr.Frames,
		Events:        corr.Events,
		Summary:       summarize(file, packets, corr, 0),
	}
}

func summarize(file string, packets int, corr *correlate.Result, utcKeepAlives int) models.AnalysisSummary {
	return models.AnalysisSummary{
		Recording:       file,
		TotalPackets:    packets,
		DecodedMessages: corr.Decoded,
		KeepAlives:      corr.KeepAlives + utcKeepAlives,
		Failures:        corr.Failures,
		Events:          len(corr.Events),
		Unresolved:      corr.Unresolved,
		AllFailed:       corr.AllFailed,
	}
}

// resultsFolder 输出目录，默认 results/<文件名主干>
func resultsFolder(file string, opts Options) (string, error) {
	folder := opts.OutputDir
	if folder == "" {
		dir := opts.ResultsDir
		if dir == "" {
			dir = config.DefaultResultsDir
		}
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		folder = filepath.Join(dir, stem)
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("无法创建结果目录: %w", err)
	}
	return folder, nil
}
