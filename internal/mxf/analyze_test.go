package mxf

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/report"
	"scte104-analyzer/internal/scte104"
	"scte104-analyzer/internal/timecode"
)

// 多操作 UTC 打点心跳，无操作体
const utcHeartbeatHex = "ffff00120000dd000200016553f100000000"

// 广告结束消息截断到 20 字节，声明长度 44 超出载荷
const truncatedMessageHex = "ffff002c0000dd0002000209153b040201040002"

// writeProbeFixture 造一个假录像与现成的 ffprobe 输出，
// 分析时 LoadOrProbe 直接复用 output.json 而不调用 ffprobe
func writeProbeFixture(t *testing.T, start string, packets []probePacket) (recording, folder string) {
	t.Helper()
	dir := t.TempDir()
	recording = filepath.Join(dir, "recording.mxf")
	if err := os.WriteFile(recording, []byte("stand-in essence"), 0644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	folder = filepath.Join(dir, "results")
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatalf("mkdir results: %v", err)
	}
	raw := probeJSON(t, start, packets)
	if err := os.WriteFile(filepath.Join(folder, "output.json"), raw, 0644); err != nil {
		t.Fatalf("write output.json: %v", err)
	}
	return recording, folder
}

func isolateCaches(t *testing.T) {
	t.Helper()
	report.SetCacheDir(t.TempDir())
	t.Cleanup(report.GetManager().Close)
}

// 完整流水线: 解码失败帧、定时宣告、声明帧上的合成触发、心跳计数
func TestAnalyzePipeline(t *testing.T) {
	isolateCaches(t)
	recording, folder := writeProbeFixture(t, "09:21:57:00", []probePacket{
		dataPacket(t, 50, "2.000000", truncatedMessageHex),
		dataPacket(t, 100, "4.000000", adEndMessageHex),
		dataPacket(t, 300, "12.000000", keepAliveHex),
	})

	var phases []string
	res, err := Analyze(context.Background(), recording, Options{
		OutputDir: folder,
		Progress: func(phase string, current, total int) {
			phases = append(phases, phase)
		},
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if res.ResultsFolder != folder {
		t.Errorf("Expected results folder %s, got %s", folder, res.ResultsFolder)
	}
	if len(res.Frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d: %+v", len(res.Frames), res.Frames)
	}

	failed := res.Frames[0]
	if failed.FrameNumber != 50 || failed.DecodeError == "" {
		t.Errorf("Expected decode failure on frame 50, got %+v", failed)
	}
	if failed.Classification != models.ClassNone {
		t.Errorf("Expected unclassified frame 50, got %s", failed.Classification)
	}

	announce := res.Frames[1]
	if announce.FrameNumber != 100 || announce.Classification != models.ClassAnnouncement {
		t.Errorf("Expected announcement on frame 100, got %+v", announce)
	}
	if announce.EventID != 0x229 {
		t.Errorf("Expected event 0x229, got 0x%x", announce.EventID)
	}
	if announce.FileTimecode != "00:00:04:00" || announce.UTCTimecode != "09:22:01:00" {
		t.Errorf("Expected timecodes 00:00:04:00/09:22:01:00, got %s/%s",
			announce.FileTimecode, announce.UTCTimecode)
	}

	// 宣告声明 09:21:59:04 加 8000ms 预滚 = 09:22:07:04，即帧 254。
	// 录像里没有对应的包，触发帧由相关器合成
	trigger := res.Frames[2]
	if trigger.FrameNumber != 254 || trigger.Classification != models.ClassTrigger {
		t.Errorf("Expected synthesized trigger on frame 254, got %+v", trigger)
	}
	if trigger.OffsetFrames == nil || *trigger.OffsetFrames != 0 {
		t.Errorf("Expected zero offset on synthesized trigger, got %v", trigger.OffsetFrames)
	}
	if trigger.FileTimecode != "00:00:10:04" || trigger.UTCTimecode != "09:22:07:04" {
		t.Errorf("Expected synthesized timecodes 00:00:10:04/09:22:07:04, got %s/%s",
			trigger.FileTimecode, trigger.UTCTimecode)
	}

	if len(res.Events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(res.Events))
	}
	cue := res.Events[0]
	if cue.EventID != 0x229 || cue.FrameNumber != 100 {
		t.Errorf("Expected event 0x229 on frame 100, got %+v", cue)
	}
	if cue.Timestamp != "09:21:59:04" || cue.PreRollMs != 8000 {
		t.Errorf("Expected timestamp 09:21:59:04 with 8000ms pre-roll, got %+v", cue)
	}
	if cue.TypeName != "Provider Advertisement End" {
		t.Errorf("Expected Provider Advertisement End, got %q", cue.TypeName)
	}

	sum := res.Summary
	if sum.TotalPackets != 3 || sum.DecodedMessages != 1 || sum.KeepAlives != 1 ||
		sum.Failures != 1 || sum.Events != 1 {
		t.Errorf("Unexpected summary: %+v", sum)
	}
	if sum.AllFailed {
		t.Error("Expected AllFailed to be false")
	}
	if len(sum.Unresolved) != 0 {
		t.Errorf("Expected no unresolved announcements, got %+v", sum.Unresolved)
	}

	if len(phases) == 0 || phases[0] != "decode" {
		t.Errorf("Expected decode progress, got %v", phases)
	}
	if !report.Exists(recording) {
		t.Error("Expected scan cache on disk after analysis")
	}
}

// 扫描缓存命中时跳过 ffprobe，重建的帧与事件和新鲜扫描一致
func TestAnalyzeFromScanCache(t *testing.T) {
	isolateCaches(t)
	recording, folder := writeProbeFixture(t, "09:21:57:00", []probePacket{
		dataPacket(t, 50, "2.000000", truncatedMessageHex),
		dataPacket(t, 100, "4.000000", adEndMessageHex),
		dataPacket(t, 300, "12.000000", keepAliveHex),
	})

	opts := Options{OutputDir: folder}
	fresh, err := Analyze(context.Background(), recording, opts)
	if err != nil {
		t.Fatalf("fresh Analyze failed: %v", err)
	}

	cache, err := report.Load(recording)
	if err != nil {
		t.Fatalf("Load scan cache failed: %v", err)
	}
	if cache.Count() != 3 {
		t.Fatalf("Expected 3 cache records, got %d", cache.Count())
	}
	if cache.Records[0].Flags&report.FlagDecodeFailed == 0 {
		t.Error("Expected decode-failed flag on frame 50 record")
	}
	if got := cache.Records[2].FrameNumber; got != 254 {
		t.Errorf("Expected record for synthesized frame 254, got %d", got)
	}
	if cache.Records[2].Flags&report.FlagSynthesized == 0 {
		t.Error("Expected synthesized flag on frame 254 record")
	}
	if len(cache.Payload(1)) == 0 {
		t.Error("Expected payload on frame 100 record")
	}
	cache.Close()

	// 清空内存映射并删除 ffprobe 输出: 第二次分析只能走缓存
	report.GetManager().Close()
	if err := os.Remove(filepath.Join(folder, "output.json")); err != nil {
		t.Fatalf("remove output.json: %v", err)
	}

	var phases []string
	opts.Progress = func(phase string, current, total int) { phases = append(phases, phase) }
	cached, err := Analyze(context.Background(), recording, opts)
	if err != nil {
		t.Fatalf("cached Analyze failed: %v", err)
	}

	if !reflect.DeepEqual(cached.Frames, fresh.Frames) {
		t.Errorf("Cached frames differ from fresh scan:\nfresh:  %+v\ncached: %+v",
			fresh.Frames, cached.Frames)
	}
	if !reflect.DeepEqual(cached.Events, fresh.Events) {
		t.Errorf("Cached events differ from fresh scan: %+v", cached.Events)
	}
	// 心跳包不入缓存，缓存侧只数得到扫描记录
	if cached.Summary.TotalPackets != 2 || cached.Summary.KeepAlives != 0 {
		t.Errorf("Unexpected cached summary: %+v", cached.Summary)
	}
	if len(phases) == 0 || phases[0] != "cache" {
		t.Errorf("Expected cache progress, got %v", phases)
	}
}

// UTC 打点的多操作心跳只计数，不产出帧也不延长录像范围
func TestAnalyzeUTCHeartbeats(t *testing.T) {
	isolateCaches(t)
	recording, folder := writeProbeFixture(t, "09:21:57:00", []probePacket{
		dataPacket(t, 10, "0.400000", utcHeartbeatHex),
		dataPacket(t, 100, "4.000000", adEndMessageHex),
	})

	res, err := Analyze(context.Background(), recording, Options{OutputDir: folder})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Summary.KeepAlives != 1 {
		t.Errorf("Expected 1 keep-alive, got %d", res.Summary.KeepAlives)
	}
	for _, f := range res.Frames {
		if f.FrameNumber == 10 {
			t.Errorf("Expected no frame for heartbeat packet, got %+v", f)
		}
	}

	// 声明的拼接帧 254 落在最后一个包之后，宣告保持未触发
	if len(res.Summary.Unresolved) != 1 {
		t.Fatalf("Expected 1 unresolved announcement, got %+v", res.Summary.Unresolved)
	}
	un := res.Summary.Unresolved[0]
	if un.EventID != 0x229 || un.FrameNumber != 100 {
		t.Errorf("Unexpected unresolved announcement: %+v", un)
	}
	if !strings.Contains(un.Note, "beyond end of recording") {
		t.Errorf("Unexpected note: %q", un.Note)
	}
}

// 所有载荷都解码失败时置位 AllFailed，提示选错了数据流
func TestAnalyzeAllFailed(t *testing.T) {
	isolateCaches(t)
	recording, folder := writeProbeFixture(t, "09:21:57:00", []probePacket{
		dataPacket(t, 10, "0.400000", truncatedMessageHex),
		dataPacket(t, 20, "0.800000", truncatedMessageHex),
	})

	res, err := Analyze(context.Background(), recording, Options{OutputDir: folder})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !res.Summary.AllFailed {
		t.Errorf("Expected AllFailed, got %+v", res.Summary)
	}
	if res.Summary.Failures != 2 {
		t.Errorf("Expected 2 failures, got %d", res.Summary.Failures)
	}
}

// 不存在的录像直接报错
func TestAnalyzeMissingRecording(t *testing.T) {
	isolateCaches(t)
	_, err := Analyze(context.Background(), filepath.Join(t.TempDir(), "nope.mxf"), Options{})
	if err == nil {
		t.Fatal("Expected error for missing recording")
	}
}

// 声明时刻早于包时码的宣告不倒推触发帧，按未触发处理
func TestDeclaredOffset(t *testing.T) {
	msg, err := scte104.Decode(mustHex(t, adEndMessageHex))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// 声明的拼接时刻 09:21:59:04 + 200 帧预滚 = 09:22:07:04
	utc, err := timecode.Parse("09:22:01:00")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if off := declaredOffset(msg, utc); off != 154 {
		t.Errorf("Expected 154 frame offset, got %d", off)
	}

	past, err := timecode.Parse("09:30:00:00")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if off := declaredOffset(msg, past); off != 0 {
		t.Errorf("Expected zero offset for past splice time, got %d", off)
	}
}
