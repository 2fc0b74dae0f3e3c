package mxf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/scte104"
	"scte104-analyzer/internal/timecode"
)

// ============================================================================
// 缩略图与查看器元数据
// ============================================================================

// HTML 查看器约定的帧标签
func markerLabel(c models.Classification) string {
	switch c {
	case models.ClassAnnouncement:
		return "Announcement Frame"
	case models.ClassTrigger:
		return "SCTE Trigger"
	default:
		return c.String()
	}
}

// 事件帧: 宣告帧或触发帧
type eventFrame struct {
	number  int
	label   string
	eventID uint32
	trigger bool
}

// thumbFrame 待抽取的一帧
type thumbFrame struct {
	number     int
	isEvent    bool
	event      eventFrame // isEvent 时有效
	paddingFor int        // 边距帧所属的事件帧号
}

// GenerateThumbnails 为事件帧及其边距帧抽取缩略图并写查看器元数据。
// 相邻事件帧合并为同一窗口，水印标注帧号、类型与拼接事件信息。
func GenerateThumbnails(ctx context.Context, file string, frames []models.DecodedFrame, events []models.CueEvent, padding int, folder string) error {
	if padding < config.MinThumbnailPadding {
		scte104.LogWarn("边距低于下限，已提升",
			"padding", padding, "min", config.MinThumbnailPadding)
		padding = config.MinThumbnailPadding
	}

	eventFrames := collectEventFrames(frames)
	if len(eventFrames) == 0 {
		return fmt.Errorf("没有可抽取的事件帧")
	}

	cueByEvent := make(map[uint32]*models.CueEvent, len(events))
	for i := range events {
		cueByEvent[events[i].EventID] = &events[i]
	}

	groups := groupEventFrames(eventFrames, config.FrameGroupGap)
	thumbs := expandGroups(groups, padding)
	scte104.LogInfo("事件分组完成",
		"groups", len(groups), "eventFrames", len(eventFrames), "thumbs", len(thumbs))

	numbers := make([]int, len(thumbs))
	for i, tf := range thumbs {
		numbers[i] = tf.number
	}
	if err := writeFrameMapping(folder, numbers); err != nil {
		scte104.LogWarn("帧号映射保存失败", "error", err)
	}

	vf := fmt.Sprintf("select=%s,%s",
		buildSelectString(numbers), buildDrawTextChain(thumbs, cueByEvent))
	outputPattern := filepath.Join(folder, "frames%d.jpg")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", file,
		"-vf", vf,
		"-fps_mode", "passthrough",
		"-frames", strconv.Itoa(len(thumbs)),
		outputPattern,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	scte104.LogInfo("ffmpeg 抽帧开始", "frames", len(thumbs), "output", outputPattern)
	runErr := cmd.Run()

	// 元数据不依赖抽帧结果，失败时也写出供排查
	if err := writeViewerMetadata(folder, thumbs, cueByEvent, padding); err != nil {
		scte104.LogWarn("查看器元数据保存失败", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("ffmpeg 执行失败: %w (%s)", runErr, stderr.String())
	}
	scte104.LogInfo("缩略图生成完成", "frames", len(thumbs), "folder", folder)
	return nil
}

func collectEventFrames(frames []models.DecodedFrame) []eventFrame {
	var out []eventFrame
	for _, f := range frames {
		switch f.Classification {
		case models.ClassAnnouncement, models.ClassTrigger:
			out = append(out, eventFrame{
				number:  f.FrameNumber,
				label:   markerLabel(f.Classification),
				eventID: f.EventID,
				trigger: f.Classification == models.ClassTrigger,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out
}

// groupEventFrames 相距不超过 gap 帧的事件帧并入同一窗口
func groupEventFrames(eventFrames []eventFrame, gap int) [][]eventFrame {
	var groups [][]eventFrame
	var current []eventFrame
	for _, f := range eventFrames {
		if len(current) > 0 && f.number-current[len(current)-1].number > gap {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, f)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// expandGroups 每个窗口向两侧加边距帧，按帧号去重排序。
// 事件帧不会被相邻窗口的边距降级。
func expandGroups(groups [][]eventFrame, padding int) []thumbFrame {
	byNumber := make(map[int]thumbFrame)
	for _, group := range groups {
		lo := group[0].number - padding
		if lo < 0 {
			lo = 0
		}
		hi := group[len(group)-1].number + padding

		for n := lo; n <= hi; n++ {
			if existing, ok := byNumber[n]; ok && existing.isEvent {
				continue
			}
			if ev, ok := findEvent(group, n); ok {
				byNumber[n] = thumbFrame{number: n, isEvent: true, event: ev}
				continue
			}
			byNumber[n] = thumbFrame{number: n, paddingFor: closestEvent(group, n)}
		}
	}

	out := make([]thumbFrame, 0, len(byNumber))
	for _, tf := range byNumber {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out
}

func findEvent(group []eventFrame, n int) (eventFrame, bool) {
	for _, ev := range group {
		if ev.number == n {
			return ev, true
		}
	}
	return eventFrame{}, false
}

// closestEvent 组内离 n 最近的事件帧号
func closestEvent(group []eventFrame, n int) int {
	best := group[0].number
	for _, ev := range group[1:] {
		if abs(ev.number-n) < abs(best-n) {
			best = ev.number
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// buildSelectString ffmpeg select 滤镜表达式 'eq(n,a)+eq(n,b)+…'
func buildSelectString(numbers []int) string {
	var b strings.Builder
	b.WriteString("'")
	for i, n := range numbers {
		if i > 0 {
			b.WriteString("+")
		}
		fmt.Fprintf(&b, "eq(n,%d)", n)
	}
	b.WriteString("'")
	return b.String()
}

// buildDrawTextChain 每个输出帧一个 drawtext，按输出序号启用
func buildDrawTextChain(thumbs []thumbFrame, cueByEvent map[uint32]*models.CueEvent) string {
	parts := make([]string, 0, len(thumbs))
	for idx, tf := range thumbs {
		parts = append(parts, fmt.Sprintf(
			"drawtext=text='%s':x=(w-tw)/2:y=(h-th):fontsize=24:fontcolor=yellow:boxborderw=10:borderw=1:box=1:boxcolor=black@0.5:enable='eq(n,%d)'",
			watermarkText(tf, cueByEvent), idx))
	}
	return strings.Join(parts, ",")
}

func watermarkText(tf thumbFrame, cueByEvent map[uint32]*models.CueEvent) string {
	if !tf.isEvent {
		return fmt.Sprintf("PADDING FRAME %d (for Event Frame %d)", tf.number, tf.paddingFor)
	}
	if cue := cueByEvent[tf.event.eventID]; tf.event.trigger && cue != nil {
		return fmt.Sprintf("Frame_number = %d Frame type = %s\nType = %s\nEvent ID = %d\nDuration = %d",
			tf.number, tf.event.label, cue.TypeName, cue.EventID, cue.DurationSeconds)
	}
	return fmt.Sprintf("Frame_number = %d Frame type = %s", tf.number, tf.event.label)
}

// ============================================================================
// 查看器 JSON 产物
// ============================================================================

// writeFrameMapping 输出序号(1 起)到源帧号的映射，供查看器回查
func writeFrameMapping(folder string, numbers []int) error {
	mapping := make(map[int]int, len(numbers))
	for i, n := range numbers {
		mapping[i+1] = n
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(folder, "frame_mapping.json"), data, 0644)
}

// metadata.json 的结构，字段名与 HTML 查看器约定一致
type viewerMetadata struct {
	Frames       []viewerFrame `json:"frames"`
	Padding      int           `json:"padding"`
	TotalFrames  int           `json:"total_frames"`
	FrameGroups  []viewerGroup `json:"frame_groups"`
	FrameMapping map[int]int   `json:"frame_mapping"`
}

type viewerFrame struct {
	FrameNumber int        `json:"frame_number"`
	Type        string     `json:"type"`
	IsPadding   bool       `json:"is_padding"`
	EventType   string     `json:"event_type,omitempty"`
	PaddingFor  *int       `json:"padding_for,omitempty"`
	ScteData    *viewerCue `json:"scte_data,omitempty"`
}

type viewerCue struct {
	EventTimestamp      string `json:"event_timestamp"`
	PreRollTime         int    `json:"pre_roll_time"`
	SegmentationEventID uint32 `json:"segmentation_event_id"`
	Duration            int    `json:"duration"`
	SegmentationUPID    string `json:"segmentation_upid"`
	SegmentationType    string `json:"segmentation_type"`
}

type viewerGroup struct {
	EventFrame int    `json:"event_frame"`
	EventType  string `json:"event_type"`
	Frames     []int  `json:"frames"`
}

func writeViewerMetadata(folder string, thumbs []thumbFrame, cueByEvent map[uint32]*models.CueEvent, padding int) error {
	meta := viewerMetadata{
		Padding:      padding,
		TotalFrames:  len(thumbs),
		FrameMapping: make(map[int]int, len(thumbs)),
	}

	for i, tf := range thumbs {
		meta.FrameMapping[i+1] = tf.number

		if tf.isEvent {
			vf := viewerFrame{
				FrameNumber: tf.number,
				Type:        tf.event.label,
				EventType:   tf.event.label,
			}
			if cue := cueByEvent[tf.event.eventID]; tf.event.trigger && cue != nil {
				vf.ScteData = &viewerCue{
					EventTimestamp:      spliceTimestamp(cue),
					PreRollTime:         cue.PreRollMs,
					SegmentationEventID: cue.EventID,
					Duration:            cue.DurationSeconds,
					SegmentationUPID:    cue.UPID,
					SegmentationType:    cue.TypeName,
				}
			}
			meta.Frames = append(meta.Frames, vf)
			continue
		}

		paddingFor := tf.paddingFor
		meta.Frames = append(meta.Frames, viewerFrame{
			FrameNumber: tf.number,
			Type:        "Padding Frame",
			IsPadding:   true,
			PaddingFor:  &paddingFor,
		})
	}

	// 每个事件帧与其边距帧组成一组
	for _, tf := range thumbs {
		if !tf.isEvent {
			continue
		}
		group := viewerGroup{EventFrame: tf.number, EventType: tf.event.label}
		for _, other := range thumbs {
			if other.number == tf.number || (!other.isEvent && other.paddingFor == tf.number) {
				group.Frames = append(group.Frames, other.number)
			}
		}
		sort.Ints(group.Frames)
		meta.FrameGroups = append(meta.FrameGroups, group)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(folder, "metadata.json"), data, 0644)
}

// spliceTimestamp 宣告时间戳加预滚得到声明的拼接时刻
func spliceTimestamp(cue *models.CueEvent) string {
	tc, err := timecode.Parse(cue.Timestamp)
	if err != nil {
		return cue.Timestamp
	}
	return tc.AddFrames(timecode.MillisecondsToFrames(cue.PreRollMs)).String()
}
