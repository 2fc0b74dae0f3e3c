// Package models 定义分析结果的共享记录类型与 JSON 视图。
package models

import "fmt"

// ============================================================================
// 帧分类
// ============================================================================

// Classification 帧分类标签
type Classification uint8

const (
	ClassNone Classification = iota
	ClassAnnouncement
	ClassTrigger
	ClassBoundary
	ClassPadding
)

var classificationNames = [...]string{"None", "Announcement", "Trigger", "Boundary", "Padding"}

// String 分类名称
func (c Classification) String() string {
	if int(c) < len(classificationNames) {
		return classificationNames[c]
	}
	return fmt.Sprintf("Unknown(%d)", c)
}

// MarshalJSON 以名称形式序列化
func (c Classification) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// ============================================================================
// 分析记录
// ============================================================================

// DecodedFrame 一个源帧的解码与分类结果，按帧号排序后交给呈现层
type DecodedFrame struct {
	FrameNumber    int            `json:"frameNumber"`
	FileTimecode   string         `json:"fileTimecode,omitempty"`
	UTCTimecode    string         `json:"utcTimecode,omitempty"`
	Classification Classification `json:"classification"`
	EventID        uint32         `json:"eventId,omitempty"`
	OffsetFrames   *int           `json:"offsetFrames,omitempty"` // 触发帧相对宣告时刻的实测帧差
	Message        *MessageView   `json:"message,omitempty"`
	DecodeError    string         `json:"decodeError,omitempty"`
}

// CueEvent 广告拼接事件的呈现摘要，用于缩略图水印与查看器
type CueEvent struct {
	FrameNumber     int    `json:"frameNumber"`
	Timestamp       string `json:"timestamp"`
	PreRollMs       int    `json:"preRollMs"`
	EventID         uint32 `json:"eventId"`
	DurationSeconds int    `json:"durationSeconds"`
	UPID            string `json:"upid,omitempty"`
	TypeID          string `json:"typeId"`
	TypeName        string `json:"typeName"`
}

// UnresolvedAnnouncement 直到录像结束仍未触发的宣告
type UnresolvedAnnouncement struct {
	EventID     uint32 `json:"eventId"`
	FrameNumber int    `json:"frameNumber"`
	Note        string `json:"note,omitempty"`
}

// AnalysisSummary 单个录像的分析汇总
type AnalysisSummary struct {
	Recording       string                   `json:"recording"`
	TotalPackets    int                      `json:"totalPackets"`
	DecodedMessages int                      `json:"decodedMessages"`
	KeepAlives      int                      `json:"keepAlives"`
	Failures        int                      `json:"failures"`
	Events          int                      `json:"events"`
	Unresolved      []UnresolvedAnnouncement `json:"unresolved,omitempty"`
	// 所有载荷都解码失败时置位，提示数据流/输入选择错误
	AllFailed bool `json:"allFailed,omitempty"`
}
