// Package timecode 提供 25 fps(PAL)HH:MM:SS:FF 时码运算。
// 帧计数从零开始，运算结果对 24 小时取模。
package timecode

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// FPS 固定帧率
	FPS = 25
	// 一天的总帧数
	framesPerDay = 24 * 3600 * FPS
)

// Timecode 一个 25 fps 时码
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

// Parse 解析 "HH:MM:SS:FF" 形式的时码字符串
func Parse(s string) (Timecode, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Timecode{}, fmt.Errorf("时码格式错误: %q", s)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Timecode{}, fmt.Errorf("时码格式错误: %q", s)
		}
		nums[i] = n
	}
	tc := Timecode{Hours: nums[0], Minutes: nums[1], Seconds: nums[2], Frames: nums[3]}
	if tc.Hours < 0 || tc.Hours > 23 || tc.Minutes < 0 || tc.Minutes > 59 ||
		tc.Seconds < 0 || tc.Seconds > 59 || tc.Frames < 0 || tc.Frames >= FPS {
		return Timecode{}, fmt.Errorf("时码超出范围: %q", s)
	}
	return tc, nil
}

// FromFrames 由总帧数构造时码，负值与超过一天的值按 24 小时回绕
func FromFrames(n int) Timecode {
	n = ((n % framesPerDay) + framesPerDay) % framesPerDay
	return Timecode{
		Hours:   n / (3600 * FPS),
		Minutes: n / (60 * FPS) % 60,
		Seconds: n / FPS % 60,
		Frames:  n % FPS,
	}
}

// FromSecondsAndFrames 由整秒数加帧余量构造时码
func FromSecondsAndFrames(sec, frames int) Timecode {
	return FromFrames(sec*FPS + frames)
}

// String "HH:MM:SS:FF"
func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
}

// TotalFrames 自 00:00:00:00 起的总帧数
func (t Timecode) TotalFrames() int {
	return ((t.Hours*60+t.Minutes)*60+t.Seconds)*FPS + t.Frames
}

// AddFrames 前进 n 帧，n 可为负
func (t Timecode) AddFrames(n int) Timecode {
	return FromFrames(t.TotalFrames() + n)
}

// Add 两个时码相加(起始时码 + 文件内偏移)
func (t Timecode) Add(o Timecode) Timecode {
	return FromFrames(t.TotalFrames() + o.TotalFrames())
}

// Sub 返回 t 相对 o 的帧差，可为负
func (t Timecode) Sub(o Timecode) int {
	return t.TotalFrames() - o.TotalFrames()
}

// MillisecondsToFrames 毫秒转帧数，四舍五入
func MillisecondsToFrames(ms int) int {
	return (ms*FPS + 500) / 1000
}
