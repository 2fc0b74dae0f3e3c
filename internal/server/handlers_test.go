package server

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"scte104-analyzer/internal/config"
)

func newTestHandlers(t *testing.T) (*Handlers, *AnalyzerServer) {
	t.Helper()
	analyzer := NewAnalyzerServer(testAnalysisConfig(t))
	h := NewHandlers(analyzer, config.PhabrixConfig{Host: "127.0.0.1", Port: 2100, Input: 1, IntervalSeconds: 1})
	return h, analyzer
}

func writeRecordingStub(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestPathHistory 去重、新路径置顶、最多保留 10 条
func TestPathHistory(t *testing.T) {
	h, _ := newTestHandlers(t)

	h.addToPathHistory("/media/a.mxf")
	h.addToPathHistory("/media/b.mxf")
	h.addToPathHistory("/media/a.mxf")

	if len(h.pathHistory) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(h.pathHistory))
	}
	if h.pathHistory[0] != "/media/a.mxf" || h.pathHistory[1] != "/media/b.mxf" {
		t.Errorf("Unexpected history order: %v", h.pathHistory)
	}

	for i := 0; i < 15; i++ {
		h.addToPathHistory(fmt.Sprintf("/media/rec%02d.mxf", i))
	}
	if len(h.pathHistory) != maxPathHistory {
		t.Errorf("Expected history capped at %d, got %d", maxPathHistory, len(h.pathHistory))
	}
	if h.pathHistory[0] != "/media/rec14.mxf" {
		t.Errorf("Expected newest entry first, got %s", h.pathHistory[0])
	}
}

// TestStashAndLookup 切换路径时结果进缓存，文件未变则命中
func TestStashAndLookup(t *testing.T) {
	h, analyzer := newTestHandlers(t)

	recording := writeRecordingStub(t, "rec1.mxf", 1024)
	res := sampleResult(recording)
	analyzer.Restore(recording, res)

	h.stashCurrent("/media/other.mxf")

	if got := h.lookupCache(recording); got != res {
		t.Fatal("Expected cache hit for unchanged recording")
	}
}

// TestLookupDropsChangedRecording 文件大小变化后缓存失效并被清除
func TestLookupDropsChangedRecording(t *testing.T) {
	h, analyzer := newTestHandlers(t)

	recording := writeRecordingStub(t, "rec1.mxf", 1024)
	analyzer.Restore(recording, sampleResult(recording))
	h.stashCurrent("/media/other.mxf")

	// 换了一个不同大小的文件
	if err := os.WriteFile(recording, make([]byte, 2048), 0644); err != nil {
		t.Fatal(err)
	}

	if got := h.lookupCache(recording); got != nil {
		t.Fatal("Expected stale cache entry rejected")
	}

	h.mu.RLock()
	_, still := h.analysisCache[recording]
	h.mu.RUnlock()
	if still {
		t.Error("Expected stale entry removed from cache")
	}
}

// TestStashSkipsSamePath 同一路径切换不产生缓存条目
func TestStashSkipsSamePath(t *testing.T) {
	h, analyzer := newTestHandlers(t)

	recording := writeRecordingStub(t, "rec1.mxf", 512)
	analyzer.Restore(recording, sampleResult(recording))

	h.stashCurrent(recording)

	h.mu.RLock()
	count := len(h.analysisCache)
	h.mu.RUnlock()
	if count != 0 {
		t.Errorf("Expected empty cache, got %d entries", count)
	}
}

// TestResolveResult 空参数取当前录像，其余查缓存
func TestResolveResult(t *testing.T) {
	h, analyzer := newTestHandlers(t)

	current := writeRecordingStub(t, "current.mxf", 256)
	cached := writeRecordingStub(t, "cached.mxf", 256)

	cachedRes := sampleResult(cached)
	analyzer.Restore(cached, cachedRes)
	h.stashCurrent(current)

	currentRes := sampleResult(current)
	analyzer.Restore(current, currentRes)

	if got := h.ResolveResult(""); got != currentRes {
		t.Error("Expected empty recording to resolve to current result")
	}
	if got := h.ResolveResult(current); got != currentRes {
		t.Error("Expected current path to resolve to current result")
	}
	if got := h.ResolveResult(cached); got != cachedRes {
		t.Error("Expected cached path to resolve to cached result")
	}
	if got := h.ResolveResult("/media/unknown.mxf"); got != nil {
		t.Error("Expected nil for unknown recording")
	}
}

// TestStemOf 结果目录名取文件名主干
func TestStemOf(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/media/capture_2024.mxf", "capture_2024"},
		{"/media/nested/dir/clip.MXF", "clip"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := stemOf(c.path); got != c.want {
			t.Errorf("stemOf(%q): expected %q, got %q", c.path, c.want, got)
		}
	}
}
