package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/mxf"
	"scte104-analyzer/internal/report"
)

// AnalyzerServer 分析服务核心。
// 持有当前录像的分析结果，后台分析协程通过进度状态发布进展，
// 查询方法全部走读锁。
type AnalyzerServer struct {
	cfg config.AnalysisConfig

	mu        sync.RWMutex
	recording string
	result    *mxf.Result
	loaded    bool

	// 分析进度状态
	analyzing bool
	phase     string
	progress  int
	total     int
	current   int
	lastError string
}

// NewAnalyzerServer 创建分析服务
func NewAnalyzerServer(cfg config.AnalysisConfig) *AnalyzerServer {
	return &AnalyzerServer{cfg: cfg}
}

// Analyze 对指定录像执行完整分析流水线。
// 同一时刻只允许一个分析在运行；缩略图失败不丢弃已完成的分析结果。
func (s *AnalyzerServer) Analyze(path string) error {
	s.mu.Lock()
	if s.analyzing {
		running := s.recording
		s.mu.Unlock()
		return fmt.Errorf("已有分析在运行: %s", running)
	}
	s.analyzing = true
	s.recording = path
	s.phase = ""
	s.progress = 0
	s.total = 0
	s.current = 0
	s.lastError = ""
	s.mu.Unlock()

	fmt.Printf("[Analyzer] 开始分析: %s\n", filepath.Base(path))

	res, err := mxf.Analyze(context.Background(), path, mxf.Options{
		ResultsDir:  s.cfg.ResultsDir,
		Padding:     s.cfg.Padding,
		Thumbnails:  s.cfg.Thumbnails,
		StreamIndex: s.cfg.DataStreamIndex,
		Progress:    s.updateProgress,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzing = false

	if err != nil {
		s.lastError = err.Error()
		if res == nil {
			s.loaded = false
			s.result = nil
			fmt.Printf("[Analyzer] 分析失败: %v\n", err)
			return err
		}
		fmt.Printf("[Analyzer] 分析完成但有警告: %v\n", err)
	}

	s.result = res
	s.loaded = true
	s.progress = 100
	fmt.Printf("[Analyzer] ✓ 分析完成: %d 帧, %d 个事件\n",
		len(res.Frames), len(res.Events))
	return nil
}

func (s *AnalyzerServer) updateProgress(phase string, current, total int) {
	s.mu.Lock()
	s.phase = phase
	s.current = current
	s.total = total
	if total > 0 {
		s.progress = current * 100 / total
	}
	s.mu.Unlock()
}

// ==================== 查询方法 ====================

// GetFrames 获取当前录像的帧序列
func (s *AnalyzerServer) GetFrames() []models.DecodedFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return s.result.Frames
}

// GetEvents 获取当前录像的提示事件
func (s *AnalyzerServer) GetEvents() []models.CueEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return s.result.Events
}

// GetUnresolved 获取未闭合的预告报告
func (s *AnalyzerServer) GetUnresolved() []models.UnresolvedAnnouncement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return s.result.Summary.Unresolved
}

// GetSummary 获取当前录像的统计摘要
func (s *AnalyzerServer) GetSummary() (models.AnalysisSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return models.AnalysisSummary{}, false
	}
	return s.result.Summary, true
}

// GetResult 获取完整分析结果，供路径切换时缓存
func (s *AnalyzerServer) GetResult() (string, *mxf.Result) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return "", nil
	}
	return s.recording, s.result
}

// Restore 从内存缓存恢复一份已完成的分析结果，不触发重新解码
func (s *AnalyzerServer) Restore(path string, res *mxf.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = path
	s.result = res
	s.loaded = true
	s.analyzing = false
	s.progress = 100
	s.lastError = ""
}

// GetRecording 获取当前录像路径
func (s *AnalyzerServer) GetRecording() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// IsAnalyzing 是否有分析在运行
func (s *AnalyzerServer) IsAnalyzing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analyzing
}

// GetStatus 获取分析进度状态
func (s *AnalyzerServer) GetStatus() AnalysisStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.analyzing {
		return AnalysisStatus{
			Status:   "analyzing",
			Phase:    s.phase,
			Progress: s.progress,
			Total:    s.total,
			Current:  s.current,
		}
	}

	if s.lastError != "" && !s.loaded {
		return AnalysisStatus{
			Status: "failed",
			Error:  s.lastError,
		}
	}

	if !s.loaded {
		return AnalysisStatus{Status: "idle"}
	}

	return AnalysisStatus{
		Status:   "ready",
		Phase:    s.phase,
		Progress: 100,
		Total:    s.total,
		Current:  s.total,
		Error:    s.lastError,
	}
}

// GetConfig 获取当前配置与加载状态
func (s *AnalyzerServer) GetConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := Config{
		Recording:  s.recording,
		Loaded:     s.loaded,
		ResultsDir: s.cfg.ResultsDir,
		Padding:    s.cfg.Padding,
		Thumbnails: s.cfg.Thumbnails,
	}

	if s.loaded && s.result != nil {
		cfg.FrameCount = len(s.result.Frames)
		cfg.EventCount = len(s.result.Events)
	}

	return cfg
}

// ListResultFolders 枚举结果目录下已有的分析输出
func (s *AnalyzerServer) ListResultFolders() []string {
	dirEntries, err := os.ReadDir(s.cfg.ResultsDir)
	if err != nil {
		return nil
	}

	var folders []string
	for _, e := range dirEntries {
		if !e.IsDir() {
			continue
		}
		// 只算真正的分析输出目录
		probe := filepath.Join(s.cfg.ResultsDir, e.Name(), "output.json")
		if _, err := os.Stat(probe); err == nil {
			folders = append(folders, e.Name())
		}
	}
	return folders
}

// Close 关闭服务器，释放扫描缓存的 mmap 资源
func (s *AnalyzerServer) Close() {
	report.GetManager().Close()
}

// ==================== 数据类型 ====================

// AnalysisStatus 分析进度状态
type AnalysisStatus struct {
	Status   string `json:"status"`
	Phase    string `json:"phase,omitempty"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	Current  int    `json:"current"`
	Error    string `json:"error,omitempty"`
}

// Config 查看器配置
type Config struct {
	Recording  string `json:"recording"`
	Loaded     bool   `json:"loaded"`
	ResultsDir string `json:"resultsDir"`
	Padding    int    `json:"padding"`
	Thumbnails bool   `json:"thumbnails"`
	FrameCount int    `json:"frameCount,omitempty"`
	EventCount int    `json:"eventCount,omitempty"`
}
