package server

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kataras/iris/v12"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/models"
	"scte104-analyzer/internal/mxf"
	"scte104-analyzer/internal/report"
)

// cachedAnalysis 单个录像的内存缓存结果
type cachedAnalysis struct {
	result *mxf.Result
	key    string // report.FileKey，用于验证文件未被替换
}

// Handlers API 处理器
type Handlers struct {
	analyzer *AnalyzerServer
	phabrix  config.PhabrixConfig
	mu       sync.RWMutex

	// 路径历史记录（最多保留 10 个）
	pathHistory []string

	// 路径 -> 分析结果缓存 Map
	analysisCache map[string]*cachedAnalysis
}

const maxPathHistory = 10

// NewHandlers 创建处理器
func NewHandlers(analyzer *AnalyzerServer, phabrixCfg config.PhabrixConfig) *Handlers {
	return &Handlers{
		analyzer:      analyzer,
		phabrix:       phabrixCfg,
		pathHistory:   []string{},
		analysisCache: make(map[string]*cachedAnalysis),
	}
}

// addToPathHistory 添加路径到历史记录
func (h *Handlers) addToPathHistory(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 移除重复项
	var newHistory []string
	for _, p := range h.pathHistory {
		if p != path {
			newHistory = append(newHistory, p)
		}
	}

	// 添加到开头
	h.pathHistory = append([]string{path}, newHistory...)

	// 限制数量
	if len(h.pathHistory) > maxPathHistory {
		h.pathHistory = h.pathHistory[:maxPathHistory]
	}
}

// stashCurrent 把当前已完成的分析结果按路径暂存到缓存
func (h *Handlers) stashCurrent(nextPath string) {
	path, res := h.analyzer.GetResult()
	if res == nil || path == "" || path == nextPath {
		return
	}
	key, err := report.FileKey(path)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.analysisCache[path] = &cachedAnalysis{result: res, key: key}
	h.mu.Unlock()
}

// lookupCache 命中且文件未变时返回缓存结果，失效条目顺手清掉
func (h *Handlers) lookupCache(path string) *mxf.Result {
	h.mu.RLock()
	cached, ok := h.analysisCache[path]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	key, err := report.FileKey(path)
	if err != nil || key != cached.key {
		h.mu.Lock()
		delete(h.analysisCache, path)
		h.mu.Unlock()
		return nil
	}
	return cached.result
}

// ResolveResult 按 recording 参数定位结果；空参数表示当前录像
func (h *Handlers) ResolveResult(recording string) *mxf.Result {
	current, res := h.analyzer.GetResult()
	if recording == "" || recording == current {
		return res
	}

	h.mu.RLock()
	cached, ok := h.analysisCache[recording]
	h.mu.RUnlock()
	if ok {
		return cached.result
	}
	return nil
}

// ==================== REST API (v1) ====================

// GetConfig 获取配置
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	cfg := h.analyzer.GetConfig()

	h.mu.RLock()
	pathHistory := make([]string, len(h.pathHistory))
	copy(pathHistory, h.pathHistory)
	cachedCount := len(h.analysisCache)
	h.mu.RUnlock()

	result := iris.Map{
		"recording":   cfg.Recording,
		"loaded":      cfg.Loaded,
		"resultsDir":  cfg.ResultsDir,
		"padding":     cfg.Padding,
		"thumbnails":  cfg.Thumbnails,
		"pathHistory": pathHistory,
		"cachedCount": cachedCount,
	}

	if cfg.Loaded {
		result["frameCount"] = cfg.FrameCount
		result["eventCount"] = cfg.EventCount
		result["status"] = h.analyzer.GetStatus()
	}

	ctx.JSON(result)
}

// SetConfig 设置配置，切换分析目标
// POST /api/v1/config
func (h *Handlers) SetConfig(ctx iris.Context) {
	var req struct {
		Recording string `json:"recording"`
	}

	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(400)
		ctx.JSON(iris.Map{"error": "无效的 JSON"})
		return
	}

	result := iris.Map{}

	if req.Recording != "" {
		if h.analyzer.IsAnalyzing() {
			ctx.StatusCode(409)
			ctx.JSON(iris.Map{"error": "已有分析在运行，请稍后再试"})
			return
		}

		// 暂存当前结果（如果已加载且不是同一路径）
		h.stashCurrent(req.Recording)

		// 检查缓存中是否有目标路径的结果
		var fromCache bool
		if cached := h.lookupCache(req.Recording); cached != nil {
			// 文件未变，直接换入，不重新解码
			h.analyzer.Restore(req.Recording, cached)
			fromCache = true
		} else {
			go func(path string) {
				if err := h.analyzer.Analyze(path); err != nil {
					fmt.Printf("[Analyzer] 后台分析失败: %v\n", err)
				}
			}(req.Recording)
		}

		// 添加到路径历史
		h.addToPathHistory(req.Recording)

		h.mu.RLock()
		pathHistory := make([]string, len(h.pathHistory))
		copy(pathHistory, h.pathHistory)
		h.mu.RUnlock()

		result["recording"] = req.Recording
		result["fromCache"] = fromCache
		result["analyzing"] = !fromCache
		result["pathHistory"] = pathHistory
		result["status"] = h.analyzer.GetStatus()
	} else {
		cfg := h.analyzer.GetConfig()
		result["recording"] = cfg.Recording
		result["loaded"] = cfg.Loaded
		if cfg.Loaded {
			result["frameCount"] = cfg.FrameCount
			result["eventCount"] = cfg.EventCount
		}
	}

	ctx.JSON(result)
}

// GetStatus 获取分析进度
// GET /api/v1/status
func (h *Handlers) GetStatus(ctx iris.Context) {
	ctx.JSON(h.analyzer.GetStatus())
}

// GetRecordings 获取已分析的录像列表
// GET /api/v1/recordings
func (h *Handlers) GetRecordings(ctx iris.Context) {
	type recordingEntry struct {
		Recording string                  `json:"recording"`
		Loaded    bool                    `json:"loaded"`
		Current   bool                    `json:"current"`
		Summary   *models.AnalysisSummary `json:"summary,omitempty"`
	}

	var recordings []recordingEntry
	seen := make(map[string]bool)

	current, res := h.analyzer.GetResult()
	if res != nil {
		summary := res.Summary
		recordings = append(recordings, recordingEntry{
			Recording: current,
			Loaded:    true,
			Current:   true,
			Summary:   &summary,
		})
		seen[stemOf(current)] = true
	}

	h.mu.RLock()
	for path, cached := range h.analysisCache {
		if path == current {
			continue
		}
		summary := cached.result.Summary
		recordings = append(recordings, recordingEntry{
			Recording: path,
			Loaded:    true,
			Summary:   &summary,
		})
		seen[stemOf(path)] = true
	}
	h.mu.RUnlock()

	// 结果目录里有输出但不在内存中的，只列名字
	for _, folder := range h.analyzer.ListResultFolders() {
		if seen[folder] {
			continue
		}
		recordings = append(recordings, recordingEntry{Recording: folder})
	}

	ctx.JSON(iris.Map{
		"recordings": recordings,
		"count":      len(recordings),
	})
}

// GetFrames 获取帧序列
// GET /api/v1/frames?recording=...
func (h *Handlers) GetFrames(ctx iris.Context) {
	res := h.ResolveResult(ctx.URLParam("recording"))
	if res == nil {
		ctx.StatusCode(404)
		ctx.JSON(iris.Map{"error": "未找到该录像的分析结果"})
		return
	}

	ctx.JSON(iris.Map{
		"recording": res.Recording,
		"frames":    res.Frames,
		"count":     len(res.Frames),
	})
}

// GetEvents 获取提示事件列表
// GET /api/v1/events?recording=...
func (h *Handlers) GetEvents(ctx iris.Context) {
	res := h.ResolveResult(ctx.URLParam("recording"))
	if res == nil {
		ctx.StatusCode(404)
		ctx.JSON(iris.Map{"error": "未找到该录像的分析结果"})
		return
	}

	ctx.JSON(iris.Map{
		"recording": res.Recording,
		"events":    res.Events,
		"count":     len(res.Events),
	})
}

// GetUnresolved 获取未闭合的预告报告
// GET /api/v1/unresolved?recording=...
func (h *Handlers) GetUnresolved(ctx iris.Context) {
	res := h.ResolveResult(ctx.URLParam("recording"))
	if res == nil {
		ctx.StatusCode(404)
		ctx.JSON(iris.Map{"error": "未找到该录像的分析结果"})
		return
	}

	ctx.JSON(iris.Map{
		"recording":  res.Recording,
		"unresolved": res.Summary.Unresolved,
		"count":      len(res.Summary.Unresolved),
		"allFailed":  res.Summary.AllFailed,
	})
}

// stemOf 录像路径对应的结果目录名
func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RegisterRoutes 注册路由
func RegisterRoutes(app *iris.Application, h *Handlers) {
	v1 := app.Party("/api/v1")
	{
		v1.Get("/config", h.GetConfig)
		v1.Post("/config", h.SetConfig)
		v1.Get("/status", h.GetStatus)
		v1.Get("/recordings", h.GetRecordings)
		v1.Get("/frames", h.GetFrames)
		v1.Get("/events", h.GetEvents)
		v1.Get("/unresolved", h.GetUnresolved)
	}

	app.Get("/ws/live", h.HandleLiveWebSocket) // WebSocket 实时事件流
}
