// Package report 提供扫描结果的 mmap 缓存。
// 一次 MXF 扫描(ffprobe 解复用 + 逐包解码 + 相关)可能耗时数分钟，
// 结果按录像文件落盘，重开分析时零拷贝读回。
package report

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"scte104-analyzer/internal/scte104"

	"golang.org/x/sys/unix"
)

// ============================================================================
// 缓存文件格式
// ============================================================================

// Header (16 bytes):
//   Magic (4): "SCAN"
//   Version (4)
//   RecordCount (4)
//   Reserved (4)
// Records (N * RecordSize bytes) - 与 ScanRecord 内存布局一致
// Payload heap - 各记录的原始 VANC 载荷，按 PayloadOffset 寻址

const (
	CacheMagic      = "SCAN"
	CacheVersion    = 1
	CacheHeaderSize = 16
)

// ScanRecord 一帧的扫描结果。
// FrameNumber(4) + FileTimecodeFrames(4) + UTCTimecodeFrames(4) +
// PayloadOffset(4) + PayloadLength(2) + Classification(1) + Flags(1) = 20 字节
type ScanRecord struct {
	FrameNumber        uint32
	FileTimecodeFrames uint32
	UTCTimecodeFrames  uint32
	PayloadOffset      uint32 // 相对载荷堆起点
	PayloadLength      uint16
	Classification     uint8
	Flags              uint8
}

// RecordSize 每条记录 20 字节
const RecordSize = 20

// 布局变化时在编译期报错
var _ [RecordSize]byte = [unsafe.Sizeof(ScanRecord{})]byte{}

// Flags 位
const (
	FlagDecodeFailed uint8 = 1 << 0 // 载荷不是可解码的 SCTE-104 消息
	FlagSynthesized  uint8 = 1 << 1 // 按声明时刻合成的触发帧，无载荷
)

// Entry 待写入缓存的一帧扫描结果
type Entry struct {
	FrameNumber        uint32
	FileTimecodeFrames uint32
	UTCTimecodeFrames  uint32
	Classification     uint8
	Flags              uint8
	Payload            []byte
}

// ============================================================================
// 缓存目录
// ============================================================================

var (
	cacheDir   string
	cacheDirMu sync.Mutex
)

// SetCacheDir 设置缓存目录
func SetCacheDir(dir string) {
	cacheDirMu.Lock()
	defer cacheDirMu.Unlock()
	cacheDir = dir
	os.MkdirAll(dir, 0755)
}

// GetCacheDir 获取缓存目录
func GetCacheDir() string {
	cacheDirMu.Lock()
	defer cacheDirMu.Unlock()
	if cacheDir == "" {
		// 默认使用工作目录下的 .scan_cache
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		cacheDir = filepath.Join(wd, ".scan_cache")
		os.MkdirAll(cacheDir, 0755)
	}
	return cacheDir
}

// FileKey 计算录像文件的缓存标识。
// 录像不会原地改写，文件名 + 大小足够区分。
func FileKey(recordingPath string) (string, error) {
	info, err := os.Stat(recordingPath)
	if err != nil {
		return "", err
	}
	identifier := fmt.Sprintf("%s:%d", filepath.Base(recordingPath), info.Size())
	hash := md5.Sum([]byte(identifier))
	return hex.EncodeToString(hash[:]), nil
}

func getCachePath(recordingPath string) (string, error) {
	key, err := FileKey(recordingPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(GetCacheDir(), key+".bin"), nil
}

// Exists 检查缓存是否存在且至少含有 header
func Exists(recordingPath string) bool {
	cachePath, err := getCachePath(recordingPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	return info.Size() >= CacheHeaderSize
}

// ============================================================================
// 写入
// ============================================================================

// Save 保存扫描结果到缓存文件。
// 记录区按 ScanRecord 的内存布局写入，便于后续 mmap 零拷贝读取。
func Save(recordingPath string, entries []Entry) error {
	cachePath, err := getCachePath(recordingPath)
	if err != nil {
		return err
	}

	heapSize := 0
	for i := range entries {
		if len(entries[i].Payload) > 0xFFFF {
			return fmt.Errorf("payload of frame %d too large: %d bytes",
				entries[i].FrameNumber, len(entries[i].Payload))
		}
		heapSize += len(entries[i].Payload)
	}
	totalSize := CacheHeaderSize + len(entries)*RecordSize + heapSize

	f, err := os.Create(cachePath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(totalSize)); err != nil {
		return err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, totalSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	defer unix.Munmap(data)

	copy(data[0:4], CacheMagic)
	binary.LittleEndian.PutUint32(data[4:8], CacheVersion)
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(entries)))

	records, heap := buildRegions(entries)
	if len(records) > 0 {
		recordsBytes := unsafe.Slice((*byte)(unsafe.Pointer(&records[0])), len(records)*RecordSize)
		copy(data[CacheHeaderSize:], recordsBytes)
	}
	copy(data[CacheHeaderSize+len(records)*RecordSize:], heap)

	scte104.LogDebug("扫描缓存保存",
		"file", filepath.Base(recordingPath), "records", len(entries))
	return nil
}

// buildRegions 由条目生成记录区与载荷堆
func buildRegions(entries []Entry) ([]ScanRecord, []byte) {
	records := make([]ScanRecord, len(entries))
	var heap []byte
	for i := range entries {
		records[i] = ScanRecord{
			FrameNumber:        entries[i].FrameNumber,
			FileTimecodeFrames: entries[i].FileTimecodeFrames,
			UTCTimecodeFrames:  entries[i].UTCTimecodeFrames,
			PayloadOffset:      uint32(len(heap)),
			PayloadLength:      uint16(len(entries[i].Payload)),
			Classification:     entries[i].Classification,
			Flags:              entries[i].Flags,
		}
		heap = append(heap, entries[i].Payload...)
	}
	return records, heap
}

// ============================================================================
// 读取
// ============================================================================

// ScanCache mmap 映射的扫描缓存，Records 直接指向映射内存
type ScanCache struct {
	data    []byte
	Records []ScanRecord
	heap    []byte
}

// Load 从缓存加载扫描结果，零拷贝。
// magic/版本/大小校验失败时返回错误，调用方应重建缓存。
func Load(recordingPath string) (*ScanCache, error) {
	cachePath, err := getCachePath(recordingPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := int(info.Size())
	if size < CacheHeaderSize {
		f.Close()
		return nil, fmt.Errorf("cache file too small: %d", size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	// 映射建立后 fd 即可关闭
	f.Close()

	if string(data[0:4]) != CacheMagic {
		unix.Munmap(data)
		return nil, fmt.Errorf("invalid cache magic")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != CacheVersion {
		unix.Munmap(data)
		return nil, fmt.Errorf("cache version mismatch: got %d, want %d", version, CacheVersion)
	}

	count := int(binary.LittleEndian.Uint32(data[8:12]))
	recordsEnd := CacheHeaderSize + count*RecordSize
	if size < recordsEnd {
		unix.Munmap(data)
		return nil, fmt.Errorf("cache file truncated: %d records need %d bytes, have %d",
			count, recordsEnd, size)
	}

	cache := &ScanCache{data: data, heap: data[recordsEnd:]}
	if count > 0 {
		ptr := unsafe.Pointer(&data[CacheHeaderSize])
		cache.Records = unsafe.Slice((*ScanRecord)(ptr), count)
	}

	// 载荷区间越界说明堆被截断
	for i := range cache.Records {
		end := int(cache.Records[i].PayloadOffset) + int(cache.Records[i].PayloadLength)
		if end > len(cache.heap) {
			unix.Munmap(data)
			return nil, fmt.Errorf("cache payload heap truncated at record %d", i)
		}
	}

	return cache, nil
}

// Count 记录数量
func (c *ScanCache) Count() int {
	return len(c.Records)
}

// Payload 第 i 条记录的原始 VANC 载荷
func (c *ScanCache) Payload(i int) []byte {
	r := c.Records[i]
	return c.heap[r.PayloadOffset : r.PayloadOffset+uint32(r.PayloadLength)]
}

// Close 释放 mmap
func (c *ScanCache) Close() error {
	if c.data != nil {
		err := unix.Munmap(c.data)
		c.data = nil
		c.Records = nil
		c.heap = nil
		return err
	}
	return nil
}

// memoryCache 缓存落盘失败时的内存回退
func memoryCache(entries []Entry) *ScanCache {
	records, heap := buildRegions(entries)
	return &ScanCache{Records: records, heap: heap}
}

// ============================================================================
// 全局缓存管理器
// ============================================================================

// Manager 进程级扫描缓存管理器，每个录像只保持一份映射
type Manager struct {
	caches map[string]*ScanCache
	mu     sync.RWMutex
}

var globalManager = &Manager{caches: make(map[string]*ScanCache)}

// GetManager 获取全局管理器
func GetManager() *Manager {
	return globalManager
}

// GetOrBuild 获取录像的扫描缓存。缓存缺失或校验失败时调用 build
// 重新扫描并落盘。返回的缓存归管理器所有，调用方不要 Close。
func (m *Manager) GetOrBuild(recordingPath string, build func() ([]Entry, error)) (*ScanCache, error) {
	m.mu.RLock()
	if cache, ok := m.caches[recordingPath]; ok {
		m.mu.RUnlock()
		return cache, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// 双重检查
	if cache, ok := m.caches[recordingPath]; ok {
		return cache, nil
	}

	if Exists(recordingPath) {
		cache, err := Load(recordingPath)
		if err == nil {
			m.caches[recordingPath] = cache
			scte104.LogDebug("扫描缓存加载",
				"file", filepath.Base(recordingPath), "records", cache.Count())
			return cache, nil
		}
		scte104.LogWarn("扫描缓存无效，重新扫描",
			"file", filepath.Base(recordingPath), "error", err)
	}

	entries, err := build()
	if err != nil {
		return nil, err
	}

	if err := Save(recordingPath, entries); err == nil {
		if cache, err := Load(recordingPath); err == nil {
			m.caches[recordingPath] = cache
			return cache, nil
		}
	} else {
		scte104.LogWarn("扫描缓存保存失败", "error", err)
	}

	// 回退: 不落盘，直接用内存中的结果
	cache := memoryCache(entries)
	m.caches[recordingPath] = cache
	return cache, nil
}

// Close 关闭所有映射
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cache := range m.caches {
		cache.Close()
	}
	m.caches = make(map[string]*ScanCache)
}

// Stats 返回已映射的录像数与记录总数
func (m *Manager) Stats() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	totalRecords := 0
	for _, cache := range m.caches {
		totalRecords += cache.Count()
	}
	return len(m.caches), totalRecords
}
