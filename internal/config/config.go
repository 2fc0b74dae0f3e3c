package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"scte104-analyzer/internal/scte104"
)

const (
	// 信号域常量 (PAL)
	FrameRate       = 25
	FrameDurationMs = 40

	// Phabrix 远控协议常量
	MsgGetItemValues  = 28   // MSG_GET_ITEM_VALUES
	ItemAncData       = 603  // COM_ANLYS_ANC_DATA
	ItemAncDataInput2 = 8004 // 分析器输入 2 的 ANC 视图
	ItemAncDataInput3 = 8104 // 分析器输入 3 的 ANC 视图
	ItemInputStandard = 560  // COM_ANLYS_INP1_STD
	PhabrixPort       = 2100

	// Morpheus KernelDiags 日志中的注入设备名
	DeviceTLN = "SCTE104_TLNProtocol"
	DeviceAds = "SCTE104_AdsProtocol"

	// 缩略图参数下限
	MinThumbnailPadding = 2
	// 相距不超过该帧数的事件帧合并为同一事件窗口
	FrameGroupGap = 10
)

var (
	// 默认配置
	DefaultConfigPath = "analyzer.yaml"
	DefaultResultsDir = "results"
	DefaultCacheDir   = ".scan_cache"
)

// Config 分析器配置，analyzer.yaml 中缺失的字段保持默认值
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Phabrix  PhabrixConfig  `yaml:"phabrix"`
	Morpheus MorpheusConfig `yaml:"morpheus"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig 查看器服务配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AnalysisConfig MXF 分析配置
type AnalysisConfig struct {
	ResultsDir      string `yaml:"results_dir"`
	CacheDir        string `yaml:"cache_dir"`
	Padding         int    `yaml:"padding"`
	Thumbnails      bool   `yaml:"thumbnails"`
	DataStreamIndex int    `yaml:"data_stream_index"`
}

// PhabrixConfig 设备轮询配置
type PhabrixConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Input           int    `yaml:"input"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// MorpheusConfig 日志解析配置
type MorpheusConfig struct {
	Device    string `yaml:"device"` // tln 或 ads
	UTCAdjust bool   `yaml:"utc_adjust"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// GetConfigWithDefaults 返回默认配置
func GetConfigWithDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Analysis: AnalysisConfig{
			ResultsDir:      DefaultResultsDir,
			CacheDir:        DefaultCacheDir,
			Padding:         MinThumbnailPadding,
			Thumbnails:      true,
			DataStreamIndex: 2,
		},
		Phabrix: PhabrixConfig{
			Port:            PhabrixPort,
			Input:           1,
			IntervalSeconds: 1,
		},
		Morpheus: MorpheusConfig{
			Device:    "tln",
			UTCAdjust: true,
		},
	}
}

// LoadConfig 加载配置文件，文件不存在时返回默认配置，
// 部分文件只覆盖出现的字段。
func LoadConfig(path string) (*Config, error) {
	cfg := GetConfigWithDefaults()
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		scte104.LogInfo("配置文件不存在，使用默认配置", "path", path)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	scte104.LogInfo("配置加载完成", "path", path, "port", cfg.Server.Port)
	return cfg, nil
}

// DeviceName Morpheus 设备短名对应的日志设备名
func (c *MorpheusConfig) DeviceName() string {
	if c.Device == "ads" {
		return DeviceAds
	}
	return DeviceTLN
}

// Addr 设备的 host:port 连接地址
func (c *PhabrixConfig) Addr() string {
	port := c.Port
	if port <= 0 {
		port = PhabrixPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Analysis.Padding < 0 {
		return fmt.Errorf("invalid padding: %d", c.Analysis.Padding)
	}
	if c.Analysis.DataStreamIndex < 0 {
		return fmt.Errorf("invalid data stream index: %d", c.Analysis.DataStreamIndex)
	}
	if c.Phabrix.Port <= 0 || c.Phabrix.Port > 65535 {
		return fmt.Errorf("invalid phabrix port: %d", c.Phabrix.Port)
	}
	if c.Phabrix.Input < 1 || c.Phabrix.Input > 3 {
		return fmt.Errorf("invalid phabrix input: %d (must be 1-3)", c.Phabrix.Input)
	}
	if c.Phabrix.IntervalSeconds < 1 {
		return fmt.Errorf("invalid poll interval: %d", c.Phabrix.IntervalSeconds)
	}
	if c.Morpheus.Device != "tln" && c.Morpheus.Device != "ads" {
		return fmt.Errorf("invalid morpheus device: %s (must be tln or ads)", c.Morpheus.Device)
	}
	return nil
}
