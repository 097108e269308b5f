package models

import (
	"fmt"
	"net/http"
	"strings"
)

// ProfileName 用户代理档案名称
type ProfileName string

const (
	// ProfileDefault 桌面端Chrome on macOS档案(默认启用)
	ProfileDefault ProfileName = "DEFAULT"
	// ProfileIOS iOS Safari档案
	ProfileIOS ProfileName = "IOS"
	// ProfileAndroid Android Chrome档案
	ProfileAndroid ProfileName = "ANDROID"
)

// Profile 用户代理档案
// 一个档案描述一种被模拟的客户端设备: User-Agent字符串和移动端设备参数
type Profile struct {
	// Name 档案名称 (DEFAULT/IOS/ANDROID)
	Name ProfileName `json:"name"`

	// UserAgent 该档案发送的User-Agent字符串
	UserAgent string `json:"user_agent"`

	// Mobile 是否为移动端设备(动态爬取时启用设备仿真)
	Mobile bool `json:"mobile"`

	// ViewportWidth/ViewportHeight 设备视口尺寸(仅动态爬取使用)
	ViewportWidth  int `json:"viewport_width"`
	ViewportHeight int `json:"viewport_height"`

	// DeviceScaleFactor 设备像素比(仅动态爬取使用)
	DeviceScaleFactor float64 `json:"device_scale_factor"`
}

// BuiltinProfiles 内置的三个用户代理档案
// User-Agent字符串为固定值,可通过agents.yaml覆盖
var BuiltinProfiles = map[ProfileName]Profile{
	ProfileDefault: {
		Name: ProfileDefault,
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/129.0.0.0 Safari/537.36",
		Mobile:            false,
		ViewportWidth:     1440,
		ViewportHeight:    900,
		DeviceScaleFactor: 2.0,
	},
	ProfileIOS: {
		Name: ProfileIOS,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) " +
			"AppleWebKit/605.1.15 (KHTML, like Gecko) " +
			"Version/18.1 Mobile/15E148 Safari/604.1",
		Mobile:            true,
		ViewportWidth:     390,
		ViewportHeight:    844,
		DeviceScaleFactor: 3.0,
	},
	ProfileAndroid: {
		Name: ProfileAndroid,
		UserAgent: "Mozilla/5.0 (Linux; Android 13; Pixel 7) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/117.0.0.0 Mobile Safari/537.36",
		Mobile:            true,
		ViewportWidth:     412,
		ViewportHeight:    915,
		DeviceScaleFactor: 2.625,
	},
}

// LookupProfile 按名称查找内置档案(不区分大小写)
func LookupProfile(name string) (Profile, error) {
	p, ok := BuiltinProfiles[ProfileName(strings.ToUpper(name))]
	if !ok {
		return Profile{}, fmt.Errorf("未知的用户代理档案: %s (有效值: DEFAULT, IOS, ANDROID)", name)
	}
	return p, nil
}

// AgentConfig 表示agents.yaml配置文件的结构
type AgentConfig struct {
	// Headers 应用于所有档案的自定义HTTP头部 (键值对)
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// UserAgents 按档案名称覆盖User-Agent字符串
	// 键: 档案名称 (如 "IOS")
	// 值: 替换的User-Agent字符串
	UserAgents map[string]string `mapstructure:"user_agents" yaml:"user_agents"`
}

// CliHeaders 表示命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := parseHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// parseHeaderString 解析单个头部字符串 "Name: Value"
func parseHeaderString(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}

	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}

	return name, value, nil
}

// AgentProvider 定义用户代理档案提供者接口
// 实现此接口的类型负责管理档案的HTTP头部(含User-Agent)
type AgentProvider interface {
	// HeadersFor 返回指定档案当前有效的HTTP请求头部
	// 合并优先级: 内置默认 < agents.yaml配置 < 命令行 -H
	//
	// 错误情况:
	//   - 配置文件解析失败
	//   - 头部验证失败
	HeadersFor(profile Profile) (http.Header, error)
}

// ValidationError 头部验证错误
type ValidationError struct {
	// Field 出错的字段 ("name" 或 "value")
	Field string

	// HeaderName 头部名称
	HeaderName string

	// Reason 错误原因
	Reason string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
