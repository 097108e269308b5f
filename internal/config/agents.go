package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultAgentConfigFile 默认用户代理配置文件路径
	DefaultAgentConfigFile = "configs/agents.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed agents_template.yaml
var defaultAgentTemplate string

// AgentConfigLoader 用户代理配置文件加载器
// 负责加载、验证和解析agents.yaml
type AgentConfigLoader struct {
	configPath string
}

// NewAgentConfigLoader 创建配置文件加载器
func NewAgentConfigLoader(configPath string) *AgentConfigLoader {
	if configPath == "" {
		configPath = DefaultAgentConfigFile
	}
	return &AgentConfigLoader{
		configPath: configPath,
	}
}

// EnsureConfigExists 确保配置文件存在,如不存在则自动生成模板
func (acl *AgentConfigLoader) EnsureConfigExists() error {
	if _, err := os.Stat(acl.configPath); os.IsNotExist(err) {
		dir := filepath.Dir(acl.configPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
		}

		if err := os.WriteFile(acl.configPath, []byte(defaultAgentTemplate), 0644); err != nil {
			return fmt.Errorf("无法生成配置文件 [%s]: %w", acl.configPath, err)
		}
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (acl *AgentConfigLoader) ValidateFileSize() error {
	info, err := os.Stat(acl.configPath)
	if err != nil {
		return fmt.Errorf("无法读取配置文件信息 [%s]: %w", acl.configPath, err)
	}

	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: acl.configPath,
			Cause: fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)",
				info.Size(), MaxConfigFileSize),
		}
	}

	return nil
}

// LoadConfig 加载配置文件并解析为AgentConfig
// 执行流程:
//  1. 确保配置文件存在 (不存在则自动创建)
//  2. 验证文件大小是否在限制内
//  3. 使用Viper解析YAML
//  4. 绑定到AgentConfig结构体
//  5. 处理空配置情况
func (acl *AgentConfigLoader) LoadConfig() (*models.AgentConfig, error) {
	// 1. 确保配置文件存在
	if err := acl.EnsureConfigExists(); err != nil {
		return nil, err
	}

	// 2. 验证文件大小
	if err := acl.ValidateFileSize(); err != nil {
		return nil, err
	}

	// 3. 使用viper解析YAML
	v := viper.New()
	v.SetConfigFile(acl.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 配置文件被其他进程锁定时, 优雅降级使用内置默认值
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("配置文件被锁定 [%s], 使用内置默认值", acl.configPath)
			return &models.AgentConfig{
				Headers:    make(map[string]string),
				UserAgents: make(map[string]string),
			}, nil
		}

		return nil, &models.ConfigError{
			FilePath: acl.configPath,
			Cause:    err,
		}
	}

	// 4. 绑定到结构体
	var config models.AgentConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: acl.configPath,
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}

	// 5. 处理空配置, 初始化空map避免nil指针
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.UserAgents == nil {
		config.UserAgents = make(map[string]string)
	}

	return &config, nil
}
