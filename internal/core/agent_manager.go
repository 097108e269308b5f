package core

import (
	"net/http"
	"strings"

	"github.com/efalkenberg/simplecrawler/internal/config"
	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// AgentManager 管理浏览器档案与HTTP请求头部的生命周期
// 实现 models.AgentProvider 接口
//
// 头部合并优先级 (低→高):
//  1. 系统默认头部 (Accept等)
//  2. 档案User-Agent (内置三种档案)
//  3. 配置文件headers段
//  4. 配置文件user_agents段 (按档案名覆盖UA)
//  5. 命令行-H参数
type AgentManager struct {
	// configFile 配置文件路径
	configFile string

	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 从配置文件加载的头部
	config http.Header

	// uaOverrides 配置文件中按档案名的UA覆盖
	uaOverrides map[string]string

	// cli 从命令行参数解析的头部
	cli http.Header

	// validator 头部验证器
	validator *utils.HeaderValidator

	// redactor 头部脱敏器
	redactor *utils.HeaderRedactor

	// configLoader 配置文件加载器
	configLoader *config.AgentConfigLoader

	// loaded 标记配置是否已加载
	loaded bool
}

// NewAgentManager 创建档案管理器
// configFile为空则使用默认路径, cliHeaders为命令行-H参数列表
func NewAgentManager(configFile string, cliHeaders []string) (*AgentManager, error) {
	am := &AgentManager{
		configFile:   configFile,
		defaults:     getDefaultHeaders(),
		uaOverrides:  make(map[string]string),
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewAgentConfigLoader(configFile),
		loaded:       false,
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		am.cli = parsed
	} else {
		am.cli = make(http.Header)
	}

	return am, nil
}

// getDefaultHeaders 返回系统默认头部 (不含UA,由档案提供)
func getDefaultHeaders() http.Header {
	return http.Header{
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载配置文件,已加载则跳过
func (am *AgentManager) LoadConfig() error {
	if am.loaded {
		return nil
	}

	agentConfig, err := am.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载档案配置失败: %v", err)
		return err
	}

	am.config = make(http.Header)
	for name, value := range agentConfig.Headers {
		am.config.Set(name, value)
	}

	// viper把YAML键统一转成小写, 档案名按大写存取
	am.uaOverrides = make(map[string]string, len(agentConfig.UserAgents))
	for name, ua := range agentConfig.UserAgents {
		am.uaOverrides[strings.ToUpper(name)] = ua
	}

	am.loaded = true

	// 记录加载成功 (脱敏后的头部)
	if len(agentConfig.Headers) > 0 {
		safeHeaders := am.redactor.Redact(am.config)
		utils.Debugf("成功加载%d个HTTP头部配置: %v", len(safeHeaders), safeHeaders)
	}
	if len(agentConfig.UserAgents) > 0 {
		utils.Debugf("成功加载%d个UA覆盖配置", len(agentConfig.UserAgents))
	}

	return nil
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (am *AgentManager) Validate() error {
	if err := am.validator.Validate(am.defaults); err != nil {
		utils.Errorf("默认头部验证失败: %v", err)
		return err
	}
	if err := am.validator.Validate(am.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := am.validator.Validate(am.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}

	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// mergedHeaders 按优先级合并头部
func (am *AgentManager) mergedHeaders(profile models.Profile) http.Header {
	result := make(http.Header)

	// 1. 默认头部
	for name, values := range am.defaults {
		result[name] = values
	}

	// 2. 档案UA
	result.Set("User-Agent", profile.UserAgent)

	// 3. 配置文件headers覆盖
	for name, values := range am.config {
		result[name] = values
	}

	// 4. 配置文件按档案名的UA覆盖
	if ua, ok := am.uaOverrides[string(profile.Name)]; ok && ua != "" {
		result.Set("User-Agent", ua)
	}

	// 5. 命令行覆盖
	for name, values := range am.cli {
		result[name] = values
	}

	return result
}

// HeadersFor 实现 models.AgentProvider 接口
// 返回指定档案当前有效的HTTP请求头部
func (am *AgentManager) HeadersFor(profile models.Profile) (http.Header, error) {
	if err := am.LoadConfig(); err != nil {
		return nil, err
	}
	if err := am.Validate(); err != nil {
		return nil, err
	}
	return am.mergedHeaders(profile), nil
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (am *AgentManager) GetSafeHeaders(profile models.Profile) map[string]string {
	return am.redactor.Redact(am.mergedHeaders(profile))
}
