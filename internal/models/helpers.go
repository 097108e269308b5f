package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// ValidateDomain 验证域名
// 域名不应包含协议前缀和路径, 例如 "example.com"
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("域名不能为空")
	}
	if strings.Contains(domain, "://") {
		return fmt.Errorf("域名不应包含协议前缀: %s", domain)
	}
	if strings.ContainsAny(domain, "/ \t") {
		return fmt.Errorf("域名包含非法字符: %s", domain)
	}
	if !strings.Contains(domain, ".") {
		return fmt.Errorf("无效的域名: %s", domain)
	}
	return nil
}

// NormalizeDomain 规范化域名输入
// 容忍用户误传完整URL: 去除协议前缀、www前缀和尾部路径
func NormalizeDomain(input string) string {
	d := strings.TrimSpace(input)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return d
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
