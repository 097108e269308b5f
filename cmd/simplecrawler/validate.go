package main

import (
	"fmt"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(
	depth int,
	waitTime int,
	maxWorkers int,
	tabs int,
	similarityThreshold float64,
	mode string,
) error {
	if depth < 1 || depth > 10 {
		return fmt.Errorf("爬取深度必须在1-10之间,当前值: %d", depth)
	}
	if waitTime < 0 || waitTime > 60 {
		return fmt.Errorf("等待时间必须在0-60秒之间,当前值: %d", waitTime)
	}
	if maxWorkers < 1 || maxWorkers > 100 {
		return fmt.Errorf("并发数必须在1-100之间,当前值: %d", maxWorkers)
	}
	if tabs < 1 || tabs > 20 {
		return fmt.Errorf("浏览器标签页数必须在1-20之间,当前值: %d", tabs)
	}
	if similarityThreshold < 0.0 || similarityThreshold > 1.0 {
		return fmt.Errorf("相似度阈值必须在0.0-1.0之间,当前值: %.2f", similarityThreshold)
	}
	if _, err := models.ParseCrawlMode(mode); err != nil {
		return err
	}
	return nil
}

// ResolveDomain 规范化并验证目标域名
// 接受裸域名或完整URL,返回规范化后的域名
func ResolveDomain(input string) (string, error) {
	domain := models.NormalizeDomain(input)
	if err := models.ValidateDomain(domain); err != nil {
		return "", fmt.Errorf("无效的目标域名 %q: %w", input, err)
	}
	return domain, nil
}

// ResolveProfiles 根据开关计算启用的浏览器档案
// 默认启用桌面Chrome档案,可通过开关禁用或追加移动端档案
func ResolveProfiles(disableChromeMacos, enableIOS, enableAndroid bool) ([]models.ProfileName, error) {
	var profiles []models.ProfileName
	if !disableChromeMacos {
		profiles = append(profiles, models.ProfileDefault)
	}
	if enableIOS {
		profiles = append(profiles, models.ProfileIOS)
	}
	if enableAndroid {
		profiles = append(profiles, models.ProfileAndroid)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("所有浏览器档案均被禁用,至少需要启用一个 (移除--disable_chrome_macos或添加--enable_ios/--enable_android)")
	}
	return profiles, nil
}
