package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// ReadDomainsFromFile 从文件中读取域名列表
func ReadDomainsFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开域名文件失败: %w", err)
	}
	defer file.Close()

	domains := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// 容忍完整URL输入, 规范化为纯域名
		domain := models.NormalizeDomain(line)
		if err := models.ValidateDomain(domain); err != nil {
			Warnf("跳过无效域名 (行 %d): %s - %v", lineNum, line, err)
			continue
		}

		domains = append(domains, domain)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取域名文件失败: %w", err)
	}

	if len(domains) == 0 {
		return nil, fmt.Errorf("域名文件中没有有效的域名")
	}

	Infof("从文件加载了 %d 个域名", len(domains))
	return domains, nil
}
