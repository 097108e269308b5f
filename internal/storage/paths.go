package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// SessionDirName 根据时间生成会话目录名
// 格式: 2024-11-6_14-53-4 (各字段不补零)
func SessionDirName(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d_%d-%d-%d",
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second())
}

// PathFromURL 将URL转换为本地存储路径
//
// 转换规则:
//  1. 主机名中的点替换为下划线 (www.example.com -> www_example_com)
//  2. 去掉协议前缀
//  3. 加上 <localRoot>/<档案名>/ 前缀
//  4. 丢弃fragment (#锚点只用于页面内跳转)
//  5. 去掉尾部斜杠 (该URL返回过200, 按文件处理)
//  6. 查询参数转为文件系统安全形式并追加.html:
//     page?id=5&lang=en -> page-id_5-lang_en.html
//  7. 末段没有扩展名时追加.html, 便于本地查看
//
// 注意: 查询参数没有稳定排序, 同一页面可能产生重复文件
func PathFromURL(localRoot string, profile models.ProfileName, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("解析URL失败: %w", err)
	}

	// 主机名点转下划线
	netloc := strings.ReplaceAll(parsed.Host, ".", "_")

	// 去掉协议, 重组为 主机/路径?查询
	p := netloc + parsed.Path
	if parsed.RawQuery != "" {
		p += "?" + parsed.RawQuery
	}

	// 前缀本地根目录和档案名
	p = fmt.Sprintf("%s/%s/%s", localRoot, profile, p)

	// 去掉尾部斜杠
	p = strings.TrimSuffix(p, "/")

	// 查询参数转为文件系统安全形式
	if strings.Contains(p, "?") {
		p = strings.NewReplacer("?", "-", "&", "-").Replace(p)
		p = strings.ReplaceAll(p, "=", "_")
		p += ".html"
	}

	// 末段没有扩展名时追加.html
	segments := strings.Split(p, "/")
	if !strings.Contains(segments[len(segments)-1], ".") {
		p += ".html"
	}

	return p, nil
}
