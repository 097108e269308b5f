package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// PageStore 页面存储器
// 负责会话目录管理和页面内容落盘, 并发安全
type PageStore struct {
	baseDir    string
	sessionDir string

	mu sync.Mutex
	// hashes 每个档案内已保存内容的哈希集合, 用于档案内去重
	hashes map[models.ProfileName]map[string]bool
}

// NewPageStore 创建页面存储器并初始化会话目录
// 会话目录: <baseDir>/<时间戳>
func NewPageStore(baseDir string) (*PageStore, error) {
	sessionDir := filepath.Join(baseDir, SessionDirName(time.Now()))
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("创建会话目录失败: %w", err)
	}

	utils.Infof("📁 会话目录: %s", sessionDir)
	return &PageStore{
		baseDir:    baseDir,
		sessionDir: sessionDir,
		hashes:     make(map[models.ProfileName]map[string]bool),
	}, nil
}

// OpenPageStore 打开已存在的会话目录 (恢复模式)
func OpenPageStore(baseDir, sessionDir string) (*PageStore, error) {
	info, err := os.Stat(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("会话目录不可用: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("会话路径不是目录: %s", sessionDir)
	}

	return &PageStore{
		baseDir:    baseDir,
		sessionDir: sessionDir,
		hashes:     make(map[models.ProfileName]map[string]bool),
	}, nil
}

// SessionDir 返回当前会话目录
func (s *PageStore) SessionDir() string {
	return s.sessionDir
}

// RestoreHashes 从检查点恢复各档案已保存内容的哈希集合
func (s *PageStore) RestoreHashes(hashes map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for profile, list := range hashes {
		name := models.ProfileName(profile)
		if s.hashes[name] == nil {
			s.hashes[name] = make(map[string]bool)
		}
		for _, h := range list {
			s.hashes[name][h] = true
		}
	}
}

// SavedHashes 导出各档案的哈希集合 (写检查点用)
func (s *PageStore) SavedHashes() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string][]string, len(s.hashes))
	for profile, set := range s.hashes {
		list := make([]string, 0, len(set))
		for h := range set {
			list = append(list, h)
		}
		result[string(profile)] = list
	}
	return result
}

// SavePage 将页面内容写入本地文件
// 返回填充了FilePath/Hash/Size/IsDuplicate的页面记录
// 同档案内已保存过相同内容时只标记重复, 不再落盘, FilePath保持为空
func (s *PageStore) SavePage(page *models.Page, content []byte) error {
	path, err := PathFromURL(s.sessionDir, page.Profile, page.URL)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(content)
	page.Hash = hex.EncodeToString(sum[:])
	page.Size = int64(len(content))

	if err := page.ValidateSize(); err != nil {
		return err
	}

	// 档案内内容去重
	s.mu.Lock()
	if s.hashes[page.Profile] == nil {
		s.hashes[page.Profile] = make(map[string]bool)
	}
	if s.hashes[page.Profile][page.Hash] {
		page.IsDuplicate = true
	}
	s.hashes[page.Profile][page.Hash] = true
	s.mu.Unlock()

	if page.IsDuplicate {
		utils.Debugf("♻️  重复内容不落盘: %s (哈希 %s)", page.URL, page.Hash[:12])
		return nil
	}

	// 创建目录结构
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建页面目录失败: %w", err)
	}

	// 不同URL可能映射到同一路径 (查询参数顺序不稳定等)
	// 已存在且内容不同时, 追加数字后缀避免覆盖
	path, err = s.resolveCollision(path, page.Hash)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("写入页面文件失败: %w", err)
	}

	page.FilePath = path
	utils.Debugf("💾 已保存: %s (%d 字节)", path, page.Size)
	return nil
}

// resolveCollision 处理路径冲突
// 同路径同内容直接覆盖; 同路径不同内容追加 _1, _2 后缀
func (s *PageStore) resolveCollision(path, hash string) (string, error) {
	candidate := path
	for i := 1; ; i++ {
		existing, err := os.ReadFile(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("检查已存在文件失败: %w", err)
		}

		sum := sha256.Sum256(existing)
		if hex.EncodeToString(sum[:]) == hash {
			return candidate, nil
		}

		ext := filepath.Ext(path)
		base := strings.TrimSuffix(path, ext)
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// LatestSessionDir 返回baseDir下最近修改的会话目录
// 用于 --resume 时定位上一次会话
func LatestSessionDir(baseDir string) (string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", fmt.Errorf("读取输出目录失败: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = entry.Name()
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("输出目录中没有会话目录: %s", baseDir)
	}
	return filepath.Join(baseDir, latest), nil
}
