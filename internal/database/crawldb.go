package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite驱动

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// CrawlDB 基于SQLite的爬取索引
// 记录每次会话和每个抓取页面的元数据, 便于后续查询和增量爬取
//
// 每个输出目录共用一个数据库文件, 而不是每个会话一个,
// 这样跨会话的历史查询和备份都更简单
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options 数据库配置
type Options struct {
	// CreateIfNotExists 数据库文件不存在时自动创建
	CreateIfNotExists bool

	// EnableWAL 启用Write-Ahead Logging提升并发性能
	EnableWAL bool
}

// DefaultOptions 默认数据库配置
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open 打开或创建数据库
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, "crawl.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("数据库不存在: %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("检查数据库路径失败: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	// modernc.org/sqlite的连接串格式:
	// mode=rwc 允许创建, mode=rw 要求文件已存在
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite只支持单写入者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("启用WAL模式失败: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}

	return cdb, nil
}

// Close 关闭数据库连接
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables 创建数据库表结构
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- 爬取会话
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		root_url TEXT NOT NULL,
		mode TEXT NOT NULL,
		profiles TEXT NOT NULL,
		session_dir TEXT NOT NULL,
		status TEXT NOT NULL,
		stats TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_domain ON sessions(domain);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	-- 页面抓取记录
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		profile TEXT NOT NULL,
		file_path TEXT,
		hash TEXT,
		size INTEGER,
		content_type TEXT,
		status_code INTEGER,
		crawl_mode TEXT,
		depth INTEGER,
		is_duplicate INTEGER DEFAULT 0,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, profile, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	CREATE INDEX IF NOT EXISTS idx_pages_hash ON pages(hash);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// InsertSession 写入新会话记录
func (cdb *CrawlDB) InsertSession(ctx context.Context, task *models.CrawlTask, sessionDir string) error {
	profilesJSON, err := json.Marshal(task.Profiles)
	if err != nil {
		return fmt.Errorf("序列化档案列表失败: %w", err)
	}

	query := `
	INSERT INTO sessions (id, domain, root_url, mode, profiles, session_dir, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = cdb.db.ExecContext(ctx, query,
		task.ID,
		task.Domain,
		task.RootURL,
		string(task.Mode),
		string(profilesJSON),
		sessionDir,
		string(task.Status),
	)
	if err != nil {
		return fmt.Errorf("写入会话记录失败: %w", err)
	}

	return nil
}

// FinishSession 更新会话的最终状态和统计
func (cdb *CrawlDB) FinishSession(ctx context.Context, taskID string, status models.TaskStatus, stats models.TaskStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("序列化统计信息失败: %w", err)
	}

	query := `
	UPDATE sessions
	SET status = ?, stats = ?, completed_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`

	_, err = cdb.db.ExecContext(ctx, query, string(status), string(statsJSON), taskID)
	if err != nil {
		return fmt.Errorf("更新会话记录失败: %w", err)
	}

	return nil
}

// RecordPage 写入页面抓取记录
// 同会话同档案同URL重复抓取时更新已有记录
func (cdb *CrawlDB) RecordPage(ctx context.Context, sessionID string, page *models.Page) error {
	query := `
	INSERT INTO pages (session_id, url, profile, file_path, hash, size, content_type, status_code, crawl_mode, depth, is_duplicate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, profile, url) DO UPDATE SET
		file_path = excluded.file_path,
		hash = excluded.hash,
		size = excluded.size,
		content_type = excluded.content_type,
		status_code = excluded.status_code,
		crawl_mode = excluded.crawl_mode,
		depth = excluded.depth,
		is_duplicate = excluded.is_duplicate,
		fetched_at = CURRENT_TIMESTAMP
	`

	isDuplicate := 0
	if page.IsDuplicate {
		isDuplicate = 1
	}

	_, err := cdb.db.ExecContext(ctx, query,
		sessionID,
		page.URL,
		string(page.Profile),
		page.FilePath,
		page.Hash,
		page.Size,
		page.ContentType,
		page.StatusCode,
		string(page.CrawlMode),
		page.Depth,
		isDuplicate,
	)
	if err != nil {
		return fmt.Errorf("写入页面记录失败: %w", err)
	}

	return nil
}

// PageRecord 页面查询结果
type PageRecord struct {
	ID          int64
	SessionID   string
	URL         string
	Profile     models.ProfileName
	FilePath    string
	Hash        string
	Size        int64
	ContentType string
	StatusCode  int
	CrawlMode   string
	Depth       int
	IsDuplicate bool
	FetchedAt   time.Time
}

// PagesBySession 查询会话的所有页面记录
func (cdb *CrawlDB) PagesBySession(ctx context.Context, sessionID string) ([]PageRecord, error) {
	query := `
	SELECT id, session_id, url, profile, file_path, hash, size, content_type, status_code, crawl_mode, depth, is_duplicate, fetched_at
	FROM pages
	WHERE session_id = ?
	ORDER BY fetched_at
	`

	rows, err := cdb.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询页面记录失败: %w", err)
	}
	defer rows.Close()

	var results []PageRecord
	for rows.Next() {
		var rec PageRecord
		var profile string
		var isDuplicate int
		var fetchedAt string

		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.URL,
			&profile,
			&rec.FilePath,
			&rec.Hash,
			&rec.Size,
			&rec.ContentType,
			&rec.StatusCode,
			&rec.CrawlMode,
			&rec.Depth,
			&isDuplicate,
			&fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("扫描页面记录失败: %w", err)
		}

		rec.Profile = models.ProfileName(profile)
		rec.IsDuplicate = isDuplicate != 0
		rec.FetchedAt = parseTimestamp(fetchedAt)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// VisitedURLs 查询会话中指定档案已访问的URL列表
func (cdb *CrawlDB) VisitedURLs(ctx context.Context, sessionID string, profile models.ProfileName) ([]string, error) {
	query := `
	SELECT url FROM pages
	WHERE session_id = ? AND profile = ?
	ORDER BY fetched_at
	`

	rows, err := cdb.db.QueryContext(ctx, query, sessionID, string(profile))
	if err != nil {
		return nil, fmt.Errorf("查询已访问URL失败: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("扫描URL失败: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, rows.Err()
}

// SessionRecord 会话查询结果
type SessionRecord struct {
	ID          string
	Domain      string
	RootURL     string
	Mode        string
	Profiles    []models.ProfileName
	SessionDir  string
	Status      models.TaskStatus
	Stats       models.TaskStats
	StartedAt   time.Time
	CompletedAt time.Time
}

// SessionsByDomain 查询域名的历史会话 (按时间倒序)
func (cdb *CrawlDB) SessionsByDomain(ctx context.Context, domain string) ([]SessionRecord, error) {
	query := `
	SELECT id, domain, root_url, mode, profiles, session_dir, status, stats, started_at, COALESCE(completed_at, '')
	FROM sessions
	WHERE domain = ?
	ORDER BY started_at DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("查询会话记录失败: %w", err)
	}
	defer rows.Close()

	var results []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var profilesJSON, status string
		var statsJSON sql.NullString
		var startedAt, completedAt string

		if err := rows.Scan(
			&rec.ID,
			&rec.Domain,
			&rec.RootURL,
			&rec.Mode,
			&profilesJSON,
			&rec.SessionDir,
			&status,
			&statsJSON,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("扫描会话记录失败: %w", err)
		}

		rec.Status = models.TaskStatus(status)
		rec.StartedAt = parseTimestamp(startedAt)
		rec.CompletedAt = parseTimestamp(completedAt)

		if err := json.Unmarshal([]byte(profilesJSON), &rec.Profiles); err != nil {
			rec.Profiles = nil
		}
		if statsJSON.Valid && statsJSON.String != "" {
			if err := json.Unmarshal([]byte(statsJSON.String), &rec.Stats); err != nil {
				rec.Stats = models.TaskStats{}
			}
		}

		results = append(results, rec)
	}

	return results, rows.Err()
}

// timestampFormats SQLite可能返回的时间格式
// 顺序有讲究: 更具体的格式放前面
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp 尝试多种格式解析时间戳
// 全部失败时返回零值时间
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
