package models

import (
	"testing"
	"time"
)

func validConfig() CrawlConfig {
	return CrawlConfig{
		Depth:               3,
		WaitTime:            3,
		MaxWorkers:          2,
		Tabs:                4,
		PreferredHost:       "www",
		PreferredProtocol:   "https",
		SimilarityThreshold: 0.8,
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"带查询参数的URL", "https://example.com/page?id=5&lang=en", false},
		{"无效的协议", "ftp://example.com", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{"有效域名", "example.com", false},
		{"多级域名", "sub.example.co.uk", false},
		{"空域名", "", true},
		{"含协议前缀", "https://example.com", true},
		{"含路径", "example.com/page", true},
		{"含空格", "exam ple.com", true},
		{"无点号", "localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDomain() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"纯域名", "example.com", "example.com"},
		{"带协议", "https://example.com", "example.com"},
		{"带www前缀", "www.example.com", "example.com"},
		{"带协议和www", "https://www.example.com", "example.com"},
		{"带路径", "https://example.com/page?id=1", "example.com"},
		{"带空白", "  example.com  ", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDomain(tt.input); got != tt.want {
				t.Errorf("NormalizeDomain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCrawlMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CrawlMode
		wantErr bool
	}{
		{"静态模式", "static", ModeStatic, false},
		{"动态模式", "dynamic", ModeDynamic, false},
		{"全部模式", "all", ModeAll, false},
		{"无效模式", "fast", "", true},
		{"空字符串", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCrawlMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCrawlMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCrawlMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrawlConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*CrawlConfig)
		wantErr bool
	}{
		{"有效配置", func(c *CrawlConfig) {}, false},
		{"深度过小", func(c *CrawlConfig) { c.Depth = 0 }, true},
		{"深度过大", func(c *CrawlConfig) { c.Depth = 11 }, true},
		{"等待时间为负", func(c *CrawlConfig) { c.WaitTime = -1 }, true},
		{"并发数过大", func(c *CrawlConfig) { c.MaxWorkers = 101 }, true},
		{"标签页数过大", func(c *CrawlConfig) { c.Tabs = 21 }, true},
		{"相似度阈值无效", func(c *CrawlConfig) { c.SimilarityThreshold = 1.5 }, true},
		{"无效协议", func(c *CrawlConfig) { c.PreferredProtocol = "ftp" }, true},
		{"空主机前缀", func(c *CrawlConfig) { c.PreferredHost = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlConfig_RootURL(t *testing.T) {
	config := validConfig()

	if got := config.RootURL("example.com"); got != "https://www.example.com/" {
		t.Errorf("RootURL() = %v, want %v", got, "https://www.example.com/")
	}

	config.PreferredProtocol = "http"
	config.PreferredHost = "m"
	if got := config.RootURL("example.com"); got != "http://m.example.com/" {
		t.Errorf("RootURL() = %v, want %v", got, "http://m.example.com/")
	}
}

func TestNewCrawlTask(t *testing.T) {
	config := validConfig()

	task, err := NewCrawlTask("example.com", config, []ProfileName{ProfileDefault})
	if err != nil {
		t.Fatalf("NewCrawlTask() error = %v", err)
	}

	if task.ID == "" {
		t.Error("任务ID不应为空")
	}

	if task.Domain != "example.com" {
		t.Errorf("Domain = %v, want %v", task.Domain, "example.com")
	}

	if task.RootURL != "https://www.example.com/" {
		t.Errorf("RootURL = %v, want %v", task.RootURL, "https://www.example.com/")
	}

	if task.Status != TaskStatusPending {
		t.Errorf("Status = %v, want %v", task.Status, TaskStatusPending)
	}

	// 没有档案时应拒绝创建
	if _, err := NewCrawlTask("example.com", config, nil); err == nil {
		t.Error("无档案时应返回错误")
	}

	// 无效域名应拒绝创建
	if _, err := NewCrawlTask("https://example.com", config, []ProfileName{ProfileDefault}); err == nil {
		t.Error("带协议的域名应返回错误")
	}
}

func TestCrawlTask_JSON(t *testing.T) {
	task, err := NewCrawlTask("example.com", validConfig(), []ProfileName{ProfileDefault, ProfileIOS})
	if err != nil {
		t.Fatalf("NewCrawlTask() error = %v", err)
	}

	jsonData, err := task.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded CrawlTask
	if err := decoded.FromJSON(jsonData); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}

	if decoded.ID != task.ID {
		t.Errorf("解码后的ID不匹配: got %v, want %v", decoded.ID, task.ID)
	}

	if len(decoded.Profiles) != 2 {
		t.Errorf("解码后的Profiles长度不匹配: got %v, want 2", len(decoded.Profiles))
	}
}

func TestTaskStats_Merge(t *testing.T) {
	a := TaskStats{VisitedURLs: 10, SavedPages: 8, TotalSize: 1024}
	b := TaskStats{VisitedURLs: 5, SavedPages: 3, FailedPages: 2, TotalSize: 512}

	a.Merge(b)

	if a.VisitedURLs != 15 {
		t.Errorf("VisitedURLs = %v, want 15", a.VisitedURLs)
	}
	if a.SavedPages != 11 {
		t.Errorf("SavedPages = %v, want 11", a.SavedPages)
	}
	if a.FailedPages != 2 {
		t.Errorf("FailedPages = %v, want 2", a.FailedPages)
	}
	if a.TotalSize != 1536 {
		t.Errorf("TotalSize = %v, want 1536", a.TotalSize)
	}
}

func TestPage_ValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"正常大小", 1024 * 1024, false}, // 1MB
		{"最大大小", MaxPageSize, false}, // 50MB
		{"零大小", 0, true},
		{"负数大小", -1, true},
		{"超过最大", MaxPageSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &Page{Size: tt.size}
			err := page.ValidateSize()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLookupProfile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ProfileName
		wantErr bool
	}{
		{"默认档案", "DEFAULT", ProfileDefault, false},
		{"iOS档案", "IOS", ProfileIOS, false},
		{"Android档案", "ANDROID", ProfileAndroid, false},
		{"小写名称", "ios", ProfileIOS, false},
		{"未知档案", "WINDOWS", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LookupProfile(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("LookupProfile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && p.Name != tt.want {
				t.Errorf("LookupProfile().Name = %v, want %v", p.Name, tt.want)
			}
			if !tt.wantErr && p.UserAgent == "" {
				t.Error("UserAgent不应为空")
			}
		})
	}
}

func TestBuiltinProfiles(t *testing.T) {
	// 移动端档案应设置设备仿真参数
	for _, name := range []ProfileName{ProfileIOS, ProfileAndroid} {
		p := BuiltinProfiles[name]
		if !p.Mobile {
			t.Errorf("档案 %s 应标记为移动端", name)
		}
		if p.ViewportWidth <= 0 || p.ViewportHeight <= 0 {
			t.Errorf("档案 %s 视口尺寸无效", name)
		}
	}

	if BuiltinProfiles[ProfileDefault].Mobile {
		t.Error("默认档案不应标记为移动端")
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	tests := []struct {
		name    string
		headers CliHeaders
		wantErr bool
		check   func(t *testing.T, got map[string][]string)
	}{
		{
			name:    "单个头部",
			headers: CliHeaders{"X-Custom: value1"},
			check: func(t *testing.T, got map[string][]string) {
				if got["X-Custom"][0] != "value1" {
					t.Errorf("X-Custom = %v, want value1", got["X-Custom"])
				}
			},
		},
		{
			name:    "值含冒号",
			headers: CliHeaders{"Referer: https://example.com"},
			check: func(t *testing.T, got map[string][]string) {
				if got["Referer"][0] != "https://example.com" {
					t.Errorf("Referer = %v", got["Referer"])
				}
			},
		},
		{
			name:    "缺少冒号",
			headers: CliHeaders{"InvalidHeader"},
			wantErr: true,
		},
		{
			name:    "名称为空",
			headers: CliHeaders{": value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.headers.Parse()
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && err == nil {
				tt.check(t, got)
			}
		})
	}
}

func TestCheckpoint_SaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	filepath := tempDir + "/" + CheckpointFilename("example.com")

	checkpoint := &Checkpoint{
		TaskID:  "test-task-123",
		Domain:  "example.com",
		RootURL: "https://www.example.com/",
		VisitedURLs: map[string][]string{
			"DEFAULT": {"https://www.example.com/", "https://www.example.com/about"},
		},
		PendingURLs: map[string][]URLItem{
			"DEFAULT": {{URL: "https://www.example.com/contact", Depth: 3}},
		},
		SavedHashes: map[string][]string{"DEFAULT": {"abc123"}},
		Stats:       TaskStats{VisitedURLs: 2, SavedPages: 2},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Config:      validConfig(),
	}

	if err := checkpoint.SaveToFile(filepath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadCheckpointFromFile(filepath)
	if err != nil {
		t.Fatalf("LoadCheckpointFromFile() error = %v", err)
	}

	if loaded.TaskID != checkpoint.TaskID {
		t.Errorf("TaskID不匹配: got %v, want %v", loaded.TaskID, checkpoint.TaskID)
	}

	if loaded.Domain != checkpoint.Domain {
		t.Errorf("Domain不匹配: got %v, want %v", loaded.Domain, checkpoint.Domain)
	}

	if len(loaded.VisitedURLs["DEFAULT"]) != 2 {
		t.Errorf("VisitedURLs长度不匹配: got %v, want 2", len(loaded.VisitedURLs["DEFAULT"]))
	}

	if len(loaded.PendingURLs["DEFAULT"]) != 1 {
		t.Fatalf("PendingURLs长度不匹配: got %v, want 1", len(loaded.PendingURLs["DEFAULT"]))
	}

	// 待爬项的深度要完整往返, 恢复后从中断处继续
	if got := loaded.PendingURLs["DEFAULT"][0].Depth; got != 3 {
		t.Errorf("待爬项深度不匹配: got %v, want 3", got)
	}

	if len(loaded.SavedHashes["DEFAULT"]) != 1 {
		t.Errorf("SavedHashes长度不匹配: got %v, want 1", len(loaded.SavedHashes["DEFAULT"]))
	}

	if loaded.Stats.SavedPages != 2 {
		t.Errorf("Stats.SavedPages不匹配: got %v, want 2", loaded.Stats.SavedPages)
	}
}

func TestCheckpointFilename(t *testing.T) {
	if got := CheckpointFilename("example.com"); got != "checkpoint_example.com.json" {
		t.Errorf("CheckpointFilename() = %v", got)
	}
}
