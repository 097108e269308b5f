package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

func TestTokenize(t *testing.T) {
	tokens := tokenize("Hello World! <div class=\"nav\">Hello</div> 页面 x 42")

	// 重复词只计一次, 单字符token被过滤
	expected := []string{"hello", "world", "div", "class", "nav", "页面", "42"}
	for _, want := range expected {
		if !tokens[want] {
			t.Errorf("期望token %q 存在, 实际tokens: %v", want, tokens)
		}
	}
	if tokens["x"] {
		t.Error("单字符token应被过滤")
	}
	if tokens["Hello"] {
		t.Error("token应统一为小写")
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"完全相同", "hello world page", "hello world page", 1.0},
		{"完全不同", "alpha beta gamma", "delta epsilon zeta", 0.0},
		{"两者为空", "", "", 1.0},
		{"一方为空", "hello world", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccardSimilarity(tokenize(tt.a), tokenize(tt.b))
			if got != tt.want {
				t.Errorf("jaccardSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("部分重叠", func(t *testing.T) {
		// {aa, bb, cc} vs {bb, cc, dd}: 交集2, 并集4
		got := jaccardSimilarity(tokenize("aa bb cc"), tokenize("bb cc dd"))
		if got != 0.5 {
			t.Errorf("jaccardSimilarity() = %v, want 0.5", got)
		}
	})
}

func writeDiffPage(t *testing.T, dir, name, content string, url string, profile models.ProfileName) *models.Page {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	page := models.NewPage(url, profile, models.ModeStatic, 1)
	page.FilePath = path
	page.Size = int64(len(content))
	page.Hash = name // 测试中用文件名代替真实哈希, 保证互不相同
	return page
}

func TestDiffAnalyzer_Analyze(t *testing.T) {
	dir := t.TempDir()

	url1 := "https://www.example.com/"
	url2 := "https://www.example.com/about"

	pages := []*models.Page{
		// url1: 两个档案内容几乎一致
		writeDiffPage(t, dir, "p1_default", "<html>welcome home page content</html>", url1, models.ProfileDefault),
		writeDiffPage(t, dir, "p1_ios", "<html>welcome home page content</html>", url1, models.ProfileIOS),
		// url2: 移动端内容差异显著
		writeDiffPage(t, dir, "p2_default", "<html>desktop about corporate history staff directory</html>", url2, models.ProfileDefault),
		writeDiffPage(t, dir, "p2_ios", "<html>mobile lite version</html>", url2, models.ProfileIOS),
		// 只有单档案的URL不参与比较
		writeDiffPage(t, dir, "p3_default", "<html>only one profile</html>", "https://www.example.com/solo", models.ProfileDefault),
	}

	analyzer := NewDiffAnalyzer(0.8, 4)
	result, err := analyzer.Analyze(context.Background(), pages)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.ComparedURLs != 2 {
		t.Errorf("ComparedURLs = %v, want 2", result.ComparedURLs)
	}

	if result.IdenticalPages != 1 {
		t.Errorf("IdenticalPages = %v, want 1", result.IdenticalPages)
	}

	if len(result.DivergentPages) != 1 {
		t.Fatalf("DivergentPages长度 = %v, want 1", len(result.DivergentPages))
	}

	divergent := result.DivergentPages[0]
	if divergent.URL != url2 {
		t.Errorf("差异页面URL = %v, want %v", divergent.URL, url2)
	}
	if divergent.Similarity >= 0.8 {
		t.Errorf("差异页面相似度 = %v, 应低于阈值0.8", divergent.Similarity)
	}
}

func TestDiffAnalyzer_HashShortcut(t *testing.T) {
	url := "https://www.example.com/"

	// 哈希相同时不读文件, 文件路径指向不存在的位置也应成功
	a := models.NewPage(url, models.ProfileDefault, models.ModeStatic, 1)
	a.FilePath = "/nonexistent/a.html"
	a.Hash = "samehash"
	b := models.NewPage(url, models.ProfileIOS, models.ModeStatic, 1)
	b.FilePath = "/nonexistent/b.html"
	b.Hash = "samehash"

	analyzer := NewDiffAnalyzer(0.8, 2)
	result, err := analyzer.Analyze(context.Background(), []*models.Page{a, b})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.IdenticalPages != 1 {
		t.Errorf("IdenticalPages = %v, want 1", result.IdenticalPages)
	}
}

func TestDiffAnalyzer_SkipsUnsavedPages(t *testing.T) {
	url := "https://www.example.com/"

	// FilePath为空表示未落盘, 不参与比较
	a := models.NewPage(url, models.ProfileDefault, models.ModeStatic, 1)
	b := models.NewPage(url, models.ProfileIOS, models.ModeStatic, 1)

	analyzer := NewDiffAnalyzer(0.8, 2)
	result, err := analyzer.Analyze(context.Background(), []*models.Page{a, b})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.ComparedURLs != 0 {
		t.Errorf("ComparedURLs = %v, want 0", result.ComparedURLs)
	}
}
