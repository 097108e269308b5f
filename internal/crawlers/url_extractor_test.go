package crawlers

import (
	"testing"
)

func TestURLExtractor_NormalizeHref(t *testing.T) {
	root := "https://www.example.com/"
	q := NewURLQueue(root, 3)
	defer q.Close()
	e := NewURLExtractor(q, root, 3)

	tests := []struct {
		name string
		href string
		want string
	}{
		{"根相对链接", "/about", "https://www.example.com/about"},
		{"根相对多级路径", "/news/2024/1", "https://www.example.com/news/2024/1"},
		{"入口URL前缀的绝对链接", "https://www.example.com/contact", "https://www.example.com/contact"},
		{"相对路径不跟进", "about.html", ""},
		{"外站绝对链接", "https://other.com/page", ""},
		{"同域名其他子域", "https://api.example.com/v1", ""},
		{"javascript伪协议", "javascript:void(0)", ""},
		{"mailto链接", "mailto:admin@example.com", ""},
		{"锚点链接", "#section", ""},
		{"空href", "", ""},
		{"空白href", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.NormalizeHref(tt.href); got != tt.want {
				t.Errorf("NormalizeHref(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}

func TestURLExtractor_ExtractFromHTML(t *testing.T) {
	root := "https://www.example.com/"
	q := NewURLQueue(root, 3)
	defer q.Close()
	e := NewURLExtractor(q, root, 3)

	htmlContent := `<html><body>
		<a href="/about">关于</a>
		<a href="/news/1">新闻</a>
		<a href="https://www.example.com/contact">联系</a>
		<a href="https://other.com/external">外站</a>
		<a href="relative.html">相对路径</a>
		<a href="/about">重复链接</a>
		<a name="no-href">无href属性</a>
	</body></html>`

	links, err := e.ExtractFromHTML(htmlContent)
	if err != nil {
		t.Fatalf("ExtractFromHTML() error = %v", err)
	}

	want := []string{
		"https://www.example.com/about",
		"https://www.example.com/news/1",
		"https://www.example.com/contact",
	}

	if len(links) != len(want) {
		t.Fatalf("提取链接数 = %v, want %v (got: %v)", len(links), len(want), links)
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("links[%d] = %v, want %v", i, links[i], w)
		}
	}
}

func TestURLExtractor_ExtractFromHTML_Malformed(t *testing.T) {
	root := "https://www.example.com/"
	q := NewURLQueue(root, 3)
	defer q.Close()
	e := NewURLExtractor(q, root, 3)

	// html.Parse对残缺HTML有容错, 不应报错
	links, err := e.ExtractFromHTML(`<a href="/ok">未闭合标签<div><a href="/two"`)
	if err != nil {
		t.Fatalf("ExtractFromHTML() error = %v", err)
	}
	if len(links) == 0 {
		t.Error("残缺HTML中的有效链接也应被提取")
	}
}

func TestURLExtractor_PushLinks(t *testing.T) {
	root := "https://www.example.com/"
	q := NewURLQueue(root, 2)
	defer q.Close()
	e := NewURLExtractor(q, root, 2)

	links := []string{
		"https://www.example.com/a",
		"https://www.example.com/b",
	}

	// 深度1的页面提取的链接进入深度2
	pushed := e.PushLinks(links, 1, root)
	if pushed != 2 {
		t.Errorf("PushLinks() = %v, want 2", pushed)
	}

	// 已达最大深度时不再入队
	pushed = e.PushLinks([]string{"https://www.example.com/c"}, 2, root)
	if pushed != 0 {
		t.Errorf("达到最大深度后PushLinks() = %v, want 0", pushed)
	}

	// 已入队的URL重复推送不计数 (仍未标记visited, 但visited检查在Push内)
	q.MarkVisited("https://www.example.com/a")
	pushed = e.PushLinks([]string{"https://www.example.com/a"}, 1, root)
	if pushed != 0 {
		t.Errorf("已访问URL重复推送PushLinks() = %v, want 0", pushed)
	}
}
