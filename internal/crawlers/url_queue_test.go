package crawlers

import (
	"context"
	"testing"
	"time"
)

func TestURLQueue_Push(t *testing.T) {
	root := "https://www.example.com/"

	tests := []struct {
		name    string
		url     string
		depth   int
		wantErr bool
	}{
		{"入口URL", "https://www.example.com/", 1, false},
		{"站内路径", "https://www.example.com/about", 1, false},
		{"深度达到上限", "https://www.example.com/deep", 3, false},
		{"深度超过上限", "https://www.example.com/toodeep", 4, true},
		{"外站链接", "https://other.example.org/page", 1, true},
		{"同域名非www前缀", "https://api.example.com/page", 1, true},
		{"非HTTP协议", "ftp://www.example.com/file", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewURLQueue(root, 3)
			defer q.Close()

			err := q.Push(tt.url, tt.depth, root)
			if (err != nil) != tt.wantErr {
				t.Errorf("Push() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestURLQueue_PushVisited(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	defer q.Close()

	url := "https://www.example.com/page"
	q.MarkVisited(url)

	if err := q.Push(url, 1, ""); err == nil {
		t.Error("已访问的URL应被拒绝")
	}
}

func TestURLQueue_PopOrder(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	defer q.Close()

	urls := []string{
		"https://www.example.com/a",
		"https://www.example.com/b",
		"https://www.example.com/c",
	}
	for _, u := range urls {
		if err := q.Push(u, 1, ""); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	ctx := context.Background()
	for _, want := range urls {
		item, ok := q.Pop(ctx)
		if !ok {
			t.Fatal("Pop() 返回失败")
		}
		if item.URL != want {
			t.Errorf("Pop() = %v, want %v", item.URL, want)
		}
	}
}

func TestURLQueue_PopContextCancel(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("取消后Pop应返回false")
		}
	case <-time.After(time.Second):
		t.Error("取消后Pop应立即返回")
	}
}

func TestURLQueue_InScope(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	defer q.Close()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"入口URL本身", "https://www.example.com/", true},
		{"去掉尾斜杠的入口", "https://www.example.com", true},
		{"站内路径", "https://www.example.com/news/1", true},
		{"外站", "https://evil.com/", false},
		{"协议不同", "http://www.example.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.InScope(tt.url); got != tt.want {
				t.Errorf("InScope(%s) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestURLQueue_VisitedRoundTrip(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	defer q.Close()

	q.MarkVisited("https://www.example.com/a")
	q.MarkVisited("https://www.example.com/b")

	visited := q.Visited()
	if len(visited) != 2 {
		t.Fatalf("Visited()长度 = %v, want 2", len(visited))
	}

	// 恢复到新队列后, 对应URL应拒绝再次入队
	restored := NewURLQueue("https://www.example.com/", 3)
	defer restored.Close()
	restored.RestoreVisited(visited)

	if !restored.IsVisited("https://www.example.com/a") {
		t.Error("恢复后URL应标记为已访问")
	}
	if err := restored.Push("https://www.example.com/a", 1, ""); err == nil {
		t.Error("恢复的已访问URL应被拒绝")
	}
}

func TestURLQueue_DrainPending(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	defer q.Close()

	for _, u := range []string{
		"https://www.example.com/x",
		"https://www.example.com/y",
	} {
		if err := q.Push(u, 2, "https://www.example.com/"); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	items := q.DrainPending()
	if len(items) != 2 {
		t.Errorf("DrainPending()长度 = %v, want 2", len(items))
	}
	if q.PendingCount() != 0 {
		t.Errorf("排空后PendingCount = %v, want 0", q.PendingCount())
	}
	if items[0].Depth != 2 {
		t.Errorf("排空条目应保留深度信息: got %v", items[0].Depth)
	}
}

func TestURLQueue_Close(t *testing.T) {
	q := NewURLQueue("https://www.example.com/", 3)
	q.Close()

	if err := q.Push("https://www.example.com/after", 1, ""); err == nil {
		t.Error("关闭后Push应返回错误")
	}

	// 重复关闭不应panic
	q.Close()

	if _, ok := q.Pop(context.Background()); ok {
		t.Error("关闭后Pop应返回false")
	}
}
