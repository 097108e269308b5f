package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadDomainsFromFile(t *testing.T) {
	t.Run("正常文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "domains.txt")
		content := `# 目标域名列表
example.com

https://www.second.com/page
invalid_domain_without_dot
third.org
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		domains, err := ReadDomainsFromFile(path)
		if err != nil {
			t.Fatalf("ReadDomainsFromFile() error = %v", err)
		}

		want := []string{"example.com", "second.com", "third.org"}
		if len(domains) != len(want) {
			t.Fatalf("域名数 = %v, want %v (got: %v)", len(domains), len(want), domains)
		}
		for i, w := range want {
			if domains[i] != w {
				t.Errorf("domains[%d] = %v, want %v", i, domains[i], w)
			}
		}
	})

	t.Run("全部无效", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.txt")
		if err := os.WriteFile(path, []byte("# 只有注释\n\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := ReadDomainsFromFile(path); err == nil {
			t.Error("没有有效域名时应返回错误")
		}
	})

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := ReadDomainsFromFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
			t.Error("文件不存在时应返回错误")
		}
	})
}
