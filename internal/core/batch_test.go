package core

import (
	"context"
	"testing"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

func TestBatchCrawler_CancelledContext(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	bc := NewBatchCrawler(config, models.ModeStatic, []models.ProfileName{models.ProfileDefault}, 0, true, nil)

	// 中断后即使continue-on-error开启, 剩余域名也不再处理
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := bc.CrawlBatch(ctx, []string{"first.example.com", "second.example.com"})
	if err != nil {
		t.Fatalf("CrawlBatch() error = %v", err)
	}

	if len(summary.Results) != 0 {
		t.Errorf("取消后处理的域名数 = %v, want 0", len(summary.Results))
	}
	if summary.SuccessCount != 0 || summary.FailCount != 0 {
		t.Errorf("取消后不应有成功或失败计数: success=%v fail=%v", summary.SuccessCount, summary.FailCount)
	}
}
