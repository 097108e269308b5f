package core

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// DiffAnalyzer 跨档案差异分析器
// 同一URL在不同档案下抓到的页面两两比较,相似度低于阈值的判定为分化页面
// 用于发现按设备类型返回不同内容的站点
type DiffAnalyzer struct {
	threshold float64 // 相似度阈值 (0.0-1.0)
	workers   int     // 并发分析数
}

// NewDiffAnalyzer 创建差异分析器
func NewDiffAnalyzer(threshold float64, workers int) *DiffAnalyzer {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	if workers < 1 {
		workers = 8
	}
	return &DiffAnalyzer{
		threshold: threshold,
		workers:   workers,
	}
}

// profilePair 待比较的档案页面对
type profilePair struct {
	url  string
	a, b *models.Page
}

// Analyze 对所有已保存页面执行跨档案差异分析
// 只有同一URL存在两个以上档案版本时才会比较
func (da *DiffAnalyzer) Analyze(ctx context.Context, pages []*models.Page) (*models.DiffAnalysisResult, error) {
	startTime := time.Now()

	// 按URL分组, 每组按档案归类
	byURL := make(map[string]map[models.ProfileName]*models.Page)
	for _, p := range pages {
		if p.FilePath == "" {
			continue
		}
		if byURL[p.URL] == nil {
			byURL[p.URL] = make(map[models.ProfileName]*models.Page)
		}
		byURL[p.URL][p.Profile] = p
	}

	// 生成比较对 (按档案名排序保证结果稳定)
	var pairs []profilePair
	for pageURL, byProfile := range byURL {
		if len(byProfile) < 2 {
			continue
		}
		names := make([]string, 0, len(byProfile))
		for name := range byProfile {
			names = append(names, string(name))
		}
		sort.Strings(names)
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				pairs = append(pairs, profilePair{
					url: pageURL,
					a:   byProfile[models.ProfileName(names[i])],
					b:   byProfile[models.ProfileName(names[j])],
				})
			}
		}
	}

	result := &models.DiffAnalysisResult{
		Enabled:   true,
		Threshold: da.threshold,
	}

	if len(pairs) == 0 {
		result.AnalysisDuration = time.Since(startTime).Seconds()
		utils.Infof("差异分析: 无可比较的跨档案页面")
		return result, nil
	}

	utils.Infof("🔬 差异分析启动: %d 对页面, 阈值 %.2f, 并发 %d", len(pairs), da.threshold, da.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(da.workers)

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			similarity, err := da.comparePages(pair.a, pair.b)
			if err != nil {
				utils.Warnf("页面比较失败 [%s]: %v", pair.url, err)
				return nil // 单对失败不中断整体分析
			}

			mu.Lock()
			defer mu.Unlock()
			result.ComparedURLs++
			if similarity >= 0.9999 {
				result.IdenticalPages++
			}
			if similarity < da.threshold {
				result.DivergentCount++
				result.DivergentPages = append(result.DivergentPages, models.DivergentPage{
					URL:        pair.url,
					ProfileA:   pair.a.Profile,
					ProfileB:   pair.b.Profile,
					Similarity: similarity,
					SizeA:      pair.a.Size,
					SizeB:      pair.b.Size,
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 结果按URL排序,保证报告稳定
	sort.Slice(result.DivergentPages, func(i, j int) bool {
		return result.DivergentPages[i].URL < result.DivergentPages[j].URL
	})

	result.AnalysisDuration = time.Since(startTime).Seconds()
	utils.Infof("✅ 差异分析完成: 比较%d对, 完全一致%d, 分化%d, 耗时%.2f秒",
		result.ComparedURLs, result.IdenticalPages, result.DivergentCount, result.AnalysisDuration)

	return result, nil
}

// comparePages 比较两个页面文件,返回相似度
func (da *DiffAnalyzer) comparePages(a, b *models.Page) (float64, error) {
	// 哈希相同直接判定一致,省去读文件
	if a.Hash != "" && a.Hash == b.Hash {
		return 1.0, nil
	}

	contentA, err := os.ReadFile(a.FilePath)
	if err != nil {
		return 0, err
	}
	contentB, err := os.ReadFile(b.FilePath)
	if err != nil {
		return 0, err
	}

	return jaccardSimilarity(tokenize(string(contentA)), tokenize(string(contentB))), nil
}

// tokenize 将HTML文本切分为小写词元集合
// 按非字母数字字符切分,忽略长度小于2的词元
func tokenize(content string) map[string]bool {
	tokens := make(map[string]bool)
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len(f) >= 2 {
			tokens[f] = true
		}
	}
	return tokens
}

// jaccardSimilarity 计算两个词元集合的Jaccard相似度
// |A∩B| / |A∪B|, 两个空集合视为完全相同
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
