package wordpress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go-site-crawler/internal/logx"
	"go-site-crawler/internal/model"
	"go-site-crawler/internal/store"
)

var ErrInvalidMaxPages = errors.New("max pages must be >= 0")

// Scraper 抓取单个站点并写入该站点的命名空间。
type Scraper struct {
	site   model.Site
	client *Client
	coll   store.Collection
	// 启动时从存储载入；当前仅用于统计，不参与跳过请求
	seen map[string]struct{}
}

// Stats 为一次 FetchAllPages 的汇总。
type Stats struct {
	Pages      int  // 已落库的页数
	Posts      int  // 抓取到的文章数
	Inserted   int  // 新写入
	Duplicates int  // 因重复键跳过
	Exhausted  bool // 因空页结束（否则为达到最大页码）
}

// NewScraper 打开站点命名空间并载入已存储的 id。
func NewScraper(ctx context.Context, get Getter, st store.Store, baseURL string) (*Scraper, error) {
	site := model.NewSite(baseURL)
	if site.Namespace == "" {
		return nil, fmt.Errorf("no host in site url %q", baseURL)
	}
	coll, err := st.Collection(ctx, site.Namespace)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", site.Namespace, err)
	}
	ids, err := coll.DistinctIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ids %s: %w", site.Namespace, err)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return &Scraper{site: site, client: NewClient(get, baseURL), coll: coll, seen: seen}, nil
}

func (s *Scraper) Site() model.Site { return s.site }

// Seen 返回启动时已存储的文章数。
func (s *Scraper) Seen() int { return len(s.seen) }

// FetchAllPages 从 start 页开始顺序抓取，每页先落库再请求下一页；
// 遇到空页或页码超过 maxPages（0 表示不限）时停止。
func (s *Scraper) FetchAllPages(ctx context.Context, start, pageSize, maxPages int) (Stats, error) {
	var st Stats
	if maxPages < 0 {
		return st, fmt.Errorf("%w: got %d", ErrInvalidMaxPages, maxPages)
	}
	ctx = logx.With(ctx, slog.String("site", s.site.Namespace))
	for page := start; maxPages == 0 || page <= maxPages; page++ {
		posts, err := s.client.FetchPage(ctx, page, pageSize)
		if err != nil {
			return st, fmt.Errorf("%s page %d: %w", s.site.Namespace, page, err)
		}
		if len(posts) == 0 {
			logx.InfoCtx(ctx, "第 %d 页没有结果", page)
			st.Exhausted = true
			return st, nil
		}
		res, err := s.SavePosts(ctx, posts)
		if err != nil {
			return st, fmt.Errorf("%s page %d: %w", s.site.Namespace, page, err)
		}
		st.Pages++
		st.Posts += len(posts)
		st.Inserted += res.Inserted
		st.Duplicates += res.Duplicates
		total, err := s.coll.Count(ctx)
		if err != nil {
			return st, fmt.Errorf("%s count: %w", s.site.Namespace, err)
		}
		logx.InfoCtx(ctx, "第 %d 页已保存：%d 篇，新增 %d，库中共 %d 篇", page, len(posts), res.Inserted, total)
	}
	logx.InfoCtx(ctx, "已达到最大页码 %d", maxPages)
	return st, nil
}

// SavePosts 以 id 为主键无序批量写入；重复键只记录日志，其它存储错误向上返回。
func (s *Scraper) SavePosts(ctx context.Context, posts []model.Post) (store.InsertResult, error) {
	if len(posts) == 0 {
		return store.InsertResult{}, nil
	}
	res, err := s.coll.InsertMany(ctx, posts)
	if store.IsDuplicate(err) {
		logx.InfoCtx(ctx, "跳过 %d 篇重复文章", res.Duplicates)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("save posts: %w", err)
	}
	return res, nil
}
