// 包 aggregate 负责多站点编排：
// - 每个站点一个 Scraper，各自的命名空间与已存 id 集合
// - 固定大小的并发池执行，站点之间互不共享可变状态
// - 单站点失败只记录，不影响其它站点
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"go-site-crawler/internal/logx"
	"go-site-crawler/internal/model"
	"go-site-crawler/internal/store"
	"go-site-crawler/internal/wordpress"
)

// Options 为每个站点共用的抓取参数。
type Options struct {
	Workers   int
	StartPage int
	PageSize  int
	MaxPages  int // 0 表示不限
}

// Runner 聚合执行器，持有站点列表/存储/HTTP 客户端。
type Runner struct {
	sites []string
	store store.Store
	get   wordpress.Getter
	opts  Options
}

// SiteReport 为单个站点的结果。
type SiteReport struct {
	Site     model.Site
	Stats    wordpress.Stats
	Duration time.Duration
	Err      error
}

// New 创建 Runner。
func New(sites []string, st store.Store, get wordpress.Getter, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{sites: sites, store: st, get: get, opts: opts}
}

// Run 并发抓取全部站点，返回与输入顺序一致的报告；
// 若有站点失败，error 汇总全部失败站点。
func (r *Runner) Run(ctx context.Context) ([]SiteReport, error) {
	reports := make([]SiteReport, len(r.sites))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, raw := range r.sites {
		i, raw := i, raw
		g.Go(func() error {
			reports[i] = r.scrapeSite(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, rep := range reports {
		if rep.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rep.Site.BaseURL, rep.Err))
		}
	}
	logx.Infof("全部站点完成：成功 %d，失败 %d", len(reports)-len(errs), len(errs))
	return reports, errors.Join(errs...)
}

// scrapeSite 处理单个站点：建 Scraper→逐页抓取→落库。
func (r *Runner) scrapeSite(ctx context.Context, raw string) SiteReport {
	start := time.Now()
	rep := SiteReport{Site: model.NewSite(raw)}
	ctx = logx.With(ctx, slog.String("site", rep.Site.Namespace))
	logx.InfoCtx(ctx, "开始抓取：%s", raw)

	s, err := wordpress.NewScraper(ctx, r.get, r.store, raw)
	if err != nil {
		rep.Err = err
		rep.Duration = time.Since(start)
		logx.ErrorCtx(ctx, "初始化失败：%v", err)
		return rep
	}
	logx.InfoCtx(ctx, "库中已有 %d 篇文章", s.Seen())

	rep.Stats, rep.Err = s.FetchAllPages(ctx, r.opts.StartPage, r.opts.PageSize, r.opts.MaxPages)
	rep.Duration = time.Since(start)
	if rep.Err != nil {
		logx.ErrorCtx(ctx, "抓取中止：%v", rep.Err)
		return rep
	}
	logx.InfoCtx(ctx, "抓取完成：%d 页，%d 篇，新增 %d，耗时 %s",
		rep.Stats.Pages, rep.Stats.Posts, rep.Stats.Inserted, rep.Duration.Round(time.Millisecond))
	return rep
}
