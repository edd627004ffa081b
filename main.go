// 命令行入口：
// - feed：分页抓取订阅源，累积写入单个 JSON 文件
// - wordpress：并发抓取多个 WordPress 站点的 REST 接口并落库
// 配置来自 settings.yaml（可选）、.env 与环境变量。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-site-crawler/internal/aggregate"
	"go-site-crawler/internal/config"
	"go-site-crawler/internal/feeds"
	"go-site-crawler/internal/fetch"
	"go-site-crawler/internal/logx"
	"go-site-crawler/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logx.Errorf("运行失败：%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		cfg        *config.Config
	)
	root := &cobra.Command{
		Use:           "crawler",
		Short:         "Paginated RSS feed and WordPress REST crawlers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			logx.Init(logx.Options{Level: c.LogLevel, Format: c.LogFormat, Locale: c.LogLocale, Color: c.LogColor})
			cfg = c
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "settings.yaml", "path to settings.yaml (optional)")
	root.AddCommand(newFeedCmd(&cfg), newWordPressCmd(&cfg))
	return root
}

func newHTTPClient(c *config.Config) (*fetch.Client, error) {
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  c.HTTP.ProxyHTTP,
		ProxyHTTPS: c.HTTP.ProxyHTTPS,
		Timeout:    c.HTTP.Timeout,
		Retry:      c.HTTP.Retry,
		UserAgent:  c.HTTP.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	return cl, nil
}

func newFeedCmd(cfg **config.Config) *cobra.Command {
	var output, template string
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch every page of an RSS feed into one JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg
			if template != "" {
				c.Feed.URLTemplate = template
			}
			if output != "" {
				c.Feed.Output = output
			}
			cl, err := newHTTPClient(c)
			if err != nil {
				return err
			}
			logx.Infof("开始抓取订阅：%s -> %s", c.Feed.URLTemplate, c.Feed.Output)
			res, err := feeds.New(cl, c.Feed.URLTemplate, c.Feed.Output).Crawl(cmd.Context())
			if err != nil {
				return err
			}
			logx.Infof("订阅抓取完成：%d 页，新增 %d，累计 %d", res.Pages, res.Added, res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "output JSON file (overrides FEED_OUTPUT)")
	cmd.Flags().StringVar(&template, "template", "", "feed URL template with {page} (overrides FEED_URL_TEMPLATE)")
	return cmd
}

func newWordPressCmd(cfg **config.Config) *cobra.Command {
	var (
		sites       []string
		databaseURL string
		maxPages    int
		workers     int
	)
	cmd := &cobra.Command{
		Use:   "wordpress",
		Short: "Scrape WordPress REST posts of every configured site into the document store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg
			wp := c.WordPress
			if len(sites) > 0 {
				wp.Sites = config.SiteList(sites)
			}
			if databaseURL != "" {
				wp.DatabaseURL = databaseURL
			}
			if cmd.Flags().Changed("max-pages") {
				wp.MaxPages = maxPages
			}
			if cmd.Flags().Changed("workers") {
				wp.Workers = workers
			}
			if len(wp.Sites) == 0 {
				return errors.New("no sites configured: set WORDPRESS_WEBSITES or --site")
			}
			if wp.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			if wp.MaxPages < 0 || wp.Workers < 1 {
				return fmt.Errorf("invalid --max-pages=%d or --workers=%d", wp.MaxPages, wp.Workers)
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, wp.DatabaseURL, wp.DatabaseName)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := st.Close(closeCtx); err != nil {
					logx.Warnf("关闭存储失败：%v", err)
				}
			}()
			cl, err := newHTTPClient(c)
			if err != nil {
				return err
			}

			logx.Infof("开始抓取 %d 个站点，并发=%d，每站最多 %d 页（0 为不限）", len(wp.Sites), wp.Workers, wp.MaxPages)
			_, err = aggregate.New(wp.Sites, st, cl, aggregate.Options{
				Workers:   wp.Workers,
				StartPage: wp.StartPage,
				PageSize:  wp.PageSize,
				MaxPages:  wp.MaxPages,
			}).Run(ctx)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&sites, "site", nil, "site REST endpoint, repeatable (overrides WORDPRESS_WEBSITES)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "store connection string (overrides DATABASE_URL)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "highest page number fetched per site, 0 = unbounded (overrides WORDPRESS_MAX_PAGES)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent sites (overrides WORDPRESS_WORKERS)")
	return cmd
}
