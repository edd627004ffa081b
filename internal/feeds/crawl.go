// 包 feeds 负责分页订阅抓取：
// - 按模板逐页请求（page=1,2,3...），遇到空页停止
// - 使用 gofeed 解析 RSS/Atom 并归一化为 model.FeedItem
// - 每页合并去重后整体重写输出文件
package feeds

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"go-site-crawler/internal/export"
	"go-site-crawler/internal/logx"
	"go-site-crawler/internal/model"
)

// PagePlaceholder 为模板中的页码占位符。
const PagePlaceholder = "{page}"

// Getter 为抓取所需的最小 HTTP 能力。
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Crawler 分页抓取一个订阅源并累积到单个 JSON 文件。
type Crawler struct {
	get      Getter
	template string
	output   string
	parser   *gofeed.Parser
}

// Result 为一次抓取的汇总。
type Result struct {
	Pages int // 含结束的空页
	Added int
	Total int
}

// New 创建 Crawler。
func New(get Getter, template, output string) *Crawler {
	return &Crawler{get: get, template: template, output: output, parser: gofeed.NewParser()}
}

// PageURL 生成第 n 页地址：替换 {page}，无占位符时追加 page 查询参数。
func PageURL(template string, n int) (string, error) {
	if strings.Contains(template, PagePlaceholder) {
		return strings.ReplaceAll(template, PagePlaceholder, strconv.Itoa(n)), nil
	}
	u, err := url.Parse(template)
	if err != nil {
		return "", fmt.Errorf("parse feed url %s: %w", template, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Crawl 从第 1 页开始抓取直到某页没有条目；任何请求或解析错误都会中止。
// 此前已写入的页保留在输出文件中。
func (c *Crawler) Crawl(ctx context.Context) (Result, error) {
	var res Result
	all, err := export.LoadItems(c.output)
	if err != nil {
		return res, fmt.Errorf("load existing items: %w", err)
	}
	seen := make(map[string]struct{}, len(all))
	for _, it := range all {
		seen[it.Key()] = struct{}{}
	}
	logx.Infof("已载入 %d 条历史条目：%s", len(all), c.output)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		u, err := PageURL(c.template, page)
		if err != nil {
			return res, err
		}
		body, err := c.get.Get(ctx, u)
		if err != nil {
			return res, fmt.Errorf("fetch page %d: %w", page, err)
		}
		items, err := c.parseItems(body)
		if err != nil {
			return res, fmt.Errorf("parse page %d: %w", page, err)
		}
		res.Pages = page
		if len(items) == 0 {
			logx.Infof("第 %d 页没有条目，抓取结束", page)
			break
		}
		added := 0
		for _, it := range items {
			k := it.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, it)
			added++
		}
		if err := export.SaveItems(c.output, all); err != nil {
			return res, fmt.Errorf("save page %d: %w", page, err)
		}
		res.Added += added
		logx.Infof("[+] 第 %d 页：%d 条，新增 %d（累计 %d）", page, len(items), added, len(all))
	}
	res.Total = len(all)
	return res, nil
}

// parseItems 解析订阅文档，按文档顺序返回条目。
func (c *Crawler) parseItems(body []byte) ([]model.FeedItem, error) {
	if err := checkWellFormed(body); err != nil {
		return nil, err
	}
	feed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	out := make([]model.FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		cats := make([]string, 0, len(it.Categories))
		cats = append(cats, it.Categories...)
		out = append(out, model.FeedItem{
			Title:       optional(it.Title),
			Link:        optional(it.Link),
			Description: optional(it.Description),
			PubDate:     optional(it.Published),
			GUID:        optional(it.GUID),
			Categories:  cats,
		})
	}
	return out, nil
}

// checkWellFormed 以严格模式扫描整个文档：gofeed 对标签不匹配、未定义实体等会静默容错。
func checkWellFormed(body []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed xml: %w", err)
		}
	}
}

// optional 将空字符串视为缺失。
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
