// 包 wordpress 抓取 WordPress REST 接口（/wp-json/wp/v2/posts 等）：
// - Client.FetchPage：单页请求与解析
// - Scraper.FetchAllPages：逐页抓取并立即落库
// - Scraper.SavePosts：无序批量写入，仅吞掉重复键
package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"go-site-crawler/internal/fetch"
	"go-site-crawler/internal/model"
)

// MaxPageSize 为接口允许的 per_page 上限。
const MaxPageSize = 100

// 接口对超出范围的页码返回 400 及该错误码。
const codeInvalidPageNumber = "rest_post_invalid_page_number"

var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = fmt.Errorf("page size must be between 1 and %d", MaxPageSize)
	ErrMalformed       = errors.New("malformed response")
)

// Getter 为抓取所需的最小 HTTP 能力。
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Client 请求单个站点的分页接口。
type Client struct {
	get  Getter
	base string
}

func NewClient(get Getter, baseURL string) *Client {
	return &Client{get: get, base: baseURL}
}

// PageURL 生成 {base}?page={n}&per_page={size}，保留 base 原有的查询参数。
func (c *Client) PageURL(page, pageSize int) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("parse base url %s: %w", c.base, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage 返回第 page 页的文章；nil 表示已无更多数据。
// 参数越界时不发起任何请求。
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) ([]model.Post, error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPageSize, pageSize)
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}
	u, err := c.PageURL(page, pageSize)
	if err != nil {
		return nil, err
	}
	body, err := c.get.Get(ctx, u)
	if err != nil {
		if pastLastPage(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodePosts(body)
}

// pastLastPage 识别 WordPress 对越界页码的 400 响应。
func pastLastPage(err error) bool {
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		return false
	}
	return gjson.GetBytes(se.Body, "code").String() == codeInvalidPageNumber
}

// decodePosts 解析 JSON 数组；null 或空数组返回 nil。每个元素必须为带 id 的对象。
func decodePosts(body []byte) ([]model.Post, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	r := gjson.ParseBytes(body)
	if r.Type == gjson.Null {
		return nil, nil
	}
	if !r.IsArray() {
		return nil, fmt.Errorf("%w: expected json array", ErrMalformed)
	}
	var (
		out    []model.Post
		bad    error
		offset int
	)
	r.ForEach(func(_, v gjson.Result) bool {
		defer func() { offset++ }()
		if !v.IsObject() {
			bad = fmt.Errorf("%w: element %d is not an object", ErrMalformed, offset)
			return false
		}
		id := v.Get("id")
		var key string
		switch id.Type {
		case gjson.Number:
			key = id.Raw
		case gjson.String:
			key = id.Str
		}
		if key == "" {
			bad = fmt.Errorf("%w: element %d has no usable id", ErrMalformed, offset)
			return false
		}
		out = append(out, model.Post{ID: key, Raw: []byte(v.Raw)})
		return true
	})
	if bad != nil {
		return nil, bad
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
