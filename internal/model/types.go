// 包 model 定义两个爬虫共享的数据模型（订阅条目/WordPress 文章/站点）。
package model

import (
	"encoding/json"
	"net/url"
)

// FeedItem 为一条订阅条目；缺失字段序列化为 null。
type FeedItem struct {
	Title       *string  `json:"title"`
	Link        *string  `json:"link"`
	Description *string  `json:"description"`
	PubDate     *string  `json:"pubDate"`
	GUID        *string  `json:"guid"`
	Categories  []string `json:"categories"`
}

// Key 返回条目的去重键：guid 优先，其次 link，最后退化为整条 JSON。
func (it FeedItem) Key() string {
	if it.GUID != nil {
		return "guid:" + *it.GUID
	}
	if it.Link != nil {
		return "link:" + *it.Link
	}
	b, _ := json.Marshal(it)
	return "raw:" + string(b)
}

// Post 为 WordPress REST 接口返回的一篇文章：
// ID 为规范化后的 "id" 字段（数字取原文本，字符串取值），Raw 为原始 JSON。
type Post struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"raw"`
}

// Site 描述一个待抓取的 WordPress 站点。
type Site struct {
	BaseURL   string `json:"base_url"`
	Namespace string `json:"namespace"`
}

// NewSite 由基础地址构造站点，命名空间取 URL 的 host（含端口）。
func NewSite(raw string) Site {
	return Site{BaseURL: raw, Namespace: HostOf(raw)}
}

// HostOf 提取链接的主机名（含端口）；无法解析或没有 host 时返回空串。
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
