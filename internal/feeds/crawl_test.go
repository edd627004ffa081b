package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-site-crawler/internal/export"
	"go-site-crawler/internal/fetch"
	"go-site-crawler/internal/model"
)

func rssPage(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(n int) string {
	return fmt.Sprintf(`<item><title>post %d</title><link>https://ex.com/%d</link>`+
		`<description>d%d</description><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>`+
		`<guid>g%d</guid><category>news</category><category>c%d</category></item>`, n, n, n, n, n)
}

// feedServer 按页返回预设内容，超出范围返回空 channel。
func feedServer(t *testing.T, pages map[int]string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var n int
		_, _ = fmt.Sscanf(r.URL.Query().Get("page"), "%d", &n)
		body, ok := pages[n]
		if !ok {
			body = rssPage()
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *fetch.Client {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	return cl
}

func TestCrawl_StopsAtFirstEmptyPage(t *testing.T) {
	var calls int32
	srv := feedServer(t, map[int]string{1: rssPage(rssItem(1), rssItem(2))}, &calls)
	out := filepath.Join(t.TempDir(), "feed.json")

	res, err := New(newClient(t), srv.URL+"/feed?page={page}", out).Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Pages: 2, Added: 2, Total: 2}, res)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	items, err := export.LoadItems(out)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "post 1", *items[0].Title)
	assert.Equal(t, "g2", *items[1].GUID)
	assert.Equal(t, []string{"news", "c1"}, items[0].Categories)
}

func TestCrawl_PageOrderAcrossPages(t *testing.T) {
	var calls int32
	srv := feedServer(t, map[int]string{
		1: rssPage(rssItem(1), rssItem(2)),
		2: rssPage(rssItem(3)),
		3: rssPage(rssItem(4), rssItem(5)),
	}, &calls)
	out := filepath.Join(t.TempDir(), "feed.json")

	res, err := New(newClient(t), srv.URL+"/feed", out).Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Pages)

	items, err := export.LoadItems(out)
	require.NoError(t, err)
	var titles []string
	for _, it := range items {
		titles = append(titles, *it.Title)
	}
	assert.Equal(t, []string{"post 1", "post 2", "post 3", "post 4", "post 5"}, titles)
}

func TestCrawl_RerunAddsNoDuplicates(t *testing.T) {
	var calls int32
	srv := feedServer(t, map[int]string{1: rssPage(rssItem(1)), 2: rssPage(rssItem(2))}, &calls)
	out := filepath.Join(t.TempDir(), "feed.json")
	c := New(newClient(t), srv.URL+"/feed?page={page}", out)

	_, err := c.Crawl(context.Background())
	require.NoError(t, err)
	res, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 2, res.Total)
}

func TestCrawl_SeedsFromExistingFile(t *testing.T) {
	var calls int32
	srv := feedServer(t, map[int]string{1: rssPage(rssItem(1), rssItem(9))}, &calls)
	out := filepath.Join(t.TempDir(), "feed.json")
	old := "old"
	g := "g9"
	require.NoError(t, export.SaveItems(out, []model.FeedItem{
		{Title: &old, Categories: []string{}},
		{Title: &old, GUID: &g, Categories: []string{}},
	}))

	res, err := New(newClient(t), srv.URL+"/feed?page={page}", out).Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	items, err := export.LoadItems(out)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "old", *items[0].Title)
	assert.Equal(t, "post 1", *items[2].Title)
}

func TestCrawl_MissingFieldsAreNull(t *testing.T) {
	var calls int32
	srv := feedServer(t, map[int]string{1: rssPage(`<item><title>only</title></item>`)}, &calls)
	out := filepath.Join(t.TempDir(), "feed.json")

	_, err := New(newClient(t), srv.URL+"/?page={page}", out).Crawl(context.Background())
	require.NoError(t, err)
	items, err := export.LoadItems(out)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Link)
	assert.Nil(t, items[0].Description)
	assert.Nil(t, items[0].PubDate)
	assert.Nil(t, items[0].GUID)
	assert.Empty(t, items[0].Categories)
}

func TestCrawl_MalformedPageAbortsKeepingProgress(t *testing.T) {
	var calls int32
	srv := feedServer(t, map[int]string{
		1: rssPage(rssItem(1)),
		2: "this is not xml",
	}, &calls)
	out := filepath.Join(t.TempDir(), "feed.json")

	_, err := New(newClient(t), srv.URL+"/feed?page={page}", out).Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse page 2")

	items, err := export.LoadItems(out)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCrawl_BrokenXMLAborts(t *testing.T) {
	cases := map[string]string{
		"mismatched tag":   rssPage(`<item><title>x</b></title><guid>g2</guid></item>`),
		"undefined entity": rssPage(`<item><title>a &bogus; b</title><guid>g2</guid></item>`),
		"truncated":        `<?xml version="1.0"?><rss version="2.0"><channel><item><title>x</title>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var calls int32
			srv := feedServer(t, map[int]string{1: rssPage(rssItem(1)), 2: body}, &calls)
			out := filepath.Join(t.TempDir(), "feed.json")

			res, err := New(newClient(t), srv.URL+"/feed?page={page}", out).Crawl(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse page 2")
			assert.Equal(t, 1, res.Added)
			assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

			items, err := export.LoadItems(out)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "g1", *items[0].GUID)
		})
	}
}

func TestCheckWellFormed(t *testing.T) {
	require.NoError(t, checkWellFormed([]byte(rssPage(rssItem(1)))))
	require.NoError(t, checkWellFormed([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><rss><channel/></rss>`)))
	assert.Error(t, checkWellFormed([]byte(`<rss><channel></rss>`)))
	assert.Error(t, checkWellFormed([]byte(`<rss><channel><title>&nbsp;</title></channel></rss>`)))
}

func TestCrawl_HTTPErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(newClient(t), srv.URL+"/feed?page={page}", filepath.Join(t.TempDir(), "f.json")).
		Crawl(context.Background())
	var se *fetch.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestPageURL(t *testing.T) {
	u, err := PageURL("https://www.pjd.ma/feed?page={page}", 3)
	require.NoError(t, err)
	assert.Equal(t, "https://www.pjd.ma/feed?page=3", u)

	u, err = PageURL("https://ex.com/feed?lang=ar", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://ex.com/feed?lang=ar&page=2", u)
}
