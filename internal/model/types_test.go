package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://ex.com/wp-json/wp/v2/posts": "ex.com",
		"http://127.0.0.1:8080/posts?x=1":    "127.0.0.1:8080",
		"":                                   "",
		"not a url":                          "",
		"ex.com/wp-json":                     "",
		"://bad":                             "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, HostOf(raw), raw)
	}
}

func TestFeedItemKey(t *testing.T) {
	g, l := "g1", "https://ex.com/1"
	assert.Equal(t, "guid:g1", FeedItem{GUID: &g, Link: &l}.Key())
	assert.Equal(t, "link:https://ex.com/1", FeedItem{Link: &l}.Key())
	assert.Equal(t, FeedItem{Categories: []string{}}.Key(), FeedItem{Categories: []string{}}.Key())
}
