package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go-site-crawler/internal/model"
)

// Memory 为进程内存储，用于调试运行（memory://）与测试。
type Memory struct {
	mu    sync.Mutex
	colls map[string]*MemoryCollection
}

func NewMemory() *Memory {
	return &Memory{colls: make(map[string]*MemoryCollection)}
}

func (m *Memory) Collection(_ context.Context, name string) (Collection, error) {
	return m.collection(name), nil
}

// Lookup 返回命名空间（不存在则创建），便于测试直接查看内容。
func (m *Memory) Lookup(name string) *MemoryCollection { return m.collection(name) }

func (m *Memory) collection(name string) *MemoryCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[name]
	if !ok {
		c = &MemoryCollection{name: name, docs: make(map[string]json.RawMessage)}
		m.colls[name] = c
	}
	return c
}

func (m *Memory) Close(context.Context) error { return nil }

// MemoryCollection 以 id 为 key 保存原始文档，保留插入顺序。
type MemoryCollection struct {
	name  string
	mu    sync.Mutex
	order []string
	docs  map[string]json.RawMessage
}

func (c *MemoryCollection) Name() string { return c.name }

func (c *MemoryCollection) DistinctIDs(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...), nil
}

func (c *MemoryCollection) InsertMany(_ context.Context, posts []model.Post) (InsertResult, error) {
	var res InsertResult
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range posts {
		if p.ID == "" {
			return res, &Error{Kind: KindSerialization, Op: "insert " + c.name, Err: errors.New("post without id")}
		}
		if _, ok := c.docs[p.ID]; ok {
			res.Duplicates++
			continue
		}
		c.docs[p.ID] = append(json.RawMessage(nil), p.Raw...)
		c.order = append(c.order, p.ID)
		res.Inserted++
	}
	if res.Duplicates > 0 {
		return res, &Error{Kind: KindDuplicate, Op: "insert " + c.name,
			Err: fmt.Errorf("%d duplicate ids", res.Duplicates)}
	}
	return res, nil
}

func (c *MemoryCollection) Count(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.docs)), nil
}

// Get 返回指定 id 的原始文档。
func (c *MemoryCollection) Get(id string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	return d, ok
}
