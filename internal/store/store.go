// 包 store 提供抓取结果的文档存储：
// - 每个站点一个命名空间（集合/表），以文章 id 为唯一键
// - 批量写入采用无序语义：重复键不影响同批其它记录
// - 失败按类型归类（重复键/连接/序列化），由调用方决定是否吞掉
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-site-crawler/internal/model"
)

// Store 为底层存储部署，可并发使用。
type Store interface {
	// Collection 打开（必要时创建）命名空间并确保 id 唯一约束。
	Collection(ctx context.Context, name string) (Collection, error)
	Close(ctx context.Context) error
}

// Collection 为单个站点的命名空间。
type Collection interface {
	Name() string
	// DistinctIDs 返回已存储的全部 id（规范化为字符串）。
	DistinctIDs(ctx context.Context) ([]string, error)
	// InsertMany 无序批量插入；仅有重复键失败时返回 KindDuplicate 错误，
	// 此时 InsertResult 仍准确反映成功写入的数量。
	InsertMany(ctx context.Context, posts []model.Post) (InsertResult, error)
	Count(ctx context.Context) (int64, error)
}

// InsertResult 为一次批量写入的结果。
type InsertResult struct {
	Inserted   int
	Duplicates int
}

// Kind 为存储错误分类。
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicate
	KindConnectivity
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindConnectivity:
		return "connectivity"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error 为带分类的存储错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回错误链中第一个 *Error 的分类。
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsDuplicate 报告错误是否仅由重复键引起。
func IsDuplicate(err error) bool {
	return err != nil && KindOf(err) == KindDuplicate
}

// ErrUnsupportedDSN 表示无法识别的连接串。
var ErrUnsupportedDSN = errors.New("unsupported database url")

// Open 按连接串选择后端：
// mongodb:// 与 mongodb+srv:// 使用 MongoDB（database 为库名）；
// memory:// 使用进程内存储；sqlite://path、file: 或普通路径使用 SQLite。
func Open(ctx context.Context, dsn, database string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return OpenMongo(ctx, dsn, database)
	case strings.HasPrefix(dsn, "memory://"):
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, dsn)
	default:
		return OpenSQLite(dsn)
	}
}
