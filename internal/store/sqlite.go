package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"go-site-crawler/internal/model"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
// 每个命名空间对应一张表，id 为主键。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库。
func OpenSQLite(path string) (*SQLite, error) {
	// 说明：modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 单连接：并发站点的写入在此串行化
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classifySQLite("ping sqlite "+path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close(context.Context) error { return s.db.Close() }

// Collection 建表（幂等）并返回命名空间。
func (s *SQLite) Collection(ctx context.Context, name string) (Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("empty collection name")
	}
	c := &sqliteCollection{db: s.db, name: name, table: quoteIdent(name)}
	q := `CREATE TABLE IF NOT EXISTS ` + c.table + ` (
            id TEXT PRIMARY KEY,
            doc TEXT NOT NULL,
            created_at TIMESTAMP
        )`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return nil, classifySQLite("create table "+name, err)
	}
	return c, nil
}

type sqliteCollection struct {
	db    *sql.DB
	name  string
	table string
}

func (c *sqliteCollection) Name() string { return c.name }

func (c *sqliteCollection) DistinctIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM `+c.table)
	if err != nil {
		return nil, classifySQLite("query ids "+c.name, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ids %s: %w", c.name, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("iterate ids "+c.name, err)
	}
	return out, nil
}

// InsertMany 在单个事务内逐条插入；主键冲突只跳过该条。
func (c *sqliteCollection) InsertMany(ctx context.Context, posts []model.Post) (InsertResult, error) {
	var res InsertResult
	op := "insert " + c.name
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return res, classifySQLite(op, err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+c.table+`(id, doc, created_at) VALUES(?,?,?)`)
	if err != nil {
		return res, classifySQLite(op, err)
	}
	defer stmt.Close()
	now := time.Now()
	for _, p := range posts {
		if p.ID == "" {
			return InsertResult{}, &Error{Kind: KindSerialization, Op: op, Err: errors.New("post without id")}
		}
		if _, err := stmt.ExecContext(ctx, p.ID, string(p.Raw), now); err != nil {
			se := classifySQLite(op, err)
			if se.Kind != KindDuplicate {
				return InsertResult{}, se
			}
			res.Duplicates++
			continue
		}
		res.Inserted++
	}
	if err := tx.Commit(); err != nil {
		return InsertResult{}, classifySQLite(op, err)
	}
	if res.Duplicates > 0 {
		return res, &Error{Kind: KindDuplicate, Op: op, Err: fmt.Errorf("%d duplicate ids", res.Duplicates)}
	}
	return res, nil
}

func (c *sqliteCollection) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+c.table).Scan(&n); err != nil {
		return 0, classifySQLite("count "+c.name, err)
	}
	return n, nil
}

// classifySQLite 依据 SQLite 结果码归类错误。
func classifySQLite(op string, err error) *Error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
			return &Error{Kind: KindConnectivity, Op: op, Err: err}
		}
		return &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	code := se.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return &Error{Kind: KindDuplicate, Op: op, Err: err}
	case code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE constraint failed"):
		return &Error{Kind: KindDuplicate, Op: op, Err: err}
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
		return &Error{Kind: KindConnectivity, Op: op, Err: err}
	case sqlite3.SQLITE_TOOBIG, sqlite3.SQLITE_MISMATCH:
		return &Error{Kind: KindSerialization, Op: op, Err: err}
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

// quoteIdent 将命名空间（如 example.com:8080）转为安全的表名。
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
