package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-site-crawler/internal/model"
)

// DefaultDatabase 为未配置时使用的库名。
const DefaultDatabase = "scraped"

// Mongo 为 MongoDB 后端：每个站点一个集合，_id 取文章 id，并对 id 建唯一索引。
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo 连接并 ping MongoDB。
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, classifyMongo("connect mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, classifyMongo("ping mongo", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }

// Collection 返回集合并确保 id 唯一索引存在。
func (m *Mongo) Collection(ctx context.Context, name string) (Collection, error) {
	coll := m.db.Collection(name)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, classifyMongo("create index "+name, err)
	}
	return &mongoCollection{coll: coll, name: name}, nil
}

type mongoCollection struct {
	coll *mongo.Collection
	name string
}

func (c *mongoCollection) Name() string { return c.name }

func (c *mongoCollection) DistinctIDs(ctx context.Context) ([]string, error) {
	vals, err := c.coll.Distinct(ctx, "id", bson.D{})
	if err != nil {
		return nil, classifyMongo("distinct ids "+c.name, err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, idString(v))
	}
	return out, nil
}

func (c *mongoCollection) InsertMany(ctx context.Context, posts []model.Post) (InsertResult, error) {
	op := "insert " + c.name
	docs := make([]interface{}, 0, len(posts))
	for _, p := range posts {
		d, err := toDocument(p)
		if err != nil {
			return InsertResult{}, &Error{Kind: KindSerialization, Op: op, Err: err}
		}
		docs = append(docs, d)
	}
	_, err := c.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return InsertResult{Inserted: len(docs)}, nil
	}
	return insertOutcome(op, len(docs), err)
}

func (c *mongoCollection) Count(ctx context.Context) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classifyMongo("count "+c.name, err)
	}
	return n, nil
}

// toDocument 将原始 JSON 转为 bson.D 并把 id 提升为 _id，保留字段顺序与数值类型。
// 按普通 JSON 转换：$date、$oid 等键原样作为字段名保存，不按 Extended JSON 解释。
func toDocument(p model.Post) (bson.D, error) {
	if !gjson.ValidBytes(p.Raw) {
		return nil, fmt.Errorf("decode post %s: invalid json", p.ID)
	}
	root := gjson.ParseBytes(p.Raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("decode post %s: not an object", p.ID)
	}
	d := jsonToBSON(root).(bson.D)
	for _, e := range d {
		if e.Key == "id" {
			return append(bson.D{{Key: "_id", Value: e.Value}}, d...), nil
		}
	}
	return nil, fmt.Errorf("post %s: missing id field", p.ID)
}

func jsonToBSON(r gjson.Result) interface{} {
	switch {
	case r.IsObject():
		d := bson.D{}
		r.ForEach(func(k, v gjson.Result) bool {
			d = append(d, bson.E{Key: k.String(), Value: jsonToBSON(v)})
			return true
		})
		return d
	case r.IsArray():
		a := bson.A{}
		r.ForEach(func(_, v gjson.Result) bool {
			a = append(a, jsonToBSON(v))
			return true
		})
		return a
	}
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		// 整数保持整型（与 relaxed Extended JSON 一致：能放进 int32 则用 int32）
		if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				return int32(n)
			}
			return n
		}
		return r.Num
	}
	return nil
}

// insertOutcome 解析无序批量写入错误：全部为重复键时归为 KindDuplicate。
func insertOutcome(op string, total int, err error) (InsertResult, error) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return InsertResult{}, classifyMongo(op, err)
	}
	res := InsertResult{Inserted: total - len(bwe.WriteErrors)}
	onlyDup := bwe.WriteConcernError == nil && len(bwe.WriteErrors) > 0
	for _, we := range bwe.WriteErrors {
		if isDuplicateCode(we.Code) {
			res.Duplicates++
		} else {
			onlyDup = false
		}
	}
	if onlyDup {
		return res, &Error{Kind: KindDuplicate, Op: op, Err: err}
	}
	return res, classifyMongo(op, err)
}

func isDuplicateCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// classifyMongo 归类驱动错误。
func classifyMongo(op string, err error) *Error {
	switch {
	case mongo.IsDuplicateKeyError(err) && !hasOtherWriteErrors(err):
		return &Error{Kind: KindDuplicate, Op: op, Err: err}
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindConnectivity, Op: op, Err: err}
	case isMarshalError(err):
		return &Error{Kind: KindSerialization, Op: op, Err: err}
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

func hasOtherWriteErrors(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil {
		return true
	}
	for _, we := range bwe.WriteErrors {
		if !isDuplicateCode(we.Code) {
			return true
		}
	}
	return false
}

func isMarshalError(err error) bool {
	var me mongo.MarshalError
	return errors.As(err, &me) || errors.Is(err, mongo.ErrNilDocument) || errors.Is(err, mongo.ErrEmptySlice)
}

// idString 将 Distinct 返回的 id 规范化为字符串，与 model.Post.ID 一致。
func idString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
