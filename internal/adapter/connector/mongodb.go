package connector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/semmidev/dbtoolkit/internal/adapter/database"
	"github.com/semmidev/dbtoolkit/internal/domain"
)

// MongoConnector accepts either a raw JSON command document ({"ping": 1})
// or shell-style collection calls: db.<coll>.find(...), db.<coll>.aggregate([...])
// and db.<coll>.countDocuments(...).
type MongoConnector struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo() *MongoConnector {
	return &MongoConnector{}
}

var shellCall = regexp.MustCompile(`^db\.([A-Za-z0-9_\-]+)\.(find|findOne|aggregate|countDocuments)\((.*)\)\s*;?$`)

func (m *MongoConnector) Connect(ctx context.Context, conn *domain.Connection) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(database.MongoURI(conn)))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	m.client = client
	m.db = client.Database(conn.Database)
	return nil
}

// mongoCall is a parsed shell-style invocation.
type mongoCall struct {
	collection string
	method     string
	args       string
}

func parseShellCall(query string) (*mongoCall, error) {
	match := shellCall.FindStringSubmatch(strings.TrimSpace(query))
	if match == nil {
		return nil, fmt.Errorf("%w: expected db.<collection>.find|findOne|aggregate|countDocuments(...)", domain.ErrValidation)
	}
	return &mongoCall{collection: match[1], method: match[2], args: strings.TrimSpace(match[3])}, nil
}

func parseDocument(s string) (bson.D, error) {
	if s == "" {
		return bson.D{}, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid document: %v", domain.ErrValidation, err)
	}
	return doc, nil
}

func parsePipeline(s string) (bson.A, error) {
	var wrapper struct {
		Pipeline bson.A `bson:"pipeline"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"pipeline":`+s+`}`), false, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: invalid pipeline: %v", domain.ErrValidation, err)
	}
	return wrapper.Pipeline, nil
}

func (m *MongoConnector) ExecuteQuery(ctx context.Context, query string, page domain.Page) (*domain.ConnectorResult, error) {
	if m.db == nil {
		return nil, errors.New("not connected")
	}

	query = strings.TrimSpace(query)
	if strings.HasPrefix(query, "{") {
		cmd, err := parseDocument(query)
		if err != nil {
			return nil, err
		}
		var out bson.M
		if err := m.db.RunCommand(ctx, cmd).Decode(&out); err != nil {
			return nil, err
		}
		return documentsResult([]bson.M{out}), nil
	}

	call, err := parseShellCall(query)
	if err != nil {
		return nil, err
	}
	coll := m.db.Collection(call.collection)

	switch call.method {
	case "countDocuments":
		filter, err := parseDocument(call.args)
		if err != nil {
			return nil, err
		}
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &domain.ConnectorResult{Columns: []string{"count"}, Rows: [][]any{{n}}, RowCount: 1}, nil

	case "aggregate":
		pipeline, err := parsePipeline(call.args)
		if err != nil {
			return nil, err
		}
		if page.Offset > 0 {
			pipeline = append(pipeline, bson.D{{Key: "$skip", Value: page.Offset}})
		}
		if page.Limit > 0 {
			pipeline = append(pipeline, bson.D{{Key: "$limit", Value: page.Limit}})
		}
		cur, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		return decodeCursor(ctx, cur)

	default:
		filter, err := parseDocument(call.args)
		if err != nil {
			return nil, err
		}
		opts := options.Find().SetSkip(int64(page.Offset))
		if call.method == "findOne" {
			opts.SetLimit(1)
		} else if page.Limit > 0 {
			opts.SetLimit(int64(page.Limit))
		}
		cur, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		return decodeCursor(ctx, cur)
	}
}

func decodeCursor(ctx context.Context, cur *mongo.Cursor) (*domain.ConnectorResult, error) {
	defer cur.Close(ctx)
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return documentsResult(docs), nil
}

// documentsResult flattens documents into a table over the union of their
// top-level keys, _id first.
func documentsResult(docs []bson.M) *domain.ConnectorResult {
	seen := map[string]bool{}
	var keys []string
	for _, d := range docs {
		for k := range d {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "_id" || keys[j] == "_id" {
			return keys[i] == "_id"
		}
		return keys[i] < keys[j]
	})

	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		row := make([]any, len(keys))
		for i, k := range keys {
			row[i] = stringifyBSON(d[k])
		}
		rows = append(rows, row)
	}
	return &domain.ConnectorResult{Columns: keys, Rows: rows, RowCount: len(rows)}
}

func stringifyBSON(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int32, int64, float64:
		return t
	case primitive.ObjectID:
		return t.Hex()
	case bson.M, bson.A, bson.D:
		b, err := bson.MarshalExtJSON(bson.M{"v": t}, false, false)
		if err != nil {
			return fmt.Sprint(t)
		}
		s := string(b)
		return strings.TrimSuffix(strings.TrimPrefix(s, `{"v":`), "}")
	}
	return fmt.Sprint(v)
}

func (m *MongoConnector) Disconnect(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client, m.db = nil, nil
	return err
}
