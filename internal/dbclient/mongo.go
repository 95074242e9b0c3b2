package dbclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"periodetl/internal/domain"
	"periodetl/internal/storage"
)

const (
	collFamilies = "consolidated_families"
	collRows     = "consolidated_rows"
)

// mongoStore is a ConsolidatedStore over MongoDB. Replacements run in a
// multi-document transaction, which requires a replica set or sharded cluster.
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ domain.ConsolidatedStore = (*mongoStore)(nil)

type familyDoc struct {
	Family  string          `bson:"_id"`
	Columns []domain.Column `bson:"columns"`
}

type rowDoc struct {
	Family    string `bson:"family"`
	PeriodKey string `bson:"period_key"`
	RowIndex  int    `bson:"row_index"`
	Data      string `bson:"data"` // JSON array, see storage.EncodeRow
}

// buildMongoURI returns the connection URI for conn. A Host that is already a
// mongodb:// or mongodb+srv:// URI is used as is, with any password
// placeholder filled in.
func buildMongoURI(conn domain.DatabaseConnection) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if conn.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", conn.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", conn.Password)
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = 27017
	}
	if conn.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, conn.Password, conn.Host, port)
	}
	return fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
}

// mongoDatabaseName picks conn.Database, else the path of the URI, else "periodetl".
func mongoDatabaseName(conn domain.DatabaseConnection, uri string) string {
	if conn.Database != "" {
		return conn.Database
	}
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.Index(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash != -1 {
		path := rest[slash+1:]
		if q := strings.Index(path, "?"); q != -1 {
			path = path[:q]
		}
		if path != "" {
			return path
		}
	}
	return "periodetl"
}

func openMongo(ctx context.Context, conn domain.DatabaseConnection, log zerolog.Logger) (domain.ConsolidatedStore, error) {
	uri := buildMongoURI(conn)
	dbName := mongoDatabaseName(conn, uri)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	ping := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return client.Ping(ctx, nil)
	}
	if err := pingWithRetry(ctx, "mongodb", log, ping); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	s := &mongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	log.Info().Str("store", "mongodb").Str("database", dbName).Msg("consolidated store ready")
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collRows).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "family", Value: 1}, {Key: "period_key", Value: 1}, {Key: "row_index", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *mongoStore) Columns(ctx context.Context, family string) ([]domain.Column, error) {
	var doc familyDoc
	err := s.db.Collection(collFamilies).FindOne(ctx, bson.M{"_id": family}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Columns, nil
}

func (s *mongoStore) ReplacePeriods(ctx context.Context, family string, columns []domain.Column, batches []domain.PeriodBatch) (int, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.Background())

	removed, err := session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		rows := s.db.Collection(collRows)
		removed := 0
		for _, b := range batches {
			res, err := rows.DeleteMany(ctx, bson.M{"family": family, "period_key": b.PeriodKey})
			if err != nil {
				return nil, fmt.Errorf("delete period %s: %w", b.PeriodKey, err)
			}
			removed += int(res.DeletedCount)

			if len(b.Rows) == 0 {
				continue
			}
			docs := make([]rowDoc, len(b.Rows))
			for i, values := range b.Rows {
				data, err := storage.EncodeRow(values)
				if err != nil {
					return nil, err
				}
				docs[i] = rowDoc{Family: family, PeriodKey: b.PeriodKey, RowIndex: i, Data: data}
			}
			if _, err := rows.InsertMany(ctx, docs); err != nil {
				return nil, fmt.Errorf("insert period %s: %w", b.PeriodKey, err)
			}
		}

		_, err := s.db.Collection(collFamilies).ReplaceOne(ctx,
			bson.M{"_id": family},
			familyDoc{Family: family, Columns: columns},
			options.Replace().SetUpsert(true),
		)
		if err != nil {
			return nil, fmt.Errorf("store schema: %w", err)
		}
		return removed, nil
	})
	if err != nil {
		return 0, err
	}
	return removed.(int), nil
}

func (s *mongoStore) ListPeriods(ctx context.Context, family string) ([]string, error) {
	var periods []string
	res := s.db.Collection(collRows).Distinct(ctx, "period_key", bson.M{"family": family})
	if err := res.Decode(&periods); err != nil {
		return nil, err
	}
	sort.Strings(periods)
	return periods, nil
}

func (s *mongoStore) ReadPeriod(ctx context.Context, family, periodKey string) ([][]any, error) {
	columns, err := s.Columns(ctx, family)
	if err != nil || columns == nil {
		return nil, err
	}

	cur, err := s.db.Collection(collRows).Find(ctx,
		bson.M{"family": family, "period_key": periodKey},
		options.Find().SetSort(bson.D{{Key: "row_index", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []rowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([][]any, 0, len(docs))
	for _, d := range docs {
		values, err := storage.DecodeRow(d.Data, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, nil
}

func (s *mongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
