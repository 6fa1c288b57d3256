package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const defaultMongoDatabase = "remindbot"

// mongoStore keeps reminders and guild zones in two collections.
type mongoStore struct {
	client    *mongo.Client
	reminders *mongo.Collection
	zones     *mongo.Collection
	log       logx.Logger
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for mongo driver")
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	dbName := strings.TrimSpace(cfg.Database)
	if dbName == "" {
		dbName = defaultMongoDatabase
	}
	db := client.Database(dbName)
	st := &mongoStore{
		client:    client,
		reminders: db.Collection("reminders"),
		zones:     db.Collection("guild_timezones"),
		log:       log,
	}
	if err := st.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Info("mongo storage opened", logx.String("database", dbName))
	return st, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.reminders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create reminder indexes: %w", err)
	}
	_, err = s.zones.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guild_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create timezone index: %w", err)
	}
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *mongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *mongoStore) GetReminder(ctx context.Context, id string) (reminder.Reminder, error) {
	var r reminder.Reminder
	err := s.reminders.FindOne(ctx, bson.M{"id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return reminder.Reminder{}, ErrNotFound
	}
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *mongoStore) ListReminders(ctx context.Context, guildID string) ([]reminder.Reminder, error) {
	filter := bson.M{}
	if guildID != "" {
		filter["guild_id"] = guildID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})
	cur, err := s.reminders.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []reminder.Reminder{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}

func (s *mongoStore) PutReminder(ctx context.Context, r reminder.Reminder) error {
	_, err := s.reminders.ReplaceOne(ctx, bson.M{"id": r.ID}, r, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) DeleteReminder(ctx context.Context, id string) error {
	_, err := s.reminders.DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (s *mongoStore) DeleteAllReminders(ctx context.Context, guildID string) (int, error) {
	filter := bson.M{}
	if guildID != "" {
		filter["guild_id"] = guildID
	}
	res, err := s.reminders.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *mongoStore) GetGuildTimezone(ctx context.Context, guildID string) (string, error) {
	var doc reminder.GuildTimezone
	err := s.zones.FindOne(ctx, bson.M{"guild_id": guildID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.Timezone, nil
}

func (s *mongoStore) SetGuildTimezone(ctx context.Context, guildID, tz string) error {
	_, err := s.zones.UpdateOne(ctx,
		bson.M{"guild_id": guildID},
		bson.M{"$set": bson.M{"timezone": tz}},
		options.Update().SetUpsert(true),
	)
	return err
}
