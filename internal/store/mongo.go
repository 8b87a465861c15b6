package store

import (
	"context"
	"errors"
	"time"

	"watchparty/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Store on a MongoDB database with collections users,
// videos and watch_history.
type Mongo struct {
	client  *mongo.Client
	users   *mongo.Collection
	videos  *mongo.Collection
	history *mongo.Collection
}

// ConnectMongo dials uri, pings the primary and ensures the unique indexes.
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	m := &Mongo{
		client:  client,
		users:   db.Collection("users"),
		videos:  db.Collection("videos"),
		history: db.Collection("watch_history"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "fullName", Value: 1}}},
	})
	if err != nil {
		return err
	}
	if _, err := m.videos.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "owner", Value: 1}}}); err != nil {
		return err
	}
	_, err = m.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "watchedAt", Value: -1}},
	})
	return err
}

func mongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := m.users.InsertOne(ctx, u)
	return mongoErr(err)
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := m.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, mongoErr(err)
	}
	return &u, nil
}

func (m *Mongo) UserByID(ctx context.Context, id string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *Mongo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"username": username})
}

func (m *Mongo) UserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	or := bson.A{}
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return nil, ErrNotFound
	}
	return m.findUser(ctx, bson.M{"$or": or})
}

func (m *Mongo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	n, err := m.users.CountDocuments(ctx, bson.M{"username": username})
	return n > 0, err
}

func (m *Mongo) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	filter := bson.M{"email": email}
	if exceptID != "" {
		filter["_id"] = bson.M{"$ne": exceptID}
	}
	n, err := m.users.CountDocuments(ctx, filter)
	return n > 0, err
}

func (m *Mongo) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.FullName != nil {
		set["fullName"] = *upd.FullName
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.Avatar != nil {
		set["avatar"] = *upd.Avatar
	}
	if upd.CoverImage != nil {
		set["coverImage"] = *upd.CoverImage
	}
	if upd.PasswordHash != nil {
		set["password"] = *upd.PasswordHash
	}
	var u models.User
	err := m.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		return nil, mongoErr(err)
	}
	return &u, nil
}

func (m *Mongo) DeleteUser(ctx context.Context, id string) error {
	res, err := m.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SetRefreshToken(ctx context.Context, userID, token string) error {
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"refreshToken": token, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SwapRefreshToken(ctx context.Context, userID, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": userID, "refreshToken": expected},
		bson.M{"$set": bson.M{"refreshToken": next, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (m *Mongo) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := m.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$unset": bson.M{"refreshToken": 1}})
	return err
}

func (m *Mongo) CreateVideo(ctx context.Context, v *models.Video) error {
	now := time.Now().UTC()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt, v.UpdatedAt = now, now
	_, err := m.videos.InsertOne(ctx, v)
	return mongoErr(err)
}

func (m *Mongo) VideoByID(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video
	if err := m.videos.FindOne(ctx, bson.M{"_id": id}).Decode(&v); err != nil {
		return nil, mongoErr(err)
	}
	return &v, nil
}

func (m *Mongo) IncrementViews(ctx context.Context, id string) error {
	res, err := m.videos.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) CountPublishedByOwner(ctx context.Context, ownerID string) (int64, error) {
	return m.videos.CountDocuments(ctx, bson.M{"owner": ownerID, "isPublished": true})
}

func (m *Mongo) AppendWatch(ctx context.Context, userID, videoID string, at time.Time) error {
	_, err := m.history.InsertOne(ctx, models.WatchEntry{UserID: userID, VideoID: videoID, WatchedAt: at})
	return err
}

func (m *Mongo) WatchHistory(ctx context.Context, userID string, limit int) ([]models.Video, error) {
	limit = historyLimit(limit)
	cur, err := m.history.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "watchedAt", Value: -1}}).SetLimit(maxHistoryScan))
	if err != nil {
		return nil, err
	}
	var entries []models.WatchEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	ids := distinctVideoIDs(entries, limit)
	if len(ids) == 0 {
		return []models.Video{}, nil
	}
	vcur, err := m.videos.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var videos []models.Video
	if err := vcur.All(ctx, &videos); err != nil {
		return nil, err
	}
	return orderVideos(ids, videos), nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
