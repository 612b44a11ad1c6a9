package databases

// go generate: mockery --name DonorRequestDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sevaclinic/donor-ops-api/models"
)

const donorRequestCollectionName = "donorRequests"

// DonorRequestDatabase contains the methods to use with the donor request database
type DonorRequestDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.DonorRequest, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.DonorRequest, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}) (int64, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	MarkAllotted(ctx context.Context, requestID primitive.ObjectID, donorID string, at time.Time) (*mongo.UpdateResult, error)
	ClearAllotment(ctx context.Context, requestID primitive.ObjectID) (*mongo.UpdateResult, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type donorRequestDatabase struct {
	db DatabaseHelper
}

// NewDonorRequestDatabase initializes a new instance of donor request database with the provided db connection
func NewDonorRequestDatabase(db DatabaseHelper) DonorRequestDatabase {
	return &donorRequestDatabase{
		db: db,
	}
}

func (r *donorRequestDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.DonorRequest, error) {
	request := &models.DonorRequest{}
	err := r.db.Collection(donorRequestCollectionName).FindOne(ctx, filter, opts...).Decode(&request)
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (r *donorRequestDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.DonorRequest, error) {
	var requests []models.DonorRequest
	cur := r.db.Collection(donorRequestCollectionName).Find(ctx, filter, opts...)
	err := cur.Decode(&requests)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *donorRequestDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res := r.db.Collection(donorRequestCollectionName).InsertOne(ctx, document, opts...)
	return res, nil
}

func (r *donorRequestDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return r.db.Collection(donorRequestCollectionName).UpdateOne(ctx, filter, update, opts...)
}

func (r *donorRequestDatabase) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	return r.db.Collection(donorRequestCollectionName).DeleteOne(ctx, filter)
}

func (r *donorRequestDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return r.db.Collection(donorRequestCollectionName).CountDocuments(ctx, filter, opts...)
}

// MarkAllotted sets isAlloted, allottedTo and allottedAt together in one
// conditional write. The filter pins isAlloted=false so a request can never
// be fulfilled twice; the three fields are never partially set.
func (r *donorRequestDatabase) MarkAllotted(ctx context.Context, requestID primitive.ObjectID, donorID string, at time.Time) (*mongo.UpdateResult, error) {
	filter := bson.M{
		"_id":                    requestID,
		"donorRequest.isAlloted": false,
	}
	update := bson.M{"$set": bson.M{
		"donorRequest.isAlloted":  true,
		"donorRequest.allottedTo": donorID,
		"donorRequest.allottedAt": primitive.NewDateTimeFromTime(at),
		"donorRequest.updatedAt":  primitive.NewDateTimeFromTime(at),
	}}
	return r.db.Collection(donorRequestCollectionName).UpdateOne(ctx, filter, update)
}

// CountByStatus groups the request collection by status and returns the
// count for each.
func (r *donorRequestDatabase) CountByStatus(ctx context.Context) (map[string]int64, error) {
	pipeline := []bson.M{
		{"$group": bson.M{
			"_id":   "$donorRequest.status",
			"count": bson.M{"$sum": 1},
		}},
	}
	cur, err := r.db.Collection(donorRequestCollectionName).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cur.Decode(&rows); err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ClearAllotment clears the three allotment fields together. The filter pins
// isAlloted=true; a second cancel matches nothing and the caller reports the
// not-allotted conflict.
func (r *donorRequestDatabase) ClearAllotment(ctx context.Context, requestID primitive.ObjectID) (*mongo.UpdateResult, error) {
	filter := bson.M{
		"_id":                    requestID,
		"donorRequest.isAlloted": true,
	}
	update := bson.M{
		"$set": bson.M{
			"donorRequest.isAlloted":  false,
			"donorRequest.allottedTo": "",
			"donorRequest.updatedAt":  primitive.NewDateTimeFromTime(time.Now()),
		},
		"$unset": bson.M{
			"donorRequest.allottedAt": "",
		},
	}
	return r.db.Collection(donorRequestCollectionName).UpdateOne(ctx, filter, update)
}
