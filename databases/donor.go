package databases

// go generate: mockery --name DonorDatabase

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sevaclinic/donor-ops-api/models"
)

const donorCollectionName = "donors"

// DonorDatabase contains the methods to use with the donor database
type DonorDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Donor, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Donor, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}) (int64, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	MarkAllotted(ctx context.Context, donorID primitive.ObjectID, requestID string) (*mongo.UpdateResult, error)
	ClearAllotment(ctx context.Context, donorID primitive.ObjectID) (*mongo.UpdateResult, error)
	UpsertDocumentSlot(ctx context.Context, donorID primitive.ObjectID, collection models.DocumentCollection, index int, slot models.DocumentSlot) (*mongo.UpdateResult, error)
	AppendDocumentSlot(ctx context.Context, donorID primitive.ObjectID, reportName string) (*mongo.UpdateResult, error)
}

type donorDatabase struct {
	db DatabaseHelper
}

// NewDonorDatabase initializes a new instance of donor database with the provided db connection
func NewDonorDatabase(db DatabaseHelper) DonorDatabase {
	return &donorDatabase{
		db: db,
	}
}

func (d *donorDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Donor, error) {
	donor := &models.Donor{}
	err := d.db.Collection(donorCollectionName).FindOne(ctx, filter, opts...).Decode(&donor)
	if err != nil {
		return nil, err
	}
	return donor, nil
}

func (d *donorDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Donor, error) {
	var donors []models.Donor
	cur := d.db.Collection(donorCollectionName).Find(ctx, filter, opts...)
	err := cur.Decode(&donors)
	if err != nil {
		return nil, err
	}
	return donors, nil
}

func (d *donorDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res := d.db.Collection(donorCollectionName).InsertOne(ctx, document, opts...)
	return res, nil
}

func (d *donorDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return d.db.Collection(donorCollectionName).UpdateOne(ctx, filter, update, opts...)
}

func (d *donorDatabase) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	return d.db.Collection(donorCollectionName).DeleteOne(ctx, filter)
}

func (d *donorDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return d.db.Collection(donorCollectionName).CountDocuments(ctx, filter, opts...)
}

// MarkAllotted flips the donor-side allotment flag in one conditional write.
// The filter pins status=active and either an unallotted donor or the same
// request id, so re-sending the same allotment is a no-op rather than an
// error and a concurrent winner leaves MatchedCount at zero.
func (d *donorDatabase) MarkAllotted(ctx context.Context, donorID primitive.ObjectID, requestID string) (*mongo.UpdateResult, error) {
	filter := bson.M{
		"_id":          donorID,
		"donor.status": models.DonorStatusActive,
		"$or": []bson.M{
			{"donor.isAllotted": false},
			{"donor.allottedRequestId": requestID},
		},
	}
	update := bson.M{"$set": bson.M{
		"donor.isAllotted":        true,
		"donor.allottedRequestId": requestID,
		"donor.updatedAt":         primitive.NewDateTimeFromTime(time.Now()),
	}}
	return d.db.Collection(donorCollectionName).UpdateOne(ctx, filter, update)
}

// ClearAllotment unsets the donor-side allotment flag. Idempotent: clearing
// an already-clear donor matches and modifies nothing.
func (d *donorDatabase) ClearAllotment(ctx context.Context, donorID primitive.ObjectID) (*mongo.UpdateResult, error) {
	filter := bson.M{"_id": donorID}
	update := bson.M{"$set": bson.M{
		"donor.isAllotted":        false,
		"donor.allottedRequestId": "",
		"donor.updatedAt":         primitive.NewDateTimeFromTime(time.Now()),
	}}
	return d.db.Collection(donorCollectionName).UpdateOne(ctx, filter, update)
}

// UpsertDocumentSlot writes filePath, hasFile and the upload audit fields of
// one slot in a single update. hasFile is derived from filePath here and
// nowhere else, which keeps the two fields in lockstep. The filter requires
// the slot to exist already, so an out-of-range index matches nothing.
func (d *donorDatabase) UpsertDocumentSlot(ctx context.Context, donorID primitive.ObjectID, collection models.DocumentCollection, index int, slot models.DocumentSlot) (*mongo.UpdateResult, error) {
	if index < 0 {
		return nil, fmt.Errorf("document slot index %d out of range", index)
	}
	path := fmt.Sprintf("donor.%s.%d", collection, index)
	filter := bson.M{
		"_id": donorID,
		path:  bson.M{"$exists": true},
	}
	set := bson.M{
		path + ".filePath":   slot.FilePath,
		path + ".hasFile":    slot.FilePath != "",
		path + ".uploadedBy": slot.UploadedBy,
		"donor.updatedAt":    primitive.NewDateTimeFromTime(time.Now()),
	}
	if slot.FilePath != "" {
		set[path+".uploadedAt"] = slot.UploadedAt
	} else {
		set[path+".uploadedAt"] = primitive.DateTime(0)
	}
	return d.db.Collection(donorCollectionName).UpdateOne(ctx, filter, bson.M{"$set": set})
}

// AppendDocumentSlot adds an operator-defined extra slot to the
// allotmentDocuments collection. The other three collections are fixed at
// registration.
func (d *donorDatabase) AppendDocumentSlot(ctx context.Context, donorID primitive.ObjectID, reportName string) (*mongo.UpdateResult, error) {
	filter := bson.M{"_id": donorID}
	update := bson.M{
		"$push": bson.M{"donor.allotmentDocuments": models.DocumentSlot{ReportName: reportName}},
		"$set":  bson.M{"donor.updatedAt": primitive.NewDateTimeFromTime(time.Now())},
	}
	return d.db.Collection(donorCollectionName).UpdateOne(ctx, filter, update)
}
