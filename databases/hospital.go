package databases

// go generate: mockery --name HospitalDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sevaclinic/donor-ops-api/models"
)

const hospitalCollectionName = "hospitals"

// HospitalDatabase contains the read-only methods used to resolve hospital
// display fields on requests. The clinic portal owns hospital CRUD.
type HospitalDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Hospital, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Hospital, error)
}

type hospitalDatabase struct {
	db DatabaseHelper
}

// NewHospitalDatabase initializes a new instance of hospital database with the provided db connection
func NewHospitalDatabase(db DatabaseHelper) HospitalDatabase {
	return &hospitalDatabase{
		db: db,
	}
}

func (h *hospitalDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Hospital, error) {
	hospital := &models.Hospital{}
	err := h.db.Collection(hospitalCollectionName).FindOne(ctx, filter, opts...).Decode(&hospital)
	if err != nil {
		return nil, err
	}
	return hospital, nil
}

func (h *hospitalDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Hospital, error) {
	var hospitals []models.Hospital
	cur := h.db.Collection(hospitalCollectionName).Find(ctx, filter, opts...)
	err := cur.Decode(&hospitals)
	if err != nil {
		return nil, err
	}
	return hospitals, nil
}
