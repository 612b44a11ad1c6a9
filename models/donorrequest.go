package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Request lifecycle statuses. These are informational review states and are
// orthogonal to the allotment flag.
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusFulfilled = "fulfilled"
)

// DonorRequest holds the structure for the donorRequest collection in mongo
type DonorRequest struct {
	ID      primitive.ObjectID  `json:"_id" bson:"_id"`
	Details DonorRequestDetails `json:"donorRequest" bson:"donorRequest"`
	Version int32               `json:"__v" bson:"__v"`
}

// DonorRequestDetails holds the structure for the inner donorRequest
// structure as defined in the donorRequest collection in mongo
type DonorRequestDetails struct {
	Gender        string `json:"gender" bson:"gender"`
	MaritalStatus string `json:"maritalStatus" bson:"maritalStatus"`
	BloodGroup    string `json:"bloodGroup" bson:"bloodGroup"`
	Cast          string `json:"cast" bson:"cast"`
	Nationality   string `json:"nationality" bson:"nationality"`
	Education     string `json:"education" bson:"education"`
	SkinColor     string `json:"skinColor" bson:"skinColor"`
	HairColor     string `json:"hairColor" bson:"hairColor"`
	EyeColor      string `json:"eyeColor" bson:"eyeColor"`

	AgeRange    *RangeFilter `json:"ageRange,omitempty" bson:"ageRange,omitempty"`
	HeightRange *RangeFilter `json:"heightRange,omitempty" bson:"heightRange,omitempty"`
	WeightRange *RangeFilter `json:"weightRange,omitempty" bson:"weightRange,omitempty"`

	RequiredByDate string `json:"requiredByDate" bson:"requiredByDate"`
	HospitalID     string `json:"hospitalId" bson:"hospitalId"`
	DoctorID       string `json:"doctorId" bson:"doctorId"`
	CreatedBy      string `json:"createdBy" bson:"createdBy"`

	Status string `json:"status" bson:"status"`

	IsAlloted  bool               `json:"isAlloted" bson:"isAlloted"`
	AllottedTo string             `json:"allottedTo" bson:"allottedTo"` // donor record id hex
	AllottedAt primitive.DateTime `json:"allottedAt,omitempty" bson:"allottedAt,omitempty"`

	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// RangeFilter is an inclusive [Min, Max] criterion. An absent RangeFilter
// skips the dimension entirely; a nil side leaves that side unbounded.
type RangeFilter struct {
	Min *float64 `json:"min,omitempty" bson:"min,omitempty"`
	Max *float64 `json:"max,omitempty" bson:"max,omitempty"`
}

// Validate rejects an inverted or negative range at request-creation time so
// the matching engine never has to second-guess stored criteria.
func (r *RangeFilter) Validate(name string) error {
	if r == nil {
		return nil
	}
	if r.Min != nil && *r.Min < 0 {
		return &ValidationError{Field: name, Reason: "min must not be negative"}
	}
	if r.Max != nil && *r.Max < 0 {
		return &ValidationError{Field: name, Reason: "max must not be negative"}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return &ValidationError{Field: name, Reason: "min must not exceed max"}
	}
	return nil
}

// Validate checks every range criterion on the request.
func (d *DonorRequestDetails) Validate() error {
	if err := d.AgeRange.Validate("ageRange"); err != nil {
		return err
	}
	if err := d.HeightRange.Validate("heightRange"); err != nil {
		return err
	}
	return d.WeightRange.Validate("weightRange")
}
