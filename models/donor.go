package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Donor statuses. Availability is independent of allotment: an inactive
// donor keeps their record but is never matched.
const (
	DonorStatusActive   = "active"
	DonorStatusInactive = "inactive"
)

// Donor holds the structure for the donor collection in mongo
type Donor struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details DonorDetails       `json:"donor" bson:"donor"`
	Version int32              `json:"__v" bson:"__v"`
}

// DonorDetails holds the structure for the inner donor structure as
// defined in the donor collection in mongo
type DonorDetails struct {
	DonorID       string  `json:"donorId" bson:"donorId"` // sequential human-readable id, e.g. SEVA-D-1042
	FirstName     string  `json:"firstName" bson:"firstName"`
	LastName      string  `json:"lastName" bson:"lastName"`
	Age           int     `json:"age" bson:"age"`
	Gender        string  `json:"gender" bson:"gender"`
	MaritalStatus string  `json:"maritalStatus" bson:"maritalStatus"`
	BloodGroup    string  `json:"bloodGroup" bson:"bloodGroup"`
	Height        float64 `json:"height" bson:"height"` // centimeters
	Weight        float64 `json:"weight" bson:"weight"` // kilograms
	SkinColor     string  `json:"skinColor" bson:"skinColor"`
	HairColor     string  `json:"hairColor" bson:"hairColor"`
	EyeColor      string  `json:"eyeColor" bson:"eyeColor"`
	Cast          string  `json:"cast" bson:"cast"`
	Nationality   string  `json:"nationality" bson:"nationality"`
	Education     string  `json:"education" bson:"education"`

	Status            string `json:"status" bson:"status"`
	IsAllotted        bool   `json:"isAllotted" bson:"isAllotted"`
	AllottedRequestID string `json:"allottedRequestId" bson:"allottedRequestId"`

	DonorDocuments     []DocumentSlot `json:"donorDocuments" bson:"donorDocuments"`
	Reports            []DocumentSlot `json:"reports" bson:"reports"`
	OtherDocuments     []DocumentSlot `json:"otherDocuments" bson:"otherDocuments"`
	AllotmentDocuments []DocumentSlot `json:"allotmentDocuments" bson:"allotmentDocuments"`

	AllotmentRemarks *AllotmentRemarks `json:"allotmentRemarks" bson:"allotmentRemarks"`

	IsCaseDone bool               `json:"isCaseDone" bson:"isCaseDone"`
	CaseDoneAt primitive.DateTime `json:"caseDoneAt,omitempty" bson:"caseDoneAt,omitempty"`
	CaseDoneBy string             `json:"caseDoneBy,omitempty" bson:"caseDoneBy,omitempty"`

	CreatedBy string             `json:"createdBy" bson:"createdBy"`
	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// DocumentSlot is one checklist line item inside a donor's document
// collections. HasFile is the single source of truth for "satisfied" and is
// only ever written in lockstep with FilePath.
type DocumentSlot struct {
	ReportName string             `json:"reportName" bson:"reportName"`
	FilePath   string             `json:"filePath" bson:"filePath"`
	HasFile    bool               `json:"hasFile" bson:"hasFile"`
	UploadedBy string             `json:"uploadedBy,omitempty" bson:"uploadedBy,omitempty"`
	UploadedAt primitive.DateTime `json:"uploadedAt,omitempty" bson:"uploadedAt,omitempty"`
}

// AllotmentRemarks records the retrieval outcome for an allotted donor.
// Present only after an operator files it.
type AllotmentRemarks struct {
	RetrievalDate string             `json:"retrievalDate" bson:"retrievalDate"`
	EggsRetrieved int                `json:"eggsRetrieved" bson:"eggsRetrieved"`
	Quality       string             `json:"quality" bson:"quality"`
	Outcome       string             `json:"outcome" bson:"outcome"`
	RecordedBy    string             `json:"recordedBy" bson:"recordedBy"`
	RecordedAt    primitive.DateTime `json:"recordedAt" bson:"recordedAt"`
}
