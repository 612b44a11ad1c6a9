package models

// Hospital holds the structure for the hospital collection in mongo. This
// service only ever reads hospitals to resolve display fields on requests.
type Hospital struct {
	ID      string          `json:"_id" bson:"_id"`
	Details HospitalDetails `json:"hospital" bson:"hospital"`
	Version int32           `json:"__v" bson:"__v"`
}

// HospitalDetails holds the structure for the inner hospital structure as
// defined in the hospital collection in mongo
type HospitalDetails struct {
	Name          string      `json:"name" bson:"name"`
	Address       string      `json:"address" bson:"address"`
	City          string      `json:"city" bson:"city"`
	ContactNumber string      `json:"contactNumber" bson:"contactNumber"`
	ContactEmail  string      `json:"contactEmail" bson:"contactEmail"`
	CreatedAt     interface{} `json:"createdAt" bson:"createdAt"`
	UpdatedAt     interface{} `json:"updatedAt" bson:"updatedAt"`
}
