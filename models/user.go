package models

// User holds the structure for the user collection in mongo. Users are a
// read-only directory for this service; the clinic portal owns their CRUD.
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in the user collection in mongo
type UserDetails struct {
	Email      string      `json:"email" bson:"email"`
	Name       string      `json:"name" bson:"name"`
	Username   string      `json:"username" bson:"username"`
	Password   string      `json:"password" bson:"password"`
	Role       string      `json:"role" bson:"role"` // admin | doctor | coordinator
	HospitalID string      `json:"hospitalId" bson:"hospitalId"`
	CreatedAt  interface{} `json:"createdAt" bson:"createdAt"`
	UpdatedAt  interface{} `json:"updatedAt" bson:"updatedAt"`
}

// RoleAdmin and friends are the acting-user roles threaded into every
// mutating call. Admins allot, decline and cancel; a request's creator may
// withdraw their own pending request.
const (
	RoleAdmin       = "admin"
	RoleDoctor      = "doctor"
	RoleCoordinator = "coordinator"
)

// HealthCheckResponse returns the health check response struct, exported for testing purposes
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
