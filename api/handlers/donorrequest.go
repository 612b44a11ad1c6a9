package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sevaclinic/donor-ops-api/api"
	"github.com/sevaclinic/donor-ops-api/config"
	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/models"
)

// DonorRequest exported for testing purposes
type DonorRequest struct {
	DB  databases.DonorRequestDatabase
	UDB databases.UserDatabase
}

// CreateDonorRequestHandler records a hospital's ask for a donor. Malformed
// range criteria are rejected here, never deferred to match time.
func (dr DonorRequest) CreateDonorRequestHandler(w http.ResponseWriter, r *http.Request) {
	var details models.DonorRequestDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		config.ErrorStatus("failed to decode donor request", http.StatusBadRequest, w, err)
		return
	}
	if err := details.Validate(); err != nil {
		config.ErrorStatus("invalid donor request criteria", http.StatusBadRequest, w, err)
		return
	}

	details.Status = models.RequestStatusPending
	details.IsAlloted = false
	details.AllottedTo = ""
	details.CreatedBy = api.ActingUser(r)
	now := primitive.NewDateTimeFromTime(time.Now())
	details.CreatedAt = now
	details.UpdatedAt = now

	type donorRequest struct {
		DonorRequest models.DonorRequestDetails `bson:"donorRequest"`
	}
	res, err := dr.DB.InsertOne(r.Context(), donorRequest{DonorRequest: details})
	if err != nil {
		config.ErrorStatus("failed to create donor request", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(map[string]interface{}{"_id": res.Decode(), "donorRequest": details})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// DonorRequestHandler returns all donor requests, paginated, optionally
// filtered by hospital or status
func (dr DonorRequest) DonorRequestHandler(w http.ResponseWriter, r *http.Request) {
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		zap.S().Warnf(fmt.Sprintf("limit not set, using default of %v, err: %v", Limit|10, err))
	}
	limit64 := int64(Limit)
	Page = getPage(Page, r)
	skip64 := int64(Page * Limit)

	filter := bson.M{}
	if hospitalID := r.URL.Query().Get("hospital_id"); hospitalID != "" {
		filter["donorRequest.hospitalId"] = hospitalID
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["donorRequest.status"] = status
	}

	dbResp, err := dr.DB.Find(r.Context(), filter, &options.FindOptions{Limit: &limit64, Skip: &skip64})
	if err != nil {
		config.ErrorStatus("failed to get donor requests", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.DonorRequest{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DonorRequestByIDHandler returns a donor request by ID
func (dr DonorRequest) DonorRequestByIDHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := dr.DB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateDonorRequestHandler edits request criteria. Edits do not
// retroactively re-validate an existing allotment.
func (dr DonorRequest) UpdateDonorRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	if actor, ok := requireAdmin(r.Context(), dr.UDB, r); !ok {
		config.ErrorStatus("criteria edits require an administrator", http.StatusForbidden, w,
			&models.ConflictError{Reason: "user " + actor + " may not edit request criteria"})
		return
	}

	var details models.DonorRequestDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		config.ErrorStatus("failed to decode donor request", http.StatusBadRequest, w, err)
		return
	}
	if err := details.Validate(); err != nil {
		config.ErrorStatus("invalid donor request criteria", http.StatusBadRequest, w, err)
		return
	}

	update := bson.M{"$set": bson.M{
		"donorRequest.gender":         details.Gender,
		"donorRequest.maritalStatus":  details.MaritalStatus,
		"donorRequest.bloodGroup":     details.BloodGroup,
		"donorRequest.cast":           details.Cast,
		"donorRequest.nationality":    details.Nationality,
		"donorRequest.education":      details.Education,
		"donorRequest.skinColor":      details.SkinColor,
		"donorRequest.hairColor":      details.HairColor,
		"donorRequest.eyeColor":       details.EyeColor,
		"donorRequest.ageRange":       details.AgeRange,
		"donorRequest.heightRange":    details.HeightRange,
		"donorRequest.weightRange":    details.WeightRange,
		"donorRequest.requiredByDate": details.RequiredByDate,
		"donorRequest.updatedAt":      primitive.NewDateTimeFromTime(time.Now()),
	}}
	res, err := dr.DB.UpdateOne(r.Context(), bson.M{"_id": rID}, update)
	if err != nil {
		config.ErrorStatus("failed to update donor request", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w,
			&models.NotFoundError{Kind: "donor request", ID: requestID})
		return
	}

	dbResp, err := dr.DB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateRequestStatusHandler moves a request through its review states.
// These are informational and never touch the allotment fields.
func (dr DonorRequest) UpdateRequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode status", http.StatusBadRequest, w, err)
		return
	}
	switch body.Status {
	case models.RequestStatusApproved, models.RequestStatusRejected, models.RequestStatusFulfilled, models.RequestStatusPending:
	default:
		config.ErrorStatus("unknown request status", http.StatusBadRequest, w,
			&models.ValidationError{Field: "status", Reason: "must be pending, approved, rejected or fulfilled"})
		return
	}

	update := bson.M{"$set": bson.M{
		"donorRequest.status":    body.Status,
		"donorRequest.updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	}}
	res, err := dr.DB.UpdateOne(r.Context(), bson.M{"_id": rID}, update)
	if err != nil {
		config.ErrorStatus("failed to update request status", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w,
			&models.NotFoundError{Kind: "donor request", ID: requestID})
		return
	}

	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(map[string]string{"status": body.Status})
	w.Write(b)
}

// WithdrawDonorRequestHandler deletes a request. Withdrawal is only
// permitted while the request is unallotted; an allotted request must have
// its allotment cancelled first. Only the request's creator may withdraw it.
func (dr DonorRequest) WithdrawDonorRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := dr.DB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return
	}
	if actor := api.ActingUser(r); actor != "" && dbResp.Details.CreatedBy != actor {
		config.ErrorStatus("only the request creator may withdraw it", http.StatusForbidden, w,
			&models.ConflictError{Reason: "acting user did not create this request"})
		return
	}

	// conditional delete: a request that became allotted between the read
	// and this write still cannot slip through
	deleted, err := dr.DB.DeleteOne(r.Context(), bson.M{
		"_id":                    rID,
		"donorRequest.isAlloted": false,
	})
	if err != nil {
		config.ErrorStatus("failed to withdraw donor request", http.StatusInternalServerError, w, err)
		return
	}
	if deleted == 0 {
		config.ErrorStatus("request is allotted", http.StatusConflict, w,
			&models.ConflictError{Reason: "cancel the allotment before withdrawing this request"})
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"withdrawn": true}`))
}
