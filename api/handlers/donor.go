package handlers

import (
	"context"
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

var (
	// Page denotes the starting Page for pagination results
	Page = 0
)

// donorIDPrefix prefixes every generated sequential donor id
const donorIDPrefix = "SEVA-D"

// Donor exported for testing purposes
type Donor struct {
	DB       databases.DonorDatabase
	RDB      databases.DonorRequestDatabase
	CDB      databases.CounterDatabase
	Uploader Uploader
}

// DonorResponse is a donor plus the precomputed case readiness verdict, so
// every consumer renders the same satisfied/pending state.
type DonorResponse struct {
	models.Donor
	CaseReadiness models.CaseReadiness `json:"caseReadiness"`
}

// CreateDonorHandler registers a donor with the checklist slots
// pre-populated as empty placeholders and a generated sequential donor id
func (d Donor) CreateDonorHandler(w http.ResponseWriter, r *http.Request) {
	var details models.DonorDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		config.ErrorStatus("failed to decode donor", http.StatusBadRequest, w, err)
		return
	}

	seq, err := d.CDB.NextSequence(r.Context(), "donorId")
	if err != nil {
		config.ErrorStatus("failed to generate donor id", http.StatusInternalServerError, w, err)
		return
	}
	details.DonorID = fmt.Sprintf("%s-%d", donorIDPrefix, seq)
	if details.Status == "" {
		details.Status = models.DonorStatusActive
	}
	details.IsAllotted = false
	details.AllottedRequestID = ""
	details.IsCaseDone = false
	details.AllotmentRemarks = nil
	details.DonorDocuments, details.Reports, details.OtherDocuments, details.AllotmentDocuments = models.NewDocumentChecklists()
	details.CreatedBy = api.ActingUser(r)
	now := primitive.NewDateTimeFromTime(time.Now())
	details.CreatedAt = now
	details.UpdatedAt = now

	type donor struct {
		Donor models.DonorDetails `bson:"donor"`
	}
	res, err := d.DB.InsertOne(r.Context(), donor{Donor: details})
	if err != nil {
		config.ErrorStatus("failed to create donor", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(map[string]interface{}{"_id": res.Decode(), "donor": details})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// DonorHandler returns all donors, paginated, optionally filtered by status
func (d Donor) DonorHandler(w http.ResponseWriter, r *http.Request) {
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		zap.S().Warnf(fmt.Sprintf("limit not set, using default of %v, err: %v", Limit|10, err))
	}
	limit64 := int64(Limit)
	Page = getPage(Page, r)
	skip64 := int64(Page * Limit)

	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["donor.status"] = status
	}

	dbResp, err := d.DB.Find(r.Context(), filter, &options.FindOptions{Limit: &limit64, Skip: &skip64})
	if err != nil {
		config.ErrorStatus("failed to get donors", http.StatusNotFound, w, err)
		return
	}
	// Because the frontend requires that the data elements exist, if
	// len == 0 then we will just return an empty data object
	if len(dbResp) == 0 {
		dbResp = []models.Donor{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DonorsByNameSearchHandler returns a paginated list of donors that match
// the given name or donor id
func (d Donor) DonorsByNameSearchHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	donorID := r.URL.Query().Get("donor_id")
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		zap.S().Warnf(fmt.Sprintf("limit not set, using default of %v", Limit|10))
	}
	limit64 := int64(Limit)
	Page = getPage(Page, r)
	skip64 := int64(Page * Limit)

	var orConditions []bson.M
	if name != "" {
		orConditions = append(orConditions, bson.M{"donor.firstName": bson.M{"$regex": name, "$options": "i"}})
		orConditions = append(orConditions, bson.M{"donor.lastName": bson.M{"$regex": name, "$options": "i"}})
	}
	if donorID != "" {
		orConditions = append(orConditions, bson.M{"donor.donorId": bson.M{"$regex": donorID, "$options": "i"}})
	}

	filter := bson.M{}
	if len(orConditions) > 0 {
		filter["$or"] = orConditions
	}

	dbResp, err := d.DB.Find(r.Context(), filter, &options.FindOptions{Limit: &limit64, Skip: &skip64})
	if err != nil {
		config.ErrorStatus("failed to get donor name search", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Donor{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DonorByIDHandler returns a donor by ID with the precomputed case readiness
func (d Donor) DonorByIDHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]

	zap.S().Debugf("donor_id: %v", donorID)

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := d.DB.FindOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
		return
	}

	resp := DonorResponse{Donor: *dbResp, CaseReadiness: models.EvaluateCaseReadiness(&dbResp.Details)}
	b, err := json.Marshal(resp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateDonorHandler updates a donor's profile fields. Checklist slots,
// allotment state and the case-done flag have their own write paths and are
// not touched here.
func (d Donor) UpdateDonorHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var details models.DonorDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		config.ErrorStatus("failed to decode donor", http.StatusBadRequest, w, err)
		return
	}

	update := bson.M{"$set": bson.M{
		"donor.firstName":     details.FirstName,
		"donor.lastName":      details.LastName,
		"donor.age":           details.Age,
		"donor.gender":        details.Gender,
		"donor.maritalStatus": details.MaritalStatus,
		"donor.bloodGroup":    details.BloodGroup,
		"donor.height":        details.Height,
		"donor.weight":        details.Weight,
		"donor.skinColor":     details.SkinColor,
		"donor.hairColor":     details.HairColor,
		"donor.eyeColor":      details.EyeColor,
		"donor.cast":          details.Cast,
		"donor.nationality":   details.Nationality,
		"donor.education":     details.Education,
		"donor.status":        details.Status,
		"donor.updatedAt":     primitive.NewDateTimeFromTime(time.Now()),
	}}
	res, err := d.DB.UpdateOne(r.Context(), bson.M{"_id": dID}, update)
	if err != nil {
		config.ErrorStatus("failed to update donor", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, &models.NotFoundError{Kind: "donor", ID: donorID})
		return
	}

	dbResp, err := d.DB.FindOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
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

// DeleteDonorHandler deletes a donor. Deletion is refused while any request
// still references the donor as allottedTo; cancel the allotment first.
func (d Donor) DeleteDonorHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	count, err := d.RDB.CountDocuments(r.Context(), bson.M{"donorRequest.allottedTo": dID.Hex()})
	if err != nil {
		config.ErrorStatus("failed to check donor references", http.StatusInternalServerError, w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("donor is referenced by an allotted request", http.StatusConflict, w,
			&models.ConflictError{Reason: "cancel the allotment before deleting this donor"})
		return
	}

	deleted, err := d.DB.DeleteOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to delete donor", http.StatusInternalServerError, w, err)
		return
	}
	if deleted == 0 {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, &models.NotFoundError{Kind: "donor", ID: donorID})
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"deleted": true}`))
}

// UploadDonorDocumentHandler accepts a multipart file, hands it to the
// upload service and fills the addressed slot with the returned reference.
// filePath and hasFile change together or not at all.
func (d Donor) UploadDonorDocumentHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]
	collectionName := mux.Vars(r)["collection"]
	indexStr := mux.Vars(r)["index"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	collection, ok := models.ParseDocumentCollection(collectionName)
	if !ok {
		config.ErrorStatus("unknown document collection", http.StatusBadRequest, w,
			&models.ValidationError{Field: "collection", Reason: "must be one of the four document collections"})
		return
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		config.ErrorStatus("invalid document slot index", http.StatusBadRequest, w,
			&models.ValidationError{Field: "index", Reason: "must be a non-negative integer"})
		return
	}

	if d.Uploader == nil {
		config.ErrorStatus("upload service unavailable", http.StatusServiceUnavailable, w,
			&models.UploadFailedError{Err: fmt.Errorf("uploader not configured")})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		config.ErrorStatus("failed to read uploaded file", http.StatusBadRequest, w, err)
		return
	}
	defer file.Close()

	publicID := fmt.Sprintf("%s-%s-%d", donorID, collection, index)
	filePath, err := d.Uploader.Upload(r.Context(), file, publicID)
	if err != nil {
		// the slot is untouched on upload failure
		config.ErrorStatus("upload failed", http.StatusBadGateway, w, &models.UploadFailedError{Err: err})
		return
	}

	slot := models.DocumentSlot{
		FilePath:   filePath,
		UploadedBy: api.ActingUser(r),
		UploadedAt: primitive.NewDateTimeFromTime(time.Now()),
	}
	res, err := d.DB.UpsertDocumentSlot(r.Context(), dID, collection, index, slot)
	if err != nil {
		config.ErrorStatus("failed to update document slot", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("document slot not found", http.StatusNotFound, w,
			&models.NotFoundError{Kind: "donor", ID: donorID})
		return
	}

	d.writeSlotResponse(r.Context(), w, dID, collection, index)
}

// DeleteDonorDocumentHandler resets the addressed slot to empty. filePath
// and hasFile are cleared together.
func (d Donor) DeleteDonorDocumentHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]
	collectionName := mux.Vars(r)["collection"]
	indexStr := mux.Vars(r)["index"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	collection, ok := models.ParseDocumentCollection(collectionName)
	if !ok {
		config.ErrorStatus("unknown document collection", http.StatusBadRequest, w,
			&models.ValidationError{Field: "collection", Reason: "must be one of the four document collections"})
		return
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		config.ErrorStatus("invalid document slot index", http.StatusBadRequest, w,
			&models.ValidationError{Field: "index", Reason: "must be a non-negative integer"})
		return
	}

	res, err := d.DB.UpsertDocumentSlot(r.Context(), dID, collection, index, models.DocumentSlot{})
	if err != nil {
		config.ErrorStatus("failed to reset document slot", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("document slot not found", http.StatusNotFound, w,
			&models.NotFoundError{Kind: "donor", ID: donorID})
		return
	}

	d.writeSlotResponse(r.Context(), w, dID, collection, index)
}

// AppendDonorDocumentSlotHandler adds an operator-defined extra slot. Only
// the allotment category accepts extras; the other collections are fixed at
// registration.
func (d Donor) AppendDonorDocumentSlotHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]
	collectionName := mux.Vars(r)["collection"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	collection, ok := models.ParseDocumentCollection(collectionName)
	if !ok || collection != models.CollectionAllotmentDocuments {
		config.ErrorStatus("extra slots are limited to allotment documents", http.StatusBadRequest, w,
			&models.ValidationError{Field: "collection", Reason: "extra slots may only be added to allotmentDocuments"})
		return
	}

	var body struct {
		ReportName string `json:"reportName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ReportName == "" {
		config.ErrorStatus("failed to decode slot name", http.StatusBadRequest, w,
			&models.ValidationError{Field: "reportName", Reason: "must not be empty"})
		return
	}

	res, err := d.DB.AppendDocumentSlot(r.Context(), dID, body.ReportName)
	if err != nil {
		config.ErrorStatus("failed to append document slot", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, &models.NotFoundError{Kind: "donor", ID: donorID})
		return
	}

	w.WriteHeader(http.StatusCreated)
	b, _ := json.Marshal(models.DocumentSlot{ReportName: body.ReportName})
	w.Write(b)
}

// SaveRemarksHandler records the allotment outcome for a donor
func (d Donor) SaveRemarksHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var remarks models.AllotmentRemarks
	if err := json.NewDecoder(r.Body).Decode(&remarks); err != nil {
		config.ErrorStatus("failed to decode remarks", http.StatusBadRequest, w, err)
		return
	}
	remarks.RecordedBy = api.ActingUser(r)
	remarks.RecordedAt = primitive.NewDateTimeFromTime(time.Now())

	update := bson.M{"$set": bson.M{
		"donor.allotmentRemarks": remarks,
		"donor.updatedAt":        primitive.NewDateTimeFromTime(time.Now()),
	}}
	res, err := d.DB.UpdateOne(r.Context(), bson.M{"_id": dID}, update)
	if err != nil {
		config.ErrorStatus("failed to save remarks", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, &models.NotFoundError{Kind: "donor", ID: donorID})
		return
	}

	dbResp, err := d.DB.FindOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
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

// MarkCaseDoneHandler closes a donor's case once every checklist item is
// satisfied. The transition is terminal; nothing reopens a closed case.
func (d Donor) MarkCaseDoneHandler(w http.ResponseWriter, r *http.Request) {
	donorID := mux.Vars(r)["donor_id"]

	dID, err := primitive.ObjectIDFromHex(donorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := d.DB.FindOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
		return
	}
	if dbResp.Details.IsCaseDone {
		config.ErrorStatus("case is already closed", http.StatusConflict, w,
			&models.ConflictError{Reason: "case is already closed"})
		return
	}

	readiness := models.EvaluateCaseReadiness(&dbResp.Details)
	if !readiness.Ready {
		notReady := &models.NotReadyError{Missing: readiness.Missing()}
		zap.S().Infow("case close refused", "donorId", donorID, "missing", notReady.Missing)
		w.WriteHeader(http.StatusUnprocessableEntity)
		b, _ := json.Marshal(map[string]interface{}{
			"error":   "case is not ready to close",
			"missing": notReady.Missing,
		})
		w.Write(b)
		return
	}

	update := bson.M{"$set": bson.M{
		"donor.isCaseDone": true,
		"donor.caseDoneAt": primitive.NewDateTimeFromTime(time.Now()),
		"donor.caseDoneBy": api.ActingUser(r),
		"donor.updatedAt":  primitive.NewDateTimeFromTime(time.Now()),
	}}
	// pin isCaseDone=false so two racing closers produce one winner
	res, err := d.DB.UpdateOne(r.Context(), bson.M{"_id": dID, "donor.isCaseDone": false}, update)
	if err != nil {
		config.ErrorStatus("failed to close case", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("case is already closed", http.StatusConflict, w,
			&models.ConflictError{Reason: "case is already closed"})
		return
	}

	updated, err := d.DB.FindOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
		return
	}
	resp := DonorResponse{Donor: *updated, CaseReadiness: models.EvaluateCaseReadiness(&updated.Details)}
	b, err := json.Marshal(resp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (d Donor) writeSlotResponse(ctx context.Context, w http.ResponseWriter, dID primitive.ObjectID, collection models.DocumentCollection, index int) {
	dbResp, err := d.DB.FindOne(ctx, bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
		return
	}
	slots := dbResp.Details.DocumentCollectionSlots(collection)
	if index >= len(slots) {
		config.ErrorStatus("document slot not found", http.StatusNotFound, w,
			&models.NotFoundError{Kind: "donor", ID: dID.Hex()})
		return
	}
	b, err := json.Marshal(slots[index])
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func getPage(Page int, r *http.Request) int {
	if r.URL.Query().Get("page") == "" {
		zap.S().Warnf("page not set, using default of %v", Page)
	} else {
		var err error
		Page, err = strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			zap.S().Errorf(fmt.Sprintf("error parsing page number: %v", err))
		}
		if Page < 0 {
			zap.S().Warnf(fmt.Sprintf("cannot process page number less than 1. Got: %v", Page))
			return 0
		}
	}
	return Page
}
