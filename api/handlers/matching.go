package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

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

// defaultMatchLimit caps a match listing when the caller sends no limit
const defaultMatchLimit = 10

// Matching exported for testing purposes
type Matching struct {
	RDB databases.DonorRequestDatabase
	DDB databases.DonorDatabase
}

// FindMatchingDonorsHandler returns the active, unallotted donors that meet
// a request's criteria. Read-only; safe to call repeatedly while an operator
// narrows the list client-side. An already-allotted request may still be
// queried (the selection dialog can be reopened); re-allotment is refused by
// the allot write itself, not here.
func (m Matching) FindMatchingDonorsHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	request, err := m.RDB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return
	}

	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		// an unbounded scan of the donor population is the one list that
		// actually costs something, so the default is applied here
		Limit = defaultMatchLimit
		zap.S().Warnf(fmt.Sprintf("limit not set, using default of %v", Limit))
	}
	limit64 := int64(Limit)
	Page = getPage(Page, r)
	skip64 := int64(Page * Limit)

	filter := BuildMatchFilter(request.Details)
	zap.S().Debugw("matching donors", "requestId", requestID, "filter", filter)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	// deterministic order: most recently registered first, _id as tiebreak,
	// so repeated queries over the same data return the same list
	sort := bson.D{{Key: "donor.createdAt", Value: -1}, {Key: "_id", Value: -1}}
	dbResp, err := m.DDB.Find(ctx, filter, &options.FindOptions{Limit: &limit64, Skip: &skip64, Sort: sort})
	if err != nil {
		config.ErrorStatus("failed to get matching donors", http.StatusNotFound, w, err)
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

// BuildMatchFilter translates request criteria into one mongo filter.
// Exported for testing purposes.
//
// Range criteria are inclusive on both ends; an absent range skips the
// dimension, a one-sided range is unbounded on the missing side. Categorical
// criteria match case-insensitively, and a donor missing the field is
// excluded rather than allotted against an explicit ask.
func BuildMatchFilter(d models.DonorRequestDetails) bson.M {
	filter := bson.M{
		"donor.status":     models.DonorStatusActive,
		"donor.isAllotted": false,
	}

	addRangeCriterion(filter, "donor.age", d.AgeRange)
	addRangeCriterion(filter, "donor.height", d.HeightRange)
	addRangeCriterion(filter, "donor.weight", d.WeightRange)

	addCategoricalCriterion(filter, "donor.gender", d.Gender)
	addCategoricalCriterion(filter, "donor.maritalStatus", d.MaritalStatus)
	addCategoricalCriterion(filter, "donor.bloodGroup", d.BloodGroup)
	addCategoricalCriterion(filter, "donor.cast", d.Cast)
	addCategoricalCriterion(filter, "donor.nationality", d.Nationality)
	addCategoricalCriterion(filter, "donor.education", d.Education)
	addCategoricalCriterion(filter, "donor.skinColor", d.SkinColor)
	addCategoricalCriterion(filter, "donor.hairColor", d.HairColor)
	addCategoricalCriterion(filter, "donor.eyeColor", d.EyeColor)

	return filter
}

func addRangeCriterion(filter bson.M, field string, r *models.RangeFilter) {
	if r == nil {
		return
	}
	cond := bson.M{}
	if r.Min != nil {
		cond["$gte"] = *r.Min
	}
	if r.Max != nil {
		cond["$lte"] = *r.Max
	}
	if len(cond) > 0 {
		filter[field] = cond
	}
}

func addCategoricalCriterion(filter bson.M, field, value string) {
	if value == "" {
		return
	}
	// anchored regex gives case-insensitive equality; a donor without the
	// field has nothing for the regex to match and drops out
	filter[field] = bson.M{"$regex": "^" + regexp.QuoteMeta(value) + "$", "$options": "i"}
}
