package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/sevaclinic/donor-ops-api/config"
	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/models"
)

// Hospital exported for testing purposes
type Hospital struct {
	DB  databases.HospitalDatabase
	UDB databases.UserDatabase
}

// HospitalByIDHandler returns a hospital by ID
func (h Hospital) HospitalByIDHandler(w http.ResponseWriter, r *http.Request) {
	hospitalID := mux.Vars(r)["hospital_id"]

	zap.S().Debugf("hospital_id: %v", hospitalID)

	hID, err := primitive.ObjectIDFromHex(hospitalID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := h.DB.FindOne(r.Context(), bson.M{"_id": hID})
	if err != nil {
		config.ErrorStatus("failed to get hospital by ID", http.StatusNotFound, w, err)
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

// HospitalHandler returns all hospitals
func (h Hospital) HospitalHandler(w http.ResponseWriter, r *http.Request) {
	dbResp, err := h.DB.Find(r.Context(), bson.M{})
	if err != nil {
		config.ErrorStatus("failed to get hospitals", http.StatusNotFound, w, err)
		return
	}

	// Because the frontend requires that the data elements inside models.Hospital exist, if
	// len == 0 then we will just return an empty data object
	if len(dbResp) == 0 {
		dbResp = []models.Hospital{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UserByIDHandler returns a user from the directory by ID
func (h Hospital) UserByIDHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	zap.S().Debugf("user_id: %v", userID)

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := h.UDB.FindOne(r.Context(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
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
