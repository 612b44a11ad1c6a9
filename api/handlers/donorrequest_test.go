package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sevaclinic/donor-ops-api/api"
	"github.com/sevaclinic/donor-ops-api/api/handlers"
	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/databases/mocks"
	"github.com/sevaclinic/donor-ops-api/models"
)

func TestDonorRequest_CreateDonorRequestHandlerInvalidRange(t *testing.T) {
	body := strings.NewReader(`{"bloodGroup": "O+", "ageRange": {"min": 35, "max": 21}}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request", body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer abc123")

	var db databases.DatabaseHelper
	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}

	u := handlers.DonorRequest{
		DB: databases.NewDonorRequestDatabase(db),
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.CreateDonorRequestHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid donor request criteria")
	assert.Contains(t, rr.Body.String(), "ageRange")
}

func TestDonorRequest_UpdateRequestStatusHandlerUnknownStatus(t *testing.T) {
	body := strings.NewReader(`{"status": "archived"}`)
	req, err := http.NewRequest("PATCH", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/status", body)
	if err != nil {
		t.Fatal(err)
	}

	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req.Header.Set("Authorization", "Bearer abc123")

	var db databases.DatabaseHelper
	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}

	u := handlers.DonorRequest{
		DB: databases.NewDonorRequestDatabase(db),
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.UpdateRequestStatusHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown request status")
}

func TestDonorRequest_WithdrawDonorRequestHandlerForbiddenForOtherUser(t *testing.T) {
	req, err := http.NewRequest("DELETE", "/api/v1/donor-request/608cafe595eb9dc05379b7f4", nil)
	if err != nil {
		t.Fatal(err)
	}

	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "doctor@cityhospital.org"))

	var db databases.DatabaseHelper
	var conn databases.CollectionHelper
	var singleResultHelper databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	conn = &mocks.CollectionHelper{}
	singleResultHelper = &mocks.SingleResultHelper{}

	singleResultHelper.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.DonorRequest)
		(*arg).Details.CreatedBy = "coordinator@sevaclinic.org"
	})
	conn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(conn)

	u := handlers.DonorRequest{
		DB: databases.NewDonorRequestDatabase(db),
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.WithdrawDonorRequestHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "only the request creator may withdraw it")
}

func TestDonorRequest_WithdrawDonorRequestHandlerConflictWhenAllotted(t *testing.T) {
	req, err := http.NewRequest("DELETE", "/api/v1/donor-request/608cafe595eb9dc05379b7f4", nil)
	if err != nil {
		t.Fatal(err)
	}

	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "coordinator@sevaclinic.org"))

	var db databases.DatabaseHelper
	var conn databases.CollectionHelper
	var singleResultHelper databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	conn = &mocks.CollectionHelper{}
	singleResultHelper = &mocks.SingleResultHelper{}

	singleResultHelper.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.DonorRequest)
		(*arg).Details.CreatedBy = "coordinator@sevaclinic.org"
		(*arg).Details.IsAlloted = true
	})
	conn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	// the conditional delete pins isAlloted=false, so nothing matches
	conn.(*mocks.CollectionHelper).On("DeleteOne", mock.Anything, mock.Anything).Return(int64(0), nil)
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(conn)

	u := handlers.DonorRequest{
		DB: databases.NewDonorRequestDatabase(db),
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.WithdrawDonorRequestHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "cancel the allotment before withdrawing this request")
}

func TestDonorRequest_WithdrawDonorRequestHandlerSuccess(t *testing.T) {
	req, err := http.NewRequest("DELETE", "/api/v1/donor-request/608cafe595eb9dc05379b7f4", nil)
	if err != nil {
		t.Fatal(err)
	}

	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "coordinator@sevaclinic.org"))

	var db databases.DatabaseHelper
	var conn databases.CollectionHelper
	var singleResultHelper databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	conn = &mocks.CollectionHelper{}
	singleResultHelper = &mocks.SingleResultHelper{}

	singleResultHelper.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.DonorRequest)
		(*arg).Details.CreatedBy = "coordinator@sevaclinic.org"
	})
	conn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	conn.(*mocks.CollectionHelper).On("DeleteOne", mock.Anything, mock.Anything).Return(int64(1), nil)
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(conn)

	u := handlers.DonorRequest{
		DB: databases.NewDonorRequestDatabase(db),
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.WithdrawDonorRequestHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"withdrawn": true}`, rr.Body.String())
}
