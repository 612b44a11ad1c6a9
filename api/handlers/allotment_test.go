package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sevaclinic/donor-ops-api/api"
	"github.com/sevaclinic/donor-ops-api/api/handlers"
	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/databases/mocks"
	"github.com/sevaclinic/donor-ops-api/models"
)

// adminUserConn returns a users-collection mock whose lookups resolve to an
// administrator, so role checks pass.
func adminUserConn() *mocks.CollectionHelper {
	userResult := &mocks.SingleResultHelper{}
	userResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).Details.Email = "admin@sevaclinic.org"
		(*arg).Details.Role = models.RoleAdmin
	})
	conn := &mocks.CollectionHelper{}
	conn.On("FindOne", mock.Anything, mock.Anything).Return(userResult)
	return conn
}

func allotmentHandlerWith(db databases.DatabaseHelper) handlers.Allotment {
	return handlers.Allotment{
		RDB: databases.NewDonorRequestDatabase(db),
		DDB: databases.NewDonorDatabase(db),
		UDB: databases.NewUserDatabase(db),
	}
}

func TestAllotment_AllotHandlerForbiddenWithoutActingUser(t *testing.T) {
	body := strings.NewReader(`{"donorId": "608cafe595eb9dc05379b7f5"}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/allot", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})

	var db databases.DatabaseHelper
	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.AllotHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "allotment requires an administrator")
}

func TestAllotment_AllotHandlerRequestAlreadyAllotted(t *testing.T) {
	body := strings.NewReader(`{"donorId": "608cafe595eb9dc05379b7f5"}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/allot", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var requestResult databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	requestResult = &mocks.SingleResultHelper{}

	requestResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.DonorRequest)
		(*arg).Details.IsAlloted = true
		(*arg).Details.AllottedTo = "608cafe595eb9dc05379b7f6"
	})
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(requestResult)
	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.AllotHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "request is already allotted")
}

func TestAllotment_AllotHandlerDonorNotEligible(t *testing.T) {
	body := strings.NewReader(`{"donorId": "608cafe595eb9dc05379b7f5"}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/allot", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var donorConn databases.CollectionHelper
	var requestResult databases.SingleResultHelper
	var donorResult databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	donorConn = &mocks.CollectionHelper{}
	requestResult = &mocks.SingleResultHelper{}
	donorResult = &mocks.SingleResultHelper{}

	requestResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil)
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(requestResult)

	// the conditional write matches nothing: donor is inactive or already
	// allotted to another request
	donorConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)
	donorResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Donor)
		(*arg).Details.Status = models.DonorStatusActive
		(*arg).Details.IsAllotted = true
	})
	donorConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(donorResult)

	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)
	db.(*MockDatabaseHelper).On("Collection", "donors").Return(donorConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.AllotHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "donor is not eligible")
}

func TestAllotment_AllotHandlerCompensatesOnRequestRace(t *testing.T) {
	body := strings.NewReader(`{"donorId": "608cafe595eb9dc05379b7f5"}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/allot", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var donorConn databases.CollectionHelper
	var requestResult databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	donorConn = &mocks.CollectionHelper{}
	requestResult = &mocks.SingleResultHelper{}

	requestResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil)
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(requestResult)

	// donor side succeeds, request side loses the race
	donorConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	requestConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)

	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)
	db.(*MockDatabaseHelper).On("Collection", "donors").Return(donorConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.AllotHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "request is already allotted")

	// the donor write was rolled back: one MarkAllotted and one ClearAllotment
	donorConn.(*mocks.CollectionHelper).AssertNumberOfCalls(t, "UpdateOne", 2)
}

func TestAllotment_AllotHandlerDuplicateSubmitLeavesWinnerIntact(t *testing.T) {
	body := strings.NewReader(`{"donorId": "608cafe595eb9dc05379b7f5"}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/allot", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var donorConn databases.CollectionHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	donorConn = &mocks.CollectionHelper{}

	// first read: the duplicate has not committed yet
	unallottedResult := &mocks.SingleResultHelper{}
	unallottedResult.On("Decode", mock.Anything).Return(nil)
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(unallottedResult).Once()

	// the donor write matches via the same-request branch, then the request
	// write loses to the duplicate that committed in between
	donorConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 0}, nil)
	requestConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)

	// second read: the request is now allotted to this very donor
	allottedResult := &mocks.SingleResultHelper{}
	allottedResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.DonorRequest)
		(*arg).Details.IsAlloted = true
		(*arg).Details.AllottedTo = "608cafe595eb9dc05379b7f5"
	})
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(allottedResult)

	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)
	db.(*MockDatabaseHelper).On("Collection", "donors").Return(donorConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.AllotHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "request is already allotted")

	// the committed allotment's donor flag is untouched: only the one
	// MarkAllotted write, no compensating clear
	donorConn.(*mocks.CollectionHelper).AssertNumberOfCalls(t, "UpdateOne", 1)
}

func TestAllotment_AllotHandlerSuccess(t *testing.T) {
	body := strings.NewReader(`{"donorId": "608cafe595eb9dc05379b7f5"}`)
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/allot", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var donorConn databases.CollectionHelper
	var requestResult databases.SingleResultHelper
	var donorResult databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	donorConn = &mocks.CollectionHelper{}
	requestResult = &mocks.SingleResultHelper{}
	donorResult = &mocks.SingleResultHelper{}

	requestResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil)
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(requestResult)
	requestConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	donorResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Donor)
		(*arg).Details.DonorID = "SEVA-D-7"
		(*arg).Details.IsAllotted = true
	})
	donorConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(donorResult)
	donorConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)
	db.(*MockDatabaseHelper).On("Collection", "donors").Return(donorConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.AllotHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"request"`)
	assert.Contains(t, rr.Body.String(), `"donor"`)
	assert.Contains(t, rr.Body.String(), "SEVA-D-7")
}

func TestAllotment_CancelAllotmentHandlerNotAllotted(t *testing.T) {
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/cancel-allotment", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var requestResult databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	requestResult = &mocks.SingleResultHelper{}

	requestResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil)
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(requestResult)
	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.CancelAllotmentHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "request is not allotted")
}

func TestAllotment_CancelAllotmentHandlerSuccess(t *testing.T) {
	req, err := http.NewRequest("POST", "/api/v1/donor-request/608cafe595eb9dc05379b7f4/cancel-allotment", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"request_id": "608cafe595eb9dc05379b7f4"})
	req = req.WithContext(api.WithActingUser(req.Context(), "admin@sevaclinic.org"))

	var db databases.DatabaseHelper
	var requestConn databases.CollectionHelper
	var donorConn databases.CollectionHelper
	var requestResult databases.SingleResultHelper
	var donorResult databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	requestConn = &mocks.CollectionHelper{}
	donorConn = &mocks.CollectionHelper{}
	requestResult = &mocks.SingleResultHelper{}
	donorResult = &mocks.SingleResultHelper{}

	requestResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.DonorRequest)
		(*arg).Details.IsAlloted = true
		(*arg).Details.AllottedTo = "608cafe595eb9dc05379b7f5"
	})
	requestConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(requestResult)
	requestConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	donorResult.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(nil)
	donorConn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(donorResult)
	donorConn.(*mocks.CollectionHelper).On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	db.(*MockDatabaseHelper).On("Collection", "users").Return(adminUserConn())
	db.(*MockDatabaseHelper).On("Collection", "donorRequests").Return(requestConn)
	db.(*MockDatabaseHelper).On("Collection", "donors").Return(donorConn)

	u := allotmentHandlerWith(db)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.CancelAllotmentHandler)

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"request"`)
	assert.Contains(t, rr.Body.String(), `"donor"`)
}
