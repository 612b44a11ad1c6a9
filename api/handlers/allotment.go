package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/sevaclinic/donor-ops-api/config"
	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/models"
	templates "github.com/sevaclinic/donor-ops-api/templates/html"
)

// Allotment exported for testing purposes
type Allotment struct {
	RDB databases.DonorRequestDatabase
	DDB databases.DonorDatabase
	UDB databases.UserDatabase
}

// AllotmentResponse carries both sides of the transition back to the caller
type AllotmentResponse struct {
	Request models.DonorRequest `json:"request"`
	Donor   models.Donor        `json:"donor"`
}

// AllotHandler links a request to a donor. The donor side is written first
// with its eligibility pinned in the filter, then the request side; if the
// request write loses a race the donor write is compensated, so the pair
// never lands in a half-allotted state. Two concurrent allots of the same
// donor produce exactly one success and one conflict.
func (a Allotment) AllotHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var body struct {
		DonorID string `json:"donorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode allotment body", http.StatusBadRequest, w, err)
		return
	}
	dID, err := primitive.ObjectIDFromHex(body.DonorID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	if actor, ok := requireAdmin(r.Context(), a.UDB, r); !ok {
		config.ErrorStatus("allotment requires an administrator", http.StatusForbidden, w,
			&models.ConflictError{Reason: "user " + actor + " may not allot donors"})
		return
	}

	request, err := a.RDB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return
	}
	if request.Details.IsAlloted {
		config.ErrorStatus("request is already allotted", http.StatusConflict, w,
			&models.ConflictError{Reason: "request already has a donor allotted"})
		return
	}

	// donor side first. The filter re-checks the base eligibility predicate
	// (active, unallotted) at commit time, closing the race between search
	// and selection.
	donorRes, err := a.DDB.MarkAllotted(r.Context(), dID, rID.Hex())
	if err != nil {
		config.ErrorStatus("failed to mark donor allotted", http.StatusInternalServerError, w, err)
		return
	}
	if donorRes.MatchedCount == 0 {
		if _, findErr := a.DDB.FindOne(r.Context(), bson.M{"_id": dID}); findErr != nil {
			config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, findErr)
			return
		}
		config.ErrorStatus("donor is not eligible", http.StatusConflict, w,
			&models.ConflictError{Reason: "donor is inactive or already allotted"})
		return
	}

	// request side second, with its own guard against double fulfillment
	reqRes, err := a.RDB.MarkAllotted(r.Context(), rID, dID.Hex(), time.Now())
	if err != nil || reqRes.MatchedCount == 0 {
		// a duplicate submit of this same pairing may have already committed
		// both sides; its donor flag belongs to that allotment, so re-read
		// the request before compensating
		current, readErr := a.RDB.FindOne(r.Context(), bson.M{"_id": rID})
		if readErr == nil && current.Details.IsAlloted && current.Details.AllottedTo == dID.Hex() {
			config.ErrorStatus("request is already allotted", http.StatusConflict, w,
				&models.ConflictError{Reason: "request was allotted to this donor concurrently"})
			return
		}
		// compensate the donor write; a partial allotment must never survive
		if _, compErr := a.DDB.ClearAllotment(r.Context(), dID); compErr != nil {
			zap.S().Errorw("failed to compensate donor allotment",
				"donorId", dID.Hex(), "requestId", rID.Hex(), "error", compErr)
		}
		if err != nil {
			config.ErrorStatus("failed to mark request allotted", http.StatusInternalServerError, w, err)
			return
		}
		config.ErrorStatus("request is already allotted", http.StatusConflict, w,
			&models.ConflictError{Reason: "request was allotted concurrently"})
		return
	}

	zap.S().Infow("donor allotted",
		"requestId", rID.Hex(),
		"donorId", dID.Hex(),
	)

	resp, ok := a.writePairResponse(w, r, rID, dID)
	if !ok {
		return
	}

	BroadcastAllotmentEvent("donor_allotted", map[string]interface{}{
		"requestId": rID.Hex(),
		"donorId":   dID.Hex(),
	})
	go a.sendAllotmentEmail(resp.Request, resp.Donor)
}

// CancelAllotmentHandler reverses an allotment. The request side is cleared
// first with isAlloted pinned, then the donor side; documents, remarks and
// the case-done flag are left untouched. Cancelling an unallotted request
// reports a conflict, not a crash.
func (a Allotment) CancelAllotmentHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	rID, err := primitive.ObjectIDFromHex(requestID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	if actor, ok := requireAdmin(r.Context(), a.UDB, r); !ok {
		config.ErrorStatus("cancellation requires an administrator", http.StatusForbidden, w,
			&models.ConflictError{Reason: "user " + actor + " may not cancel allotments"})
		return
	}

	request, err := a.RDB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return
	}
	if !request.Details.IsAlloted {
		config.ErrorStatus("request is not allotted", http.StatusConflict, w,
			&models.ConflictError{Reason: "request has no allotment to cancel"})
		return
	}
	dID, err := primitive.ObjectIDFromHex(request.Details.AllottedTo)
	if err != nil {
		config.ErrorStatus("request has a malformed donor reference", http.StatusInternalServerError, w, err)
		return
	}

	reqRes, err := a.RDB.ClearAllotment(r.Context(), rID)
	if err != nil {
		config.ErrorStatus("failed to clear request allotment", http.StatusInternalServerError, w, err)
		return
	}
	if reqRes.MatchedCount == 0 {
		config.ErrorStatus("request is not allotted", http.StatusConflict, w,
			&models.ConflictError{Reason: "request has no allotment to cancel"})
		return
	}

	if _, err := a.DDB.ClearAllotment(r.Context(), dID); err != nil {
		// the request side is already clear; the nightly sweep will surface
		// the donor flag if this write never lands on retry
		zap.S().Errorw("failed to clear donor allotment",
			"donorId", dID.Hex(), "requestId", rID.Hex(), "error", err)
		config.ErrorStatus("failed to clear donor allotment", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("allotment cancelled",
		"requestId", rID.Hex(),
		"donorId", dID.Hex(),
	)

	if _, ok := a.writePairResponse(w, r, rID, dID); !ok {
		return
	}

	BroadcastAllotmentEvent("allotment_cancelled", map[string]interface{}{
		"requestId": rID.Hex(),
		"donorId":   dID.Hex(),
	})
}

func (a Allotment) writePairResponse(w http.ResponseWriter, r *http.Request, rID, dID primitive.ObjectID) (*AllotmentResponse, bool) {
	request, err := a.RDB.FindOne(r.Context(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get donor request by ID", http.StatusNotFound, w, err)
		return nil, false
	}
	donor, err := a.DDB.FindOne(r.Context(), bson.M{"_id": dID})
	if err != nil {
		config.ErrorStatus("failed to get donor by ID", http.StatusNotFound, w, err)
		return nil, false
	}
	resp := AllotmentResponse{Request: *request, Donor: *donor}
	b, err := json.Marshal(resp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return nil, false
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
	return &resp, true
}

func (a Allotment) sendAllotmentEmail(request models.DonorRequest, donor models.Donor) {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" || request.Details.CreatedBy == "" {
		return
	}

	subject := "Donor allotted to your request"
	body := "A donor has been allotted to your request.\n\n" +
		"Donor ID: " + donor.Details.DonorID + "\n" +
		"Required by: " + request.Details.RequiredByDate + "\n\n" +
		"Please log in to review the allotment."
	from := mail.NewEmail("Seva Clinic", "no-reply@sevaclinic.org")
	to := mail.NewEmail("", request.Details.CreatedBy)
	message := mail.NewSingleEmail(from, subject, to, body, templates.RenderGenericEmail(subject, body))
	response, err := sendgrid.NewSendClient(apiKey).Send(message)
	if err != nil {
		zap.S().Errorw("failed to send allotment email", "error", err)
		return
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
}
