// Package docs Seva Clinic Donor Operations API.
//
// Documentation of the Seva Clinic donor operations API.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//     Host: https://donor-ops-api.sevaclinic.org
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - basic
//
//    SecurityDefinitions:
//    basic:
//      type: basic
//
// swagger:meta
package docs

import (
	"github.com/sevaclinic/donor-ops-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route GET /api/v1/donor/{donor_id} donor donorByID
// Gets a single donor by ID, including case readiness.
// responses:
//   200: donorByIDResponse

// Shows a single donor by the given {ID}
// swagger:response donorByIDResponse
type donorByIDResponseWrapper struct {
	// in:body
	Body models.Donor
}

// swagger:route GET /api/v1/donor-request/{request_id} donorRequest donorRequestByID
// Gets a single donor request by ID.
// responses:
//   200: donorRequestByIDResponse

// Shows a single donor request by the given {ID}
// swagger:response donorRequestByIDResponse
type donorRequestByIDResponseWrapper struct {
	// in:body
	Body models.DonorRequest
}
