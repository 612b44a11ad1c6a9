package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/sevaclinic/donor-ops-api/api"
	"github.com/sevaclinic/donor-ops-api/api/scheduler"
	"github.com/sevaclinic/donor-ops-api/config"
	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	dbHelper  databases.DatabaseHelper
	scheduler *scheduler.Scheduler
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	uploader, err := NewCloudinaryUploader()
	if err != nil {
		zap.S().Warnw("cloudinary not configured, document uploads disabled", "error", err)
	}

	d := Donor{
		DB:       databases.NewDonorDatabase(a.dbHelper),
		RDB:      databases.NewDonorRequestDatabase(a.dbHelper),
		CDB:      databases.NewCounterDatabase(a.dbHelper),
		Uploader: uploader,
	}
	req := DonorRequest{
		DB:  databases.NewDonorRequestDatabase(a.dbHelper),
		UDB: databases.NewUserDatabase(a.dbHelper),
	}
	match := Matching{
		RDB: databases.NewDonorRequestDatabase(a.dbHelper),
		DDB: databases.NewDonorDatabase(a.dbHelper),
	}
	allot := Allotment{
		RDB: databases.NewDonorRequestDatabase(a.dbHelper),
		DDB: databases.NewDonorDatabase(a.dbHelper),
		UDB: databases.NewUserDatabase(a.dbHelper),
	}
	adm := Admin{ADB: databases.NewAdminDatabase(a.dbHelper)}
	h := Hospital{
		DB:  databases.NewHospitalDatabase(a.dbHelper),
		UDB: databases.NewUserDatabase(a.dbHelper),
	}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(30 * time.Second))

	apiCreate.Handle("/auth/token", http.HandlerFunc(m.CreateToken)).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")
	apiCreate.Handle("/admin/login", http.HandlerFunc(adm.AdminLoginHandler)).Methods("POST")

	apiCreate.Handle("/donor", api.Middleware(http.HandlerFunc(d.CreateDonorHandler))).Methods("POST")
	apiCreate.Handle("/donors", api.Middleware(http.HandlerFunc(d.DonorHandler))).Methods("GET")
	apiCreate.Handle("/donors/search", api.Middleware(http.HandlerFunc(d.DonorsByNameSearchHandler))).Methods("GET")
	apiCreate.Handle("/donor/{donor_id}", api.Middleware(http.HandlerFunc(d.DonorByIDHandler))).Methods("GET")
	apiCreate.Handle("/donor/{donor_id}", api.Middleware(http.HandlerFunc(d.UpdateDonorHandler))).Methods("PUT")
	apiCreate.Handle("/donor/{donor_id}", api.Middleware(http.HandlerFunc(d.DeleteDonorHandler))).Methods("DELETE")
	apiCreate.Handle("/donor/{donor_id}/documents/{collection}/{index}", api.Middleware(http.HandlerFunc(d.UploadDonorDocumentHandler))).Methods("POST")
	apiCreate.Handle("/donor/{donor_id}/documents/{collection}/{index}", api.Middleware(http.HandlerFunc(d.DeleteDonorDocumentHandler))).Methods("DELETE")
	apiCreate.Handle("/donor/{donor_id}/documents/{collection}", api.Middleware(http.HandlerFunc(d.AppendDonorDocumentSlotHandler))).Methods("POST")
	apiCreate.Handle("/donor/{donor_id}/remarks", api.Middleware(http.HandlerFunc(d.SaveRemarksHandler))).Methods("PUT")
	apiCreate.Handle("/donor/{donor_id}/case-done", api.Middleware(http.HandlerFunc(d.MarkCaseDoneHandler))).Methods("POST")

	apiCreate.Handle("/donor-request", api.Middleware(http.HandlerFunc(req.CreateDonorRequestHandler))).Methods("POST")
	apiCreate.Handle("/donor-requests", api.Middleware(http.HandlerFunc(req.DonorRequestHandler))).Methods("GET")
	apiCreate.Handle("/donor-request/{request_id}", api.Middleware(http.HandlerFunc(req.DonorRequestByIDHandler))).Methods("GET")
	apiCreate.Handle("/donor-request/{request_id}", api.Middleware(http.HandlerFunc(req.UpdateDonorRequestHandler))).Methods("PUT")
	apiCreate.Handle("/donor-request/{request_id}", api.Middleware(http.HandlerFunc(req.WithdrawDonorRequestHandler))).Methods("DELETE")
	apiCreate.Handle("/donor-request/{request_id}/status", api.Middleware(http.HandlerFunc(req.UpdateRequestStatusHandler))).Methods("PATCH")
	apiCreate.Handle("/donor-request/{request_id}/matches", api.Middleware(http.HandlerFunc(match.FindMatchingDonorsHandler))).Methods("GET")
	apiCreate.Handle("/donor-request/{request_id}/allot", api.Middleware(http.HandlerFunc(allot.AllotHandler))).Methods("POST")
	apiCreate.Handle("/donor-request/{request_id}/cancel-allotment", api.Middleware(http.HandlerFunc(allot.CancelAllotmentHandler))).Methods("POST")

	apiCreate.Handle("/hospital/{hospital_id}", api.Middleware(http.HandlerFunc(h.HospitalByIDHandler))).Methods("GET")
	apiCreate.Handle("/hospitals", api.Middleware(http.HandlerFunc(h.HospitalHandler))).Methods("GET")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(h.UserByIDHandler))).Methods("GET")

	r.HandleFunc("/ws/notifications", HandleNotificationsWebSocket)

	// swagger docs hosted at "/"
	r.PathPrefix("/").Handler(http.StripPrefix("/", http.FileServer(http.Dir("./docs/"))))
	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("donor-ops-api has connected to the database")

	a.scheduler = scheduler.New(
		databases.NewDonorDatabase(a.dbHelper),
		databases.NewDonorRequestDatabase(a.dbHelper),
		databases.NewUserDatabase(a.dbHelper),
	)
	a.scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}

// requireAdmin resolves the acting user's role from the user directory. The
// orchestrator accepts the policy from the boundary rather than hard-coding
// it into the writes.
func requireAdmin(ctx context.Context, udb databases.UserDatabase, r *http.Request) (string, bool) {
	actor := api.ActingUser(r)
	if actor == "" {
		return "", false
	}
	user, err := udb.FindOne(ctx, bson.M{"user.email": actor})
	if err != nil {
		return actor, false
	}
	return actor, user.Details.Role == models.RoleAdmin
}
