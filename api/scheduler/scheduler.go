package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/sevaclinic/donor-ops-api/databases"
	"github.com/sevaclinic/donor-ops-api/models"
	templates "github.com/sevaclinic/donor-ops-api/templates/html"
)

// reminderWindow is how far ahead of a request's required-by date the
// coordinator gets an email nudge.
const reminderWindow = 3 * 24 * time.Hour

// Scheduler handles periodic background jobs for the donor program
type Scheduler struct {
	cron *cron.Cron
	DDB  databases.DonorDatabase
	RDB  databases.DonorRequestDatabase
	UDB  databases.UserDatabase
}

// New creates a new scheduler instance
func New(dDB databases.DonorDatabase, rDB databases.DonorRequestDatabase, uDB databases.UserDatabase) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		DDB:  dDB,
		RDB:  rDB,
		UDB:  uDB,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Verify allotment flags agree across donors and requests daily at 4 AM UTC
	_, err := s.cron.AddFunc("0 4 * * *", s.sweepAllotmentConsistency)
	if err != nil {
		zap.S().Errorw("failed to register consistency sweep job", "error", err)
	}

	// Remind coordinators about unfulfilled requests approaching their
	// required-by date daily at 8 AM UTC
	_, err = s.cron.AddFunc("0 8 * * *", s.sendRequiredByReminders)
	if err != nil {
		zap.S().Errorw("failed to register required-by reminder job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Donor program scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Donor program scheduler stopped")
}

// sweepAllotmentConsistency cross-checks the paired allotment flags. A donor
// marked allotted must be referenced by exactly one allotted request, and
// vice versa. The sweep only reports; a compensated write that slipped
// through gets fixed by an operator, not a background job.
func (s *Scheduler) sweepAllotmentConsistency() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	zap.S().Info("Running allotment consistency sweep")

	donors, err := s.DDB.Find(ctx, bson.M{"donor.isAllotted": true})
	if err != nil {
		zap.S().Errorw("failed to find allotted donors", "error", err)
		return
	}

	orphanedDonors := 0
	for _, donor := range donors {
		// allottedTo is persisted as the donor id hex, not an ObjectID
		count, err := s.RDB.CountDocuments(ctx, bson.M{
			"donorRequest.isAlloted":  true,
			"donorRequest.allottedTo": donor.ID.Hex(),
		})
		if err != nil {
			zap.S().Errorw("failed to count requests for donor", "donorId", donor.ID, "error", err)
			continue
		}
		if count != 1 {
			orphanedDonors++
			zap.S().Warnw("donor allotment flag has no matching request",
				"donorId", donor.ID,
				"donorNumber", donor.Details.DonorID,
				"requestId", donor.Details.AllottedRequestID,
				"matchingRequests", count,
			)
		}
	}

	requests, err := s.RDB.Find(ctx, bson.M{"donorRequest.isAlloted": true})
	if err != nil {
		zap.S().Errorw("failed to find allotted requests", "error", err)
		return
	}

	orphanedRequests := 0
	for _, request := range requests {
		dID, err := primitive.ObjectIDFromHex(request.Details.AllottedTo)
		if err != nil {
			orphanedRequests++
			zap.S().Warnw("request carries a malformed donor reference",
				"requestId", request.ID,
				"allottedTo", request.Details.AllottedTo,
			)
			continue
		}
		count, err := s.DDB.CountDocuments(ctx, bson.M{
			"_id":                     dID,
			"donor.isAllotted":        true,
			"donor.allottedRequestId": request.ID.Hex(),
		})
		if err != nil {
			zap.S().Errorw("failed to count donors for request", "requestId", request.ID, "error", err)
			continue
		}
		if count != 1 {
			orphanedRequests++
			zap.S().Warnw("request allotment flag has no matching donor",
				"requestId", request.ID,
				"donorId", request.Details.AllottedTo,
				"matchingDonors", count,
			)
		}
	}

	statusCounts, err := s.RDB.CountByStatus(ctx)
	if err != nil {
		zap.S().Errorw("failed to count requests by status", "error", err)
	}

	zap.S().Infow("Allotment consistency sweep complete",
		"allottedDonors", len(donors),
		"allottedRequests", len(requests),
		"orphanedDonors", orphanedDonors,
		"orphanedRequests", orphanedRequests,
		"requestsByStatus", statusCounts,
	)
}

// sendRequiredByReminders emails request creators whose pending requests are
// within the reminder window of their required-by date.
func (s *Scheduler) sendRequiredByReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if os.Getenv("SENDGRID_API_KEY") == "" {
		zap.S().Debug("sendgrid not configured, skipping required-by reminders")
		return
	}

	zap.S().Info("Running required-by reminder job")

	requests, err := s.RDB.Find(ctx, bson.M{
		"donorRequest.isAlloted": false,
		"donorRequest.status":    models.RequestStatusPending,
	})
	if err != nil {
		zap.S().Errorw("failed to find pending requests", "error", err)
		return
	}

	now := time.Now().UTC()
	sent := 0
	for _, request := range requests {
		requiredBy, err := time.Parse("2006-01-02", request.Details.RequiredByDate)
		if err != nil {
			// required-by is optional free text on older records
			continue
		}
		if requiredBy.Before(now) || requiredBy.After(now.Add(reminderWindow)) {
			continue
		}
		if request.Details.CreatedBy == "" {
			continue
		}
		s.sendReminderEmail(ctx, request)
		sent++
	}

	zap.S().Infow("Required-by reminder job complete",
		"pendingRequests", len(requests),
		"remindersSent", sent,
	)
}

func (s *Scheduler) sendReminderEmail(ctx context.Context, request models.DonorRequest) {
	toName := request.Details.CreatedBy
	user, err := s.UDB.FindOne(ctx, bson.M{"user.email": request.Details.CreatedBy})
	if err == nil && user.Details.Name != "" {
		toName = user.Details.Name
	}

	subject := "Reminder: donor request unfulfilled - Seva Clinic"
	plainText := "Your donor request is still unfulfilled and its required-by date (" +
		request.Details.RequiredByDate + ") is approaching. Please review the available matches."
	htmlContent := templates.RenderGenericEmail(subject, plainText)

	if err := s.sendEmail(request.Details.CreatedBy, toName, subject, htmlContent, plainText); err != nil {
		zap.S().Errorw("failed to send required-by reminder", "error", err, "requestId", request.ID)
		return
	}

	zap.S().Infow("Sent required-by reminder", "requestId", request.ID)
}

func (s *Scheduler) sendEmail(toEmail, toName, subject, htmlContent, plainText string) error {
	from := mail.NewEmail("Seva Clinic", "no-reply@sevaclinic.org")
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
	return nil
}
