package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"jute-fleet-backend/internal/logs"
	"jute-fleet-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one notification addressed to every subscription of a user.
type Job struct {
	Recipient string `json:"-"`
	MachineID string `json:"machineId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	dropped func()
	log     *logrus.Entry
}

// NewWorkerPool creates a new worker pool with a queue of queueSize jobs.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		dropped: func() {},
		log:     logs.Logger.WithField("component", "notification"),
	}
}

// OnDrop registers a callback invoked whenever a job is dropped.
func (wp *WorkerPool) OnDrop(fn func()) {
	if fn != nil {
		wp.dropped = fn
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.WithField("worker", id)
	log.Debug("worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForJob(ctx, job)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues a job. When the queue is full the job is dropped rather
// than stalling the caller.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.dropped()
		wp.log.WithField("recipient", job.Recipient).Warn("notification queue full; dropping job")
		return false
	}
}

// OnEvent turns rentals and anti-jam cycles into notifications for the
// machine's owner.
func (wp *WorkerPool) OnEvent(ev model.Event) {
	job, ok := JobFor(ev)
	if !ok {
		return
	}
	wp.Dispatch(job)
}

// JobFor maps an engine event to an owner notification.
func JobFor(ev model.Event) (Job, bool) {
	m := ev.Machine
	if m.Owner == "" {
		return Job{}, false
	}
	job := Job{Recipient: m.Owner, MachineID: m.ID}
	switch ev.Kind {
	case model.EventRented:
		job.Title = fmt.Sprintf("%s rented", m.Name)
		if s := m.RentalSession; s != nil {
			job.Body = fmt.Sprintf("%s is now rented by %s for %d %s.", m.Name, s.BorrowerID, s.Duration, s.DurationUnit)
		} else {
			job.Body = fmt.Sprintf("%s is now rented.", m.Name)
		}
	case model.EventAntiJam:
		job.Title = fmt.Sprintf("%s anti-jam", m.Name)
		job.Body = fmt.Sprintf("Anti-jam cycle triggered on %s (%d total).", m.Name, m.Telemetry.Jams)
	default:
		return Job{}, false
	}
	return job, true
}

// sendNotificationsForJob fetches the recipient's subscriptions and sends the job to each.
func (wp *WorkerPool) sendNotificationsForJob(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("user_email = ?", job.Recipient).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.WithError(err).WithField("recipient", job.Recipient).Error("failed to fetch subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		wp.log.WithError(err).Error("failed to encode notification")
		return
	}

	wp.log.WithFields(logrus.Fields{
		"recipient":     job.Recipient,
		"machine_id":    job.MachineID,
		"subscriptions": len(subscriptions),
	}).Info("sending notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired; deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to delete expired subscription")
		}
	}
}
