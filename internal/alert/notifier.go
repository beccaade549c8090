// Package alert deduplicates rate-limit breach alerts and dispatches them to the administrator.
package alert

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/computer-anything/blog-backend/internal/mail"
	"github.com/computer-anything/blog-backend/internal/metrics"
	"github.com/computer-anything/blog-backend/internal/models"
)

// Alert kinds.
const (
	KindRateLimit     = "rate_limit"
	KindPasswordReset = "password_reset"
)

// Cooldowns during which repeated breaches for the same key stay silent.
const (
	RateLimitCooldown     = 300 * time.Second
	PasswordResetCooldown = 600 * time.Second
)

const storeBreakerDuration = 30 * time.Second

// Breach describes a single throttling or abuse event.
type Breach struct {
	Kind     string
	Key      string
	Cooldown time.Duration
	Subject  string
	Summary  string
	Details  []mail.Detail
}

// RateLimitBreach builds the breach for a throttled (ip, endpoint) pair.
func RateLimitBreach(ip, endpoint, userEmail string) Breach {
	if userEmail == "" {
		userEmail = "Unknown"
	}
	return Breach{
		Kind:     KindRateLimit,
		Key:      "ALERT_SENT:" + ip + ":" + endpoint,
		Cooldown: RateLimitCooldown,
		Subject:  "Security alert: rate limit exceeded",
		Summary:  "A client was temporarily blocked after exceeding the request limit.",
		Details: []mail.Detail{
			{Name: "IP Address", Value: ip},
			{Name: "Endpoint", Value: endpoint},
			{Name: "User Email", Value: userEmail},
			{Name: "Action", Value: "Request blocked temporarily"},
		},
	}
}

// PasswordResetBreach builds the breach for a password reset request on email.
func PasswordResetBreach(email, ip, userAgent string) Breach {
	if ip == "" {
		ip = "Unknown"
	}
	if userAgent == "" {
		userAgent = "Unknown"
	}
	return Breach{
		Kind:     KindPasswordReset,
		Key:      "ALERT_SENT:PASSWORD_RESET:" + email,
		Cooldown: PasswordResetCooldown,
		Subject:  "Security alert: password reset requested",
		Summary:  "A password reset was requested for an account.",
		Details: []mail.Detail{
			{Name: "User Email", Value: email},
			{Name: "IP Address", Value: ip},
			{Name: "User Agent", Value: userAgent},
		},
	}
}

// Dispatcher sends an admitted alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, breach Breach, at time.Time) error
}

// MailDispatcher emails alerts to the administrator address.
type MailDispatcher struct {
	mailer     *mail.Mailer
	adminEmail string
}

// NewMailDispatcher constructs a MailDispatcher.
func NewMailDispatcher(mailer *mail.Mailer, adminEmail string) *MailDispatcher {
	return &MailDispatcher{mailer: mailer, adminEmail: strings.TrimSpace(adminEmail)}
}

// Dispatch emails the alert.
func (d *MailDispatcher) Dispatch(ctx context.Context, breach Breach, at time.Time) error {
	details := append([]mail.Detail{{Name: "Time", Value: at.UTC().Format("2006-01-02 15:04:05 UTC")}}, breach.Details...)
	return d.mailer.SendSecurityAlert(ctx, d.adminEmail, breach.Subject, breach.Summary, details)
}

// Configured reports whether an administrator address is set.
func (d *MailDispatcher) Configured() bool {
	return d != nil && d.adminEmail != ""
}

// Recorder persists dispatched alerts for audit.
type Recorder interface {
	Record(ctx context.Context, breach Breach, failOpen bool, at time.Time) error
}

// GormRecorder writes alerts to the security_alerts table.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder.
func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// Record inserts one security_alerts row.
func (r *GormRecorder) Record(ctx context.Context, breach Breach, failOpen bool, at time.Time) error {
	details := make(map[string]string, len(breach.Details))
	for _, d := range breach.Details {
		details[d.Name] = d.Value
	}
	payload, errMarshal := json.Marshal(details)
	if errMarshal != nil {
		return errMarshal
	}
	row := models.SecurityAlert{
		ID:        uuid.NewString(),
		Kind:      breach.Kind,
		Key:       breach.Key,
		Details:   datatypes.JSON(payload),
		FailOpen:  failOpen,
		CreatedAt: at.UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Outcome is what OnBreach did with a breach.
type Outcome string

// Outcome values.
const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailOpen   Outcome = "fail_open"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeError      Outcome = "error"
)

// Notifier admits at most one alert per key per cooldown.
type Notifier struct {
	store      MarkerStore
	dispatcher Dispatcher
	recorder   Recorder
	enabled    bool
	nowFn      func() time.Time

	mu           sync.Mutex
	breakerUntil time.Time
}

// NewNotifier constructs a Notifier. enabled=false skips every alert with a warning.
func NewNotifier(store MarkerStore, dispatcher Dispatcher, recorder Recorder, enabled bool, nowFn func() time.Time) *Notifier {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Notifier{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		enabled:    enabled,
		nowFn:      nowFn,
	}
}

// OnBreach dispatches one alert for breach unless an alert for the same key
// went out within the cooldown. It never returns an error: a failing marker
// store sends the alert anyway, and dispatch failures are only logged.
func (n *Notifier) OnBreach(ctx context.Context, breach Breach) Outcome {
	if n == nil {
		return OutcomeSkipped
	}
	entry := log.WithFields(log.Fields{"kind": breach.Kind, "key": breach.Key})
	if !n.enabled {
		entry.Warn("alert: admin email not configured, skipping alert")
		metrics.Alerts.WithLabelValues(breach.Kind, string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := n.nowFn()

	admitted, errStore := n.admit(ctx, breach, now)
	failOpen := errStore != nil
	if failOpen {
		entry.WithError(errStore).Warn("alert: dedup store unavailable, sending alert anyway")
	} else if !admitted {
		entry.Debug("alert: suppressed within cooldown")
		metrics.Alerts.WithLabelValues(breach.Kind, string(OutcomeSuppressed)).Inc()
		return OutcomeSuppressed
	}

	if errDispatch := n.dispatcher.Dispatch(ctx, breach, now); errDispatch != nil {
		entry.WithError(errDispatch).Error("alert: dispatch failed")
		metrics.Alerts.WithLabelValues(breach.Kind, string(OutcomeError)).Inc()
		return OutcomeError
	}
	if n.recorder != nil {
		if errRecord := n.recorder.Record(ctx, breach, failOpen, now); errRecord != nil {
			entry.WithError(errRecord).Warn("alert: record failed")
		}
	}

	outcome := OutcomeSent
	if failOpen {
		outcome = OutcomeFailOpen
	}
	entry.Info("alert: sent")
	metrics.Alerts.WithLabelValues(breach.Kind, string(outcome)).Inc()
	return outcome
}

// admit records the marker and reports whether this breach may alert.
func (n *Notifier) admit(ctx context.Context, breach Breach, now time.Time) (bool, error) {
	if n.store == nil {
		return true, nil
	}
	if errBreaker := n.breakerError(now); errBreaker != nil {
		return false, errBreaker
	}
	if setter, ok := n.store.(atomicMarkerStore); ok {
		set, err := setter.SetIfAbsent(ctx, breach.Key, breach.Cooldown)
		if err != nil {
			n.tripBreaker(now)
			return false, err
		}
		return set, nil
	}
	exists, errExists := n.store.Exists(ctx, breach.Key)
	if errExists != nil {
		n.tripBreaker(now)
		return false, errExists
	}
	if exists {
		return false, nil
	}
	if errSet := n.store.SetWithTTL(ctx, breach.Key, breach.Cooldown); errSet != nil {
		n.tripBreaker(now)
		return false, errSet
	}
	return true, nil
}

func (n *Notifier) breakerError(now time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.breakerUntil.IsZero() {
		return nil
	}
	if now.Before(n.breakerUntil) {
		return errStoreBreakerOpen
	}
	n.breakerUntil = time.Time{}
	return nil
}

func (n *Notifier) tripBreaker(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.breakerUntil = now.Add(storeBreakerDuration)
}
