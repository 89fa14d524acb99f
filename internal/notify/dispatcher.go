// Package notify sends workflow and low-stock emails. Delivery is best
// effort: failures are logged and counted, never returned to the caller.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// Notification kinds.
const (
	KindSubmitted = "submitted"
	KindApproved  = "approved"
	KindRejected  = "rejected"
	KindIssued    = "issued"
	KindLowStock  = "low_stock"
)

// Directory finds the people who receive store notifications.
type Directory interface {
	Managers(ctx context.Context) ([]model.User, error)
}

// StoreDirectory reads recipients from the users table.
type StoreDirectory struct {
	DB store.DBTX
}

// Managers returns all active managers and admins.
func (d StoreDirectory) Managers(ctx context.Context) ([]model.User, error) {
	return store.ListUsersByRole(ctx, d.DB, model.RoleManager, model.RoleAdmin)
}

// DeliveryError describes a message that could not be delivered.
type DeliveryError struct {
	Kind string
	To   string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering %s notification to %s: %v", e.Kind, e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Dispatcher renders and sends notifications.
type Dispatcher struct {
	mailer  Mailer
	dir     Directory
	appName string
}

// NewDispatcher creates a dispatcher. appName appears in subjects and bodies.
func NewDispatcher(mailer Mailer, dir Directory, appName string) *Dispatcher {
	if appName == "" {
		appName = "Zaloga"
	}
	return &Dispatcher{mailer: mailer, dir: dir, appName: appName}
}

type requestData struct {
	App     string
	Request *model.MaterialRequest
}

// RequestSubmitted tells every manager about a new request.
func (d *Dispatcher) RequestSubmitted(ctx context.Context, r *model.MaterialRequest) {
	subject := fmt.Sprintf("New material request %s - %s", r.Reference(), r.MaterialNumber)
	d.toManagers(ctx, KindSubmitted, subject, requestData{d.appName, r})
}

// RequestApproved tells the requester their request was approved.
func (d *Dispatcher) RequestApproved(ctx context.Context, r *model.MaterialRequest) {
	subject := fmt.Sprintf("Material request approved - %s", r.MaterialNumber)
	d.toRequester(ctx, KindApproved, subject, r)
}

// RequestRejected tells the requester their request was rejected.
func (d *Dispatcher) RequestRejected(ctx context.Context, r *model.MaterialRequest) {
	subject := fmt.Sprintf("Material request rejected - %s", r.MaterialNumber)
	d.toRequester(ctx, KindRejected, subject, r)
}

// RequestIssued tells the requester their material was issued.
func (d *Dispatcher) RequestIssued(ctx context.Context, r *model.MaterialRequest) {
	subject := fmt.Sprintf("Material issued - %s", r.MaterialNumber)
	d.toRequester(ctx, KindIssued, subject, r)
}

// LowStock sends one batched alert listing materials to every manager.
// Nothing is sent for an empty list. It returns the number of messages delivered.
func (d *Dispatcher) LowStock(ctx context.Context, materials []model.Material) int {
	if len(materials) == 0 {
		return 0
	}
	subject := fmt.Sprintf("%s - low stock alert (%d items)", d.appName, len(materials))
	return d.toManagers(ctx, KindLowStock, subject, struct {
		App       string
		Materials []model.Material
	}{d.appName, materials})
}

func (d *Dispatcher) toRequester(ctx context.Context, kind, subject string, r *model.MaterialRequest) {
	if r.RequesterEmail == "" {
		slog.Warn("notification skipped, requester has no email", "kind", kind, "user", r.RequesterName)
		metrics.Notifications.WithLabelValues(kind, "skipped").Inc()
		return
	}
	body, err := render(kind, requestData{d.appName, r})
	if err != nil {
		slog.Error("failed to render notification", "kind", kind, "error", err)
		return
	}
	d.send(ctx, kind, Message{To: r.RequesterEmail, Subject: subject, Body: body})
}

func (d *Dispatcher) toManagers(ctx context.Context, kind, subject string, data any) int {
	managers, err := d.dir.Managers(ctx)
	if err != nil {
		slog.Error("failed to look up notification recipients", "kind", kind, "error", err)
		return 0
	}

	body, err := render(kind, data)
	if err != nil {
		slog.Error("failed to render notification", "kind", kind, "error", err)
		return 0
	}

	sent := 0
	for _, m := range managers {
		if m.Email == "" {
			continue
		}
		if d.send(ctx, kind, Message{To: m.Email, Subject: subject, Body: body}) {
			sent++
		}
	}
	return sent
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg Message) bool {
	if err := d.mailer.Send(ctx, msg); err != nil {
		derr := &DeliveryError{Kind: kind, To: msg.To, Err: err}
		slog.Error("notification failed", "kind", kind, "to", msg.To, "error", derr)
		metrics.Notifications.WithLabelValues(kind, "failed").Inc()
		return false
	}
	metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	return true
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
