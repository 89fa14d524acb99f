package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/erazemk/zaloga/internal/model"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type staticDirectory struct {
	users []model.User
	err   error
}

func (d staticDirectory) Managers(context.Context) ([]model.User, error) {
	return d.users, d.err
}

var managers = staticDirectory{users: []model.User{
	{Username: "boss", Email: "boss@example.com", Role: model.RoleManager},
	{Username: "root", Email: "root@example.com", Role: model.RoleAdmin},
	{Username: "nomail", Role: model.RoleManager},
}}

func sampleRequest() *model.MaterialRequest {
	return &model.MaterialRequest{
		ID:                  7,
		QuantityRequested:   decimal.NewFromInt(5),
		QuantityApproved:    decimal.NewFromInt(4),
		Purpose:             "Pump repair",
		Priority:            model.PriorityUrgent,
		Remarks:             "partial",
		MaterialNumber:      "M-001",
		MaterialDescription: "Bearing",
		Unit:                model.UnitPieces,
		RequesterName:       "alice",
		RequesterEmail:      "alice@example.com",
		RequesterDepartment: "Maintenance",
		ApproverName:        "boss",
	}
}

func TestRequestSubmittedGoesToManagers(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.Subject == "New material request REQ-7 - M-001" &&
			containsAll(msg.Body, "alice (Maintenance)", "5 PCS", "Pump repair", "urgent")
	})).Return(nil).Twice()

	d := NewDispatcher(mailer, managers, "Zaloga")
	d.RequestSubmitted(context.Background(), sampleRequest())

	mailer.AssertExpectations(t)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestRequestApprovedGoesToRequester(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.To == "alice@example.com" && containsAll(msg.Body, "Approved quantity:  4 PCS", "Remarks:            partial")
	})).Return(nil).Once()

	NewDispatcher(mailer, managers, "").RequestApproved(context.Background(), sampleRequest())

	mailer.AssertExpectations(t)
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	d := NewDispatcher(mailer, managers, "Zaloga")
	assert.NotPanics(t, func() {
		d.RequestIssued(context.Background(), sampleRequest())
		d.RequestRejected(context.Background(), sampleRequest())
	})

	sent := d.LowStock(context.Background(), []model.Material{{MaterialNumber: "M-1"}})
	assert.Equal(t, 0, sent)
}

func TestRequesterWithoutEmailIsSkipped(t *testing.T) {
	mailer := new(MockMailer)
	r := sampleRequest()
	r.RequesterEmail = ""

	NewDispatcher(mailer, managers, "Zaloga").RequestIssued(context.Background(), r)

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestLowStockBatch(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.Subject == "Zaloga - low stock alert (2 items)" &&
			containsAll(msg.Body, "M-1 - Bolt", "M-2 - Nut", "Location:      not specified", "Location:      A1")
	})).Return(nil)

	d := NewDispatcher(mailer, managers, "Zaloga")
	sent := d.LowStock(context.Background(), []model.Material{
		{MaterialNumber: "M-1", Description: "Bolt", Unit: model.UnitPieces, Location: "A1"},
		{MaterialNumber: "M-2", Description: "Nut", Unit: model.UnitPieces},
	})

	assert.Equal(t, 2, sent)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestLowStockEmptyListSendsNothing(t *testing.T) {
	mailer := new(MockMailer)

	sent := NewDispatcher(mailer, managers, "Zaloga").LowStock(context.Background(), nil)

	assert.Equal(t, 0, sent)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDirectoryErrorSendsNothing(t *testing.T) {
	mailer := new(MockMailer)

	d := NewDispatcher(mailer, staticDirectory{err: errors.New("db down")}, "Zaloga")
	d.RequestSubmitted(context.Background(), sampleRequest())

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDeliveryErrorUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := &DeliveryError{Kind: KindIssued, To: "a@example.com", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "a@example.com")
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
