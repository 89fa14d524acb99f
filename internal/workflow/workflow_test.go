package workflow

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/ledger"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) RequestSubmitted(ctx context.Context, r *model.MaterialRequest) {
	m.Called(r.ID)
}

func (m *mockNotifier) RequestApproved(ctx context.Context, r *model.MaterialRequest) {
	m.Called(r.ID)
}

func (m *mockNotifier) RequestRejected(ctx context.Context, r *model.MaterialRequest) {
	m.Called(r.ID)
}

func (m *mockNotifier) RequestIssued(ctx context.Context, r *model.MaterialRequest) {
	m.Called(r.ID)
}

func (m *mockNotifier) LowStock(ctx context.Context, materials []model.Material) int {
	args := m.Called(len(materials))
	return args.Int(0)
}

type fixture struct {
	db       *sql.DB
	svc      *Service
	notifier *mockNotifier
	staff    model.Actor
	other    model.Actor
	manager  model.Actor
	material *model.Material
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, stock string) *fixture {
	t.Helper()
	ctx := context.Background()
	database := db.NewTestDB(t)

	actor := func(username, role string) model.Actor {
		u, err := store.CreateUser(ctx, database, &model.User{
			Username: username, Email: username + "@example.com", PasswordHash: "h",
			Role: role, Department: "Maintenance",
		})
		require.NoError(t, err)
		return model.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
	}

	f := &fixture{db: database, notifier: &mockNotifier{}}
	f.staff = actor("ana", model.RoleStaff)
	f.other = actor("bor", model.RoleStaff)
	f.manager = actor("boss", model.RoleManager)
	f.svc = New(database, f.notifier)

	m, err := store.CreateMaterial(ctx, database, &model.Material{
		MaterialNumber: "M-100",
		Description:    "Hex bolt M8",
		Category:       "Fasteners",
		Unit:           model.UnitPieces,
		MinimumStock:   decimal.NewFromInt(10),
		MaximumStock:   model.DefaultMaximumStock,
		UnitPrice:      dec("0.25"),
	})
	require.NoError(t, err)
	if qty := dec(stock); qty.IsPositive() {
		err = store.InTx(ctx, database, func(tx *sql.Tx) error {
			_, err := ledger.Receive(ctx, tx, m.ID, f.manager.UserID, qty, "", "Initial stock entry")
			return err
		})
		require.NoError(t, err)
	}
	f.material, err = store.GetMaterial(ctx, database, m.ID)
	require.NoError(t, err)
	return f
}

func (f *fixture) submit(t *testing.T, qty string) *model.MaterialRequest {
	t.Helper()
	f.notifier.On("RequestSubmitted", mock.Anything).Once()
	r, err := f.svc.Submit(context.Background(), f.staff, SubmitInput{
		MaterialID: f.material.ID, Quantity: dec(qty), Purpose: "Line 3 repair",
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) stock(t *testing.T) decimal.Decimal {
	t.Helper()
	m, err := store.GetMaterial(context.Background(), f.db, f.material.ID)
	require.NoError(t, err)
	return m.CurrentStock
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	r := f.submit(t, "30")
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, model.PriorityNormal, r.Priority)
	assert.True(t, f.stock(t).Equal(dec("100")), "submit must not reserve stock")

	f.notifier.On("RequestApproved", r.ID).Once()
	approved := dec("20")
	r, err := f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{Quantity: &approved, Remarks: "partial"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.True(t, r.QuantityApproved.Equal(approved))
	assert.Equal(t, "boss", r.ApproverName)
	assert.True(t, f.stock(t).Equal(dec("100")), "approve must not change stock")

	f.notifier.On("RequestIssued", r.ID).Once()
	r, err = f.svc.Issue(ctx, f.manager, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusIssued, r.Status)
	assert.NotNil(t, r.IssuedDate)
	assert.True(t, f.stock(t).Equal(dec("80")))

	txs, err := store.RecentTransactions(ctx, f.db, f.material.ID, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxIssue, txs[0].Type)
	assert.True(t, txs[0].Quantity.Equal(dec("-20")))
	assert.Equal(t, r.Reference(), txs[0].ReferenceNumber)
	assert.Equal(t, "Line 3 repair", txs[0].Purpose)
	assert.Equal(t, "Issued to ana (Maintenance)", txs[0].Remarks)

	rec, err := ledger.Reconcile(ctx, f.db, f.material.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)

	f.notifier.AssertExpectations(t)
}

func TestApproveDefaultsToRequestedQuantity(t *testing.T) {
	f := newFixture(t, "50")
	r := f.submit(t, "12.5")

	f.notifier.On("RequestApproved", r.ID).Once()
	r, err := f.svc.Approve(context.Background(), f.manager, r.ID, ApproveInput{})
	require.NoError(t, err)
	assert.True(t, r.QuantityApproved.Equal(dec("12.5")))
}

func TestApproveValidation(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()
	r := f.submit(t, "8")

	tests := []struct {
		name string
		qty  string
		want error
	}{
		{"more than requested", "9", &model.ValidationError{}},
		{"zero", "0", &model.ValidationError{}},
		{"more than stock", "6", model.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty := dec(tt.qty)
			_, err := f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{Quantity: &qty})
			require.Error(t, err)
			if ve, ok := tt.want.(*model.ValidationError); ok {
				assert.ErrorAs(t, err, &ve)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	got, err := store.GetRequest(ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	f.notifier.AssertNotCalled(t, "RequestApproved", mock.Anything)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()
	long := make([]byte, model.MaxPurposeLength+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		in   SubmitInput
	}{
		{"zero quantity", SubmitInput{MaterialID: f.material.ID, Quantity: dec("0"), Purpose: "x"}},
		{"negative quantity", SubmitInput{MaterialID: f.material.ID, Quantity: dec("-1"), Purpose: "x"}},
		{"blank purpose", SubmitInput{MaterialID: f.material.ID, Quantity: dec("1"), Purpose: "  "}},
		{"long purpose", SubmitInput{MaterialID: f.material.ID, Quantity: dec("1"), Purpose: string(long)}},
		{"bad priority", SubmitInput{MaterialID: f.material.ID, Quantity: dec("1"), Purpose: "x", Priority: "asap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, f.staff, tt.in)
			var ve *model.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	_, err := f.svc.Submit(ctx, f.staff, SubmitInput{MaterialID: 999, Quantity: dec("1"), Purpose: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, store.DeactivateMaterial(ctx, f.db, f.material.ID))
	_, err = f.svc.Submit(ctx, f.staff, SubmitInput{MaterialID: f.material.ID, Quantity: dec("1"), Purpose: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmitAllowsMoreThanStock(t *testing.T) {
	f := newFixture(t, "5")
	r := f.submit(t, "50")
	assert.Equal(t, model.StatusPending, r.Status)
}

func TestStaffCannotDecide(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()
	r := f.submit(t, "1")

	_, err := f.svc.Approve(ctx, f.staff, r.ID, ApproveInput{})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.Reject(ctx, f.staff, r.ID, "")
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.Issue(ctx, f.staff, r.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()
	r := f.submit(t, "1")

	f.notifier.On("RequestRejected", r.ID).Once()
	r, err := f.svc.Reject(ctx, f.manager, r.ID, "not in budget")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, r.Status)
	assert.Equal(t, "not in budget", r.Remarks)

	_, err = f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.svc.Issue(ctx, f.manager, r.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, f.staff, r.ID, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// Issuing a pending request skips approval and is refused.
	p := f.submit(t, "1")
	_, err = f.svc.Issue(ctx, f.manager, p.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.Approve(ctx, f.manager, 999, ApproveInput{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIssueWithInsufficientStockLeavesRequestApproved(t *testing.T) {
	f := newFixture(t, "10")
	ctx := context.Background()
	r := f.submit(t, "8")

	f.notifier.On("RequestApproved", r.ID).Once()
	_, err := f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{})
	require.NoError(t, err)

	// Stock drops after approval.
	err = store.InTx(ctx, f.db, func(tx *sql.Tx) error {
		_, err := ledger.AdjustStock(ctx, tx, f.material.ID, f.manager.UserID, dec("-5"), "Damaged")
		return err
	})
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, f.manager, r.ID)
	var ise *model.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.True(t, ise.Available.Equal(dec("5")))
	assert.True(t, ise.Requested.Equal(dec("8")))

	got, err := store.GetRequest(ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.True(t, f.stock(t).Equal(dec("5")))
	f.notifier.AssertNotCalled(t, "RequestIssued", mock.Anything)
}

func TestIssueCrossingMinimumSendsLowStockAlert(t *testing.T) {
	f := newFixture(t, "15")
	ctx := context.Background()
	r := f.submit(t, "6")

	f.notifier.On("RequestApproved", r.ID).Once()
	_, err := f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{})
	require.NoError(t, err)

	f.notifier.On("RequestIssued", r.ID).Once()
	f.notifier.On("LowStock", 1).Return(1).Once()
	_, err = f.svc.Issue(ctx, f.manager, r.ID)
	require.NoError(t, err)
	f.notifier.AssertExpectations(t)
}

func TestConcurrentIssuesNeverOversell(t *testing.T) {
	f := newFixture(t, "10")
	ctx := context.Background()
	f.notifier.On("RequestApproved", mock.Anything)
	f.notifier.On("RequestIssued", mock.Anything)
	f.notifier.On("LowStock", mock.Anything).Return(0)

	var ids []int64
	for range 2 {
		r := f.submit(t, "7")
		_, err := f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Issue(ctx, f.manager, id)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrInsufficientStock), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.stock(t).Equal(dec("3")))
}

func TestQuantitiesRoundToCents(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.staff, SubmitInput{MaterialID: f.material.ID, Quantity: dec("0.001"), Purpose: "dust"})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity_requested", ve.Field)

	r := f.submit(t, "1.004")
	assert.True(t, r.QuantityRequested.Equal(dec("1")), "got %s", r.QuantityRequested)

	tiny := dec("0.001")
	_, err = f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{Quantity: &tiny})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "approved_quantity", ve.Field)

	got, err := store.GetRequest(ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	f.notifier.On("RequestApproved", r.ID).Once()
	f.notifier.On("RequestIssued", r.ID).Once()
	almost := dec("0.996")
	_, err = f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{Quantity: &almost})
	require.NoError(t, err)
	r, err = f.svc.Issue(ctx, f.manager, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusIssued, r.Status)
	assert.True(t, f.stock(t).Equal(dec("4")))
	f.notifier.AssertExpectations(t)
}

func TestApproveInactiveMaterial(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()
	r := f.submit(t, "1")

	require.NoError(t, store.DeactivateMaterial(ctx, f.db, f.material.ID))

	_, err := f.svc.Approve(ctx, f.manager, r.ID, ApproveInput{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := store.GetRequest(ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	r, err = f.svc.Cancel(ctx, f.staff, r.ID, "material withdrawn")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, r.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()

	r := f.submit(t, "1")
	_, err := f.svc.Cancel(ctx, f.other, r.ID, "")
	assert.ErrorIs(t, err, model.ErrForbidden)

	r, err = f.svc.Cancel(ctx, f.staff, r.ID, "ordered elsewhere")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, r.Status)

	r = f.submit(t, "1")
	r, err = f.svc.Cancel(ctx, f.manager, r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, r.Status)
}

func TestListAndGetScoping(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()
	mine := f.submit(t, "1")

	f.notifier.On("RequestSubmitted", mock.Anything).Once()
	theirs, err := f.svc.Submit(ctx, f.other, SubmitInput{MaterialID: f.material.ID, Quantity: dec("2"), Purpose: "spare"})
	require.NoError(t, err)

	page, err := f.svc.List(ctx, f.staff, store.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mine.ID, page.Items[0].ID)

	page, err = f.svc.List(ctx, f.manager, store.RequestFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = f.svc.List(ctx, f.manager, store.RequestFilter{Status: "lost"})
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Get(ctx, f.staff, theirs.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	got, err := f.svc.Get(ctx, f.manager, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "bor", got.RequesterName)
}

func TestScanLowStock(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	_, err := f.svc.CheckLowStock(ctx, f.staff)
	assert.ErrorIs(t, err, model.ErrForbidden)

	f.notifier.On("LowStock", 1).Return(1).Once()
	report, err := f.svc.CheckLowStock(ctx, f.manager)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Materials)
	assert.Equal(t, 1, report.Notified)

	last, err := store.GetSetting(ctx, f.db, "low_stock_last_scan")
	require.NoError(t, err)
	assert.NotEmpty(t, last)

	// Nothing low, nothing sent.
	err = store.InTx(ctx, f.db, func(tx *sql.Tx) error {
		_, err := ledger.Receive(ctx, tx, f.material.ID, f.manager.UserID, dec("50"), "PO-7", "")
		return err
	})
	require.NoError(t, err)
	report, err = f.svc.ScanLowStock(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Materials)
	f.notifier.AssertNumberOfCalls(t, "LowStock", 1)
}
