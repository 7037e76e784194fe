package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/outbox"
	"github.com/tidyops/tidyops-backend/pkg/pagination"
)

type fakeRepository struct {
	createBookingFn   func(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	findBookingFn     func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	listBookingsFn    func(ctx context.Context, params pagination.Params, filter ListFilter) (*BookingList, error)
	updateVersionedFn func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error)
	appendEventFn     func(ctx context.Context, event *models.LifecycleEvent) (*models.LifecycleEvent, error)
	listEventsFn      func(ctx context.Context, bookingID uuid.UUID) ([]models.LifecycleEvent, error)
	listEventPageFn   func(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.LifecycleEvent, *string, error)
	calls             []string
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	f.calls = append(f.calls, "create")
	if f.createBookingFn != nil {
		return f.createBookingFn(ctx, booking)
	}
	booking.ID = uuid.New()
	return booking, nil
}

func (f *fakeRepository) FindBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	f.calls = append(f.calls, "find")
	if f.findBookingFn != nil {
		return f.findBookingFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListBookings(ctx context.Context, params pagination.Params, filter ListFilter) (*BookingList, error) {
	if f.listBookingsFn != nil {
		return f.listBookingsFn(ctx, params, filter)
	}
	return &BookingList{}, nil
}

func (f *fakeRepository) UpdateBookingVersioned(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
	f.calls = append(f.calls, "update")
	if f.updateVersionedFn != nil {
		return f.updateVersionedFn(ctx, id, expectedVersion, updates)
	}
	return true, nil
}

func (f *fakeRepository) AppendEvent(ctx context.Context, event *models.LifecycleEvent) (*models.LifecycleEvent, error) {
	f.calls = append(f.calls, "append")
	if f.appendEventFn != nil {
		return f.appendEventFn(ctx, event)
	}
	event.ID = uuid.New()
	return event, nil
}

func (f *fakeRepository) ListEventsByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.LifecycleEvent, error) {
	if f.listEventsFn != nil {
		return f.listEventsFn(ctx, bookingID)
	}
	return nil, nil
}

func (f *fakeRepository) ListEventPage(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.LifecycleEvent, *string, error) {
	if f.listEventPageFn != nil {
		return f.listEventPageFn(ctx, bookingID, params)
	}
	return nil, nil, nil
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
	emitFn func(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	if f.emitFn != nil {
		return f.emitFn(ctx, tx, event)
	}
	return nil
}

func newTestService(t *testing.T, repo *fakeRepository, ob *fakeOutbox) Service {
	t.Helper()
	svc, err := NewService(repo, &fakeTxRunner{}, ob, nil, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func testBooking(status enums.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:          uuid.New(),
		CustomerID:  uuid.New(),
		Status:      status,
		Version:     1,
		AmountCents: 15000,
		Currency:    "USD",
	}
}

func codeOf(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %v", err)
	}
	return appErr.Code()
}

func TestService_CreateBooking(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	var appended *models.LifecycleEvent
	repo.appendEventFn = func(ctx context.Context, event *models.LifecycleEvent) (*models.LifecycleEvent, error) {
		appended = event
		return event, nil
	}

	booking, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		CustomerID:  uuid.New(),
		AmountCents: 12000,
	})
	if err != nil {
		t.Fatalf("CreateBooking error: %v", err)
	}
	if booking.Status != enums.BookingStatusPendingCard {
		t.Fatalf("new booking should start pending_card, got %s", booking.Status)
	}
	if booking.Version != 1 {
		t.Fatalf("new booking should start at version 1, got %d", booking.Version)
	}
	if booking.Currency != "USD" {
		t.Fatalf("currency should default to USD, got %s", booking.Currency)
	}
	if appended == nil || appended.EventType != enums.LifecycleEventCreated {
		t.Fatalf("expected created event, got %+v", appended)
	}
	if appended.ToStatus == nil || *appended.ToStatus != enums.BookingStatusPendingCard {
		t.Fatalf("created event should target pending_card")
	}
	if appended.Source != enums.EventSourceSystem {
		t.Fatalf("blank source should default to system, got %s", appended.Source)
	}
}

func TestService_CreateBookingValidation(t *testing.T) {
	svc := newTestService(t, &fakeRepository{}, &fakeOutbox{})
	start := "14:00"
	badEnd := "13:00"

	tests := []struct {
		name  string
		input CreateBookingInput
	}{
		{name: "missing customer", input: CreateBookingInput{AmountCents: 100}},
		{name: "negative amount", input: CreateBookingInput{CustomerID: uuid.New(), AmountCents: -1}},
		{name: "window start only", input: CreateBookingInput{CustomerID: uuid.New(), WindowStart: &start}},
		{name: "inverted window", input: CreateBookingInput{CustomerID: uuid.New(), WindowStart: &start, WindowEnd: &badEnd}},
		{name: "bad source", input: CreateBookingInput{CustomerID: uuid.New(), Source: enums.EventSource("robot")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateBooking(context.Background(), tc.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if code := codeOf(t, err); code != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %s", code)
			}
		})
	}
}

func TestService_TransitionHappyPath(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusPendingCard)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}

	var appended *models.LifecycleEvent
	repo.appendEventFn = func(ctx context.Context, event *models.LifecycleEvent) (*models.LifecycleEvent, error) {
		appended = event
		return event, nil
	}
	var gotUpdates map[string]any
	repo.updateVersionedFn = func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
		if expectedVersion != 1 {
			t.Fatalf("expected optimistic check against version 1, got %d", expectedVersion)
		}
		gotUpdates = updates
		return true, nil
	}

	got, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCardSaved,
		Source:    enums.EventSourceWebhook,
	})
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if got.Status != enums.BookingStatusCardSaved || got.Version != 2 {
		t.Fatalf("unexpected booking after transition: %+v", got)
	}
	if gotUpdates["version"] != 2 {
		t.Fatalf("expected version bump to 2, got %v", gotUpdates["version"])
	}
	if appended == nil || appended.EventType != enums.LifecycleEventTransition {
		t.Fatalf("expected transition event, got %+v", appended)
	}

	// the event row must be written before the status row
	var appendIdx, updateIdx int
	for i, call := range repo.calls {
		switch call {
		case "append":
			appendIdx = i
		case "update":
			updateIdx = i
		}
	}
	if appendIdx > updateIdx {
		t.Fatalf("event append must precede status update: %v", repo.calls)
	}

	if len(ob.events) != 1 {
		t.Fatalf("expected one outbox event, got %d", len(ob.events))
	}
	if ob.events[0].EventType != enums.EventBookingTransitioned {
		t.Fatalf("unexpected outbox event type %s", ob.events[0].EventType)
	}
}

func TestService_TransitionIllegal(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusPendingCard)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}

	_, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCharged,
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if code := codeOf(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
	if len(ob.events) != 0 {
		t.Fatal("illegal transition must not emit events")
	}
}

func TestService_CancelRequiresReason(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeOutbox{})

	booking := testBooking(enums.BookingStatusScheduled)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}

	_, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCancelled,
	})
	if code := codeOf(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("cancel without reason should be VALIDATION_ERROR, got %s", code)
	}
	for _, call := range repo.calls {
		if call == "append" || call == "update" {
			t.Fatalf("rejected cancel must not write: %v", repo.calls)
		}
	}

	reason := "customer moved out of the service area"
	got, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCancelled,
		Reason:    &reason,
	})
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if got.Status != enums.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestService_TransitionIdempotentNoop(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusCardSaved)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}

	got, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCardSaved,
	})
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("no-op transition must not bump version, got %d", got.Version)
	}
	if len(ob.events) != 0 {
		t.Fatal("no-op transition must not emit events")
	}
	for _, call := range repo.calls {
		if call == "append" || call == "update" {
			t.Fatalf("no-op transition must not write: %v", repo.calls)
		}
	}
}

func TestService_TransitionNotFound(t *testing.T) {
	svc := newTestService(t, &fakeRepository{}, &fakeOutbox{})

	_, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: uuid.New(),
		Target:    enums.BookingStatusCardSaved,
	})
	if err == nil {
		t.Fatal("expected not found")
	}
	if code := codeOf(t, err); code != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestService_TransitionVersionConflictRetries(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusScheduled)
	finds := 0
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		finds++
		copy := *booking
		if finds > 1 {
			// a concurrent writer bumped the version between attempts
			copy.Version = 2
		}
		return &copy, nil
	}
	updates := 0
	repo.updateVersionedFn = func(ctx context.Context, id uuid.UUID, expectedVersion int, upd map[string]any) (bool, error) {
		updates++
		if updates == 1 {
			return false, nil
		}
		if expectedVersion != 2 {
			t.Fatalf("retry should use the reloaded version, got %d", expectedVersion)
		}
		return true, nil
	}

	got, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusInProgress,
	})
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if got.Version != 3 {
		t.Fatalf("expected version 3 after retry, got %d", got.Version)
	}
	if updates != 2 {
		t.Fatalf("expected exactly one retry, got %d updates", updates)
	}
}

func TestService_TransitionVersionConflictExhausted(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeOutbox{})

	booking := testBooking(enums.BookingStatusScheduled)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}
	repo.updateVersionedFn = func(ctx context.Context, id uuid.UUID, expectedVersion int, upd map[string]any) (bool, error) {
		return false, nil
	}

	_, err := svc.Transition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusInProgress,
	})
	if err == nil {
		t.Fatal("expected conflict after retries exhausted")
	}
	if code := codeOf(t, err); code != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestService_OverrideBypassesTable(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	// charged is terminal for normal transitions
	booking := testBooking(enums.BookingStatusCharged)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}
	var appended *models.LifecycleEvent
	repo.appendEventFn = func(ctx context.Context, event *models.LifecycleEvent) (*models.LifecycleEvent, error) {
		appended = event
		return event, nil
	}

	actor := uuid.New()
	got, err := svc.Override(context.Background(), OverrideInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCompleted,
		ActorID:   actor,
		ActorRole: enums.UserRoleAdmin,
		Reason:    "charge recorded against wrong booking",
	})
	if err != nil {
		t.Fatalf("Override error: %v", err)
	}
	if got.Status != enums.BookingStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if appended == nil || appended.EventType != enums.LifecycleEventOverrideTransition {
		t.Fatalf("expected override event, got %+v", appended)
	}
	if appended.Source != enums.EventSourceDashboardAdmin {
		t.Fatalf("override source must be dashboard_admin, got %s", appended.Source)
	}
	if appended.ActorID == nil || *appended.ActorID != actor {
		t.Fatal("override event must record the actor")
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventBookingOverridden {
		t.Fatalf("expected booking.overridden outbox event, got %+v", ob.events)
	}
}

func TestService_OverrideRequiresAdminActorAndReason(t *testing.T) {
	svc := newTestService(t, &fakeRepository{}, &fakeOutbox{})

	_, err := svc.Override(context.Background(), OverrideInput{
		BookingID: uuid.New(),
		Target:    enums.BookingStatusCancelled,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleAdmin,
	})
	if code := codeOf(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("missing reason should be VALIDATION_ERROR, got %s", code)
	}

	_, err = svc.Override(context.Background(), OverrideInput{
		BookingID: uuid.New(),
		Target:    enums.BookingStatusCancelled,
		ActorRole: enums.UserRoleAdmin,
		Reason:    "cleanup",
	})
	if code := codeOf(t, err); code != pkgerrors.CodeUnauthorized {
		t.Fatalf("missing actor should be UNAUTHORIZED, got %s", code)
	}

	for _, role := range []enums.UserRole{enums.UserRoleDispatcher, enums.UserRoleStaff, ""} {
		_, err = svc.Override(context.Background(), OverrideInput{
			BookingID: uuid.New(),
			Target:    enums.BookingStatusCancelled,
			ActorID:   uuid.New(),
			ActorRole: role,
			Reason:    "cleanup",
		})
		if code := codeOf(t, err); code != pkgerrors.CodeForbidden {
			t.Fatalf("role %q should be FORBIDDEN, got %s", role, code)
		}
	}
}

func TestService_RescheduleUpdatesScheduleOnly(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusCardSaved)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}
	var gotUpdates map[string]any
	repo.updateVersionedFn = func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
		gotUpdates = updates
		return true, nil
	}

	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	start, end := "09:00", "12:00"
	got, err := svc.Reschedule(context.Background(), RescheduleInput{
		BookingID:   booking.ID,
		ServiceDate: date,
		WindowStart: &start,
		WindowEnd:   &end,
		Reason:      "customer asked for a later slot",
		Source:      enums.EventSourceDashboardAdmin,
	})
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if got.Status != enums.BookingStatusCardSaved {
		t.Fatalf("reschedule must not change status, got %s", got.Status)
	}
	if got.ServiceDate == nil || !got.ServiceDate.Equal(date) {
		t.Fatalf("service date not applied: %+v", got.ServiceDate)
	}
	if _, ok := gotUpdates["status"]; ok {
		t.Fatal("reschedule must not write status")
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventBookingRescheduled {
		t.Fatalf("expected booking.rescheduled outbox event, got %+v", ob.events)
	}
}

func TestService_RescheduleRequiresReason(t *testing.T) {
	svc := newTestService(t, &fakeRepository{}, &fakeOutbox{})

	_, err := svc.Reschedule(context.Background(), RescheduleInput{
		BookingID:   uuid.New(),
		ServiceDate: time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
	})
	if code := codeOf(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("missing reason should be VALIDATION_ERROR, got %s", code)
	}
}

func TestService_RescheduleAfterWorkStartsRejected(t *testing.T) {
	for _, status := range []enums.BookingStatus{
		enums.BookingStatusInProgress,
		enums.BookingStatusCompleted,
		enums.BookingStatusPaymentFailed,
		enums.BookingStatusCharged,
		enums.BookingStatusCancelled,
	} {
		t.Run(status.String(), func(t *testing.T) {
			repo := &fakeRepository{}
			ob := &fakeOutbox{}
			svc := newTestService(t, repo, ob)

			booking := testBooking(status)
			repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
				copy := *booking
				return &copy, nil
			}

			_, err := svc.Reschedule(context.Background(), RescheduleInput{
				BookingID:   booking.ID,
				ServiceDate: time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
				Reason:      "move the job",
			})
			if code := codeOf(t, err); code != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %s", code)
			}
			if len(ob.events) != 0 {
				t.Fatal("rejected reschedule must not emit events")
			}
			for _, call := range repo.calls {
				if call == "append" || call == "update" {
					t.Fatalf("rejected reschedule must not write: %v", repo.calls)
				}
			}
		})
	}
}

func TestService_MarkCardOnFile(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusPendingCard)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}
	var gotUpdates map[string]any
	repo.updateVersionedFn = func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
		gotUpdates = updates
		return true, nil
	}

	got, err := svc.MarkCardOnFile(context.Background(), MarkCardOnFileInput{
		BookingID:        booking.ID,
		SquareCustomerID: "SQ_CUST_9",
		Source:           enums.EventSourceWebhook,
	})
	if err != nil {
		t.Fatalf("MarkCardOnFile error: %v", err)
	}
	if got.Status != enums.BookingStatusCardSaved {
		t.Fatalf("expected card_saved, got %s", got.Status)
	}
	if got.SquareCustomerID == nil || *got.SquareCustomerID != "SQ_CUST_9" {
		t.Fatal("gateway customer reference not recorded")
	}
	if gotUpdates["square_customer_id"] != "SQ_CUST_9" {
		t.Fatalf("expected square_customer_id in updates, got %v", gotUpdates)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventBookingTransitioned {
		t.Fatalf("expected booking.transitioned outbox event, got %+v", ob.events)
	}
}

func TestService_MarkCardOnFileIdempotentOnCardSaved(t *testing.T) {
	repo := &fakeRepository{}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	booking := testBooking(enums.BookingStatusCardSaved)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}

	got, err := svc.MarkCardOnFile(context.Background(), MarkCardOnFileInput{
		BookingID:        booking.ID,
		SquareCustomerID: "SQ_CUST_9",
	})
	if err != nil {
		t.Fatalf("MarkCardOnFile error: %v", err)
	}
	if got.Status != enums.BookingStatusCardSaved {
		t.Fatalf("status must stay card_saved, got %s", got.Status)
	}
	if len(ob.events) != 0 {
		t.Fatal("repeat confirmation must not emit events")
	}
	for _, call := range repo.calls {
		if call == "append" {
			t.Fatalf("repeat confirmation must not append events: %v", repo.calls)
		}
	}
}

func TestService_MarkCardOnFileRejectsLaterStates(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeOutbox{})

	booking := testBooking(enums.BookingStatusInProgress)
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}

	_, err := svc.MarkCardOnFile(context.Background(), MarkCardOnFileInput{
		BookingID:        booking.ID,
		SquareCustomerID: "SQ_CUST_9",
	})
	if code := codeOf(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestService_TimelineProjectsStage(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeOutbox{})

	date := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	booking := testBooking(enums.BookingStatusCardSaved)
	booking.ServiceDate = &date
	repo.findBookingFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		copy := *booking
		return &copy, nil
	}
	next := "opaque-cursor"
	repo.listEventPageFn = func(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.LifecycleEvent, *string, error) {
		return []models.LifecycleEvent{
			{ID: uuid.New(), EventType: enums.LifecycleEventTransition, ToStatus: statusPtr(enums.BookingStatusCardSaved)},
			{ID: uuid.New(), EventType: enums.LifecycleEventCreated, ToStatus: statusPtr(enums.BookingStatusPendingCard)},
		}, &next, nil
	}

	view, err := svc.Timeline(context.Background(), booking.ID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("Timeline error: %v", err)
	}
	if view.Stage != enums.FunnelStageUpcoming {
		t.Fatalf("card_saved with a date should project upcoming, got %s", view.Stage)
	}
	if len(view.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(view.Events))
	}
	if view.NextCursor == nil || *view.NextCursor != next {
		t.Fatal("next cursor should pass through")
	}
}

func TestService_ReplayStatus(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeOutbox{})

	repo.listEventsFn = func(ctx context.Context, bookingID uuid.UUID) ([]models.LifecycleEvent, error) {
		return []models.LifecycleEvent{
			{ID: uuid.New(), EventType: enums.LifecycleEventCreated, ToStatus: statusPtr(enums.BookingStatusPendingCard)},
			{ID: uuid.New(), EventType: enums.LifecycleEventTransition, ToStatus: statusPtr(enums.BookingStatusCardSaved)},
		}, nil
	}

	status, err := svc.ReplayStatus(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ReplayStatus error: %v", err)
	}
	if status != enums.BookingStatusCardSaved {
		t.Fatalf("expected card_saved, got %s", status)
	}
}
