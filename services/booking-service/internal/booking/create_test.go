package booking

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
)

func TestDayAvailability_StartModeRemovesOnlyBookedStart(t *testing.T) {
	e, _, _ := newFixture(availability.ModeStart)
	ctx := context.Background()

	_, _, err := e.CreateAppointment(ctx, createReq(haircutID, "10:00"))
	require.NoError(t, err)

	day, err := e.DayAvailability(ctx, "ana", monday, haircutID)
	require.NoError(t, err)
	require.Len(t, day.AvailabilityWindows, 1)
	require.Len(t, day.BookedAppointments, 1)
	assert.Equal(t, "10:00", day.BookedAppointments[0].StartTime)

	starts := make([]string, 0, len(day.Slots))
	for _, s := range day.Slots {
		starts = append(starts, s.Start)
	}
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00"}, starts)
}

func TestDayAvailability_OverlapModeUsesBuffers(t *testing.T) {
	e, _, _ := newFixture(availability.ModeOverlap)
	ctx := context.Background()

	// consult 09:30-10:00 plus a 15 minute buffer occupies [09:30,10:15)
	_, _, err := e.CreateAppointment(ctx, createReq(consultID, "09:30"))
	require.NoError(t, err)

	day, err := e.DayAvailability(ctx, "ana", monday, haircutID)
	require.NoError(t, err)
	starts := make([]string, 0, len(day.Slots))
	for _, s := range day.Slots {
		starts = append(starts, s.Start)
	}
	assert.Equal(t, []string{"10:30", "11:00"}, starts)
}

func TestDayAvailability_WithoutServiceReturnsRawData(t *testing.T) {
	e, _, _ := newFixture(availability.ModeOverlap)
	day, err := e.DayAvailability(context.Background(), "ana", "2026-03-03", "")
	require.NoError(t, err)
	assert.Empty(t, day.AvailabilityWindows, "no tuesday windows")
	assert.Empty(t, day.Slots)
	assert.NotNil(t, day.Slots)

	_, err = e.DayAvailability(context.Background(), "ana", "03/02/2026", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = e.DayAvailability(context.Background(), "nobody", monday, "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDayAvailability_DropsPastSlotsToday(t *testing.T) {
	e, _, _ := newFixture(availability.ModeOverlap)
	day, err := e.DayAvailability(context.Background(), "ana", "2026-02-23", haircutID)
	require.NoError(t, err)
	assert.Empty(t, day.Slots, "past dates have no bookable slots")
}

func TestCreateAppointment_Pending(t *testing.T) {
	e, repo, _ := newFixture(availability.ModeOverlap)
	appt, replayed, err := e.CreateAppointment(context.Background(), createReq(haircutID, "09:00"))
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.Equal(t, testProviderID, appt.ProviderID)
	assert.Equal(t, "09:00", appt.StartTime)
	assert.Equal(t, "10:00", appt.EndTime)
	assert.Equal(t, model.StatusScheduled, appt.Status)
	assert.Equal(t, model.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, int64(5000), appt.TotalAmount)
	assert.Equal(t, []string{outbox.EventAppointmentCreated}, repo.eventTypes())
}

func TestCreateAppointment_SnapshotsServiceAtBookingTime(t *testing.T) {
	e, repo, _ := newFixture(availability.ModeOverlap)
	appt, _, err := e.CreateAppointment(context.Background(), createReq(haircutID, "09:00"))
	require.NoError(t, err)

	svc := repo.services[haircutID]
	svc.PriceAmount = 9900
	svc.DurationMinutes = 90
	repo.services[haircutID] = svc

	stored, err := repo.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stored.TotalAmount)
	assert.Equal(t, "10:00", stored.EndTime)
}

func TestCreateAppointment_FreeServiceStartsPaid(t *testing.T) {
	e, _, _ := newFixture(availability.ModeOverlap)
	appt, _, err := e.CreateAppointment(context.Background(), createReq(freeCallID, "11:45"))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, appt.PaymentStatus)
	assert.Equal(t, "12:00", appt.EndTime)
}

func TestCreateAppointment_ServiceOfAnotherProviderIsNotFound(t *testing.T) {
	e, repo, _ := newFixture(availability.ModeOverlap)
	_, _, err := e.CreateAppointment(context.Background(), createReq(foreignID, "09:00"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, repo.appts)

	_, _, err = e.CreateAppointment(context.Background(), createReq(retiredID, "09:00"))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	req := createReq(haircutID, "09:00")
	req.Slug = "missing"
	_, _, err = e.CreateAppointment(context.Background(), req)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, repo.appts)
}

func TestCreateAppointment_Validation(t *testing.T) {
	e, repo, _ := newFixture(availability.ModeOverlap)
	ctx := context.Background()

	cases := map[string]CreateRequest{
		"outside window":  createReq(haircutID, "11:30"),
		"bad clock":       createReq(haircutID, "9am"),
		"missing email":   {Slug: "ana", ServiceID: haircutID, Client: Client{Name: "x"}, Date: monday, StartTime: "09:00"},
		"in the past":     {Slug: "ana", ServiceID: haircutID, Client: Client{Name: "x", Email: "x@example.com"}, Date: "2026-02-23", StartTime: "09:00"},
		"bad date format": {Slug: "ana", ServiceID: haircutID, Client: Client{Name: "x", Email: "x@example.com"}, Date: "2026-3-2", StartTime: "09:00"},
	}
	for name, req := range cases {
		_, _, err := e.CreateAppointment(ctx, req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), name)
	}
	assert.Empty(t, repo.appts)
}

func TestCreateAppointment_ConflictModes(t *testing.T) {
	ctx := context.Background()

	e, _, _ := newFixture(availability.ModeOverlap)
	_, _, err := e.CreateAppointment(ctx, createReq(haircutID, "09:00"))
	require.NoError(t, err)
	_, _, err = e.CreateAppointment(ctx, createReq(haircutID, "09:30"))
	assert.Equal(t, apperr.KindSlotConflict, apperr.KindOf(err))

	e, _, _ = newFixture(availability.ModeStart)
	_, _, err = e.CreateAppointment(ctx, createReq(haircutID, "09:00"))
	require.NoError(t, err)
	_, _, err = e.CreateAppointment(ctx, createReq(haircutID, "09:30"))
	assert.NoError(t, err, "start mode only rejects identical starts")
	_, _, err = e.CreateAppointment(ctx, createReq(haircutID, "09:00"))
	assert.Equal(t, apperr.KindSlotConflict, apperr.KindOf(err))
}

func TestCreateAppointment_ConcurrentSameStartAtMostOneWins(t *testing.T) {
	e, repo, _ := newFixture(availability.ModeStart)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = e.CreateAppointment(ctx, createReq(haircutID, "10:00"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperr.KindSlotConflict, apperr.KindOf(err))
	}
	assert.Equal(t, 1, ok)
	booked, _ := repo.ListBooked(ctx, testProviderID, monday)
	assert.Len(t, booked, 1)
}

func TestCreateAppointment_IdempotencyKeyReplays(t *testing.T) {
	e, repo, _ := newFixture(availability.ModeOverlap)
	ctx := context.Background()

	req := createReq(haircutID, "09:00")
	req.IdempotencyKey = "checkout-123"
	first, replayed, err := e.CreateAppointment(ctx, req)
	require.NoError(t, err)
	require.False(t, replayed)

	second, replayed, err := e.CreateAppointment(ctx, req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.appts, 1)
}

func TestHolds_BlockOthersUntilUsed(t *testing.T) {
	e, _, _ := newFixture(availability.ModeOverlap)
	ctx := context.Background()

	hold, err := e.PlaceHold(ctx, HoldRequest{Slug: "ana", ServiceID: haircutID, Date: monday, StartTime: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, "11:00", hold.EndTime)

	_, err = e.PlaceHold(ctx, HoldRequest{Slug: "ana", ServiceID: haircutID, Date: monday, StartTime: "10:00"})
	assert.Equal(t, apperr.KindSlotConflict, apperr.KindOf(err))

	_, _, err = e.CreateAppointment(ctx, createReq(haircutID, "10:30"))
	assert.Equal(t, apperr.KindSlotConflict, apperr.KindOf(err), "overlaps the held slot")

	day, err := e.DayAvailability(ctx, "ana", monday, haircutID)
	require.NoError(t, err)
	for _, s := range day.Slots {
		assert.NotEqual(t, "10:00", s.Start)
	}

	req := createReq(haircutID, "10:00")
	req.HoldToken = hold.Token
	_, _, err = e.CreateAppointment(ctx, req)
	require.NoError(t, err)

	held, err := e.holds.List(ctx, testProviderID, monday)
	require.NoError(t, err)
	assert.Empty(t, held, "hold is released once the appointment exists")
}

func TestGetAppointment_IncludesService(t *testing.T) {
	e, _, _ := newFixture(availability.ModeOverlap)
	appt, _, err := e.CreateAppointment(context.Background(), createReq(haircutID, "09:00"))
	require.NoError(t, err)

	got, err := e.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Service)
	assert.Equal(t, "Haircut", got.Service.Name)

	_, err = e.GetAppointment(context.Background(), "00000000-0000-0000-0000-00000000ffff")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
