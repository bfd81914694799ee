package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/conference-rooms/internal/events"
	"github.com/example/conference-rooms/internal/lock"
	"github.com/example/conference-rooms/internal/persistence"
)

// bookingRepoStub keeps confirmed bookings in memory and rejects overlaps the
// way the storage layer does.
type bookingRepoStub struct {
	mu       sync.Mutex
	nextID   int64
	bookings map[int64]Booking
	err      error
}

func newBookingRepoStub(existing ...Booking) *bookingRepoStub {
	repo := &bookingRepoStub{bookings: make(map[int64]Booking)}
	for _, b := range existing {
		repo.bookings[b.ID] = b
		if b.ID > repo.nextID {
			repo.nextID = b.ID
		}
	}
	return repo
}

func (r *bookingRepoStub) CreateBookingIfFree(ctx context.Context, booking Booking) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Booking{}, r.err
	}
	for _, existing := range r.bookings {
		if existing.RoomID == booking.RoomID && existing.Start.Before(booking.End) && existing.End.After(booking.Start) {
			return Booking{}, persistence.ErrConflict
		}
	}
	r.nextID++
	booking.ID = r.nextID
	r.bookings[booking.ID] = booking
	return booking, nil
}

func (r *bookingRepoStub) ListConflicts(ctx context.Context, roomID int64, start, end time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for id := int64(1); id <= r.nextID; id++ {
		b, ok := r.bookings[id]
		if ok && b.RoomID == roomID && b.Start.Before(end) && b.End.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *bookingRepoStub) GetBooking(ctx context.Context, id int64) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	return b, nil
}

func (r *bookingRepoStub) ListBookings(ctx context.Context) ([]Booking, error) {
	return r.filter(func(Booking) bool { return true }), nil
}

func (r *bookingRepoStub) ListBookingsForUser(ctx context.Context, userID int64) ([]Booking, error) {
	return r.filter(func(b Booking) bool { return b.UserID == userID }), nil
}

func (r *bookingRepoStub) CancelBooking(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[id]; !ok {
		return false, nil
	}
	delete(r.bookings, id)
	return true, nil
}

func (r *bookingRepoStub) filter(keep func(Booking) bool) []Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for id := int64(1); id <= r.nextID; id++ {
		if b, ok := r.bookings[id]; ok && keep(b) {
			out = append(out, b)
		}
	}
	return out
}

type roomCatalogStub map[int64]Room

func (c roomCatalogStub) GetRoom(ctx context.Context, id int64) (Room, error) {
	room, ok := c[id]
	if !ok {
		return Room{}, persistence.ErrNotFound
	}
	return room, nil
}

type userDirectoryStub map[int64]User

func (d userDirectoryStub) GetUser(ctx context.Context, id int64) (User, error) {
	user, ok := d[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return user, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *publisherStub) Close() error { return nil }

type bookingFixture struct {
	repo      *bookingRepoStub
	publisher *publisherStub
	service   *BookingService
}

func newBookingFixture(existing ...Booking) bookingFixture {
	repo := newBookingRepoStub(existing...)
	publisher := &publisherStub{}
	svc := NewBookingService(BookingServiceDeps{
		Bookings:  repo,
		Rooms:     roomCatalogStub{10: {ID: 10, Name: "Orion"}, 11: {ID: 11, Name: "Vega"}},
		Users:     userDirectoryStub{1: {ID: 1, Role: RoleAdmin}, 2: {ID: 2, Role: RoleUser}, 3: {ID: 3, Role: RoleUser}},
		Locker:    lock.NewLocalLocker(),
		Publisher: publisher,
		Now:       fixedNow,
	})
	return bookingFixture{repo: repo, publisher: publisher, service: svc}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.March, 15, hour, minute, 0, 0, time.UTC)
}

func TestBookingService_CreateBooking(t *testing.T) {
	existing := Booking{ID: 1, RoomID: 10, UserID: 3, Start: at(9, 0), End: at(10, 0), Status: BookingConfirmed}

	t.Run("creates bookings in free slots", func(t *testing.T) {
		f := newBookingFixture(existing)

		booking, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 10, UserID: 2, Start: at(10, 0), End: at(11, 0)},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if booking.ID != 2 || booking.Status != BookingConfirmed {
			t.Fatalf("unexpected booking %+v", booking)
		}
		if !booking.CreatedAt.Equal(serviceNow) {
			t.Fatalf("expected creation time from clock, got %v", booking.CreatedAt)
		}
		if len(f.publisher.events) != 1 || f.publisher.events[0].Type != events.TypeBookingCreated {
			t.Fatalf("expected booking.created event, got %+v", f.publisher.events)
		}
		if f.publisher.events[0].BookingID != 2 {
			t.Fatalf("expected event for booking 2, got %+v", f.publisher.events[0])
		}
	})

	t.Run("reports the bookings that block the slot", func(t *testing.T) {
		f := newBookingFixture(existing)

		_, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 10, UserID: 2, Start: at(9, 30), End: at(10, 30)},
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %T", err)
		}
		if conflict.RoomID != 10 || len(conflict.BookingIDs) != 1 || conflict.BookingIDs[0] != 1 {
			t.Fatalf("unexpected conflict %+v", conflict)
		}
		if len(f.publisher.events) != 0 {
			t.Fatalf("expected no event for rejected booking")
		}
	})

	t.Run("allows the same slot in another room", func(t *testing.T) {
		f := newBookingFixture(existing)

		_, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 11, UserID: 2, Start: at(9, 0), End: at(10, 0)},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
	})

	t.Run("validates the range", func(t *testing.T) {
		f := newBookingFixture()

		_, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 10, UserID: 2, Start: at(11, 0), End: at(11, 0)},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["end"] == "" {
			t.Fatalf("expected end validation error, got %v", err)
		}
	})

	t.Run("prevents booking on behalf of other users", func(t *testing.T) {
		f := newBookingFixture()

		_, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 10, UserID: 3, Start: at(11, 0), End: at(12, 0)},
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("lets administrators book for others", func(t *testing.T) {
		f := newBookingFixture()

		booking, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: adminUser,
			Input:     BookingInput{RoomID: 10, UserID: 3, Start: at(11, 0), End: at(12, 0)},
		})
		if err != nil || booking.UserID != 3 {
			t.Fatalf("expected booking for user 3, got %+v (%v)", booking, err)
		}
	})

	t.Run("reports unknown rooms and users", func(t *testing.T) {
		f := newBookingFixture()

		_, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: adminUser,
			Input:     BookingInput{RoomID: 99, UserID: 2, Start: at(11, 0), End: at(12, 0)},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for room, got %v", err)
		}

		_, err = f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: adminUser,
			Input:     BookingInput{RoomID: 10, UserID: 99, Start: at(11, 0), End: at(12, 0)},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for user, got %v", err)
		}
	})

	t.Run("keeps the booking when publishing fails", func(t *testing.T) {
		f := newBookingFixture()
		f.publisher.err = errors.New("broker down")

		if _, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 10, UserID: 2, Start: at(11, 0), End: at(12, 0)},
		}); err != nil {
			t.Fatalf("expected success despite publish failure, got %v", err)
		}
	})

	t.Run("admits exactly one of many concurrent requests", func(t *testing.T) {
		f := newBookingFixture()

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
					Principal: plainUser,
					Input:     BookingInput{RoomID: 10, UserID: 2, Start: at(14, 0), End: at(15, 0)},
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded != 1 || conflicts != workers-1 {
			t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, succeeded, conflicts)
		}
	})
}

func TestBookingService_CancelBooking(t *testing.T) {
	owned := Booking{ID: 1, RoomID: 10, UserID: 2, Start: at(9, 0), End: at(10, 0), Status: BookingConfirmed}
	foreign := Booking{ID: 2, RoomID: 10, UserID: 3, Start: at(10, 0), End: at(11, 0), Status: BookingConfirmed}

	t.Run("owners cancel their bookings and free the slot", func(t *testing.T) {
		f := newBookingFixture(owned, foreign)

		if err := f.service.CancelBooking(context.Background(), plainUser, 1); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(f.publisher.events) != 1 || f.publisher.events[0].Type != events.TypeBookingCanceled {
			t.Fatalf("expected booking.canceled event, got %+v", f.publisher.events)
		}

		if _, err := f.service.CreateBooking(context.Background(), CreateBookingParams{
			Principal: plainUser,
			Input:     BookingInput{RoomID: 10, UserID: 2, Start: at(9, 0), End: at(10, 0)},
		}); err != nil {
			t.Fatalf("expected freed slot to be bookable, got %v", err)
		}
	})

	t.Run("bookings of others read as missing to users", func(t *testing.T) {
		f := newBookingFixture(owned, foreign)
		ctx := context.Background()

		cancelErr := f.service.CancelBooking(ctx, plainUser, 2)
		if !errors.Is(cancelErr, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", cancelErr)
		}
		if _, getErr := f.service.GetBooking(ctx, plainUser, 2); !errors.Is(getErr, ErrNotFound) {
			t.Fatalf("expected GetBooking to agree with CancelBooking, got %v", getErr)
		}
		if _, err := f.service.GetBooking(ctx, adminUser, 2); err != nil {
			t.Fatalf("expected foreign booking to stay in place, got %v", err)
		}
		if len(f.publisher.events) != 0 {
			t.Fatalf("expected no events, got %+v", f.publisher.events)
		}
	})

	t.Run("administrators cancel any booking", func(t *testing.T) {
		f := newBookingFixture(owned, foreign)

		if err := f.service.CancelBooking(context.Background(), adminUser, 2); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
	})

	t.Run("missing bookings are not found", func(t *testing.T) {
		f := newBookingFixture()

		if err := f.service.CancelBooking(context.Background(), adminUser, 42); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingService_Listing(t *testing.T) {
	f := newBookingFixture(
		Booking{ID: 1, RoomID: 10, UserID: 2, Start: at(9, 0), End: at(10, 0)},
		Booking{ID: 2, RoomID: 11, UserID: 3, Start: at(9, 0), End: at(10, 0)},
	)
	ctx := context.Background()

	all, err := f.service.ListBookings(ctx, adminUser)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected administrators to see every booking, got %v (%v)", all, err)
	}

	own, err := f.service.ListBookings(ctx, plainUser)
	if err != nil || len(own) != 1 || own[0].ID != 1 {
		t.Fatalf("expected users to see their own bookings, got %v (%v)", own, err)
	}

	if _, err := f.service.ListBookingsForUser(ctx, plainUser, 3); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if list, err := f.service.ListBookingsForUser(ctx, adminUser, 3); err != nil || len(list) != 1 {
		t.Fatalf("expected one booking for user 3, got %v (%v)", list, err)
	}

	if _, err := f.service.GetBooking(ctx, plainUser, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign booking to be hidden, got %v", err)
	}
	if b, err := f.service.GetBooking(ctx, plainUser, 1); err != nil || b.ID != 1 {
		t.Fatalf("expected own booking, got %+v (%v)", b, err)
	}
}
