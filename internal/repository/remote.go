package repository

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/remote"
	"github.com/marcus/yoga/internal/sync"
)

// BookingRepository reads bookings straight from the remote store. They are
// never cached locally.
type BookingRepository struct {
	store  remote.Store
	logger *slog.Logger
}

// NewBookingRepository returns a booking reader over store
func NewBookingRepository(store remote.Store, logger *slog.Logger) *BookingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingRepository{store: store, logger: logger}
}

// All returns every booking, oldest first. A remote failure is logged and
// yields an empty list.
func (r *BookingRepository) All(ctx context.Context) []models.Booking {
	nodes, err := r.store.GetAll(ctx, remote.Bookings)
	if err != nil {
		r.logger.Warn("load bookings", "err", err)
		return []models.Booking{}
	}
	records := remote.DecodeAll[sync.BookingRecord](nodes, func(key string, err error) {
		r.logger.Warn("skipping malformed booking", "key", key, "err", err)
	})

	bookings := make([]models.Booking, 0, len(records))
	for key, rec := range records {
		bookings = append(bookings, rec.Booking(key))
	}
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].BookedAt.Equal(bookings[j].BookedAt) {
			return bookings[i].BookedAt.Before(bookings[j].BookedAt)
		}
		return bookings[i].Key < bookings[j].Key
	})
	return bookings
}

// ForClass returns the bookings of one class by its remote key
func (r *BookingRepository) ForClass(ctx context.Context, classKey string) []models.Booking {
	all := r.All(ctx)
	out := make([]models.Booking, 0, len(all))
	for _, b := range all {
		if b.ClassKey == classKey {
			out = append(out, b)
		}
	}
	return out
}

// UserRepository reads customer profiles from the remote store
type UserRepository struct {
	store  remote.Store
	logger *slog.Logger
}

// NewUserRepository returns a user reader over store
func NewUserRepository(store remote.Store, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{store: store, logger: logger}
}

// All returns every user sorted by name, then email. A remote failure is
// logged and yields an empty list.
func (r *UserRepository) All(ctx context.Context) []models.User {
	nodes, err := r.store.GetAll(ctx, remote.Users)
	if err != nil {
		r.logger.Warn("load users", "err", err)
		return []models.User{}
	}
	records := remote.DecodeAll[sync.UserRecord](nodes, func(key string, err error) {
		r.logger.Warn("skipping malformed user", "key", key, "err", err)
	})

	users := make([]models.User, 0, len(records))
	for key, rec := range records {
		users = append(users, rec.User(key))
	}
	sort.Slice(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].DisplayName), strings.ToLower(users[j].DisplayName)
		if a != b {
			return a < b
		}
		if users[i].Email != users[j].Email {
			return users[i].Email < users[j].Email
		}
		return users[i].UID < users[j].UID
	})
	return users
}

// ByUID returns one user. Profiles are normally stored under their uid;
// when they are not, the collection is scanned.
func (r *UserRepository) ByUID(ctx context.Context, uid string) (*models.User, error) {
	if remote.ValidKey(uid) == nil {
		var rec sync.UserRecord
		err := r.store.Get(ctx, remote.Users, uid, &rec)
		if err == nil {
			u := rec.User(uid)
			return &u, nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return nil, err
		}
	}

	nodes, err := r.store.GetAll(ctx, remote.Users)
	if err != nil {
		return nil, err
	}
	for key, rec := range remote.DecodeAll[sync.UserRecord](nodes, nil) {
		if u := rec.User(key); u.UID == uid {
			return &u, nil
		}
	}
	return nil, remote.ErrNotFound
}
