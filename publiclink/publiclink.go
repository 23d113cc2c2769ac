/*
Package publiclink publishes time-boxed booking offers that a client can
redeem without an account.

PURPOSE:
  The professional picks a client, a whitelist of services and a date range.
  The offer stores the precomputed map of date → free start times and is
  addressed by a signed token. Redeeming runs the same booking path as the
  internal calendar, on behalf of the offer's owner.

TOKENS:
  HS256 JWTs. The token id (jti) is the offer id; exp enforces the TTL
  (default 48h). A tampered or foreign token reads as not found.

REDEMPTION:
  1. Verify the token and load the offer
  2. Check the chosen services are whitelisted and the slot was offered
  3. Book with source=public_link and mark the offer redeemed
  When the booking store supports transactions, step 3 runs in one
  transaction; otherwise booking compensations apply.

SEE ALSO:
  - lifecycle/service.go: Book
  - lifecycle/slots.go: AvailableSlots
*/
package publiclink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/lifecycle"
)

// DefaultTTL is how long an offer stays redeemable.
const DefaultTTL = 48 * time.Hour

// DefaultDays is how many days of availability an offer covers.
const DefaultDays = 7

var (
	ErrOfferExpired  = errors.New("offer expired")
	ErrOfferRedeemed = errors.New("offer already redeemed")
)

// =============================================================================
// OFFER
// =============================================================================

type Offer struct {
	ID            string
	OwnerID       booking.OwnerID
	ClientID      booking.ClientID
	ServiceIDs    []booking.ServiceID
	ResourceID    booking.ResourceID
	Availability  map[calendar.Date][]calendar.TimeOfDay
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RedeemedAt    *time.Time
	AppointmentID booking.AppointmentID

	// Token is derived, never stored.
	Token string
}

// Dates returns the offered dates in order.
func (o *Offer) Dates() []calendar.Date {
	dates := make([]calendar.Date, 0, len(o.Availability))
	for d := range o.Availability {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Offers reports whether start on d was part of the offer.
func (o *Offer) Offers(d calendar.Date, start calendar.TimeOfDay) bool {
	return slices.Contains(o.Availability[d], start)
}

// Store persists offers by id.
type Store interface {
	SaveOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	MarkRedeemed(ctx context.Context, id string, at time.Time, appt booking.AppointmentID) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Offers   Store
	Bookings *lifecycle.Service
	Secret   []byte
	TTL      time.Duration
	Window   calendar.SlotRange
	Logger   zerolog.Logger
	NewID    func() string
}

func New(offers Store, bookings *lifecycle.Service, secret []byte, window calendar.SlotRange, logger zerolog.Logger) *Service {
	return &Service{
		Offers:   offers,
		Bookings: bookings,
		Secret:   secret,
		TTL:      DefaultTTL,
		Window:   window,
		Logger:   logger,
		NewID:    uuid.NewString,
	}
}

type IssueInput struct {
	ClientID   booking.ClientID
	ServiceIDs []booking.ServiceID
	ResourceID booking.ResourceID
	From       calendar.Date // zero = today
	Days       int
}

// Issue computes availability for the requested services and publishes the
// offer.
func (s *Service) Issue(ctx context.Context, act booking.ActingContext, in IssueInput) (*Offer, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	v := &booking.ValidationError{}
	if in.ClientID == "" {
		v.Add("client_id", "required")
	}
	if len(in.ServiceIDs) == 0 {
		v.Add("services", "select at least one service")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	st := s.Bookings.Store
	if _, err := st.GetClient(ctx, act.OwnerID, in.ClientID); err != nil {
		return nil, err
	}
	duration := 0
	for _, id := range in.ServiceIDs {
		svc, err := st.GetService(ctx, act.OwnerID, id)
		if err != nil {
			return nil, err
		}
		if !svc.Active {
			return nil, booking.NewValidationError("services", fmt.Sprintf("service %q is not offered", svc.Name))
		}
		duration += svc.DurationMinutes
	}

	clock := s.Bookings.Clock
	from := in.From
	if from.IsZero() {
		from = clock.Today()
	}
	days := in.Days
	if days <= 0 {
		days = DefaultDays
	}

	availability := make(map[calendar.Date][]calendar.TimeOfDay)
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		free, err := s.Bookings.AvailableSlots(ctx, act, lifecycle.SlotQuery{
			Date:            d,
			ResourceID:      in.ResourceID,
			DurationMinutes: duration,
			Window:          s.Window,
		})
		if err != nil {
			return nil, err
		}
		if len(free) > 0 {
			availability[d] = free
		}
	}

	now := clock.Now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := &Offer{
		ID:           s.NewID(),
		OwnerID:      act.OwnerID,
		ClientID:     in.ClientID,
		ServiceIDs:   in.ServiceIDs,
		ResourceID:   in.ResourceID,
		Availability: availability,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	token, err := s.sign(o)
	if err != nil {
		return nil, err
	}
	if err := s.Offers.SaveOffer(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to save offer: %w", err)
	}
	o.Token = token

	s.Logger.Info().
		Str("offer_id", o.ID).
		Str("client_id", string(o.ClientID)).
		Int("dates", len(availability)).
		Time("expires_at", o.ExpiresAt).
		Str("actor", act.Actor()).
		Msg("booking offer issued")
	return o, nil
}

// Lookup verifies the token and returns the still-open offer.
func (s *Service) Lookup(ctx context.Context, token string) (*Offer, error) {
	id, err := s.verify(token)
	if err != nil {
		return nil, err
	}
	o, err := s.Offers.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.RedeemedAt != nil {
		return nil, ErrOfferRedeemed
	}
	if !s.Bookings.Clock.Now().Before(o.ExpiresAt) {
		return nil, ErrOfferExpired
	}
	o.Token = token
	return o, nil
}

type RedeemInput struct {
	Date       calendar.Date
	StartTime  calendar.TimeOfDay
	ServiceIDs []booking.ServiceID // subset of the offer; empty = all
	Notes      string
}

// Redeem books the chosen slot for the offer's client.
func (s *Service) Redeem(ctx context.Context, token string, in RedeemInput) (*booking.Appointment, error) {
	o, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	services := in.ServiceIDs
	if len(services) == 0 {
		services = o.ServiceIDs
	}
	for _, id := range services {
		if !slices.Contains(o.ServiceIDs, id) {
			return nil, booking.NewValidationError("services", fmt.Sprintf("service %s is not part of this offer", id))
		}
	}
	if !o.Offers(in.Date, in.StartTime) {
		return nil, booking.NewValidationError("start_time", fmt.Sprintf("%s %s was not offered", in.Date, in.StartTime))
	}

	act := booking.ActingContext{OwnerID: o.OwnerID, ActingAsID: "public-link"}
	start := in.StartTime
	bookIn := lifecycle.BookInput{
		Date:       in.Date,
		StartTime:  &start,
		ServiceIDs: services,
		ClientID:   o.ClientID,
		ResourceID: o.ResourceID,
		Source:     booking.SourcePublicLink,
		Notes:      in.Notes,
	}

	var appt *booking.Appointment
	redeem := func(bookings *lifecycle.Service, offers Store) error {
		res, err := bookings.Book(ctx, act, bookIn)
		if err != nil {
			return err
		}
		appt = res.Appointment
		return offers.MarkRedeemed(ctx, o.ID, bookings.Clock.Now(), appt.ID)
	}

	if tx, ok := s.Bookings.Store.(booking.TxStore); ok {
		err = tx.WithTx(ctx, func(st booking.Store) error {
			offers := s.Offers
			if txOffers, ok := st.(Store); ok {
				offers = txOffers
			}
			return redeem(s.Bookings.WithStore(st), offers)
		})
	} else {
		err = redeem(s.Bookings, s.Offers)
	}
	if err != nil {
		return nil, err
	}

	s.Logger.Info().
		Str("offer_id", o.ID).
		Str("appointment_id", string(appt.ID)).
		Msg("booking offer redeemed")
	return appt, nil
}

// =============================================================================
// TOKENS
// =============================================================================

type offerClaims struct {
	Owner string `json:"own"`
	jwt.RegisteredClaims
}

func (s *Service) sign(o *Offer) (string, error) {
	claims := offerClaims{
		Owner: string(o.OwnerID),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        o.ID,
			Subject:   string(o.ClientID),
			IssuedAt:  jwt.NewNumericDate(o.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(o.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign offer token: %w", err)
	}
	return token, nil
}

func (s *Service) verify(token string) (string, error) {
	claims := &offerClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.Bookings.Clock.Now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrOfferExpired
	case err != nil:
		return "", booking.ErrOfferNotFound
	case claims.ID == "":
		return "", booking.ErrOfferNotFound
	}
	return claims.ID, nil
}
