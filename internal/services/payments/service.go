package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
	"github.com/ivankudzin/payhooks/internal/domain/rules"
	"github.com/ivankudzin/payhooks/internal/pkg/validate"
	pgrepo "github.com/ivankudzin/payhooks/internal/repo/postgres"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
	defaultDedupeTTL      = 24 * time.Hour
)

var (
	ErrValidation       = errors.New("validation error")
	ErrListingNotFound  = errors.New("listing not found")
	ErrStoreUnavailable = errors.New("payment store unavailable")
)

type BoostStore interface {
	ApplyBoost(ctx context.Context, in pgrepo.BoostApplyInput) (model.BoostPayment, model.Listing, error)
	RecordBoostFailure(ctx context.Context, in pgrepo.BoostApplyInput) (bool, error)
}

type DonationStore interface {
	UpsertDonation(ctx context.Context, in pgrepo.DonationInput) (model.Donation, error)
	RecordDonationFailure(ctx context.Context, in pgrepo.DonationInput) (bool, error)
}

// DeliveryStore remembers fully processed deliveries. It is optional.
type DeliveryStore interface {
	IsProcessed(ctx context.Context, gateway, reference, status string) (bool, error)
	MarkProcessed(ctx context.Context, gateway, reference, status string, ttl time.Duration) error
}

type Outcome string

const (
	OutcomeCredited        Outcome = "credited"
	OutcomeFailureRecorded Outcome = "failure_recorded"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeLogged          Outcome = "logged"
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type Service struct {
	boosts     BoostStore
	donations  DonationStore
	deliveries DeliveryStore
	logger     *zap.Logger

	defaultBoostDays int
	dedupeTTL        time.Duration
	retry            RetryPolicy
	now              func() time.Time
}

type Dependencies struct {
	Boosts     BoostStore
	Donations  DonationStore
	Deliveries DeliveryStore
	Logger     *zap.Logger

	DefaultBoostDays int
	DedupeTTL        time.Duration
	Retry            RetryPolicy
}

type Result struct {
	Outcome        Outcome
	Kind           enums.ReferenceKind
	Reference      string
	ListingID      string
	DurationDays   int
	BoostExpiresAt *time.Time
	UserID         *string
	// Changed is false when a failure notification met an already successful
	// payment and left it untouched.
	Changed bool
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	days := deps.DefaultBoostDays
	if days <= 0 {
		days = rules.DefaultBoostDays
	}
	ttl := deps.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}

	policy := deps.Retry
	if policy.Attempts <= 0 {
		policy.Attempts = defaultRetryAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultRetryBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultRetryMaxDelay
	}

	return &Service{
		boosts:           deps.Boosts,
		donations:        deps.Donations,
		deliveries:       deps.Deliveries,
		logger:           logger,
		defaultBoostDays: days,
		dedupeTTL:        ttl,
		retry:            policy,
		now:              time.Now,
	}
}

// Process acts on one decoded notification. Only successful payments credit
// anything; failed payments only mark payments already stored for the
// reference and every other status is logged.
func (s *Service) Process(ctx context.Context, n model.Notification) (Result, error) {
	ref := rules.ParseReference(n.ExternalReference, s.defaultBoostDays)
	res := Result{
		Kind:      ref.Kind,
		Reference: strings.TrimSpace(n.Reference),
	}

	log := s.logger.With(
		zap.String("gateway", string(n.Gateway)),
		zap.String("reference", res.Reference),
		zap.String("status", n.RawStatus),
		zap.String("external_reference", n.ExternalReference),
	)

	if n.Status != enums.PaymentStatusSuccessful && n.Status != enums.PaymentStatusFailed {
		log.Info("payment not final, nothing to record")
		res.Outcome = OutcomeLogged
		return res, nil
	}
	if !validate.Required(res.Reference) {
		return res, ErrValidation
	}

	switch ref.Kind {
	case enums.ReferenceKindBoost, enums.ReferenceKindDonation:
	case enums.ReferenceKindUnknown:
		log.Warn("unrecognised external reference, ignoring")
		res.Outcome = OutcomeIgnored
		return res, nil
	default:
		log.Warn("unsupported reference kind, ignoring", zap.String("kind", string(ref.Kind)))
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	if s.alreadyProcessed(ctx, log, n) {
		log.Info("delivery already processed")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	var err error
	if n.Status == enums.PaymentStatusSuccessful {
		res, err = s.credit(ctx, n, ref, res)
	} else {
		res, err = s.recordFailure(ctx, n, ref, res)
	}
	if err != nil {
		if errors.Is(err, ErrListingNotFound) {
			log.Warn("boost listing not found", zap.String("listing_id", ref.ListingID))
		} else {
			log.Error("process payment notification", zap.Error(err))
		}
		return res, err
	}

	s.markProcessed(ctx, log, n)
	log.Info("payment notification processed",
		zap.String("outcome", string(res.Outcome)),
		zap.String("kind", string(res.Kind)),
		zap.Bool("changed", res.Changed),
	)
	return res, nil
}

func (s *Service) credit(ctx context.Context, n model.Notification, ref model.Reference, res Result) (Result, error) {
	switch ref.Kind {
	case enums.ReferenceKindBoost:
		if s.boosts == nil {
			return res, ErrStoreUnavailable
		}
		expiresAt := rules.BoostExpiresAt(s.now(), ref.DurationDays)
		in := pgrepo.BoostApplyInput{
			PaymentReference: res.Reference,
			ListingID:        ref.ListingID,
			Gateway:          n.Gateway,
			Amount:           n.Amount,
			Currency:         n.Currency,
			DurationDays:     ref.DurationDays,
			ExpiresAt:        expiresAt,
		}

		var listing model.Listing
		err := s.withRetry(ctx, "apply boost", func(ctx context.Context) error {
			_, applied, err := s.boosts.ApplyBoost(ctx, in)
			if err != nil {
				return err
			}
			listing = applied
			return nil
		})
		if err != nil {
			if errors.Is(err, pgrepo.ErrListingNotFound) {
				return res, ErrListingNotFound
			}
			return res, fmt.Errorf("apply boost: %w", err)
		}

		res.Outcome = OutcomeCredited
		res.Changed = true
		res.ListingID = ref.ListingID
		res.DurationDays = ref.DurationDays
		if listing.BoostExpiresAt != nil {
			res.BoostExpiresAt = listing.BoostExpiresAt
		} else {
			res.BoostExpiresAt = &expiresAt
		}
		return res, nil

	case enums.ReferenceKindDonation:
		if s.donations == nil {
			return res, ErrStoreUnavailable
		}
		in := pgrepo.DonationInput{
			PaymentReference: res.Reference,
			UserID:           ref.UserID,
			Gateway:          n.Gateway,
			Amount:           n.Amount,
			Currency:         n.Currency,
		}
		err := s.withRetry(ctx, "upsert donation", func(ctx context.Context) error {
			_, err := s.donations.UpsertDonation(ctx, in)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("upsert donation: %w", err)
		}

		res.Outcome = OutcomeCredited
		res.Changed = true
		res.UserID = ref.UserID
		return res, nil

	default:
		res.Outcome = OutcomeIgnored
		return res, nil
	}
}

func (s *Service) recordFailure(ctx context.Context, n model.Notification, ref model.Reference, res Result) (Result, error) {
	var changed bool

	switch ref.Kind {
	case enums.ReferenceKindBoost:
		if s.boosts == nil {
			return res, ErrStoreUnavailable
		}
		in := pgrepo.BoostApplyInput{
			PaymentReference: res.Reference,
			ListingID:        ref.ListingID,
			Gateway:          n.Gateway,
			Amount:           n.Amount,
			Currency:         n.Currency,
			DurationDays:     ref.DurationDays,
		}
		err := s.withRetry(ctx, "record boost failure", func(ctx context.Context) error {
			ok, err := s.boosts.RecordBoostFailure(ctx, in)
			changed = ok
			return err
		})
		if err != nil {
			return res, fmt.Errorf("record boost failure: %w", err)
		}
		res.ListingID = ref.ListingID
		res.DurationDays = ref.DurationDays

	case enums.ReferenceKindDonation:
		if s.donations == nil {
			return res, ErrStoreUnavailable
		}
		in := pgrepo.DonationInput{
			PaymentReference: res.Reference,
			UserID:           ref.UserID,
			Gateway:          n.Gateway,
			Amount:           n.Amount,
			Currency:         n.Currency,
		}
		err := s.withRetry(ctx, "record donation failure", func(ctx context.Context) error {
			ok, err := s.donations.RecordDonationFailure(ctx, in)
			changed = ok
			return err
		})
		if err != nil {
			return res, fmt.Errorf("record donation failure: %w", err)
		}
		res.UserID = ref.UserID

	default:
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	res.Outcome = OutcomeFailureRecorded
	if !changed {
		res.Outcome = OutcomeLogged
	}
	res.Changed = changed
	return res, nil
}

// withRetry runs fn under the bounded exponential backoff. Permanent errors
// and context cancellation stop immediately.
func (s *Service) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.NewExponential(s.retry.BaseDelay)
	backoff = retry.WithCappedDuration(s.retry.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(s.retry.Attempts-1), backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || isPermanent(err) {
			return err
		}
		s.logger.Warn("payment write attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
}

func isPermanent(err error) bool {
	return errors.Is(err, pgrepo.ErrListingNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) alreadyProcessed(ctx context.Context, log *zap.Logger, n model.Notification) bool {
	if s.deliveries == nil {
		return false
	}
	done, err := s.deliveries.IsProcessed(ctx, string(n.Gateway), n.Reference, string(n.Status))
	if err != nil {
		log.Warn("check delivery mark", zap.Error(err))
		return false
	}
	return done
}

func (s *Service) markProcessed(ctx context.Context, log *zap.Logger, n model.Notification) {
	if s.deliveries == nil {
		return
	}
	if err := s.deliveries.MarkProcessed(ctx, string(n.Gateway), n.Reference, string(n.Status), s.dedupeTTL); err != nil {
		log.Warn("set delivery mark", zap.Error(err))
	}
}
