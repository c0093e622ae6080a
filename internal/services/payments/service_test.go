package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
	pgrepo "github.com/ivankudzin/payhooks/internal/repo/postgres"
)

type boostStoreStub struct {
	listings   map[string]model.Listing
	payments   map[string]model.BoostPayment
	applyCalls int
	failCalls  int
	failures   int
	failErr    error
}

func newBoostStoreStub(listingIDs ...string) *boostStoreStub {
	s := &boostStoreStub{
		listings: make(map[string]model.Listing),
		payments: make(map[string]model.BoostPayment),
	}
	for _, id := range listingIDs {
		s.listings[id] = model.Listing{ID: id, SellerID: "seller-" + id}
	}
	return s
}

func (s *boostStoreStub) ApplyBoost(_ context.Context, in pgrepo.BoostApplyInput) (model.BoostPayment, model.Listing, error) {
	s.applyCalls++
	if s.failures > 0 {
		s.failures--
		return model.BoostPayment{}, model.Listing{}, s.failErr
	}

	listing, ok := s.listings[in.ListingID]
	if !ok {
		return model.BoostPayment{}, model.Listing{}, pgrepo.ErrListingNotFound
	}
	expiresAt := in.ExpiresAt
	listing.IsBoosted = true
	listing.BoostExpiresAt = &expiresAt
	s.listings[in.ListingID] = listing

	sellerID := listing.SellerID
	payment := model.BoostPayment{
		PaymentReference: in.PaymentReference,
		ListingID:        in.ListingID,
		UserID:           &sellerID,
		Gateway:          in.Gateway,
		Amount:           in.Amount,
		Currency:         in.Currency,
		DurationDays:     in.DurationDays,
		Status:           enums.PaymentStatusSuccessful,
	}
	s.payments[in.PaymentReference] = payment
	return payment, listing, nil
}

func (s *boostStoreStub) RecordBoostFailure(_ context.Context, in pgrepo.BoostApplyInput) (bool, error) {
	s.failCalls++
	existing, ok := s.payments[in.PaymentReference]
	if !ok || existing.Status == enums.PaymentStatusSuccessful {
		return false, nil
	}
	existing.Status = enums.PaymentStatusFailed
	s.payments[in.PaymentReference] = existing
	return true, nil
}

type donationStoreStub struct {
	donations map[string]model.Donation
	calls     int
}

func newDonationStoreStub() *donationStoreStub {
	return &donationStoreStub{donations: make(map[string]model.Donation)}
}

func (s *donationStoreStub) UpsertDonation(_ context.Context, in pgrepo.DonationInput) (model.Donation, error) {
	s.calls++
	rec := model.Donation{
		PaymentReference: in.PaymentReference,
		UserID:           in.UserID,
		Gateway:          in.Gateway,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Status:           enums.PaymentStatusSuccessful,
	}
	s.donations[in.PaymentReference] = rec
	return rec, nil
}

func (s *donationStoreStub) RecordDonationFailure(_ context.Context, in pgrepo.DonationInput) (bool, error) {
	s.calls++
	existing, ok := s.donations[in.PaymentReference]
	if !ok || existing.Status == enums.PaymentStatusSuccessful {
		return false, nil
	}
	existing.Status = enums.PaymentStatusFailed
	s.donations[in.PaymentReference] = existing
	return true, nil
}

type deliveryStoreStub struct {
	marks map[string]time.Duration
}

func newDeliveryStoreStub() *deliveryStoreStub {
	return &deliveryStoreStub{marks: make(map[string]time.Duration)}
}

func (s *deliveryStoreStub) IsProcessed(_ context.Context, gateway, reference, status string) (bool, error) {
	_, ok := s.marks[gateway+"|"+reference+"|"+status]
	return ok, nil
}

func (s *deliveryStoreStub) MarkProcessed(_ context.Context, gateway, reference, status string, ttl time.Duration) error {
	s.marks[gateway+"|"+reference+"|"+status] = ttl
	return nil
}

func newTestService(boosts *boostStoreStub, donations *donationStoreStub, deliveries DeliveryStore, now time.Time) *Service {
	svc := NewService(Dependencies{
		Boosts:     boosts,
		Donations:  donations,
		Deliveries: deliveries,
		Retry: RetryPolicy{
			Attempts:  3,
			BaseDelay: time.Millisecond,
			MaxDelay:  2 * time.Millisecond,
		},
	})
	svc.now = func() time.Time { return now }
	return svc
}

func successNotification(reference, external string) model.Notification {
	return model.Notification{
		Gateway:           enums.GatewayCamPay,
		RawStatus:         "SUCCESSFUL",
		Status:            enums.PaymentStatusSuccessful,
		Reference:         reference,
		Amount:            5000,
		Currency:          "XAF",
		ExternalReference: external,
	}
}

func TestProcessBoostUsesDurationFromReference(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	boosts := newBoostStoreStub("L1")
	svc := newTestService(boosts, newDonationStoreStub(), nil, now)

	res, err := svc.Process(context.Background(), successNotification("tx-1", "boost:L1:14"))
	if err != nil {
		t.Fatalf("process boost: %v", err)
	}
	if res.Outcome != OutcomeCredited || res.Kind != enums.ReferenceKindBoost {
		t.Fatalf("unexpected result: %+v", res)
	}

	listing := boosts.listings["L1"]
	if !listing.IsBoosted {
		t.Fatalf("expected listing to be boosted")
	}
	want := now.Add(14 * 24 * time.Hour)
	if listing.BoostExpiresAt == nil || !listing.BoostExpiresAt.Equal(want) {
		t.Fatalf("unexpected boost expiry: %v, want %v", listing.BoostExpiresAt, want)
	}

	payment := boosts.payments["tx-1"]
	if payment.DurationDays != 14 || payment.Amount != 5000 {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if payment.UserID == nil || *payment.UserID != "seller-L1" {
		t.Fatalf("expected payment attributed to seller, got %v", payment.UserID)
	}
}

func TestProcessBoostDefaultsToSevenDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	boosts := newBoostStoreStub("L1")
	svc := newTestService(boosts, newDonationStoreStub(), nil, now)

	for _, external := range []string{"boost:L1", "boost_L1", "boost:L1:abc", "boost:L1:-3"} {
		res, err := svc.Process(context.Background(), successNotification("tx-"+external, external))
		if err != nil {
			t.Fatalf("process %q: %v", external, err)
		}
		if res.DurationDays != 7 {
			t.Fatalf("%q: expected 7 days, got %d", external, res.DurationDays)
		}
		want := now.Add(7 * 24 * time.Hour)
		if res.BoostExpiresAt == nil || !res.BoostExpiresAt.Equal(want) {
			t.Fatalf("%q: unexpected expiry %v", external, res.BoostExpiresAt)
		}
	}
}

func TestProcessBoostReplayKeepsSinglePayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	boosts := newBoostStoreStub("L1")
	svc := newTestService(boosts, newDonationStoreStub(), nil, now)

	for _, external := range []string{"boost:L1:3", "boost:L1:3", "boost:L1:10"} {
		if _, err := svc.Process(context.Background(), successNotification("tx-1", external)); err != nil {
			t.Fatalf("process replay: %v", err)
		}
	}

	if len(boosts.payments) != 1 {
		t.Fatalf("expected one payment row, got %d", len(boosts.payments))
	}
	if boosts.payments["tx-1"].DurationDays != 10 {
		t.Fatalf("expected last duration to win, got %d", boosts.payments["tx-1"].DurationDays)
	}
	want := now.Add(10 * 24 * time.Hour)
	if got := boosts.listings["L1"].BoostExpiresAt; got == nil || !got.Equal(want) {
		t.Fatalf("unexpected expiry after replay: %v", got)
	}
}

func TestProcessAnonymousDonation(t *testing.T) {
	donations := newDonationStoreStub()
	svc := newTestService(newBoostStoreStub(), donations, nil, time.Now())

	res, err := svc.Process(context.Background(), successNotification("tx-d1", "donation:anonymous"))
	if err != nil {
		t.Fatalf("process donation: %v", err)
	}
	if res.Outcome != OutcomeCredited || res.UserID != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	rec, ok := donations.donations["tx-d1"]
	if !ok {
		t.Fatalf("expected donation row")
	}
	if rec.UserID != nil {
		t.Fatalf("expected anonymous donor, got %q", *rec.UserID)
	}
	if rec.Status != enums.PaymentStatusSuccessful || rec.Amount != 5000 {
		t.Fatalf("unexpected donation: %+v", rec)
	}
}

func TestProcessDonationWithUser(t *testing.T) {
	donations := newDonationStoreStub()
	svc := newTestService(newBoostStoreStub(), donations, nil, time.Now())

	if _, err := svc.Process(context.Background(), successNotification("tx-d2", "donation_U42")); err != nil {
		t.Fatalf("process donation: %v", err)
	}
	rec := donations.donations["tx-d2"]
	if rec.UserID == nil || *rec.UserID != "U42" {
		t.Fatalf("expected donor U42, got %v", rec.UserID)
	}
}

func TestProcessNonFinalStatusWritesNothing(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	donations := newDonationStoreStub()
	svc := newTestService(boosts, donations, nil, time.Now())

	n := successNotification("tx-1", "boost:L1:14")
	n.RawStatus = "PENDING"
	n.Status = enums.PaymentStatusPending

	res, err := svc.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if res.Outcome != OutcomeLogged {
		t.Fatalf("expected logged outcome, got %s", res.Outcome)
	}
	if boosts.applyCalls != 0 || boosts.failCalls != 0 || donations.calls != 0 {
		t.Fatalf("expected zero writes")
	}
	if boosts.listings["L1"].IsBoosted {
		t.Fatalf("listing must stay untouched")
	}
}

func TestProcessUnknownReferenceIsIgnored(t *testing.T) {
	boosts := newBoostStoreStub("X")
	donations := newDonationStoreStub()
	deliveries := newDeliveryStoreStub()
	svc := newTestService(boosts, donations, deliveries, time.Now())

	for _, external := range []string{"refund:X", "", "boost:", "garbage"} {
		res, err := svc.Process(context.Background(), successNotification("tx-u", external))
		if err != nil {
			t.Fatalf("process %q: %v", external, err)
		}
		if res.Outcome != OutcomeIgnored || res.Kind != enums.ReferenceKindUnknown {
			t.Fatalf("%q: unexpected result %+v", external, res)
		}
	}
	if boosts.applyCalls != 0 || donations.calls != 0 || len(deliveries.marks) != 0 {
		t.Fatalf("expected zero writes for unknown references")
	}
}

func TestProcessFailedBoostMarksStoredPaymentWithoutTouchingListing(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	boosts.payments["tx-f"] = model.BoostPayment{
		PaymentReference: "tx-f",
		ListingID:        "L1",
		Status:           enums.PaymentStatusPending,
	}
	svc := newTestService(boosts, newDonationStoreStub(), nil, time.Now())

	n := successNotification("tx-f", "boost:L1:5")
	n.RawStatus = "FAILED"
	n.Status = enums.PaymentStatusFailed

	res, err := svc.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("process failed boost: %v", err)
	}
	if res.Outcome != OutcomeFailureRecorded || !res.Changed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if boosts.applyCalls != 0 {
		t.Fatalf("failed payment must not apply a boost")
	}
	if boosts.listings["L1"].IsBoosted {
		t.Fatalf("listing must stay untouched")
	}
	if boosts.payments["tx-f"].Status != enums.PaymentStatusFailed {
		t.Fatalf("expected stored payment to be marked failed")
	}
}

func TestProcessFailedStatusForUnseenReferenceCreatesNoRows(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	donations := newDonationStoreStub()
	svc := newTestService(boosts, donations, nil, time.Now())

	for reference, external := range map[string]string{
		"tx-b": "boost:L1:14",
		"tx-d": "donation:anonymous",
	} {
		n := successNotification(reference, external)
		n.RawStatus = "FAILED"
		n.Status = enums.PaymentStatusFailed

		res, err := svc.Process(context.Background(), n)
		if err != nil {
			t.Fatalf("%q: process failed payment: %v", external, err)
		}
		if res.Changed {
			t.Fatalf("%q: expected nothing to change, got %+v", external, res)
		}
	}

	if len(boosts.payments) != 0 || len(donations.donations) != 0 {
		t.Fatalf("expected no payment rows, got boosts=%d donations=%d", len(boosts.payments), len(donations.donations))
	}
	if boosts.applyCalls != 0 || boosts.listings["L1"].IsBoosted {
		t.Fatalf("failed payment must not touch the listing")
	}
}

func TestProcessFailureDoesNotDowngradeSuccessfulPayment(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	svc := newTestService(boosts, newDonationStoreStub(), nil, time.Now())

	if _, err := svc.Process(context.Background(), successNotification("tx-1", "boost:L1")); err != nil {
		t.Fatalf("process success: %v", err)
	}

	n := successNotification("tx-1", "boost:L1")
	n.RawStatus = "FAILED"
	n.Status = enums.PaymentStatusFailed
	res, err := svc.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("process late failure: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected failure to leave successful payment untouched")
	}
	if boosts.payments["tx-1"].Status != enums.PaymentStatusSuccessful {
		t.Fatalf("payment was downgraded")
	}
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	boosts.failures = 2
	boosts.failErr = errors.New("connection reset")
	svc := newTestService(boosts, newDonationStoreStub(), nil, time.Now())

	res, err := svc.Process(context.Background(), successNotification("tx-1", "boost:L1"))
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if res.Outcome != OutcomeCredited {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if boosts.applyCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", boosts.applyCalls)
	}
}

func TestProcessGivesUpAfterRetryBudget(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	boosts.failures = 10
	boosts.failErr = errors.New("connection reset")
	deliveries := newDeliveryStoreStub()
	svc := newTestService(boosts, newDonationStoreStub(), deliveries, time.Now())

	_, err := svc.Process(context.Background(), successNotification("tx-1", "boost:L1"))
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if errors.Is(err, ErrListingNotFound) {
		t.Fatalf("transient failure must not map to not found")
	}
	if boosts.applyCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", boosts.applyCalls)
	}
	if len(deliveries.marks) != 0 {
		t.Fatalf("failed delivery must not be marked processed")
	}
}

func TestProcessMissingListingIsPermanent(t *testing.T) {
	boosts := newBoostStoreStub()
	svc := newTestService(boosts, newDonationStoreStub(), nil, time.Now())

	_, err := svc.Process(context.Background(), successNotification("tx-1", "boost:missing:3"))
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if boosts.applyCalls != 1 {
		t.Fatalf("missing listing must not be retried, got %d calls", boosts.applyCalls)
	}
	if len(boosts.payments) != 0 {
		t.Fatalf("expected no payment row")
	}
}

func TestProcessSkipsAlreadyProcessedDelivery(t *testing.T) {
	boosts := newBoostStoreStub("L1")
	deliveries := newDeliveryStoreStub()
	svc := newTestService(boosts, newDonationStoreStub(), deliveries, time.Now())

	n := successNotification("tx-1", "boost:L1")
	if _, err := svc.Process(context.Background(), n); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if ttl := deliveries.marks["campay|tx-1|successful"]; ttl != 24*time.Hour {
		t.Fatalf("expected delivery mark with default ttl, got %s", ttl)
	}

	res, err := svc.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", res.Outcome)
	}
	if boosts.applyCalls != 1 {
		t.Fatalf("expected single apply, got %d", boosts.applyCalls)
	}
}

func TestProcessRequiresReferenceForFinalStatus(t *testing.T) {
	svc := newTestService(newBoostStoreStub("L1"), newDonationStoreStub(), nil, time.Now())

	_, err := svc.Process(context.Background(), successNotification("  ", "boost:L1"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProcessWithoutStoreReportsUnavailable(t *testing.T) {
	svc := NewService(Dependencies{})

	_, err := svc.Process(context.Background(), successNotification("tx-1", "donation:anonymous"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
