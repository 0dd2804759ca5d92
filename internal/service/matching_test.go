package service

import (
	"sync"
	"testing"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimCreatesDeliveryAndHold(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	deliverer := f.approvedDeliverer(t)
	a := f.activeAnnouncement(t, client.ID, units(20))

	res, err := f.matching.Claim(f.ctx, a.ID, deliverer, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryAccepted, res.Delivery.Status)
	assert.Empty(t, res.Delivery.ValidationCode, "the deliverer never sees the handoff code")
	assert.Equal(t, client.ID, res.Delivery.ClientID)
	assert.Equal(t, domain.AnnouncementInProgress, f.announcement(t, a.ID).Status)

	payment := f.payment(t, res.Payment.ID)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.Equal(t, units(20), payment.AmountMicros)
	assert.Equal(t, deliverer, payment.PayeeID)
	assert.Equal(t, client.ID, payment.PayerID)

	logs, err := f.handoff.DeliveryLogs(f.ctx, Requester{ID: deliverer}, res.Delivery.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.DeliveryAccepted, logs[0].Status)

	// Hold does not touch any wallet.
	assert.Zero(t, f.wallet(t, deliverer).BalanceMicros)
	assert.Zero(t, f.wallet(t, client.ID).BalanceMicros)
}

func TestClaimUsesProposedPrice(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	deliverer := f.approvedDeliverer(t)
	a := f.activeAnnouncement(t, client.ID, units(20))

	proposed := units(18)
	res, err := f.matching.Claim(f.ctx, a.ID, deliverer, &proposed)
	require.NoError(t, err)
	assert.Equal(t, proposed, res.Delivery.ProposedPriceMicros)
	assert.Equal(t, proposed, res.Payment.AmountMicros)

	zero := int64(0)
	_, err = f.matching.Claim(f.ctx, a.ID, deliverer, &zero)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	a := f.activeAnnouncement(t, client.ID, units(20))

	const n = 12
	deliverers := make([]uuid.UUID, n)
	for i := range deliverers {
		deliverers[i] = f.approvedDeliverer(t)
	}

	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		errs      = make([]error, n)
		winnerIdx = -1
		mu        sync.Mutex
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, err := f.matching.Claim(f.ctx, a.ID, deliverers[idx], nil)
			errs[idx] = err
			if err == nil {
				mu.Lock()
				winnerIdx = idx
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	require.Equal(t, 1, successes)
	require.GreaterOrEqual(t, winnerIdx, 0)

	active, err := f.store.Queries().GetActiveDeliveryByAnnouncement(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, deliverers[winnerIdx], active.DelivererID)
}

func TestClaimTwoDeliverersRace(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	a := f.activeAnnouncement(t, client.ID, units(20))
	d1, d2 := f.approvedDeliverer(t), f.approvedDeliverer(t)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, d := range []uuid.UUID{d1, d2} {
		wg.Add(1)
		go func(idx int, deliverer uuid.UUID) {
			defer wg.Done()
			_, results[idx] = f.matching.Claim(f.ctx, a.ID, deliverer, nil)
		}(i, d)
	}
	wg.Wait()

	if results[0] == nil {
		assert.ErrorIs(t, results[1], domain.ErrConflict)
	} else {
		assert.NoError(t, results[1])
		assert.ErrorIs(t, results[0], domain.ErrConflict)
	}
}

func TestClaimConflictMessages(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	a := f.activeAnnouncement(t, client.ID, units(20))
	winner, loser := f.approvedDeliverer(t), f.approvedDeliverer(t)

	_, err := f.matching.Claim(f.ctx, a.ID, winner, nil)
	require.NoError(t, err)

	_, err = f.matching.Claim(f.ctx, a.ID, winner, nil)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "already claimed by you")

	_, err = f.matching.Claim(f.ctx, a.ID, loser, nil)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "this request was just taken")
}

func TestClaimRejectsUnavailableAnnouncement(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	deliverer := f.approvedDeliverer(t)

	draft, err := f.announcements.Create(f.ctx, client.ID, CreateAnnouncementInput{
		Title: "Draft", PickupAddress: "A", DeliveryAddress: "B", PriceMicros: units(5),
	})
	require.NoError(t, err)

	_, err = f.matching.Claim(f.ctx, draft.ID, deliverer, nil)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "no longer available")

	_, err = f.matching.Claim(f.ctx, uuid.New(), deliverer, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimEligibilityGate(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	a := f.activeAnnouncement(t, client.ID, units(20))

	pending := f.register(t, domain.RoleDeliverer)
	_, err := f.matching.Claim(f.ctx, a.ID, pending.ID, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Partially verified is still not eligible.
	doc := f.submit(t, pending.ID, domain.DocIDCard)
	_, err = f.documents.ReviewDocument(f.ctx, f.admin, doc.ID, domain.DecisionApprove, "")
	require.NoError(t, err)
	_, err = f.matching.Claim(f.ctx, a.ID, pending.ID, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// The gate is checked before the announcement, even for missing ones.
	_, err = f.matching.Claim(f.ctx, uuid.New(), pending.ID, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.matching.Claim(f.ctx, a.ID, client.ID, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	rejected := f.approvedDeliverer(t)
	_, err = f.documents.RejectProfile(f.ctx, f.admin, rejected, "expired licence")
	require.NoError(t, err)
	_, err = f.matching.Claim(f.ctx, a.ID, rejected, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, domain.AnnouncementActive, f.announcement(t, a.ID).Status)
}

func TestClaimAfterCancellationIsAllowed(t *testing.T) {
	f := newFixture(t)
	client := f.register(t, domain.RoleClient)
	a := f.activeAnnouncement(t, client.ID, units(20))
	first, second := f.approvedDeliverer(t), f.approvedDeliverer(t)

	res, err := f.matching.Claim(f.ctx, a.ID, first, nil)
	require.NoError(t, err)
	_, err = f.handoff.Cancel(f.ctx, Requester{ID: first}, res.Delivery.ID, "vehicle broke down")
	require.NoError(t, err)
	assert.Equal(t, domain.AnnouncementActive, f.announcement(t, a.ID).Status)

	again, err := f.matching.Claim(f.ctx, a.ID, second, nil)
	require.NoError(t, err)
	assert.NotEqual(t, res.Delivery.ID, again.Delivery.ID)
	assert.Equal(t, second, again.Delivery.DelivererID)
}
