package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampToRedemptionRoundTrip(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 5})
	ctx := context.Background()
	membership := f.enroll(t)

	state := f.stampTimes(t, membership.ID, 4)
	assert.Equal(t, constants.MembershipStatusInactive, state.Status)
	assert.Equal(t, 4, state.CycleStampCount)
	assert.Nil(t, state.VoucherCode)

	state = f.stampTimes(t, membership.ID, 1)
	require.Equal(t, constants.MembershipStatusRedeemable, state.Status)
	require.NotNil(t, state.VoucherCode)
	require.NotNil(t, state.VoucherExpiresAt)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *state.VoucherExpiresAt)
	code := *state.VoucherCode

	_, err := f.redemption.Redeem(ctx, RedeemInput{MembershipID: membership.ID, Code: "WRONGCODE2", StaffActor: f.staff})
	require.ErrorIs(t, err, ErrCodeMismatch)
	current, err := f.scans.GetMembershipState(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MembershipStatusRedeemable, current.Status)

	redeemed, err := f.redemption.Redeem(ctx, RedeemInput{MembershipID: membership.ID, Code: code, StaffActor: f.staff})
	require.NoError(t, err)
	assert.Equal(t, constants.MembershipStatusRedeemed, redeemed.Status)

	current, err = f.scans.GetMembershipState(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MembershipStatusInactive, current.Status)
	assert.Equal(t, 0, current.CycleStampCount)
	assert.Nil(t, current.VoucherCode)

	assert.Equal(t, []string{
		constants.MembershipStatusRedeemable,
		constants.MembershipStatusRedeemed,
		constants.MembershipStatusInactive,
	}, f.notifier.statuses())
}

func TestRecordStampIdempotentOnTxID(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 3})
	membership := f.enroll(t)

	first := f.stamp(t, membership.ID, "pos-0001")
	f.clock.Advance(time.Minute)
	replay := f.stamp(t, membership.ID, "pos-0001")

	assert.Equal(t, first.Status, replay.Status)
	assert.Equal(t, first.CycleStampCount, replay.CycleStampCount)
	assert.Equal(t, first.Threshold, replay.Threshold)
	assert.True(t, first.LastStampedAt.Equal(*replay.LastStampedAt))
	assert.Equal(t, int64(1), f.countStampEvents(t, membership.ID))
	assert.Equal(t, 1, f.reload(t, membership.ID).CycleStampCount)
}

func TestRecordStampReplayReturnsSnapshotAfterLaterStamps(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 2})
	membership := f.enroll(t)

	f.clock.Advance(time.Minute)
	first := f.stamp(t, membership.ID, "a")
	f.clock.Advance(time.Minute)
	second := f.stamp(t, membership.ID, "b")
	require.Equal(t, constants.MembershipStatusRedeemable, second.Status)

	replay := f.stamp(t, membership.ID, "a")
	assert.Equal(t, first.CycleStampCount, replay.CycleStampCount)
	assert.Equal(t, constants.MembershipStatusInactive, replay.Status)
	assert.Nil(t, replay.VoucherCode)
}

func TestRecordStampConcurrentMintsSingleVoucher(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 5, poolSize: 8})
	membership := f.enroll(t)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ledger.RecordStamp(context.Background(), RecordStampInput{
				MembershipID: membership.ID,
				TxID:         fmt.Sprintf("concurrent-%02d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reloaded := f.reload(t, membership.ID)
	assert.Equal(t, workers, reloaded.CycleStampCount)
	assert.Equal(t, int64(workers), f.countStampEvents(t, membership.ID))
	assert.True(t, reloaded.HasVoucher())
	assert.Equal(t, constants.MembershipStatusRedeemable, reloaded.Status)
	assert.Equal(t, 1, f.notifier.count(constants.MembershipStatusRedeemable))
	assert.Equal(t, float64(1), counterValue(t, f, "stamp_vouchers_minted_total"))
}

func TestRecordStampConcurrentSameTxIDRecordsOnce(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 5})
	membership := f.enroll(t)

	var wg sync.WaitGroup
	states := make(chan *MembershipState, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := f.ledger.RecordStamp(context.Background(), RecordStampInput{
				MembershipID: membership.ID,
				TxID:         "same-tx",
			})
			assert.NoError(t, err)
			states <- state
		}()
	}
	wg.Wait()
	close(states)
	for state := range states {
		require.NotNil(t, state)
		assert.Equal(t, 1, state.CycleStampCount)
	}
	assert.Equal(t, int64(1), f.countStampEvents(t, membership.ID))
}

func TestRecordStampWhileRedeemableKeepsSingleVoucher(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 3})
	membership := f.enroll(t)

	minted := f.stampTimes(t, membership.ID, 3)
	require.NotNil(t, minted.VoucherCode)
	more := f.stampTimes(t, membership.ID, 4)

	assert.Equal(t, constants.MembershipStatusRedeemable, more.Status)
	assert.Equal(t, 7, more.CycleStampCount)
	require.NotNil(t, more.VoucherCode)
	assert.Equal(t, *minted.VoucherCode, *more.VoucherCode)
	assert.Equal(t, 1, f.notifier.count(constants.MembershipStatusRedeemable))
}

func TestVoucherExpiresLazilyOnRead(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 1})
	ctx := context.Background()
	membership := f.enroll(t)

	minted := f.stampTimes(t, membership.ID, 1)
	require.Equal(t, constants.MembershipStatusRedeemable, minted.Status)

	f.clock.Advance(25 * time.Hour)
	state, err := f.scans.GetMembershipState(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MembershipStatusExpired, state.Status)
	assert.Nil(t, state.VoucherCode)
	// 读取不落库
	assert.Equal(t, constants.MembershipStatusRedeemable, f.reload(t, membership.ID).Status)
}

func TestStampAfterExpiryClearsVoucherAndKeepsStamps(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 3})
	membership := f.enroll(t)

	minted := f.stampTimes(t, membership.ID, 3)
	require.NotNil(t, minted.VoucherCode)
	f.clock.Advance(25 * time.Hour)

	state := f.stampTimes(t, membership.ID, 1)
	assert.Equal(t, 4, state.CycleStampCount)
	// 本轮印章仍达到门槛，清除过期兑换码后立即生成新兑换码
	assert.Equal(t, constants.MembershipStatusRedeemable, state.Status)
	require.NotNil(t, state.VoucherCode)
	assert.NotEqual(t, *minted.VoucherCode, *state.VoucherCode)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *state.VoucherExpiresAt)
}

func TestCycleCountMatchesLedgerAfterRedemption(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 2})
	ctx := context.Background()
	membership := f.enroll(t)

	minted := f.stampTimes(t, membership.ID, 2)
	_, err := f.redemption.Redeem(ctx, RedeemInput{MembershipID: membership.ID, Code: *minted.VoucherCode, StaffActor: f.staff})
	require.NoError(t, err)
	f.stampTimes(t, membership.ID, 1)

	reloaded := f.reload(t, membership.ID)
	counted, err := repository.NewStampEventRepository(f.db).CountAfter(membership.ID, reloaded.CycleStartedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(reloaded.CycleStampCount), counted)
	assert.Equal(t, 1, reloaded.CycleStampCount)
}

func TestNewCycleSnapshotsProgramThreshold(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{threshold: 2})
	ctx := context.Background()
	membership := f.enroll(t)

	minted := f.stampTimes(t, membership.ID, 2)
	require.NoError(t, f.db.Model(&models.LoyaltyProgram{}).Where("id = ?", f.program.ID).Update("reward_threshold", 4).Error)

	_, err := f.redemption.Redeem(ctx, RedeemInput{MembershipID: membership.ID, Code: *minted.VoucherCode, StaffActor: f.staff})
	require.NoError(t, err)
	state := f.stampTimes(t, membership.ID, 2)
	assert.Equal(t, 4, state.Threshold)
	assert.Equal(t, constants.MembershipStatusInactive, state.Status)
}

func TestRecordStampRejections(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{})
	ctx := context.Background()
	membership := f.enroll(t)

	_, err := f.ledger.RecordStamp(ctx, RecordStampInput{MembershipID: 9999, TxID: "x"})
	assert.ErrorIs(t, err, ErrMembershipNotFound)

	_, err = f.ledger.RecordStamp(ctx, RecordStampInput{MembershipID: membership.ID, TxID: "  "})
	assert.ErrorIs(t, err, ErrScanPayloadInvalid)

	_, err = f.ledger.RecordStamp(ctx, RecordStampInput{MembershipID: membership.ID, TxID: "bad tx id"})
	assert.ErrorIs(t, err, ErrScanPayloadInvalid)

	require.NoError(t, f.db.Model(&models.LoyaltyProgram{}).Where("id = ?", f.program.ID).Update("status", constants.ProgramStatusDisabled).Error)
	_, err = f.ledger.RecordStamp(ctx, RecordStampInput{MembershipID: membership.ID, TxID: "tx-1"})
	assert.ErrorIs(t, err, ErrProgramInactive)
	assert.Equal(t, int64(0), f.countStampEvents(t, membership.ID))
}

func TestRecordStampWritesActorAndDefaultsToSelfScan(t *testing.T) {
	f := newLedgerFixture(t, fixtureOptions{})
	membership := f.enroll(t)

	_, err := f.ledger.RecordStamp(context.Background(), RecordStampInput{MembershipID: membership.ID, TxID: "self-1"})
	require.NoError(t, err)

	events, total, err := f.ledger.ListStamps(context.Background(), membership.ID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, constants.ActorSelfScan, events[0].Actor)
	assert.Equal(t, "self-1", events[0].TxID)
}
