package detail

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/unirun/internal/affordance"
	"github.com/kingrea/unirun/internal/api"
	"github.com/kingrea/unirun/internal/order"
)

func TestStartFetchesImmediatelyAndArmsTicker(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")

	h.run(h.session.Init())

	assert.Equal(t, Active, h.session.Poller().State())
	assert.Equal(t, 1, backend.fetches)
	assert.Equal(t, 1, h.pendingTicks())
	aff, ok := h.session.Affordances()
	require.True(t, ok)
	assert.True(t, aff.Has(affordance.AcceptOrder))
}

func TestStartIsOneShot(t *testing.T) {
	h := newHarness(t, &fakeBackend{order: openOrder("1001", "1")}, "1001", "2")
	h.run(h.session.Init())
	assert.Nil(t, h.session.Poller().Start())
}

func TestTickWhileFetchInFlightIsSkipped(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")

	// Hold the first fetch result back to simulate a slow response.
	held := collect(h.session.Init())
	require.Len(t, held, 1)
	require.True(t, h.session.Poller().InFlight())

	for i := 0; i < 3; i++ {
		msgs := collect(h.fireTick())
		assert.Empty(t, msgs, "no fetch may start while one is in flight")
		assert.Equal(t, 1, h.pendingTicks(), "ticker keeps re-arming")
	}
	assert.Equal(t, 1, backend.fetches)
	assert.Equal(t, uint64(3), h.session.Poller().Skipped())

	h.run(h.session.Update(held[0]))
	assert.False(t, h.session.Poller().InFlight())

	h.run(h.fireTick())
	assert.Equal(t, 2, backend.fetches)
}

func TestRefreshQueuesBehindInFlightFetch(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")

	held := collect(h.session.Init())
	assert.Nil(t, h.session.Poller().Refresh(), "refresh must not overlap")
	assert.Equal(t, 1, backend.fetches)

	follow := h.session.Update(held[0])
	require.NotNil(t, follow, "queued refresh issues once the pending fetch resolves")
	h.run(follow)
	assert.Equal(t, 2, backend.fetches)
}

func TestFailedFetchLeavesSnapshotUntouched(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")
	h.run(h.session.Init())
	rev := h.session.Store().Revision()

	backend.fetchErr = errors.New("connection reset")
	h.run(h.fireTick())

	got, ok := h.session.Snapshot()
	require.True(t, ok)
	assert.Equal(t, order.Open, got.Status)
	assert.Equal(t, rev, h.session.Store().Revision())
	_, shown := h.session.Notice()
	assert.False(t, shown, "transient failures are never surfaced")
	assert.Equal(t, Active, h.session.Poller().State())

	backend.fetchErr = nil
	next := openOrder("1001", "1")
	next.Status = order.InProgress
	next.RunnerID = "3"
	backend.set(next)
	h.run(h.fireTick())
	got, _ = h.session.Snapshot()
	assert.Equal(t, order.InProgress, got.Status, "next tick self-heals")
}

func TestForbiddenFetchNoticeShownOnce(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")
	h.run(h.session.Init())

	backend.fetchErr = &api.Error{Status: http.StatusForbidden, Path: "/orders/1001"}
	h.run(h.fireTick())
	n, shown := h.session.Notice()
	require.True(t, shown)
	assert.Equal(t, NoticeError, n.Kind)
	assert.Equal(t, "This order is no longer visible to you", n.Text)
	require.Len(t, h.noticeTimers(), 1)

	h.run(h.fireTick())
	assert.Len(t, h.noticeTimers(), 1, "403 notice is shown once")
	got, ok := h.session.Snapshot()
	require.True(t, ok)
	assert.Equal(t, order.Open, got.Status)
}

func TestStopDiscardsLateResults(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")
	h.run(h.session.Init())
	rev := h.session.Store().Revision()

	next := openOrder("1001", "1")
	next.Status = order.Cancelled
	backend.set(next)
	held := collect(h.fireTick())
	require.Len(t, held, 1)

	h.session.Close()
	h.session.Close()

	assert.Nil(t, h.fireTick(), "scheduled tick after teardown does nothing")
	assert.Nil(t, h.session.Update(held[0]))
	got, _ := h.session.Snapshot()
	assert.Equal(t, order.Open, got.Status)
	assert.Equal(t, rev, h.session.Store().Revision())
	assert.Equal(t, Stopped, h.session.Poller().State())
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, "1001", "2")
	h.session.Poller().Stop()
	h.session.Poller().Stop()
	assert.Equal(t, Stopped, h.session.Poller().State())
	assert.Nil(t, h.session.Poller().Start())
	assert.Nil(t, h.session.Poller().Refresh())
}

func TestMessagesForOtherSessionsAreIgnored(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")
	h.run(h.session.Init())

	other := openOrder("1001", "1")
	other.Status = order.Cancelled
	h.session.Update(fetchedMsg{session: "someone-else", seq: 99, order: other})
	got, _ := h.session.Snapshot()
	assert.Equal(t, order.Open, got.Status)
}

func TestStaleSequenceIsDiscarded(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "2")
	h.run(h.session.Init())

	stale := openOrder("1001", "1")
	stale.Description = "old"
	h.session.Update(fetchedMsg{session: h.session.ID(), seq: 1, order: stale})
	got, _ := h.session.Snapshot()
	assert.NotEqual(t, "old", got.Description)
}

func TestCompletionFiresPromptOnceAndStops(t *testing.T) {
	inProgress := openOrder("1007", "1")
	inProgress.Status = order.AwaitingReceipt
	inProgress.RunnerID = "2"
	backend := &fakeBackend{order: inProgress}
	h := newHarness(t, backend, "1007", "1")
	h.run(h.session.Init())
	assert.False(t, h.session.Dispatcher().Rating().Open)

	done := inProgress
	done.Status = order.Completed
	backend.set(done)
	h.run(h.fireTick())

	assert.True(t, h.session.Dispatcher().Rating().Open)
	assert.Equal(t, Stopped, h.session.Poller().State())
	assert.Nil(t, h.fireTick(), "the tick armed before completion is inert")
	assert.Zero(t, h.pendingTicks(), "no further ticks after the terminal transition")

	h.session.Dispatcher().SkipRating()
	// A duplicate payload delivered late must not fire the prompt again.
	h.session.Update(fetchedMsg{session: h.session.ID(), seq: 9, order: done})
	assert.False(t, h.session.Dispatcher().Rating().Open)

	aff, _ := h.session.Affordances()
	assert.False(t, aff.FooterVisible)
	assert.Empty(t, aff.PrimaryActions)
}

func TestAlreadyTerminalOrderStopsWithoutPrompt(t *testing.T) {
	done := openOrder("1005", "1")
	done.Status = order.Completed
	done.RunnerID = "2"
	h := newHarness(t, &fakeBackend{order: done}, "1005", "1")
	h.run(h.session.Init())

	assert.Equal(t, Stopped, h.session.Poller().State())
	assert.False(t, h.session.Dispatcher().Rating().Open)
	assert.Nil(t, h.fireTick())
}

func TestCancellationStopsWithoutPrompt(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "1")
	h.run(h.session.Init())

	cancelled := openOrder("1001", "1")
	cancelled.Status = order.Cancelled
	backend.set(cancelled)
	h.run(h.fireTick())

	assert.Equal(t, Stopped, h.session.Poller().State())
	assert.False(t, h.session.Dispatcher().Rating().Open)
}

func TestIllegalTransitionIsApplied(t *testing.T) {
	backend := &fakeBackend{order: openOrder("1001", "1")}
	h := newHarness(t, backend, "1001", "1")
	h.run(h.session.Init())

	skipped := openOrder("1001", "1")
	skipped.Status = order.AwaitingReceipt
	skipped.RunnerID = "2"
	backend.set(skipped)
	h.run(h.fireTick())

	got, _ := h.session.Snapshot()
	assert.Equal(t, order.AwaitingReceipt, got.Status, "server is the authority")
}

func TestUnchangedStatusStillPicksUpMessages(t *testing.T) {
	o := openOrder("1007", "1")
	o.Status = order.InProgress
	o.RunnerID = "2"
	backend := &fakeBackend{order: o}
	h := newHarness(t, backend, "1007", "1")
	h.run(h.session.Init())
	require.Zero(t, h.session.Thread().Len())

	o.Messages = []order.Message{{SenderID: "2", Content: "at the canteen"}}
	backend.set(o)
	h.run(h.fireTick())

	assert.Equal(t, 1, h.session.Thread().Len())
	assert.Equal(t, uint64(2), h.session.Store().Revision())
	assert.False(t, h.session.Dispatcher().Rating().Open)
}
