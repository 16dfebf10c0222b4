package affordance

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/unirun/internal/order"
)

const (
	requester = order.UserID("1")
	runner    = order.UserID("2")
	stranger  = order.UserID("3")
)

func orderWith(status order.Status) order.Order {
	o := order.Order{ID: "1007", RequesterID: requester, Status: status, Category: order.CategoryFood}
	if status != order.Open && status != order.Cancelled {
		o.RunnerID = runner
	}
	return o
}

func viewerFor(role Role) order.Viewer {
	switch role {
	case Owner:
		return order.Viewer{UserID: requester}
	case Runner:
		return order.Viewer{UserID: runner}
	default:
		return order.Viewer{UserID: stranger}
	}
}

func actionsOf(a Affordances) []Action {
	out := []Action{}
	for _, d := range a.PrimaryActions {
		out = append(out, d.Action)
	}
	return out
}

func TestDecisionTable(t *testing.T) {
	cases := []struct {
		status  order.Status
		role    Role
		actions []Action
		footer  bool
	}{
		{order.Open, Owner, []Action{Contact, CancelOrder}, true},
		{order.Open, Runner, []Action{}, true},
		{order.Open, Bystander, []Action{AcceptOrder}, true},
		{order.InProgress, Owner, []Action{Contact, ConfirmReceipt}, true},
		{order.InProgress, Runner, []Action{Contact, ConfirmDelivery}, true},
		{order.InProgress, Bystander, []Action{Contact}, true},
		{order.AwaitingReceipt, Owner, []Action{Contact, ConfirmReceipt}, true},
		{order.AwaitingReceipt, Runner, []Action{Contact, ConfirmDelivery}, true},
		{order.AwaitingReceipt, Bystander, []Action{Contact}, true},
		{order.Completed, Owner, []Action{}, false},
		{order.Completed, Runner, []Action{}, false},
		{order.Completed, Bystander, []Action{}, false},
		{order.Cancelled, Owner, []Action{}, false},
		{order.Cancelled, Runner, []Action{}, false},
		{order.Cancelled, Bystander, []Action{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.status.String()+"/"+tc.role.String(), func(t *testing.T) {
			o := orderWith(tc.status)
			if tc.role == Runner {
				// Open and Cancelled orders normally carry no runner; the cell
				// still has to be total when the server reports one.
				o.RunnerID = runner
			}
			got := Derive(o, viewerFor(tc.role))
			assert.Equal(t, tc.actions, actionsOf(got))
			assert.Equal(t, tc.footer, got.FooterVisible)
		})
	}
}

func TestRoleOf(t *testing.T) {
	o := orderWith(order.InProgress)
	assert.Equal(t, Owner, RoleOf(o, order.Viewer{UserID: requester}))
	assert.Equal(t, Runner, RoleOf(o, order.Viewer{UserID: runner}))
	assert.Equal(t, Bystander, RoleOf(o, order.Viewer{UserID: stranger}))
	assert.Equal(t, Bystander, RoleOf(o, order.Viewer{}))

	open := orderWith(order.Open)
	assert.Equal(t, Bystander, RoleOf(open, order.Viewer{UserID: runner}))
}

func TestDeriveIsDeterministic(t *testing.T) {
	o := orderWith(order.InProgress)
	o.AcceptedAt = order.NewTime(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	viewer := viewerFor(Runner)
	first := Derive(o, viewer)
	for i := 0; i < 10; i++ {
		require.True(t, reflect.DeepEqual(first, Derive(o, viewer)))
	}
}

func TestTimelineMarks(t *testing.T) {
	tl := Derive(orderWith(order.Open), viewerFor(Owner)).Timeline
	assert.False(t, tl.TakenActive)
	assert.False(t, tl.DoneActive)

	tl = Derive(orderWith(order.AwaitingReceipt), viewerFor(Owner)).Timeline
	assert.True(t, tl.TakenActive)
	assert.False(t, tl.DoneActive)
	assert.Equal(t, "just now", tl.TakenAt)

	done := orderWith(order.Completed)
	done.FinishedAt = order.NewTime(time.Date(2024, 5, 1, 11, 0, 0, 0, time.Local))
	tl = Derive(done, viewerFor(Bystander)).Timeline
	assert.True(t, tl.TakenActive)
	assert.True(t, tl.DoneActive)
	assert.Equal(t, "2024-05-01 11:00", tl.DoneAt)

	tl = Derive(orderWith(order.Cancelled), viewerFor(Owner)).Timeline
	assert.False(t, tl.TakenActive)
	assert.False(t, tl.DoneActive)
}

func TestStatusBadgeIgnoresRole(t *testing.T) {
	for _, status := range []order.Status{order.Open, order.InProgress, order.AwaitingReceipt, order.Completed, order.Cancelled} {
		o := orderWith(status)
		owner := Derive(o, viewerFor(Owner)).Status
		bystander := Derive(o, viewerFor(Bystander)).Status
		assert.Equal(t, owner, bystander)
	}
	assert.Equal(t, "Completed", BadgeFor(order.Completed).Label)
	assert.Equal(t, "#48BB78", BadgeFor(order.Completed).Foreground)
}

func TestHints(t *testing.T) {
	assert.Equal(t, "To change the request, cancel the order first.", Derive(orderWith(order.Open), viewerFor(Owner)).Hint)
	assert.Empty(t, Derive(orderWith(order.Open), viewerFor(Bystander)).Hint)

	for category, place := range map[order.Category]string{
		order.CategoryFood:     "canteen",
		order.CategoryPackage:  "parcel station",
		order.CategoryPrint:    "printing building",
		order.Category("pets"): "pickup point",
	} {
		o := orderWith(order.InProgress)
		o.Category = category
		assert.Equal(t, "Head to the "+place+" to complete the errand.", Derive(o, viewerFor(Runner)).Hint)
		assert.Contains(t, Derive(o, viewerFor(Bystander)).Hint, place)
		assert.Empty(t, Derive(o, viewerFor(Owner)).Hint)
	}

	assert.Empty(t, Derive(orderWith(order.AwaitingReceipt), viewerFor(Runner)).Hint)
}

func TestDescriptorsCarryConfirmCopy(t *testing.T) {
	a := Derive(orderWith(order.Open), viewerFor(Bystander))
	d, ok := a.Find(AcceptOrder)
	require.True(t, ok)
	assert.True(t, d.Remote())
	assert.Equal(t, "Accept this order?", d.Confirm.Title)

	byKey, ok := a.FindKey("a")
	require.True(t, ok)
	assert.Equal(t, AcceptOrder, byKey.Action)

	owner := Derive(orderWith(order.Open), viewerFor(Owner))
	contact, ok := owner.Find(Contact)
	require.True(t, ok)
	assert.False(t, contact.Remote())
	assert.False(t, owner.Has(AcceptOrder))
}

func TestSuccessNoticeFallback(t *testing.T) {
	assert.Equal(t, "Order accepted!", SuccessNotice(AcceptOrder))
	assert.Equal(t, "Done", SuccessNotice(Contact))
}
