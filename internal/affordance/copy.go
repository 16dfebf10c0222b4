package affordance

import "github.com/kingrea/unirun/internal/order"

type actionText struct {
	label   string
	key     string
	confirm Confirmation
	success string
}

var actionCopy = map[Action]actionText{
	Contact: {
		label: "Contact",
		key:   "c",
	},
	AcceptOrder: {
		label:   "Accept order",
		key:     "a",
		confirm: Confirmation{Title: "Accept this order?", Body: "Please complete the delivery promptly once accepted."},
		success: "Order accepted!",
	},
	CancelOrder: {
		label:   "Cancel order",
		key:     "x",
		confirm: Confirmation{Title: "Cancel this order?", Body: "A cancelled order cannot be restored. Continue?"},
		success: "Order cancelled",
	},
	ConfirmDelivery: {
		label:   "Confirm delivery",
		key:     "d",
		confirm: Confirmation{Title: "Confirm delivery?", Body: "Confirm the item has been handed to the requester?"},
		success: "The requester has been asked to confirm receipt",
	},
	ConfirmReceipt: {
		label:   "Confirm receipt",
		key:     "r",
		confirm: Confirmation{Title: "Confirm receipt?", Body: "Confirm you received the item and complete the order?"},
		success: "Order completed",
	},
}

// SuccessNotice is the fallback notice shown when the server sends no message.
func SuccessNotice(action Action) string {
	if text, ok := actionCopy[action]; ok && text.success != "" {
		return text.success
	}
	return "Done"
}

var badges = map[order.Status]StatusBadge{
	order.Open:            {Label: "Waiting for runner", Foreground: "#718096", Background: "#EDF2F7"},
	order.InProgress:      {Label: "Delivering", Foreground: "#3182CE", Background: "#EBF8FF"},
	order.AwaitingReceipt: {Label: "Awaiting receipt", Foreground: "#3182CE", Background: "#EBF8FF"},
	order.Completed:       {Label: "Completed", Foreground: "#48BB78", Background: "#F0FFF4"},
	order.Cancelled:       {Label: "Cancelled", Foreground: "#718096", Background: "#EDF2F7"},
}

// BadgeFor is the fixed status lookup. It ignores the viewer's role.
func BadgeFor(status order.Status) StatusBadge {
	if badge, ok := badges[status]; ok {
		return badge
	}
	return StatusBadge{Label: "Unknown", Foreground: "#718096", Background: "#EDF2F7"}
}

// LocationFor names the canonical pickup place of a category.
func LocationFor(category order.Category) string {
	switch category {
	case order.CategoryFood:
		return "canteen"
	case order.CategoryPackage:
		return "parcel station"
	case order.CategoryPrint:
		return "printing building"
	default:
		return "pickup point"
	}
}
