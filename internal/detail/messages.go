package detail

import (
	"github.com/kingrea/unirun/internal/affordance"
	"github.com/kingrea/unirun/internal/api"
	"github.com/kingrea/unirun/internal/order"
)

// Every message carries the id of the session that produced it; a session
// drops messages addressed to another instance.

type pollTickMsg struct {
	session string
}

type fetchedMsg struct {
	session string
	seq     uint64
	order   order.Order
	err     error
}

type commandDoneMsg struct {
	session  string
	action   affordance.Action
	revision uint64
	result   api.Result
	err      error
}

type messageSentMsg struct {
	session string
	localID string
	err     error
}

type ratedMsg struct {
	session string
	result  api.Result
	err     error
}

type noticeExpiredMsg struct {
	session string
	id      uint64
}
