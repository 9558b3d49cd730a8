package cache

import "github.com/mbeoliero/vesper/pkg/constant"

// StatusAggregate is the display summary of a message's delivery state
// across its recipients.
type StatusAggregate struct {
	SeenByAll      bool
	DeliveredToAll bool
	Counts         map[int32]int
}

// AggregateStatus folds per-recipient statuses into the group display rule:
// seen-by-all needs every recipient at seen, delivered-to-all needs every
// recipient at delivered or above, otherwise show per-state counts. A
// recipient with no status row counts as sent.
func AggregateStatus(msg MessageEntry, recipientIds []string) StatusAggregate {
	agg := StatusAggregate{
		SeenByAll:      len(recipientIds) > 0,
		DeliveredToAll: len(recipientIds) > 0,
		Counts:         make(map[int32]int, 3),
	}

	for _, recipientId := range recipientIds {
		status := msg.StatusFor(recipientId)
		if status < constant.StatusSent {
			status = constant.StatusSent
		}
		agg.Counts[status]++
		if status != constant.StatusSeen {
			agg.SeenByAll = false
		}
		if status < constant.StatusDelivered {
			agg.DeliveredToAll = false
		}
	}
	return agg
}

// DisplayStatus reduces a direct message's state to one rank for the
// sender's bubble: the single recipient's cached status, or sent when the
// message is confirmed but unacknowledged.
func DisplayStatus(msg MessageEntry, recipientId string) int32 {
	if status := msg.StatusFor(recipientId); status > 0 {
		return status
	}
	return constant.StatusSent
}
