package websocket

import (
	"course-agenda-server/internal/optimistic"
)

// MutationBroadcaster forwards coordinator transitions to the topic that
// owns the mutated target. topicFor returns "" for targets nobody follows.
type MutationBroadcaster struct {
	manager  *Manager
	topicFor func(target string) string
}

func NewMutationBroadcaster(manager *Manager, topicFor func(target string) string) *MutationBroadcaster {
	return &MutationBroadcaster{manager: manager, topicFor: topicFor}
}

func (b *MutationBroadcaster) Observe(e optimistic.Event) {
	if b == nil || b.manager == nil || e.Rejected {
		return
	}

	var msgType MessageType
	switch e.Phase {
	case optimistic.PhaseApplying:
		msgType = TypeMutationApplied
	case optimistic.PhaseCommitted:
		msgType = TypeMutationCommitted
	case optimistic.PhaseRollingBack:
		msgType = TypeMutationRolledBack
	default:
		return
	}

	topic := b.topicFor(e.Target)
	if topic == "" {
		return
	}

	payload := MutationPayload{Coordinator: e.Coordinator, Target: e.Target, Op: e.Op}
	if e.Err != nil {
		payload.Error = e.Err.Error()
	}
	b.manager.Publish(topic, msgType, payload)
}
