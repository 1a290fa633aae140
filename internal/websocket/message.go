package websocket

import (
	"encoding/json"
	"strings"
	"time"
)

type MessageType string

const (
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
	TypeAck         MessageType = "ack"
	TypeError       MessageType = "error"

	TypeAgendaState        MessageType = "agenda_state"
	TypeCurriculumState    MessageType = "curriculum_state"
	TypeMutationApplied    MessageType = "mutation_applied"
	TypeMutationCommitted  MessageType = "mutation_committed"
	TypeMutationRolledBack MessageType = "mutation_rolled_back"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SubscribePayload struct {
	Topic string `json:"topic"`
}

type AckPayload struct {
	Topic   string `json:"topic,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AgendaStatePayload is pushed to project:<id> subscribers after every
// agenda outcome and on subscribe.
type AgendaStatePayload struct {
	ProjectID string      `json:"project_id"`
	Events    interface{} `json:"events"`
	Conflicts []string    `json:"conflicts"`
}

// CurriculumStatePayload carries one ordered list (course modules or module
// activities).
type CurriculumStatePayload struct {
	Scope string      `json:"scope"`
	Items interface{} `json:"items"`
}

// MutationPayload describes one phase transition of an optimistic mutation.
type MutationPayload struct {
	Coordinator string `json:"coordinator"`
	Target      string `json:"target"`
	Op          string `json:"op"`
	Error       string `json:"error,omitempty"`
}

const (
	topicProject = "project"
	topicCourse  = "course"
	topicModule  = "module"
)

func ProjectTopic(projectID string) string { return topicProject + ":" + projectID }
func CourseTopic(courseID string) string   { return topicCourse + ":" + courseID }
func ModuleTopic(moduleID string) string   { return topicModule + ":" + moduleID }

// ParseTopic splits "kind:id". ok is false for unknown kinds or an empty id.
func ParseTopic(topic string) (kind, id string, ok bool) {
	kind, id, found := strings.Cut(topic, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch kind {
	case topicProject, topicCourse, topicModule:
		return kind, id, true
	}
	return "", "", false
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
