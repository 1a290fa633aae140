package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks connected clients and the topics they follow. Register,
// Unregister and inbound messages are serialized through Run; publishing is
// safe from any goroutine.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	topicIndex     map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	done           chan struct{}
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	messageHandler MessageHandler
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(maxConnPerUser int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		topicIndex:     make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxConnPerUser: maxConnPerUser,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// SetMaxMessageSize bounds inbound frames; zero leaves them unbounded.
func (m *Manager) SetMaxMessageSize(n int64) {
	m.maxMessageSize = n
}

// Run serves registrations and inbound messages until ctx is done, then
// closes every client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)

		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		log.Printf("[ws] max connections reached for user %s", client.UserID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	log.Printf("[ws] client registered: %s (user: %s)", client.ID, client.UserID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	m.removeLocked(client)
}

func (m *Manager) removeLocked(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}

	delete(m.clients, client.ID)
	delete(m.userIndex[client.UserID], client.ID)
	if len(m.userIndex[client.UserID]) == 0 {
		delete(m.userIndex, client.UserID)
	}
	for topic := range client.topics {
		m.dropSubscriberLocked(topic, client.ID)
	}

	close(client.Send)
	log.Printf("[ws] client unregistered: %s", client.ID)
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for _, c := range m.clients {
		m.removeLocked(c)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("[ws] error unmarshaling message: %v", err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			log.Printf("[ws] error handling %s message: %v", msg.Type, err)
		}
	}
}

// Subscribe adds client to topic. It reports false for unknown clients.
func (m *Manager) Subscribe(client *Client, topic string) bool {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; !ok {
		return false
	}
	if m.topicIndex[topic] == nil {
		m.topicIndex[topic] = make(map[string]bool)
	}
	m.topicIndex[topic][client.ID] = true
	client.topics[topic] = true
	return true
}

func (m *Manager) Unsubscribe(client *Client, topic string) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	delete(client.topics, topic)
	m.dropSubscriberLocked(topic, client.ID)
}

func (m *Manager) dropSubscriberLocked(topic, clientID string) {
	subs := m.topicIndex[topic]
	if subs == nil {
		return
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(m.topicIndex, topic)
	}
}

// BroadcastToTopic queues message for every subscriber of topic. Clients
// whose send buffer is full are disconnected.
func (m *Manager) BroadcastToTopic(topic string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	var slow []*Client
	for clientID := range m.topicIndex[topic] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	if len(slow) > 0 {
		m.clientsMutex.Lock()
		for _, c := range slow {
			log.Printf("[ws] client %s send buffer full, closing connection", c.ID)
			m.removeLocked(c)
		}
		m.clientsMutex.Unlock()
	}

	return nil
}

// Publish builds a message and broadcasts it, logging instead of failing.
func (m *Manager) Publish(topic string, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		log.Printf("[ws] failed to build %s message: %v", msgType, err)
		return
	}
	if err := m.BroadcastToTopic(topic, msg); err != nil {
		log.Printf("[ws] failed to broadcast %s on %s: %v", msgType, topic, err)
	}
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		log.Printf("[ws] client %s send buffer full", clientID)
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.userIndex[userID]; exists {
		return len(clients)
	}
	return 0
}

func (m *Manager) Subscribers(topic string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.topicIndex[topic])
}
