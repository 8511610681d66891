package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe        MessageType = "subscribe"
	MessageTypeUnsubscribe      MessageType = "unsubscribe"
	MessageTypeMessageDelivered MessageType = "message_delivered"
	MessageTypeError            MessageType = "error"
)

// Delivery roles carried in DeliveryPayload
const (
	RoleSender    = "sender"
	RoleRecipient = "recipient"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    MessageType `json:"type"`
	UserID  uuid.UUID   `json:"user_id,omitempty"`
	Message interface{} `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// DeliveryPayload announces that a time capsule was delivered
type DeliveryPayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	Role           string    `json:"role"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderEmail    string    `json:"sender_email,omitempty"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	DeliveredAt    string    `json:"delivered_at"`
}

// Hub maintains the set of active clients and fans delivery events out to
// the clients subscribed to a user.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// User subscriptions: userID -> set of clients
	subscriptions map[uuid.UUID]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Subscribe to user
	subscribe chan *subscriptionRequest

	// Unsubscribe from user
	unsubscribeUser chan *subscriptionRequest

	// Broadcast to user subscribers
	broadcast chan *broadcastMessage

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger
}

type subscriptionRequest struct {
	client *Client
	userID uuid.UUID
}

type broadcastMessage struct {
	userID  uuid.UUID
	message []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		subscriptions:   make(map[uuid.UUID]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		subscribe:       make(chan *subscriptionRequest),
		unsubscribeUser: make(chan *subscriptionRequest),
		broadcast:       make(chan *broadcastMessage, 256),
		done:            make(chan struct{}),
		logger:          logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client registered")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for userID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, userID)
					}
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unregistered")
			}

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.userID] == nil {
				h.subscriptions[req.userID] = make(map[*Client]bool)
			}
			h.subscriptions[req.userID][req.client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client subscribed to user", slog.String("user_id", req.userID.String()))
			}

		case req := <-h.unsubscribeUser:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.userID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.userID)
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unsubscribed from user", slog.String("user_id", req.userID.String()))
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.subscriptions[msg.userID] {
				select {
				case client.send <- msg.message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe subscribes a client to a user's delivery events
func (h *Hub) Subscribe(client *Client, userID uuid.UUID) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, userID: userID}:
	case <-h.done:
	}
}

// Unsubscribe unsubscribes a client from a user's delivery events
func (h *Hub) Unsubscribe(client *Client, userID uuid.UUID) {
	select {
	case h.unsubscribeUser <- &subscriptionRequest{client: client, userID: userID}:
	case <-h.done:
	}
}

// SubscriberCount returns the number of clients subscribed to userID
func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[userID])
}

// PublishDelivery notifies the sender and, when the recipient has an account,
// the recipient that msg was delivered. It never blocks the caller: events are
// dropped when the broadcast queue is full.
func (h *Hub) PublishDelivery(msg *models.Message, recipient *models.Account) {
	deliveredAt := time.Now().UTC()
	if msg.DeliveredAt != nil {
		deliveredAt = msg.DeliveredAt.UTC()
	}

	payload := DeliveryPayload{
		MessageID:      msg.ID,
		SenderName:     msg.Sender.Name,
		SenderEmail:    msg.Sender.Email,
		RecipientEmail: msg.RecipientEmail,
		Subject:        msg.Subject,
		DeliveredAt:    deliveredAt.Format(time.RFC3339),
	}

	senderPayload := payload
	senderPayload.Role = RoleSender
	h.BroadcastDelivery(msg.SenderID, &senderPayload)

	if recipient != nil && recipient.ID != msg.SenderID {
		recipientPayload := payload
		recipientPayload.Role = RoleRecipient
		h.BroadcastDelivery(recipient.ID, &recipientPayload)
	}
}

// BroadcastDelivery queues a delivery event for userID's subscribers
func (h *Hub) BroadcastDelivery(userID uuid.UUID, payload *DeliveryPayload) {
	msg := WSMessage{
		Type:    MessageTypeMessageDelivered,
		UserID:  userID,
		Message: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{userID: userID, message: data}:
	default:
		if h.logger != nil {
			h.logger.Warn("websocket broadcast queue full, dropping event",
				slog.String("user_id", userID.String()),
				slog.String("message_id", payload.MessageID.String()))
		}
	}
}
