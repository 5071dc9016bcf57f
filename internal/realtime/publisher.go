package realtime

// Publisher forwards permission workflow events to the permissions stream.
type Publisher struct {
	hub *Hub
}

// NewPublisher wraps hub. A nil hub yields a publisher that drops events.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// Publish broadcasts event with payload to admins on StreamPermissions.
func (p *Publisher) Publish(event string, payload any) {
	if p == nil || p.hub == nil {
		return
	}
	p.hub.Broadcast(StreamPermissions, event, payload)
}
