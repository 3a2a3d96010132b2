package events

// Event is a named message pushed to connected clients.
type Event struct {
	Type string
	Data any
}

// Broadcaster delivers events to connected clients.
// A nil Broadcaster is safe to use with Publish and PublishTo.
type Broadcaster interface {
	// Broadcast sends e to every connected client.
	Broadcast(e Event)
	// SendTo sends e to the client with connection id id, if connected.
	SendTo(id string, e Event)
}

// Publish broadcasts e when b is set.
func Publish(b Broadcaster, e Event) {
	if b != nil {
		b.Broadcast(e)
	}
}

// PublishTo sends e to id when b is set.
func PublishTo(b Broadcaster, id string, e Event) {
	if b != nil {
		b.SendTo(id, e)
	}
}
