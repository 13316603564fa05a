package core

// Client is a chat participant as seen by the core layer.
// Name must not change after the client is registered with a hub.
type Client struct {
	ID       string
	Name     string
	Commands chan *Command
	Events   chan *Event
	Rooms    map[string]struct{}

	// done is closed by the hub on unregistration and stops the pump
	// goroutine. Commands stays open because the transport's read loop
	// may still be sending on it.
	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:       id,
		Name:     name,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 8),
		Rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}
