package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans out raw event payloads to subscribers, keyed by run ID. It
// replays nothing: a subscriber sees only events broadcast after it joined.
// All state is owned by the run goroutine.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with run identifier.
type message struct {
	runID   string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	runID  string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.runID]; !ok {
				h.clients[sub.runID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.runID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.runID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.runID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.runID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.runID)
				}
			}
		}
	}
}

// Register adds a client to a run's stream.
func (h *Hub) Register(runID string, client Subscriber) {
	h.register <- subscription{runID: runID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(runID string, client Subscriber) {
	h.unreg <- subscription{runID: runID, client: client}
}

// Broadcast sends payload to all clients following a run.
func (h *Hub) Broadcast(runID string, payload []byte) {
	h.broadcast <- message{runID: runID, payload: payload}
}
