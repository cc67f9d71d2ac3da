package ankylogate

const (
	ActionAllowed = "ALLOWED"
	ActionDenied  = "DENIED"
)

// RateLimitEvent describes one admission decision.
type RateLimitEvent struct {
	Identity     string `json:"identity"`
	Policy       Policy `json:"policy"`
	Endpoint     string `json:"endpoint,omitempty"`
	Action       string `json:"action"` // "ALLOWED", "DENIED"
	Timestamp    int64  `json:"timestamp"`
	RetryAfterMs int64  `json:"retryafterms,omitempty"`
}

// EventPublisher observes decisions. Publishing must never change a decision.
type EventPublisher interface {
	Publish(event RateLimitEvent)
}

// Publishers fans an event out to every publisher in order.
type Publishers []EventPublisher

func (p Publishers) Publish(event RateLimitEvent) {
	for _, publisher := range p {
		if publisher != nil {
			publisher.Publish(event)
		}
	}
}

// PublisherFunc adapts a plain function to EventPublisher
type PublisherFunc func(event RateLimitEvent)

func (f PublisherFunc) Publish(event RateLimitEvent) {
	f(event)
}
