// Package alert delivers one-shot user-facing alerts. Alerts are queued per
// session and shown by the client on top of whatever screen is active; each
// carries a single acknowledgement action.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultAction is the label of the acknowledgement button.
const DefaultAction = "OK"

// Alert is a modal message.
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Alerter presents alerts.
type Alerter interface {
	Show(title, message string)
}

// Queue is an Alerter that buffers alerts until the client drains them.
type Queue struct {
	mu      sync.Mutex
	pending []Alert
	log     zerolog.Logger
}

// NewQueue creates an empty Queue.
func NewQueue(log zerolog.Logger) *Queue {
	return &Queue{log: log}
}

func (q *Queue) Show(title, message string) {
	a := Alert{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Action:    DefaultAction,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.pending = append(q.pending, a)
	q.mu.Unlock()

	q.log.Warn().Str("alert_id", a.ID).Str("title", title).Msg(message)
}

// Drain returns every pending alert and clears the queue.
func (q *Queue) Drain() []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	if out == nil {
		out = []Alert{}
	}
	return out
}

// Len returns the number of pending alerts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
