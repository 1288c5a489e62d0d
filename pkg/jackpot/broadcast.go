package jackpot

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Update represents a pool value change pushed to listeners.
type Update struct {
	GameID    string          `json:"gameId"`
	Amount    decimal.Decimal `json:"amount"`
	Award     decimal.Decimal `json:"award"`
	Timestamp time.Time       `json:"timestamp"`
	SpinID    string          `json:"spinId,omitempty"`
}

// Broadcaster fans pool updates out to every registered subscriber. Each
// subscriber has its own buffered channel; a full channel drops that
// subscriber's copy of the update without blocking the others.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Update
	nextID int
	buffer int
}

// NewBroadcaster creates a broadcaster whose subscribers each get a
// channel with the given buffer size.
func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int]chan Update),
		buffer: buffer,
	}
}

// Send delivers an update to every subscriber, non-blocking per channel.
func (b *Broadcaster) Send(update Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- update:
		default:
			// this subscriber is slow; it misses this update
		}
	}
}

// Listen registers a subscriber and returns its channel plus a cancel
// function. The channel closes after cancel (or the parent context) fires.
func (b *Broadcaster) Listen(ctx context.Context) (<-chan Update, context.CancelFunc) {
	listenerCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Update, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-listenerCtx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		// Send cannot reach the channel once it leaves the registry.
		close(ch)
	}()

	return ch, cancel
}
