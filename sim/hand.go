package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Hand is a gripper that starts out holding an object.
type Hand struct {
	mu       sync.Mutex
	holding  bool
	commands []string
}

// NewHand returns a hand holding something.
func NewHand() *Hand {
	return &Hand{holding: true}
}

// Take simulates the recipient pulling the object out of the hand.
func (h *Hand) Take() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holding = false
}

func (h *Hand) IsHolding(context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.holding, nil
}

// Command records the command; a release also drops whatever was held.
func (h *Hand) Command(_ context.Context, id int, command string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, fmt.Sprintf("%d:%s", id, command))
	if command == "release" {
		h.holding = false
	}
	return nil
}

// Commands returns the commands received, formatted "id:command".
func (h *Hand) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// Button is a manual override button.
type Button struct {
	down atomic.Bool
}

// Set holds the button down or lets it go.
func (b *Button) Set(down bool) { b.down.Store(down) }

func (b *Button) Pressed(context.Context) (bool, error) {
	return b.down.Load(), nil
}
