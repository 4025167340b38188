package dashboard

import (
	"context"

	"rppg-dashboard/internal/inference"
	"rppg-dashboard/internal/model"
)

const (
	resultBuffer = 64
	statusBuffer = 16
)

// Mailbox carries events from the worker to the board loop. Frames are
// latest-wins, inference results are never dropped and status messages are
// dropped when the board falls behind.
type Mailbox struct {
	frames  chan model.DisplayFrame
	results chan inference.Result
	status  chan string
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		frames:  make(chan model.DisplayFrame, 1),
		results: make(chan inference.Result, resultBuffer),
		status:  make(chan string, statusBuffer),
	}
}

// OfferFrame replaces any frame the board has not picked up yet.
func (m *Mailbox) OfferFrame(df model.DisplayFrame) {
	for {
		select {
		case m.frames <- df:
			return
		default:
		}
		select {
		case <-m.frames:
		default:
		}
	}
}

// SendResult blocks until the board accepts r or ctx ends.
func (m *Mailbox) SendResult(ctx context.Context, r inference.Result) error {
	select {
	case m.results <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailbox) OfferStatus(msg string) bool {
	select {
	case m.status <- msg:
		return true
	default:
		return false
	}
}
