package sdk

import (
	"sync"
	"time"

	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

const (
	typingIdle     = time.Second
	cursorDebounce = 100 * time.Millisecond
)

// Presence throttles the chatty signals: typing start fires once per burst,
// typing pause after one second of silence, cursor moves at most every
// hundred milliseconds and only when the position actually changed.
type Presence struct {
	client *Client

	mu         sync.Mutex
	typing     bool
	idleTimer  *time.Timer
	lastCursor ws.CursorPayload
	cursorSent bool

	cursorTimer   *time.Timer
	pendingCursor ws.CursorPayload
	cursorQueued  bool
}

func newPresence(client *Client) *Presence {
	return &Presence{client: client}
}

// Keystroke reports an edit burst. The first call of a burst broadcasts
// typing-start; typing-pause follows after a second without keystrokes.
func (p *Presence) Keystroke(cursor ws.CursorPayload) {
	p.mu.Lock()

	start := !p.typing
	p.typing = true

	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.idleTimer = time.AfterFunc(typingIdle, p.pause)
	p.mu.Unlock()

	if start {
		if err := p.client.send(ws.TypingStart, cursor); err != nil {
			p.client.emitError(err)
		}
	}
}

func (p *Presence) pause() {
	p.mu.Lock()
	if !p.typing {
		p.mu.Unlock()
		return
	}
	p.typing = false
	p.mu.Unlock()

	if err := p.client.send(ws.TypingPause, nil); err != nil {
		p.client.emitError(err)
	}
}

// MoveCursor reports the caret position. Repeated positions are suppressed;
// bursts are coalesced into one broadcast per debounce window.
func (p *Presence) MoveCursor(cursor ws.CursorPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursorSent && cursor == p.lastCursor {
		return
	}

	p.pendingCursor = cursor
	if p.cursorQueued {
		return
	}
	p.cursorQueued = true

	p.cursorTimer = time.AfterFunc(cursorDebounce, func() {
		p.mu.Lock()
		latest := p.pendingCursor
		p.cursorQueued = false
		p.lastCursor = latest
		p.cursorSent = true
		p.mu.Unlock()

		if err := p.client.send(ws.CursorMove, latest); err != nil {
			p.client.emitError(err)
		}
	})
}

// SetOnline broadcasts that this member is back at the keyboard.
func (p *Presence) SetOnline() error {
	return p.client.send(ws.UserOnline, ws.ConnectionPayload{ConnectionID: p.client.Self().ConnectionID})
}

// SetOffline broadcasts that this member stepped away (tab hidden, idle).
func (p *Presence) SetOffline() error {
	return p.client.send(ws.UserOffline, ws.ConnectionPayload{ConnectionID: p.client.Self().ConnectionID})
}

func (p *Presence) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	if p.cursorTimer != nil {
		p.cursorTimer.Stop()
	}
	p.typing = false
	p.cursorQueued = false
}
