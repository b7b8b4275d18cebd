// Package call implements C9: a call binds one SIP dialog to its
// audio/video streams, drives the state machine of spec.md §4.9, and
// emits events on the event bus. Grounded on teacher's
// bridge/service.go handleIncomingSIP/inviteWithEarlyMedia (Trying/
// Ringing/ProgressMediaOptions/AnswerOptions/Invite/WaitAnswer sequence
// against github.com/emiago/diago) generalized from "one fixed
// Telegram peer" to "whatever streams the call's owner attaches".
package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sipagent/internal/errs"
	"sipagent/internal/eventbus"
	"sipagent/internal/mnat"
	"sipagent/internal/stream"
)

// State is one row of spec.md §4.9's transition table.
type State int

const (
	Idle State = iota
	Outgoing
	Incoming
	Ringing
	Early
	Established
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Outgoing:
		return "OUTGOING"
	case Incoming:
		return "INCOMING"
	case Ringing:
		return "RINGING"
	case Early:
		return "EARLY"
	case Established:
		return "ESTABLISHED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Dialog is the thin SIP-transaction surface a Call needs, satisfied by
// a github.com/emiago/diago DialogServerSession/DialogClientSession
// (or a test double). Keeping it as a narrow interface mirrors
// teacher's own endpoints.SIPDialog seam in bridge/endpoints/sip_endpoint.go.
type Dialog interface {
	ID() string
	RemoteURI() string
	// Accept sends whatever SIP-level acceptance the dialog still owes
	// its peer on local answer: a server dialog sends the 200 OK with
	// negotiated codecs; a client dialog (already ACKed on connect) has
	// nothing left to send and is a no-op.
	Accept() error
	Close() error
}

// DTMFHandler receives relayed DTMF digits; for B2BUA-style bridges the
// owner typically forwards the digit to the partner call.
type DTMFHandler func(digit byte)

// Stats are the call-level timestamps (start, established, closed);
// per-stream packet counters stay in each stream's own stream.Stats.
type Stats struct {
	StartTime   time.Time
	EstablishedAt time.Time
	ClosedAt    time.Time
}

// Call is C9.
type Call struct {
	mu    sync.Mutex
	state State
	id    string

	dialog Dialog
	audio  *stream.AudioStream
	video  *stream.VideoStream
	mnat   *mnat.Session

	bus    *eventbus.Bus
	uaName string

	dtmfHandler DTMFHandler
	partner     *Call // B2BUA partner leg, if any

	stats Stats
	closeOnce sync.Once
	closeCode int
	closeReason string
}

// New constructs a Call in IDLE state bound to the given dialog.
func New(bus *eventbus.Bus, uaName string, dialog Dialog) *Call {
	c := &Call{
		state:  Idle,
		id:     dialog.ID(),
		dialog: dialog,
		bus:    bus,
		uaName: uaName,
		stats:  Stats{StartTime: time.Now()},
	}
	return c
}

func (c *Call) ID() string { return c.id }

func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AttachMedia sets the audio/video streams and MNAT session a call
// will start once it reaches ESTABLISHED, per spec §4.9's "attach the
// chosen codec to the stream, start the capture/render drivers".
func (c *Call) AttachMedia(audio *stream.AudioStream, video *stream.VideoStream, sess *mnat.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = audio
	c.video = video
	c.mnat = sess
}

func (c *Call) SetDTMFHandler(h DTMFHandler) {
	c.mu.Lock()
	c.dtmfHandler = h
	c.mu.Unlock()
}

// SetPartner wires a B2BUA partner leg so HandleDTMF can relay digits
// across, per spec §4.9's DTMF relay requirement.
func (c *Call) SetPartner(p *Call) {
	c.mu.Lock()
	c.partner = p
	c.mu.Unlock()
}

// Partner returns the B2BUA partner leg, or nil if this call is not
// paired.
func (c *Call) Partner() *Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partner
}

func (c *Call) emit(t eventbus.Type, reason string) {
	if c.bus == nil {
		return
	}
	ev := eventbus.New(t, c.uaName, c.id)
	ev.Reason = reason
	c.bus.Publish(ev)
}

func (c *Call) transition(valid func(State) bool, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !valid(c.state) {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("call %s: invalid transition from %s to %s", c.id, c.state, to))
	}
	c.state = to
	return nil
}

// Dial moves IDLE -> OUTGOING, emitting Outgoing.
func (c *Call) Dial() error {
	if err := c.transition(func(s State) bool { return s == Idle }, Outgoing); err != nil {
		return err
	}
	c.emit(eventbus.CallOutgoing, "")
	return nil
}

// Invited moves IDLE -> INCOMING, emitting Incoming (inbound-invite).
func (c *Call) Invited() error {
	if err := c.transition(func(s State) bool { return s == Idle }, Incoming); err != nil {
		return err
	}
	c.emit(eventbus.CallIncoming, "")
	return nil
}

// Ring moves OUTGOING -> RINGING on a provisional response without SDP.
func (c *Call) Ring() error {
	if err := c.transition(func(s State) bool { return s == Outgoing }, Ringing); err != nil {
		return err
	}
	c.emit(eventbus.CallRinging, "")
	return nil
}

// EarlyMedia moves OUTGOING/RINGING -> EARLY on a provisional response
// carrying SDP, starting the audio stream in receive-only mode.
func (c *Call) EarlyMedia(ctx context.Context) error {
	if err := c.transition(func(s State) bool { return s == Outgoing || s == Ringing }, Early); err != nil {
		return err
	}
	c.emit(eventbus.CallProgress, "")
	c.mu.Lock()
	audio := c.audio
	c.mu.Unlock()
	if audio != nil {
		audio.Start(ctx)
	}
	return nil
}

// Answer sends the dialog's SIP-level acceptance (200 OK with
// negotiated codecs for an inbound dialog; a no-op for an already-ACKed
// outbound one) and only then moves INCOMING -> ESTABLISHED, emitting
// both Answered and Established. A dialog.Accept failure leaves the
// call in INCOMING rather than reporting a phantom answer.
func (c *Call) Answer(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	dialog := c.dialog
	c.mu.Unlock()
	if state != Incoming {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("call %s: invalid transition from %s to %s", c.id, state, Established))
	}
	if err := dialog.Accept(); err != nil {
		return errs.Wrap(errs.TransientIO, "sip answer failed", err)
	}
	if err := c.transition(func(s State) bool { return s == Incoming }, Established); err != nil {
		return err
	}
	c.stats.EstablishedAt = time.Now()
	c.emit(eventbus.CallAnswered, "")
	c.startMedia(ctx)
	c.emit(eventbus.CallEstablished, "")
	return nil
}

// Established moves OUTGOING/RINGING/EARLY -> ESTABLISHED on a final 2xx.
func (c *Call) Established(ctx context.Context) error {
	if err := c.transition(func(s State) bool {
		return s == Outgoing || s == Ringing || s == Early
	}, Established); err != nil {
		return err
	}
	c.stats.EstablishedAt = time.Now()
	c.startMedia(ctx)
	c.emit(eventbus.CallEstablished, "")
	return nil
}

// startMedia starts the attached audio and video streams on entering
// ESTABLISHED. It does not pass the answered peer addresses to the MNAT
// session and does not change the streams' codec: both stay as they
// were when AttachMedia was called.
func (c *Call) startMedia(ctx context.Context) {
	c.mu.Lock()
	audio, video := c.audio, c.video
	c.mu.Unlock()
	if audio != nil {
		audio.Start(ctx)
	}
	if video != nil {
		video.Start(ctx)
	}
}

// RemoteSDP notifies listeners a remote SDP body arrived (initial
// answer or re-INVITE), per spec §4.9.
func (c *Call) RemoteSDP() {
	c.emit(eventbus.RemoteSdp, "")
}

// Close moves any state -> CLOSED exactly once: stops the streams
// (stream.Stop stops the drivers and flushes the jitter buffer),
// closes the MNAT session (cancelling keepalives), closes the dialog
// and emits Closed. Safe to call from local-hangup, peer-BYE, or an
// error path.
func (c *Call) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = Closed
		c.closeCode = code
		c.closeReason = reason
		audio, video, sess := c.audio, c.video, c.mnat
		c.stats.ClosedAt = time.Now()
		c.mu.Unlock()

		if audio != nil {
			audio.Stop()
		}
		if video != nil {
			video.Stop()
		}
		if sess != nil {
			sess.Close()
		}
		_ = c.dialog.Close()
		c.emit(eventbus.CallClosed, reason)
	})
}

func (c *Call) CloseCode() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// HandleDTMF is invoked by the owning stream's decode chain (or an
// RTP telephone-event handler) on digit press; it calls the local
// handler and, for a B2BUA leg, replays the digit on the partner call
// via the partner's DTMF sender (wired by the caller since the sender
// is codec/stream-specific), per spec §4.9.
func (c *Call) HandleDTMF(digit byte, relay func(partner *Call, digit byte)) {
	c.mu.Lock()
	h := c.dtmfHandler
	partner := c.partner
	c.mu.Unlock()
	if h != nil {
		h(digit)
	}
	if partner != nil && relay != nil {
		relay(partner, digit)
	}
}

func (c *Call) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
