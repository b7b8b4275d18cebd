package stream

import (
	"sync"

	"sipagent/internal/media"
)

// Bridge is a named virtual audio device pair: one call's render side
// (auplay) feeds frames into the bridge, the other call's capture side
// (ausrc) drains them, without any OS audio device in between. Grounded
// on original_source/modules/aubridge/aubridge.c, which keys ausrc/auplay
// instances into a shared hash table by device name so a b2bua or local
// mix can wire two calls' audio together.
type Bridge struct {
	name string
	ch   chan *media.AudioFrame
	done chan struct{}
	once sync.Once
}

// NewBridge creates a bridge device named name with the given frame
// backlog depth (aubridge.c uses an unbounded mbuf queue; here the
// channel capacity is the bounded analogue).
func NewBridge(name string, depth int) *Bridge {
	return &Bridge{name: name, ch: make(chan *media.AudioFrame, depth), done: make(chan struct{})}
}

func (b *Bridge) Name() string { return b.name }

// Source returns a media.SourceInstance draining frames pushed via Sink.
func (b *Bridge) Source() media.SourceInstance { return &bridgeSource{b: b, errCh: make(chan error, 1)} }

// Sink returns a media.SinkInstance that pushes frames into the bridge,
// dropping the oldest queued frame on overflow rather than blocking the
// render loop feeding it.
func (b *Bridge) Sink() media.SinkInstance { return &bridgeSink{b: b} }

func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

type bridgeSource struct {
	b     *Bridge
	errCh chan error
}

func (s *bridgeSource) Frames() <-chan *media.AudioFrame { return s.b.ch }
func (s *bridgeSource) Err() <-chan error                { return s.errCh }
func (s *bridgeSource) Stop()                            {}

type bridgeSink struct{ b *Bridge }

func (s *bridgeSink) Write(f *media.AudioFrame) error {
	select {
	case s.b.ch <- f:
	default:
		// Backlog full: drop oldest, then push, matching aubridge's
		// "keep the bridge real-time" behaviour over exact delivery.
		select {
		case <-s.b.ch:
		default:
		}
		select {
		case s.b.ch <- f:
		default:
		}
	}
	return nil
}

func (s *bridgeSink) Stop() {}

// BridgeRegistry keys Bridge instances by device name so two independently
// dialled calls can be wired to the same bridge, mirroring aubridge.c's
// ht_device lookup-or-create-on-first-use.
type BridgeRegistry struct {
	mu    sync.Mutex
	byName map[string]*Bridge
}

func NewBridgeRegistry() *BridgeRegistry {
	return &BridgeRegistry{byName: make(map[string]*Bridge)}
}

func (r *BridgeRegistry) GetOrCreate(name string, depth int) *Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byName[name]; ok {
		return b
	}
	b := NewBridge(name, depth)
	r.byName[name] = b
	return b
}

func (r *BridgeRegistry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byName[name]; ok {
		b.Close()
		delete(r.byName, name)
	}
}
