package module

import (
	"os"

	"sipagent/internal/eventbus"
)

// NewDTMFIO builds the dtmfio application module: writes received DTMF
// digits, and 'E'/'F' markers on call established/closed, to a FIFO
// (or plain file) path. Grounded on
// original_source/modules/dtmfio/dtmfio.c, which opens /tmp/dtmf.out
// and writes the same markers from its call event handler.
func NewDTMFIO(bus *eventbus.Bus, outPath string) Module {
	var sub *eventbus.Subscription
	var f *os.File
	return Module{
		Name: "dtmfio",
		Type: "application",
		Init: func() error {
			var err error
			f, err = os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			sub = bus.Subscribe(func(ev eventbus.Event) {
				switch ev.Type {
				case eventbus.DtmfPressed:
					_, _ = f.Write([]byte{ev.Digit})
				case eventbus.CallEstablished:
					_, _ = f.Write([]byte("E"))
				case eventbus.CallClosed:
					_, _ = f.Write([]byte("F"))
				}
			})
			return nil
		},
		Close: func() error {
			if sub != nil {
				sub.Unsubscribe()
			}
			if f != nil {
				return f.Close()
			}
			return nil
		},
	}
}
