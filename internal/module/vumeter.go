package module

import (
	"fmt"
	"log/slog"

	"sipagent/internal/eventbus"
)

// NewVUMeter builds the vumeter application module: an ASCII-art bar
// printed from VuTx/VuRx events' energy levels (a float64 in 0..1 in
// the event's Data). Grounded on original_source/modules/vumeter/vumeter.c,
// which hangs an aufilt off the audio object and prints a bar on a
// periodic timer per call; here the module is only a renderer
// subscribed to the event bus, and no filter or stream in this
// repository publishes VuTx/VuRx events.
func NewVUMeter(bus *eventbus.Bus, logger *slog.Logger) Module {
	var sub *eventbus.Subscription
	return Module{
		Name: "vumeter",
		Type: "application",
		Init: func() error {
			sub = bus.Subscribe(func(ev eventbus.Event) {
				switch ev.Type {
				case eventbus.VuTx, eventbus.VuRx:
					level, _ := ev.Data.(float64)
					dir := "REC"
					if ev.Type == eventbus.VuTx {
						dir = "PLAY"
					}
					logger.Info(fmt.Sprintf("%-4s [%s]", dir, bar(level)), "ua", ev.UAName, "call_id", ev.CallID)
				}
			})
			return nil
		},
		Close: func() error {
			if sub != nil {
				sub.Unsubscribe()
			}
			return nil
		},
	}
}

func bar(level float64) string {
	const width = 20
	n := int(level * width)
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	b := make([]byte, width)
	for i := range b {
		if i < n {
			b[i] = '#'
		} else {
			b[i] = '.'
		}
	}
	return string(b)
}
