// Package engine ties capture, decode and flow dispatch together as the
// single packet-processing principal described in SPEC_FULL.md §7: one
// goroutine reads frames from a capture.Source, decodes each into a
// segment, and drives the flow dispatcher, while dump writes happen off to
// the side on their own goroutines.
//
// Grounded on the per-packet Decode dispatch shape (atomic counters, zap
// logging, panic recovery) in DynamEq6388-netcap/decoder/gopacketDecoder.go
// and on packet_received's top-level loop in
// original_source/pe_dump/pe_dump.c.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/tph5595/amico/internal/capture"
	"github.com/tph5595/amico/internal/decode"
	"github.com/tph5595/amico/internal/flow"
	"github.com/tph5595/amico/internal/stats"
)

// Engine owns the capture source, the flow dispatcher and the shared
// counters for one run of pedump.
type Engine struct {
	source     capture.Source
	dispatcher *flow.Dispatcher
	stats      *stats.Counters
	log        *zap.Logger
	snapLen    int
}

// New builds an Engine. dispatcher and stats are constructed by the
// caller (cmd/pedump) so tests can wire a dispatcher without a real
// capture.Source. snapLen is the configured capture snapshot length,
// enforced by the decoder against each frame's actual captured length
// (spec.md §4.1); pass 0 to skip the check.
func New(source capture.Source, dispatcher *flow.Dispatcher, counters *stats.Counters, log *zap.Logger, snapLen int) *Engine {
	return &Engine{source: source, dispatcher: dispatcher, stats: counters, log: log, snapLen: snapLen}
}

// Run consumes frames from the capture source until ctx is cancelled or
// the source is exhausted (offline file EOF), decoding and dispatching
// each in turn. It blocks until the frame channel closes.
func (e *Engine) Run(ctx context.Context) error {
	frames, err := e.source.Capture(ctx)
	if err != nil {
		return err
	}

	for frame := range frames {
		e.handleFrame(frame.Data, frame.CaptureLen)
	}

	return ctx.Err()
}

// handleFrame decodes one frame and, if it passes the decoder's guard
// clauses, hands it to the dispatcher. Malformed or uninteresting frames
// are dropped and counted, matching packet_received's early-return guard
// clauses before any flow-table work happens. captureLen is the driver-
// reported capture length (capture.Frame.CaptureLen), checked against the
// configured snap length independently of data's own length.
func (e *Engine) handleFrame(data []byte, captureLen int) {
	defer func() {
		// a malformed capture must never take the whole process down;
		// log and move on to the next frame.
		if r := recover(); r != nil {
			if e.log != nil {
				e.log.Error("recovered from panic while handling frame", zap.Any("panic", r))
			}

			if e.stats != nil {
				e.stats.IncDropped()
			}
		}
	}()

	if e.stats != nil {
		e.stats.IncReceived()
	}

	seg, reason := decode.Decode(data, captureLen, e.snapLen)
	if reason != decode.DropNone {
		if e.stats != nil {
			e.stats.IncDropped()
		}

		return
	}

	e.dispatcher.Handle(seg)
}
