// Package capture is the packet source collaborator: it hands raw frame
// bytes to the engine from either a live interface or an offline capture
// file. It is the one place gopacket's pcap bindings are used directly —
// internal/decode deliberately hand-parses the frames capture hands it,
// rather than consuming gopacket's own layer decoders.
//
// Grounded on the channel-based Capture(ctx)/FileReader/DeviceReader shape
// in mel2oo-go-pcap/pcap/reader.go, rehosted onto the teacher's own capture
// library, github.com/dreadl0ck/gopacket and its pcap subpackage.
package capture

import (
	"context"

	"github.com/dreadl0ck/gopacket/pcap"
	"github.com/pkg/errors"
)

// Frame is one captured link-layer frame, handed to internal/decode as-is.
type Frame struct {
	Data       []byte
	CaptureLen int
}

// Source yields captured frames on a channel until ctx is cancelled or the
// underlying handle reaches EOF (offline) or is closed (live).
type Source interface {
	Capture(ctx context.Context) (<-chan Frame, error)
	// Stats reports driver-level packet/drop counters, matching
	// pcap.Handle.Stats(); nil if unsupported (offline files).
	Stats() (*pcap.Stats, error)
	Close()
}

const chanBuf = 256

// fileSource reads frames from an offline pcap/pcapng file.
type fileSource struct {
	handle *pcap.Handle
}

// OpenOffline opens path for reading, optionally narrowing capture with a
// BPF filter, matching pcap_open_offline + pcap_compile/pcap_setfilter in
// original_source/pe_dump/pe_dump.c's -r mode.
func OpenOffline(path, bpfFilter string) (Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open offline capture %s", path)
	}

	if err := applyFilter(handle, bpfFilter); err != nil {
		handle.Close()
		return nil, err
	}

	return &fileSource{handle: handle}, nil
}

// deviceSource reads frames live from a network interface.
type deviceSource struct {
	handle *pcap.Handle
}

// OpenLive opens device in promiscuous mode with the given snapshot
// length, matching pcap_open_live in original_source/pe_dump/pe_dump.c's
// default (no -r) mode.
func OpenLive(device string, snapLen int32, bpfFilter string) (Source, error) {
	handle, err := pcap.OpenLive(device, snapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, errors.Wrapf(err, "open live capture on %s", device)
	}

	if err := applyFilter(handle, bpfFilter); err != nil {
		handle.Close()
		return nil, err
	}

	return &deviceSource{handle: handle}, nil
}

func applyFilter(handle *pcap.Handle, bpfFilter string) error {
	if bpfFilter == "" {
		return nil
	}

	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		return errors.Wrap(err, "set BPF filter")
	}

	return nil
}

func (s *fileSource) Capture(ctx context.Context) (<-chan Frame, error) {
	return readInto(ctx, s.handle), nil
}

func (s *fileSource) Stats() (*pcap.Stats, error) { return s.handle.Stats() }
func (s *fileSource) Close()                      { s.handle.Close() }

func (s *deviceSource) Capture(ctx context.Context) (<-chan Frame, error) {
	return readInto(ctx, s.handle), nil
}

func (s *deviceSource) Stats() (*pcap.Stats, error) { return s.handle.Stats() }
func (s *deviceSource) Close()                      { s.handle.Close() }

// readInto drains handle.ReadPacketData in a goroutine, stopping on ctx
// cancellation, handle EOF/close, or a read error.
func readInto(ctx context.Context, handle *pcap.Handle) <-chan Frame {
	out := make(chan Frame, chanBuf)

	go func() {
		defer close(out)

		for {
			data, ci, err := handle.ReadPacketData()
			if err != nil {
				// covers both pcap.NextErrorTimeoutExpired (live, retry) and
				// io.EOF (offline file exhausted, stop).
				if errors.Is(err, pcap.NextErrorTimeoutExpired) {
					continue
				}

				return
			}

			frame := Frame{Data: data, CaptureLen: ci.CaptureLength}

			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()

	return out
}
