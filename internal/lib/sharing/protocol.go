package sharing

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"fogtrack/internal/clients/wireless"
)

// Protocol commands. START, END and REQUEST travel on the control channel;
// CHUNK frames travel on the data channel.
const (
	cmdStart   = "START"
	cmdChunk   = "CHUNK"
	cmdEnd     = "END"
	cmdRequest = "REQUEST"
)

// frameOverhead reserves room for "CHUNK:<index>:" framing when sizing
// chunk payloads against the MTU.
const frameOverhead = 16

// Options tune the transfer protocol. Zero values take the defaults.
type Options struct {
	ChunkSize       int
	WriteDelay      time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.WriteDelay <= 0 {
		o.WriteDelay = DefaultWriteDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = DefaultMaxPollAttempts
	}
	return o
}

// SendPayload drives the sender state machine: START with the chunk total,
// each chunk tagged with its sequence index, then END. Writes are paced by
// WriteDelay so the receiver's buffer is never overrun.
func SendPayload(ctx context.Context, conn wireless.Conn, payload []byte, opts Options) error {
	opts = opts.withDefaults()

	chunkSize := opts.ChunkSize
	if max := conn.MTU() - frameOverhead; chunkSize > max {
		chunkSize = max
	}
	chunks := Split(payload, chunkSize)

	if err := conn.Write(wireless.ChannelControl, []byte(fmt.Sprintf("%s:%d", cmdStart, len(chunks)))); err != nil {
		return fmt.Errorf("failed to send start: %w", err)
	}

	for i, chunk := range chunks {
		if err := sleepCtx(ctx, opts.WriteDelay); err != nil {
			return err
		}
		frame := make([]byte, 0, len(chunk)+frameOverhead)
		frame = append(frame, []byte(fmt.Sprintf("%s:%d:", cmdChunk, i))...)
		frame = append(frame, chunk...)
		if err := conn.Write(wireless.ChannelData, frame); err != nil {
			return fmt.Errorf("failed to send chunk %d: %w", i, err)
		}
	}

	if err := sleepCtx(ctx, opts.WriteDelay); err != nil {
		return err
	}
	if err := conn.Write(wireless.ChannelControl, []byte(cmdEnd)); err != nil {
		return fmt.Errorf("failed to send end: %w", err)
	}
	return nil
}

// ReceivePayload drives the receiver state machine. When sendRequest is
// set it first issues REQUEST on the control channel (the initiator asking
// the host to start sending). It prefers a push subscription and falls
// back to bounded polling of the channels' latest values.
//
// A timeout with zero chunks received returns (nil, nil): the peer had no
// data, which is not an error. END with any missing chunk index fails with
// ErrIncompleteTransfer.
func ReceivePayload(ctx context.Context, conn wireless.Conn, sendRequest bool, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	controlSub, controlErr := conn.Subscribe(wireless.ChannelControl)
	dataSub, dataErr := conn.Subscribe(wireless.ChannelData)

	if sendRequest {
		// On a latest-value transport this REQUEST overwrites whatever we
		// last wrote on the control channel, typically our own END. Hold it
		// one poll window so a polling peer can observe the END first.
		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return nil, err
		}
		if err := conn.Write(wireless.ChannelControl, []byte(cmdRequest)); err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
	}

	if controlErr == nil && dataErr == nil {
		return receivePush(ctx, conn, controlSub, dataSub, opts)
	}
	return receivePolling(ctx, conn, opts)
}

// receivePush consumes pushed frames until END.
func receivePush(ctx context.Context, conn wireless.Conn, control, data <-chan []byte, opts Options) ([]byte, error) {
	var assembler *Assembler

	// Frames written before the subscription existed are still held as the
	// channels' latest values; drain them so a fast sender is not missed.
	if frame, err := conn.Read(wireless.ChannelControl); err == nil {
		if done, err := handleControl(frame, &assembler); err == nil && done {
			return finishReceive(assembler)
		}
	}
	if frame, err := conn.Read(wireless.ChannelData); err == nil {
		if err := handleChunk(frame, assembler); err != nil {
			return nil, err
		}
	}

	deadline := time.NewTimer(opts.PollInterval * time.Duration(opts.MaxPollAttempts))
	defer deadline.Stop()

	for {
		select {
		case frame, ok := <-control:
			if !ok {
				return nil, fmt.Errorf("%w: control channel closed", ErrExchangeTimeout)
			}
			done, err := handleControl(frame, &assembler)
			if err != nil {
				return nil, err
			}
			if done {
				return finishReceive(assembler)
			}
		case frame, ok := <-data:
			if !ok {
				return nil, fmt.Errorf("%w: data channel closed", ErrExchangeTimeout)
			}
			if err := handleChunk(frame, assembler); err != nil {
				return nil, err
			}
		case <-deadline.C:
			return timeoutResult(assembler)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// receivePolling is the degraded mode for transports without push: sample
// the latest value of both channels, deduplicating repeated reads. The data
// channel holds only the most recent chunk, so it must be sampled at least
// twice per WriteDelay or chunks vanish under the next write; the overall
// time budget stays PollInterval * MaxPollAttempts regardless of cadence.
func receivePolling(ctx context.Context, conn wireless.Conn, opts Options) ([]byte, error) {
	var assembler *Assembler
	var lastControl []byte

	sample := opts.PollInterval
	if half := opts.WriteDelay / 2; half > 0 && half < sample {
		sample = half
	}
	deadline := time.Now().Add(opts.PollInterval * time.Duration(opts.MaxPollAttempts))

	for time.Now().Before(deadline) {
		if err := sleepCtx(ctx, sample); err != nil {
			return nil, err
		}

		if frame, err := conn.Read(wireless.ChannelData); err == nil {
			// Duplicate frames are dropped by the assembler's index dedupe.
			if err := handleChunk(frame, assembler); err != nil {
				return nil, err
			}
		} else if err != wireless.ErrNoData {
			return nil, fmt.Errorf("failed to poll data channel: %w", err)
		}

		frame, err := conn.Read(wireless.ChannelControl)
		if err == wireless.ErrNoData {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to poll control channel: %w", err)
		}
		if bytes.Equal(frame, lastControl) {
			continue
		}
		lastControl = append([]byte(nil), frame...)

		done, err := handleControl(frame, &assembler)
		if err != nil {
			return nil, err
		}
		if done {
			return finishReceive(assembler)
		}
	}
	return timeoutResult(assembler)
}

// AwaitRequest blocks until the peer issues REQUEST, using push when
// available with the same polling fallback and bounds as ReceivePayload.
func AwaitRequest(ctx context.Context, conn wireless.Conn, opts Options) error {
	opts = opts.withDefaults()

	// The request may already be parked as the channel's latest value.
	if frame, err := conn.Read(wireless.ChannelControl); err == nil && string(frame) == cmdRequest {
		return nil
	}

	if sub, err := conn.Subscribe(wireless.ChannelControl); err == nil {
		// Re-check after subscribing: the request may have landed between
		// the read above and the subscription taking effect.
		if frame, err := conn.Read(wireless.ChannelControl); err == nil && string(frame) == cmdRequest {
			return nil
		}
		deadline := time.NewTimer(opts.PollInterval * time.Duration(opts.MaxPollAttempts))
		defer deadline.Stop()
		for {
			select {
			case frame, ok := <-sub:
				if !ok {
					return fmt.Errorf("%w: control channel closed", ErrExchangeTimeout)
				}
				if string(frame) == cmdRequest {
					return nil
				}
			case <-deadline.C:
				return fmt.Errorf("%w: no request received", ErrExchangeTimeout)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	for attempt := 0; attempt < opts.MaxPollAttempts; attempt++ {
		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return err
		}
		frame, err := conn.Read(wireless.ChannelControl)
		if err == wireless.ErrNoData {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to poll control channel: %w", err)
		}
		if string(frame) == cmdRequest {
			return nil
		}
	}
	return fmt.Errorf("%w: no request received", ErrExchangeTimeout)
}

// handleControl processes a control frame, allocating the assembler on
// START. It returns true once END is seen.
func handleControl(frame []byte, assembler **Assembler) (bool, error) {
	cmd := string(frame)
	switch {
	case cmd == cmdEnd:
		return true, nil
	case cmd == cmdRequest:
		// A REQUEST arriving after the full chunk set means the sender has
		// finished and moved on; its END may have been overwritten in the
		// control channel's latest-value slot before we sampled it.
		if *assembler != nil && (*assembler).Complete() {
			return true, nil
		}
		return false, nil
	case len(cmd) > len(cmdStart) && cmd[:len(cmdStart)+1] == cmdStart+":":
		total, err := strconv.Atoi(cmd[len(cmdStart)+1:])
		if err != nil {
			return false, fmt.Errorf("invalid start command %q: %w", cmd, err)
		}
		a, err := NewAssembler(total)
		if err != nil {
			return false, err
		}
		*assembler = a
		return false, nil
	default:
		return false, fmt.Errorf("unknown control command %q", cmd)
	}
}

// handleChunk parses "CHUNK:<index>:<data>" and feeds the assembler.
// Chunks arriving before START are dropped; the sender always leads with
// START, so such frames are stale values from a previous exchange.
func handleChunk(frame []byte, assembler *Assembler) error {
	parts := bytes.SplitN(frame, []byte(":"), 3)
	if len(parts) != 3 || string(parts[0]) != cmdChunk {
		return fmt.Errorf("invalid chunk frame")
	}
	if assembler == nil {
		return nil
	}
	index, err := strconv.Atoi(string(parts[1]))
	if err != nil {
		return fmt.Errorf("invalid chunk index %q: %w", parts[1], err)
	}
	return assembler.Add(index, parts[2])
}

func finishReceive(assembler *Assembler) ([]byte, error) {
	if assembler == nil {
		// END without START: nothing was offered.
		return nil, nil
	}
	if assembler.total == 0 {
		// START:0 followed by END: an explicit empty payload.
		return nil, nil
	}
	return assembler.Bytes()
}

func timeoutResult(assembler *Assembler) ([]byte, error) {
	if assembler == nil || assembler.Received() == 0 {
		// The peer had nothing to send; not an error.
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %d chunks received without end", ErrExchangeTimeout, assembler.Received())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
