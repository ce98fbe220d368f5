package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spencerau/NeRF-to-3DPrint/internal/types"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

// maxFrame bounds a single reply. Masks and corner lists are far below this.
const maxFrame = 256 << 20

// ErrClosed is returned by Call after Close.
var ErrClosed = errors.New("worker is closed")

// ErrTransport marks a broken pipe to the child, almost always because it exited.
var ErrTransport = errors.New("worker transport failed")

// Caller is the request/reply side of a worker. *Process implements it.
type Caller interface {
	Call(op string, args, out any) error
	Close() error
}

var _ Caller = (*Process)(nil)

// Process is a child process speaking the framed protocol:
// requests go to the child's stdin, replies come back on a side-channel pipe (FD 3)
// so the child's own stdout chatter never corrupts the data stream.
type Process struct {
	Name     string
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	closed   bool
}

// Start launches name with args and wires the stdin and FD 3 pipes.
func Start(ctx context.Context, name string, args ...string) (*Process, error) {
	child := utils.NewSafeCommand(ctx, name, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	child.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := child.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := child.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("%s failed to start: %w", name, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &Process{
		Name:     name,
		Cmd:      child,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one frame and waits for one frame back.
// Protocol: [uint32 big-endian length][payload] in both directions.
func (p *Process) Communicate(data []byte) ([]byte, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if err := binary.Write(p.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, fmt.Errorf("%w: write header: %w", ErrTransport, err)
	}
	if _, err := p.Stdin.Write(data); err != nil {
		return nil, fmt.Errorf("%w: write body: %w", ErrTransport, err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(p.DataPipe, header); err != nil {
		// EOF here means the child died (import error, crash, killed)
		return nil, fmt.Errorf("%w: read header: %w", ErrTransport, err)
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxFrame {
		return nil, fmt.Errorf("reply of %d bytes exceeds frame limit", respLen)
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(p.DataPipe, respBody); err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	return respBody, nil
}

// Call sends op with args as JSON and decodes the reply into out (which may be nil).
// A reply of the form {"error": "..."} is returned as an error.
func (p *Process) Call(op string, args, out any) error {
	payload, err := json.Marshal(types.Request{Op: op, Args: args})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	resp, err := p.Communicate(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var errorResult types.ErrorResult
	if json.Unmarshal(resp, &errorResult) == nil && errorResult.Error != "" {
		return fmt.Errorf("%s worker error: %s", p.Name, errorResult.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", op, err)
	}
	return nil
}

// Close ends the session: closing stdin tells the child to exit, then we reap it.
func (p *Process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.Stdin.Close()
	p.DataPipe.Close()
	if p.Cmd == nil {
		return nil
	}
	return p.Cmd.Wait()
}
