package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/reframe/internal/utils"
)

// Status bytes leading every response body.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxResponse bounds a single response so a corrupt header cannot make us
// allocate gigabytes.
const maxResponse = 64 << 20

// ErrBroken is returned once an exchange failed halfway. Replies may arrive
// late, so the stream no longer lines up with requests.
var ErrBroken = errors.New("worker stream out of sync")

// Config describes how to launch the detector process.
type Config struct {
	Python      string // interpreter, default python3
	Script      string // default python/detector.py
	Width       int    // raw frame geometry, passed to the script
	Height      int
	ReadTimeout time.Duration // per frame, 0 disables
}

// PythonWorker is a long-lived detector subprocess. Frames go in on stdin,
// responses come back on FD 3 so stray prints on stdout cannot corrupt them.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	timeout  time.Duration
	broken   error
}

// NewPythonWorker starts the detector process.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "python/detector.py"
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--width", strconv.Itoa(cfg.Width),
		"--height", strconv.Itoa(cfg.Height),
	)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate performs one raw exchange: [Length][Data] out, [Length][Body] back.
// A failed exchange (timeout, short read, dead pipe) kills the process and
// every later call returns ErrBroken.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if w.broken != nil {
		return nil, fmt.Errorf("%w: worker %d: %v", ErrBroken, w.ID, w.broken)
	}
	resp, err := w.exchange(data)
	if err != nil {
		w.fail(err)
		return nil, err
	}
	return resp, nil
}

func (w *PythonWorker) exchange(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.timeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.timeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a crashed interpreter surfaces here
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (w *PythonWorker) fail(err error) {
	w.broken = err
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
}

// Broken reports whether an earlier exchange failed and the process was
// killed.
func (w *PythonWorker) Broken() bool { return w.broken != nil }

// ProcessFrame sends one raw frame and returns the payload of a successful
// response. Protocol: [Status:0][Payload] or [Status:1][MsgLen][Msg].
func (w *PythonWorker) ProcessFrame(data []byte) ([]byte, error) {
	resp, err := w.Communicate(data)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("empty response from worker %d", w.ID)
	}

	switch resp[0] {
	case statusOK:
		return resp[1:], nil
	case statusError:
		body := bytes.NewReader(resp[1:])
		var msgLen uint32
		if err := binary.Read(body, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("python worker error: malformed message: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(body, msg); err != nil {
			return nil, fmt.Errorf("python worker error: malformed message: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("unknown status byte %d from worker %d", resp[0], w.ID)
	}
}

// Close shuts the process down and waits for it.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	err := w.Cmd.Wait()
	if w.broken != nil {
		// Killed on purpose; the exit status says nothing new.
		return nil
	}
	return err
}
