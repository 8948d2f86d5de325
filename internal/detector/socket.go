package detector

import (
	"context"
	"fmt"
	"image"
	"io"
	"net"
	"sync"
	"time"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// SocketDetector talks to a detector service over a unix socket, one
// connection per frame. It is safe for concurrent use.
type SocketDetector struct {
	path    string
	timeout time.Duration
	bufs    sync.Pool
}

// OpenSocket checks the service is listening at path.
func OpenSocket(ctx context.Context, path string, timeout time.Duration) (*SocketDetector, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to detector service: %w", err)
	}
	conn.Close()
	return &SocketDetector{path: path, timeout: timeout}, nil
}

func (s *SocketDetector) Name() string { return "socket" }

// Detect sends a frame and waits for the service to answer and hang up.
func (s *SocketDetector) Detect(ctx context.Context, img *image.RGBA) ([]types.Detection, error) {
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to detector service: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	buf, _ := s.bufs.Get().([]byte)
	rgb := RGBAToRGB(img, buf)
	defer s.bufs.Put(rgb[:0])

	b := img.Bounds()
	reqData, err := msgpack.Marshal(Request{Height: b.Dy(), Width: b.Dx(), Data: rgb})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	respData, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp Response
	if err := msgpack.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detector service error: %s", resp.Error)
	}
	return toDetections(resp.Detections), nil
}

func (s *SocketDetector) Close() error { return nil }
