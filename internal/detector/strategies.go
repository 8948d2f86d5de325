package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/reframe/internal/worker"
)

// Strategy names accepted in Options.Order.
const (
	StrategySocket = "socket"
	StrategyWorker = "worker"
	StrategyPigo   = "pigo"
)

// Options configures every built-in strategy and their order.
type Options struct {
	Order         []string
	SocketPath    string
	SocketTimeout time.Duration
	Python        string
	Script        string
	WorkerTimeout time.Duration
	Cascade       string
	MinFaceSize   int
}

// DefaultOptions tries the socket service, then a worker, then pigo.
func DefaultOptions() Options {
	return Options{
		Order:         []string{StrategySocket, StrategyWorker, StrategyPigo},
		SocketPath:    "/tmp/reframe-detector.sock",
		SocketTimeout: 500 * time.Millisecond,
		Python:        "python3",
		Script:        "python/detector.py",
		WorkerTimeout: 30 * time.Second,
		Cascade:       "cascade/facefinder",
		MinFaceSize:   20,
	}
}

// BuildChain returns the strategies named in opts.Order for frames of the
// given size.
func BuildChain(opts Options, width, height int) (Chain, error) {
	chain := make(Chain, 0, len(opts.Order))
	for _, name := range opts.Order {
		switch name {
		case StrategySocket:
			chain = append(chain, Strategy{Name: name, Open: func(ctx context.Context) (Detector, error) {
				d, err := OpenSocket(ctx, opts.SocketPath, opts.SocketTimeout)
				if err != nil {
					return nil, err
				}
				return d, nil
			}})
		case StrategyWorker:
			cfg := worker.Config{
				Python:      opts.Python,
				Script:      opts.Script,
				Width:       width,
				Height:      height,
				ReadTimeout: opts.WorkerTimeout,
			}
			chain = append(chain, Strategy{Name: name, Open: func(ctx context.Context) (Detector, error) {
				d, err := OpenWorker(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return d, nil
			}})
		case StrategyPigo:
			po := PigoOptions{CascadePath: opts.Cascade, MinSize: opts.MinFaceSize}
			chain = append(chain, Strategy{Name: name, Open: func(ctx context.Context) (Detector, error) {
				d, err := OpenPigo(ctx, po)
				if err != nil {
					return nil, err
				}
				return d, nil
			}})
		default:
			return nil, fmt.Errorf("unknown detector strategy %q", name)
		}
	}
	return chain, nil
}
