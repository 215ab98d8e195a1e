//go:build !linux || (!arm && !arm64)

package gpio

import "fmt"

func Open(cfg Config) (*Watcher, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

type Output struct{}

func OpenOutput(chipPath string, pin int, name string) (*Output, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func (o *Output) Set(on bool) error {
	return fmt.Errorf("gpio: unsupported on this platform")
}

func (o *Output) Close() error { return nil }
