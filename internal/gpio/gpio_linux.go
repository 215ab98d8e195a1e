//go:build linux && (arm || arm64)

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests the configured input lines with pull-ups and rising edge
// detection, matching a normally-closed contact that opens to fire.
func Open(cfg Config) (*Watcher, error) {
	if cfg.PanicPin <= 0 && cfg.DoorPin <= 0 {
		return nil, fmt.Errorf("gpio: no trigger pins configured")
	}
	dev := chipName(cfg.Chip)
	chip, err := gpiocdev.NewChip(dev)
	if err != nil {
		return nil, fmt.Errorf("gpio: open chip %s: %w", dev, err)
	}

	w := newWatcher(cfg.Debounce)
	var lines []*gpiocdev.Line
	release := func() error {
		var errs []error
		for _, l := range lines {
			errs = append(errs, l.Close())
		}
		errs = append(errs, chip.Close())
		return errors.Join(errs...)
	}

	for _, in := range []struct {
		trig Trigger
		pin  int
	}{{Panic, cfg.PanicPin}, {Door, cfg.DoorPin}} {
		if in.pin <= 0 {
			continue
		}
		offset, err := lineOffset(chip, in.pin)
		if err != nil {
			_ = release()
			return nil, err
		}
		trig := in.trig
		l, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithRisingEdge,
			gpiocdev.WithConsumer(consumer(cfg.Consumer)),
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
				w.emit(trig, time.Now())
			}),
		)
		if err != nil {
			_ = release()
			return nil, fmt.Errorf("gpio: request %s line %d: %w", trig, in.pin, err)
		}
		lines = append(lines, l)
	}
	w.close = release
	return w, nil
}

// Output is a single digital output line.
type Output struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenOutput requests pin as an output, initially high.
func OpenOutput(chipPath string, pin int, name string) (*Output, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("gpio: invalid output pin %d", pin)
	}
	dev := chipName(chipPath)
	chip, err := gpiocdev.NewChip(dev)
	if err != nil {
		return nil, fmt.Errorf("gpio: open chip %s: %w", dev, err)
	}
	offset, err := lineOffset(chip, pin)
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer(consumer(name)))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: request output line %d: %w", pin, err)
	}
	return &Output{chip: chip, line: line}, nil
}

func (o *Output) Set(on bool) error {
	if o == nil || o.line == nil {
		return fmt.Errorf("gpio: output not initialized")
	}
	v := 0
	if on {
		v = 1
	}
	return o.line.SetValue(v)
}

func (o *Output) Close() error {
	if o == nil || o.line == nil {
		return nil
	}
	_ = o.line.SetValue(0)
	err := o.line.Close()
	o.line = nil
	if o.chip != nil {
		_ = o.chip.Close()
		o.chip = nil
	}
	return err
}

// lineOffset resolves pin by its "GPIO<n>" line name (Raspberry Pi
// kernels name header lines that way) and falls back to the raw offset.
func lineOffset(chip *gpiocdev.Chip, pin int) (int, error) {
	if off, err := chip.FindLine(headerLine(pin)); err == nil {
		return off, nil
	}
	if pin >= chip.Lines() {
		return 0, fmt.Errorf("gpio: line %d not on %s (%d lines)", pin, chip.Name, chip.Lines())
	}
	return pin, nil
}
