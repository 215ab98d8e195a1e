package nmea

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Sentence slots of the PMTK314 output selection command.
const (
	SlotGLL = 0
	SlotRMC = 1
	SlotVTG = 2
	SlotGGA = 3
	SlotGSA = 4
	SlotGSV = 5

	pmtk314Slots = 19
)

var sentenceSlots = map[string]int{
	"GLL": SlotGLL,
	"RMC": SlotRMC,
	"VTG": SlotVTG,
	"GGA": SlotGGA,
	"GSA": SlotGSA,
	"GSV": SlotGSV,
}

// Command is an unframed PMTK payload such as "PMTK103".
type Command string

// ID is the numeric command identifier, the digits after "PMTK".
func (c Command) ID() (int, bool) {
	s := string(c)
	if !strings.HasPrefix(s, "PMTK") || len(s) < 7 {
		return 0, false
	}
	id, err := strconv.Atoi(s[4:7])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Restart reports whether c is one of the PMTK101..104 restart commands.
// The receiver answers those with a boot message, not a PMTK001 ack.
func (c Command) Restart() bool {
	id, ok := c.ID()
	return ok && id >= 101 && id <= 104
}

func HotRestart() Command  { return "PMTK101" }
func ColdRestart() Command { return "PMTK103" }

// SetOutput enables the named sentences (RMC, GGA, ...) once per fix and
// disables everything else.
func SetOutput(sentences ...string) (Command, error) {
	var rates [pmtk314Slots]int
	for _, s := range sentences {
		slot, ok := sentenceSlots[strings.ToUpper(strings.TrimSpace(s))]
		if !ok {
			return "", fmt.Errorf("nmea: unknown output sentence %q", s)
		}
		rates[slot] = 1
	}
	var b strings.Builder
	b.WriteString("PMTK314")
	for _, r := range rates {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(r))
	}
	return Command(b.String()), nil
}

// SetUpdateInterval sets the position report interval (100ms..10s).
func SetUpdateInterval(d time.Duration) (Command, error) {
	ms := d.Milliseconds()
	if ms < 100 || ms > 10000 {
		return "", fmt.Errorf("nmea: update interval %s out of range", d)
	}
	return Command(fmt.Sprintf("PMTK220,%d", ms)), nil
}

// Encoder writes framed commands to the receiver.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Send frames cmd with its checksum and writes it in one call.
func (e *Encoder) Send(cmd Command) error {
	b, err := AppendFrame(make([]byte, 0, len(cmd)+6), string(cmd))
	if err != nil {
		return err
	}
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("nmea: write %s: %w", cmd, err)
	}
	return nil
}

// AckFlag is the result code of a PMTK001 acknowledgement.
type AckFlag int

const (
	AckInvalid     AckFlag = 0
	AckUnsupported AckFlag = 1
	AckFailed      AckFlag = 2
	AckSuccess     AckFlag = 3
)

func (f AckFlag) String() string {
	switch f {
	case AckInvalid:
		return "invalid"
	case AckUnsupported:
		return "unsupported"
	case AckFailed:
		return "failed"
	case AckSuccess:
		return "success"
	default:
		return "flag(" + strconv.Itoa(int(f)) + ")"
	}
}

// Ack is a decoded "$PMTK001,<cmd>,<flag>" sentence.
type Ack struct {
	Cmd  int
	Flag AckFlag
}

var errNotAck = errors.New("nmea: not a PMTK001 acknowledgement")

// ParseAck decodes an acknowledgement from a validated frame.
func ParseAck(frame Frame) (Ack, error) {
	f := bytes.Split(frame.Payload(), []byte{','})
	if len(f) < 3 || string(f[0]) != "PMTK001" {
		return Ack{}, errNotAck
	}
	cmd, err := strconv.Atoi(string(f[1]))
	if err != nil {
		return Ack{}, fmt.Errorf("nmea: ack command %q: %w", f[1], ErrMalformedField)
	}
	flag, err := strconv.Atoi(string(f[2]))
	if err != nil {
		return Ack{}, fmt.Errorf("nmea: ack flag %q: %w", f[2], ErrMalformedField)
	}
	return Ack{Cmd: cmd, Flag: AckFlag(flag)}, nil
}

// AckWindow is how many lines Configure reads looking for each ack. The
// receiver keeps streaming position sentences while it answers.
const AckWindow = 20

// Configure sends each command and waits for its acknowledgement on fr.
// Commands without a numeric ID (or restarts, which answer with a boot
// banner instead of an ack) are sent without waiting.
func Configure(ctx context.Context, enc *Encoder, fr *Framer, cmds ...Command) error {
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Send(cmd); err != nil {
			return err
		}
		id, ok := cmd.ID()
		if !ok || cmd.Restart() {
			continue
		}
		if err := waitAck(ctx, fr, id); err != nil {
			return fmt.Errorf("nmea: %s: %w", cmd, err)
		}
	}
	return nil
}

func waitAck(ctx context.Context, fr *Framer, id int) error {
	for i := 0; i < AckWindow; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := fr.ReadFrame()
		if err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
		if err != nil || Check(frame) != nil {
			continue
		}
		ack, err := ParseAck(frame)
		if err != nil || ack.Cmd != id {
			continue
		}
		if ack.Flag != AckSuccess {
			return fmt.Errorf("receiver answered %s", ack.Flag)
		}
		return nil
	}
	return fmt.Errorf("no ack within %d lines", AckWindow)
}
