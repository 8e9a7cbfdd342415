/*Package ti contains a driver for the Texas Instruments DAC8568, an octal
16-bit voltage output DAC with a 32-bit SPI input shift register.

The part is double buffered.  Each channel has an input register and a DAC
(output) register; a write lands in the input register and does not move the
output until that channel, or all channels, are updated.  This allows several
channels to be changed and then applied at the same instant.  Both registers
are tracked per channel by ChannelState, since the part cannot be read back.

Every exported method of DAC8568 holds the device lock for its duration and
sends its words in a fixed order.  A bus failure is returned immediately as a
*DeviceCommunicationError; nothing is retried, since a retry of a write whose
outcome is unknown is not safe.  After such an error the output state of the
part is undefined and the caller should SoftwareReset.
*/
package ti

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/nasa-jpl/cavitytune/util"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

const (
	// MaxFrequency is the fastest SCLK the DAC8568 accepts
	MaxFrequency = 50 * physic.MegaHertz

	// internalRefOn is the data field of the flexible mode reference
	// command which powers the reference up and keeps it up
	internalRefOn = 0xA000
)

// ErrClosed is wrapped by the error of any operation after Close
var ErrClosed = errors.New("ti: dac8568 is closed")

// PowerDownMode is how a powered down output is terminated
type PowerDownMode uint8

const (
	// PowerDown1K ties the output to ground through 1 kOhm
	PowerDown1K PowerDownMode = 1

	// PowerDown100K ties the output to ground through 100 kOhm
	PowerDown100K PowerDownMode = 2

	// PowerDownHiZ leaves the output floating
	PowerDownHiZ PowerDownMode = 3
)

// ClearCode is the code loaded into every channel when CLR is asserted
type ClearCode uint8

const (
	// ClearToZero loads 0x0000
	ClearToZero ClearCode = 0

	// ClearToMid loads 0x8000
	ClearToMid ClearCode = 1

	// ClearToFull loads 0xFFFF
	ClearToFull ClearCode = 2

	// ClearIgnore makes the part ignore the CLR pin
	ClearIgnore ClearCode = 3
)

func (c ClearCode) code() uint16 {
	switch c {
	case ClearToMid:
		return MidScale
	case ClearToFull:
		return FullScale
	default:
		return 0
	}
}

// ParseClearCode converts "zero", "mid", or "full" to a ClearCode
func ParseClearCode(s string) (ClearCode, error) {
	switch s {
	case "zero", "0":
		return ClearToZero, nil
	case "mid", "half":
		return ClearToMid, nil
	case "full", "max":
		return ClearToFull, nil
	case "ignore":
		return ClearIgnore, nil
	}
	return 0, &ValidationError{Field: "clear code", Value: s, Reason: "must be zero, mid, full, or ignore"}
}

// Bus sends a frame and optionally reads one back.  spi.Conn satisfies it.
type Bus interface {
	Tx(w, r []byte) error
}

// SPIConfig is the bus setup used by NewSPI
type SPIConfig struct {
	Frequency physic.Frequency
	Mode      spi.Mode
}

// DefaultSPIConfig is 10 MHz, data latched on the falling edge of SCLK
var DefaultSPIConfig = SPIConfig{Frequency: 10 * physic.MegaHertz, Mode: spi.Mode1}

// Option configures a DAC8568
type Option func(*DAC8568)

// WithClearPin connects the active low CLR input of the part
func WithClearPin(p gpio.PinOut) Option {
	return func(d *DAC8568) {
		d.clr = p
	}
}

// WithDebug logs every word sent to the part
func WithDebug(debug bool) Option {
	return func(d *DAC8568) {
		d.debug = debug
	}
}

// DAC8568 is a TI DAC8568 on a SPI bus
type DAC8568 struct {
	sync.Mutex

	bus   Bus
	port  io.Closer
	clr   gpio.PinOut
	state *ChannelState
	debug bool

	refOn     bool
	ldacMask  uint8
	clearCode ClearCode
}

// New returns a DAC8568 which sends its words on bus.  Nothing is sent;
// call Init to bring the part to a known state.
func New(bus Bus, cal Calibration, opts ...Option) (*DAC8568, error) {
	if bus == nil {
		return nil, fmt.Errorf("ti: nil bus")
	}
	if err := cal.validate(); err != nil {
		return nil, err
	}
	d := &DAC8568{bus: bus, state: NewChannelState(cal)}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewSPI connects to a DAC8568 on a SPI port with 8 bit frames
func NewSPI(p spi.Port, cfg SPIConfig, cal Calibration, opts ...Option) (*DAC8568, error) {
	if cfg.Frequency <= 0 || cfg.Frequency > MaxFrequency {
		return nil, &ValidationError{Field: "SPI frequency", Value: cfg.Frequency, Reason: "must be above zero and at most 50MHz"}
	}
	conn, err := p.Connect(cfg.Frequency, cfg.Mode, 8)
	if err != nil {
		return nil, fmt.Errorf("ti: connecting to SPI port: %w", err)
	}
	return New(conn, cal, opts...)
}

// Open opens a SPI port from the periph registry by name, "" for the
// first one, and connects to a DAC8568 on it.  The port is closed by Close.
// host.Init must have been called.
func Open(name string, cfg SPIConfig, cal Calibration, opts ...Option) (*DAC8568, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("ti: opening SPI port %q: %w", name, err)
	}
	d, err := NewSPI(p, cfg, cal, opts...)
	if err != nil {
		return nil, multierr.Append(err, p.Close())
	}
	d.port = p
	return d, nil
}

// Calibration returns the code to volts transform in use
func (d *DAC8568) Calibration() Calibration {
	return d.state.Calibration()
}

// send writes words to the bus in order, stopping at the first failure
func (d *DAC8568) send(op string, words ...Word) error {
	for _, w := range words {
		b := w.Bytes()
		if d.debug {
			log.Printf("dac8568 %s: %s", op, w)
		}
		if d.bus == nil {
			return &DeviceCommunicationError{Op: op, Word: w.Uint32(), Err: ErrClosed}
		}
		if err := d.bus.Tx(b[:], nil); err != nil {
			return &DeviceCommunicationError{Op: op, Word: w.Uint32(), Err: err}
		}
	}
	return nil
}

func checkChannel(ch Channel) error {
	if !ch.Valid() {
		return &ValidationError{Field: "channel", Value: int(ch), Reason: "must be 0-7 or AllChannels"}
	}
	return nil
}

func checkCode(code int) (uint16, error) {
	if code < 0 || code > FullScale {
		return 0, &ValidationError{Field: "code", Value: code, Reason: fmt.Sprintf("must be 0-%d", FullScale)}
	}
	return uint16(code), nil
}

func toChannel(i int) (Channel, error) {
	if i < 0 || i >= NumChannels {
		return 0, &ValidationError{Field: "channel", Value: i, Reason: "must be 0-7"}
	}
	return Channel(i), nil
}

// WriteChannel loads code into the input register of ch without changing
// its output.  Follow with UpdateChannel or UpdateAllFromInputRegisters.
func (d *DAC8568) WriteChannel(ch Channel, code int) error {
	d.Lock()
	defer d.Unlock()
	return d.writeChannel(ch, code)
}

func (d *DAC8568) writeChannel(ch Channel, code int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	c, err := checkCode(code)
	if err != nil {
		return err
	}
	if err = d.send("write input register", NewWord(WriteInput, ch, c, 0)); err != nil {
		return err
	}
	// channels in the LDAC mask go straight through to the output
	for i := Channel(0); i < NumChannels; i++ {
		if ch != AllChannels && ch != i {
			continue
		}
		if d.ldacMask&(1<<i) != 0 {
			d.state.SetApplied(i, c)
		} else {
			d.state.SetPending(i, c)
		}
	}
	return nil
}

// WriteAndUpdateChannel loads code into ch and applies it in one word
func (d *DAC8568) WriteAndUpdateChannel(ch Channel, code int) error {
	d.Lock()
	defer d.Unlock()
	return d.writeAndUpdateChannel(ch, code)
}

func (d *DAC8568) writeAndUpdateChannel(ch Channel, code int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	c, err := checkCode(code)
	if err != nil {
		return err
	}
	if err = d.send("write and update channel", NewWord(WriteUpdateChannel, ch, c, 0)); err != nil {
		return err
	}
	d.state.SetApplied(ch, c)
	return nil
}

// WriteAndUpdateAll sets every channel to code with one broadcast word
func (d *DAC8568) WriteAndUpdateAll(code int) error {
	d.Lock()
	defer d.Unlock()
	c, err := checkCode(code)
	if err != nil {
		return err
	}
	if err = d.send("write and update all", NewWord(WriteUpdateAll, AllChannels, c, 0)); err != nil {
		return err
	}
	d.state.SetAllApplied(c)
	return nil
}

// UpdateChannel applies the input register of ch to its output
func (d *DAC8568) UpdateChannel(ch Channel) error {
	d.Lock()
	defer d.Unlock()
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := d.send("update channel", NewWord(UpdateDAC, ch, 0, 0)); err != nil {
		return err
	}
	d.state.ConfirmApplied(ch)
	return nil
}

// UpdateAllFromInputRegisters applies every input register to its output
// at the same instant, the software equivalent of pulsing LDAC
func (d *DAC8568) UpdateAllFromInputRegisters() error {
	d.Lock()
	defer d.Unlock()
	return d.updateAll()
}

func (d *DAC8568) updateAll() error {
	if err := d.send("update all", NewWord(UpdateDAC, AllChannels, 0, 0)); err != nil {
		return err
	}
	d.state.ConfirmAll()
	return nil
}

// SetLDACMask writes the LDAC register.  Channels in the mask update as
// soon as their input register is written and ignore the LDAC pin; the
// rest wait for an update.  Call with no channels to clear the mask.
func (d *DAC8568) SetLDACMask(chs ...Channel) error {
	d.Lock()
	defer d.Unlock()
	mask, err := ChannelMask(chs...)
	if err != nil {
		return err
	}
	if err = d.send("load LDAC register", maskWord(LoadLDAC, 0, mask)); err != nil {
		return err
	}
	d.ldacMask = mask
	return nil
}

// LDACMask returns the last mask written to the LDAC register
func (d *DAC8568) LDACMask() uint8 {
	d.Lock()
	defer d.Unlock()
	return d.ldacMask
}

// SelectClearCode chooses the code the part loads when CLR is asserted,
// without asserting it
func (d *DAC8568) SelectClearCode(c ClearCode) error {
	d.Lock()
	defer d.Unlock()
	return d.selectClearCode(c)
}

func (d *DAC8568) selectClearCode(c ClearCode) error {
	if c > ClearIgnore {
		return &ValidationError{Field: "clear code", Value: int(c), Reason: "must be 0-3"}
	}
	if err := d.send("clear code select", NewWord(ClearCodeSelect, 0, 0, uint8(c))); err != nil {
		return err
	}
	d.clearCode = c
	return nil
}

func (d *DAC8568) clearAll(c ClearCode) error {
	if err := d.selectClearCode(c); err != nil {
		return err
	}
	if d.clr != nil {
		if err := d.pulseClear(); err != nil {
			return err
		}
	}
	d.state.SetAllApplied(c.code())
	return nil
}

// ClearAllToZero sets every output to zero scale
func (d *DAC8568) ClearAllToZero() error {
	d.Lock()
	defer d.Unlock()
	return d.clearAll(ClearToZero)
}

// ClearAllToMid sets every output to mid scale
func (d *DAC8568) ClearAllToMid() error {
	d.Lock()
	defer d.Unlock()
	return d.clearAll(ClearToMid)
}

// ClearAllToFull sets every output to full scale
func (d *DAC8568) ClearAllToFull() error {
	d.Lock()
	defer d.Unlock()
	return d.clearAll(ClearToFull)
}

func (d *DAC8568) pulseClear() error {
	if err := d.clr.Out(gpio.Low); err != nil {
		return &DeviceCommunicationError{Op: "assert CLR", Err: err}
	}
	if err := d.clr.Out(gpio.High); err != nil {
		return &DeviceCommunicationError{Op: "release CLR", Err: err}
	}
	return nil
}

// HardwareClear pulses the CLR pin, loading the selected clear code
// into every channel.  The part must have been built WithClearPin.
func (d *DAC8568) HardwareClear() error {
	d.Lock()
	defer d.Unlock()
	if d.clr == nil {
		return fmt.Errorf("ti: no CLR pin configured")
	}
	if err := d.pulseClear(); err != nil {
		return err
	}
	if d.clearCode != ClearIgnore {
		d.state.SetAllApplied(d.clearCode.code())
	}
	return nil
}

// PowerUp powers up the given channels
func (d *DAC8568) PowerUp(chs ...Channel) error {
	d.Lock()
	defer d.Unlock()
	return d.power(0, chs)
}

// PowerDown powers down the given channels, terminating them per mode
func (d *DAC8568) PowerDown(mode PowerDownMode, chs ...Channel) error {
	d.Lock()
	defer d.Unlock()
	if mode < PowerDown1K || mode > PowerDownHiZ {
		return &ValidationError{Field: "power down mode", Value: int(mode), Reason: "must be 1-3"}
	}
	return d.power(mode, chs)
}

func (d *DAC8568) power(mode PowerDownMode, chs []Channel) error {
	if len(chs) == 0 {
		return &ValidationError{Field: "channels", Value: chs, Reason: "at least one channel is required"}
	}
	mask, err := ChannelMask(chs...)
	if err != nil {
		return err
	}
	op := "power up"
	if mode != 0 {
		op = "power down"
	}
	if err = d.send(op, maskWord(PowerDAC, uint8(mode), mask)); err != nil {
		return err
	}
	for i := Channel(0); i < NumChannels; i++ {
		if util.GetBit(mask, uint(i)) {
			d.state.SetPowered(i, mode == 0)
		}
	}
	return nil
}

// EnableInternalReference powers up the internal 2.5 V reference.  The
// reference cannot be turned back off short of a reset, so a second call
// sends nothing and returns nil.
func (d *DAC8568) EnableInternalReference() error {
	d.Lock()
	defer d.Unlock()
	return d.enableInternalReference()
}

func (d *DAC8568) enableInternalReference() error {
	if d.refOn {
		return nil
	}
	if err := d.send("enable internal reference", NewWord(InternalRefFlexible, 0, internalRefOn, 0)); err != nil {
		return err
	}
	d.refOn = true
	return nil
}

// InternalReferenceEnabled returns true once EnableInternalReference has succeeded
func (d *DAC8568) InternalReferenceEnabled() bool {
	d.Lock()
	defer d.Unlock()
	return d.refOn
}

// SoftwareReset returns the part to its power on state and forgets
// everything known about the outputs
func (d *DAC8568) SoftwareReset() error {
	d.Lock()
	defer d.Unlock()
	return d.softwareReset()
}

func (d *DAC8568) softwareReset() error {
	if err := d.send("software reset", NewWord(SoftwareReset, 0, 0, 0)); err != nil {
		return err
	}
	d.state.Reset()
	d.refOn = false
	d.ldacMask = 0
	d.clearCode = ClearToZero
	return nil
}

// Init resets the part, enables the internal reference, and powers up
// every channel
func (d *DAC8568) Init() error {
	d.Lock()
	defer d.Unlock()
	if err := d.softwareReset(); err != nil {
		return err
	}
	if err := d.enableInternalReference(); err != nil {
		return err
	}
	return d.power(0, []Channel{AllChannels})
}

// CurrentCode returns the output code of ch as last commanded
func (d *DAC8568) CurrentCode(ch Channel) (uint16, error) {
	d.Lock()
	defer d.Unlock()
	return d.state.CurrentCode(ch)
}

// CurrentVoltage returns the output voltage of ch as last commanded.
// A channel that has never been powered up is still reported, with a
// warning in the log, since its output may not match.
func (d *DAC8568) CurrentVoltage(ch Channel) (float64, error) {
	d.Lock()
	defer d.Unlock()
	v, err := d.state.CurrentVoltage(ch)
	if err != nil {
		return 0, err
	}
	if !d.state.Powered(ch) {
		log.Printf("dac8568: channel %s has not been powered up, readback of %.4f V may be stale", ch, v)
	}
	return v, nil
}

// Reading is the bookkeeping of one channel
type Reading struct {
	Channel Channel `json:"channel"`
	Code    uint16  `json:"code"`
	Volts   float64 `json:"volts"`
	Powered bool    `json:"powered"`
}

// Reading returns the last commanded code and voltage of ch, and whether
// it is powered
func (d *DAC8568) Reading(ch Channel) (Reading, error) {
	d.Lock()
	defer d.Unlock()
	code, err := d.state.CurrentCode(ch)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Channel: ch,
		Code:    code,
		Volts:   d.state.Calibration().Voltage(code),
		Powered: d.state.Powered(ch)}, nil
}

// Close releases the bus.  The part keeps its outputs; later operations
// fail with ErrClosed.  A bus which is an io.Closer is closed, as is the
// port opened by Open.
func (d *DAC8568) Close() error {
	d.Lock()
	defer d.Unlock()
	var err error
	if c, ok := d.bus.(io.Closer); ok {
		err = c.Close()
	}
	if d.port != nil {
		err = multierr.Append(err, d.port.Close())
		d.port = nil
	}
	d.bus = nil
	return err
}

// Powered returns true if ch has been powered up since the last reset
func (d *DAC8568) Powered(ch Channel) bool {
	d.Lock()
	defer d.Unlock()
	return d.state.Powered(ch)
}

// OutputFraction sets ch to a fraction of full scale, 0 <= f <= 1
func (d *DAC8568) OutputFraction(ch Channel, f float64) error {
	if !(f >= 0 && f <= 1) {
		return &ValidationError{Field: "fraction", Value: f, Reason: "must be between 0 and 1"}
	}
	return d.WriteAndUpdateChannel(ch, int(f*FullScale))
}

// Output writes a voltage to a channel and applies it
func (d *DAC8568) Output(channel int, voltage float64) error {
	ch, err := toChannel(channel)
	if err != nil {
		return err
	}
	code, err := d.Calibration().Code(voltage)
	if err != nil {
		return err
	}
	return d.WriteAndUpdateChannel(ch, int(code))
}

// OutputDN16 writes a code to a channel and applies it
func (d *DAC8568) OutputDN16(channel int, code uint16) error {
	ch, err := toChannel(channel)
	if err != nil {
		return err
	}
	return d.WriteAndUpdateChannel(ch, int(code))
}

// OutputMulti writes voltages to several channels, then applies them all
// at once.  Every input is checked before anything is sent.
func (d *DAC8568) OutputMulti(channels []int, voltages []float64) error {
	if len(channels) != len(voltages) {
		return &ValidationError{Field: "voltages", Value: len(voltages), Reason: fmt.Sprintf("need one per channel, got %d channels", len(channels))}
	}
	cal := d.Calibration()
	codes := make([]uint16, len(voltages))
	for i, v := range voltages {
		c, err := cal.Code(v)
		if err != nil {
			return err
		}
		codes[i] = c
	}
	return d.OutputMultiDN16(channels, codes)
}

// OutputMultiDN16 writes codes to several channels, then applies them all
// at once
func (d *DAC8568) OutputMultiDN16(channels []int, codes []uint16) error {
	if len(channels) != len(codes) {
		return &ValidationError{Field: "codes", Value: len(codes), Reason: fmt.Sprintf("need one per channel, got %d channels", len(channels))}
	}
	chs := make([]Channel, len(channels))
	for i, c := range channels {
		ch, err := toChannel(c)
		if err != nil {
			return err
		}
		chs[i] = ch
	}
	d.Lock()
	defer d.Unlock()
	for i, ch := range chs {
		if err := d.writeChannel(ch, int(codes[i])); err != nil {
			return err
		}
	}
	return d.updateAll()
}

// BufferDN16 writes a code to the input register of a channel
func (d *DAC8568) BufferDN16(channel int, code uint16) error {
	ch, err := toChannel(channel)
	if err != nil {
		return err
	}
	return d.WriteChannel(ch, int(code))
}

// Buffer writes a voltage to the input register of a channel
func (d *DAC8568) Buffer(channel int, voltage float64) error {
	code, err := d.Calibration().Code(voltage)
	if err != nil {
		return err
	}
	return d.BufferDN16(channel, code)
}

// UpdateAll is UpdateAllFromInputRegisters
func (d *DAC8568) UpdateAll() error {
	return d.UpdateAllFromInputRegisters()
}

// Clear sets every output to the named clear code, "zero", "mid", or "full"
func (d *DAC8568) Clear(level string) error {
	c, err := ParseClearCode(level)
	if err != nil {
		return err
	}
	if c == ClearIgnore {
		return &ValidationError{Field: "clear code", Value: level, Reason: "cannot clear to ignore"}
	}
	d.Lock()
	defer d.Unlock()
	return d.clearAll(c)
}

// Reset is SoftwareReset
func (d *DAC8568) Reset() error {
	return d.SoftwareReset()
}

// Voltage returns the last commanded voltage of a channel
func (d *DAC8568) Voltage(channel int) (float64, error) {
	ch, err := toChannel(channel)
	if err != nil {
		return 0, err
	}
	return d.CurrentVoltage(ch)
}

// SetChannelPower powers a channel up, or down to high impedance
func (d *DAC8568) SetChannelPower(channel int, on bool) error {
	ch, err := toChannel(channel)
	if err != nil {
		return err
	}
	if on {
		return d.PowerUp(ch)
	}
	return d.PowerDown(PowerDownHiZ, ch)
}

// GetChannelPower returns true if a channel is powered up
func (d *DAC8568) GetChannelPower(channel int) (bool, error) {
	ch, err := toChannel(channel)
	if err != nil {
		return false, err
	}
	return d.Powered(ch), nil
}
