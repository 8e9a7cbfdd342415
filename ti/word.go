package ti

import (
	"fmt"
	"strings"

	"github.com/nasa-jpl/cavitytune/util"
)

// Command is a four bit DAC8568 control code
type Command uint8

// Command codes, from table 8 of the DAC8568 datasheet
const (
	// WriteInput writes to the input register of one channel without changing the output
	WriteInput Command = 0x0

	// UpdateDAC moves the input register of a channel (or all) to its output
	UpdateDAC Command = 0x1

	// WriteUpdateAll writes the input register of a channel and updates every output
	WriteUpdateAll Command = 0x2

	// WriteUpdateChannel writes and updates a single channel
	WriteUpdateChannel Command = 0x3

	// PowerDAC powers channels up or down, the mode bits select which
	PowerDAC Command = 0x4

	// ClearCodeSelect chooses the code loaded when CLR is asserted
	ClearCodeSelect Command = 0x5

	// LoadLDAC writes the LDAC register, a per channel mask
	LoadLDAC Command = 0x6

	// SoftwareReset returns the part to its power on state
	SoftwareReset Command = 0x7

	// InternalRefStatic configures the internal reference in static mode
	InternalRefStatic Command = 0x8

	// InternalRefFlexible configures the internal reference in flexible mode
	InternalRefFlexible Command = 0x9

	// UnknownCommand is produced by Decode for codes outside the table
	UnknownCommand Command = 0xFF
)

var commandNames = map[Command]string{
	WriteInput:          "WriteInput",
	UpdateDAC:           "UpdateDAC",
	WriteUpdateAll:      "WriteUpdateAll",
	WriteUpdateChannel:  "WriteUpdateChannel",
	PowerDAC:            "PowerDAC",
	ClearCodeSelect:     "ClearCodeSelect",
	LoadLDAC:            "LoadLDAC",
	SoftwareReset:       "SoftwareReset",
	InternalRefStatic:   "InternalRefStatic",
	InternalRefFlexible: "InternalRefFlexible",
}

// String satisfies fmt.Stringer
func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%#x)", uint8(c))
}

// Known returns true if c is in the datasheet command table
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// Channel is a DAC8568 channel address
type Channel uint8

// channel addresses; A through H are 0 through 7
const (
	ChannelA Channel = iota
	ChannelB
	ChannelC
	ChannelD
	ChannelE
	ChannelF
	ChannelG
	ChannelH

	// AllChannels is the broadcast address
	AllChannels Channel = 0xF

	// NumChannels is the number of outputs on the part
	NumChannels = 8
)

// Valid returns true if c is 0..7 or AllChannels
func (c Channel) Valid() bool {
	return c < NumChannels || c == AllChannels
}

// String returns the letter name of the channel, or ALL
func (c Channel) String() string {
	switch {
	case c == AllChannels:
		return "ALL"
	case c < NumChannels:
		return string(rune('A' + c))
	default:
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
}

// ParseChannel converts a letter name (A-H or ALL) or a digit (0-7) to a Channel
func ParseChannel(s string) (Channel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "ALL" {
		return AllChannels, nil
	}
	if len(s) == 1 {
		b := s[0]
		switch {
		case b >= 'A' && b <= 'H':
			return Channel(b - 'A'), nil
		case b >= '0' && b <= '7':
			return Channel(b - '0'), nil
		}
	}
	return 0, &ValidationError{Field: "channel", Value: s, Reason: "must be A-H, 0-7, or ALL"}
}

// ChannelMask builds the 8 bit mask used by the power and LDAC commands.
// Bit n is channel n, AllChannels sets every bit.
func ChannelMask(chans ...Channel) (uint8, error) {
	var mask uint8
	for _, c := range chans {
		if !c.Valid() {
			return 0, &ValidationError{Field: "channel", Value: int(c), Reason: "must be 0-7 or AllChannels"}
		}
		if c == AllChannels {
			mask = 0xFF
			continue
		}
		mask = util.SetBit(mask, uint(c), true)
	}
	return mask, nil
}

// Word is one 32 bit DAC8568 input shift register frame.
//
// Layout, MSB first:
//
//	31..28 prefix
//	27..24 control (Command)
//	23..20 address (Channel)
//	19..4  data
//	 3..0  feature
type Word struct {
	Prefix  uint8
	Command Command
	// Code is the raw control nibble; it differs from Command only when
	// Command is UnknownCommand
	Code    uint8
	Channel Channel
	Data    uint16
	Feature uint8
}

// NewWord returns a Word for a known command
func NewWord(cmd Command, ch Channel, data uint16, feature uint8) Word {
	return Word{Command: cmd, Code: uint8(cmd) & 0xF, Channel: ch, Data: data, Feature: feature}
}

// maskWord builds a word for the commands which carry a mode and a channel
// mask in the low bits.  Word bits 7..0 straddle data[3:0] and the feature
// nibble, and the power down mode sits at word bits 9..8.
func maskWord(cmd Command, mode uint8, mask uint8) Word {
	data := uint16(mode&0x3)<<4 | uint16(mask>>4)
	return NewWord(cmd, 0, data, mask&0xF)
}

// Bytes packs the word for transmission, most significant byte first
func (w Word) Bytes() [4]byte {
	cmd := w.Command
	if cmd == UnknownCommand {
		cmd = Command(w.Code)
	}
	return Encode(cmd, w.Channel, w.Data, w.Feature, w.Prefix)
}

// Uint32 returns the word as a single integer
func (w Word) Uint32() uint32 {
	b := w.Bytes()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Mask returns word bits 7..0, the channel mask of power and LDAC commands
func (w Word) Mask() uint8 {
	return uint8(w.Data&0xF)<<4 | w.Feature&0xF
}

// String satisfies fmt.Stringer
func (w Word) String() string {
	return fmt.Sprintf("%s ch=%s data=%#04x feature=%#x [%#08x]", w.Command, w.Channel, w.Data, w.Feature, w.Uint32())
}

// Encode packs the fields of a command word into four bytes.  Fields wider
// than their slot are truncated; validating them is the caller's job.
// An optional prefix nibble may be supplied; it is zero for the DAC8568.
func Encode(cmd Command, ch Channel, data uint16, feature uint8, prefix ...uint8) [4]byte {
	var pre uint8
	if len(prefix) > 0 {
		pre = prefix[0]
	}
	return [4]byte{
		(pre&0xF)<<4 | uint8(cmd)&0xF,
		uint8(ch&0xF)<<4 | uint8(data>>12),
		uint8(data >> 4),
		uint8(data&0xF)<<4 | feature&0xF,
	}
}

// Decode unpacks four bytes into a Word.  It never fails; control codes
// outside the command table decode to UnknownCommand with Code set.
func Decode(b [4]byte) Word {
	code := b[0] & 0xF
	cmd := Command(code)
	if !cmd.Known() {
		cmd = UnknownCommand
	}
	return Word{
		Prefix:  b[0] >> 4,
		Command: cmd,
		Code:    code,
		Channel: Channel(b[1] >> 4),
		Data:    uint16(b[1]&0xF)<<12 | uint16(b[2])<<4 | uint16(b[3]>>4),
		Feature: b[3] & 0xF,
	}
}

// DecodeSlice is Decode for a byte slice, which must be four bytes long
func DecodeSlice(b []byte) (Word, error) {
	if len(b) != 4 {
		return Word{}, fmt.Errorf("ti: command word must be 4 bytes, got %d", len(b))
	}
	return Decode([4]byte{b[0], b[1], b[2], b[3]}), nil
}
