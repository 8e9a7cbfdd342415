/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices.  This is a 'minimum viable product' for the bulk
transfer mode, enough to carry the line protocol of a USB attached laser
source or controller.

It does not, for example, include features to support multi-packet
messaging, and thus assumes your data fits in the remote's buffer.

It also does not implement chatter / ping-pong for the case when data
does not fit in the remote buffer.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Allocate a receipt buffer
2.  Create a read header and send it on the Out endpoint
3.  Read from the In endpoint

These macros are implemented as Write() and Read() on the Device type defined
in this package, which is an io.ReadWriteCloser and can be handed to
comm.RemoteDevice as its Maker.
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

const (
	// reserved is the byte to insert when the field is unused
	reserved = 0x00

	headerSize = 12

	// bulk transfers are padded to this many bytes
	alignment = 4

	// bufSize is the largest response accepted, one TCP MTU, not related to
	// USB but pretty big, good enough for line protocols
	bufSize = 1500

	msgDevDepOut   = 0x01
	msgRequestIn   = 0x02
	bulkEndpointNo = 2
)

// BTagger can generate atomic bTags
type BTagger interface {
	nextbTag() byte
}

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	// embedded mutex for concurrent safety
	sync.Mutex

	value byte
	min   byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{value: 0, min: 1}
}

// nextbTag returns 1..255, skipping zero on wrap
func (b *bTagGen) nextbTag() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value < b.min {
		b.value = b.min
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(btag BTagger, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	/* data map by offset:
	0 MsgID, DEV_DEP_MSG_OUT
	1 bTag, a single byte 1 < x < 255, unique and incrementing with each message
	2 bTagInverse, a single byte, the bitwise inverse of bTag
	3 Reserved (0x00)
	4-7 transferSize, message bytes exclusive of header and alignment, LSB first
	8 bitmap, bit 0 is EOM
	9-11 reserved
	*/
	tag := btag.nextbTag()
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // every message is the whole message
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, puts 0x00 in the header and sets the bit to use it to false
func encBulkInHeader(btag BTagger, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	/* this differs from BulkOut by bytes 8~11
	8 bitmap, bit 1 enables the termination character
	9 terminator byte
	10~11 reserved
	*/
	tag := btag.nextbTag()
	out[0] = msgRequestIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// padded returns the header, data, and zero padding to a multiple of alignment
func padded(hdr [headerSize]byte, b []byte) []byte {
	n := headerSize + len(b)
	if residual := n % alignment; residual > 0 {
		n += alignment - residual
	}
	out := make([]byte, n)
	copy(out, hdr[:])
	copy(out[headerSize:], b)
	return out
}

// decBulkIn strips the header of a DEV_DEP_MSG_IN response and returns its payload
func decBulkIn(buf []byte) ([]byte, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("usbtmc: only received %d bytes, need at least %d to form header", len(buf), headerSize)
	}
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	data := buf[headerSize:]
	if size < len(data) {
		data = data[:size]
	}
	return data, nil
}

// Device hides the details of USB and exposes an io.ReadWriteCloser
type Device struct {
	// Terminator is the termination character the device is asked to end
	// responses on
	Terminator byte

	tagger BTagger
	ctx    *gousb.Context
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	device *gousb.Device
	iface  *gousb.Interface
	closer func()
}

// NewDevice opens the first USB device with the given vendor and product ID
func NewDevice(vid, pid uint16) (*Device, error) {
	var err error
	d := &Device{Terminator: '\n', tagger: newBTagGen(), ctx: gousb.NewContext()}
	d.device, err = d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		d.ctx.Close()
		return nil, err
	}
	if d.device == nil {
		d.ctx.Close()
		return nil, fmt.Errorf("usbtmc: no device with VID:PID %04x:%04x", vid, pid)
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, err
	}
	if d.in, err = d.iface.InEndpoint(bulkEndpointNo); err != nil {
		d.Close()
		return nil, err
	}
	if d.out, err = d.iface.OutEndpoint(bulkEndpointNo); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Read requests one message from the device and copies its payload into b
func (d *Device) Read(b []byte) (int, error) {
	term := d.Terminator
	hdr := encBulkInHeader(d.tagger, bufSize, &term)
	if _, err := d.out.Write(hdr[:]); err != nil {
		return 0, err
	}
	buf := make([]byte, bufSize+headerSize)
	n, err := d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	data, err := decBulkIn(buf[:n])
	if err != nil {
		return 0, err
	}
	return copy(b, data), nil
}

// Write sends b to the device as one message
func (d *Device) Write(b []byte) (int, error) {
	hdr := encBulkOutHeader(d.tagger, len(b))
	if _, err := d.out.Write(padded(hdr, b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close releases the interface, the device, and the USB context
func (d *Device) Close() error {
	if d.closer != nil {
		d.closer()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.ctx != nil {
		if cerr := d.ctx.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
