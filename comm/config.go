package comm

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nasa-jpl/cavitytune/usbtmc"
)

// transports understood by Config
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
	TransportUSBTMC = "usbtmc"
)

// Config describes how to reach a line oriented instrument
type Config struct {
	// Addr is a serial port (/dev/ttyUSB0, COM3) or host:port
	Addr string `yaml:"Addr"`

	// Transport is serial, tcp, or usbtmc.  Empty infers serial or tcp from
	// Addr
	Transport string `yaml:"Transport"`

	// Baud is the serial baud rate
	Baud int `yaml:"Baud"`

	// VID and PID select a USBTMC device
	VID uint16 `yaml:"VID"`
	PID uint16 `yaml:"PID"`

	// Timeout is the read/write deadline; zero is DefaultTimeout
	Timeout time.Duration `yaml:"Timeout"`

	// Terminators, if nil, defaults to carriage returns
	Terminators *Terminators `yaml:"-"`
}

// transport returns the resolved transport name
func (c Config) transport() string {
	t := strings.ToLower(c.Transport)
	if t != "" {
		return t
	}
	if strings.Contains(c.Addr, ":") && !strings.HasPrefix(strings.ToUpper(c.Addr), "COM") {
		return TransportTCP
	}
	return TransportSerial
}

// NewFromConfig builds an unopened RemoteDevice from a Config
func NewFromConfig(c Config) (*RemoteDevice, error) {
	to := c.Timeout
	if to == 0 {
		to = DefaultTimeout
	}
	var rd RemoteDevice
	switch c.transport() {
	case TransportSerial:
		baud := c.Baud
		if baud == 0 {
			baud = 9600
		}
		rd = NewRemoteDevice(c.Addr, true, c.Terminators, SerialConfig(c.Addr, baud, to))
	case TransportTCP:
		rd = NewRemoteDevice(c.Addr, false, c.Terminators, nil)
	case TransportUSBTMC:
		rd = NewRemoteDevice(fmt.Sprintf("usb:%04x:%04x", c.VID, c.PID), false, c.Terminators, nil)
		vid, pid := c.VID, c.PID
		rd.Maker = func() (io.ReadWriteCloser, error) {
			return usbtmc.NewDevice(vid, pid)
		}
	default:
		return nil, fmt.Errorf("comm: unknown transport %q", c.Transport)
	}
	rd.Timeout = to
	return &rd, nil
}
