/*Package comm provides a line oriented connection to lab hardware over a
serial port, a TCP socket (e.g. a serial port server or LAN gateway), or any
other io.ReadWriteCloser the caller knows how to make.

Most usages of this package boil down to:
	1.  build a RemoteDevice with NewRemoteDevice, giving the terminators and,
		for RS232, a serial.Config
	2.  Open it; the connection is retried with an exponential backoff
	3.  exchange lines with WriteLine and ReadLine, or bytes with Send and Recv

A minimal example for an instrument that responds to "*IDN?" with its
identity, terminated by newlines:

	term := comm.Terminators{Tx: '\n', Rx: '\n'}
	rd := comm.NewRemoteDevice("192.168.100.123:5000", false, &term, nil)
	if err := rd.Open(); err != nil {
		return err
	}
	defer rd.Close()
	id, err := rd.Query("*IDN?")
*/
package comm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

const (
	// DefaultTimeout is the per operation deadline used when none is given
	DefaultTimeout = 3 * time.Second

	terminator = byte('\r')
)

var (
	// ErrNoSerialConf is generated when IsSerial is true but there is no serial config
	ErrNoSerialConf = errors.New("comm: serial device has no serial config")

	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("comm: conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("comm: termination byte not found")

	// ErrTimeout is generated when the remote does not answer within the deadline
	ErrTimeout = errors.New("comm: timeout waiting for remote")
)

// Terminators holds the transmission and receipt termination bytes
type Terminators struct {
	Tx byte
	Rx byte
}

// CreationFunc is a function which returns a new "connection" to something.
// A closure should be used to encapsulate the variables and functions needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// deadliner is satisfied by net.Conn
type deadliner interface {
	SetDeadline(time.Time) error
}

/*RemoteDevice has an address and exchanges terminated messages with it.

When Maker is not nil it is used to open the connection; otherwise IsSerial
selects between a serial port at Addr and a TCP socket at Addr.

The device is concurrent safe; each Send, Recv, or Query holds its lock.
*/
type RemoteDevice struct {
	sync.Mutex

	Addr     string
	IsSerial bool
	Conn     io.ReadWriteCloser

	// Maker, if not nil, replaces the serial/TCP dialer
	Maker CreationFunc

	// Timeout bounds each read and write on connections which support deadlines
	Timeout time.Duration

	term   Terminators
	serCfg *serial.Config
	rdr    *bufio.Reader
}

// NewRemoteDevice creates a new RemoteDevice instance.  A nil
// terminators uses carriage returns in both directions.
func NewRemoteDevice(addr string, serial bool, term *Terminators, serCfg *serial.Config) RemoteDevice {
	if term == nil {
		term = &Terminators{Tx: terminator, Rx: terminator}
	}
	return RemoteDevice{
		Addr:     addr,
		IsSerial: serial,
		Timeout:  DefaultTimeout,
		term:     *term,
		serCfg:   serCfg}
}

// Open the connection, setting the Conn variable.  Opening an open
// device is a no-op.
func (rd *RemoteDevice) Open() error {
	rd.Lock()
	defer rd.Unlock()
	if rd.Conn != nil {
		return nil
	}
	// remotes behind port servers do not like being connection thrashed,
	// so back off exponentially; a refused connection is permanent
	op := func() error {
		err := rd.open()
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "refused") {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("comm: opening %s: %w", rd.Addr, err)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var (
		err  error
		conn io.ReadWriteCloser
	)
	switch {
	case rd.Maker != nil:
		conn, err = rd.Maker()
	case rd.IsSerial:
		if rd.serCfg == nil {
			return backoff.Permanent(ErrNoSerialConf)
		}
		conn, err = serial.OpenPort(rd.serCfg)
	default:
		conn, err = TCPSetup(rd.Addr, rd.timeout())
	}
	if err != nil {
		return err
	}
	rd.Conn = conn
	rd.rdr = bufio.NewReader(conn)
	return nil
}

func (rd *RemoteDevice) timeout() time.Duration {
	if rd.Timeout <= 0 {
		return DefaultTimeout
	}
	return rd.Timeout
}

// Close the connection, nil-ing the Conn variable
func (rd *RemoteDevice) Close() error {
	rd.Lock()
	defer rd.Unlock()
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	rd.Conn = nil
	rd.rdr = nil
	return err
}

// TxTerminator returns the transmission termination byte
func (rd *RemoteDevice) TxTerminator() byte {
	return rd.term.Tx
}

// RxTerminator returns the receipt termination byte
func (rd *RemoteDevice) RxTerminator() byte {
	return rd.term.Rx
}

func (rd *RemoteDevice) arm() {
	if d, ok := rd.Conn.(deadliner); ok {
		d.SetDeadline(time.Now().Add(rd.timeout()))
	}
}

// Send writes data to the remote, appending the Tx terminator
func (rd *RemoteDevice) Send(b []byte) error {
	rd.Lock()
	defer rd.Unlock()
	return rd.send(b)
}

func (rd *RemoteDevice) send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	rd.arm()
	buf := make([]byte, 0, len(b)+1)
	buf = append(append(buf, b...), rd.term.Tx)
	_, err := rd.Conn.Write(buf)
	return rd.timeoutErr(err)
}

// Recv receives data from the remote and strips the Rx terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	rd.Lock()
	defer rd.Unlock()
	return rd.recv()
}

func (rd *RemoteDevice) recv() ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	rd.arm()
	buf, err := rd.rdr.ReadBytes(rd.term.Rx)
	if err != nil {
		if len(buf) > 0 && err == io.EOF {
			return buf, ErrTerminatorNotFound
		}
		return buf, rd.timeoutErr(err)
	}
	return buf[:len(buf)-1], nil
}

// SendRecv sends a buffer after appending the Tx terminator,
// then returns the response with the Rx terminator stripped
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	rd.Lock()
	defer rd.Unlock()
	if err := rd.send(b); err != nil {
		return nil, err
	}
	return rd.recv()
}

// WriteLine sends one line of text
func (rd *RemoteDevice) WriteLine(s string) error {
	return rd.Send([]byte(s))
}

// ReadLine receives one line of text, with the terminator and any
// trailing carriage return removed
func (rd *RemoteDevice) ReadLine() (string, error) {
	b, err := rd.Recv()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// Query sends a line and returns the single line response
func (rd *RemoteDevice) Query(s string) (string, error) {
	b, err := rd.SendRecv([]byte(s))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// timeoutErr maps deadline failures to ErrTimeout.  tarm/serial reports an
// expired ReadTimeout as a zero length read, which bufio turns into
// io.ErrNoProgress or io.EOF.
func (rd *RemoteDevice) timeoutErr(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if rd.IsSerial && (errors.Is(err, io.ErrNoProgress) || errors.Is(err, io.EOF)) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// SerialConfig makes an 8N1 serial.Config for a port
func SerialConfig(addr string, baud int, timeout time.Duration) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout}
}
