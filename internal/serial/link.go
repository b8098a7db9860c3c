package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mixdeck-io/mixdeck/internal/clock"
)

// AckByte is the device's row acknowledgement and the end-of-image marker.
const AckByte byte = 0xFF

// maxLineLength bounds a single inbound line. Longer lines are dropped.
const maxLineLength = 4096

var (
	// ErrNotConnected is returned by writes while no session is live.
	// The data is dropped; the next connect publishes fresh state.
	ErrNotConnected = errors.New("serial: not connected")

	// ErrAckTimeout means the device went silent mid-transfer.
	ErrAckTimeout = errors.New("serial: acknowledgement timeout")

	errSessionClosed = errors.New("serial: session closed")
)

// State is the link state.
type State int32

const (
	Disconnected State = iota
	Connecting
	// Connected is the idle connected state: JSON lines flow both ways.
	Connected
	// Transferring means an image transfer owns the port. Inbound bytes
	// are acknowledgements, not lines.
	Transferring
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Transferring:
		return "transferring"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// IsConnected reports whether a session is live, idle or transferring.
func (s State) IsConnected() bool {
	return s == Connected || s == Transferring
}

// Options configures a Link.
type Options struct {
	// Name identifies the port in logs.
	Name string

	RetryInterval   time.Duration
	BootDelay       time.Duration
	AckPollInterval time.Duration
	// AckTimeout of zero waits for an acknowledgement forever.
	AckTimeout time.Duration

	Clock   clock.Clock
	Verbose bool
}

// Link keeps one serial session alive and arbitrates access to it.
type Link struct {
	opener Opener
	opts   Options
	clock  clock.Clock

	// mu is the serial-access lock. Every read and write of the port
	// happens with it held; image transfers hold it throughout.
	mu   sync.Mutex
	sess *session

	state atomic.Int32

	onConnect func()
	onLine    func([]byte)
	onState   func(State)
}

// session is one open port, from successful boot until failure.
type session struct {
	port Port
	done chan struct{}
	once sync.Once
	err  error
}

func newSession(port Port) *session {
	return &session{port: port, done: make(chan struct{})}
}

func (s *session) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// NewLink creates a link. Call Run to start connecting.
func NewLink(opener Opener, opts Options) *Link {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.AckPollInterval <= 0 {
		opts.AckPollInterval = time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Link{
		opener: opener,
		opts:   opts,
		clock:  opts.Clock,
	}
}

// OnConnect sets the hook run once per session, after the boot delay.
// Hooks must be set before Run.
func (l *Link) OnConnect(fn func()) { l.onConnect = fn }

// OnLine sets the handler for complete inbound lines. It runs on the
// listener goroutine without the serial-access lock held.
func (l *Link) OnLine(fn func([]byte)) { l.onLine = fn }

// OnStateChange sets the state observer. It may run with the
// serial-access lock held and must not call back into the Link.
func (l *Link) OnStateChange(fn func(State)) { l.onState = fn }

// State returns the current link state.
func (l *Link) State() State {
	return State(l.state.Load())
}

func (l *Link) setState(s State) {
	if old := State(l.state.Swap(int32(s))); old != s && l.onState != nil {
		l.onState(s)
	}
}

// Run connects and reconnects until ctx is cancelled.
func (l *Link) Run(ctx context.Context) error {
	defer l.setState(Disconnected)

	for {
		port, err := l.connect(ctx)
		if err != nil {
			return err
		}

		err = l.serve(ctx, port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[serial] Link to %s lost: %v", l.opts.Name, err)
	}
}

// connect opens the port, retrying on a constant backoff.
func (l *Link) connect(ctx context.Context) (Port, error) {
	b := backoff.WithContext(backoff.NewConstantBackOff(l.opts.RetryInterval), ctx)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.setState(Connecting)
		port, err := l.opener.Open()
		if err == nil {
			log.Printf("[serial] Opened %s after %d attempt(s)", l.opts.Name, attempt)
			return port, nil
		}
		l.setState(Disconnected)

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, ctx.Err()
		}
		if attempt == 1 || l.opts.Verbose {
			log.Printf("[serial] Failed to open %s: %v (retrying every %s)", l.opts.Name, err, wait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// serve runs one session and returns the error that ended it.
func (l *Link) serve(ctx context.Context, port Port) error {
	if l.opts.BootDelay > 0 {
		log.Printf("[serial] Waiting %s for the device to boot", l.opts.BootDelay)
		select {
		case <-ctx.Done():
			_ = port.Close()
			return ctx.Err()
		case <-l.clock.After(l.opts.BootDelay):
		}
	}

	s := newSession(port)
	l.mu.Lock()
	l.sess = s
	l.mu.Unlock()
	l.setState(Connected)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.listen(s)
	}()

	if l.onConnect != nil {
		l.onConnect()
	}

	select {
	case <-ctx.Done():
		s.fail(ctx.Err())
	case <-s.done:
	}

	_ = port.Close()
	l.mu.Lock()
	if l.sess == s {
		l.sess = nil
	}
	l.mu.Unlock()
	wg.Wait()

	l.setState(Disconnected)
	return s.err
}

// failLocked ends s. The caller holds mu.
func (l *Link) failLocked(s *session, err error) {
	if l.sess == s {
		l.sess = nil
	}
	s.fail(err)
}

// listen reads inbound bytes and splits them into lines until s ends.
func (l *Link) listen(s *session) {
	buf := make([]byte, 256)
	line := make([]byte, 0, 256)
	overflow := false

	for {
		n, err := l.read(s, buf)
		if err != nil {
			s.fail(err)
			return
		}

		for _, b := range buf[:n] {
			switch {
			case b == '\n':
				if !overflow && len(line) > 0 {
					l.dispatch(line)
				}
				line = line[:0]
				overflow = false
			case b == AckByte && len(line) == 0:
				// Late acknowledgement or end-of-image marker from the
				// device; only meaningful inside a transfer.
			case len(line) >= maxLineLength:
				overflow = true
			default:
				line = append(line, b)
			}
		}
	}
}

// read takes one chunk from the port. Transfer holds mu for its whole
// duration, so the listener never consumes acknowledgements.
func (l *Link) read(s *session, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sess != s {
		return 0, errSessionClosed
	}
	n, err := s.port.Read(buf)
	if err != nil {
		l.failLocked(s, err)
		return n, fmt.Errorf("read from %s: %w", l.opts.Name, err)
	}
	return n, nil
}

func (l *Link) dispatch(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return
	}
	if l.opts.Verbose {
		log.Printf("[serial] <-- %s", line)
	}
	if l.onLine != nil {
		l.onLine(bytes.Clone(line))
	}
}

// Send writes one newline-terminated frame. encode runs with the
// serial-access lock held, so the frame reflects state at send time.
func (l *Link) Send(encode func() ([]byte, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.sess
	if s == nil {
		return ErrNotConnected
	}

	data, err := encode()
	if err != nil {
		return err
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	if _, err := s.port.Write(frame); err != nil {
		l.failLocked(s, err)
		return fmt.Errorf("write to %s: %w", l.opts.Name, err)
	}
	if l.opts.Verbose {
		log.Printf("[serial] --> %s", data)
	}
	return nil
}

// WriteLine writes line followed by a newline.
func (l *Link) WriteLine(line []byte) error {
	return l.Send(func() ([]byte, error) { return line, nil })
}

// Conn is the port as seen during a transfer.
type Conn interface {
	Write(p []byte) (int, error)
	// ReadAck waits for one inbound byte.
	ReadAck() (byte, error)
}

// Transfer runs fn with exclusive use of the port. The state is
// Transferring until fn returns. I/O errors inside fn end the session;
// any other error fn returns leaves the link up.
func (l *Link) Transfer(fn func(Conn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.sess
	if s == nil {
		return ErrNotConnected
	}

	l.setState(Transferring)
	err := fn(&transferConn{link: l, sess: s})
	if l.sess == s {
		l.setState(Connected)
	}
	return err
}

type transferConn struct {
	link *Link
	sess *session
}

func (c *transferConn) Write(p []byte) (int, error) {
	n, err := c.sess.port.Write(p)
	if err != nil {
		c.link.failLocked(c.sess, err)
		return n, fmt.Errorf("write to %s: %w", c.link.opts.Name, err)
	}
	return n, nil
}

func (c *transferConn) ReadAck() (byte, error) {
	var (
		one      [1]byte
		deadline time.Time
		clk      = c.link.clock
	)
	if c.link.opts.AckTimeout > 0 {
		deadline = clk.Now().Add(c.link.opts.AckTimeout)
	}

	for {
		select {
		case <-c.sess.done:
			return 0, ErrNotConnected
		default:
		}

		n, err := c.sess.port.Read(one[:])
		if err != nil {
			c.link.failLocked(c.sess, err)
			return 0, fmt.Errorf("read from %s: %w", c.link.opts.Name, err)
		}
		if n == 1 {
			return one[0], nil
		}
		if !deadline.IsZero() && !clk.Now().Before(deadline) {
			c.link.failLocked(c.sess, ErrAckTimeout)
			return 0, ErrAckTimeout
		}
		clk.Sleep(c.link.opts.AckPollInterval)
	}
}
