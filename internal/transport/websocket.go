package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/event-reserve/internal/protocol"
)

const (
	defaultSendBuffer = 64
	writeWait         = 10 * time.Second
)

var _ Transport = (*Conn)(nil)

type Option func(*Conn)

func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithSendBuffer sets how many outbound messages may wait for the socket.
func WithSendBuffer(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.sendBuffer = n
		}
	}
}

// WithBackOff replaces the reconnect policy. The factory is called once per
// Conn.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Conn) { c.newBackOff = fn }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// Conn is a websocket Transport that reconnects until it is closed.
type Conn struct {
	url        string
	dialer     *websocket.Dialer
	logger     *slog.Logger
	sendBuffer int
	newBackOff func() backoff.BackOff

	mu       sync.RWMutex
	handlers map[string][]Handler

	out       chan []byte
	in        chan protocol.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected atomic.Bool
	closeOnce sync.Once
}

// Connect starts a Conn for url. The first dial happens in the background;
// messages emitted before it succeeds wait in the send buffer.
func Connect(ctx context.Context, url string, opts ...Option) *Conn {
	c := &Conn{
		url:        url,
		dialer:     websocket.DefaultDialer,
		logger:     slog.Default(),
		sendBuffer: defaultSendBuffer,
		newBackOff: DefaultBackOff,
		handlers:   make(map[string][]Handler),
		in:         make(chan protocol.Envelope, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.out = make(chan []byte, c.sendBuffer)
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go c.run()
	go c.dispatch()
	return c
}

// DefaultBackOff retries forever, capping the wait at ten seconds.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c *Conn) On(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := c.handlers[name]
	c.handlers[name] = append(hs[:len(hs):len(hs)], h)
}

func (c *Conn) Emit(name string, payload any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	env, err := protocol.NewEnvelope(name, payload)
	if err != nil {
		return err
	}
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// Connected reports whether a socket is currently open.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Close stops reconnecting and closes the socket. Messages still in the
// send buffer are discarded.
func (c *Conn) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		err = nil
	})
	return err
}

func (c *Conn) run() {
	defer c.wg.Done()
	b := backoff.WithContext(c.newBackOff(), c.ctx)
	for {
		var ws *websocket.Conn
		err := backoff.Retry(func() error {
			conn, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
			if err != nil {
				c.logger.Debug("transport: dial failed", "url", c.url, "err", err)
				return err
			}
			ws = conn
			return nil
		}, b)
		if err != nil {
			return
		}
		b.Reset()

		c.logger.Info("transport: connected", "url", c.url)
		c.connected.Store(true)
		c.serve(ws)
		c.connected.Store(false)

		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("transport: connection lost, reconnecting", "url", c.url)
	}
}

// serve pumps one socket until it fails or the Conn is closed. Reads happen
// on a separate goroutine; writes happen here so send order is kept.
func (c *Conn) serve(ws *websocket.Conn) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(raw)
			if err != nil {
				c.logger.Warn("transport: dropping frame", "err", err)
				continue
			}
			select {
			case c.in <- env:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			ws.Close()
			<-readDone
			return
		case <-readDone:
			ws.Close()
			return
		case frame := <-c.out:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("transport: write failed, message dropped", "err", err)
				ws.Close()
				<-readDone
				return
			}
		}
	}
}

func (c *Conn) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.in:
			c.mu.RLock()
			hs := c.handlers[env.Type]
			c.mu.RUnlock()
			if len(hs) == 0 {
				c.logger.Debug("transport: no handler", "type", env.Type)
				continue
			}
			for _, h := range hs {
				h(c.ctx, env.Data)
			}
		}
	}
}
