package back

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

const (
	defaultQueueSize      = 1024
	defaultDialTimeoutMS  = 5000
	defaultWriteTimeoutMS = 10000
	defaultPingIntervalMS = 30000
)

// Config configures the uplink to the simulation back service.
type Config struct {
	// Endpoint is the websocket URL of the back service.
	Endpoint string `mapstructure:"endpoint"`

	QueueSize      int `mapstructure:"queueSize"`
	DialTimeoutMS  int `mapstructure:"dialTimeoutMs"`
	WriteTimeoutMS int `mapstructure:"writeTimeoutMs"`
	PingIntervalMS int `mapstructure:"pingIntervalMs"`
}

func (c *Config) fillDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.DialTimeoutMS <= 0 {
		c.DialTimeoutMS = defaultDialTimeoutMS
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = defaultWriteTimeoutMS
	}
	if c.PingIntervalMS <= 0 {
		c.PingIntervalMS = defaultPingIntervalMS
	}
}

// Handler receives messages the back pushes down to the gateway, e.g. admin
// notices targeted at a connected user.
type Handler interface {
	OnBackMessage(msg wire.ServerMessage)
}

// Forwarder maintains one websocket uplink to the back service and relays
// movement, signalling and moderation traffic over it.
//
// Forwarding is fire and forget: a full queue or a down link drops the
// message and counts it, it never blocks a client session goroutine.
type Forwarder struct {
	cfg   Config
	codec *wire.Codec

	handlerMu sync.RWMutex
	handler   Handler

	ctx    context.Context
	cancel context.CancelFunc

	sendQueue chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewForwarder creates a Forwarder and starts its connection loop.
// handler may be nil when inbound traffic is not needed.
func NewForwarder(parent context.Context, cfg Config, handler Handler) *Forwarder {
	cfg.fillDefaults()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	f := &Forwarder{
		cfg:       cfg,
		codec:     wire.NewCodec(),
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		sendQueue: make(chan []byte, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// SetHandler attaches (or replaces) the inbound handler. Messages pushed
// while no handler is attached are dropped.
func (f *Forwarder) SetHandler(h Handler) {
	f.handlerMu.Lock()
	f.handler = h
	f.handlerMu.Unlock()
}

func (f *Forwarder) getHandler() Handler {
	f.handlerMu.RLock()
	defer f.handlerMu.RUnlock()
	return f.handler
}

// Forward relays a client message upstream without waiting.
func (f *Forwarder) Forward(msg wire.ClientMessage) error {
	frame, err := f.codec.EncodeClient(msg)
	if err != nil {
		return err
	}

	select {
	case f.sendQueue <- frame:
		return nil
	default:
		metrics.ForwardErrors.WithLabelValues(msg.ClientKind().String()).Inc()
		return merr.WrapErrBackForward(uint32(msg.ClientKind()), "uplink queue full")
	}
}

// Close tears the uplink down and waits for the connection loop to exit.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() {
		f.cancel()
		<-f.done
	})
}

// run dials the back with exponential backoff and pumps the connection
// until the forwarder is closed. Each connection failure starts over.
func (f *Forwarder) run() {
	defer close(f.done)

	if f.cfg.Endpoint == "" {
		log.Info("back uplink disabled, no endpoint configured")
		<-f.ctx.Done()
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		conn, err := f.dial()
		if err != nil {
			if f.ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			log.Warn("back dial failed",
				zap.String("endpoint", f.cfg.Endpoint),
				zap.Duration("retryIn", wait),
				zap.Error(err))
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
		log.Info("back uplink established", zap.String("endpoint", f.cfg.Endpoint))
		f.pump(conn)
		_ = conn.Close()
		if f.ctx.Err() != nil {
			return
		}
		log.Warn("back uplink lost, reconnecting", zap.String("endpoint", f.cfg.Endpoint))
	}
}

func (f *Forwarder) dial() (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(f.ctx, time.Duration(f.cfg.DialTimeoutMS)*time.Millisecond)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.Endpoint, nil)
	if err != nil {
		return nil, merr.WrapErrBackUnavailable(f.cfg.Endpoint, err.Error())
	}
	return conn, nil
}

// pump writes queued frames and reads pushed messages until either side of
// the connection fails.
func (f *Forwarder) pump(conn *websocket.Conn) {
	readErr := make(chan error, 1)
	go func() {
		for {
			msgType, frame, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			msg, err := f.codec.DecodeServer(frame)
			if err != nil {
				log.Warn("back pushed undecodable frame", zap.Error(err))
				continue
			}
			if h := f.getHandler(); h != nil {
				h.OnBackMessage(msg)
			}
		}
	}()

	ping := time.NewTicker(time.Duration(f.cfg.PingIntervalMS) * time.Millisecond)
	defer ping.Stop()

	writeTimeout := time.Duration(f.cfg.WriteTimeoutMS) * time.Millisecond
	for {
		select {
		case <-f.ctx.Done():
			deadline := time.Now().Add(writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(wire.CloseNormal, ""), deadline)
			return
		case err := <-readErr:
			log.Warn("back uplink read failed", zap.Error(err))
			return
		case <-ping.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case frame := <-f.sendQueue:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Warn("back uplink write failed", zap.Error(err))
				return
			}
		}
	}
}
