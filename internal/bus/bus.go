// Package bus implements the pub/sub transport that carries fixes in and
// results out (§6, §FULL-4.8). No MQTT or pub/sub client exists anywhere in
// the example corpus this engine is built against, so the bus is a TCP
// reconnect-queue transport adapted from the RBC sender's fan-out pattern,
// framed as newline-delimited JSON rather than the RBC wire format.
package bus

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// Publisher sends one message to a topic (here, a destination address).
type Publisher interface {
	Publish(payload []byte) error
	Start() error
	Stop()
}

// Subscriber delivers each received message to handler until ctx is
// cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func([]byte)) error
}

// TCPPublisher fans one logical output stream out to a set of TCP peers,
// each with its own bounded queue, reconnect-with-backoff, and
// drop-when-full semantics — generalized from the teacher's
// rbc.Sender/TcpClient pair.
type TCPPublisher struct {
	clients []*tcpClient
}

// NewTCPPublisher returns a publisher fanning out to addrs.
func NewTCPPublisher(addrs []string) *TCPPublisher {
	p := &TCPPublisher{}
	for _, addr := range addrs {
		p.clients = append(p.clients, &tcpClient{addr: addr, queue: make(chan []byte, 1000)})
	}
	return p
}

// Start launches one writer goroutine per configured peer.
func (p *TCPPublisher) Start() error {
	for _, c := range p.clients {
		c.start()
	}
	return nil
}

// Stop closes every peer's queue and waits for its writer goroutine to
// exit. Messages still waiting in a queue are discarded, not sent.
func (p *TCPPublisher) Stop() {
	for _, c := range p.clients {
		c.stop()
	}
}

// Publish enqueues payload (one JSON-encoded message, newline-terminated on
// the wire) to every configured peer. If a peer's queue is full the message
// is dropped for that peer and the drop is logged; Publish returns nil.
func (p *TCPPublisher) Publish(payload []byte) error {
	framed := make([]byte, len(payload)+1)
	copy(framed, payload)
	framed[len(payload)] = '\n'

	for _, c := range p.clients {
		select {
		case c.queue <- framed:
		default:
			log.Printf("bus: dropping message to %s, queue full", c.addr)
		}
	}
	return nil
}

type tcpClient struct {
	addr    string
	queue   chan []byte
	running bool
	wg      sync.WaitGroup
}

func (c *tcpClient) start() {
	c.running = true
	c.wg.Add(1)
	go c.loop()
}

func (c *tcpClient) stop() {
	c.running = false
	close(c.queue)
	c.wg.Wait()
}

func (c *tcpClient) loop() {
	defer c.wg.Done()
	var conn net.Conn

	connect := func() bool {
		if conn != nil {
			return true
		}
		var err error
		conn, err = net.DialTimeout("tcp", c.addr, 2*time.Second)
		return err == nil
	}

	for msg := range c.queue {
		if !c.running {
			break
		}
		if !connect() {
			time.Sleep(500 * time.Millisecond)
			if !connect() {
				continue // drop this message
			}
		}

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := conn.Write(msg); err != nil {
			log.Printf("bus: write to %s failed: %v", c.addr, err)
			conn.Close()
			conn = nil
			time.Sleep(100 * time.Millisecond)
		}
	}
	if conn != nil {
		conn.Close()
	}
}

// TCPSubscriber listens on one TCP address and delivers each
// newline-delimited message it receives to the handler passed to Subscribe.
// Multiple concurrent publisher connections are accepted; each is read on
// its own goroutine.
type TCPSubscriber struct {
	Addr string
}

// Subscribe blocks, accepting connections and dispatching lines to handler,
// until ctx is cancelled.
func (s *TCPSubscriber) Subscribe(ctx context.Context, handler func([]byte)) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			scanner := bufio.NewScanner(conn)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := append([]byte(nil), scanner.Bytes()...)
				handler(line)
			}
		}()
	}
}
