// Package udp serves a Handler on a UDP socket.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/treemana/quickdot/log"
)

const (
	defaultTimeout = 10 * time.Second
)

// Handler answers one raw query.
type Handler interface {
	Handle(ctx context.Context, query []byte) ([]byte, error)
}

// dt carries one exchange from the reader to the writer.
type dt struct {
	sn       uint64
	response []byte
	remote   *net.UDPAddr
}

type Server struct {
	address *net.UDPAddr
	conn    *net.UDPConn
	handler Handler
	status  atomic.Bool // running status

	readDone chan struct{}

	reqWG sync.WaitGroup // in flight queries

	respWG   sync.WaitGroup
	respChan chan *dt // dns response

	serial   atomic.Uint64
	ctx      context.Context
	cancelFn context.CancelFunc
}

func New(ip net.IP, port int, handler Handler) (*Server, error) {

	if len(ip) == 0 {
		return nil, errors.New("invalid ip")
	}

	if port < 0 {
		return nil, fmt.Errorf("invalid port=%d", port)
	}

	if handler == nil {
		return nil, errors.New("nil handler")
	}

	s := Server{
		address:  &net.UDPAddr{Port: port, IP: ip},
		handler:  handler,
		readDone: make(chan struct{}),
		respChan: make(chan *dt),
	}

	if err := s.setConn(); err != nil {
		return nil, fmt.Errorf("set conn error=[%+v]", err)
	}

	s.ctx, s.cancelFn = context.WithCancel(context.Background())

	return &s, nil
}

// Addr returns the bound address, the port is resolved when 0 was requested.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) Start() {

	s.status.Store(true)

	s.respWG.Add(1)
	go s.write()
	go s.read()

	log.Sugar.Infof("server running on %s ...", s.Addr())

}

// Stop stops reading, waits for the queries in flight to be answered and
// closes the socket.
func (s *Server) Stop() {
	if !s.status.Swap(false) {
		return
	}

	log.Sugar.Info("server read stopping")
	// unblock the pending read
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		log.Sugar.Warnf("server udp connection set deadline error=[%+v]", err)
	}
	<-s.readDone
	log.Sugar.Info("server read stopped")

	log.Sugar.Info("server waiting all request done")
	s.reqWG.Wait()
	s.cancelFn()

	close(s.respChan)
	log.Sugar.Infof("server response chan closed, serial=%d", s.serial.Load())

	s.respWG.Wait()
	log.Sugar.Info("server write stopped")

	if err := s.conn.Close(); err != nil {
		log.Sugar.Errorf("server udp connection close error=[%+v]", err)
	}
}

func (s *Server) setConn() error {
	var err error
	if s.conn, err = net.ListenUDP("udp", s.address); err != nil {
		log.Sugar.Errorf("server udp [%s] listen error=[%+v]", s.address, err)
		return err
	}

	return nil
}
