package udp

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/miekg/dns"

	"github.com/treemana/quickdot/log"
)

func (s *Server) produce(packet []byte, remote *net.UDPAddr, sn uint64) {

	ctx, cancel := context.WithTimeout(s.ctx, defaultTimeout)
	defer cancel()

	response, err := s.handler.Handle(ctx, packet)
	if err != nil {
		log.Sugar.Warnf("sn=%d, remote=%s, handle error=[%+v]", sn, remote, err)
		return
	}

	s.respChan <- &dt{sn: sn, response: response, remote: remote}
}

func (s *Server) read() {
	defer close(s.readDone)

	bytes := make([]byte, dns.MaxMsgSize)
	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(bytes)
		if !s.status.Load() {
			log.Sugar.Info("server read after stopped")
			break
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Sugar.Warn("server read connection closed")
				break
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			log.Sugar.Error("server read error : ", err)
			continue
		}

		if n <= 0 {
			log.Sugar.Warn("server read 0 byte")
			continue
		}

		s.reqWG.Add(1)

		// make a copy of all bytes because ReadFrom() will overwrite contents of b on next call
		// we need the contents to survive the call because we're handling them in goroutine
		packet := make([]byte, n)
		copy(packet, bytes)

		go func(sn uint64) {
			s.produce(packet, remoteAddr, sn)
			s.reqWG.Done()
		}(s.serial.Add(1))
	}
}
