package udp

import (
	"time"

	"github.com/treemana/quickdot/log"
)

func (s *Server) write() {
	defer s.respWG.Done()

	for d := range s.respChan {

		if len(d.response) == 0 {
			log.Sugar.Errorf("sn=%d empty response", d.sn)
			continue
		}

		if d.remote == nil {
			log.Sugar.Debugf("sn=%d, remote addr nil", d.sn)
			continue
		}

		if err := s.conn.SetWriteDeadline(time.Now().Add(defaultTimeout)); err != nil {
			log.Sugar.Errorf("sn=%d, server udp connection set deadline error=[%+v]", d.sn, err)
			continue
		}

		if _, err := s.conn.WriteToUDP(d.response, d.remote); err != nil {
			log.Sugar.Errorf("sn=%d, udp connection write error=[%+v]", d.sn, err)
			// do not set break, s.respChan need be empty
			continue
		}

		log.Sugar.Debugf("sn=%d, remote=%s, answer %d bytes", d.sn, d.remote, len(d.response))
	}
}
