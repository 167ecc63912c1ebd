package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/matching"
	"fenrir/internal/transport"
	"fenrir/internal/wire"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
	defaultLimit       = 8
)

// clientSession is the connection a gateway is currently reading an
// owner's requests from and will write Reports back to.
type clientSession struct {
	conn net.Conn
}

type clientMessage struct {
	clientAddress string
	message       wire.Message
}

// Server is the gateway's TCP front end: it decodes wire.Message frames and
// drives the in-process engine.Engine.
type Server struct {
	address string
	port    int
	eng     *engine.Engine

	pool               transport.WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[string]clientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan clientMessage
}

func NewServer(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		eng:            eng,
		pool:           transport.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]clientSession),
		clientMessages: make(chan clientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("gateway shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return err
	}
	defer listener.Close()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("gateway listening")
	for {
		select {
		case <-ctx.Done():
			return t.Wait()
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("client connected")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return common.ErrInvalidOwner
	}
	address := conn.RemoteAddr().String()

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", address).Msg("failed setting deadline")
		conn.Close()
		s.deleteClientSession(address)
		return nil
	}

	buf := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buf)
		if err != nil {
			log.Debug().Err(err).Str("address", address).Msg("connection closed")
			s.deleteClientSession(address)
			return nil
		}
		msg, err := wire.ParseMessage(buf[:n])
		if err != nil {
			log.Error().Err(err).Str("address", address).Msg("error parsing message")
			s.writeReport(address, wire.Report{MessageType: wire.ErrorReport, ErrStr: err.Error()})
			s.pool.AddTask(conn)
			return nil
		}
		s.clientMessages <- clientMessage{clientAddress: address, message: msg}
		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case cm := <-s.clientMessages:
			report := s.handleMessage(cm)
			s.writeReport(cm.clientAddress, report)
		}
	}
}

func (s *Server) handleMessage(cm clientMessage) wire.Report {
	switch m := cm.message.(type) {
	case wire.NewOrderMessage:
		return s.placeOrder(m)
	case wire.CancelOrderMessage:
		res, err := s.eng.CancelOrderByID(m.Market, m.Owner, m.OrderID())
		if err != nil {
			return wire.Report{MessageType: wire.ErrorReport, ErrStr: err.Error()}
		}
		return wire.Report{MessageType: wire.OutReport, TotalBaseLotsTaken: res.ReleasedBaseNative}
	case wire.CancelAllMessage:
		var sideFilter *common.Side
		if m.HasSideFilter {
			sideFilter = &m.Side
		}
		res, err := s.eng.CancelAll(m.Market, m.Owner, sideFilter, int(m.Limit))
		if err != nil {
			return wire.Report{MessageType: wire.ErrorReport, ErrStr: err.Error()}
		}
		return wire.Report{MessageType: wire.OutReport, TotalBaseLotsTaken: int64(res.Cancelled)}
	default:
		return wire.Report{MessageType: wire.ErrorReport, ErrStr: wire.ErrInvalidMessageType.Error()}
	}
}

func (s *Server) placeOrder(m wire.NewOrderMessage) wire.Report {
	order := m.Order()
	oracle := engine.OraclePrice{} // gateway does not source an oracle feed; pegged orders fail OraclePegInvalidOracleState
	now := uint64(time.Now().Unix())

	var (
		res matching.OrderResult
		err error
	)
	if m.TakeOnly {
		res, err = s.eng.PlaceTakeOrder(m.Market, m.Owner, order, oracle, now, defaultLimit)
	} else {
		res, err = s.eng.PlaceOrder(m.Market, m.Owner, order, oracle, now, defaultLimit)
	}
	return wire.ReportFromOrderResult(res, err)
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	delete(s.clientSessions, address)
}

func (s *Server) writeReport(address string, report wire.Report) {
	s.clientSessionsLock.Lock()
	cs, ok := s.clientSessions[address]
	s.clientSessionsLock.Unlock()
	if !ok {
		return
	}
	if _, err := cs.conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", address).Msg("unable to write report")
		s.deleteClientSession(address)
	}
}
