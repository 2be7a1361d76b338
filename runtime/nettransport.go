package runtime

import (
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/vsr"
)

// envelope is the single gob-encodable wrapper every inter-replica
// message travels in. gob cannot decode directly into an interface{}
// value without a concrete, registered type behind it, so every
// vsr message variant is registered in init() below.
type envelope struct {
	Msg interface{}
}

func init() {
	gob.Register(vsr.Prepare{})
	gob.Register(vsr.PrepareOk{})
	gob.Register(vsr.Commit{})
	gob.Register(vsr.StartViewChange{})
	gob.Register(vsr.DoViewChange{})
	gob.Register(vsr.StartView{})
	gob.Register(vsr.Recovery{})
	gob.Register(vsr.RecoveryResponse{})
	gob.Register(vsr.StateTransferRequest{})
	gob.Register(vsr.StateTransferResponse{})
}

// NetTransport is the Transport implementation cmd/kimberlite wires a
// started replica to: a plain TCP connection per peer, each carrying
// gob-encoded envelopes. The wire package's framed, length-prefixed
// codec is reserved for the client-facing protocol (§6); inter-replica
// transport has no externally specified byte layout, so stdlib gob
// over net.Conn is the direct, unadapted choice here.
type NetTransport struct {
	self  ids.ReplicaId
	peers map[ids.ReplicaId]string
	log   logging.Logger

	mu    sync.Mutex
	conns map[ids.ReplicaId]*gob.Encoder
}

// NewNetTransport constructs a transport for replica self, with peers
// mapping every other replica ID in the cluster to its "host:port".
func NewNetTransport(self ids.ReplicaId, peers map[ids.ReplicaId]string, log logging.Logger) *NetTransport {
	return &NetTransport{
		self:  self,
		peers: peers,
		log:   log,
		conns: make(map[ids.ReplicaId]*gob.Encoder),
	}
}

// Listen accepts inbound connections on addr and hands every decoded
// message to rt.Deliver. It blocks until the listener errors or is closed.
func (t *NetTransport) Listen(addr string, rt *Runtime) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go t.serve(conn, rt)
	}
}

func (t *NetTransport) serve(conn net.Conn, rt *Runtime) {
	defer conn.Close()
	dec := gob.NewDecoder(conn)
	for {
		var env envelope
		if err := dec.Decode(&env); err != nil {
			t.log.Warnw("runtime: peer connection closed", "error", err)
			return
		}
		rt.Deliver(ids.NoReplica, env.Msg)
	}
}

func (t *NetTransport) encoderFor(to ids.ReplicaId) (*gob.Encoder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.conns[to]; ok {
		return enc, nil
	}
	addr, ok := t.peers[to]
	if !ok {
		return nil, fmt.Errorf("runtime: no known address for replica %d", to)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	enc := gob.NewEncoder(conn)
	t.conns[to] = enc
	return enc, nil
}

// Send delivers msg to a single peer, dialing lazily on first use.
func (t *NetTransport) Send(to ids.ReplicaId, msg interface{}) error {
	if to == t.self {
		return nil
	}
	enc, err := t.encoderFor(to)
	if err != nil {
		return err
	}
	return enc.Encode(envelope{Msg: msg})
}

// Broadcast delivers msg to every known peer except self, aggregating
// (not stopping at) the first failed peer.
func (t *NetTransport) Broadcast(msg interface{}) error {
	var first error
	for peer := range t.peers {
		if peer == t.self {
			continue
		}
		if err := t.Send(peer, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
