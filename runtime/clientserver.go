package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
	"github.com/kimberlitedb/kimberlite-sub005/wire"
)

// ClientServer is the client-facing protocol listener (§6): each
// connection authenticates once with a tenant-scoped bearer token,
// then pipelines framed requests that are turned into kernel.Commands
// and submitted to rt, blocking per-request until applied.
type ClientServer struct {
	rt        *Runtime
	validator *wire.TokenValidator
	clusterID string
	log       logging.Logger
}

// NewClientServer constructs a ClientServer validating bearer tokens
// with signingKey.
func NewClientServer(rt *Runtime, signingKey []byte, clusterID string, log logging.Logger) *ClientServer {
	return &ClientServer{
		rt:        rt,
		validator: wire.NewTokenValidator(signingKey),
		clusterID: clusterID,
		log:       log,
	}
}

// ListenAndServe accepts connections on addr until it errors or ctx is done.
func (s *ClientServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.serve(ctx, conn)
	}
}

func (s *ClientServer) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	authBuf, err := wire.ReadFrame(conn)
	if err != nil {
		s.log.Warnw("clientserver: reading auth frame", "error", err)
		return
	}
	authReq, err := wire.DecodeAuthRequest(authBuf)
	if err != nil {
		s.log.Warnw("clientserver: decoding auth request", "error", err)
		return
	}
	tenant, err := ids.NewTenantId(authReq.TenantId)
	if err != nil {
		s.writeAuthFailure(conn, wire.CodeAuthFailure, "invalid tenant id")
		return
	}
	if _, err := s.validator.Validate(authReq.Token, tenant); err != nil {
		s.writeAuthFailure(conn, wire.CodeFromError(err), "authentication failed")
		return
	}
	if err := wire.WriteFrame(conn, wire.EncodeAuthResponse(wire.AuthResponse{Success: true, ClusterId: s.clusterID})); err != nil {
		return
	}

	for {
		buf, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warnw("clientserver: reading request frame", "error", err)
			}
			return
		}
		header, err := wire.PeekRequestHeader(buf)
		if err != nil {
			return
		}
		if header.Op == wire.OpSubscribe {
			if err := s.handleSubscribe(ctx, conn, tenant, buf); err != nil && !errors.Is(err, io.EOF) {
				s.log.Warnw("clientserver: subscription ended", "error", err)
			}
			return
		}
		resp, err := s.handleRequest(ctx, tenant, header, buf)
		if err != nil {
			resp = wire.EncodeErrorResponse(wire.ErrorResponse{
				Header:  wire.ResponseHeader{RequestId: header.RequestId, Code: wire.CodeFromError(err)},
				Message: err.Error(),
			})
		}
		if err := wire.WriteFrame(conn, resp); err != nil {
			return
		}
	}
}

func (s *ClientServer) writeAuthFailure(conn net.Conn, code wire.Code, msg string) {
	_ = wire.WriteFrame(conn, wire.EncodeAuthResponse(wire.AuthResponse{Success: false, Code: code, Message: msg}))
}

func (s *ClientServer) handleRequest(ctx context.Context, tenant ids.TenantId, header wire.RequestHeader, buf []byte) ([]byte, error) {
	switch header.Op {
	case wire.OpCreateStream:
		return s.handleCreateStream(ctx, tenant, buf)
	case wire.OpAppend:
		return s.handleAppend(ctx, tenant, buf)
	case wire.OpRead:
		return s.handleRead(ctx, tenant, buf)
	case wire.OpCheckpoint:
		return s.handleCheckpoint(ctx, tenant, buf)
	case wire.OpDeleteStream:
		return s.handleDeleteStream(ctx, tenant, buf)
	case wire.OpQuery:
		// Query's projection-side lives in the out-of-process projection
		// collaborator (§1/§6 scope exclusion); the core protocol server
		// never parses or answers it directly.
		return nil, fmt.Errorf("clientserver: op %d (query) is served by the projection collaborator, not the core replica", header.Op)
	default:
		return nil, fmt.Errorf("clientserver: unsupported op %d on this connection", header.Op)
	}
}

func (s *ClientServer) handleCreateStream(ctx context.Context, tenant ids.TenantId, buf []byte) ([]byte, error) {
	req, err := wire.DecodeCreateStreamRequest(buf)
	if err != nil {
		return nil, err
	}
	stream, err := ids.NewStreamId(tenant, req.Stream)
	if err != nil {
		return nil, err
	}
	cmd := kernel.Command{
		Kind:           kernel.CommandCreateStream,
		Tenant:         tenant,
		Stream:         stream,
		Classification: req.Classification,
		RetentionDays:  req.RetentionDays,
	}
	if _, err := s.rt.SubmitAndWait(ctx, cmd); err != nil {
		return nil, err
	}
	return wire.EncodeCreateStreamResponse(wire.CreateStreamResponse{
		Header: wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
	}), nil
}

func (s *ClientServer) handleAppend(ctx context.Context, tenant ids.TenantId, buf []byte) ([]byte, error) {
	req, err := wire.DecodeAppendRequest(buf)
	if err != nil {
		return nil, err
	}
	stream, err := ids.NewStreamId(tenant, req.Stream)
	if err != nil {
		return nil, err
	}
	idempotencyId, err := ids.NewIdempotencyId(req.IdempotencyId)
	if err != nil {
		return nil, err
	}
	cmd := kernel.Command{
		Kind:          kernel.CommandAppend,
		Tenant:        tenant,
		Stream:        stream,
		Payloads:      req.Payloads,
		IdempotencyId: idempotencyId,
	}
	effects, err := s.rt.SubmitAndWait(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var firstOffset uint64
	for _, eff := range effects {
		if eff.Kind == kernel.EffectAppend {
			firstOffset = uint64(eff.Offset)
			break
		}
	}
	return wire.EncodeAppendResponse(wire.AppendResponse{
		Header:      wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
		FirstOffset: firstOffset,
	}), nil
}

func (s *ClientServer) handleRead(ctx context.Context, tenant ids.TenantId, buf []byte) ([]byte, error) {
	req, err := wire.DecodeReadRequest(buf)
	if err != nil {
		return nil, err
	}
	stream, err := ids.NewStreamId(tenant, req.Stream)
	if err != nil {
		return nil, err
	}
	maxCount := int(req.MaxCount)
	if maxCount <= 0 || maxCount > maxReadCount {
		maxCount = maxReadCount
	}

	entries, err := ledger.ReadRange(s.rt.dataDir, stream, ids.Offset(req.FromOffset), maxCount, s.rt.erasure)
	if err != nil {
		return nil, err
	}

	out := make([]wire.ReadEntry, len(entries))
	for i, e := range entries {
		out[i] = wire.ReadEntry{
			Offset:    uint64(e.Offset),
			Timestamp: e.Timestamp,
			EventType: e.EventType,
			Payload:   e.Payload,
		}
	}
	return wire.EncodeReadResponse(wire.ReadResponse{
		Header:  wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
		Entries: out,
	}), nil
}

// maxReadCount bounds an unrequested or oversized MaxCount so one Read
// cannot force the replica to buffer an unbounded response in memory.
const maxReadCount = 10000

func (s *ClientServer) handleCheckpoint(ctx context.Context, tenant ids.TenantId, buf []byte) ([]byte, error) {
	req, err := wire.DecodeCheckpointRequest(buf)
	if err != nil {
		return nil, err
	}
	stream, err := ids.NewStreamId(tenant, req.Stream)
	if err != nil {
		return nil, err
	}
	path, err := s.rt.publishCheckpoint(ctx, stream)
	if err != nil {
		return nil, err
	}
	return wire.EncodeCheckpointResponse(wire.CheckpointResponse{
		Header: wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
		Path:   path,
	}), nil
}

func (s *ClientServer) handleDeleteStream(ctx context.Context, tenant ids.TenantId, buf []byte) ([]byte, error) {
	req, err := wire.DecodeForwardRequest(buf)
	if err != nil {
		return nil, err
	}
	stream, err := wire.DecodeDeleteStreamPayload(req.Payload)
	if err != nil {
		return nil, err
	}
	sid, err := ids.NewStreamId(tenant, stream)
	if err != nil {
		return nil, err
	}
	cmd := kernel.Command{Kind: kernel.CommandDropStream, Tenant: tenant, Stream: sid}
	if _, err := s.rt.SubmitAndWait(ctx, cmd); err != nil {
		return nil, err
	}
	return wire.EncodeCreateStreamResponse(wire.CreateStreamResponse{
		Header: wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
	}), nil
}

// handleSubscribe takes over conn for the remainder of its lifetime:
// after acknowledging the subscription it pushes every subsequent
// append on stream as a single-entry ReadResponse frame, stopping only
// when the write fails (the client disconnected) or ctx is done. A
// connection that issues OpSubscribe is dedicated to that tail; it
// does not return to the request/response loop in serve.
func (s *ClientServer) handleSubscribe(ctx context.Context, conn net.Conn, tenant ids.TenantId, buf []byte) error {
	req, err := wire.DecodeSubscribeRequest(buf)
	if err != nil {
		return err
	}
	stream, err := ids.NewStreamId(tenant, req.Stream)
	if err != nil {
		return err
	}

	ch, cancel := s.rt.Subscribe(stream)
	defer cancel()

	ack := wire.EncodeSubscribeResponse(wire.SubscribeResponse{
		Header: wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
	})
	if err := wire.WriteFrame(conn, ack); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-ch:
			if !ok {
				return nil
			}
			if uint64(entry.Offset) < req.FromOffset {
				continue
			}
			push := wire.EncodeReadResponse(wire.ReadResponse{
				Header: wire.ResponseHeader{RequestId: req.Header.RequestId, Code: wire.CodeOK},
				Entries: []wire.ReadEntry{{
					Offset:    uint64(entry.Offset),
					Timestamp: entry.Timestamp,
					EventType: entry.EventType,
					Payload:   entry.Payload,
				}},
			})
			if err := wire.WriteFrame(conn, push); err != nil {
				return err
			}
		}
	}
}
