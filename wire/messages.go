package wire

// ProtocolVersion is the AuthRequest's declared client protocol
// version, distinct from the frame Version: this one is an
// application-level handshake field the server may accept a range of,
// while the frame Version is a hard wire-format gate.
const ProtocolVersion uint16 = 1

// OpCode identifies which request payload follows the connection's
// request_id. CreateStream, Append, Read, Subscribe, and Checkpoint
// are handled in-core, and so is DeleteStream, which the runtime turns
// into a drop-stream command. Query is answered with an error; no
// request is forwarded to an out-of-process projection collaborator.
type OpCode uint8

const (
	OpCreateStream OpCode = iota
	OpAppend
	OpRead
	OpQuery
	OpSubscribe
	OpCheckpoint
	OpDeleteStream
)

// RequestHeader precedes every request payload after authentication:
// request_id is monotonic per connection and matches pipelined
// responses back to their request, since frames may arrive in any order.
type RequestHeader struct {
	RequestId uint64
	Op        OpCode
}

func (h RequestHeader) encode(e *Encoder) {
	e.WriteUint64(h.RequestId)
	e.WriteUint8(uint8(h.Op))
}

func decodeRequestHeader(d *Decoder) (RequestHeader, error) {
	id, err := d.ReadUint64()
	if err != nil {
		return RequestHeader{}, err
	}
	op, err := d.ReadUint8()
	if err != nil {
		return RequestHeader{}, err
	}
	return RequestHeader{RequestId: id, Op: OpCode(op)}, nil
}

// ResponseHeader precedes every response payload: echoes request_id,
// carries the wire error Code (CodeOK on success).
type ResponseHeader struct {
	RequestId uint64
	Code      Code
}

func (h ResponseHeader) encode(e *Encoder) {
	e.WriteUint64(h.RequestId)
	e.WriteUint16(uint16(h.Code))
}

func decodeResponseHeader(d *Decoder) (ResponseHeader, error) {
	id, err := d.ReadUint64()
	if err != nil {
		return ResponseHeader{}, err
	}
	code, err := d.ReadUint16()
	if err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{RequestId: id, Code: Code(code)}, nil
}

// PeekRequestHeader decodes just the RequestHeader prefixing buf,
// letting a server dispatch on Op before fully decoding the
// operation-specific payload that follows (each Decode*Request
// function re-decodes the header itself from the start of buf).
func PeekRequestHeader(buf []byte) (RequestHeader, error) {
	return decodeRequestHeader(NewDecoder(buf))
}

// AuthRequest is mandatory as the first frame on every connection,
// carrying the tenant-scoped bearer token validated in auth.go.
type AuthRequest struct {
	ProtocolVersion uint16
	TenantId        uint64
	Token           string
	ClientInfo      string
}

func EncodeAuthRequest(r AuthRequest) []byte {
	e := NewEncoder(64 + len(r.Token) + len(r.ClientInfo))
	e.WriteUint16(r.ProtocolVersion)
	e.WriteUint64(r.TenantId)
	e.WriteString(r.Token)
	e.WriteString(r.ClientInfo)
	return e.Bytes()
}

func DecodeAuthRequest(buf []byte) (AuthRequest, error) {
	d := NewDecoder(buf)
	var r AuthRequest
	var err error
	if r.ProtocolVersion, err = d.ReadUint16(); err != nil {
		return AuthRequest{}, err
	}
	if r.TenantId, err = d.ReadUint64(); err != nil {
		return AuthRequest{}, err
	}
	if r.Token, err = d.ReadString(); err != nil {
		return AuthRequest{}, err
	}
	if r.ClientInfo, err = d.ReadString(); err != nil {
		return AuthRequest{}, err
	}
	return r, nil
}

// AuthResponse is the server's reply to AuthRequest: either Success or
// Failure, discriminated by a 1-byte tag per the optional-value
// encoding convention.
type AuthResponse struct {
	Success    bool
	ClusterId  string
	LeaderHint uint8
	Code       Code
	Message    string
}

func EncodeAuthResponse(r AuthResponse) []byte {
	e := NewEncoder(32 + len(r.ClusterId) + len(r.Message))
	e.WriteBool(r.Success)
	if r.Success {
		e.WriteString(r.ClusterId)
		e.WriteUint8(r.LeaderHint)
	} else {
		e.WriteUint16(uint16(r.Code))
		e.WriteString(r.Message)
	}
	return e.Bytes()
}

func DecodeAuthResponse(buf []byte) (AuthResponse, error) {
	d := NewDecoder(buf)
	ok, err := d.ReadBool()
	if err != nil {
		return AuthResponse{}, err
	}
	if ok {
		clusterID, err := d.ReadString()
		if err != nil {
			return AuthResponse{}, err
		}
		hint, err := d.ReadUint8()
		if err != nil {
			return AuthResponse{}, err
		}
		return AuthResponse{Success: true, ClusterId: clusterID, LeaderHint: hint}, nil
	}
	code, err := d.ReadUint16()
	if err != nil {
		return AuthResponse{}, err
	}
	msg, err := d.ReadString()
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Success: false, Code: Code(code), Message: msg}, nil
}

// CreateStreamRequest carries the fields kernel.Command needs for
// CommandCreateStream, wire-encoded.
type CreateStreamRequest struct {
	Header         RequestHeader
	Tenant         uint64
	Stream         uint64
	Classification string
	RetentionDays  int32
}

func EncodeCreateStreamRequest(r CreateStreamRequest) []byte {
	e := NewEncoder(48 + len(r.Classification))
	r.Header.encode(e)
	e.WriteUint64(r.Tenant)
	e.WriteUint64(r.Stream)
	e.WriteString(r.Classification)
	e.WriteUint32(uint32(r.RetentionDays))
	return e.Bytes()
}

func DecodeCreateStreamRequest(buf []byte) (CreateStreamRequest, error) {
	d := NewDecoder(buf)
	h, err := decodeRequestHeader(d)
	if err != nil {
		return CreateStreamRequest{}, err
	}
	tenant, err := d.ReadUint64()
	if err != nil {
		return CreateStreamRequest{}, err
	}
	stream, err := d.ReadUint64()
	if err != nil {
		return CreateStreamRequest{}, err
	}
	class, err := d.ReadString()
	if err != nil {
		return CreateStreamRequest{}, err
	}
	retention, err := d.ReadUint32()
	if err != nil {
		return CreateStreamRequest{}, err
	}
	return CreateStreamRequest{Header: h, Tenant: tenant, Stream: stream, Classification: class, RetentionDays: int32(retention)}, nil
}

// CreateStreamResponse acknowledges stream creation.
type CreateStreamResponse struct {
	Header ResponseHeader
}

func EncodeCreateStreamResponse(r CreateStreamResponse) []byte {
	e := NewEncoder(16)
	r.Header.encode(e)
	return e.Bytes()
}

func DecodeCreateStreamResponse(buf []byte) (CreateStreamResponse, error) {
	d := NewDecoder(buf)
	h, err := decodeResponseHeader(d)
	return CreateStreamResponse{Header: h}, err
}

// AppendRequest carries one or more payloads to append to a stream,
// plus the client's idempotency id for exactly-once retry semantics
// (§9's per-tenant scoping resolution).
type AppendRequest struct {
	Header        RequestHeader
	Tenant        uint64
	Stream        uint64
	Payloads      [][]byte
	IdempotencyId [16]byte
}

func EncodeAppendRequest(r AppendRequest) []byte {
	size := 32 + 16
	for _, p := range r.Payloads {
		size += 4 + len(p)
	}
	e := NewEncoder(size)
	r.Header.encode(e)
	e.WriteUint64(r.Tenant)
	e.WriteUint64(r.Stream)
	e.WriteUint32(uint32(len(r.Payloads)))
	for _, p := range r.Payloads {
		e.WriteBytes(p)
	}
	e.WriteFixed(r.IdempotencyId[:])
	return e.Bytes()
}

func DecodeAppendRequest(buf []byte) (AppendRequest, error) {
	d := NewDecoder(buf)
	h, err := decodeRequestHeader(d)
	if err != nil {
		return AppendRequest{}, err
	}
	tenant, err := d.ReadUint64()
	if err != nil {
		return AppendRequest{}, err
	}
	stream, err := d.ReadUint64()
	if err != nil {
		return AppendRequest{}, err
	}
	count, err := d.ReadUint32()
	if err != nil {
		return AppendRequest{}, err
	}
	payloads := make([][]byte, count)
	for i := range payloads {
		p, err := d.ReadBytes()
		if err != nil {
			return AppendRequest{}, err
		}
		payloads[i] = p
	}
	idBytes, err := d.ReadFixed(16)
	if err != nil {
		return AppendRequest{}, err
	}
	var id [16]byte
	copy(id[:], idBytes)
	return AppendRequest{Header: h, Tenant: tenant, Stream: stream, Payloads: payloads, IdempotencyId: id}, nil
}

// AppendResponse reports the offset assigned to the first payload in
// the request; subsequent payloads occupy FirstOffset+1, +2, ...
type AppendResponse struct {
	Header      ResponseHeader
	FirstOffset uint64
}

func EncodeAppendResponse(r AppendResponse) []byte {
	e := NewEncoder(24)
	r.Header.encode(e)
	e.WriteUint64(r.FirstOffset)
	return e.Bytes()
}

func DecodeAppendResponse(buf []byte) (AppendResponse, error) {
	d := NewDecoder(buf)
	h, err := decodeResponseHeader(d)
	if err != nil {
		return AppendResponse{}, err
	}
	offset, err := d.ReadUint64()
	return AppendResponse{Header: h, FirstOffset: offset}, err
}

// ReadRequest asks for a contiguous range of entries from a stream,
// starting at FromOffset, capped at MaxCount.
type ReadRequest struct {
	Header     RequestHeader
	Tenant     uint64
	Stream     uint64
	FromOffset uint64
	MaxCount   uint32
}

func EncodeReadRequest(r ReadRequest) []byte {
	e := NewEncoder(48)
	r.Header.encode(e)
	e.WriteUint64(r.Tenant)
	e.WriteUint64(r.Stream)
	e.WriteUint64(r.FromOffset)
	e.WriteUint32(r.MaxCount)
	return e.Bytes()
}

func DecodeReadRequest(buf []byte) (ReadRequest, error) {
	d := NewDecoder(buf)
	h, err := decodeRequestHeader(d)
	if err != nil {
		return ReadRequest{}, err
	}
	tenant, err := d.ReadUint64()
	if err != nil {
		return ReadRequest{}, err
	}
	stream, err := d.ReadUint64()
	if err != nil {
		return ReadRequest{}, err
	}
	from, err := d.ReadUint64()
	if err != nil {
		return ReadRequest{}, err
	}
	max, err := d.ReadUint32()
	if err != nil {
		return ReadRequest{}, err
	}
	return ReadRequest{Header: h, Tenant: tenant, Stream: stream, FromOffset: from, MaxCount: max}, nil
}

// ReadEntry is one entry in a ReadResponse: offset, timestamp, event
// type, and payload, deliberately omitting the internal prev_hash/view
// fields a client has no use for.
type ReadEntry struct {
	Offset    uint64
	Timestamp int64
	EventType string
	Payload   []byte
}

// ReadResponse carries the entries satisfying a ReadRequest.
type ReadResponse struct {
	Header  ResponseHeader
	Entries []ReadEntry
}

func EncodeReadResponse(r ReadResponse) []byte {
	size := 16 + 4
	for _, e := range r.Entries {
		size += 8 + 8 + 4 + len(e.EventType) + 4 + len(e.Payload)
	}
	e := NewEncoder(size)
	r.Header.encode(e)
	e.WriteUint32(uint32(len(r.Entries)))
	for _, entry := range r.Entries {
		e.WriteUint64(entry.Offset)
		e.WriteInt64(entry.Timestamp)
		e.WriteString(entry.EventType)
		e.WriteBytes(entry.Payload)
	}
	return e.Bytes()
}

func DecodeReadResponse(buf []byte) (ReadResponse, error) {
	d := NewDecoder(buf)
	h, err := decodeResponseHeader(d)
	if err != nil {
		return ReadResponse{}, err
	}
	count, err := d.ReadUint32()
	if err != nil {
		return ReadResponse{}, err
	}
	entries := make([]ReadEntry, count)
	for i := range entries {
		offset, err := d.ReadUint64()
		if err != nil {
			return ReadResponse{}, err
		}
		ts, err := d.ReadInt64()
		if err != nil {
			return ReadResponse{}, err
		}
		et, err := d.ReadString()
		if err != nil {
			return ReadResponse{}, err
		}
		payload, err := d.ReadBytes()
		if err != nil {
			return ReadResponse{}, err
		}
		entries[i] = ReadEntry{Offset: offset, Timestamp: ts, EventType: et, Payload: payload}
	}
	return ReadResponse{Header: h, Entries: entries}, nil
}

// SubscribeRequest opens a live tail of a stream starting at
// FromOffset (entries at or after it are delivered); the boundary-level request only establishes the
// subscription, delivery of subsequent entries rides on further
// ReadResponse-shaped push frames the runtime's notification path emits.
type SubscribeRequest struct {
	Header     RequestHeader
	Tenant     uint64
	Stream     uint64
	FromOffset uint64
}

func EncodeSubscribeRequest(r SubscribeRequest) []byte {
	e := NewEncoder(40)
	r.Header.encode(e)
	e.WriteUint64(r.Tenant)
	e.WriteUint64(r.Stream)
	e.WriteUint64(r.FromOffset)
	return e.Bytes()
}

func DecodeSubscribeRequest(buf []byte) (SubscribeRequest, error) {
	d := NewDecoder(buf)
	h, err := decodeRequestHeader(d)
	if err != nil {
		return SubscribeRequest{}, err
	}
	tenant, err := d.ReadUint64()
	if err != nil {
		return SubscribeRequest{}, err
	}
	stream, err := d.ReadUint64()
	if err != nil {
		return SubscribeRequest{}, err
	}
	from, err := d.ReadUint64()
	if err != nil {
		return SubscribeRequest{}, err
	}
	return SubscribeRequest{Header: h, Tenant: tenant, Stream: stream, FromOffset: from}, nil
}

// SubscribeResponse acknowledges a subscription was established.
type SubscribeResponse struct {
	Header ResponseHeader
}

func EncodeSubscribeResponse(r SubscribeResponse) []byte {
	e := NewEncoder(16)
	r.Header.encode(e)
	return e.Bytes()
}

func DecodeSubscribeResponse(buf []byte) (SubscribeResponse, error) {
	d := NewDecoder(buf)
	h, err := decodeResponseHeader(d)
	return SubscribeResponse{Header: h}, err
}

// CheckpointRequest asks the replica to publish a signed compliance
// checkpoint for a stream's current tail (§4.2/§4.3 CheckpointPublisher).
type CheckpointRequest struct {
	Header RequestHeader
	Tenant uint64
	Stream uint64
}

func EncodeCheckpointRequest(r CheckpointRequest) []byte {
	e := NewEncoder(32)
	r.Header.encode(e)
	e.WriteUint64(r.Tenant)
	e.WriteUint64(r.Stream)
	return e.Bytes()
}

func DecodeCheckpointRequest(buf []byte) (CheckpointRequest, error) {
	d := NewDecoder(buf)
	h, err := decodeRequestHeader(d)
	if err != nil {
		return CheckpointRequest{}, err
	}
	tenant, err := d.ReadUint64()
	if err != nil {
		return CheckpointRequest{}, err
	}
	stream, err := d.ReadUint64()
	if err != nil {
		return CheckpointRequest{}, err
	}
	return CheckpointRequest{Header: h, Tenant: tenant, Stream: stream}, nil
}

// CheckpointResponse carries the storage path the signed checkpoint
// was published to.
type CheckpointResponse struct {
	Header ResponseHeader
	Path   string
}

func EncodeCheckpointResponse(r CheckpointResponse) []byte {
	e := NewEncoder(32 + len(r.Path))
	r.Header.encode(e)
	e.WriteString(r.Path)
	return e.Bytes()
}

func DecodeCheckpointResponse(buf []byte) (CheckpointResponse, error) {
	d := NewDecoder(buf)
	h, err := decodeResponseHeader(d)
	if err != nil {
		return CheckpointResponse{}, err
	}
	path, err := d.ReadString()
	return CheckpointResponse{Header: h, Path: path}, err
}

// ForwardRequest is a tenant plus an opaque Payload. The runtime
// decodes it only for DeleteStream, reading the stream id from the
// payload and dropping the stream in-core; it is not routed to a
// projection collaborator.
type ForwardRequest struct {
	Header  RequestHeader
	Tenant  uint64
	Payload []byte
}

func EncodeForwardRequest(r ForwardRequest) []byte {
	e := NewEncoder(24 + len(r.Payload))
	r.Header.encode(e)
	e.WriteUint64(r.Tenant)
	e.WriteBytes(r.Payload)
	return e.Bytes()
}

func DecodeForwardRequest(buf []byte) (ForwardRequest, error) {
	d := NewDecoder(buf)
	h, err := decodeRequestHeader(d)
	if err != nil {
		return ForwardRequest{}, err
	}
	tenant, err := d.ReadUint64()
	if err != nil {
		return ForwardRequest{}, err
	}
	payload, err := d.ReadBytes()
	if err != nil {
		return ForwardRequest{}, err
	}
	return ForwardRequest{Header: h, Tenant: tenant, Payload: payload}, nil
}

// EncodeDeleteStreamPayload builds the ForwardRequest.Payload carried
// for OpDeleteStream: just the stream id, which the runtime decodes
// and submits as a drop-stream command. No projection-side teardown
// is performed.
func EncodeDeleteStreamPayload(stream uint64) []byte {
	e := NewEncoder(8)
	e.WriteUint64(stream)
	return e.Bytes()
}

// DecodeDeleteStreamPayload parses a ForwardRequest.Payload produced by
// EncodeDeleteStreamPayload.
func DecodeDeleteStreamPayload(buf []byte) (uint64, error) {
	d := NewDecoder(buf)
	return d.ReadUint64()
}

// ErrorResponse is the generic failure payload for any request header:
// the client matches it back to its request via Header.RequestId.
type ErrorResponse struct {
	Header  ResponseHeader
	Message string
}

func EncodeErrorResponse(r ErrorResponse) []byte {
	e := NewEncoder(32 + len(r.Message))
	r.Header.encode(e)
	e.WriteString(r.Message)
	return e.Bytes()
}

func DecodeErrorResponse(buf []byte) (ErrorResponse, error) {
	d := NewDecoder(buf)
	h, err := decodeResponseHeader(d)
	if err != nil {
		return ErrorResponse{}, err
	}
	msg, err := d.ReadString()
	return ErrorResponse{Header: h, Message: msg}, err
}
