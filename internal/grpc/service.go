// Package grpc exposes the shot simulator over gRPC. Messages travel as
// google.protobuf.Struct so callers need no generated stubs.
package grpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/replay"
	"minigolf/engine/internal/shot"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "minigolf.v1.ShotService"

	simulateMethod   = "/" + ServiceName + "/Simulate"
	streamShotMethod = "/" + ServiceName + "/StreamShot"
)

// ShotServer is implemented by Service and registered through Register.
type ShotServer interface {
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamShot(*structpb.Struct, ShotStream) error
}

// ShotStream is the server side of StreamShot.
type ShotStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// Option customises the behaviour of the gRPC service.
type Option func(*Service)

// WithCompressor overrides the trajectory compressor.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithMaxShotTicks caps how long a requested stroke may run.
func WithMaxShotTicks(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxTicks = limit
		}
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service runs isolated strokes on request. Each call simulates on a fresh session so
// calls never share ball state.
type Service struct {
	physics    physics.Config
	course     course.Course
	maxTicks   int
	compressor Compressor
	logger     *logging.Logger
}

// NewService validates the defaults every request falls back to.
func NewService(cfg physics.Config, c course.Course, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("physics: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("course: %w", err)
	}
	service := &Service{physics: cfg, course: c, maxTicks: shot.DefaultMaxShotTicks, logger: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	if service.compressor == nil {
		compressor, err := NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		service.compressor = compressor
	}
	return service, nil
}

// shotRequest is the decoded form of a request struct. Unset aim fields keep the
// default aim.
type shotRequest struct {
	Power             *float64       `json:"power"`
	Azimuth           *float64       `json:"azimuth"`
	Elevation         *float64       `json:"elevation"`
	MaxTicks          int            `json:"max_ticks"`
	Course            *course.Course `json:"course"`
	IncludeTrajectory bool           `json:"include_trajectory"`
}

// shotResult summarises a completed stroke.
type shotResult struct {
	SessionID   string            `json:"session_id"`
	Course      string            `json:"course"`
	Fingerprint string            `json:"fingerprint"`
	Outcome     shot.EventType    `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	Ticks       int               `json:"ticks"`
	Bounces     int               `json:"bounces"`
	Aim         shot.Aim          `json:"aim"`
	State       physics.BallState `json:"state"`
	Trajectory  *trajectory       `json:"trajectory,omitempty"`
}

// trajectory holds every committed state in replay codec form, compressed and base64
// encoded.
type trajectory struct {
	Codec  string `json:"codec"`
	Frames int    `json:"frames"`
	Data   string `json:"data"`
}

// streamMessage is one StreamShot response.
type streamMessage struct {
	Type  string      `json:"type"`
	Frame *shot.Frame `json:"frame,omitempty"`
	Event *shot.Event `json:"event,omitempty"`
}

// Simulate plays one stroke to completion and returns its summary.
func (s *Service) Simulate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	request, session, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	summary := &summarySink{keepFrames: request.IncludeTrajectory}
	session.AddSink(summary)

	//1.- Launch and step until the ball settles, drops or hits the tick cap.
	if err := session.Hit(); err != nil {
		return nil, status.Errorf(codes.FailedPrecondition, "hit: %v", err)
	}
	if _, err := session.Play(ctx); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	//2.- Pack the trajectory only when the caller asked for it.
	result := summary.result(session)
	if request.IncludeTrajectory {
		compressed, err := s.compressor.Compress(summary.frames.Bytes())
		if err != nil {
			return nil, status.Errorf(codes.Internal, "compress trajectory: %v", err)
		}
		result.Trajectory = &trajectory{
			Codec:  s.compressor.Name(),
			Frames: summary.count,
			Data:   base64.StdEncoding.EncodeToString(compressed),
		}
	}
	out, err := toStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// StreamShot plays one stroke and sends every frame and event as it is committed.
func (s *Service) StreamShot(req *structpb.Struct, stream ShotStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	_, session, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}
	sink := &streamSink{stream: stream, cancel: cancel}
	session.AddSink(sink)

	if err := session.Hit(); err != nil {
		return status.Errorf(codes.FailedPrecondition, "hit: %v", err)
	}
	_, playErr := session.Play(ctx)
	//1.- A failed send cancels play; report the send error rather than the cancellation.
	if err := sink.failure(); err != nil {
		return err
	}
	if playErr != nil {
		return status.FromContextError(playErr).Err()
	}
	return nil
}

func (s *Service) prepare(ctx context.Context, req *structpb.Struct) (shotRequest, *shot.Session, error) {
	request, err := decodeRequest(req)
	if err != nil {
		return shotRequest{}, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	c := s.course
	if request.Course != nil {
		c = *request.Course
	}
	limit := s.maxTicks
	if request.MaxTicks > 0 && request.MaxTicks < limit {
		limit = request.MaxTicks
	}
	aim := shot.DefaultAim()
	if request.Power != nil {
		aim.Power = *request.Power
	}
	if request.Azimuth != nil {
		aim.Azimuth = *request.Azimuth
	}
	if request.Elevation != nil {
		aim.Elevation = *request.Elevation
	}
	session, err := shot.NewSession(s.physics, c,
		shot.WithAim(aim),
		shot.WithMaxShotTicks(limit),
		shot.WithLogger(s.loggerFor(ctx)),
	)
	if err != nil {
		return shotRequest{}, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return request, session, nil
}

// loggerFor prefers the traced logger installed by the server interceptors.
func (s *Service) loggerFor(ctx context.Context) *logging.Logger {
	if logging.TraceIDFromContext(ctx) != "" {
		return logging.LoggerFromContext(ctx)
	}
	return s.logger
}

func decodeRequest(req *structpb.Struct) (shotRequest, error) {
	var request shotRequest
	if req == nil {
		return request, nil
	}
	raw, err := req.MarshalJSON()
	if err != nil {
		return request, fmt.Errorf("encode request: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		return request, fmt.Errorf("decode request: %w", err)
	}
	//1.- Reject aims the session would otherwise silently clamp.
	if p := request.Power; p != nil && (math.IsNaN(*p) || *p < 0 || *p > 1) {
		return request, fmt.Errorf("power must be within [0, 1], got %v", *p)
	}
	if e := request.Elevation; e != nil && (math.IsNaN(*e) || *e < 0 || *e > shot.MaxElevation) {
		return request, fmt.Errorf("elevation must be within [0, %v], got %v", shot.MaxElevation, *e)
	}
	if a := request.Azimuth; a != nil && (math.IsNaN(*a) || math.IsInf(*a, 0)) {
		return request, errors.New("azimuth must be finite")
	}
	if request.MaxTicks < 0 {
		return request, fmt.Errorf("max_ticks must not be negative, got %d", request.MaxTicks)
	}
	return request, nil
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// summarySink tracks the stroke outcome and optionally the encoded trajectory.
type summarySink struct {
	keepFrames bool
	frames     bytes.Buffer
	count      int
	bounces    int
	last       shot.Event
}

func (s *summarySink) PublishFrame(frame shot.Frame) {
	s.count++
	if s.keepFrames {
		s.frames.Write(replay.EncodeState(frame.State))
	}
}

func (s *summarySink) PublishEvent(event shot.Event) {
	if event.Type == shot.EventBounce {
		s.bounces++
		return
	}
	s.last = event
}

func (s *summarySink) result(session *shot.Session) shotResult {
	c := session.Course()
	return shotResult{
		SessionID:   session.ID(),
		Course:      c.Name,
		Fingerprint: strconv.FormatUint(c.Fingerprint(), 16),
		Outcome:     s.last.Type,
		Reason:      s.last.Reason,
		Ticks:       s.count,
		Bounces:     s.bounces,
		Aim:         s.last.Aim,
		State:       s.last.State,
	}
}

// streamSink forwards session output to the client until the first send failure.
type streamSink struct {
	stream ShotStream
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *streamSink) PublishFrame(frame shot.Frame) {
	s.send(streamMessage{Type: "frame", Frame: &frame})
}

func (s *streamSink) PublishEvent(event shot.Event) {
	s.send(streamMessage{Type: "event", Event: &event})
}

func (s *streamSink) send(msg streamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	out, err := toStruct(msg)
	if err == nil {
		err = s.stream.Send(out)
	}
	if err != nil {
		s.err = err
		s.cancel()
	}
}

func (s *streamSink) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Register installs the service on a gRPC server.
func Register(server grpcgo.ServiceRegistrar, srv ShotServer) {
	server.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpcgo.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShotServer)(nil),
	Methods: []grpcgo.MethodDesc{
		{MethodName: "Simulate", Handler: simulateHandler},
	},
	Streams: []grpcgo.StreamDesc{
		{StreamName: "StreamShot", Handler: streamShotHandler, ServerStreams: true},
	},
	Metadata: "minigolf/v1/shot.proto",
}

func simulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpcgo.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShotServer).Simulate(ctx, in)
	}
	info := &grpcgo.UnaryServerInfo{Server: srv, FullMethod: simulateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ShotServer).Simulate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamShotHandler(srv any, stream grpcgo.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ShotServer).StreamShot(in, &shotStreamServer{stream})
}

type shotStreamServer struct {
	grpcgo.ServerStream
}

func (s *shotStreamServer) Send(msg *structpb.Struct) error {
	return s.ServerStream.SendMsg(msg)
}

// Client calls a remote ShotService.
type Client struct {
	cc grpcgo.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpcgo.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Simulate runs one stroke remotely.
func (c *Client) Simulate(ctx context.Context, req *structpb.Struct, opts ...grpcgo.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, simulateMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamShot starts a remote stroke and returns the receiving side of the stream.
func (c *Client) StreamShot(ctx context.Context, req *structpb.Struct, opts ...grpcgo.CallOption) (ShotStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], streamShotMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &shotStreamClient{stream}, nil
}

// ShotStreamClient receives StreamShot messages until io.EOF.
type ShotStreamClient interface {
	Recv() (*structpb.Struct, error)
}

type shotStreamClient struct {
	grpcgo.ClientStream
}

func (c *shotStreamClient) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := c.ClientStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
