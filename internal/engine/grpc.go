package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire names of the remote detection service. Requests and responses are
// google.protobuf.Struct messages carrying the JSON form of Request and
// Result, so any engine that speaks protobuf can serve them without
// generated stubs.
const (
	ServiceName  = "spt.DetectionEngine"
	DetectMethod = "/" + ServiceName + "/Detect"
)

const maxMsgSize = 64 * 1024 * 1024

// GRPCEngine calls a remote detection service.
type GRPCEngine struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to a detection service at addr (host:port).
func DialGRPC(addr string) (*GRPCEngine, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMsgSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrEngine, addr, err)
	}
	return &GRPCEngine{conn: conn}, nil
}

// Close releases the connection.
func (g *GRPCEngine) Close() error { return g.conn.Close() }

// Detect implements Engine.
func (g *GRPCEngine) Detect(ctx context.Context, req Request) (*Result, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrEngine, err)
	}
	out := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, DetectMethod, in, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngine, req.Recording, err)
	}
	var res Result
	if err := fromStruct(out, &res); err != nil {
		return nil, fmt.Errorf("%w: %s: decode result: %v", ErrEngine, req.Recording, err)
	}
	return &res, nil
}

// RegisterDetectionService serves e on s under ServiceName.
func RegisterDetectionService(s *grpc.Server, e Engine) {
	s.RegisterService(&detectionServiceDesc, e)
}

var detectionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Engine)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Detect",
		Handler:    detectHandler,
	}},
	Streams: []grpc.StreamDesc{},
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, msg any) (any, error) {
		var req Request
		if err := fromStruct(msg.(*structpb.Struct), &req); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
		}
		res, err := srv.(Engine).Detect(ctx, req)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return toStruct(res)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectMethod}
	return interceptor(ctx, in, info, call)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
