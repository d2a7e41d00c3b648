package predict

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The prediction service exchanges protobuf well-known types: the request
// is a ListValue of the four features, the reply a DoubleValue.
const (
	serviceName   = "edgefleet.predict.v1.Predictor"
	predictMethod = "/" + serviceName + "/Predict"
)

// PredictorServer is the server API of the prediction service.
type PredictorServer interface {
	Predict(context.Context, *structpb.ListValue) (*wrapperspb.DoubleValue, error)
}

var predictorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "edgefleet/predict.proto",
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Predict(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes a Model over gRPC.
type Server struct {
	model Model
}

// RegisterServer registers model as the prediction service on gs.
func RegisterServer(gs *grpc.Server, model Model) {
	gs.RegisterService(&predictorServiceDesc, &Server{model: model})
}

func (s *Server) Predict(ctx context.Context, req *structpb.ListValue) (*wrapperspb.DoubleValue, error) {
	values := req.GetValues()
	if len(values) != len(Features{}) {
		return nil, status.Errorf(codes.InvalidArgument, "want %d features, got %d", len(Features{}), len(values))
	}
	var f Features
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "feature %d is not a number", i)
		}
		f[i] = n.NumberValue
	}
	y, err := s.model.Predict(ctx, f)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "predict: %v", err)
	}
	return wrapperspb.Double(y), nil
}

// Remote is a Model served by a prediction service.
type Remote struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial connects to a prediction service at target. Each call is bounded by
// timeout when it is positive.
func Dial(target string, timeout time.Duration, opts ...grpc.DialOption) (*Remote, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial predictor %s: %w", target, err)
	}
	return &Remote{conn: conn, timeout: timeout}, nil
}

func (r *Remote) Predict(ctx context.Context, f Features) (float64, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	req, err := structpb.NewList([]any{f[0], f[1], f[2], f[3]})
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.DoubleValue)
	if err := r.conn.Invoke(ctx, predictMethod, req, out); err != nil {
		return 0, fmt.Errorf("remote predict: %w", err)
	}
	return out.GetValue(), nil
}

func (r *Remote) Close() error { return r.conn.Close() }
