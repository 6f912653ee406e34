// remote_grpc.go: gRPC provider for adapters served out of process
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCServiceName is the service remote adapters implement. Requests and
// responses travel as google.protobuf.Struct holding the JSON form of
// PaymentRequest and PaymentResponse.
const GRPCServiceName = "payadapters.v1.PaymentAdapter"

func grpcMethod(op Operation) string {
	switch op {
	case OperationDebit:
		return "/" + GRPCServiceName + "/Debit"
	case OperationReverse:
		return "/" + GRPCServiceName + "/Reverse"
	default:
		return "/" + GRPCServiceName + "/Check"
	}
}

// GRPCAdapter is an Adapter whose operations are remote calls. It owns its
// connection; Close releases it.
type GRPCAdapter struct {
	id       ProcessorID
	endpoint string
	timeout  time.Duration
	conn     *grpc.ClientConn
}

// NewGRPCAdapterFactory returns the "grpc" provider. The manifest entry
// must carry an endpoint; the timeout, when set, bounds every call. Extra
// dial options are appended after the insecure transport credentials.
func NewGRPCAdapterFactory(dialOptions ...grpc.DialOption) ProviderFactory {
	return func(_ context.Context, spec AdapterSpec) (Adapter, error) {
		endpoint := strings.TrimSpace(spec.Endpoint)
		if endpoint == "" {
			return nil, NewInvalidEndpointError(spec.Endpoint)
		}

		opts := []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(1024*1024),
				grpc.MaxCallSendMsgSize(1024*1024),
			),
		}
		opts = append(opts, dialOptions...)

		// NewClient does not connect; the first call does.
		conn, err := grpc.NewClient(endpoint, opts...)
		if err != nil {
			return nil, NewGRPCTransportError(endpoint, err)
		}
		return &GRPCAdapter{
			id:       spec.Processor,
			endpoint: endpoint,
			timeout:  spec.Timeout.Std(),
			conn:     conn,
		}, nil
	}
}

// ID implements Adapter.
func (a *GRPCAdapter) ID() ProcessorID { return a.id }

// Endpoint returns the target the adapter dials.
func (a *GRPCAdapter) Endpoint() string { return a.endpoint }

// Debit implements Adapter.
func (a *GRPCAdapter) Debit(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return a.invoke(ctx, OperationDebit, req)
}

// Reverse implements Adapter.
func (a *GRPCAdapter) Reverse(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return a.invoke(ctx, OperationReverse, req)
}

// Check implements Adapter.
func (a *GRPCAdapter) Check(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return a.invoke(ctx, OperationCheck, req)
}

// Close releases the connection.
func (a *GRPCAdapter) Close() error {
	return a.conn.Close()
}

func (a *GRPCAdapter) invoke(ctx context.Context, op Operation, req PaymentRequest) (PaymentResponse, error) {
	method := grpcMethod(op)

	in, err := toStruct(req)
	if err != nil {
		return PaymentResponse{}, NewGRPCTransportError(method, err)
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	out := new(structpb.Struct)
	if err := a.conn.Invoke(ctx, method, in, out); err != nil {
		return PaymentResponse{}, NewGRPCTransportError(method, err).
			WithContext("grpc_code", status.Code(err).String())
	}

	var resp PaymentResponse
	if err := fromStruct(out, &resp); err != nil {
		return PaymentResponse{}, NewGRPCTransportError(method, err)
	}
	return resp, nil
}

// RegisterAdapterServer exposes adapter on s under GRPCServiceName, so an
// adapter can be hosted by a separate process and reached through the
// "grpc" provider.
func RegisterAdapterServer(s grpc.ServiceRegistrar, adapter Adapter) {
	s.RegisterService(&adapterServiceDesc, adapter)
}

var adapterServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*Adapter)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Debit", Handler: adapterMethodHandler(OperationDebit)},
		{MethodName: "Reverse", Handler: adapterMethodHandler(OperationReverse)},
		{MethodName: "Check", Handler: adapterMethodHandler(OperationCheck)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payadapters/v1/adapter.proto",
}

func adapterMethodHandler(op Operation) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return serveAdapterCall(ctx, srv.(Adapter), op, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: grpcMethod(op)}
		return interceptor(ctx, in, info, handler)
	}
}

func serveAdapterCall(ctx context.Context, adapter Adapter, op Operation, in *structpb.Struct) (*structpb.Struct, error) {
	var req PaymentRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := callRecoveredResponse(func() (PaymentResponse, error) {
		return Invoke(ctx, adapter, op, req)
	})
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func callRecoveredResponse(fn func() (PaymentResponse, error)) (resp PaymentResponse, err error) {
	err = callRecovered(func() error {
		var callErr error
		resp, callErr = fn()
		return callErr
	})
	return resp, err
}

// toStruct converts v to a Struct through its JSON form. Numbers become
// doubles, which holds amounts exactly up to 2^53 minor units.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(fields)
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
