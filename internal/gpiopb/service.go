package gpiopb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Full method names.
const (
	PressButtonMethod   = "/" + ServiceName + "/PressButton"
	ReleaseButtonMethod = "/" + ServiceName + "/ReleaseButton"
	GetLedStateMethod   = "/" + ServiceName + "/GetLedState"
	StepMethod          = "/" + ServiceName + "/Step"
)

// GpioDemoServer is the server API for the GpioDemo service.
type GpioDemoServer interface {
	PressButton(context.Context, ButtonReq) (SimpleReply, error)
	ReleaseButton(context.Context, ButtonReq) (SimpleReply, error)
	GetLedState(context.Context, Empty) (LedState, error)
	Step(context.Context, StepReq) (SimpleReply, error)
}

// ServiceDesc describes GpioDemo for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GpioDemoServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PressButton",
			Handler: unaryHandler(PressButtonMethod, buttonReqDesc, ButtonReqFromProto,
				func(s GpioDemoServer, ctx context.Context, in ButtonReq) (SimpleReply, error) {
					return s.PressButton(ctx, in)
				}),
		},
		{
			MethodName: "ReleaseButton",
			Handler: unaryHandler(ReleaseButtonMethod, buttonReqDesc, ButtonReqFromProto,
				func(s GpioDemoServer, ctx context.Context, in ButtonReq) (SimpleReply, error) {
					return s.ReleaseButton(ctx, in)
				}),
		},
		{
			MethodName: "GetLedState",
			Handler: unaryHandler(GetLedStateMethod, emptyDesc, EmptyFromProto,
				func(s GpioDemoServer, ctx context.Context, in Empty) (LedState, error) {
					return s.GetLedState(ctx, in)
				}),
		},
		{
			MethodName: "Step",
			Handler: unaryHandler(StepMethod, stepReqDesc, StepReqFromProto,
				func(s GpioDemoServer, ctx context.Context, in StepReq) (SimpleReply, error) {
					return s.Step(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// RegisterGpioDemoServer registers srv on s.
func RegisterGpioDemoServer(s grpc.ServiceRegistrar, srv GpioDemoServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type protoMessage interface {
	Proto() proto.Message
}

// unaryHandler decodes the request into a dynamic message of type in,
// converts it to Req, and hands it to call, honouring the server's unary
// interceptor chain.
func unaryHandler[Req any, Reply protoMessage](
	fullMethod string,
	in protoreflect.MessageDescriptor,
	convert func(proto.Message) (Req, error),
	call func(GpioDemoServer, context.Context, Req) (Reply, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		msg := dynamicpb.NewMessage(in)
		if err := dec(msg); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, err := convert(req.(proto.Message))
			if err != nil {
				return nil, err
			}
			reply, err := call(srv.(GpioDemoServer), ctx, typed)
			if err != nil {
				return nil, err
			}
			return reply.Proto(), nil
		}

		if interceptor == nil {
			return handler(ctx, msg)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, msg, info, handler)
	}
}

// Client is the client API for the GpioDemo service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) PressButton(ctx context.Context, in ButtonReq, opts ...grpc.CallOption) (SimpleReply, error) {
	out := dynamicpb.NewMessage(simpleReplyDesc)
	if err := c.cc.Invoke(ctx, PressButtonMethod, in.Proto(), out, opts...); err != nil {
		return SimpleReply{}, err
	}
	return SimpleReplyFromProto(out)
}

func (c *Client) ReleaseButton(ctx context.Context, in ButtonReq, opts ...grpc.CallOption) (SimpleReply, error) {
	out := dynamicpb.NewMessage(simpleReplyDesc)
	if err := c.cc.Invoke(ctx, ReleaseButtonMethod, in.Proto(), out, opts...); err != nil {
		return SimpleReply{}, err
	}
	return SimpleReplyFromProto(out)
}

func (c *Client) GetLedState(ctx context.Context, opts ...grpc.CallOption) (LedState, error) {
	out := dynamicpb.NewMessage(ledStateDesc)
	if err := c.cc.Invoke(ctx, GetLedStateMethod, Empty{}.Proto(), out, opts...); err != nil {
		return LedState{}, err
	}
	return LedStateFromProto(out)
}

func (c *Client) Step(ctx context.Context, in StepReq, opts ...grpc.CallOption) (SimpleReply, error) {
	out := dynamicpb.NewMessage(simpleReplyDesc)
	if err := c.cc.Invoke(ctx, StepMethod, in.Proto(), out, opts...); err != nil {
		return SimpleReply{}, err
	}
	return SimpleReplyFromProto(out)
}
