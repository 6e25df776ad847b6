package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "salonbook.v1.BookingService"

// BookingServiceServer is the server API for salonbook.v1.BookingService.
// Requests and responses are google.protobuf.Struct documents.
type BookingServiceServer interface {
	ListAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ValidateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RescheduleBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(BookingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListAvailability", Handler: unaryHandler("ListAvailability", BookingServiceServer.ListAvailability)},
		{MethodName: "ValidateBooking", Handler: unaryHandler("ValidateBooking", BookingServiceServer.ValidateBooking)},
		{MethodName: "CreateBooking", Handler: unaryHandler("CreateBooking", BookingServiceServer.CreateBooking)},
		{MethodName: "RescheduleBooking", Handler: unaryHandler("RescheduleBooking", BookingServiceServer.RescheduleBooking)},
		{MethodName: "CancelBooking", Handler: unaryHandler("CancelBooking", BookingServiceServer.CancelBooking)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "salonbook/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}
