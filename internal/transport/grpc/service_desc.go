package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "tutorbook.v1.SchedulingService"

type SchedulingServiceServer interface {
	GenerateSlots(ctx context.Context, req *GenerateSlotsRequest) (*GenerateSlotsResponse, error)
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error)
	RescheduleBooking(ctx context.Context, req *RescheduleBookingRequest) (*RescheduleBookingResponse, error)
	CancelBooking(ctx context.Context, req *CancelBookingRequest) (*CancelBookingResponse, error)
	AddAvailability(ctx context.Context, req *AddAvailabilityRequest) (*AddAvailabilityResponse, error)
	RemoveAvailability(ctx context.Context, req *RemoveAvailabilityRequest) (*RemoveAvailabilityResponse, error)
	ListAvailability(ctx context.Context, req *ListAvailabilityRequest) (*ListAvailabilityResponse, error)
	ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error)
	UpsertProvider(ctx context.Context, req *UpsertProviderRequest) (*UpsertProviderResponse, error)
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateSlots", Handler: unaryHandler("GenerateSlots", SchedulingServiceServer.GenerateSlots)},
		{MethodName: "CreateBooking", Handler: unaryHandler("CreateBooking", SchedulingServiceServer.CreateBooking)},
		{MethodName: "RescheduleBooking", Handler: unaryHandler("RescheduleBooking", SchedulingServiceServer.RescheduleBooking)},
		{MethodName: "CancelBooking", Handler: unaryHandler("CancelBooking", SchedulingServiceServer.CancelBooking)},
		{MethodName: "AddAvailability", Handler: unaryHandler("AddAvailability", SchedulingServiceServer.AddAvailability)},
		{MethodName: "RemoveAvailability", Handler: unaryHandler("RemoveAvailability", SchedulingServiceServer.RemoveAvailability)},
		{MethodName: "ListAvailability", Handler: unaryHandler("ListAvailability", SchedulingServiceServer.ListAvailability)},
		{MethodName: "ListBookings", Handler: unaryHandler("ListBookings", SchedulingServiceServer.ListBookings)},
		{MethodName: "UpsertProvider", Handler: unaryHandler("UpsertProvider", SchedulingServiceServer.UpsertProvider)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tutorbook/v1/scheduling",
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(SchedulingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(SchedulingServiceServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(*Req))
		})
	}
}
