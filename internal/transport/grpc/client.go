package grpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls tutorbook.v1.SchedulingService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a plaintext connection with tracing and request id propagation.
func Dial(addr string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(ClientRequestIDInterceptor()),
	}
	return grpc.NewClient(addr, append(opts, extra...)...)
}

// invoke selects the JSON codec on every call, so a Client works over any connection.
func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GenerateSlots(ctx context.Context, req *GenerateSlotsRequest, opts ...grpc.CallOption) (*GenerateSlotsResponse, error) {
	return invoke[GenerateSlotsResponse](ctx, c, "GenerateSlots", req, opts...)
}

func (c *Client) CreateBooking(ctx context.Context, req *CreateBookingRequest, opts ...grpc.CallOption) (*CreateBookingResponse, error) {
	return invoke[CreateBookingResponse](ctx, c, "CreateBooking", req, opts...)
}

func (c *Client) RescheduleBooking(ctx context.Context, req *RescheduleBookingRequest, opts ...grpc.CallOption) (*RescheduleBookingResponse, error) {
	return invoke[RescheduleBookingResponse](ctx, c, "RescheduleBooking", req, opts...)
}

func (c *Client) CancelBooking(ctx context.Context, req *CancelBookingRequest, opts ...grpc.CallOption) (*CancelBookingResponse, error) {
	return invoke[CancelBookingResponse](ctx, c, "CancelBooking", req, opts...)
}

func (c *Client) AddAvailability(ctx context.Context, req *AddAvailabilityRequest, opts ...grpc.CallOption) (*AddAvailabilityResponse, error) {
	return invoke[AddAvailabilityResponse](ctx, c, "AddAvailability", req, opts...)
}

func (c *Client) RemoveAvailability(ctx context.Context, req *RemoveAvailabilityRequest, opts ...grpc.CallOption) (*RemoveAvailabilityResponse, error) {
	return invoke[RemoveAvailabilityResponse](ctx, c, "RemoveAvailability", req, opts...)
}

func (c *Client) ListAvailability(ctx context.Context, req *ListAvailabilityRequest, opts ...grpc.CallOption) (*ListAvailabilityResponse, error) {
	return invoke[ListAvailabilityResponse](ctx, c, "ListAvailability", req, opts...)
}

func (c *Client) ListBookings(ctx context.Context, req *ListBookingsRequest, opts ...grpc.CallOption) (*ListBookingsResponse, error) {
	return invoke[ListBookingsResponse](ctx, c, "ListBookings", req, opts...)
}

func (c *Client) UpsertProvider(ctx context.Context, req *UpsertProviderRequest, opts ...grpc.CallOption) (*UpsertProviderResponse, error) {
	return invoke[UpsertProviderResponse](ctx, c, "UpsertProvider", req, opts...)
}
