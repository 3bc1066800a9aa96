package client

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/redoraai/redora-cli/pkg/leads"
)

// LeadServiceName is the fully qualified gRPC service name.
const LeadServiceName = "redora.leads.v1.LeadService"

// Full method names.
const (
	MethodGetRelevantLeads = "/" + LeadServiceName + "/GetRelevantLeads"
	MethodGetLeadsByStatus = "/" + LeadServiceName + "/GetLeadsByStatus"
	MethodUpdateLeadStatus = "/" + LeadServiceName + "/UpdateLeadStatus"
)

// GetRelevantLeadsRequest selects NEW leads.
type GetRelevantLeadsRequest struct {
	RelevancyScore int        `json:"relevancy_score"`
	Subreddit      string     `json:"subreddit,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// GetLeadsByStatusRequest selects leads with one status.
type GetLeadsByStatusRequest struct {
	Status leads.Status `json:"status"`
}

// LeadsResponse carries a page of leads.
type LeadsResponse struct {
	Leads []leads.Lead `json:"leads"`
}

// UpdateLeadStatusRequest changes one lead's status.
type UpdateLeadStatusRequest struct {
	LeadID string       `json:"lead_id"`
	Status leads.Status `json:"status"`
}

// UpdateLeadStatusResponse echoes the stored lead when the server has it.
type UpdateLeadStatusResponse struct {
	Lead *leads.Lead `json:"lead,omitempty"`
}

// LeadServiceServer is the server side of LeadService.
type LeadServiceServer interface {
	GetRelevantLeads(context.Context, *GetRelevantLeadsRequest) (*LeadsResponse, error)
	GetLeadsByStatus(context.Context, *GetLeadsByStatusRequest) (*LeadsResponse, error)
	UpdateLeadStatus(context.Context, *UpdateLeadStatusRequest) (*UpdateLeadStatusResponse, error)
}

// RegisterLeadServiceServer registers srv on s. Clients must send the json
// content subtype.
func RegisterLeadServiceServer(s grpc.ServiceRegistrar, srv LeadServiceServer) {
	s.RegisterService(&leadServiceDesc, srv)
}

var leadServiceDesc = grpc.ServiceDesc{
	ServiceName: LeadServiceName,
	HandlerType: (*LeadServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRelevantLeads", Handler: getRelevantLeadsHandler},
		{MethodName: "GetLeadsByStatus", Handler: getLeadsByStatusHandler},
		{MethodName: "UpdateLeadStatus", Handler: updateLeadStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "redora/leads/v1/leads.proto",
}

func getRelevantLeadsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRelevantLeadsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LeadServiceServer).GetRelevantLeads(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetRelevantLeads}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LeadServiceServer).GetRelevantLeads(ctx, req.(*GetRelevantLeadsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getLeadsByStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLeadsByStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LeadServiceServer).GetLeadsByStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetLeadsByStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LeadServiceServer).GetLeadsByStatus(ctx, req.(*GetLeadsByStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func updateLeadStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateLeadStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LeadServiceServer).UpdateLeadStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodUpdateLeadStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LeadServiceServer).UpdateLeadStatus(ctx, req.(*UpdateLeadStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}
