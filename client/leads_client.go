package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/redoraai/redora-cli/pkg/leads"
)

// LeadsClient implements leads.QueryService over LeadService.
type LeadsClient struct {
	client  *GRPCClient
	timeout time.Duration
}

var _ leads.QueryService = (*LeadsClient)(nil)

// NewLeadsClient wraps a connected GRPCClient. A positive timeout bounds
// each call.
func NewLeadsClient(c *GRPCClient, timeout time.Duration) *LeadsClient {
	return &LeadsClient{client: c, timeout: timeout}
}

func (c *LeadsClient) invoke(ctx context.Context, method string, req, resp any) error {
	conn, err := c.client.ensureConn(ctx)
	if err != nil {
		return err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return mapRPCError(err)
	}
	return nil
}

// GetRelevantLeads fetches NEW leads matching filter. Transient failures
// are retried.
func (c *LeadsClient) GetRelevantLeads(ctx context.Context, filter leads.Filter) ([]leads.Lead, error) {
	req := &GetRelevantLeadsRequest{
		RelevancyScore: filter.RelevancyScore,
		Subreddit:      filter.Subreddit,
	}
	if !filter.From.IsZero() {
		from := filter.From
		req.From = &from
	}
	if !filter.To.IsZero() {
		to := filter.To
		req.To = &to
	}

	var resp LeadsResponse
	err := c.client.WithRetry(ctx, func() error {
		resp = LeadsResponse{}
		return c.invoke(ctx, MethodGetRelevantLeads, req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("get relevant leads: %w", err)
	}
	return resp.Leads, nil
}

// GetLeadsByStatus fetches every lead with status. Transient failures are
// retried.
func (c *LeadsClient) GetLeadsByStatus(ctx context.Context, status leads.Status) ([]leads.Lead, error) {
	req := &GetLeadsByStatusRequest{Status: status}

	var resp LeadsResponse
	err := c.client.WithRetry(ctx, func() error {
		resp = LeadsResponse{}
		return c.invoke(ctx, MethodGetLeadsByStatus, req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s leads: %w", status, err)
	}
	return resp.Leads, nil
}

// UpdateLeadStatus persists a status change. It is never retried.
func (c *LeadsClient) UpdateLeadStatus(ctx context.Context, leadID string, status leads.Status) error {
	req := &UpdateLeadStatusRequest{LeadID: leadID, Status: status}
	var resp UpdateLeadStatusResponse
	if err := c.invoke(ctx, MethodUpdateLeadStatus, req, &resp); err != nil {
		return fmt.Errorf("update lead %s: %w", leadID, err)
	}
	return nil
}
