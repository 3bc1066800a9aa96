package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	rderrors "github.com/redoraai/redora-cli/pkg/errors"
	"github.com/redoraai/redora-cli/pkg/leads"
)

// stubLeadServer is an in-memory LeadService.
type stubLeadServer struct {
	mu       sync.Mutex
	fresh    []leads.Lead
	byStatus map[leads.Status][]leads.Lead

	relevantErrs []error
	updateErr    error

	lastRelevant *GetRelevantLeadsRequest
	lastMD       metadata.MD
	updates      []UpdateLeadStatusRequest
	relevantHits int
}

func (s *stubLeadServer) GetRelevantLeads(ctx context.Context, req *GetRelevantLeadsRequest) (*LeadsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMD, _ = metadata.FromIncomingContext(ctx)
	s.lastRelevant = req
	s.relevantHits++
	if len(s.relevantErrs) > 0 {
		err := s.relevantErrs[0]
		s.relevantErrs = s.relevantErrs[1:]
		return nil, err
	}
	return &LeadsResponse{Leads: s.fresh}, nil
}

func (s *stubLeadServer) GetLeadsByStatus(ctx context.Context, req *GetLeadsByStatusRequest) (*LeadsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !req.Status.IsValid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
	}
	return &LeadsResponse{Leads: s.byStatus[req.Status]}, nil
}

func (s *stubLeadServer) UpdateLeadStatus(ctx context.Context, req *UpdateLeadStatusRequest) (*UpdateLeadStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMD, _ = metadata.FromIncomingContext(ctx)
	s.updates = append(s.updates, *req)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	for i, l := range s.fresh {
		if l.ID == req.LeadID {
			s.fresh = append(s.fresh[:i:i], s.fresh[i+1:]...)
			l.Status = req.Status
			s.byStatus[req.Status] = append(s.byStatus[req.Status], l)
			return &UpdateLeadStatusResponse{Lead: &l}, nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "lead %s not found", req.LeadID)
}

func (s *stubLeadServer) hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relevantHits
}

// startServer serves stub over bufconn and returns a connected client.
func startServer(t *testing.T, stub *stubLeadServer, opts *ClientOptions) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterLeadServiceServer(srv, stub)
	hs := health.NewServer()
	hs.SetServingStatus(LeadServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	if opts == nil {
		opts = DefaultOptions()
	}
	opts.Insecure = true
	opts.InitialBackoff = time.Millisecond
	opts.MaxBackoff = 5 * time.Millisecond
	opts.ExtraDialOptions = append(opts.ExtraDialOptions, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))

	c := NewGRPCClient("passthrough:///bufnet", opts)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newStub() *stubLeadServer {
	return &stubLeadServer{
		fresh: []leads.Lead{
			{ID: "p1", SourceID: "r/golang", RelevancyScore: 91, Title: "Looking for a triage tool", Status: leads.StatusNew},
			{ID: "p2", SourceID: "r/saas", RelevancyScore: 74, Title: "Any CRM for reddit?", Status: leads.StatusNew},
		},
		byStatus: map[leads.Status][]leads.Lead{
			leads.StatusCompleted: {{ID: "c1", Status: leads.StatusCompleted}},
		},
	}
}

func TestLeadsClient_GetRelevantLeads(t *testing.T) {
	stub := newStub()
	opts := DefaultOptions()
	opts.TenantID = "tenant-1"
	opts.Token = "secret"
	c := startServer(t, stub, opts)
	lc := NewLeadsClient(c, time.Second)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := lc.GetRelevantLeads(context.Background(), leads.Filter{RelevancyScore: 70, Subreddit: "golang", From: from})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, 91, got[0].RelevancyScore)
	assert.Equal(t, "Looking for a triage tool", got[0].Title)

	assert.Equal(t, 70, stub.lastRelevant.RelevancyScore)
	assert.Equal(t, "golang", stub.lastRelevant.Subreddit)
	require.NotNil(t, stub.lastRelevant.From)
	assert.True(t, from.Equal(*stub.lastRelevant.From))
	assert.Nil(t, stub.lastRelevant.To)

	assert.Equal(t, []string{"tenant-1"}, stub.lastMD.Get(MetadataTenantID))
	assert.Equal(t, []string{"Bearer secret"}, stub.lastMD.Get(MetadataAuthorization))
	require.Len(t, stub.lastMD.Get(MetadataRequestID), 1)
	assert.NotEmpty(t, stub.lastMD.Get(MetadataRequestID)[0])
}

func TestLeadsClient_GetLeadsByStatus(t *testing.T) {
	stub := newStub()
	lc := NewLeadsClient(startServer(t, stub, nil), time.Second)

	got, err := lc.GetLeadsByStatus(context.Background(), leads.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)

	empty, err := lc.GetLeadsByStatus(context.Background(), leads.StatusLead)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = lc.GetLeadsByStatus(context.Background(), leads.Status("BOGUS"))
	assert.True(t, rderrors.IsValidation(err))
}

func TestLeadsClient_RetriesUnavailable(t *testing.T) {
	stub := newStub()
	stub.relevantErrs = []error{
		status.Error(codes.Unavailable, "warming up"),
		status.Error(codes.Unavailable, "warming up"),
	}
	lc := NewLeadsClient(startServer(t, stub, nil), time.Second)

	got, err := lc.GetRelevantLeads(context.Background(), leads.Filter{RelevancyScore: 70})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 3, stub.hits())
}

func TestLeadsClient_DoesNotRetryPermanentErrors(t *testing.T) {
	stub := newStub()
	stub.relevantErrs = []error{status.Error(codes.PermissionDenied, "tenant suspended")}
	lc := NewLeadsClient(startServer(t, stub, nil), time.Second)

	_, err := lc.GetRelevantLeads(context.Background(), leads.Filter{RelevancyScore: 70})
	require.Error(t, err)
	assert.True(t, rderrors.IsForbidden(err))
	assert.Contains(t, err.Error(), "tenant suspended")
	assert.Equal(t, 1, stub.hits())
}

func TestLeadsClient_UpdateLeadStatus(t *testing.T) {
	stub := newStub()
	lc := NewLeadsClient(startServer(t, stub, nil), time.Second)

	require.NoError(t, lc.UpdateLeadStatus(context.Background(), "p1", leads.StatusLead))
	require.Len(t, stub.updates, 1)
	assert.Equal(t, UpdateLeadStatusRequest{LeadID: "p1", Status: leads.StatusLead}, stub.updates[0])

	err := lc.UpdateLeadStatus(context.Background(), "missing", leads.StatusLead)
	assert.True(t, rderrors.IsNotFound(err))

	stub.mu.Lock()
	stub.updateErr = status.Error(codes.Unavailable, "down")
	stub.mu.Unlock()
	err = lc.UpdateLeadStatus(context.Background(), "p2", leads.StatusCompleted)
	assert.True(t, rderrors.IsUnavailable(err))
	assert.Len(t, stub.updates, 3, "updates are never retried")
}

func TestLeadsClient_DrivesCoordinator(t *testing.T) {
	stub := newStub()
	lc := NewLeadsClient(startServer(t, stub, nil), time.Second)
	coord := leads.NewCoordinator(lc)
	ctx := context.Background()

	require.NoError(t, coord.LoadAll(ctx, leads.Filter{RelevancyScore: 70}))
	snap := coord.Snapshot()
	assert.Equal(t, "p1", snap.Selected)
	assert.Len(t, snap.New, 2)
	assert.Len(t, snap.Completed, 1)

	require.NoError(t, coord.Classify(ctx, "p1", leads.StatusNotRelevant))
	snap = coord.Snapshot()
	assert.Equal(t, "p2", snap.Selected)
	require.Len(t, snap.Discarded, 1)
	assert.Equal(t, "p1", snap.Discarded[0].ID)

	require.NoError(t, coord.OnFilterChanged(ctx, leads.Filter{RelevancyScore: 70}))
	snap = coord.Snapshot()
	require.Len(t, snap.New, 1)
	assert.Equal(t, "p2", snap.New[0].ID)
	require.Len(t, snap.Discarded, 1)
}

func TestLeadsClient_Timeout(t *testing.T) {
	stub := newStub()
	c := startServer(t, stub, nil)
	lc := NewLeadsClient(c, time.Nanosecond)

	err := lc.UpdateLeadStatus(context.Background(), "p1", leads.StatusLead)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGRPCClient_GetStatus(t *testing.T) {
	c := startServer(t, newStub(), nil)

	st, err := c.GetStatus(context.Background(), LeadServiceName)
	require.NoError(t, err)
	assert.True(t, st.Serving)
	assert.Equal(t, "SERVING", st.Status)
	assert.Equal(t, "ready", st.State)
	assert.NoError(t, c.HealthCheck(context.Background()))

	_, err = c.GetStatus(context.Background(), "unknown.Service")
	assert.True(t, rderrors.IsNotFound(err))
}

func TestMapRPCError(t *testing.T) {
	tests := []struct {
		code  codes.Code
		check func(error) bool
	}{
		{codes.NotFound, rderrors.IsNotFound},
		{codes.InvalidArgument, rderrors.IsValidation},
		{codes.FailedPrecondition, rderrors.IsInvalidState},
		{codes.Aborted, rderrors.IsConflict},
		{codes.Unauthenticated, rderrors.IsUnauthorized},
		{codes.PermissionDenied, rderrors.IsForbidden},
		{codes.Unavailable, rderrors.IsUnavailable},
		{codes.DeadlineExceeded, func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }},
		{codes.Canceled, func(err error) bool { return errors.Is(err, context.Canceled) }},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := mapRPCError(status.Error(tt.code, "boom"))
			assert.True(t, tt.check(err), "got %v", err)
			assert.Contains(t, err.Error(), "boom")
		})
	}

	assert.NoError(t, mapRPCError(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, mapRPCError(plain))
	assert.Contains(t, mapRPCError(status.Error(codes.Internal, "kaput")).Error(), "Internal")
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&UpdateLeadStatusRequest{LeadID: "p1", Status: leads.StatusLead})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lead_id":"p1","status":"LEAD"}`, string(data))

	var out UpdateLeadStatusRequest
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, "p1", out.LeadID)
	assert.NoError(t, codec.Unmarshal(nil, &out))
	assert.Error(t, codec.Unmarshal([]byte("{"), &out))
}

func TestLeadsClient_RedialsAfterShutdown(t *testing.T) {
	c := startServer(t, newStub(), nil)
	lc := NewLeadsClient(c, 0)

	stale := c.GetConnection()
	require.NoError(t, stale.Close())
	assert.Equal(t, "shutdown", c.ConnectionState())

	got, err := lc.GetRelevantLeads(context.Background(), leads.Filter{RelevancyScore: 70})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NotSame(t, stale, c.GetConnection())
	assert.True(t, c.IsConnected())

	require.NoError(t, c.GetConnection().Close())
	st, err := c.GetStatus(context.Background(), LeadServiceName)
	require.NoError(t, err)
	assert.True(t, st.Serving)
	assert.Equal(t, "passthrough:///bufnet", st.Address)
}

func TestLeadsClient_NotConnected(t *testing.T) {
	lc := NewLeadsClient(NewGRPCClient("localhost:50051", &ClientOptions{}), 0)

	_, err := lc.GetLeadsByStatus(context.Background(), leads.StatusCompleted)
	assert.True(t, rderrors.IsUnavailable(err))
}
