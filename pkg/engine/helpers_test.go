package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/stores"
)

// recordingSender records every dispatched work item and answers with a fixed result.
type recordingSender struct {
	mu     sync.Mutex
	result engine.DispatchResult
	err    error
	sent   []string
}

func (s *recordingSender) Send(_ context.Context, item *engine.WorkItem) (engine.DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, item.ID)
	return s.result, s.err
}

func (s *recordingSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// countingRecorder counts processor measurements.
type countingRecorder struct {
	mu         sync.Mutex
	dispatches map[engine.DispatchResult]int
	successes  int
	failures   int
	faults     map[string]int
	rolledBack int
	expired    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		dispatches: make(map[engine.DispatchResult]int),
		faults:     make(map[string]int),
	}
}

func (r *countingRecorder) RecordDispatch(_ engine.Action, result engine.DispatchResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches[result]++
}

func (r *countingRecorder) RecordOutcome(_ engine.Action, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.successes++
	} else {
		r.failures++
	}
}

func (r *countingRecorder) RecordIntegrityFault(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults[code]++
}

func (r *countingRecorder) RecordRollback(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolledBack += count
}

func (r *countingRecorder) RecordExpired(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired += count
}

type fixture struct {
	store     *stores.MemoryStore
	sender    *recordingSender
	recorder  *countingRecorder
	processor *engine.Processor
}

func newFixture(result engine.DispatchResult, opts ...engine.ProcessorOption) *fixture {
	f := &fixture{
		store:    stores.NewMemoryStore(),
		sender:   &recordingSender{result: result},
		recorder: newCountingRecorder(),
	}
	f.processor = engine.NewProcessor(f.store, f.sender, f.recorder, zerolog.Nop(), opts...)
	return f
}

var (
	testRequestor = engine.Requestor{Username: "alice", FullName: "Alice Example"}
	testTeam      = engine.TeamRef{ID: "team-1", Name: "Platform"}
	testService   = engine.ServiceRef{ID: "svc-1", Name: "billing"}
)

func (f *fixture) addHost(t *testing.T, id, status string) *engine.Host {
	t.Helper()
	host := &engine.Host{
		ID:         id,
		Name:       "dc1-prod-bil-" + id,
		ServiceID:  testService.ID,
		ModuleID:   "mod-1",
		DataCenter: "dc1",
		Network:    "prod",
		Env:        "java8",
		Size:       "medium",
		Status:     status,
	}
	if err := f.store.SaveHost(context.Background(), host); err != nil {
		t.Fatalf("failed to save host: %v", err)
	}
	return host
}

func (f *fixture) addEndpoint(t *testing.T, id, status string) *engine.Endpoint {
	t.Helper()
	endpoint := &engine.Endpoint{
		ID:          id,
		Name:        "billing-" + id,
		ServiceID:   testService.ID,
		Network:     "prod",
		Protocol:    "HTTP",
		VIPPort:     80,
		ServicePort: 8080,
		Status:      status,
	}
	if err := f.store.SaveEndpoint(context.Background(), endpoint); err != nil {
		t.Fatalf("failed to save endpoint: %v", err)
	}
	return endpoint
}

func (f *fixture) addMembership(t *testing.T, hostID, endpointID, status string) {
	t.Helper()
	ref := &engine.MembershipRef{HostID: hostID, EndpointID: endpointID, Status: status}
	if err := f.store.SaveMembershipRef(context.Background(), ref); err != nil {
		t.Fatalf("failed to save membership: %v", err)
	}
}

func hostItem(op engine.Operation, host *engine.Host) *engine.WorkItem {
	snapshot := host.Snapshot()
	snapshot.Version = "1.0.0"
	snapshot.Reason = "test"
	return engine.NewWorkItem(engine.KindHost, op, testRequestor, testTeam, testService, engine.WithHost(snapshot))
}

func endpointItem(op engine.Operation, endpoint *engine.Endpoint) *engine.WorkItem {
	return engine.NewWorkItem(engine.KindEndpoint, op, testRequestor, testTeam, testService,
		engine.WithEndpoint(endpoint.Snapshot()))
}

func membershipItem(op engine.Operation, hostID, endpointID string) *engine.WorkItem {
	return engine.NewWorkItem(engine.KindMembership, op, testRequestor, testTeam, testService,
		engine.WithHost(engine.HostSnapshot{ID: hostID, Name: "host-" + hostID}),
		engine.WithEndpoint(engine.EndpointSnapshot{ID: endpointID, Name: "endpoint-" + endpointID}))
}

// persistChain links and saves items, returning the head.
func (f *fixture) persistChain(t *testing.T, items ...*engine.WorkItem) *engine.WorkItem {
	t.Helper()
	head, err := engine.LinkChain(items...)
	if err != nil {
		t.Fatalf("failed to link chain: %v", err)
	}
	for _, item := range items {
		if err := f.store.SaveWorkItem(context.Background(), item); err != nil {
			t.Fatalf("failed to save work item: %v", err)
		}
	}
	return head
}

func (f *fixture) hostStatus(t *testing.T, id string) string {
	t.Helper()
	host, err := f.store.GetHost(context.Background(), testService.ID, id)
	if err != nil {
		t.Fatalf("failed to get host %s: %v", id, err)
	}
	return host.Status
}

func (f *fixture) hostExists(id string) bool {
	_, err := f.store.GetHost(context.Background(), testService.ID, id)
	return !errors.Is(err, stores.ErrNotFound)
}

func (f *fixture) workItemExists(id string) bool {
	_, err := f.store.GetWorkItem(context.Background(), id)
	return err == nil
}

func (f *fixture) audits(t *testing.T) []*engine.Audit {
	t.Helper()
	audits, err := f.store.ListAudits(context.Background(), testService.ID)
	if err != nil {
		t.Fatalf("failed to list audits: %v", err)
	}
	return audits
}

func success(id string) *engine.Callback {
	return &engine.Callback{RequestID: id, Status: "success", Output: "ok"}
}

func failure(id string) *engine.Callback {
	return &engine.Callback{RequestID: id, Status: "fail", ErrorCode: 1, ErrorDescription: "boom"}
}

func hostID(i int) string {
	return fmt.Sprintf("%03d", i)
}
