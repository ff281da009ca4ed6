package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openfroyo/catalogd/pkg/engine"
)

func TestSubmitPendingStampsDispatch(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusRestarting)
	item := f.persistChain(t, hostItem(engine.OperationRestart, host))

	if err := f.processor.Submit(ctx, item); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	stored, err := f.store.GetWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("pending work item was removed: %v", err)
	}
	if stored.DispatchedAt == nil {
		t.Error("expected DispatchedAt to be set after dispatch")
	}
	if got := f.sender.Sent(); len(got) != 1 || got[0] != item.ID {
		t.Errorf("expected %s to be sent once, got %v", item.ID, got)
	}
	if f.hostStatus(t, "001") != engine.StatusRestarting {
		t.Errorf("pending dispatch must not change host status")
	}
	if f.recorder.dispatches[engine.DispatchPending] != 1 {
		t.Errorf("expected one pending dispatch recorded")
	}
}

func TestStrictSequencing(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	var items []*engine.WorkItem
	for i := 1; i <= 3; i++ {
		status := engine.StatusRestartQueued
		if i == 1 {
			status = engine.StatusRestarting
		}
		items = append(items, hostItem(engine.OperationRestart, f.addHost(t, hostID(i), status)))
	}
	head := f.persistChain(t, items...)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	for k := 0; k < len(items); k++ {
		sent := f.sender.Sent()
		if len(sent) != k+1 {
			t.Fatalf("before resolving item %d expected %d dispatches, got %d", k+1, k+1, len(sent))
		}
		if sent[k] != items[k].ID {
			t.Fatalf("expected item %d to be dispatched, got %s", k+1, sent[k])
		}
		for j := k + 1; j < len(items); j++ {
			if f.hostStatus(t, hostID(j+1)) != engine.StatusRestartQueued {
				t.Errorf("host %d left queue before its predecessor resolved", j+1)
			}
		}

		if err := f.processor.Resolve(ctx, success(items[k].ID)); err != nil {
			t.Fatalf("Resolve %d failed: %v", k+1, err)
		}

		if f.hostStatus(t, hostID(k+1)) != engine.StatusIdle {
			t.Errorf("host %d should be idle after success", k+1)
		}
		if k+1 < len(items) && f.hostStatus(t, hostID(k+2)) != engine.StatusRestarting {
			t.Errorf("host %d should be restarting once dispatched, got %q", k+2, f.hostStatus(t, hostID(k+2)))
		}
	}

	if got := len(f.audits(t)); got != 3 {
		t.Errorf("expected 3 audits, got %d", got)
	}
}

func TestImmediateSuccessResolvesWholeChain(t *testing.T) {
	f := newFixture(engine.DispatchSucceeded)
	ctx := context.Background()

	h1 := f.addHost(t, "001", engine.StatusCreating)
	h2 := f.addHost(t, "002", engine.StatusCreateQueued)
	items := []*engine.WorkItem{
		hostItem(engine.OperationCreate, h1),
		hostItem(engine.OperationDeploy, h1),
		hostItem(engine.OperationCreate, h2),
		hostItem(engine.OperationDeploy, h2),
	}
	head := f.persistChain(t, items...)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	for _, item := range items {
		if f.workItemExists(item.ID) {
			t.Errorf("work item %s should have been deleted", item.ID)
		}
	}
	if got := len(f.sender.Sent()); got != 4 {
		t.Errorf("expected 4 dispatches, got %d", got)
	}

	audits := f.audits(t)
	if len(audits) != 4 {
		t.Fatalf("expected 4 audits, got %d", len(audits))
	}
	for i, audit := range audits {
		if audit.ID != items[i].ID {
			t.Errorf("audit %d: expected %s, got %s", i, items[i].ID, audit.ID)
		}
	}

	output, err := f.store.AuditOutput(ctx, items[0].ID)
	if err != nil || output != "no output" {
		t.Errorf("expected synthesized output %q, got %q (%v)", "no output", output, err)
	}

	for _, id := range []string{"001", "002"} {
		if status := f.hostStatus(t, id); status != engine.StatusIdle {
			t.Errorf("host %s: expected idle, got %q", id, status)
		}
	}
	if f.recorder.successes != 4 || f.recorder.failures != 0 {
		t.Errorf("expected 4 successes, got %d/%d", f.recorder.successes, f.recorder.failures)
	}
}

func TestImmediateSuccessLongChainDoesNotRecurse(t *testing.T) {
	f := newFixture(engine.DispatchSucceeded)
	ctx := context.Background()

	const n = 5000
	items := make([]*engine.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, engine.NewWorkItem(engine.KindModule, engine.OperationUpdate, testRequestor, testTeam, testService,
			engine.WithModule(engine.ModuleSnapshot{ID: "mod-1", Name: "billing-api"})))
	}
	head := f.persistChain(t, items...)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	remaining, _ := f.store.ListWorkItems(ctx)
	if len(remaining) != 0 {
		t.Errorf("expected all work items resolved, %d remain", len(remaining))
	}
	if got := len(f.audits(t)); got != n {
		t.Errorf("expected %d audits, got %d", n, got)
	}
}

func TestMidChainFailureDiscardsRemainder(t *testing.T) {
	const n = 4

	for j := 1; j <= n; j++ {
		t.Run(hostID(j), func(t *testing.T) {
			f := newFixture(engine.DispatchPending)
			ctx := context.Background()

			var items []*engine.WorkItem
			for i := 1; i <= n; i++ {
				status := engine.StatusDeployQueued
				if i == 1 {
					status = engine.StatusDeploying
				}
				items = append(items, hostItem(engine.OperationDeploy, f.addHost(t, hostID(i), status)))
			}
			head := f.persistChain(t, items...)

			if err := f.processor.Submit(ctx, head); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			for k := 1; k < j; k++ {
				if err := f.processor.Resolve(ctx, success(items[k-1].ID)); err != nil {
					t.Fatalf("Resolve %d failed: %v", k, err)
				}
			}
			if err := f.processor.Resolve(ctx, failure(items[j-1].ID)); err != nil {
				t.Fatalf("failed Resolve returned error: %v", err)
			}

			sent := f.sender.Sent()
			if len(sent) != j {
				t.Errorf("expected %d dispatches, got %d", j, len(sent))
			}
			for _, item := range items {
				if f.workItemExists(item.ID) {
					t.Errorf("work item %s should be gone", item.ID)
				}
			}
			if got := len(f.audits(t)); got != j-1 {
				t.Errorf("expected %d audits, got %d", j-1, got)
			}
			if f.hostStatus(t, hostID(j)) != engine.StatusDeploying {
				t.Errorf("failed deploy must leave host %d as-is", j)
			}
			for i := j + 1; i <= n; i++ {
				if status := f.hostStatus(t, hostID(i)); status != engine.StatusDeployQueued {
					t.Errorf("host %d: expected %q, got %q", i, engine.StatusDeployQueued, status)
				}
			}
			if f.recorder.rolledBack != n-j {
				t.Errorf("expected %d rolled back, got %d", n-j, f.recorder.rolledBack)
			}
		})
	}
}

func TestHostCreateRoundTrip(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusCreating)
	create := hostItem(engine.OperationCreate, host)
	deploy := hostItem(engine.OperationDeploy, host)
	head := f.persistChain(t, create, deploy)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := f.processor.Resolve(ctx, success(create.ID)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if status := f.hostStatus(t, "001"); status != engine.StatusDeploying {
		t.Errorf("expected %q, got %q", engine.StatusDeploying, status)
	}
	sent := f.sender.Sent()
	if len(sent) != 2 || sent[1] != deploy.ID {
		t.Fatalf("expected deploy item to be dispatched, got %v", sent)
	}

	audits := f.audits(t)
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit, got %d", len(audits))
	}
	if audits[0].Notes != `{"env":"java8","reason":"test","size":"medium"}` {
		t.Errorf("unexpected create notes: %s", audits[0].Notes)
	}

	if err := f.processor.Resolve(ctx, success(deploy.ID)); err != nil {
		t.Fatalf("Resolve deploy failed: %v", err)
	}
	if status := f.hostStatus(t, "001"); status != engine.StatusIdle {
		t.Errorf("expected idle host after deploy, got %q", status)
	}
}

func TestHostCreateFailureRemovesHost(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusCreating)
	create := hostItem(engine.OperationCreate, host)
	deploy := hostItem(engine.OperationDeploy, host)
	head := f.persistChain(t, create, deploy)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := f.processor.Resolve(ctx, failure(create.ID)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if f.hostExists("001") {
		t.Error("failed host create should delete the host")
	}
	if f.workItemExists(deploy.ID) {
		t.Error("deploy item should be discarded")
	}
	if len(f.audits(t)) != 0 {
		t.Error("failure must not write audits")
	}
}

func TestHostCreateMissingSuccessor(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusCreating)
	create := hostItem(engine.OperationCreate, host)
	deploy := hostItem(engine.OperationDeploy, host)
	head := f.persistChain(t, create, deploy)
	if err := f.store.DeleteWorkItem(ctx, deploy.ID); err != nil {
		t.Fatalf("failed to delete deploy item: %v", err)
	}

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	err := f.processor.Resolve(ctx, success(create.ID))
	if !engine.IsIntegrity(err) {
		t.Fatalf("expected integrity fault, got %v", err)
	}
	if code := engine.ErrorCode(err); code != engine.ErrCodeMissingSuccessor {
		t.Errorf("expected code %s, got %s", engine.ErrCodeMissingSuccessor, code)
	}
	if status := f.hostStatus(t, "001"); status != engine.StatusIdle {
		t.Errorf("expected host reset to idle, got %q", status)
	}
	if f.recorder.faults[engine.ErrCodeMissingSuccessor] != 1 {
		t.Error("expected integrity fault to be recorded")
	}
}

func TestDuplicateCallbackIsIntegrityFault(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusRestarting)
	item := f.persistChain(t, hostItem(engine.OperationRestart, host))

	if err := f.processor.Submit(ctx, item); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := f.processor.Resolve(ctx, success(item.ID)); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}

	err := f.processor.Resolve(ctx, success(item.ID))
	if !engine.IsIntegrity(err) {
		t.Fatalf("expected integrity fault, got %v", err)
	}
	if code := engine.ErrorCode(err); code != engine.ErrCodeUnknownWorkItem {
		t.Errorf("expected code %s, got %s", engine.ErrCodeUnknownWorkItem, code)
	}
	if len(f.audits(t)) != 1 {
		t.Error("duplicate callback must not write a second audit")
	}
}

func TestResolveUnexpectedAction(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	item := engine.NewWorkItem(engine.KindModule, engine.OperationRestart, testRequestor, testTeam, testService,
		engine.WithModule(engine.ModuleSnapshot{ID: "mod-1", Name: "billing-api"}))
	queued := engine.NewWorkItem(engine.KindModule, engine.OperationUpdate, testRequestor, testTeam, testService)
	f.persistChain(t, item, queued)

	err := f.processor.Resolve(ctx, success(item.ID))
	if !engine.IsIntegrity(err) {
		t.Fatalf("expected integrity fault, got %v", err)
	}
	if code := engine.ErrorCode(err); code != engine.ErrCodeUnexpectedAction {
		t.Errorf("expected code %s, got %s", engine.ErrCodeUnexpectedAction, code)
	}
	if f.workItemExists(item.ID) || f.workItemExists(queued.ID) {
		t.Error("expected chain to be discarded")
	}
	if len(f.audits(t)) != 0 {
		t.Error("unexpected action must not be audited")
	}
}

func TestDispatchFailureResolvesAsFailure(t *testing.T) {
	f := newFixture(engine.DispatchFailed)
	f.sender.err = errors.New("connection refused")
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusDeleting)
	item := f.persistChain(t, hostItem(engine.OperationDelete, host))

	if err := f.processor.Submit(ctx, item); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if f.workItemExists(item.ID) {
		t.Error("failed dispatch should resolve and delete the item")
	}
	if status := f.hostStatus(t, "001"); status != engine.StatusIdle {
		t.Errorf("aborted delete should reset host to idle, got %q", status)
	}
	if f.recorder.failures != 1 || f.recorder.dispatches[engine.DispatchFailed] != 1 {
		t.Error("expected failed dispatch and outcome to be recorded")
	}
}

func TestHostDelete(t *testing.T) {
	f := newFixture(engine.DispatchSucceeded)
	ctx := context.Background()

	host := f.addHost(t, "001", engine.StatusDeleting)
	if err := f.processor.Submit(ctx, f.persistChain(t, hostItem(engine.OperationDelete, host))); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if f.hostExists("001") {
		t.Error("host should be deleted")
	}
	if audits := f.audits(t); len(audits) != 1 || audits[0].Notes != "" {
		t.Errorf("expected one audit without notes, got %+v", audits)
	}
}

func TestMissingTargetIsSkippedButAudited(t *testing.T) {
	f := newFixture(engine.DispatchSucceeded)
	ctx := context.Background()

	ghost := &engine.Host{ID: "gone", Name: "dc1-prod-bil-999", ServiceID: testService.ID}
	if err := f.processor.Submit(ctx, f.persistChain(t, hostItem(engine.OperationRestart, ghost))); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(f.audits(t)) != 1 {
		t.Error("expected resolution to be audited")
	}
}

func TestEndpointTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("create success", func(t *testing.T) {
		f := newFixture(engine.DispatchSucceeded)
		ep := f.addEndpoint(t, "ep-1", engine.StatusCreating)
		if err := f.processor.Submit(ctx, f.persistChain(t, endpointItem(engine.OperationCreate, ep))); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		got, err := f.store.GetEndpoint(ctx, testService.ID, "ep-1")
		if err != nil || got.IsBusy() {
			t.Errorf("expected idle endpoint, got %+v (%v)", got, err)
		}
		audits := f.audits(t)
		if len(audits) != 1 || audits[0].Notes != `{"external":"false","protocol":"HTTP","service_port":"8080","vip_port":"80"}` {
			t.Errorf("unexpected audits %+v", audits)
		}
	})

	t.Run("create failure", func(t *testing.T) {
		f := newFixture(engine.DispatchFailed)
		ep := f.addEndpoint(t, "ep-1", engine.StatusCreating)
		if err := f.processor.Submit(ctx, f.persistChain(t, endpointItem(engine.OperationCreate, ep))); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if _, err := f.store.GetEndpoint(ctx, testService.ID, "ep-1"); err == nil {
			t.Error("failed create should delete the endpoint")
		}
	})

	t.Run("update success applies fields", func(t *testing.T) {
		f := newFixture(engine.DispatchSucceeded)
		ep := f.addEndpoint(t, "ep-1", engine.StatusUpdating)
		item := endpointItem(engine.OperationUpdate, ep)
		item.Endpoint.External = true
		item.Endpoint.ServicePort = 9090
		if err := f.processor.Submit(ctx, f.persistChain(t, item)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		got, _ := f.store.GetEndpoint(ctx, testService.ID, "ep-1")
		if !got.External || got.ServicePort != 9090 || got.IsBusy() {
			t.Errorf("update not applied: %+v", got)
		}
	})

	t.Run("update failure leaves endpoint", func(t *testing.T) {
		f := newFixture(engine.DispatchFailed)
		ep := f.addEndpoint(t, "ep-1", engine.StatusUpdating)
		item := endpointItem(engine.OperationUpdate, ep)
		item.Endpoint.External = true
		if err := f.processor.Submit(ctx, f.persistChain(t, item)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		got, _ := f.store.GetEndpoint(ctx, testService.ID, "ep-1")
		if got.External || got.Status != engine.StatusUpdating {
			t.Errorf("failed update must leave endpoint as-is: %+v", got)
		}
	})

	t.Run("delete success removes memberships", func(t *testing.T) {
		f := newFixture(engine.DispatchSucceeded)
		ep := f.addEndpoint(t, "ep-1", engine.StatusDeleting)
		f.addMembership(t, "h-1", "ep-1", engine.StatusIdle)
		f.addMembership(t, "h-2", "ep-1", engine.StatusIdle)
		if err := f.processor.Submit(ctx, f.persistChain(t, endpointItem(engine.OperationDelete, ep))); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if _, err := f.store.GetEndpoint(ctx, testService.ID, "ep-1"); err == nil {
			t.Error("endpoint should be deleted")
		}
		refs, _ := f.store.ListMembershipRefs(ctx, "ep-1")
		if len(refs) != 0 {
			t.Errorf("expected memberships removed, %d remain", len(refs))
		}
	})
}

// Scenario C: a failed endpoint delete resets the endpoint and keeps its memberships.
func TestEndpointDeleteFailure(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	ep := f.addEndpoint(t, "ep-1", engine.StatusDeleting)
	f.addMembership(t, "h-1", "ep-1", engine.StatusIdle)
	f.addMembership(t, "h-2", "ep-1", engine.StatusIdle)

	item := f.persistChain(t, endpointItem(engine.OperationDelete, ep))
	if err := f.processor.Submit(ctx, item); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := f.processor.Resolve(ctx, &engine.Callback{RequestID: item.ID, Status: "FAIL"}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got, err := f.store.GetEndpoint(ctx, testService.ID, "ep-1")
	if err != nil {
		t.Fatalf("endpoint should remain: %v", err)
	}
	if got.IsBusy() {
		t.Errorf("expected idle endpoint, got %q", got.Status)
	}
	if got.Name != ep.Name || got.VIPPort != ep.VIPPort {
		t.Errorf("endpoint record changed: %+v", got)
	}
	refs, _ := f.store.ListMembershipRefs(ctx, "ep-1")
	if len(refs) != 2 {
		t.Errorf("expected memberships untouched, got %d", len(refs))
	}
	if len(f.audits(t)) != 0 {
		t.Error("failure must not write audits")
	}
}

func TestMembershipTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		op         engine.Operation
		status     string
		result     engine.DispatchResult
		wantExists bool
	}{
		{"add success", engine.OperationAdd, engine.StatusAdding, engine.DispatchSucceeded, true},
		{"add failure", engine.OperationAdd, engine.StatusAdding, engine.DispatchFailed, false},
		{"delete success", engine.OperationDelete, engine.StatusRemoving, engine.DispatchSucceeded, false},
		{"delete failure", engine.OperationDelete, engine.StatusRemoving, engine.DispatchFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.result)
			f.addMembership(t, "h-1", "ep-1", tt.status)

			if err := f.processor.Submit(ctx, f.persistChain(t, membershipItem(tt.op, "h-1", "ep-1"))); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}

			ref, err := f.store.GetMembershipRef(ctx, "h-1", "ep-1")
			if tt.wantExists {
				if err != nil {
					t.Fatalf("expected membership to exist: %v", err)
				}
				if ref.IsBusy() {
					t.Errorf("expected idle membership, got %q", ref.Status)
				}
			} else if err == nil {
				t.Error("expected membership to be deleted")
			}
		})
	}
}

func TestMembershipChainAdvances(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	ctx := context.Background()

	f.addMembership(t, "h-1", "ep-1", engine.StatusAdding)
	f.addMembership(t, "h-2", "ep-1", engine.StatusAdding)
	first := membershipItem(engine.OperationAdd, "h-1", "ep-1")
	second := membershipItem(engine.OperationAdd, "h-2", "ep-1")
	head := f.persistChain(t, first, second)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := f.processor.Resolve(ctx, success(first.ID)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	sent := f.sender.Sent()
	if len(sent) != 2 || sent[1] != second.ID {
		t.Fatalf("expected second membership to be dispatched, got %v", sent)
	}
	ref, _ := f.store.GetMembershipRef(ctx, "h-2", "ep-1")
	if ref.Status != engine.StatusAdding {
		t.Errorf("continuation must keep membership label, got %q", ref.Status)
	}
}

func TestResolveRejectsEmptyCallback(t *testing.T) {
	f := newFixture(engine.DispatchPending)

	if err := f.processor.Resolve(context.Background(), &engine.Callback{}); !engine.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := f.processor.Submit(context.Background(), nil); !engine.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
