package stores

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/openfroyo/catalogd/pkg/engine"
)

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("wi-%02d", i)
			item := &engine.WorkItem{ID: id, Kind: engine.KindHost, Operation: engine.OperationRestart}
			if err := store.SaveWorkItem(ctx, item); err != nil {
				t.Errorf("failed to save %s: %v", id, err)
				return
			}
			if _, err := store.GetWorkItem(ctx, id); err != nil {
				t.Errorf("failed to get %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	items, err := store.ListWorkItems(ctx)
	if err != nil {
		t.Fatalf("failed to list work items: %v", err)
	}
	if len(items) != 20 {
		t.Errorf("expected 20 work items, got %d", len(items))
	}
}

func TestMemoryStoreCopiesOnSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	host := &engine.Host{ID: "h-1", ServiceID: "svc-1", Status: engine.StatusDeploying}
	if err := store.SaveHost(ctx, host); err != nil {
		t.Fatalf("failed to save host: %v", err)
	}

	host.Status = engine.StatusIdle

	stored, err := store.GetHost(ctx, "svc-1", "h-1")
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	if stored.Status != engine.StatusDeploying {
		t.Errorf("expected stored status %q, got %q", engine.StatusDeploying, stored.Status)
	}
}

func TestMemoryStoreRejectsEmptyIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveWorkItem(ctx, &engine.WorkItem{}); err == nil {
		t.Error("expected error saving work item without id")
	}
	if err := store.SaveHost(ctx, &engine.Host{}); err == nil {
		t.Error("expected error saving host without id")
	}
	if err := store.SaveMembershipRef(ctx, &engine.MembershipRef{HostID: "h-1"}); err == nil {
		t.Error("expected error saving membership without endpoint id")
	}
}
