package engine_test

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/stores"
)

// Example demonstrates a two-step chain that provisions a host and deploys to it
// with an executor that answers asynchronously.
func Example() {
	ctx := context.Background()
	store := stores.NewMemoryStore()

	// The executor accepts every work item and reports back later.
	sender := engine.SenderFunc(func(_ context.Context, item *engine.WorkItem) (engine.DispatchResult, error) {
		fmt.Println("dispatched", item.Action())
		return engine.DispatchPending, nil
	})
	processor := engine.NewProcessor(store, sender, nil, zerolog.Nop())

	service := engine.ServiceRef{ID: "svc-1", Name: "billing"}
	host := &engine.Host{ID: "h-1", Name: "dc1-prod-bil-001", ServiceID: service.ID, Status: engine.StatusCreating}
	_ = store.SaveHost(ctx, host)

	requestor := engine.Requestor{Username: "alice"}
	team := engine.TeamRef{ID: "team-1"}
	create := engine.NewWorkItem(engine.KindHost, engine.OperationCreate, requestor, team, service, engine.WithHost(host.Snapshot()))
	deploy := engine.NewWorkItem(engine.KindHost, engine.OperationDeploy, requestor, team, service, engine.WithHost(host.Snapshot()))

	head, _ := engine.LinkChain(create, deploy)
	_ = store.SaveWorkItem(ctx, create)
	_ = store.SaveWorkItem(ctx, deploy)

	_ = processor.Submit(ctx, head)

	// The executor reports that provisioning finished.
	_ = processor.Resolve(ctx, &engine.Callback{RequestID: create.ID, Status: "success"})

	current, _ := store.GetHost(ctx, service.ID, host.ID)
	fmt.Println("host status:", current.Status)

	_ = processor.Resolve(ctx, &engine.Callback{RequestID: deploy.ID, Status: "success"})

	current, _ = store.GetHost(ctx, service.ID, host.ID)
	fmt.Printf("host status: %q\n", current.Status)

	// Output:
	// dispatched host/create
	// dispatched host/deploy
	// host status: Deploying...
	// host status: ""
}
