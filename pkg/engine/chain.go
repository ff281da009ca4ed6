package engine

import (
	"context"
	"errors"
	"fmt"
)

// LinkChain links items into a linear chain following slice order and returns the head.
// Any NextID already set on the items is overwritten; the tail gets an empty NextID.
func LinkChain(items ...*WorkItem) (*WorkItem, error) {
	if len(items) == 0 {
		return nil, NewValidationError("cannot link an empty chain", nil).WithCode(ErrCodeValidation)
	}

	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item == nil {
			return nil, NewValidationError(fmt.Sprintf("chain member %d is nil", i), nil).
				WithCode(ErrCodeValidation)
		}
		if item.ID == "" {
			return nil, NewValidationError(fmt.Sprintf("chain member %d has no id", i), nil).
				WithCode(ErrCodeValidation)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, NewValidationError("work item appears twice in chain", nil).
				WithCode(ErrCodeChainCycle).
				WithResource(item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	for i := 0; i < len(items)-1; i++ {
		items[i].NextID = items[i+1].ID
	}
	items[len(items)-1].NextID = ""

	return items[0], nil
}

// WalkChain visits the stored chain starting at headID in order, stopping at the tail or when
// fn returns an error. A member that is not stored ends the walk with an integrity error
// coded ErrCodeMissingSuccessor; a repeated id ends it with ErrCodeChainCycle.
func WalkChain(ctx context.Context, store WorkItemStore, headID string, fn func(*WorkItem) error) error {
	visited := make(map[string]struct{})
	prev := ""

	for id := headID; id != ""; {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := visited[id]; ok {
			return NewIntegrityError("chain revisits a work item", nil).
				WithCode(ErrCodeChainCycle).
				WithResource(id)
		}
		visited[id] = struct{}{}

		item, err := store.GetWorkItem(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return NewIntegrityError("chain member not found", err).
					WithCode(ErrCodeMissingSuccessor).
					WithResource(id).
					WithDetail("predecessor", prev)
			}
			return fmt.Errorf("failed to load chain member %s: %w", id, err)
		}

		if err := fn(item); err != nil {
			return err
		}

		prev = id
		id = item.NextID
	}

	return nil
}

// ChainIDs returns the ids of the stored chain starting at headID, in order.
func ChainIDs(ctx context.Context, store WorkItemStore, headID string) ([]string, error) {
	var ids []string
	err := WalkChain(ctx, store, headID, func(item *WorkItem) error {
		ids = append(ids, item.ID)
		return nil
	})
	return ids, err
}
