package slot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/1ureka/drivetun/internal/storage"
	"github.com/1ureka/drivetun/internal/util"
)

// placeholder is the content of a freshly created slot. The client never reads
// a slot before it is notified, so the bytes only need to be non-empty.
var placeholder = []byte{0, 1, 2, 3}

// ProvisionStore is the storage surface needed to prepare the pool.
type ProvisionStore interface {
	storage.Uploader
	storage.Lister
}

// Provision makes sure parent holds at least count objects and returns a Pool
// over the first count of them in listing order. Missing slots are created
// and named after their index.
func Provision(ctx context.Context, store ProvisionStore, parent string, count int) (*Pool, error) {
	if count < 1 || count > 1<<16 {
		return nil, fmt.Errorf("slot: invalid slot count %d", count)
	}

	existing, err := store.ListChildren(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("slot: list existing slots: %w", err)
	}

	if missing := count - len(existing); missing > 0 {
		util.LogInfo("creating %d missing slot(s) in %s", missing, parent)
	}
	for i := len(existing); i < count; i++ {
		obj, err := store.Upload(ctx, bytes.NewReader(placeholder), strconv.Itoa(i), parent, "")
		if err != nil {
			return nil, fmt.Errorf("slot: create slot %d: %w", i, err)
		}
		util.LogDebug("created slot %d (%s)", i, obj.ID)
	}

	objs, err := store.ListChildren(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("slot: list slots: %w", err)
	}
	if len(objs) < count {
		return nil, fmt.Errorf("slot: folder holds %d slot(s) after provisioning, need %d", len(objs), count)
	}

	ids := make([]string, count)
	for i := range ids {
		ids[i] = objs[i].ID
	}
	return NewPool(ids)
}
