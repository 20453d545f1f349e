package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/perch/internal/core/messaging"
)

// ActivityLister reads the activity journal.
type ActivityLister interface {
	List(limit int) ([]messaging.Activity, error)
}

// StoreCheck verifies that the local identity and activity files parse.
type StoreCheck struct {
	identities messaging.IdentityStore
	activity   ActivityLister
}

// NewStoreCheck creates a new local store check. activity may be nil when the
// journal is disabled.
func NewStoreCheck(identities messaging.IdentityStore, activity ActivityLister) *StoreCheck {
	return &StoreCheck{
		identities: identities,
		activity:   activity,
	}
}

func (c *StoreCheck) Name() string {
	return "Local Stores"
}

func (c *StoreCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if idents, err := c.identities.List(ctx); err != nil {
		result.fail("Identities", err.Error())
	} else {
		result.pass("Identities", fmt.Sprintf("%d stored", len(idents)))
	}

	if c.activity == nil {
		return result
	}

	if _, err := c.activity.List(1); err != nil {
		result.fail("Activity journal", err.Error())
	} else {
		result.pass("Activity journal", "readable")
	}

	return result
}
