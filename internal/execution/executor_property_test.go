package execution

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"bracket-trader/internal/models"
)

func replyFor(kind int) reply {
	switch kind {
	case 0:
		return transportFail
	case 1:
		return restricted
	case 2:
		return marginReject
	case 3:
		return noOrderID
	default:
		return reply{id: "accepted"}
	}
}

// Property: protective legs are only ever sent after an entry order id
// exists, and never more than once per leg when the broker accepts them.
func TestProperty_NoProtectiveLegsWithoutEntry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("protective calls happen iff the entry was placed", prop.ForAll(
		func(kinds []int) bool {
			b := newScriptedBroker()
			for _, k := range kinds {
				b.on(models.RoleEntry, replyFor(k))
			}

			group, _ := testExecutor(b).Place(context.Background(), longIntent(), sbin)

			protective := len(b.callsFor(models.RoleStopLoss)) + len(b.callsFor(models.RoleTarget))
			if group.Entry.Submitted() {
				return protective == 2 && group.State == models.GroupProtected
			}
			return protective == 0 && group.State == models.GroupAborted
		},
		gen.SliceOfN(4, gen.IntRange(0, 4)),
	))

	properties.Property("entry attempts never exceed retry count plus one fallback", prop.ForAll(
		func(kinds []int) bool {
			b := newScriptedBroker()
			for _, k := range kinds {
				b.on(models.RoleEntry, replyFor(k))
			}

			testExecutor(b).Place(context.Background(), longIntent(), sbin)

			entries := b.callsFor(models.RoleEntry)
			market := 0
			for _, c := range entries {
				if c.Type == models.OrderTypeMarket {
					market++
				}
			}
			limit := len(entries) - market
			return market <= 1 && limit <= DefaultConfig().RetryCount
		},
		gen.SliceOfN(5, gen.IntRange(0, 4)),
	))

	// Property: the market fallback is sent exactly when the limit entry
	// ended on a restriction rejection.
	properties.Property("fallback only follows a restriction code", prop.ForAll(
		func(kinds []int) bool {
			b := newScriptedBroker()
			for _, k := range kinds {
				b.on(models.RoleEntry, replyFor(k))
			}

			group, _ := testExecutor(b).Place(context.Background(), longIntent(), sbin)

			// Walk the script the way the retry policy consumes it.
			restrictedEnd := false
			for i := 0; i < DefaultConfig().RetryCount && i < len(kinds); i++ {
				k := kinds[i]
				if k == 0 || k == 3 {
					continue
				}
				restrictedEnd = k == 1
				break
			}
			return group.Entry.Fallback == restrictedEnd
		},
		gen.SliceOfN(5, gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}
