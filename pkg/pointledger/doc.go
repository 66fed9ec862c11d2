// Package pointledger provides scored-key ledgers: named maps from opaque
// keys to numeric scores held inside inclusive [min, max] bounds.
//
// Typical uses are loyalty points, request budgets and reputation scores,
// where many concurrent writers create, adjust and reap entries.
//
// # Quick Start
//
//	points, err := pointledger.New(
//	    pointledger.WithName("points"),
//	    pointledger.WithBounds(0, 150),
//	    pointledger.WithCodec(pointledger.IdentityCodec()),
//	    pointledger.WithKeyPolicy(core.NonEmpty()),
//	    pointledger.WithStore(store.NewMemoryStore()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	points.Create(ctx, "K1", 150, "signup bonus")  // {K1 150}
//	points.Add(ctx, "K1", -50)                     // {K1 100 -50}
//	points.Delete(ctx, "K1", "cleanup")            // {K1 true}
//
// # Errors
//
// Every failure is a *core.Error naming the operation. Match the kind with
// errors.Is:
//
//	if errors.Is(err, pointledger.ErrAboveMax) {
//	    // the stored value was left untouched
//	}
//
// # Audit Trail
//
// WithLogging(true) records a "<timestamp>---<reason>" entry in
// <name>CreateLog for every creation and in <name>DeleteLog for every
// deletion or reap. A key present in the deletion log can never be created
// again.
//
// # Atomicity
//
// A Ledger holds no locks. Create relies on the store's insert-if-absent,
// Add on a bounded increment that checks existence and range in the same
// step, and Reap on a scripted tombstone-and-remove when scores and logs
// share a backend.
//
// # Configuration
//
// Ledgers can also be declared in YAML and built with FromConfig or
// NewRegistry:
//
//	backend: redis
//	redis:
//	  addr: localhost:6379
//	  prefix: "pointledger:"
//	ledgers:
//	  points:
//	    min: 0
//	    max: 150
//	    log: true
//	    codec: reverse
//	    key_rule: "len=8,alphanum"
package pointledger
