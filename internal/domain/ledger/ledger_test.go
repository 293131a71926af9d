package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/okian/ladder/internal/adapters/kvstore"
	"github.com/okian/ladder/internal/domain/codec"
	"github.com/okian/ladder/internal/domain/ledger"
	"github.com/okian/ladder/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

var errTransport = errors.New("connection refused")

// flakyStore fails reads or writes on demand.
type flakyStore struct {
	*kvstore.MemoryStore
	failGet bool
	failSet bool
	sets    int
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errTransport
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errTransport
	}
	s.sets++
	return s.MemoryStore.Set(ctx, key, value)
}

func advance(ctx context.Context, g *ledger.Ledger, class, student string, to ...tier.Tier) {
	for _, t := range to {
		_, err := g.RequestTransition(ctx, class, student, t)
		So(err, ShouldBeNil)
	}
}

func TestRequestTransition(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		ctx := context.Background()
		g := ledger.New(kvstore.NewMemoryStore())

		Convey("When S1 skips from none to silver", func() {
			_, err := g.RequestTransition(ctx, "7A", "S1", tier.Silver)

			Convey("Then it is rejected with green as the expected tier", func() {
				var rej *ledger.TransitionRejected
				So(errors.As(err, &rej), ShouldBeTrue)
				So(errors.Is(err, ledger.ErrTransitionRejected), ShouldBeTrue)
				So(rej.From, ShouldEqual, tier.None)
				So(rej.Expected, ShouldEqual, tier.Green)
				So(rej.Terminal, ShouldBeFalse)
				So(rej.Reason(), ShouldEqual, ledger.ReasonSkip)
				So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.None)
			})

			Convey("And then requests green", func() {
				tr, err := g.RequestTransition(ctx, "7A", "S1", tier.Green)

				Convey("Then it is accepted", func() {
					So(err, ShouldBeNil)
					So(tr, ShouldResemble, ledger.Transition{StudentID: "S1", From: tier.None, To: tier.Green})
					So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.Green)
				})

				Convey("And then jumps to gold", func() {
					_, err := g.RequestTransition(ctx, "7A", "S1", tier.Gold)

					Convey("Then it must pass bronze first", func() {
						var rej *ledger.TransitionRejected
						So(errors.As(err, &rej), ShouldBeTrue)
						So(rej.Expected, ShouldEqual, tier.Bronze)
						So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.Green)
					})
				})
			})
		})

		Convey("When a student at gold asks for anything", func() {
			advance(ctx, g, "7A", "S2", tier.Green, tier.Bronze, tier.Silver, tier.Gold)

			Convey("Then the rejection is terminal", func() {
				for _, to := range tier.All() {
					_, err := g.RequestTransition(ctx, "7A", "S2", to)
					var rej *ledger.TransitionRejected
					So(errors.As(err, &rej), ShouldBeTrue)
					So(rej.Terminal, ShouldBeTrue)
					So(rej.Reason(), ShouldEqual, ledger.ReasonTerminal)
				}
				So(g.Tier(ctx, "7A", "S2"), ShouldEqual, tier.Gold)
			})
		})

		Convey("When a student asks to go back", func() {
			advance(ctx, g, "7A", "S3", tier.Green, tier.Bronze)
			_, err := g.RequestTransition(ctx, "7A", "S3", tier.None)

			Convey("Then it is rejected as backward", func() {
				var rej *ledger.TransitionRejected
				So(errors.As(err, &rej), ShouldBeTrue)
				So(rej.Backward, ShouldBeTrue)
				So(rej.Expected, ShouldEqual, tier.Silver)
				So(err.Error(), ShouldContainSubstring, "forward only")
			})
		})

		Convey("When an unknown tier value is requested", func() {
			_, err := g.RequestTransition(ctx, "7A", "S1", tier.Tier(42))
			So(errors.Is(err, tier.ErrUnknownTier), ShouldBeTrue)
		})

		Convey("When classes share a student ID", func() {
			advance(ctx, g, "7A", "S1", tier.Green)

			Convey("Then their tiers are independent", func() {
				So(g.Tier(ctx, "7B", "S1"), ShouldEqual, tier.None)
			})
		})
	})
}

func TestNoOpPlacement(t *testing.T) {
	Convey("Given a store that counts writes", t, func() {
		ctx := context.Background()
		st := &flakyStore{MemoryStore: kvstore.NewMemoryStore()}
		g := ledger.New(st)

		Convey("When a student at none is placed at none", func() {
			tr, err := g.RequestTransition(ctx, "7A", "S1", tier.None)

			Convey("Then it is accepted without a write", func() {
				So(err, ShouldBeNil)
				So(tr.Changed(), ShouldBeFalse)
				So(st.sets, ShouldEqual, 0)
			})
		})
	})
}

func TestPersistence(t *testing.T) {
	Convey("Given a ledger over a shared store", t, func() {
		ctx := context.Background()
		st := kvstore.NewMemoryStore()
		g := ledger.New(st)
		advance(ctx, g, "7A", "S1", tier.Green, tier.Bronze)
		advance(ctx, g, "7A", "S2", tier.Green)

		Convey("When a fresh ledger reads the same store", func() {
			again := ledger.New(st)

			Convey("Then every assignment is restored", func() {
				So(again.Snapshot(ctx, "7A"), ShouldResemble, map[string]tier.Tier{"S1": tier.Bronze, "S2": tier.Green})
			})
		})

		Convey("When the stored value is in the legacy format", func() {
			So(st.Set(ctx, codec.TierKey("8C"), `{"S9":"silver"}`), ShouldBeNil)

			Convey("Then it is read and can advance", func() {
				So(g.Tier(ctx, "8C", "S9"), ShouldEqual, tier.Silver)
				_, err := g.RequestTransition(ctx, "8C", "S9", tier.Gold)
				So(err, ShouldBeNil)

				raw, _, _ := st.Get(ctx, codec.TierKey("8C"))
				So(raw, ShouldContainSubstring, `"version":2`)
			})
		})

		Convey("When the stored value is corrupt", func() {
			So(st.Set(ctx, codec.TierKey("9Z"), "{{{"), ShouldBeNil)

			Convey("Then the class reads as empty and progression starts over", func() {
				So(g.Tier(ctx, "9Z", "S1"), ShouldEqual, tier.None)
				_, err := g.RequestTransition(ctx, "9Z", "S1", tier.Green)
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestStoreFailures(t *testing.T) {
	Convey("Given a store whose reads fail", t, func() {
		ctx := context.Background()
		st := &flakyStore{MemoryStore: kvstore.NewMemoryStore(), failGet: true}
		g := ledger.New(st)

		Convey("Then Tier reads as none", func() {
			So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.None)
		})

		Convey("Then a transition is aborted instead of overwriting the map", func() {
			_, err := g.RequestTransition(ctx, "7A", "S1", tier.Green)
			So(errors.Is(err, errTransport), ShouldBeTrue)
			So(errors.Is(err, ledger.ErrTransitionRejected), ShouldBeFalse)
			So(st.sets, ShouldEqual, 0)
		})

		Convey("When reads recover", func() {
			_ = g.Tier(ctx, "7A", "S1")
			st.failGet = false
			So(st.MemoryStore.Set(ctx, codec.TierKey("7A"), `{"version":2,"tiers":{"S1":"green"}}`), ShouldBeNil)

			Convey("Then the failed read was not cached", func() {
				So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.Green)
			})
		})
	})

	Convey("Given a store whose writes fail", t, func() {
		ctx := context.Background()
		st := &flakyStore{MemoryStore: kvstore.NewMemoryStore(), failSet: true}
		g := ledger.New(st)

		_, err := g.RequestTransition(ctx, "7A", "S1", tier.Green)

		Convey("Then the error surfaces and the cached tier is unchanged", func() {
			So(errors.Is(err, errTransport), ShouldBeTrue)
			So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.None)
		})
	})
}

func TestResetClass(t *testing.T) {
	Convey("Given a class with advanced students", t, func() {
		ctx := context.Background()
		st := kvstore.NewMemoryStore()
		g := ledger.New(st)
		advance(ctx, g, "7A", "S1", tier.Green, tier.Bronze)
		advance(ctx, g, "7A", "S2", tier.Green)
		advance(ctx, g, "7B", "S1", tier.Green)

		So(g.ResetClass(ctx, "7A"), ShouldBeNil)

		Convey("Then every student in the class reads none", func() {
			So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.None)
			So(g.Tier(ctx, "7A", "S2"), ShouldEqual, tier.None)
			So(g.Snapshot(ctx, "7A"), ShouldBeEmpty)
		})

		Convey("Then other classes are untouched", func() {
			So(g.Tier(ctx, "7B", "S1"), ShouldEqual, tier.Green)
		})

		Convey("Then the key is gone from the store", func() {
			_, ok, err := st.Get(ctx, codec.TierKey("7A"))
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(ledger.New(st).Tier(ctx, "7A", "S1"), ShouldEqual, tier.None)
		})

		Convey("Then progression restarts from green", func() {
			_, err := g.RequestTransition(ctx, "7A", "S1", tier.Green)
			So(err, ShouldBeNil)
		})
	})
}

func TestApplyHook(t *testing.T) {
	Convey("Given a ledger and a commit hook", t, func() {
		ctx := context.Background()
		g := ledger.New(kvstore.NewMemoryStore())
		var seen []ledger.Transition
		hook := func(_ context.Context, tr ledger.Transition) { seen = append(seen, tr) }

		Convey("When a transition is accepted", func() {
			_, err := g.Apply(ctx, "7A", "S1", tier.Green, hook)
			So(err, ShouldBeNil)

			Convey("Then the hook sees it", func() {
				So(seen, ShouldResemble, []ledger.Transition{{StudentID: "S1", From: tier.None, To: tier.Green}})
			})
		})

		Convey("When a transition is rejected", func() {
			_, err := g.Apply(ctx, "7A", "S1", tier.Gold, hook)
			So(err, ShouldNotBeNil)

			Convey("Then the hook does not run", func() {
				So(seen, ShouldBeEmpty)
			})
		})
	})
}

func TestConcurrentTransitions(t *testing.T) {
	Convey("Given many goroutines advancing the same student to green", t, func() {
		ctx := context.Background()
		g := ledger.New(kvstore.NewMemoryStore())
		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0

		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := g.RequestTransition(ctx, "7A", "S1", tier.Green); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = g.RequestTransition(ctx, fmt.Sprintf("class-%d", i), "S1", tier.Green)
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one is accepted", func() {
			So(accepted, ShouldEqual, 1)
			So(g.Tier(ctx, "7A", "S1"), ShouldEqual, tier.Green)
		})
	})
}

func TestRandomRequestsOnlyClimb(t *testing.T) {
	Convey("Given a ledger fed random tier requests", t, func() {
		ctx := context.Background()
		store := kvstore.NewMemoryStore()
		g := ledger.New(store)
		rng := rand.New(rand.NewPCG(7, 11))
		all := tier.All()
		ids := []string{"S1", "S2", "S3", "S4"}

		accepted, rejected := 0, 0
		for i := 0; i < 2000; i++ {
			id := ids[rng.IntN(len(ids))]
			to := all[rng.IntN(len(all))]
			before := g.Tier(ctx, "7A", id)

			tr, err := g.RequestTransition(ctx, "7A", id, to)
			after := g.Tier(ctx, "7A", id)

			if err != nil {
				rejected++
				So(errors.Is(err, ledger.ErrTransitionRejected), ShouldBeTrue)
				So(after, ShouldEqual, before)
				continue
			}
			accepted++
			So(tr.From, ShouldEqual, before)
			So(after, ShouldEqual, to)
			if tr.Changed() {
				So(after.Index(), ShouldEqual, before.Index()+1)
			} else {
				So(before, ShouldEqual, tier.None)
				So(after, ShouldEqual, tier.None)
			}
		}

		Convey("Then both outcomes occurred and a reload sees the same tiers", func() {
			So(accepted, ShouldBeGreaterThan, 0)
			So(rejected, ShouldBeGreaterThan, 0)

			reloaded := ledger.New(store)
			for _, id := range ids {
				So(reloaded.Tier(ctx, "7A", id), ShouldEqual, g.Tier(ctx, "7A", id))
			}
		})
	})
}
