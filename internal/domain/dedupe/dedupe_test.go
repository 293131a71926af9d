package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/ladder/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it is empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When creating a deduper with a capacity hint", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(100))

			Convey("Then it is still empty and unbounded", func() {
				So(d.Size(), ShouldEqual, 0)
				for i := 0; i < 250; i++ {
					d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
				}
				So(d.Size(), ShouldEqual, 250)
				So(d.Contains("k-0"), ShouldBeTrue)
			})
		})

		Convey("When recording keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key is new", func() {
				seen := d.SeenAndRecord(ctx, "2026-10-19\x1fS1\x1f7A")

				Convey("Then it returns false and records the key", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
					So(d.Contains("2026-10-19\x1fS1\x1f7A"), ShouldBeTrue)
				})
			})

			Convey("And the key was already seen", func() {
				d.SeenAndRecord(ctx, "k")
				seen := d.SeenAndRecord(ctx, "k")

				Convey("Then it returns true and the size is unchanged", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording keys", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "k")
			d.Unrecord(ctx, "k")
			d.Unrecord(ctx, "never-seen")

			Convey("Then the key can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Contains("k"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is reset", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "a")
			d.SeenAndRecord(ctx, "b")
			d.Reset()

			Convey("Then every key is forgotten", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Contains("a"), ShouldBeFalse)
			})
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given many goroutines racing on the same keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		const workers, keys = 16, 100
		var fresh atomic.Int64
		var wg sync.WaitGroup

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < keys; k++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("key-%d", k)) {
						fresh.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is reported new exactly once", func() {
			So(fresh.Load(), ShouldEqual, keys)
			So(d.Size(), ShouldEqual, keys)
		})
	})
}
