package kvstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/ladder/internal/adapters/kvstore"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func exerciseStore(ctx context.Context, s kvstore.Store) {
	Convey("When a missing key is read", func() {
		_, ok, err := s.Get(ctx, "missing")

		Convey("Then it is absent without error", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("When a value is set and overwritten", func() {
		So(s.Set(ctx, "k", "one"), ShouldBeNil)
		So(s.Set(ctx, "k", "two"), ShouldBeNil)
		v, ok, err := s.Get(ctx, "k")

		Convey("Then the latest value is returned", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "two")
		})
	})

	Convey("When a key is deleted", func() {
		So(s.Set(ctx, "gone", "x"), ShouldBeNil)
		So(s.Delete(ctx, "gone"), ShouldBeNil)
		So(s.Delete(ctx, "gone"), ShouldBeNil)
		_, ok, err := s.Get(ctx, "gone")

		Convey("Then it is absent", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("When the key is empty", func() {
		_, _, err := s.Get(ctx, "")
		So(errors.Is(err, kvstore.ErrEmptyKey), ShouldBeTrue)
		So(errors.Is(s.Set(ctx, "", "v"), kvstore.ErrEmptyKey), ShouldBeTrue)
		So(errors.Is(s.Delete(ctx, ""), kvstore.ErrEmptyKey), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := kvstore.NewMemoryStore()

		exerciseStore(ctx, s)

		Convey("When it is closed", func() {
			So(s.Close(), ShouldBeNil)

			Convey("Then operations fail", func() {
				_, _, err := s.Get(ctx, "k")
				So(errors.Is(err, kvstore.ErrClosed), ShouldBeTrue)
				So(errors.Is(s.Set(ctx, "k", "v"), kvstore.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestFileStore(t *testing.T) {
	Convey("Given a file store in a temp dir", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "state.json")
		s, err := kvstore.NewFileStore(ctx, path)
		So(err, ShouldBeNil)

		exerciseStore(ctx, s)

		Convey("When the store is reopened", func() {
			So(s.Set(ctx, "ladder_tiers_class_v1::7A", `{"version":2,"tiers":{}}`), ShouldBeNil)
			So(s.Close(), ShouldBeNil)

			again, err := kvstore.NewFileStore(ctx, path)
			So(err, ShouldBeNil)
			v, ok, err := again.Get(ctx, "ladder_tiers_class_v1::7A")

			Convey("Then previously written values are visible", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, `{"version":2,"tiers":{}}`)
			})
		})
	})

	Convey("Given a corrupt state file", t, func() {
		ctx := context.Background()

		for _, content := range []string{"{not json", "null", `["a"]`, `{"k":1}`} {
			dir := t.TempDir()
			path := filepath.Join(dir, "state.json")
			So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)

			s, err := kvstore.NewFileStore(ctx, path)
			So(err, ShouldBeNil)

			_, ok, err := s.Get(ctx, "ladder_spotlight_v1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			matches, err := filepath.Glob(filepath.Join(dir, "state.json.corrupt-*"))
			So(err, ShouldBeNil)
			So(len(matches), ShouldEqual, 1)

			// The store must stay writable after starting empty.
			So(s.Set(ctx, "k", "v"), ShouldBeNil)
			v, ok, err := s.Get(ctx, "k")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "v")
		}
	})

	Convey("Given an empty path", t, func() {
		_, err := kvstore.NewFileStore(context.Background(), "")
		So(err, ShouldNotBeNil)
	})
}

func TestRedisStore(t *testing.T) {
	Convey("Given a redis store backed by miniredis", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		s, err := kvstore.NewRedisStore(ctx, "redis://"+mr.Addr()+"/0", kvstore.WithKeyPrefix("ladder:"))
		So(err, ShouldBeNil)
		Reset(func() { _ = s.Close() })

		exerciseStore(ctx, s)

		Convey("When a value is set", func() {
			So(s.Set(ctx, "ladder_meta_v1", `{"version":1}`), ShouldBeNil)

			Convey("Then it lands under the prefixed key", func() {
				got, err := mr.Get("ladder:ladder_meta_v1")
				So(err, ShouldBeNil)
				So(got, ShouldEqual, `{"version":1}`)
			})
		})

		Convey("When the server goes away", func() {
			mr.Close()
			_, _, err := s.Get(ctx, "k")

			Convey("Then reads fail instead of reporting absence", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a bad redis URL", t, func() {
		_, err := kvstore.NewRedisStore(context.Background(), "not-a-url")
		So(errors.Is(err, kvstore.ErrConnect), ShouldBeTrue)
	})

	Convey("Given a client built elsewhere", t, func() {
		mr := miniredis.RunT(t)
		s := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		So(s.Set(context.Background(), "a", "b"), ShouldBeNil)
		So(mr.Exists("a"), ShouldBeTrue)
		So(s.Close(), ShouldBeNil)
	})
}

func TestInstrumented(t *testing.T) {
	Convey("Given an instrumented memory store", t, func() {
		ctx := context.Background()
		inner := kvstore.NewMemoryStore()
		s := kvstore.Instrument(inner, "memory")

		exerciseStore(ctx, s)

		Convey("When the inner store fails", func() {
			So(inner.Close(), ShouldBeNil)
			err := s.Set(ctx, "k", "v")

			Convey("Then the error passes through unchanged", func() {
				So(errors.Is(err, kvstore.ErrClosed), ShouldBeTrue)
			})
		})
	})
}
