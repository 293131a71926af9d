package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/ladder/internal/adapters/roster"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/tier"
	"github.com/okian/ladder/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const rosterCSV = "id,name,section\nS1,Ana,7A\nS2,Ben,7A\nS3,Chai,7B\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "students.csv")
	if err := os.WriteFile(path, []byte(rosterCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.RosterPath = path
	cfg.StorePath = filepath.Join(dir, "state.json")
	cfg.Timezone = "UTC"
	return cfg
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestOpenStore(t *testing.T) {
	log := logger.Nop()

	convey.Convey("Given each store backend", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)

		convey.Convey("When the backend is memory", func() {
			cfg.StoreBackend = config.BackendMemory
			store, err := openStore(ctx, cfg, log)

			convey.Convey("Then a working store is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Set(ctx, "k", "v"), convey.ShouldBeNil)
				v, ok, err := store.Get(ctx, "k")
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(v, convey.ShouldEqual, "v")
			})
		})

		convey.Convey("When the backend is file", func() {
			cfg.StoreBackend = config.BackendFile
			store, err := openStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store.Set(ctx, "k", "v"), convey.ShouldBeNil)
			convey.So(store.Close(), convey.ShouldBeNil)

			convey.Convey("Then values are written to the configured path", func() {
				_, err := os.Stat(cfg.StorePath)
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the backend is redis", func() {
			mr := miniredis.RunT(t)
			cfg.StoreBackend = config.BackendRedis
			cfg.RedisURL = "redis://" + mr.Addr() + "/0"
			cfg.RedisKeyPrefix = "ladder:"
			store, err := openStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			convey.Convey("Then keys carry the configured prefix", func() {
				convey.So(store.Set(ctx, "k", "v"), convey.ShouldBeNil)
				got, err := mr.Get("ladder:k")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldEqual, "v")
			})
		})

		convey.Convey("When redis is unreachable", func() {
			cfg.StoreBackend = config.BackendRedis
			cfg.RedisURL = "redis://" + freeAddr(t) + "/0"
			_, err := openStore(ctx, cfg, log)

			convey.Convey("Then opening fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the backend is unknown", func() {
			cfg.StoreBackend = "etcd"
			_, err := openStore(ctx, cfg, log)

			convey.Convey("Then an invalid config error is returned", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestNewService(t *testing.T) {
	log := logger.Nop()

	convey.Convey("Given a roster file and a memory store", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.StoreBackend = config.BackendMemory

		convey.Convey("When the service is built", func() {
			svc, err := newService(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then it is started with the roster sections", func() {
				convey.So(svc.Sections(), convey.ShouldResemble, []string{"7A", "7B"})
				res, err := svc.Transition(ctx, "7A", "S1", tier.Green)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.To, convey.ShouldEqual, tier.Green)
				convey.So(svc.GetStats()["started"], convey.ShouldEqual, true)
			})
		})

		convey.Convey("When the roster is missing", func() {
			cfg.RosterPath = filepath.Join(t.TempDir(), "missing.csv")
			_, err := newService(ctx, cfg, log)

			convey.Convey("Then startup fails with an ingestion error", func() {
				convey.So(roster.IsIngestion(err), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the timezone is invalid", func() {
			cfg.Timezone = "Mars/Olympus"
			_, err := newService(ctx, cfg, log)

			convey.Convey("Then startup fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configured server", t, func() {
		cfg := testConfig(t)
		cfg.StoreBackend = config.BackendMemory
		cfg.Addr = freeAddr(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Nop()) }()

		convey.Convey("When it is serving", func() {
			client := &http.Client{Timeout: time.Second}
			var resp *http.Response
			var err error
			for i := 0; i < 50; i++ {
				resp, err = client.Get("http://" + cfg.Addr + "/healthz")
				if err == nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}

			convey.Convey("Then health answers and cancellation stops it cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				_ = resp.Body.Close()

				docs, err := client.Get("http://" + cfg.Addr + "/openapi.yaml")
				convey.So(err, convey.ShouldBeNil)
				convey.So(docs.StatusCode, convey.ShouldEqual, http.StatusOK)
				_ = docs.Body.Close()

				cancel()
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops exit when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			doneSys := make(chan struct{})
			go func() { startSystemMetricsUpdater(ctx); close(doneSys) }()
			select {
			case <-doneSys:
			case <-time.After(time.Second):
				t.Fatal("system metrics updater did not stop")
			}
		})
	})
}
