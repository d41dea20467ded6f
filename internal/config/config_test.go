package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/opsboard/pulse/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Debounce(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.SaveTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.SessionIdleTTL(), convey.ShouldEqual, 30*time.Minute)
			convey.So(cfg.StorageDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.DraftBackend, convey.ShouldEqual, config.DraftBackendStore)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad setting each", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":           func(c *config.Config) { c.Addr = "" },
			"bad level":            func(c *config.Config) { c.LogLevel = "loud" },
			"bad format":           func(c *config.Config) { c.LogFormat = "xml" },
			"zero queue":           func(c *config.Config) { c.QueueSize = 0 },
			"zero workers":         func(c *config.Config) { c.WorkerCount = 0 },
			"zero limit":           func(c *config.Config) { c.MaxLeaderboardLimit = 0 },
			"zero debounce":        func(c *config.Config) { c.DebounceMS = 0 },
			"zero save timeout":    func(c *config.Config) { c.SaveTimeoutMS = 0 },
			"negative idle ttl":    func(c *config.Config) { c.SessionIdleTTLMS = -1 },
			"inverted clamp":       func(c *config.Config) { c.ClampMin, c.ClampMax = 100, 0 },
			"negative grace":       func(c *config.Config) { c.LateGraceDays = -1 },
			"negative rps":         func(c *config.Config) { c.RateLimitRPS = -1 },
			"zero burst":           func(c *config.Config) { c.RateLimitBurst = 0 },
			"unknown driver":       func(c *config.Config) { c.StorageDriver = "mysql" },
			"sqlite without dsn":   func(c *config.Config) { c.StorageDriver = config.DriverSQLite },
			"unknown backend":      func(c *config.Config) { c.DraftBackend = "disk" },
			"redis without addr":   func(c *config.Config) { c.DraftBackend = config.DraftBackendRedis },
			"postgres without dsn": func(c *config.Config) { c.StorageDriver = config.DriverPostgres },
		}

		convey.Convey("Then each one fails with ErrInvalidConfig", func() {
			for name, mutate := range cases {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(name, convey.ShouldNotBeEmpty)
			}
		})

		convey.Convey("Then disabling the rate limit needs no burst", func() {
			cfg := config.New()
			cfg.RateLimitRPS = 0
			cfg.RateLimitBurst = 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
