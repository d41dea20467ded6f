package config_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/opsboard/pulse/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load()

			convey.Convey("Then it should load the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When environment variables are set", func() {
			_ = os.Setenv("PULSE_ADDR", ":8080")
			_ = os.Setenv("PULSE_DEBOUNCE_MS", "500")
			_ = os.Setenv("PULSE_WORKER_COUNT", "3")
			_ = os.Setenv("PULSE_RATE_LIMIT_RPS", "2.5")
			_ = os.Setenv("PULSE_LOG_FORMAT", "json")

			cfg, err := config.Load()

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DebounceMS, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 2.5)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When a YAML file is given", func() {
			path := createTempConfigFile(t, `
# storage
storage_driver: sqlite
storage_dsn: "file:pulse.db"
save_timeout_ms: 4000
late_grace_days: 3
weights:
  discipline:
    attendance: 0.5
    communication: 0.5
`)
			_ = os.Setenv("PULSE_CONFIG", path)

			cfg, err := config.Load()

			convey.Convey("Then it is merged over the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.StorageDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.StorageDSN, convey.ShouldEqual, "file:pulse.db")
				convey.So(cfg.SaveTimeoutMS, convey.ShouldEqual, 4000)
				convey.So(cfg.LateGraceDays, convey.ShouldEqual, 3)
				convey.So(cfg.Weights["discipline"]["attendance"], convey.ShouldEqual, 0.5)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			})
		})

		convey.Convey("When both a file and env are given", func() {
			path := createTempConfigFile(t, "addr: \":9090\"\nqueue_size: 300\n")
			_ = os.Setenv("PULSE_CONFIG", path)
			_ = os.Setenv("PULSE_ADDR", ":7070")

			cfg, err := config.Load()

			convey.Convey("Then env wins over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("PULSE_CONFIG", "/nonexistent/pulse.yaml")

			cfg, err := config.Load()

			convey.Convey("Then it fails with ErrLoadConfig", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML is malformed", func() {
			path := createTempConfigFile(t, "addr: [unclosed\n")
			_ = os.Setenv("PULSE_CONFIG", path)

			_, err := config.Load()

			convey.Convey("Then it fails with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("PULSE_QUEUE_SIZE", "lots")

			_, err := config.Load()

			convey.Convey("Then it fails with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the result does not validate", func() {
			_ = os.Setenv("PULSE_DRAFT_BACKEND", "redis")

			_, err := config.Load()

			convey.Convey("Then it fails with ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pulse-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}
