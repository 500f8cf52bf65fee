// Command opcr2 powers on an Alphasense OPC-R2 and periodically reads its
// histogram, optionally exporting Prometheus metrics and publishing frames
// over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cgxeiji/opcr2"
	"github.com/cgxeiji/opcr2/histogram"
	"github.com/cgxeiji/opcr2/internal/config"
	"github.com/cgxeiji/opcr2/internal/logging"
	"github.com/cgxeiji/opcr2/internal/metrics"
	"github.com/cgxeiji/opcr2/internal/publish"
)

func main() {
	path := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.Logging)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("opcr2 stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enable {
		reg := metrics.NewRegistry()
		m = metrics.New(reg)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	var pub *publish.Publisher
	if cfg.MQTT.Enable {
		p, err := publish.Dial(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		pub = p
	}

	sensor, err := opcr2.New(
		opcr2.OnBus(cfg.Device.Bus),
		opcr2.CSPin(cfg.Device.CSPin),
		opcr2.WithLogger(logger),
		opcr2.WithSleeper(ctxSleeper{ctx}),
	)
	if err != nil {
		return err
	}
	defer sensor.Close()

	defer func() {
		// the device needs its real delays to power off after an interrupt; a
		// second interrupt kills the process
		stop()
		sensor.Options(opcr2.WithSleeper(nil))
		if ready, err := sensor.Off(); err != nil {
			logger.Error("could not power off", zap.Error(err))
		} else if !ready {
			logger.Warn("device did not confirm power off")
		}
	}()

	ready, err := sensor.Begin()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("interrupted")
		return nil
	}
	if !ready {
		logger.Warn("device did not confirm power on")
	}

	// the first histogram only resets the counters
	if _, err := sensor.Histogram(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("interrupted")
		return nil
	}

	t := time.NewTicker(cfg.Sample.Interval)
	defer t.Stop()

	for n := 0; cfg.Sample.Count == 0 || n < cfg.Sample.Count; n++ {
		select {
		case <-ctx.Done():
			logger.Info("interrupted")
			return nil
		case <-t.C:
		}

		f, err := sensor.Histogram()
		if err != nil {
			if m != nil {
				m.ReadErrors.Inc()
			}
			logger.Error("could not read histogram", zap.Error(err))
			continue
		}
		report(logger, &f)

		if m != nil {
			m.Observe(&f)
		}
		if pub != nil {
			if err := pub.Publish(&f, time.Now()); err != nil {
				logger.Error("could not publish frame", zap.Error(err))
			}
		}
	}
	return nil
}

// ctxSleeper returns early once ctx is done, so an interrupt is not held up
// by the handshake backoffs or the power-on settle time.
type ctxSleeper struct {
	ctx context.Context
}

func (s ctxSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-s.ctx.Done():
	case <-t.C:
	}
}

func report(logger *zap.Logger, f *histogram.Frame) {
	fields := []zap.Field{
		zap.Float32("pm1", f.PM1()),
		zap.Float32("pm2.5", f.PM25()),
		zap.Float32("pm10", f.PM10()),
		zap.Float64("temperature", f.Temperature),
		zap.Float64("humidity", f.Humidity),
		zap.Float32("flow", f.SampleFlowRate),
		zap.Float32("period", f.SamplingPeriod),
		zap.Uint16s("bins", f.Bins[:]),
		zap.Bool("ready", f.Ready),
	}

	if !f.Valid() {
		logger.Warn("checksum mismatch", append(fields,
			zap.Uint16("checksum", f.DeviceChecksum),
			zap.Uint16("computed", f.ComputedChecksum))...)
		return
	}
	logger.Info("histogram", fields...)
}
