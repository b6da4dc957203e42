package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"gpsbridge/internal/config"
	"gpsbridge/internal/gps"
	"gpsbridge/internal/nmea"
	"gpsbridge/internal/ntrip"
	"gpsbridge/internal/publish"
	"gpsbridge/internal/receiver"
	"gpsbridge/internal/replay"
	"gpsbridge/internal/transport"
	"gpsbridge/internal/web"
)

const (
	restartBackoffInitial = 250 * time.Millisecond
	restartBackoffMax     = 10 * time.Second
	// A session that stays up this long resets the backoff.
	restartStableAfter = 30 * time.Second
)

type bridge struct {
	cfg      config.Config
	status   *web.Status
	logs     *web.LogBuffer
	session  *gps.Session
	emulator *gps.Emulator
	recorder *replay.Writer
	hub      *publish.Hub
	ntrip    *ntrip.Client
}

func newBridge(cfg config.Config, logs *web.LogBuffer) (*bridge, error) {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return nil, err
	}
	rt := &bridge{cfg: cfg, status: web.NewStatus(), logs: logs}

	var port transport.Port
	if cfg.Emulate.Enable {
		em, err := gps.NewEmulator(gps.EmulatorConfig{
			Path:    cfg.Emulate.Path,
			Cadence: cfg.Emulate.Cadence,
			Timed:   cfg.Emulate.Timed,
			Speed:   cfg.Emulate.Speed,
		})
		if err != nil {
			return nil, err
		}
		rt.emulator = em
		port = em
	} else {
		p, err := transport.New(transport.Config{
			Driver:      cfg.Serial.Driver,
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			Addr:        cfg.Serial.Addr,
			GPSDWatch:   cfg.Serial.GPSDWatch,
			DialTimeout: cfg.Serial.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		port = p
	}

	rt.session = gps.NewSession(port, gps.Config{
		PollInterval: cfg.Serial.PollInterval,
		Timeout:      cfg.Serial.Timeout,
		StopTimeout:  cfg.Serial.StopTimeout,
	})
	rt.status.SetSession(rt.session)

	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		rt.recorder = w
		rt.session.SetRecorder(w)
	}

	sinks, err := buildSinks(cfg.Publish)
	if err != nil {
		_ = rt.closeRecorder()
		return nil, err
	}
	rt.hub = publish.NewHub(sinks...)
	rt.status.SetHub(rt.hub)

	if cfg.NTRIP.Enable {
		rt.ntrip = newNTRIPClient(cfg.NTRIP)
		rt.status.SetNTRIP(cfg.NTRIP.Addr, cfg.NTRIP.Mountpoint)
	}
	return rt, nil
}

func buildSinks(cfg config.PublishConfig) ([]publish.Sink, error) {
	var sinks []publish.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	if cfg.MQTT.Enable {
		s, err := publish.NewMQTTSink(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.NATS.Enable {
		s, err := publish.NewNATSSink(publish.NATSConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject})
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.UDP.Enable {
		s, err := publish.NewUDPSink(cfg.UDP.Dest)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// run blocks until ctx is cancelled, then stops every component.
func (rt *bridge) run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	start(rt.superviseSession)
	start(func(ctx context.Context) {
		if err := rt.hub.Run(ctx, rt.session.Events(), rt.session.State()); err != nil {
			log.WithError(err).Warn("publish hub stopped")
		}
	})
	if rt.ntrip != nil {
		start(rt.superviseRelay)
	}
	if rt.cfg.Web.Enable {
		start(func(ctx context.Context) {
			err := web.Serve(ctx, rt.cfg.Web.Listen, rt.handler())
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("web server stopped")
			}
		})
		log.WithField("listen", rt.cfg.Web.Listen).Info("web ui enabled")
	}

	<-ctx.Done()
	wg.Wait()
	return rt.close()
}

func (rt *bridge) handler() http.Handler {
	var tables web.SourceTableFetcher
	if rt.ntrip != nil {
		tables = rt.ntrip
	}
	return web.Handler(rt.status, rt.logs, tables)
}

// superviseSession keeps the session running, reopening the port with
// exponential backoff after open failures and read errors.
func (rt *bridge) superviseSession(ctx context.Context) {
	var delay time.Duration
	for {
		var ranFor time.Duration
		if err := rt.session.Start(ctx); err != nil {
			log.WithError(err).Warn("gps session start failed")
		} else {
			started := time.Now()
			select {
			case <-ctx.Done():
				return
			case <-rt.session.Done():
			}
			if ctx.Err() != nil {
				return
			}
			ranFor = time.Since(started)
			rt.session.State().Invalidate()
			log.WithError(rt.session.Err()).WithField("ran_for", ranFor).Warn("gps session ended, restarting")
		}

		delay = nextRestartDelay(delay, ranFor)
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// nextRestartDelay doubles prev up to restartBackoffMax. Only a session that
// ran for restartStableAfter starts over from restartBackoffInitial.
func nextRestartDelay(prev, ranFor time.Duration) time.Duration {
	if prev <= 0 || ranFor >= restartStableAfter {
		return restartBackoffInitial
	}
	next := prev * 2
	if next > restartBackoffMax {
		next = restartBackoffMax
	}
	return next
}

// superviseRelay keeps one NTRIP relay attached to the receiver port and
// reconnects after ReconnectDelay whenever the stream ends.
func (rt *bridge) superviseRelay(ctx context.Context) {
	n := rt.cfg.NTRIP
	var opts []ntrip.StreamOption
	if n.SendGGA {
		opts = append(opts, ntrip.WithPosition(positionSource(rt.session.State())))
	}
	for {
		relay, err := rt.ntrip.StartStream(ctx, n.Mountpoint, rt.session.Port(), opts...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			rt.status.MarkRelayFailure(err)
			log.WithError(err).WithField("mount", n.Mountpoint).Warn("ntrip connect failed")
		} else {
			rt.status.SetRelay(relay)
			select {
			case <-ctx.Done():
				_ = relay.Close()
				return
			case <-relay.Done():
			}
			if err := relay.Err(); err != nil {
				rt.status.MarkRelayFailure(err)
				log.WithError(err).WithField("mount", n.Mountpoint).Warn("ntrip stream ended")
			}
		}
		if !sleepCtx(ctx, n.ReconnectDelay) {
			return
		}
	}
}

// positionSource reports the latest fix as a GGA sentence once the
// receiver has one.
func positionSource(state *receiver.State) ntrip.PositionSource {
	return func() (string, bool) {
		if !state.HasFix() {
			return "", false
		}
		return nmea.EncodeGGA(state.FixQuality()), true
	}
}

func (rt *bridge) close() error {
	var err error
	if stopErr := rt.session.Stop(); stopErr != nil {
		err = multierr.Append(err, fmt.Errorf("stop gps session: %w", stopErr))
	}
	rt.session.State().Invalidate()
	rt.session.Events().Close()
	if closeErr := rt.hub.Close(); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	err = multierr.Append(err, rt.closeRecorder())
	return err
}

func (rt *bridge) closeRecorder() error {
	if rt.recorder == nil {
		return nil
	}
	if err := rt.recorder.Close(); err != nil {
		return fmt.Errorf("close recording: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
