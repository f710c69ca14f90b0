// Package app wires the call session, its adapters and the control API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/api"
	"github.com/vovakirdan/repaircall/internal/callengine"
	"github.com/vovakirdan/repaircall/internal/callengine/livekit"
	"github.com/vovakirdan/repaircall/internal/calllog"
	"github.com/vovakirdan/repaircall/internal/config"
	"github.com/vovakirdan/repaircall/internal/cues"
	"github.com/vovakirdan/repaircall/internal/elapsed"
	"github.com/vovakirdan/repaircall/internal/session"
	"github.com/vovakirdan/repaircall/internal/signaling"
	"github.com/vovakirdan/repaircall/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/repaircall/internal/transport/http"
)

const (
	minSignalingBackoff = time.Second
	maxSignalingBackoff = 30 * time.Second
	saveTimeout         = 5 * time.Second
)

// Option customizes App construction.
type Option func(*options)

type options struct {
	engine    callengine.Client
	clock     clock.Clock
	onElapsed func(label string)
}

// WithEngine replaces the LiveKit engine.
func WithEngine(engine callengine.Client) Option {
	return func(o *options) { o.engine = engine }
}

// WithClock sets the clock used by every timer of the app.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithElapsedListener receives the talk time label once a second while a
// call is live.
func WithElapsedListener(fn func(label string)) Option {
	return func(o *options) { o.onElapsed = fn }
}

// App wires together the session, adapters and transport layers.
type App struct {
	cfg     *config.Config
	clock   clock.Clock
	log     *zerolog.Logger
	server  *stdhttp.Server
	handler stdhttp.Handler

	coord     *session.Coordinator
	signaling *signaling.Client
	backend   *api.Client
	ticker    *elapsed.Ticker
	cues      *cues.Controller
	recorder  *calllog.Recorder
	store     *sqlite.SQLiteStore
	output    io.Closer
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	clk := o.clock
	if clk == nil {
		clk = clock.New()
	}
	engine := o.engine
	if engine == nil {
		engine = livekit.New(livekit.Options{Clock: clk, Logger: logger})
	}

	a := &App{cfg: cfg, clock: clk, log: logger}

	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.store = st
		a.recorder = calllog.NewRecorder(st, clk, logger)
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("call history initialized")
	}

	controller, output, err := newCues(cfg, clk, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	a.cues, a.output = controller, output

	a.backend = api.New(api.Options{BaseURL: cfg.APIURL, Token: cfg.APIToken, Logger: logger})
	a.coord = session.New(session.Options{
		Engine:    engine,
		Creator:   a.backend,
		EngineURL: cfg.LiveKitURL,
		EndGrace:  cfg.EndGrace,
		Clock:     clk,
		Logger:    logger,
	})
	a.ticker = elapsed.New(clk, o.onElapsed)

	deps := transporthttp.Deps{
		Calls:         a.coord,
		Cues:          a.cues,
		Elapsed:       a.ticker,
		Notifications: a.backend,
	}
	if a.store != nil {
		deps.History = a.store
	}
	if cfg.SignalingURL != "" {
		a.signaling = signaling.NewClient(signaling.Options{
			URL:     cfg.SignalingURL,
			Token:   cfg.APIToken,
			Handler: a.coord,
			Logger:  logger,
		})
		deps.Signaling = a.signaling
	}

	a.server = transporthttp.NewServer(deps, cfg, logger)
	a.handler = a.server.Handler
	return a, nil
}

func newCues(cfg *config.Config, clk clock.Clock, logger *zerolog.Logger) (*cues.Controller, io.Closer, error) {
	ringback := cues.RingbackTone()
	if cfg.RingbackPath != "" {
		pcm, err := cues.LoadCue(cfg.RingbackPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load ringback: %w", err)
		}
		ringback = pcm
	}
	ringtone := cues.RingtoneTone()
	if cfg.RingtonePath != "" {
		pcm, err := cues.LoadCue(cfg.RingtonePath)
		if err != nil {
			return nil, nil, fmt.Errorf("load ringtone: %w", err)
		}
		ringtone = pcm
	}

	sink, err := cues.OpenSink(cfg.AudioOutput)
	if err != nil {
		return nil, nil, err
	}

	controller := cues.NewController(cues.Options{
		Ringback: cues.NewLoopPlayer("ringback", ringback, sink, clk, logger),
		Ringtone: cues.NewLoopPlayer("ringtone", ringtone, sink, clk, logger),
		Unlocked: cfg.AudioUnlocked,
		Logger:   logger,
	})
	return controller, sink, nil
}

// Session returns the call coordinator.
func (a *App) Session() *session.Coordinator {
	return a.coord
}

// Cues returns the cue controller.
func (a *App) Cues() *cues.Controller {
	return a.cues
}

// Elapsed returns the talk time ticker.
func (a *App) Elapsed() *elapsed.Ticker {
	return a.ticker
}

// Handler returns the control API handler.
func (a *App) Handler() stdhttp.Handler {
	return a.handler
}

// Run starts every component and blocks until context cancellation or a
// fatal server error. A call in progress is ended before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.coord.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pump(ctx)
	}()
	if a.signaling != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runSignaling(ctx)
		}()
	}

	err := a.serve(ctx)
	cancel()
	wg.Wait()
	a.cleanup()
	return err
}

func (a *App) serve(ctx context.Context) error {
	if a.cfg.ListenAddr == "" {
		<-ctx.Done()
		return nil
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("control api listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down control api")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

// pump feeds every published snapshot to the ticker, the cues and the call
// log, in that order, so a logged call carries its final talk time.
func (a *App) pump(ctx context.Context) {
	snaps, unsubscribe := a.coord.Subscribe()
	defer unsubscribe()

	// The shutdown snapshot arrives after ctx is done and still has to be saved.
	saveCtx := context.WithoutCancel(ctx)
	for snap := range snaps {
		a.ticker.Apply(snap)
		a.cues.Apply(snap)
		if a.recorder != nil {
			sctx, cancel := context.WithTimeout(saveCtx, saveTimeout)
			a.recorder.Apply(sctx, snap, a.ticker.Elapsed())
			cancel()
		}
	}
}

// runSignaling keeps the signaling subscription up, backing off between
// failed attempts.
func (a *App) runSignaling(ctx context.Context) {
	backoff := minSignalingBackoff
	for {
		started := a.clock.Now()
		err := a.signaling.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if a.clock.Since(started) > maxSignalingBackoff {
			backoff = minSignalingBackoff
		}
		a.log.Warn().Err(err).Dur("retry_in", backoff).Msg("signaling disconnected")

		timer := a.clock.Timer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, maxSignalingBackoff)
	}
}

// cleanup closes the cues, the output and the database.
func (a *App) cleanup() {
	if a.ticker != nil {
		a.ticker.Close()
	}
	if a.cues != nil {
		if err := a.cues.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cues")
		}
	}
	if a.output != nil {
		if err := a.output.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close audio output")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
