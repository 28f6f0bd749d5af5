package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/app"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/config"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
)

func main() {
	// ---- Flags (config.yaml fills the gaps; explicit flags win) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		listen     = flag.String("listen", ":8080", "HTTP listen address")
		sceneURL   = flag.String("scene-url", "", "remote scene JSON URL (optional)")
		preset     = flag.String("preset", "", "embedded scene preset name")
		backendSel = flag.String("backend", "", "backend override: safe | none")
		audioPath  = flag.String("audio", "", "soundtrack file (.mp3 or .wav)")
		speaker    = flag.Bool("speaker", false, "play the soundtrack on the system audio device")
		fps        = flag.Int("fps", 0, "frame loop rate (0 = config value)")
		record     = flag.Bool("record", false, "export the clip offline and exit")
		outDir     = flag.String("out", "", "capture output directory")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults")
		cfg = config.Default()
	}
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if explicit["listen"] {
		cfg.Listen = *listen
	}
	if explicit["scene-url"] {
		cfg.SceneURL = *sceneURL
	}
	if explicit["preset"] {
		cfg.Preset = *preset
	}
	if explicit["backend"] {
		cfg.Backend = *backendSel
	}
	if explicit["audio"] {
		cfg.Audio.Track = *audioPath
	}
	if explicit["speaker"] {
		cfg.Audio.Speaker = *speaker
	}
	if explicit["fps"] && *fps > 0 {
		cfg.FPS = *fps
	}
	if explicit["out"] {
		cfg.Capture.Dir = *outDir
	}

	// ---- Core ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := app.InitCore(ctx, cfg)
	defer core.Close()

	// ---- One-shot export ----
	if *record {
		path, err := core.Cond.Export(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
		log.Info().Str("artifact", path).Msg("export complete")
		return
	}

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/frames", core.State.HandleFramesWS)
	mux.HandleFunc("/ws/control", core.State.HandleControlWS)
	mux.HandleFunc("/ws/diag", core.State.HandleDiagWS)
	mux.HandleFunc("/healthz", core.State.HandleHealth)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ---- Frame loop & server ----
	core.Cond.Play()
	loopDone := make(chan struct{})
	go func() {
		core.Cond.Run(ctx)
		close(loopDone)
	}()
	go func() {
		log.Info().Str("addr", cfg.Listen).Str("tier", core.Tier.String()).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			core.State.PushDiag(diagnostics.Diagnostic{
				Severity: diagnostics.Fatal,
				Code:     diagnostics.CodeInitFatal,
				Summary:  "HTTP listener failed",
				Detail:   err.Error(),
			})
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	cancel()
	<-loopDone // lets an active recording finalize
	_ = srv.Close()
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
