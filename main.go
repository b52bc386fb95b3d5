package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/config"
	"murmur/dispatch"
	"murmur/encoder"
	"murmur/guard"
	"murmur/hotkey"
	"murmur/log"
	"murmur/session"
	"murmur/sink"
	"murmur/transcriber"
)

var version = "dev"

const shutdownGrace = 10 * time.Second

func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	log.SetDir(dir)
	if err := log.EnsureDir(); err != nil {
		return
	}
	crashPath := filepath.Join(dir, "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

// watchHotkey forwards one chord's edge events to the orchestrator until
// stop is closed.
func watchHotkey(stop <-chan struct{}, hk hotkey.Hotkey, src session.Source, app *App) {
	for {
		select {
		case <-stop:
			return
		case <-hk.Keydown():
			log.Infof("hotkey_down %s", src)
			app.StartRecording(src)
		case <-hk.Keyup():
			log.Infof("hotkey_up %s", src)
			app.StopRecording(src)
		}
	}
}

func run() {
	configFlag := flag.String("config", "", "Config file path (default: ~/.config/murmur/config.toml)")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	logPathFlag := flag.String("logpath", "", "Log directory path (default: OS-specific location)")
	archiveFlag := flag.Bool("archive", false, "Move all notes to the archive directory and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	configPath := *configFlag
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Recording.Device = *deviceFlag
	}
	if !cfg.Sound.Enabled {
		beep.Disable()
	}

	engine, err := transcriber.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if lang := cfg.Transcription.Language; lang != "" {
		type languaged interface{ SetLanguage(string) }
		if e, ok := engine.(languaged); ok {
			e.SetLanguage(lang)
		}
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if cfg.Recording.Device != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == cfg.Recording.Device {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			log.Warnf("device %q not found, using system default", cfg.Recording.Device)
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	store, err := sink.NewStore(cfg.Storage.NotesDir, cfg.Storage.ArchiveDir)
	if err != nil {
		log.Errorf("storage init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *archiveFlag {
		n, err := store.ArchiveAll()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Archived %d note(s)\n", n)
		os.Exit(0)
	}

	if err := clipboard.Init(); err != nil {
		log.Warnf("paste init failed: %v", err)
		fmt.Printf("Warning: paste init failed: %v\n", err)
	}

	captureConfig := audio.CaptureConfig{
		SampleRate: uint32(cfg.Recording.SampleRate),
		Channels:   encoder.Channels,
	}
	recorder := audio.NewRecorder(ctx, selectedDevice, captureConfig, cfg.MaxDuration())

	dispatcher := dispatch.New(engine, dispatch.Config{
		Workers:    cfg.Transcription.Workers,
		QueueDepth: cfg.Transcription.QueueDepth,
		JobTimeout: cfg.Timeout(),
	})

	sinks := map[session.Source]sink.Sink{
		session.SourceSave:  store,
		session.SourcePaste: sink.NewSystemPaster(cfg.Paste.RestoreClipboard),
	}

	// maxHold trails max duration slightly so the recorder's own expiry wins
	// the race; the guard watchdog only fires if that path is wedged.
	g := guard.New(cfg.MaxDuration() + 2*time.Second)
	app := NewApp(cfg, g, recorder, dispatcher, sinks, nil)

	stop := make(chan struct{})
	app.Start(stop)

	saveHK := hotkey.New(hotkey.ComboSave)
	pasteHK := hotkey.New(hotkey.ComboPaste)
	for _, reg := range []struct {
		hk  hotkey.Hotkey
		src session.Source
	}{
		{saveHK, session.SourceSave},
		{pasteHK, session.SourcePaste},
	} {
		if err := reg.hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
			os.Exit(1)
		}
		defer reg.hk.Unregister()

		go watchHotkey(stop, reg.hk, reg.src, app)
	}

	go beep.Init()

	log.Infof("murmur %s ready: %s to save, %s to paste", version, hotkey.ComboSave, hotkey.ComboPaste)
	fmt.Printf("murmur %s: hold %s to record a note, %s to dictate into the focused app\n",
		version, hotkey.ComboSave, hotkey.ComboPaste)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown incomplete: %v", err)
	}
}
