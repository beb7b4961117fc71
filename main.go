package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wavedeck/wavedeck/internal/config"
	"github.com/wavedeck/wavedeck/internal/source"
	"github.com/wavedeck/wavedeck/pkg/engine"
)

var (
	configFile string
	debug      bool

	flagVolume    float64
	flagLoop      bool
	flagNormalize bool
	flagTargetDB  float64

	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	rootCmd = &cobra.Command{
		Use:   "wavedeck",
		Short: "Preview audio samples from the command line",
		Long:  "wavedeck plays audio samples through the same engine the desktop browser uses: cached decoding, loudness normalization and neighbor prefetch.",
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
		},
		SilenceUsage: true,
	}

	playCmd = &cobra.Command{
		Use:   "play <file> [file...]",
		Short: "Play one or more audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPlay,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE:  runConfig,
	}
)

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("volume") {
		cfg.Volume = flagVolume
	}
	if cmd.Flags().Changed("loop") {
		cfg.Loop = flagLoop
	}
	if cmd.Flags().Changed("normalize") {
		cfg.NormalizeVolume = flagNormalize
	}
	if cmd.Flags().Changed("target-db") {
		cfg.NormalizationTargetDB = flagTargetDB
	}

	provider := config.NewProvider(cfg)
	if stop, err := provider.Watch(configFile); err == nil {
		defer stop()
	} else {
		log.Debug("settings watch unavailable", "error", err)
	}

	var src source.ByteSource = &source.FileSource{Root: cfg.SampleRoot}
	if cfg.RemoteURL != "" {
		src = &source.Chain{
			Primary:  src,
			Fallback: source.NewRemoteSource(cfg.RemoteURL),
		}
	}

	eng := engine.New(engine.Options{Source: src, Settings: provider})
	defer eng.Dispose()
	eng.SetListener(func(st engine.State) {
		log.Debug("playback state",
			"path", st.Path,
			"playing", st.IsPlaying,
			"duration", st.Duration,
			"loop", st.Loop,
			"volume", st.Volume)
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for i := range args {
		if err := playOne(ctx, eng, args, i); err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}

	stats := eng.CacheStats()
	log.Debug("cache totals",
		"hits", stats.Hits,
		"misses", stats.Misses,
		"evictions", stats.Evictions,
		"shared_decodes", stats.Shared)
	return nil
}

func playOne(ctx context.Context, eng *engine.Engine, files []string, index int) error {
	path := files[index]
	var neighbors []engine.File
	if index+1 < len(files) {
		neighbors = append(neighbors, engine.File{Path: files[index+1]})
	}

	if err := eng.Play(ctx, engine.File{Path: path}, neighbors...); err != nil {
		return err
	}

	st := eng.Snapshot()
	size := ""
	if info, err := os.Stat(path); err == nil {
		size = dimStyle.Render(" (" + humanize.Bytes(uint64(info.Size())) + ")")
	}
	fmt.Printf("%s %s%s %s\n",
		labelStyle.Render("playing"),
		filepath.Base(path),
		size,
		dimStyle.Render(st.Duration.Round(time.Millisecond).String()))

	for {
		select {
		case <-ctx.Done():
			eng.Stop()
			return nil
		case <-time.After(100 * time.Millisecond):
		}
		if !eng.Snapshot().IsPlaying {
			return nil
		}
	}
}

func runConfig(*cobra.Command, []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	path := configFile
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Println(dimStyle.Render("# " + path))
	fmt.Print(string(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "settings file (default: user config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	playCmd.Flags().Float64VarP(&flagVolume, "volume", "v", 1.0, "playback volume (0-1)")
	playCmd.Flags().BoolVarP(&flagLoop, "loop", "l", false, "loop playback")
	playCmd.Flags().BoolVarP(&flagNormalize, "normalize", "n", false, "normalize loudness")
	playCmd.Flags().Float64Var(&flagTargetDB, "target-db", -14, "normalization target in dBFS")

	rootCmd.AddCommand(playCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}
