// Command synth writes the speech for a piece of text to an MP3 file using
// the same configuration as the gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/lexiqai/siliconflow-tts/internal/config"
	"github.com/lexiqai/siliconflow-tts/internal/observability"
	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

func main() {
	var (
		text  = flag.String("text", "", "text to speak; read from stdin when empty")
		out   = flag.String("out", "speech.mp3", "output file")
		voice = flag.String("voice", "", "voice name, overrides SILICONFLOW_VOICE")
		speed = flag.Float64("speed", 0, "speech speed, overrides SILICONFLOW_SPEED")
		gain  = flag.String("gain", "", "output gain in dB, overrides SILICONFLOW_GAIN")
		file  = flag.String("config", "", "YAML config file to use instead of the environment")
	)
	flag.Parse()

	if err := run(*file, *text, *out, *voice, *speed, *gain); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(file, text, out, voice string, speed float64, gain string) error {
	cfg, err := loadConfig(file)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, true)

	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return fmt.Errorf("no text given")
	}

	opts := tts.Options{Voice: voice}
	if speed > 0 {
		opts.Speed = tts.Float(speed)
	}
	if gain != "" {
		g, err := strconv.ParseFloat(gain, 64)
		if err != nil {
			return fmt.Errorf("invalid gain %q: %w", gain, err)
		}
		opts.Gain = tts.Float(g)
	}
	opts = opts.Merge(cfg.SpeechOptions())

	client := tts.NewSiliconFlowClient(&http.Client{Timeout: cfg.UpstreamTimeout}, logger)
	if err := tts.SynthesizeToFile(context.Background(), client, text, "", opts, out); err != nil {
		return err
	}

	logger.Info().Str("file", out).Msg("Audio written")
	return nil
}

func loadConfig(file string) (*config.Config, error) {
	if file != "" {
		return config.LoadFile(file)
	}
	return config.Load()
}
