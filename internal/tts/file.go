package tts

import (
	"context"
	"fmt"
	"os"
)

// SynthesizeToFile synthesizes text with s and writes the audio to path.
func SynthesizeToFile(ctx context.Context, s Synthesizer, text, lang string, opts Options, path string) error {
	audioData, err := s.Synthesize(ctx, text, lang, opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, audioData, 0o644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}
