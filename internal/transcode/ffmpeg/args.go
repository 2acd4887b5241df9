package ffmpeg

import (
	"fmt"
	"strconv"
)

// GIFOptions controls the palette GIF produced from a video container.
type GIFOptions struct {
	FPS   int
	Width int
}

// EvenDimensions rounds both frame dimensions down to a multiple of two,
// which yuv420p requires.
const EvenDimensions = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// MP4Args converts a recorded container into a progressive H.264 MP4.
func MP4Args(input, output string, crf int) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", EvenDimensions,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		output,
	}
}

// VideoGIFArgs converts a recorded container into a looping GIF in a single
// invocation: downsample, generate a palette from the scaled stream, then map
// the stream through it.
func VideoGIFArgs(input, output string, opts GIFOptions) []string {
	filter := fmt.Sprintf(
		"fps=%d,scale=%d:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		opts.FPS, opts.Width,
	)
	return []string{
		"-y",
		"-i", input,
		"-filter_complex", filter,
		"-loop", "0",
		output,
	}
}

// PaletteArgs builds a 256 colour palette image from a numbered frame sequence.
func PaletteArgs(framePattern string, fps int, palette string) []string {
	return []string{
		"-y",
		"-framerate", strconv.Itoa(fps),
		"-i", framePattern,
		"-vf", "palettegen=max_colors=256",
		palette,
	}
}

// FramesGIFArgs quantizes a numbered frame sequence against a palette image.
func FramesGIFArgs(framePattern, palette string, fps int, dither, output string) []string {
	if dither == "" {
		dither = "sierra2_4a"
	}
	return []string{
		"-y",
		"-framerate", strconv.Itoa(fps),
		"-i", framePattern,
		"-i", palette,
		"-lavfi", "paletteuse=dither=" + dither,
		"-gifflags", "+transdiff",
		output,
	}
}
