package media

import (
	"context"
	"fmt"
	"os/exec"
)

// CommandCodec shells out to an external transcoder (ffmpeg-compatible
// CLI) to produce JPEG thumbnails. The codecs themselves are not ours;
// this is only the cache-miss invocation contract.
type CommandCodec struct {
	Binary string
}

func NewCommandCodec(binary string) *CommandCodec {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &CommandCodec{Binary: binary}
}

func (c *CommandCodec) Thumbnail(ctx context.Context, src, dst, kind string) error {
	var args []string
	switch kind {
	case "video":
		// Grab a single frame a second in, to skip black lead-ins.
		args = []string{"-ss", "1", "-i", src, "-frames:v", "1", "-vf", "scale=320:-2", "-y", dst}
	default:
		args = []string{"-i", src, "-vf", "scale=320:-2", "-y", dst}
	}

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", c.Binary, err, out)
	}
	return nil
}
