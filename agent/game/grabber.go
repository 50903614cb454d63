package game

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecGrabber captures the screen by shelling out to a screenshot tool
// that writes a PNG, by default scrot. {path} in the command is replaced
// with the output file.
type ExecGrabber struct {
	Command string // e.g. "scrot --overwrite {path}"
}

var _ Grabber = (*ExecGrabber)(nil)

func (g *ExecGrabber) Capture(ctx context.Context) (image.Image, error) {
	command := g.Command
	if command == "" {
		command = "scrot --overwrite {path}"
	}
	path := filepath.Join(os.TempDir(), "rigagent-screen.png")
	args := splitCommand(strings.ReplaceAll(command, "{path}", path))
	if len(args) == 0 {
		return nil, fmt.Errorf("empty capture command")
	}
	if out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture: %v: %s", err, strings.TrimSpace(string(out)))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return img, nil
}
