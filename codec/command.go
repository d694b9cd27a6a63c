package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream/log"
)

// Command is a transformer that pipes bytes through an external process.
// Input is written to the process stdin and its stdout is the output.
type Command struct {
	Path   string
	Args   []string
	Logger logrus.FieldLogger
}

// Transform starts the process and waits for it to exit. The process is
// killed when the context is done.
func (c Command) Transform(ctx context.Context, in io.Reader, out io.Writer) error {
	logger := c.Logger
	if logger == nil {
		logger = log.Discard()
	}
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = out

	if err := cmd.Start(); err != nil {
		if cerr := stdin.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close stdin pipe")
		}
		return fmt.Errorf("start %s: %w", c.Path, err)
	}
	logger.WithField("pid", cmd.Process.Pid).Debug("process started")

	// stdin is fed until the input ends, then the process sees EOF.
	go func() {
		if _, err := io.Copy(stdin, in); err != nil {
			logger.WithError(err).Debug("stdin copy stopped")
		}
		if err := stdin.Close(); err != nil {
			logger.WithError(err).Debug("failed to close stdin pipe")
		}
	}()

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Path, err, msg)
		}
		return fmt.Errorf("%s: %w", c.Path, err)
	}
	return nil
}

// Copy is an in-process transformer that passes bytes unchanged.
func Copy(_ context.Context, in io.Reader, out io.Writer) error {
	_, err := io.Copy(out, in)
	return err
}
