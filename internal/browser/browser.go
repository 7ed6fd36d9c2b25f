// Package browser opens URLs in the user's default browser.
package browser

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

type Opener interface {
	Open(ctx context.Context, url string) error
}

// ExecOpener shells out to the platform's URL handler.
type ExecOpener struct {
	Log zerolog.Logger
}

func (o ExecOpener) Open(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	o.Log.Debug().Str("url", url).Msg("opening in external browser")
	return cmd.Start()
}
