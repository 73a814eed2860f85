package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/neboloop/texbridge/internal/crashlog"
	"github.com/neboloop/texbridge/internal/lifecycle"
	"github.com/neboloop/texbridge/internal/server"
)

// registerHooks wires lifecycle events for the serve command: dead bridges
// land in the crash log, closed bridges leave no frames behind, and shutdown
// stops the config watcher.
func registerHooks(out io.Writer, srv *server.Server, stopWatch context.CancelFunc) {
	crashlog.TrackBridges()

	lifecycle.OnBridgeClosed(func(d lifecycle.BridgeEventData) {
		srv.Forget(d.BridgeID)
	})

	lifecycle.OnServerStarted(func(addr string) {
		fmt.Fprintf(out, "texbridge serving on http://%s\n", addr)
	})

	lifecycle.OnShutdown(func() {
		stopWatch()
	})
}
