package cdpdriver

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/neboloop/texbridge/internal/engine"
)

// allocatorOptions builds the exec allocator flags for an off-screen engine.
func allocatorOptions(cfg engine.Config, exe *BrowserExecutable) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("mute-audio", cfg.Muted),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("force-device-scale-factor", "1"),
	)
	if runtime.GOOS == "linux" {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.DebuggerPort > 0 {
		opts = append(opts, chromedp.Flag("remote-debugging-port", strconv.Itoa(cfg.DebuggerPort)))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if exe != nil {
		opts = append(opts, chromedp.ExecPath(exe.Path))
	}
	for _, arg := range cfg.ExtraArgs {
		name, value, ok := parseFlag(arg)
		if !ok {
			log.Warnf("ignoring malformed engine argument %q", arg)
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits "--name=value" or "--name" into a chromedp flag.
func parseFlag(arg string) (string, any, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil, false
	}
	name, value, found := strings.Cut(arg, "=")
	if name == "" {
		return "", nil, false
	}
	if !found {
		return name, true, true
	}
	return name, value, true
}
