package cdpdriver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// BrowserKind identifies the type of Chromium-based browser.
type BrowserKind string

const (
	BrowserChrome   BrowserKind = "chrome"
	BrowserBrave    BrowserKind = "brave"
	BrowserEdge     BrowserKind = "edge"
	BrowserChromium BrowserKind = "chromium"
	BrowserCustom   BrowserKind = "custom"
)

// BrowserExecutable represents a found browser binary.
type BrowserExecutable struct {
	Kind BrowserKind
	Path string
}

type candidate struct {
	kind BrowserKind
	path string
}

// FindChromeExecutable finds a Chromium-based browser on the system. A custom
// path must exist. A nil result with no error means nothing was found and the
// allocator should use its own lookup.
func FindChromeExecutable(customPath string) (*BrowserExecutable, error) {
	if customPath != "" {
		if !fileExists(customPath) {
			return nil, fmt.Errorf("browser executable not found: %s", customPath)
		}
		return &BrowserExecutable{Kind: BrowserCustom, Path: customPath}, nil
	}

	var candidates []candidate
	switch runtime.GOOS {
	case "darwin":
		candidates = macCandidates()
	case "linux":
		candidates = linuxCandidates()
	case "windows":
		candidates = windowsCandidates()
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	for _, c := range candidates {
		if fileExists(c.path) {
			return &BrowserExecutable{Kind: c.kind, Path: c.path}, nil
		}
	}

	// Fall back to PATH
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return &BrowserExecutable{Kind: BrowserChromium, Path: p}, nil
		}
	}
	return nil, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func macCandidates() []candidate {
	home := os.Getenv("HOME")
	return []candidate{
		{BrowserChrome, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
		{BrowserChrome, filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome")},
		{BrowserChromium, "/Applications/Chromium.app/Contents/MacOS/Chromium"},
		{BrowserBrave, "/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"},
		{BrowserEdge, "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
	}
}

func linuxCandidates() []candidate {
	return []candidate{
		{BrowserChromium, "/usr/bin/chromium"},
		{BrowserChromium, "/usr/bin/chromium-browser"},
		{BrowserChromium, "/snap/bin/chromium"},
		{BrowserChrome, "/usr/bin/google-chrome"},
		{BrowserChrome, "/usr/bin/google-chrome-stable"},
		{BrowserBrave, "/usr/bin/brave-browser"},
		{BrowserEdge, "/usr/bin/microsoft-edge"},
	}
}

func windowsCandidates() []candidate {
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = "C:\\Program Files"
	}
	programFilesX86 := os.Getenv("ProgramFiles(x86)")
	if programFilesX86 == "" {
		programFilesX86 = "C:\\Program Files (x86)"
	}

	var out []candidate
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		out = append(out,
			candidate{BrowserChrome, filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe")},
			candidate{BrowserEdge, filepath.Join(local, "Microsoft", "Edge", "Application", "msedge.exe")},
		)
	}
	return append(out,
		candidate{BrowserChrome, filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe")},
		candidate{BrowserChrome, filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe")},
		candidate{BrowserEdge, filepath.Join(programFiles, "Microsoft", "Edge", "Application", "msedge.exe")},
	)
}
