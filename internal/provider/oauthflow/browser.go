package oauthflow

import (
	"os/exec"
	"runtime"
)

// OpenBrowser tries to open a URL in the default browser. Failures are
// silent; the URL is always shown to the user as a fallback.
func OpenBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}
	_ = cmd.Start()
}
