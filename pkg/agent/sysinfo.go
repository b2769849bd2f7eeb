package agent

import (
	"fmt"
	"os"
	"runtime"
)

// SystemInformation describes the host so the model can pick suitable commands.
func SystemInformation() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "unknown"
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "unknown"
	}
	return fmt.Sprintf(
		"<system_information>Operating System: %s\nShell: %s\nWorking Directory: %s</system_information>",
		osFamily(runtime.GOOS), shell, wd,
	)
}

func osFamily(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	default:
		return "Linux"
	}
}
