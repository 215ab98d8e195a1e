//go:build linux

package gpio

import (
	"os"
	"strings"
)

// BoardModel is the device-tree model string, e.g. "Raspberry Pi 4 Model B
// Rev 1.4", or "" when the board has no device tree.
func BoardModel() string {
	for _, p := range []string{
		"/sys/firmware/devicetree/base/model",
		"/proc/device-tree/model",
	} {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return strings.Trim(strings.TrimSpace(string(b)), "\x00")
	}
	return ""
}

func chipExists(name string) bool {
	_, err := os.Stat("/dev/" + name)
	return err == nil
}
