// Package wifi joins the device to an access point for the TCP, MQTT and
// UDP uplinks, through NetworkManager.
package wifi

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner runs a command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

type Client struct {
	iface string
	conn  string
	run   Runner
}

// NewClient manages the station connection on iface ("wlan0" when empty).
func NewClient(iface string) *Client {
	if strings.TrimSpace(iface) == "" {
		iface = "wlan0"
	}
	return &Client{iface: iface, conn: "fieldrelay-uplink", run: execRunner}
}

// Connect (re)creates the station profile and associates with ssid.
func (c *Client) Connect(ssid, password string) error {
	if strings.TrimSpace(ssid) == "" {
		return fmt.Errorf("wifi: ssid is required")
	}
	// Images that ship wlan0 unmanaged need this before nmcli can use it.
	_, _ = c.run("nmcli", "dev", "set", c.iface, "managed", "yes")
	// Stale profile from an earlier run; absence is fine.
	_, _ = c.run("nmcli", "con", "delete", c.conn)

	args := []string{"device", "wifi", "connect", ssid, "ifname", c.iface, "name", c.conn}
	if password != "" {
		args = append(args, "password", password)
	}
	if out, err := c.run("nmcli", args...); err != nil {
		return fmt.Errorf("wifi: connect %q: %v: %s", ssid, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type Status struct {
	Interface  string `json:"interface"`
	State      string `json:"state"`
	Connected  bool   `json:"connected"`
	Connection string `json:"connection,omitempty"`
	IP         string `json:"ip,omitempty"`
}

func (c *Client) Status() (Status, error) {
	out, err := c.run("nmcli", "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "dev", "show", c.iface)
	if err != nil {
		return Status{Interface: c.iface}, fmt.Errorf("wifi: status: %v: %s", err, strings.TrimSpace(string(out)))
	}
	st := parseDeviceShow(out)
	st.Interface = c.iface
	return st, nil
}

// parseDeviceShow reads terse "nmcli dev show" output:
//
//	GENERAL.STATE:100 (connected)
//	GENERAL.CONNECTION:fieldrelay-uplink
//	IP4.ADDRESS[1]:192.168.43.10/24
func parseDeviceShow(out []byte) Status {
	var st Status
	for _, line := range strings.Split(string(out), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			code, text, _ := strings.Cut(val, " ")
			st.State = strings.Trim(text, "()")
			// NetworkManager device state 100 is NM_DEVICE_STATE_ACTIVATED.
			n, err := strconv.Atoi(code)
			st.Connected = err == nil && n == 100
		case key == "GENERAL.CONNECTION":
			st.Connection = val
		case strings.HasPrefix(key, "IP4.ADDRESS") && st.IP == "":
			st.IP = val
		}
	}
	return st
}
