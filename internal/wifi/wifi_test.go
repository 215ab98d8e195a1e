package wifi

import (
	"errors"
	"strings"
	"testing"
)

type recorder struct {
	calls []string
	fail  map[string]error
	out   map[string]string
}

func (r *recorder) run(name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, call)
	for prefix, err := range r.fail {
		if strings.HasPrefix(call, prefix) {
			return []byte("Error: No network with SSID 'x' found."), err
		}
	}
	for prefix, out := range r.out {
		if strings.HasPrefix(call, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func TestClient_Connect(t *testing.T) {
	rec := &recorder{}
	c := NewClient("")
	c.run = rec.run

	if err := c.Connect("field-ap", "s3cret"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	want := []string{
		"nmcli dev set wlan0 managed yes",
		"nmcli con delete fieldrelay-uplink",
		"nmcli device wifi connect field-ap ifname wlan0 name fieldrelay-uplink password s3cret",
	}
	if strings.Join(rec.calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("calls=%q", rec.calls)
	}
}

func TestClient_ConnectErrors(t *testing.T) {
	c := NewClient("wlan1")
	if err := c.Connect(" ", ""); err == nil {
		t.Fatalf("expected ssid error")
	}

	rec := &recorder{fail: map[string]error{"nmcli device wifi connect": errors.New("exit status 10")}}
	c.run = rec.run
	err := c.Connect("x", "")
	if err == nil || !strings.Contains(err.Error(), "No network with SSID") {
		t.Fatalf("err=%v", err)
	}
	if last := rec.calls[len(rec.calls)-1]; strings.Contains(last, "password") {
		t.Fatalf("open network must not pass a password: %q", last)
	}
}

func TestClient_Status(t *testing.T) {
	rec := &recorder{out: map[string]string{
		"nmcli -t -f": "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:fieldrelay-uplink\nIP4.ADDRESS[1]:192.168.43.10/24\nIP4.ADDRESS[2]:10.0.0.2/8\n",
	}}
	c := NewClient("wlan0")
	c.run = rec.run

	st, err := c.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if !st.Connected || st.State != "connected" || st.Connection != "fieldrelay-uplink" || st.IP != "192.168.43.10/24" {
		t.Fatalf("status=%+v", st)
	}
	if st.Interface != "wlan0" {
		t.Fatalf("interface=%q", st.Interface)
	}
}

func TestParseDeviceShow_Disconnected(t *testing.T) {
	st := parseDeviceShow([]byte("GENERAL.STATE:30 (disconnected)\nGENERAL.CONNECTION:\n"))
	if st.Connected || st.State != "disconnected" || st.IP != "" {
		t.Fatalf("status=%+v", st)
	}
}
