package mutate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/projectopenrap/buildimage/src/common/errors"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// =============================================================================
// hostname / hosts
// =============================================================================

func TestHostname(t *testing.T) {
	path := writeTemp(t, "hostname", "raspberrypi\n")
	if err := Hostname(path, "ekstepORAP"); err != nil {
		t.Fatalf("Hostname failed: %v", err)
	}
	if got := readFile(t, path); got != "ekstepORAP" {
		t.Errorf("hostname file = %q", got)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0640 {
		t.Errorf("file mode changed to %v", info.Mode().Perm())
	}
}

func TestHosts(t *testing.T) {
	path := writeTemp(t, "hosts", "127.0.0.1 localhost\n::1 localhost ip6-localhost\n")
	if err := Hosts(path, "meghshalaORAP"); err != nil {
		t.Fatalf("Hosts failed: %v", err)
	}
	want := "127.0.0.1    localhost\n127.0.1.1    meghshalaORAP\n"
	if got := readFile(t, path); got != want {
		t.Errorf("hosts file = %q, want %q", got, want)
	}
}

func TestHosts_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	if err := Hosts(path, "openRAP"); err != nil {
		t.Fatalf("Hosts failed: %v", err)
	}
	if !strings.Contains(readFile(t, path), "127.0.1.1    openRAP") {
		t.Error("hosts entry missing")
	}
}

// =============================================================================
// hostapd
// =============================================================================

func TestHostapdSSID_MovesSSIDFirst(t *testing.T) {
	conf := "interface=wlan0\ndriver=nl80211\nssid=OldName\nhw_mode=g\nchannel=6\n"
	path := writeTemp(t, "hostapd.conf", conf)

	if err := HostapdSSID(path, "ekstepORAP"); err != nil {
		t.Fatalf("HostapdSSID failed: %v", err)
	}

	want := "ssid=ekstepORAP\ninterface=wlan0\ndriver=nl80211\nhw_mode=g\nchannel=6\n"
	if got := readFile(t, path); got != want {
		t.Errorf("hostapd.conf =\n%q\nwant\n%q", got, want)
	}
}

func TestHostapdSSID_NoExistingSSID(t *testing.T) {
	path := writeTemp(t, "hostapd.conf", "interface=wlan0\nchannel=1")
	if err := HostapdSSID(path, "openRAP"); err != nil {
		t.Fatalf("HostapdSSID failed: %v", err)
	}
	if got := readFile(t, path); got != "ssid=openRAP\ninterface=wlan0\nchannel=1" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestHostapdSSID_DropsEverySSIDLine(t *testing.T) {
	path := writeTemp(t, "hostapd.conf", "ssid=a\nwpa=2\nssid=b\n")
	if err := HostapdSSID(path, "x"); err != nil {
		t.Fatalf("HostapdSSID failed: %v", err)
	}
	if got := readFile(t, path); got != "ssid=x\nwpa=2\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestHostapdSSID_MissingFile(t *testing.T) {
	err := HostapdSSID(filepath.Join(t.TempDir(), "missing.conf"), "x")
	if !errors.Is(err, errors.ErrFileRewrite) {
		t.Errorf("expected ErrFileRewrite, got %v", err)
	}
}

// =============================================================================
// profile.json
// =============================================================================

func TestProfileJSON_PreservesOtherFields(t *testing.T) {
	path := writeTemp(t, "profile.json",
		`{"active_profile": "default", "profiles": {"ekstep": {"port": 9090}}, "build": 1234567890123, "tag": "<beta>"}`)

	if err := ProfileJSON(path, "ekstep"); err != nil {
		t.Fatalf("ProfileJSON failed: %v", err)
	}

	raw := readFile(t, path)
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, raw)
	}
	if doc["active_profile"] != "ekstep" {
		t.Errorf("active_profile = %v", doc["active_profile"])
	}
	if doc["tag"] != "<beta>" {
		t.Errorf("tag = %v", doc["tag"])
	}
	profiles, ok := doc["profiles"].(map[string]interface{})
	if !ok || profiles["ekstep"] == nil {
		t.Errorf("nested profiles lost: %v", doc["profiles"])
	}
	if !strings.Contains(raw, "1234567890123") {
		t.Errorf("large integer not preserved verbatim: %s", raw)
	}
	if !strings.Contains(raw, "<beta>") {
		t.Errorf("HTML characters should not be escaped: %s", raw)
	}
}

func TestProfileJSON_AddsMissingField(t *testing.T) {
	path := writeTemp(t, "profile.json", `{"name": "cdn"}`)
	if err := ProfileJSON(path, "meghshala"); err != nil {
		t.Fatalf("ProfileJSON failed: %v", err)
	}
	if got := readFile(t, path); got != `{"active_profile":"meghshala","name":"cdn"}` {
		t.Errorf("unexpected output %s", got)
	}
}

func TestProfileJSON_OutputForm(t *testing.T) {
	path := writeTemp(t, "profile.json", `{"zone": "Bengaluru ಬೆಂಗಳೂರು", "active_profile": "x", "api": {"port": 9090, "host": "0.0.0.0"}}`)
	if err := ProfileJSON(path, "ekstep"); err != nil {
		t.Fatalf("ProfileJSON failed: %v", err)
	}
	want := `{"active_profile":"ekstep","api":{"host":"0.0.0.0","port":9090},"zone":"Bengaluru ಬೆಂಗಳೂರು"}`
	if got := readFile(t, path); got != want {
		t.Errorf("output = %s\nwant     %s", got, want)
	}
}

func TestProfileJSON_ToleratesComments(t *testing.T) {
	path := writeTemp(t, "profile.json", "{\n  // current profile\n  \"active_profile\": \"x\",\n}\n")
	if err := ProfileJSON(path, "ekstep"); err != nil {
		t.Fatalf("ProfileJSON failed on commented JSON: %v", err)
	}
	if got := readFile(t, path); got != `{"active_profile":"ekstep"}` {
		t.Errorf("unexpected output %s", got)
	}
}

func TestProfileJSON_Malformed(t *testing.T) {
	cases := map[string]string{
		"garbage": "not json",
		"array":   "[1, 2]",
		"null":    "null",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTemp(t, "profile.json", content)
			err := ProfileJSON(path, "ekstep")
			if !errors.Is(err, errors.ErrManifestFormat) {
				t.Errorf("expected ErrManifestFormat, got %v", err)
			}
		})
	}
}

func TestProfileJSON_Missing(t *testing.T) {
	err := ProfileJSON(filepath.Join(t.TempDir(), "profile.json"), "ekstep")
	if !errors.Is(err, errors.ErrManifestFormat) {
		t.Errorf("expected ErrManifestFormat, got %v", err)
	}
}

// =============================================================================
// version.txt
// =============================================================================

func TestReadVersion_FirstLine(t *testing.T) {
	path := writeTemp(t, "version.txt", "1.2.3.45\r\nsecond line\n")
	v, err := ReadVersion(path)
	if err != nil {
		t.Fatalf("ReadVersion failed: %v", err)
	}
	if v != "1.2.3.45" {
		t.Errorf("version = %q", v)
	}
}

func TestReadVersion_Errors(t *testing.T) {
	if _, err := ReadVersion(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, errors.ErrManifestFormat) {
		t.Errorf("missing file: expected ErrManifestFormat, got %v", err)
	}
	if _, err := ReadVersion(writeTemp(t, "version.txt", "")); !errors.Is(err, errors.ErrManifestFormat) {
		t.Errorf("empty file: expected ErrManifestFormat, got %v", err)
	}
}

func TestWriteVersion_RoundTrip(t *testing.T) {
	path := writeTemp(t, "version.txt", "1.2.3.45\n")
	if err := WriteVersion(path, "1.2.3.MS"); err != nil {
		t.Fatalf("WriteVersion failed: %v", err)
	}
	if got := readFile(t, path); got != "1.2.3.MS" {
		t.Errorf("version file = %q", got)
	}
	v, _ := ReadVersion(path)
	if v != "1.2.3.MS" {
		t.Errorf("ReadVersion after write = %q", v)
	}
}
