// Package mutate rewrites the configuration files a profile customizes inside
// the staged image tree. Each function takes the file path and the new value
// and rewrites the file in place.
package mutate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/tidwall/jsonc"
)

// ProfileField is the descriptor key holding the active profile name
const ProfileField = "active_profile"

// hostsTemplate binds loopback to localhost and the device hostname
const hostsTemplate = "127.0.0.1    localhost\n127.0.1.1    %s\n"

// writeFile replaces the contents of path, keeping its mode when it exists
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return errors.ErrFileRewrite.WithMessagef("rewrite %s", path).WithCause(err)
	}
	return nil
}

// Hostname writes hostname as the whole content of an /etc/hostname file
func Hostname(path, hostname string) error {
	return writeFile(path, []byte(hostname))
}

// Hosts rewrites an /etc/hosts file to the two loopback entries
func Hosts(path, hostname string) error {
	return writeFile(path, []byte(fmt.Sprintf(hostsTemplate, hostname)))
}

// HostapdSSID rewrites a hostapd.conf so that ssid=<hostname> is the first
// line. Every existing line starting with "ssid" is dropped; the remaining
// lines keep their order and line endings.
func HostapdSSID(path, hostname string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ErrFileRewrite.WithMessagef("read %s", path).WithCause(err)
	}

	var out bytes.Buffer
	out.WriteString("ssid=" + hostname + "\n")

	r := bufio.NewReader(bytes.NewReader(data))
	for {
		line, err := r.ReadString('\n')
		if line != "" && !strings.HasPrefix(line, "ssid") {
			out.WriteString(line)
		}
		if err != nil {
			break
		}
	}

	return writeFile(path, out.Bytes())
}

// ProfileJSON sets the active_profile field of a JSON profile descriptor and
// preserves every other field. Comments and trailing commas in the input are
// tolerated. The output is compact JSON with sorted keys and unescaped UTF-8.
func ProfileJSON(path, profile string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ErrManifestFormat.WithMessagef("read profile descriptor %s", path).WithCause(err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return errors.ErrManifestFormat.WithMessagef("parse profile descriptor %s", path).WithCause(err)
	}
	if doc == nil {
		return errors.ErrManifestFormat.WithMessagef("profile descriptor %s is not an object", path)
	}
	doc[ProfileField] = profile

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return errors.ErrManifestFormat.WithMessagef("encode profile descriptor %s", path).WithCause(err)
	}

	return writeFile(path, bytes.TrimRight(out.Bytes(), "\n"))
}

// ReadVersion returns the first line of a version manifest file
func ReadVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.ErrManifestFormat.WithMessagef("read version file %s", path).WithCause(err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return "", errors.ErrManifestFormat.WithMessagef("version file %s is empty", path)
	}
	return line, nil
}

// WriteVersion replaces the version manifest with a single version line
func WriteVersion(path, version string) error {
	return writeFile(path, []byte(version))
}
