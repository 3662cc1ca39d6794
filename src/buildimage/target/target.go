// Package target defines the board, platform, device and profile an image is
// built for, along with the fixed lookup tables derived from them.
package target

import (
	"fmt"
	"strings"

	"github.com/projectopenrap/buildimage/src/common/errors"
)

// BoardKind identifies the hardware an image runs on
type BoardKind string

const (
	BoardRPi BoardKind = "rpi"
	BoardOPi BoardKind = "opi"
)

// PlatformKind identifies the base OS tree the image is layered on
type PlatformKind string

const (
	PlatformRaspbian PlatformKind = "raspbian"
	PlatformArmbian  PlatformKind = "armbian"
)

// DeviceKind identifies the product family
type DeviceKind string

const (
	DeviceOpenRAP DeviceKind = "openrap"
)

// ProfileKind identifies the branding variant of a device
type ProfileKind string

const (
	ProfileMeghshala ProfileKind = "meghshala"
	ProfileEkStep    ProfileKind = "ekstep"
)

// Defaults used when a value is not supplied
const (
	DefaultBoard    = BoardRPi
	DefaultPlatform = PlatformRaspbian
	DefaultDevice   = DeviceOpenRAP
	DefaultProfile  = ProfileEkStep
)

// ValidBoards returns all supported boards
func ValidBoards() []BoardKind {
	return []BoardKind{BoardRPi, BoardOPi}
}

// ValidPlatforms returns all supported platforms
func ValidPlatforms() []PlatformKind {
	return []PlatformKind{PlatformRaspbian, PlatformArmbian}
}

// ValidDevices returns all supported devices
func ValidDevices() []DeviceKind {
	return []DeviceKind{DeviceOpenRAP}
}

// ValidProfiles returns all supported profiles
func ValidProfiles() []ProfileKind {
	return []ProfileKind{ProfileMeghshala, ProfileEkStep}
}

func parse[T ~string](kind, value string, valid []T) (T, error) {
	for _, v := range valid {
		if string(v) == value {
			return v, nil
		}
	}
	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = string(v)
	}
	var zero T
	return zero, errors.ErrInvalidTarget.WithMessagef("invalid %s %q (choose from %s)",
		kind, value, strings.Join(names, ", "))
}

// ParseBoard validates a board name
func ParseBoard(s string) (BoardKind, error) {
	return parse("board", s, ValidBoards())
}

// ParsePlatform validates a platform name
func ParsePlatform(s string) (PlatformKind, error) {
	return parse("platform", s, ValidPlatforms())
}

// ParseDevice validates a device name
func ParseDevice(s string) (DeviceKind, error) {
	return parse("device", s, ValidDevices())
}

// ParseProfile validates a profile name
func ParseProfile(s string) (ProfileKind, error) {
	return parse("profile", s, ValidProfiles())
}

// Target is the full selection an image is built for
type Target struct {
	Board    BoardKind    `json:"board"`
	Platform PlatformKind `json:"platform"`
	Device   DeviceKind   `json:"device"`
	Profile  ProfileKind  `json:"profile"`
}

// Default returns the target built when no flags are given
func Default() Target {
	return Target{
		Board:    DefaultBoard,
		Platform: DefaultPlatform,
		Device:   DefaultDevice,
		Profile:  DefaultProfile,
	}
}

// Parse validates the four names and returns a Target
func Parse(board, platform, device, profile string) (Target, error) {
	var t Target
	var err error
	if t.Board, err = ParseBoard(board); err != nil {
		return Target{}, err
	}
	if t.Platform, err = ParsePlatform(platform); err != nil {
		return Target{}, err
	}
	if t.Device, err = ParseDevice(device); err != nil {
		return Target{}, err
	}
	if t.Profile, err = ParseProfile(profile); err != nil {
		return Target{}, err
	}
	return t, nil
}

// OutputDirName is the per-combination build directory name. Profiles of the
// same board/platform/device share it.
func (t Target) OutputDirName() string {
	return fmt.Sprintf("output_%s_%s_%s", t.Platform, t.Board, t.Device)
}

// String returns a short description for logs
func (t Target) String() string {
	return fmt.Sprintf("board[%s] platform[%s] device[%s] profile[%s]",
		t.Board, t.Platform, t.Device, t.Profile)
}
