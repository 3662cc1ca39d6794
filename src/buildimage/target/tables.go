package target

// defaultHostname is the hostname of the unbranded device
const defaultHostname = "openRAP"

// versionSuffixes maps profiles to the two-letter version suffix
var versionSuffixes = map[ProfileKind]string{
	ProfileMeghshala: "MS",
	ProfileEkStep:    "ES",
}

// fallbackSuffix is used for profiles without an entry
const fallbackSuffix = "DF"

// Hostname derives the device hostname from a kind name. The bare device kind
// maps to the product hostname, anything else gets an ORAP suffix.
func Hostname(name string) string {
	if name == string(DeviceOpenRAP) {
		return defaultHostname
	}
	return name + "ORAP"
}

// VersionSuffix returns the two-letter version suffix for a profile
func VersionSuffix(profile ProfileKind) string {
	if s, ok := versionSuffixes[profile]; ok {
		return s
	}
	return fallbackSuffix
}

// ApplySuffix replaces the last two characters of version with suffix.
// Versions shorter than two characters are replaced entirely.
func ApplySuffix(version, suffix string) string {
	if len(version) < 2 {
		return suffix
	}
	return version[:len(version)-2] + suffix
}

// ArchiveBaseName is the archive file name without its extension
func ArchiveBaseName(device DeviceKind, version string) string {
	return string(device) + "-" + version
}
