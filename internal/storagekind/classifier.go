package storagekind

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind classifies the storage backing a path.
type Kind string

const (
	Local   Kind = "local"
	Network Kind = "network"
)

var networkSchemes = []string{
	"smb://",
	"nfs://",
	"afp://",
	"cifs://",
	"ftp://",
	"sftp://",
	"webdav://",
}

// Volume names that indicate the machine's own disks when mounted under
// /Volumes (macOS mounts everything there, local disks included).
var localVolumeNames = []string{
	"macintosh hd",
	"macintosh ssd",
	"data",
	"home",
	"system",
	"preboot",
	"recovery",
}

// Volume and folder names typical of mounted camera media.
var cameraMediaNames = []string{
	"dcim",
	"sd card",
	"sdcard",
	"eos_digital",
	"nikon",
	"canon",
	"sony",
	"lumix",
	"fujifilm",
	"gopro",
	"dji",
	"no name",
	"untitled",
	"pmhome",
	"private", // AVCHD card layout
}

// Prefixes under which anything unrecognized is treated as a mount of
// unknown provenance.
var mountPrefixes = []string{
	"/mnt/",
	"/media/",
	"/net/",
	"/run/media/",
}

var fold = cases.Lower(language.Und)

// Classify reports whether a path is backed by local or network storage.
//
// Detection order: explicit network URI schemes and UNC paths are always
// network; mounted volumes with a known local-disk or camera-media name
// are local; any other mounted volume is network; everything else is
// local.
func Classify(path string) Kind {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Local
	}
	folded := fold.String(trimmed)

	for _, scheme := range networkSchemes {
		if strings.HasPrefix(folded, scheme) {
			return Network
		}
	}
	if strings.HasPrefix(trimmed, `\\`) || strings.HasPrefix(trimmed, "//") {
		return Network
	}

	if rest, ok := strings.CutPrefix(folded, "/volumes/"); ok {
		volume := rest
		if idx := strings.IndexByte(volume, '/'); idx >= 0 {
			volume = volume[:idx]
		}
		if matchesAny(volume, localVolumeNames) || containsCameraName(folded) {
			return Local
		}
		return Network
	}

	for _, prefix := range mountPrefixes {
		if strings.HasPrefix(folded, prefix) {
			if containsCameraName(folded) {
				return Local
			}
			return Network
		}
	}

	return Local
}

func matchesAny(volume string, names []string) bool {
	for _, name := range names {
		if strings.Contains(volume, name) {
			return true
		}
	}
	return false
}

func containsCameraName(folded string) bool {
	for _, segment := range strings.Split(folded, string(filepath.Separator)) {
		if segment == "" {
			continue
		}
		if matchesAny(segment, cameraMediaNames) {
			return true
		}
	}
	return false
}
