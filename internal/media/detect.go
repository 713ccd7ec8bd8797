package media

import (
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".mts": {},
	".m2ts": {}, ".mxf": {}, ".braw": {}, ".r3d": {}, ".wmv": {},
	".webm": {}, ".3gp": {},
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".heic": {}, ".heif": {},
	".dng": {}, ".cr2": {}, ".cr3": {}, ".nef": {}, ".arw": {},
	".raf": {}, ".orf": {}, ".rw2": {}, ".tif": {}, ".tiff": {},
	".gif": {}, ".webp": {}, ".bmp": {},
}

var sidecarExtensions = map[string]struct{}{
	".xmp": {}, ".thm": {}, ".lrc": {}, ".srt": {}, ".gpx": {},
	".aae": {}, ".xml": {},
}

// DetectType classifies a filename by extension.
func DetectType(filename string) Type {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := videoExtensions[ext]; ok {
		return TypeVideo
	}
	if _, ok := imageExtensions[ext]; ok {
		return TypeImage
	}
	if _, ok := sidecarExtensions[ext]; ok {
		return TypeSidecar
	}
	return TypeOther
}

// Importable reports whether the scanner should pick up a filename.
func Importable(filename string) bool {
	return DetectType(filename) != TypeOther
}
