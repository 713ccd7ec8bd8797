package media

import "testing"

func TestDetectType(t *testing.T) {
	cases := []struct {
		filename string
		want     Type
	}{
		{"clip.MOV", TypeVideo},
		{"render.mkv", TypeVideo},
		{"IMG_0001.JPG", TypeImage},
		{"raw.CR3", TypeImage},
		{"edit.xmp", TypeSidecar},
		{"track.gpx", TypeSidecar},
		{"notes.txt", TypeOther},
		{"archive.zip", TypeOther},
		{"no_extension", TypeOther},
	}
	for _, tc := range cases {
		if got := DetectType(tc.filename); got != tc.want {
			t.Errorf("DetectType(%q) = %s, want %s", tc.filename, got, tc.want)
		}
	}
}

func TestImportable(t *testing.T) {
	if !Importable("clip.mov") {
		t.Fatal("video files are importable")
	}
	if Importable("readme.md") {
		t.Fatal("documents are not importable")
	}
}
