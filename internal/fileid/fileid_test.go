package fileid

import "testing"

func TestUploadDocID_Stable(t *testing.T) {
	a := UploadDocID("/uploads/spec.txt")
	b := UploadDocID("/uploads/spec.txt")
	if a != b {
		t.Errorf("same path produced different IDs: %s vs %s", a, b)
	}
}

func TestUploadDocID_NormalizesPath(t *testing.T) {
	a := UploadDocID("/uploads/spec.txt")
	b := UploadDocID("/uploads//./spec.txt")
	if a != b {
		t.Errorf("equivalent paths produced different IDs: %s vs %s", a, b)
	}
}

func TestUploadDocID_DistinctPaths(t *testing.T) {
	if UploadDocID("/uploads/a.txt") == UploadDocID("/uploads/b.txt") {
		t.Error("different paths must produce different IDs")
	}
}
