package blob_test

import (
	"encoding/json"
	"testing"

	"podforge/internal/blob"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		in      string
		want    blob.Ref
		wantErr bool
	}{
		{in: "/srv/audio/main.wav", want: blob.Ref{Version: 1, Scheme: blob.SchemeFile, Path: "/srv/audio/main.wav"}},
		{in: "file:///srv/a.wav", want: blob.Ref{Version: 1, Scheme: blob.SchemeFile, Path: "/srv/a.wav"}},
		{in: "s3://media/users/7/ep.wav", want: blob.Ref{Version: 1, Scheme: blob.SchemeS3, Bucket: "media", Key: "users/7/ep.wav"}},
		{in: "s3://media", wantErr: true},
		{in: "s3://media/", wantErr: true},
		{in: "gs://bucket/key", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := blob.ParseRef(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRef(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRef(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRef(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestRefJSONAcceptsStringAndObject(t *testing.T) {
	var payload struct {
		A blob.Ref `json:"a"`
		B blob.Ref `json:"b"`
		C blob.Ref `json:"c"`
	}
	doc := `{"a":"s3://media/x.wav","b":{"scheme":"file","path":"/tmp/y.wav"},"c":null}`
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A.Bucket != "media" || payload.A.Key != "x.wav" {
		t.Fatalf("unexpected a: %+v", payload.A)
	}
	if payload.B.Version != blob.RefVersion || payload.B.Path != "/tmp/y.wav" {
		t.Fatalf("unexpected b: %+v", payload.B)
	}
	if !payload.C.IsZero() {
		t.Fatalf("expected zero c, got %+v", payload.C)
	}

	encoded, err := json.Marshal(payload.A)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"version":1,"scheme":"s3","bucket":"media","key":"x.wav"}` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestContentKeyDiffersPerRef(t *testing.T) {
	a := blob.ContentKey(blob.ObjectRef("media", "a.wav"))
	b := blob.ContentKey(blob.ObjectRef("media", "b.wav"))
	if a == b || len(a) != 64 {
		t.Fatalf("unexpected content keys %q %q", a, b)
	}
}
