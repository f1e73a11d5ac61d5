package archive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"comment-map/source"
)

func TestSaveComments_PutsJSONSnapshot(t *testing.T) {
	var (
		method, path string
		body         []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:        credentials.NewStaticV4("access", "secret", ""),
		Secure:       false,
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		t.Fatal(err)
	}

	jobId := uuid.New()
	a := New(client, "snapshots")
	comments := []source.Comment{{ID: "c1", Text: "first"}, {ID: "c2", Text: "second"}}
	if err := a.SaveComments(context.Background(), "dQw4w9WgXcQ", jobId, comments); err != nil {
		t.Fatalf("SaveComments: %v", err)
	}

	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if want := "/snapshots/" + ObjectName("dQw4w9WgXcQ", jobId); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	// Plain HTTP uploads may be chunk-signed, so only look for the payload.
	want, _ := json.Marshal(comments)
	if !strings.Contains(string(body), string(want)) || !strings.Contains(string(body), jobId.String()) {
		t.Errorf("body does not carry the snapshot: %q", body)
	}
}

func TestObjectName(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if got := ObjectName("abc", id); got != "comments/abc/6ba7b810-9dad-11d1-80b4-00c04fd430c8.json" {
		t.Errorf("ObjectName = %q", got)
	}
}
