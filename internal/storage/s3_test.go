package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestBucketPutGet(t *testing.T) {
	objects := newFakeObjects()
	b := &Bucket{client: objects, name: "graphs"}
	ctx := context.Background()

	if err := b.Put(ctx, "exports/a.json", "application/json", []byte(`{"entities":[]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if objects.types["exports/a.json"] != "application/json" {
		t.Fatalf("content type not stored: %v", objects.types)
	}

	got, err := b.Get(ctx, "/exports/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"entities":[]}` {
		t.Fatalf("Get = %s", got)
	}

	if _, err := b.Get(ctx, "exports/missing.json"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "imports/graph.graphml", want: "imports/graph.graphml"},
		{key: " /imports/graph.json ", want: "imports/graph.json"},
		{key: "", wantErr: true},
		{key: "../secrets", wantErr: true},
		{key: "s3://other/graph.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("cleanKey(%q) = %q, %v; want %q", tt.key, got, err, tt.want)
			}
		})
	}
}

func TestExportKey(t *testing.T) {
	key := ExportKey(".graphml")
	if !strings.HasPrefix(key, "exports/") || !strings.HasSuffix(key, ".graphml") {
		t.Fatalf("unexpected export key %q", key)
	}
	if ExportKey("json") == ExportKey("json") {
		t.Fatalf("export keys must be unique")
	}
}

func TestDownloadLinkWithoutSigner(t *testing.T) {
	b := &Bucket{client: newFakeObjects(), name: "graphs"}
	link, err := b.DownloadLink(context.Background(), "exports/a.json")
	if err != nil || link != "" {
		t.Fatalf("DownloadLink = %q, %v", link, err)
	}
}
