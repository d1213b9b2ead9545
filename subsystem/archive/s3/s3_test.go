package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/micromdm/nanoscreen/subsystem/archive/test"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	f.objects[key] = body
	f.types[key] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Backend(t *testing.T) {
	s, err := New(newFakeS3(), "acks", "prefix/")
	if err != nil {
		t.Fatal(err)
	}
	test.TestBackend(t, s)
}

func TestS3Key(t *testing.T) {
	f := newFakeS3()
	s, err := New(f, "acks", "/nanoscreen/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Put(context.Background(), "abc123", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.objects["acks/nanoscreen/abc123.json"]; !ok {
		t.Errorf("object not found at expected key; have %v", f.objects)
	}
	if want, have := "application/json", f.types["acks/nanoscreen/abc123.json"]; want != have {
		t.Errorf("content type: want %q, have %q", want, have)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(newFakeS3(), " ", ""); err == nil {
		t.Error("expected error")
	}
}

func TestApplyPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "abc.json", want: "abc.json"},
		{name: "simple prefix", prefix: "root", key: "abc.json", want: "root/abc.json"},
		{name: "prefix trailing slash", prefix: "root/", key: "abc.json", want: "root/abc.json"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/abc.json", want: "root/abc.json"},
		{name: "nested prefix", prefix: "root/sub", key: "abc.json", want: "root/sub/abc.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}
