package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	testBucket   = "portfolio-content"
	testPrefix   = "site/bundles"
	testSSMParam = "/portfolio/content/hash"
)

func sha256hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// makeTarGz builds a bundle from name -> content. Names are written in
// sorted order so the same entries always hash the same.
func makeTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, n := range names {
		body := entries[n]
		if err := tw.WriteHeader(&tar.Header{Name: n, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("write header %s: %v", n, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// makeTarGzEntry builds a bundle with a single header of any type.
func makeTarGzEntry(t *testing.T, hdr *tar.Header, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if len(body) > 0 {
		if _, err := tw.Write(body); err != nil {
			t.Fatal(err)
		}
	}
	_ = tw.Close()
	_ = gw.Close()
	return buf.Bytes()
}

func sitePages(version string) map[string]string {
	return map[string]string{
		"index.html":          "<h1>home " + version + "</h1>",
		"work/index.html":     "<h1>work</h1>",
		"services/index.html": "<h1>services</h1>",
		"stack/index.html":    "<h1>stack</h1>",
		"contact/index.html":  "<h1>contact</h1>",
		"bundle.json":         `{"version":"` + version + `","built_at":"2026-01-02T03:04:05Z"}`,
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	gets    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	if aws.ToString(in.Bucket) != testBucket {
		return nil, errors.New("NoSuchBucket")
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey: " + aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeSSM struct {
	mu    sync.Mutex
	value string
	err   error
}

func (f *fakeSSM) set(v string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value, f.err = v, err
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(f.value)},
	}, nil
}

type fakeVerifier struct {
	err  error
	seen [][]byte
}

func (v *fakeVerifier) VerifySignature(_ context.Context, message, signature []byte) error {
	v.seen = append(v.seen, signature)
	return v.err
}

type fixture struct {
	s3     *fakeS3
	ssm    *fakeSSM
	loader *Loader
}

func newFixture(t *testing.T, verifier SignatureVerifier) *fixture {
	t.Helper()
	f := &fixture{s3: newFakeS3(), ssm: &fakeSSM{}}
	l, err := NewLoader(context.Background(), LoaderOptions{
		SSMParam:  testSSMParam,
		S3Bucket:  testBucket,
		S3Prefix:  testPrefix,
		Verifier:  verifier,
		SSMClient: f.ssm,
		S3Client:  f.s3,
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f.loader = l
	return f
}

// publish uploads a bundle and points SSM at it, returning its hash.
func (f *fixture) publish(t *testing.T, entries map[string]string) string {
	t.Helper()
	data := makeTarGz(t, entries)
	hash := sha256hex(data)
	f.s3.put(testPrefix+"/"+hash+".tar.gz", data)
	f.s3.put(testPrefix+"/"+hash+".tar.gz.sig", []byte("sig-"+hash[:8]))
	f.ssm.set(hash, nil)
	return hash
}
