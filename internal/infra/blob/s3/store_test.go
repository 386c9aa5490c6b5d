package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"anchorgen/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests("")
	ctx := context.Background()
	body := []byte("SELECT 1")
	info, err := store.Put(ctx, "runs/r1/anchor__PR.sql", bytes.NewReader(body), core.PutOptions{ContentType: "application/sql", Metadata: map[string]string{"model": "anchor__PR"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "runs/r1/anchor__PR.sql" || info.ContentType != "application/sql" || info.Size != int64(len(body)) {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.Checksum != core.Checksum(body) || info.Metadata["model"] != "anchor__PR" {
		t.Fatalf("checksum/metadata not round-tripped: %#v", info)
	}
	if _, err := store.Put(ctx, "runs/r1/anchor__PR.sql", bytes.NewReader([]byte("ignored")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "runs/r1/anchor__PR.sql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(data, body) {
		t.Fatalf("get mismatch: %q", string(data))
	}
	if _, err := store.Put(ctx, "runs/r1/anchor__PR.sql", bytes.NewReader([]byte("SELECT 2")), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if h, err := store.Head(ctx, "runs/r1/anchor__PR.sql"); err != nil || h.Checksum != core.Checksum([]byte("SELECT 2")) {
		t.Fatalf("head after overwrite: %v %+v", err, h)
	}
	if ok, err := store.Delete(ctx, "runs/r1/anchor__PR.sql"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "runs/r1/anchor__PR.sql"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStore_ListPaginatesAndStripsPrefix(t *testing.T) {
	store := NewMockForTests("/anchorgen/")
	ctx := context.Background()
	for _, k := range []string{"runs/b.sql", "runs/a.sql", "runs/c.sql", "other.sql"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Key != "runs/a.sql" || list[2].Key != "runs/c.sql" {
		t.Fatalf("expected three keys across pages, got %+v", list)
	}
	if list, err := store.List(ctx, "no-such-prefix/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := NewMockForTests("")
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Put(ctx, "", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestStore_New(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := New(context.Background(), Config{Bucket: "bkt", Endpoint: "https://mock.s3.local", PathStyle: true, Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.prefix != "p/" {
		t.Fatalf("unexpected store %+v", s)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestFromHeadDefaults(t *testing.T) {
	info := fromHead("k", 10, nil, map[string]string{core.MetaChecksum: "abc"}, nil)
	if info.ContentType != "" || info.Checksum != "abc" || info.LastModified.IsZero() {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected failure for plain body")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	b, ok := decodeChunked([]byte("5;chunk-signature=x\r\nhello\r\n3\r\n a\n\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if !ok || string(b) != "hello a\n" {
		t.Fatalf("decode = %q %v", b, ok)
	}
}

func TestMockRoundTripperUnsupported(t *testing.T) {
	rt := newMockRoundTripper(0)
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
