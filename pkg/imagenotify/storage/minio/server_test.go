package minio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type storedObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeS3 answers the path-style S3 calls the backend makes. Listings are
// served pageSize keys at a time with "page-N" continuation tokens.
type fakeS3 struct {
	mu        sync.Mutex
	bucket    string
	pageSize  int
	objects   map[string]storedObject
	listCalls int
}

type listEntry struct {
	Key          string
	LastModified string
	ETag         string
	Size         int64
	StorageClass string
}

type listResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Xmlns                 string   `xml:"xmlns,attr"`
	Name                  string
	Prefix                string
	KeyCount              int
	MaxKeys               int
	IsTruncated           bool
	ContinuationToken     string `xml:",omitempty"`
	NextContinuationToken string `xml:",omitempty"`
	Contents              []listEntry
}

type errorResult struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string
	Message    string
	Key        string `xml:",omitempty"`
	BucketName string
	RequestId  string
}

// newTestBackend starts a fake S3 server and a Backend pointed at it.
func newTestBackend(t *testing.T, pageSize int) (*Backend, *fakeS3) {
	t.Helper()

	fake := &fakeS3{bucket: "images", pageSize: pageSize, objects: map[string]storedObject{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend, err := New(context.Background(), Config{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Bucket:          "images",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	return backend, fake
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storedObject{data: data, contentType: "application/octet-stream", modified: time.Now().UTC()}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		f.writeError(w, http.StatusNotFound, "NoSuchBucket", "")
		return
	}

	if key == "" {
		query := r.URL.Query()
		switch {
		case query.Has("location"):
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
		case query.Get("list-type") == "2":
			f.list(w, query.Get("continuation-token"))
		default:
			w.WriteHeader(http.StatusOK)
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := readBody(r)
		if err != nil {
			f.writeError(w, http.StatusBadRequest, "IncompleteBody", key)
			return
		}
		f.mu.Lock()
		f.objects[key] = storedObject{data: data, contentType: r.Header.Get("Content-Type"), modified: time.Now().UTC()}
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)

	case http.MethodGet, http.MethodHead:
		f.mu.Lock()
		obj, ok := f.objects[key]
		f.mu.Unlock()
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.writeError(w, http.StatusNotFound, "NoSuchKey", key)
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(obj.data)
		}

	case http.MethodDelete:
		f.mu.Lock()
		delete(f.objects, key)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	page := 0
	if token != "" {
		if _, err := fmt.Sscanf(token, "page-%d", &page); err != nil {
			f.writeError(w, http.StatusBadRequest, "InvalidArgument", "")
			return
		}
	}
	start := min(page*f.pageSize, len(keys))
	end := min(start+f.pageSize, len(keys))

	result := listResult{
		Xmlns:             "http://s3.amazonaws.com/doc/2006-03-01/",
		Name:              f.bucket,
		KeyCount:          end - start,
		MaxKeys:           f.pageSize,
		IsTruncated:       end < len(keys),
		ContinuationToken: token,
	}
	if result.IsTruncated {
		result.NextContinuationToken = fmt.Sprintf("page-%d", page+1)
	}
	for _, key := range keys[start:end] {
		obj := f.objects[key]
		result.Contents = append(result.Contents, listEntry{
			Key:          key,
			LastModified: obj.modified.Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"d41d8cd98f00b204e9800998ecf8427e"`,
			Size:         int64(len(obj.data)),
			StorageClass: "STANDARD",
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(result)
}

func (f *fakeS3) writeError(w http.ResponseWriter, status int, code, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(errorResult{
		Code:       code,
		Message:    code,
		Key:        key,
		BucketName: f.bucket,
		RequestId:  "fake",
	})
}

// readBody returns the object payload, decoding aws-chunked streaming
// uploads when the client signed the body in chunks.
func readBody(r *http.Request) ([]byte, error) {
	if r.Header.Get("X-Amz-Decoded-Content-Length") == "" {
		return io.ReadAll(r.Body)
	}

	br := bufio.NewReader(r.Body)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}
