package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // S3 etags are md5 digests
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	mockEndpoint = "https://mock.s3.local"
	mockBucket   = "hostel-attachments"
	metaHeader   = "X-Amz-Meta-"
)

// NewMockForTests returns a Store backed by an in-process fake of the S3
// REST subset the blob store uses (Head, Get, conditional Put, Delete and
// paginated ListObjectsV2).
func NewMockForTests() *Store {
	store, err := New(context.Background(), Config{
		Bucket:          mockBucket,
		Region:          defaultRegion,
		Endpoint:        mockEndpoint,
		PathStyle:       true,
		AccessKeyID:     "AKIAMOCK",
		SecretAccessKey: "mock-secret",
		HTTPClient:      &http.Client{Transport: newMockTransport(2)},
	})
	if err != nil {
		panic(fmt.Sprintf("mock s3 store: %v", err))
	}
	return store
}

type mockObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// mockTransport serves path-style requests (/bucket/key). List results are
// split into pages of pageSize keys.
type mockTransport struct {
	mu       sync.Mutex
	objects  map[string]mockObject
	pageSize int
}

func newMockTransport(pageSize int) *mockTransport {
	return &mockTransport{objects: make(map[string]mockObject), pageSize: pageSize}
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := m.objects[key]
		if !ok {
			return mockResponse(http.StatusNotFound, nil, nil), nil
		}
		return mockResponse(http.StatusOK, obj.headers(), nil), nil
	case http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			return mockResponse(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}},
				[]byte("<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>")), nil
		}
		return mockResponse(http.StatusOK, obj.headers(), obj.body), nil
	case http.MethodPut:
		if _, exists := m.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
			return mockResponse(http.StatusPreconditionFailed, http.Header{"Content-Type": {"application/xml"}},
				[]byte("<Error><Code>PreconditionFailed</Code></Error>")), nil
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeChunked(body); ok {
			body = decoded
		}
		md := make(map[string]string)
		for name, values := range req.Header {
			if strings.HasPrefix(name, metaHeader) && len(values) > 0 {
				md[strings.ToLower(strings.TrimPrefix(name, metaHeader))] = values[0]
			}
		}
		m.objects[key] = mockObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md, modified: time.Now().UTC()}
		return mockResponse(http.StatusOK, http.Header{"ETag": {etagOf(body)}}, nil), nil
	case http.MethodDelete:
		delete(m.objects, key)
		return mockResponse(http.StatusNoContent, nil, nil), nil
	}
	return mockResponse(http.StatusNotImplemented, nil, nil), nil
}

func (m *mockTransport) list(req *http.Request) *http.Response {
	q := req.URL.Query()
	prefix := q.Get("prefix")
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if tok := q.Get("continuation-token"); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := min(start+m.pageSize, len(keys))
	truncated := end < len(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<KeyCount>%d</KeyCount><IsTruncated>%t</IsTruncated>", end-start, truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%d</NextContinuationToken>", end)
	}
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.body), etagOf(obj.body), obj.modified.Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return mockResponse(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, []byte(b.String()))
}

func (o mockObject) headers() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"ETag":           {etagOf(o.body)},
		"Last-Modified":  {o.modified.Format(http.TimeFormat)},
	}
	if o.contentType != "" {
		h.Set("Content-Type", o.contentType)
	}
	for k, v := range o.metadata {
		h.Set(metaHeader+k, v)
	}
	return h
}

func mockResponse(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func etagOf(body []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(body))
}

// decodeChunked unwraps a single-chunk aws-chunked payload
// (<hex>\r\n<body>\r\n0\r\n...). It reports false for plain bodies.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if err != nil || size <= 0 || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}
