package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/image-notify/pkg/imagenotify"
	"github.com/tendant/image-notify/pkg/imagenotify/api"
	queuememory "github.com/tendant/image-notify/pkg/imagenotify/queue/memory"
	storagememory "github.com/tendant/image-notify/pkg/imagenotify/storage/memory"
	topicmemory "github.com/tendant/image-notify/pkg/imagenotify/topic/memory"
)

type testServer struct {
	handler http.Handler
	service imagenotify.Service
	queue   *queuememory.Transport
	topic   *topicmemory.Transport
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	queue := queuememory.New(queuememory.WithAutoCreate())
	topic := topicmemory.New(imagenotify.DefaultTopicName)
	svc, err := imagenotify.New(
		imagenotify.WithBlobStore(storagememory.New()),
		imagenotify.WithMessageQueue(queue),
		imagenotify.WithPubSub(topic),
		imagenotify.WithPublicURLBase("http://localhost:8080/images"),
		imagenotify.WithBatch(10, 0),
	)
	require.NoError(t, err)

	return &testServer{
		handler: api.NewImageHandler(svc, nil).Routes(),
		service: svc,
		queue:   queue,
		topic:   topic,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, name string, data []byte) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/images", api.UploadImageRequest{
		ImageName:   name,
		Base64Image: base64.StdEncoding.EncodeToString(data),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) api.Problem {
	t.Helper()
	var p api.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestUploadAndDownload(t *testing.T) {
	s := setupTestServer(t)
	data := []byte("\xff\xd8\xff\xe0 jpeg bytes")

	rec := s.do(t, http.MethodPost, "/images", map[string]string{
		"ImageName":   "a.jpg",
		"Base64Image": base64.StdEncoding.EncodeToString(data),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `"Image uploaded successfully"`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/images/a.jpg", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var encoded string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &encoded))
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestUploadRejectsBadInput(t *testing.T) {
	s := setupTestServer(t)

	t.Run("MalformedBody", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/images", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, http.StatusBadRequest, decodeProblem(t, rec).Status)
	})

	t.Run("BadBase64", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/images", api.UploadImageRequest{ImageName: "a.jpg", Base64Image: "***"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("NameWithoutExtension", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/images", api.UploadImageRequest{ImageName: "plain", Base64Image: "AA=="})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		p := decodeProblem(t, rec)
		assert.Equal(t, http.StatusInternalServerError, p.Status)
		assert.Equal(t, imagenotify.ErrInvalidImageName.Error(), p.Detail)
	})
}

func TestDownloadMissing(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/images/missing.jpg", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, imagenotify.ErrObjectNotFound.Error())
}

func TestDeleteImage(t *testing.T) {
	s := setupTestServer(t)
	s.upload(t, "a.jpg", []byte("x"))

	rec := s.do(t, http.MethodDelete, "/images/a.jpg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"Image deleted successfully"`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/images/a.jpg", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListImages(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/images", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s.upload(t, "b.png", []byte("b"))
	s.upload(t, "a.jpg", []byte("a"))

	rec = s.do(t, http.MethodGet, "/images", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["a.jpg","b.png"]`, rec.Body.String())
}

func TestGetMetaInfo(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/images/metainfo", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, imagenotify.ErrEmptyStore.Error(), decodeProblem(t, rec).Detail)

	s.upload(t, "a.jpg", make([]byte, 100))

	for _, target := range []string{"/images/metainfo?imageName=a.jpg", "/images/metainfo?name=a.jpg", "/images/metainfo"} {
		t.Run(target, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, target, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var meta api.MetaInfoResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
			assert.Equal(t, "a.jpg", meta.ImageName)
			assert.Equal(t, int64(100), meta.ContentLength)
			assert.Equal(t, "jpg", meta.FileExtension)
		})
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/subscribe", api.SubscriptionRequest{Email: "reader@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/unsubscribe", api.SubscriptionRequest{Email: "reader@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code, "pending subscriptions are left in place")

	rec = s.do(t, http.MethodPost, "/unsubscribe", api.SubscriptionRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, imagenotify.ErrSubscriptionNotFound.Error())

	rec = s.do(t, http.MethodPost, "/subscribe", api.SubscriptionRequest{Email: "not an email"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUploadReachesConfirmedSubscriber(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/subscribe", api.SubscriptionRequest{Email: "reader@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, s.topic.Confirm("reader@example.com"))

	s.upload(t, "a.jpg", make([]byte, 100))

	result, err := s.service.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Acked)

	delivered := s.topic.Delivered()
	require.Len(t, delivered, 1)
	assert.Contains(t, delivered[0].Body, "a.jpg")
	assert.Contains(t, delivered[0].Body, "http://localhost:8080/images/a.jpg")
}

func TestOperationalEndpoints(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"V2"`, rec.Body.String())

	for _, path := range []string{"/healthz", "/healthz/ready"} {
		rec = s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	s.upload(t, "a.jpg", []byte("x"))
	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "imagenotify_uploads_total"))
	assert.True(t, strings.Contains(body, `route="/images/"`) || strings.Contains(body, `route="/images"`))
}
