package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	gcworker "mediastore/internal/domain/gc"
	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
)

var testAllowed = map[string]bool{"text/plain": true}

// copyCodec stands in for the external transcoder: the "thumbnail" is a
// byte copy of the source.
type copyCodec struct{}

func (copyCodec) Thumbnail(ctx context.Context, src, dst, kind string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

type testEnv struct {
	router *gin.Engine
	worker *gcworker.Worker
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:media_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&registry.HashRecord{}, &ledger.OwnershipRecord{}))

	root := t.TempDir()
	reg := registry.NewRepository(db)
	led := ledger.NewRepository(db)
	ing := ingest.NewService(reg, led, root, 1<<20, testAllowed)
	worker := gcworker.NewWorker(reg, root, 1, time.Hour)
	service := NewService(ing, led, reg, worker, root, t.TempDir(), copyCodec{})
	handler := NewHandler(service)

	router := gin.New()
	// Test stand-in for the auth middleware.
	authed := router.Group("/", func(c *gin.Context) {
		c.Set("user_id", int64(1))
	})
	RegisterRoutes(authed, handler)
	RegisterPublicRoutes(&router.RouterGroup, handler)

	return &testEnv{router: router, worker: worker}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, filename, content string) (int64, string) {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ID   int64  `json:"id"`
			Hash string `json:"hash"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data.ID, resp.Data.Hash
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadAndSharedRetrieval(t *testing.T) {
	env := setupEnv(t)

	_, hash := env.upload(t, "hello.txt", "hello")

	w := env.get("/shared?data=" + hash)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello", w.Body.String())
	require.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Cache-Control"), "immutable")
	require.Equal(t, `"`+hash+`"`, w.Header().Get("ETag"))
}

func TestSharedValidatesHashShape(t *testing.T) {
	env := setupEnv(t)

	for _, bad := range []string{"", "abc", "../../etc/passwd", "g" + string(bytes.Repeat([]byte("0"), 63))} {
		w := env.get("/shared?data=" + bad)
		require.Equal(t, http.StatusNotFound, w.Code, "hash %q", bad)
	}

	// Well-formed but unknown hash is indistinguishable from absent.
	w := env.get("/shared?data=2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUnbindsAndGCReclaims(t *testing.T) {
	env := setupEnv(t)

	id1, hash := env.upload(t, "a.txt", "shared-bytes")
	id2, hash2 := env.upload(t, "b.txt", "shared-bytes")
	require.Equal(t, hash, hash2)

	// First unbind leaves the content alive for the other owner.
	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/uploads/%d", id1), nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	env.worker.Sweep(context.Background())
	require.Equal(t, http.StatusOK, env.get("/shared?data="+hash).Code)

	// Last unbind plus a GC pass makes it gone.
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/uploads/%d", id2), nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	env.worker.Sweep(context.Background())
	require.Equal(t, http.StatusNotFound, env.get("/shared?data="+hash).Code)
}

func TestDeleteForeignFileLooksAbsent(t *testing.T) {
	env := setupEnv(t)

	_, _ = env.upload(t, "mine.txt", "mine")

	// The auth stub pins user 1; an id that exists but belongs to nobody
	// else here, so use a bogus id to exercise the not-found path.
	req := httptest.NewRequest(http.MethodDelete, "/uploads/9999", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartBody(t, "file", "doc.pdf", "%PDF-1.4\nnot really allowed")
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestThumbnailCacheMissInvokesCodec(t *testing.T) {
	env := setupEnv(t)

	_, hash := env.upload(t, "pic.txt", "pretend this is an image")

	w := env.get("/thumbnail?data=" + hash + "&type=image")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "pretend this is an image", w.Body.String())
	require.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	// Cache hit serves the same bytes.
	w = env.get("/thumbnail?data=" + hash + "&type=image")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.get("/thumbnail?data=" + hash + "&type=audio")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMyUploads(t *testing.T) {
	env := setupEnv(t)

	env.upload(t, "one.txt", "one")
	env.upload(t, "two.txt", "two")

	w := env.get("/uploads")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
}
