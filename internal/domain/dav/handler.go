package dav

import (
	"encoding/xml"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"mediastore/internal/domain/account"
	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
)

// Sentinel timestamps for every resource. Some legacy WebDAV clients
// (notably older Windows ones) reject timestamps outside a narrow valid
// range, so real creation times are never emitted here.
const (
	sentinelCreation = "2020-01-01T00:00:00Z"
	sentinelModified = "Wed, 01 Jan 2020 00:00:00 GMT"
)

const allowedMethods = "OPTIONS, GET, HEAD, PROPFIND"

// Handler is a read-only WebDAV facade over the ownership ledger and the
// hash registry. It holds no state of its own: every response is derived
// per-request from the store.
type Handler struct {
	accounts account.Resolver
	ledger   ledger.Repository
	registry registry.Repository
	ingest   *ingest.Service
}

func NewHandler(accounts account.Resolver, led ledger.Repository, reg registry.Repository, ing *ingest.Service) *Handler {
	return &Handler{
		accounts: accounts,
		ledger:   led,
		registry: reg,
		ingest:   ing,
	}
}

// Dispatch routes one /dav request by method.
func (h *Handler) Dispatch(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		h.options(c)
	case "PROPFIND":
		h.propfind(c)
	case http.MethodGet, http.MethodHead:
		h.get(c)
	default:
		h.MethodNotAllowed(c)
	}
}

// MethodNotAllowed rejects the write verbs explicitly. The adapter is
// read-only; silently ignoring a PUT would be far worse than refusing it.
func (h *Handler) MethodNotAllowed(c *gin.Context) {
	c.Header("Allow", allowedMethods)
	c.Header("DAV", "1")
	c.Status(http.StatusMethodNotAllowed)
}

func (h *Handler) options(c *gin.Context) {
	c.Header("Allow", allowedMethods)
	c.Header("DAV", "1")
	c.Header("MS-Author-Via", "DAV")
	c.Status(http.StatusOK)
}

// authenticate resolves Basic credentials and checks them against the
// username segment of the path. A credential/namespace mismatch is a 404,
// not a 403: the adapter never confirms that a foreign namespace exists.
func (h *Handler) authenticate(c *gin.Context, pathUser string) (int64, bool) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="mediastore"`)
		c.Status(http.StatusUnauthorized)
		return 0, false
	}
	userID, err := h.accounts.Resolve(c.Request.Context(), username, password)
	if err != nil {
		c.Header("WWW-Authenticate", `Basic realm="mediastore"`)
		c.Status(http.StatusUnauthorized)
		return 0, false
	}
	if pathUser == "" || pathUser != username {
		c.Status(http.StatusNotFound)
		return 0, false
	}
	return userID, true
}

// splitPath breaks the wildcard into (username, filename). filename is
// empty for the user's root collection.
func splitPath(c *gin.Context) (string, string) {
	p := strings.Trim(c.Param("path"), "/")
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func (h *Handler) propfind(c *gin.Context) {
	pathUser, filename := splitPath(c)
	userID, ok := h.authenticate(c, pathUser)
	if !ok {
		return
	}

	var responses []Response
	if filename == "" {
		records, err := h.ledger.ListByUser(c.Request.Context(), userID)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		responses = append(responses, collectionResponse(pathUser))
		for i := range records {
			resp, err := h.fileResponse(c, pathUser, &records[i])
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			responses = append(responses, resp)
		}
	} else {
		rec, err := h.ledger.FindByUserAndName(c.Request.Context(), userID, filename)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		resp, err := h.fileResponse(c, pathUser, rec)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		responses = append(responses, resp)
	}

	body, err := xml.Marshal(newMultistatus(responses))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Content-Type", `application/xml; charset="utf-8"`)
	c.Status(http.StatusMultiStatus)
	_, _ = c.Writer.WriteString(xml.Header)
	_, _ = c.Writer.Write(body)
}

func collectionResponse(username string) Response {
	return Response{
		Href: "/dav/" + username + "/",
		Propstat: Propstat{
			Prop: Prop{
				DisplayName:     username,
				ResourceType:    &ResourceType{Collection: &struct{}{}},
				CreationDate:    sentinelCreation,
				GetLastModified: sentinelModified,
			},
			Status: "HTTP/1.1 200 OK",
		},
	}
}

func (h *Handler) fileResponse(c *gin.Context, username string, own *ledger.OwnershipRecord) (Response, error) {
	hashRec, err := h.registry.Lookup(c.Request.Context(), own.Hash)
	if err != nil {
		return Response{}, err
	}
	length := hashRec.SizeBytes
	return Response{
		Href: "/dav/" + username + "/" + own.OriginalUserFilename,
		Propstat: Propstat{
			Prop: Prop{
				DisplayName:     own.OriginalUserFilename,
				ResourceType:    &ResourceType{},
				ContentLength:   &length,
				ContentType:     hashRec.MimeType,
				ETag:            `"` + hashRec.Hash + `"`,
				CreationDate:    sentinelCreation,
				GetLastModified: sentinelModified,
			},
			Status: "HTTP/1.1 200 OK",
		},
	}, nil
}

func (h *Handler) get(c *gin.Context) {
	pathUser, filename := splitPath(c)
	userID, ok := h.authenticate(c, pathUser)
	if !ok {
		return
	}
	if filename == "" {
		c.Status(http.StatusNotFound)
		return
	}

	own, err := h.ledger.FindByUserAndName(c.Request.Context(), userID, path.Clean(filename))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	hashRec, err := h.registry.Lookup(c.Request.Context(), own.Hash)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Content-Type", hashRec.MimeType)
	c.Header("ETag", `"`+hashRec.Hash+`"`)
	c.Header("Accept-Ranges", "bytes")
	// http.ServeFile underneath handles HEAD and Range for us.
	c.File(h.ingest.AbsolutePath(hashRec.StoragePath))
}
