package httpapi

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipartSlack is allowed on top of MaxUploadSize for part headers and
// boundaries, so an oversized file is reported by size rather than as a
// truncated body.
const multipartSlack = 1 << 20

type upload struct {
	filename    string
	contentType string
	size        int64
	body        multipart.File
}

func (s *HTTPServer) createFile(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	defer up.body.Close()

	f, err := s.files.Create(c.Request.Context(), owner(c), up.filename, up.contentType, up.body, up.size)
	if err != nil {
		s.fail(c, err)
		return
	}

	uri := fileURI(c, f.ID)
	c.Header("Location", uri)
	c.JSON(http.StatusCreated, newActionResponse(actionCreated, f, uri))
}

func (s *HTTPServer) updateFile(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	defer up.body.Close()

	f, err := s.files.Update(c.Request.Context(), fileID, owner(c), up.contentType, up.body, up.size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newActionResponse(actionUpdated, f, fileURI(c, f.ID)))
}

func (s *HTTPServer) deleteFile(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	f, err := s.files.Delete(c.Request.Context(), fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newActionResponse(actionDeleted, f, fileURI(c, f.ID)))
}

func (s *HTTPServer) listFiles(c *gin.Context) {
	list, err := s.files.ListCurrent(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]fileResponse, 0, len(list))
	for _, uf := range list {
		out = append(out, newFileResponse(uf))
	}
	c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) getFile(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	uf, err := s.files.GetCurrent(c.Request.Context(), fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newFileResponse(uf))
}

func (s *HTTPServer) getFileContent(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	uf, rc, err := s.files.OpenCurrentContent(c.Request.Context(), fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, uf.SizeBytes, uf.ContentType, rc, attachment(uf.Filename))
}

func (s *HTTPServer) listVersions(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	list, err := s.files.ListVersions(c.Request.Context(), fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]versionResponse, 0, len(list))
	for _, v := range list {
		out = append(out, newVersionResponse(v))
	}
	c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) getVersion(c *gin.Context) {
	fileID, token, ok := versionParams(c)
	if !ok {
		return
	}
	v, err := s.files.GetVersion(c.Request.Context(), token, fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newVersionResponse(v))
}

func (s *HTTPServer) getVersionContent(c *gin.Context) {
	fileID, token, ok := versionParams(c)
	if !ok {
		return
	}
	v, rc, err := s.files.OpenVersionContent(c.Request.Context(), token, fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, v.SizeBytes, v.ContentType, rc, attachment(v.Filename))
}

func (s *HTTPServer) getVersionURL(c *gin.Context) {
	fileID, token, ok := versionParams(c)
	if !ok {
		return
	}
	url, err := s.files.PresignVersionURL(c.Request.Context(), token, fileID, owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, urlResponse{URL: url})
}

// readUpload extracts the "file" part. It answers the request itself and
// returns false when the upload is missing, empty or too large.
//
// The whole part is read before the service runs, since the payload size
// must be known up front: up to MultipartMemory stays in memory and the
// rest is staged in a temp file that net/http removes after the request.
func (s *HTTPServer) readUpload(c *gin.Context) (*upload, bool) {
	if s.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize+multipartSlack)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.abortTooLarge(c)
			return nil, false
		}
		abortWithError(c, http.StatusBadRequest, "Please upload a valid file")
		return nil, false
	}
	if fh.Size == 0 || fh.Filename == "" {
		abortWithError(c, http.StatusBadRequest, "Please upload a valid file")
		return nil, false
	}
	if s.maxUploadSize > 0 && fh.Size > s.maxUploadSize {
		s.abortTooLarge(c)
		return nil, false
	}

	body, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", common.ErrContentAccess, err))
		return nil, false
	}

	return &upload{
		filename:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
		size:        fh.Size,
		body:        body,
	}, true
}

func (s *HTTPServer) abortTooLarge(c *gin.Context) {
	abortWithError(c, http.StatusBadRequest,
		fmt.Sprintf("Maximum upload size exceeded. Files cannot exceed %d bytes", s.maxUploadSize))
}

func fileIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("fileId"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid arguments")
		return 0, false
	}
	return id, true
}

func versionParams(c *gin.Context) (int64, string, bool) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return 0, "", false
	}
	token, err := uuid.Parse(c.Param("version"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid arguments")
		return 0, "", false
	}
	return fileID, token.String(), true
}

func fileURI(c *gin.Context, id int64) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return fmt.Sprintf("%s://%s/files/%d", scheme, c.Request.Host, id)
}

func attachment(filename string) map[string]string {
	return map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
	}
}
