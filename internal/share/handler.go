package share

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/easyshare/service/internal/response"
	"github.com/easyshare/service/internal/storage"
)

// uploadField is the multipart form field carrying the files.
const uploadField = "files"

// Handler holds HTTP handlers for upload, listing and download.
type Handler struct {
	svc       *Service
	baseURL   string
	retention time.Duration
	maxUpload int64
	logger    *log.Logger
}

// NewHandler creates a new share Handler. baseURL prefixes every link it returns.
func NewHandler(svc *Service, baseURL string, retention time.Duration, maxUpload int64, logger *log.Logger) *Handler {
	return &Handler{
		svc:       svc,
		baseURL:   strings.TrimRight(baseURL, "/"),
		retention: retention,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Routes mounts the share endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/share/{id}", h.List)
	r.Get("/obj/{group}/*", h.Download)
}

type uploadData struct {
	GroupID  string   `json:"groupId"  example:"0b6f7a52-7c1e-4a51-9d55-1f0c4b1f6a11"`
	ShareURL string   `json:"shareUrl" example:"http://localhost:8080/share/0b6f7a52-7c1e-4a51-9d55-1f0c4b1f6a11"`
	Files    []string `json:"files"`
}

type fileEntry struct {
	Name       string    `json:"name"       example:"cat.png"`
	Key        string    `json:"key"        example:"0b6f7a52-7c1e-4a51-9d55-1f0c4b1f6a11/cat.png"`
	Size       int64     `json:"size"       example:"512000"`
	UploadedAt time.Time `json:"uploadedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	URL        string    `json:"url"`
}

type shareData struct {
	GroupID string      `json:"groupId"`
	Files   []fileEntry `json:"files"`
}

// Upload godoc
//
//	@Summary		Upload files
//	@Description	Store every file of the multipart field "files" under one new share group. Files written before a failure stay stored.
//	@Tags			share
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files	formData	file	true	"Files to share"
//	@Success		201		{object}	response.Envelope{data=uploadData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	files, err := readFiles(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(w, "upload exceeds size limit")
			return
		}
		response.BadRequest(w, "invalid multipart body")
		return
	}

	id, err := h.svc.UploadBatch(r.Context(), files)
	if err != nil {
		if errors.Is(err, ErrEmptyUpload) {
			response.NotFound(w, "no files uploaded")
			return
		}
		response.InternalError(w)
		return
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	response.Created(w, uploadData{
		GroupID:  id.String(),
		ShareURL: h.baseURL + "/share/" + id.String(),
		Files:    names,
	})
}

// List godoc
//
//	@Summary		List a share group
//	@Description	Returns the files currently stored under the group. Unknown, malformed and fully expired groups are all reported as not found.
//	@Tags			share
//	@Produce		json
//	@Param			id	path		string	true	"Group identifier"
//	@Success		200	{object}	response.Envelope{data=shareData}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/share/{id} [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := ParseGroupID(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "no share found or it has expired")
		return
	}

	entries, err := h.svc.ListGroup(r.Context(), id)
	if err != nil {
		h.logger.Error("list group", "group", id, "err", err)
		response.InternalError(w)
		return
	}
	if len(entries) == 0 {
		response.NotFound(w, "no share found or it has expired")
		return
	}

	files := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		files = append(files, fileEntry{
			Name:       e.Name,
			Key:        e.Key,
			Size:       e.Size,
			UploadedAt: e.UploadedAt,
			ExpiresAt:  e.UploadedAt.Add(h.retention),
			URL:        h.baseURL + "/obj/" + url.PathEscape(id.String()) + "/" + url.PathEscape(e.Name),
		})
	}
	response.OK(w, shareData{GroupID: id.String(), Files: files})
}

// Download godoc
//
//	@Summary		Download a file
//	@Description	Streams a stored file with its transfer headers and entity tag. Path segments are percent-decoded twice before lookup, so a name containing a literal '%' is not found. A stored cache expiry is sent as a standard Expires header (HTTP date), not as cache-expiry: max-age.
//	@Tags			share
//	@Produce		octet-stream
//	@Param			group	path	string	true	"Group identifier"
//	@Param			file	path	string	true	"File name"
//	@Success		200
//	@Success		304
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/obj/{group}/{file} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	group, err := pathParam(r, "group")
	if err != nil {
		response.NotFound(w, "no object found")
		return
	}
	file, err := pathParam(r, "*")
	if err != nil {
		response.NotFound(w, "no object found")
		return
	}
	key, err := ResolveKey(group, file)
	if err != nil {
		response.NotFound(w, "no object found")
		return
	}

	obj, err := h.svc.FetchObject(r.Context(), key)
	if err != nil {
		if IsClientError(err) {
			response.NotFound(w, "no object found")
			return
		}
		h.logger.Error("fetch object", "key", key, "err", err)
		response.InternalError(w)
		return
	}
	defer obj.Body.Close()

	header := w.Header()
	WriteTransferHeaders(header, obj.Metadata)
	etag := `"` + obj.ETag + `"`
	if obj.ETag != "" {
		header.Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if obj.Size > 0 {
		header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		// Headers are gone; the client sees a truncated body.
		h.logger.Warn("stream object", "key", key, "err", err)
	}
}

// pathParam returns a route parameter decoded the way r.URL.Path is. chi matches
// on r.URL.RawPath whenever one is set (for example when a segment carries an
// escaped '/'), which leaves those parameters still escaped.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

// WriteTransferHeaders copies stored metadata onto h. Absent fields set nothing.
func WriteTransferHeaders(h http.Header, meta storage.Metadata) {
	set := func(name string, v *string) {
		if v != nil {
			h.Set(name, *v)
		}
	}
	set("Content-Type", meta.ContentType)
	set("Content-Language", meta.ContentLanguage)
	set("Content-Disposition", meta.ContentDisposition)
	set("Content-Encoding", meta.ContentEncoding)
	set("Cache-Control", meta.CacheControl)
	if meta.CacheExpiry != nil {
		h.Set("Expires", meta.CacheExpiry.UTC().Format(http.TimeFormat))
	}
}

// etagMatches implements the weak comparison used by If-None-Match.
func etagMatches(header, etag string) bool {
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

// readFiles collects the file parts of the upload field. Non-file fields are ignored.
func readFiles(r *http.Request) ([]File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	var files []File
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}

		name := rawFileName(part.Header.Get("Content-Disposition"))
		if part.FormName() != uploadField || name == "" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Name:     name,
			Data:     data,
			Metadata: uploadMetadata(name, part.Header.Get("Content-Type"), data),
		})
	}
}

// rawFileName returns the filename parameter exactly as sent. Part.FileName would
// strip directory components, and names must be kept verbatim.
func rawFileName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// uploadMetadata derives transfer metadata for a new object: the browser's
// content type when it sent a specific one, otherwise a sniffed type, plus an
// attachment disposition carrying the original name.
func uploadMetadata(name, contentType string, data []byte) storage.Metadata {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	return storage.Metadata{
		ContentType:        storage.String(contentType),
		ContentDisposition: storage.String(mime.FormatMediaType("attachment", map[string]string{"filename": name})),
	}
}
