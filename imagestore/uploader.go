// Package imagestore copies a remote profile picture into an image host and
// returns the hosted URL.
//
// The source picture URL comes from an external identity provider, so it is
// fetched through an SSRF-guarded client that refuses private, loopback and
// link-local destinations. The upload is an unsigned multipart POST with an
// upload preset, the shape used by hosted image services such as Cloudinary.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultMaxImageBytes = 5 << 20
)

var (
	// ErrUploadFailed is returned for any download or upload failure.
	ErrUploadFailed = errors.New("image upload failed")
	// ErrInvalidSource is returned when the source URL is not an absolute http(s) URL.
	ErrInvalidSource = errors.New("invalid image source url")
)

// Config configures an Uploader.
type Config struct {
	UploadURL     string
	UploadPreset  string
	Timeout       time.Duration
	MaxImageBytes int64
	// FetchClient downloads the source picture; nil means an SSRF-guarded client.
	FetchClient *http.Client
	// UploadClient posts to UploadURL; nil means a plain client with Timeout.
	UploadClient *http.Client
}

// Uploader is safe for concurrent use.
type Uploader struct {
	uploadURL    string
	preset       string
	timeout      time.Duration
	maxBytes     int64
	fetchClient  *http.Client
	uploadClient *http.Client
}

// NewUploader validates cfg and fills defaults.
func NewUploader(cfg Config) (*Uploader, error) {
	if strings.TrimSpace(cfg.UploadURL) == "" {
		return nil, errors.New("image upload url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if cfg.FetchClient == nil {
		cfg.FetchClient = NewSafeClient(cfg.Timeout)
	}
	if cfg.UploadClient == nil {
		cfg.UploadClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Uploader{
		uploadURL:    cfg.UploadURL,
		preset:       cfg.UploadPreset,
		timeout:      cfg.Timeout,
		maxBytes:     cfg.MaxImageBytes,
		fetchClient:  cfg.FetchClient,
		uploadClient: cfg.UploadClient,
	}, nil
}

// NewSafeClient returns an HTTP client that only dials public addresses on
// ports 80 and 443, checked after DNS resolution.
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// UploadImage downloads sourceURL and re-hosts it, returning the hosted URL.
func (u *Uploader) UploadImage(ctx context.Context, sourceURL string) (string, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, sourceURL)
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	image, contentType, err := u.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	return u.upload(ctx, image, contentType)
}

func (u *Uploader) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build download request: %v", ErrUploadFailed, err)
	}

	resp, err := u.fetchClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: download status %d", ErrUploadFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read image: %v", ErrUploadFailed, err)
	}
	if int64(len(body)) > u.maxBytes {
		return nil, "", fmt.Errorf("%w: image exceeds %d bytes", ErrUploadFailed, u.maxBytes)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrUploadFailed)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (u *Uploader) upload(ctx context.Context, image []byte, contentType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if u.preset != "" {
		if err := mw.WriteField("upload_preset", u.preset); err != nil {
			return "", fmt.Errorf("%w: write preset: %v", ErrUploadFailed, err)
		}
	}
	part, err := mw.CreateFormFile("file", "profile-image")
	if err != nil {
		return "", fmt.Errorf("%w: create form file: %v", ErrUploadFailed, err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("%w: write image: %v", ErrUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: close multipart: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("%w: build upload request: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if contentType != "" {
		req.Header.Set("X-Source-Content-Type", contentType)
	}

	resp, err := u.uploadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read upload response: %v", ErrUploadFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "error.message").String()
		return "", fmt.Errorf("%w: upload status %d %s", ErrUploadFailed, resp.StatusCode, msg)
	}

	hosted := gjson.GetBytes(body, "secure_url").String()
	if hosted == "" {
		hosted = gjson.GetBytes(body, "url").String()
	}
	if hosted == "" {
		return "", fmt.Errorf("%w: upload response has no url", ErrUploadFailed)
	}
	return hosted, nil
}
