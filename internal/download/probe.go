package download

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hayate-dl/hayate/internal/utils"
)

// FileInfo describes the remote resource as reported by a HEAD probe.
type FileInfo struct {
	Size         int64
	Name         string // from Content-Disposition, may be empty
	RangeSupport bool
}

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// Probe issues the single HEAD request that determines the file size before
// any worker starts. It also recovers a server-suggested filename and
// whether the server advertises byte-range support.
func Probe(ctx context.Context, link string, client utils.HTTPDoer) (FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return FileInfo{}, fmt.Errorf("creating HEAD request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return FileInfo{}, fmt.Errorf("sending HEAD request to %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return FileInfo{}, fmt.Errorf("server returned %d for HEAD request", resp.StatusCode)
	}

	info := FileInfo{}
	if contentDisposition := resp.Header.Get("Content-Disposition"); contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if fn, ok := params["filename"]; ok && fn != "" {
				info.Name = filenameRegex.ReplaceAllString(fn, "_")
			} else if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
				unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
				info.Name = filenameRegex.ReplaceAllString(unescaped, "_")
			}
		}
	}
	info.RangeSupport = resp.Header.Get("Accept-Ranges") == "bytes"

	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return info, errors.New("server didn't provide Content-Length header")
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return info, fmt.Errorf("parsing Content-Length: %w", err)
	}
	if size <= 0 {
		return info, errors.New("invalid file size reported by server")
	}
	info.Size = size
	return info, nil
}
