package main

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/greenaudit/greenwash_backend/utils"
)

// Headroom for multipart boundaries and headers on top of the file itself.
const multipartOverhead int64 = 64 << 10

var errUploadTooLarge = errors.New("file size exceeds upload limit")

type upload struct {
	Filename string
	Data     []byte
}

// readUpload reads the multipart "file" field of the request, bounded by maxBytes.
func readUpload(c *gin.Context, maxBytes int64) (*upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errUploadTooLarge
		}
		return nil, utils.Wrap(utils.ErrInvalidInput, err, "file is required")
	}
	if fh.Size > maxBytes {
		return nil, errUploadTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, utils.Wrap(utils.ErrInvalidInput, err, "open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, utils.Wrap(utils.ErrInvalidInput, err, "read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, errUploadTooLarge
	}
	return &upload{Filename: filepath.Base(fh.Filename), Data: data}, nil
}
