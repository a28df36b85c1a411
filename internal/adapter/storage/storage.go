// Package storage places uploaded report photos where the API can serve them.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ImageDir is the directory, relative to the storage root, holding report
// photos. It doubles as the public URL prefix.
const ImageDir = "UploadDangerReportImages"

// ErrInvalidName is returned for image names that would escape ImageDir.
var ErrInvalidName = errors.New("invalid image name")

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// URLBuilder derives stable public URLs from stored image names.
type URLBuilder struct {
	base string
}

// NewURLBuilder returns a builder rooted at baseURL, e.g. "https://alerthub.example".
func NewURLBuilder(baseURL string) URLBuilder {
	return URLBuilder{base: strings.TrimRight(baseURL, "/")}
}

// ImageURL returns the public URL of a stored image.
func (b URLBuilder) ImageURL(name string) string {
	return b.base + "/" + ImageDir + "/" + url.PathEscape(name)
}
