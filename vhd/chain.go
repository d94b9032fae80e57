package vhd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/djs55/vhddisk/internal/utils"
)

const fileURIPrefix = "file://"

// resolveParent implements spec §4.5 step 6: scan f's header locators for
// the first with platform_code 'MacX' whose platform_data decodes to a
// file:// URI naming an existing file, and recursively Load it. No such
// locator is a fatal parse error (KindParentResolution).
func resolveParent(f *File) (*File, error) {
	for i := range f.Header.Locators {
		loc := &f.Header.Locators[i]
		if !loc.IsMacXFileURI() {
			continue
		}

		dataBuf := make([]byte, loc.PlatformDataLength)
		if _, err := f.mapped.ReadAt(dataBuf, int64(loc.PlatformDataOffset)); err != nil {
			continue
		}

		uri, err := decodeFileURI(dataBuf)
		if err != nil {
			continue
		}

		parentPath := resolveParentPath(f.path, uri)
		if _, err := os.Stat(parentPath); err != nil {
			continue
		}

		parent, err := Load(parentPath)
		if err != nil {
			continue
		}

		return parent, nil
	}

	return nil, utils.WrapError(utils.KindParentResolution, "differencing disk parent",
		fmt.Errorf("no locator in %q resolved to an existing parent file", f.path))
}

// decodeFileURI decodes a parent-locator's platform_data as big-endian
// UTF-16 and requires it to be a file:// URI.
func decodeFileURI(data []byte) (string, error) {
	runes, err := utils.DecodeUTF16(data)
	if err != nil {
		return "", err
	}
	s := string(runes)
	if !strings.HasPrefix(s, fileURIPrefix) {
		return "", fmt.Errorf("platform_data %q is not a file:// URI", s)
	}
	return strings.TrimPrefix(s, fileURIPrefix), nil
}

// resolveParentPath resolves a file:// URI's path component relative to the
// directory containing the child VHD (the convention create_new_difference
// writes: "file://./<basename>").
func resolveParentPath(childPath, uriPath string) string {
	if filepath.IsAbs(uriPath) {
		return uriPath
	}
	return filepath.Join(filepath.Dir(childPath), uriPath)
}
