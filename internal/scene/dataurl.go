package scene

import (
	"encoding/base64"
	"strings"
)

// ParseDataURL splits a base64 data URL ("data:image/jpeg;base64,...") into
// its decoded payload and MIME type. Anything else is a format error.
func ParseDataURL(dataURL string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, "", Errorf(KindFormat, "parse data url", "invalid data URL format")
	}

	meta := strings.TrimPrefix(header, "data:")
	mimeType, encoding, _ := strings.Cut(meta, ";")
	if mimeType == "" {
		return nil, "", Errorf(KindFormat, "parse data url", "data URL has no MIME type")
	}
	if encoding != "base64" {
		return nil, "", Errorf(KindFormat, "parse data url", "unsupported data URL encoding %q", encoding)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", NewError(KindFormat, "parse data url", "invalid base64 payload", err)
	}
	if len(data) == 0 {
		return nil, "", Errorf(KindFormat, "parse data url", "data URL payload is empty")
	}
	return data, mimeType, nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
