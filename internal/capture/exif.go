package capture

import (
	"bytes"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// exifTakenAt returns the capture time recorded in an image file's EXIF
// block. Priority: DateTimeOriginal > CreateDate > ModifyDate.
func exifTakenAt(data []byte) (time.Time, bool) {
	meta, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF metadata in still image")
		return time.Time{}, false
	}

	for _, t := range []time.Time{meta.DateTimeOriginal(), meta.CreateDate(), meta.ModifyDate()} {
		if !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}
