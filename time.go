package gpgme

import (
	"time"
)

// isoLayout is the compact ISO 8601 form engines use instead of epoch
// seconds in some records.
const isoLayout = "20060102T150405"

func parseISOTime(s string) (int64, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
