package validators

import (
	"strings"

	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// PixCode cleans a Pix copy-and-paste code as users paste it. Banking apps
// wrap long codes across lines, so line breaks are dropped; inner spaces
// belong to the merchant fields and are kept.
func PixCode(field, raw string, maxLen int) (string, error) {
	code := strings.TrimSpace(lineBreaks.Replace(raw))
	switch {
	case code == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, field+" is required")
	case maxLen > 0 && len(code) > maxLen:
		return "", pkgerrors.New(pkgerrors.CodeValidation, field+" is too long")
	}
	return code, nil
}
