package documents

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

const maxLogoWidth = 480

// LoadLogo scales the image at path to fit within maxWidth and returns it as a
// PNG data URI.
func LoadLogo(path string, maxWidth int) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open logo: %w", err)
	}

	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode logo: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
