package segmentation

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"nucleus-sweep/internal/models"
)

// MaskWriter saves candidate masks as <dir>/<global>-<local>-<image file>.png.
// The image extension is kept so a.png and a.tif never share a mask file.
type MaskWriter struct {
	dir string
}

func NewMaskWriter(dir string) (*MaskWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create artifacts dir: %v", models.ErrWrite, err)
	}
	return &MaskWriter{dir: dir}, nil
}

// Path returns where the mask of imageID under key is written.
func (w *MaskWriter) Path(key models.ComboKey, imageID string) string {
	return filepath.Join(w.dir, key.Name()+"-"+filepath.Base(imageID)+".png")
}

func (w *MaskWriter) SaveMask(key models.ComboKey, imageID string, mask *models.Mask) error {
	img := &image.Gray{
		Pix:    mask.Pix,
		Stride: mask.Width,
		Rect:   image.Rect(0, 0, mask.Width, mask.Height),
	}

	path := w.Path(key, imageID)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrWrite, path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to encode %s: %v", models.ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", models.ErrWrite, path, err)
	}
	return nil
}
