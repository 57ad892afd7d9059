package segmentation

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/opencv/safe"
)

// readMat decodes the file at path with the given OpenCV read flags. Any read or
// decode failure is an ErrLoad.
func readMat(path string, flags gocv.IMReadFlag, tracker safe.MemoryTracker, tag string) (*safe.Mat, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrLoad, path, err)
	}

	mat, err := gocv.IMDecode(data, flags)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", models.ErrLoad, path, err)
	}

	sm, err := safe.Adopt(mat, tracker, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a decodable image: %v", models.ErrLoad, path, err)
	}
	return sm, nil
}

// LoadBGR reads a colour image as interleaved B, G, R bytes.
func LoadBGR(path string, tracker safe.MemoryTracker) ([]uint8, int, int, error) {
	sm, err := readMat(path, gocv.IMReadColor, tracker, "loaded_image")
	if err != nil {
		return nil, 0, 0, err
	}
	defer sm.Close()

	bgr, err := sm.BGR()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %s: %v", models.ErrLoad, path, err)
	}
	return bgr, sm.Cols(), sm.Rows(), nil
}

// LoadLabelRaster reads a single channel 8 or 16 bit image as integer values.
func LoadLabelRaster(path string, tracker safe.MemoryTracker) ([]int32, int, int, error) {
	sm, err := readMat(path, gocv.IMReadAnyDepth, tracker, "annotation")
	if err != nil {
		return nil, 0, 0, err
	}
	defer sm.Close()

	labels, err := sm.Labels()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %s: %v", models.ErrLoad, path, err)
	}
	return labels, sm.Cols(), sm.Rows(), nil
}
