package safe

import (
	"fmt"

	"gocv.io/x/gocv"

	"nucleus-sweep/internal/models"
)

// FromGray copies a grey raster into a new CV_8UC1 Mat.
func FromGray(g *models.Gray, memTracker MemoryTracker, tag string) (*Mat, error) {
	return fromBytes(g.Pix, g.Width, g.Height, memTracker, tag)
}

// FromMask copies a mask into a new CV_8UC1 Mat with foreground 255.
func FromMask(m *models.Mask, memTracker MemoryTracker, tag string) (*Mat, error) {
	return fromBytes(m.Pix, m.Width, m.Height, memTracker, tag)
}

func fromBytes(pix []uint8, width, height int, memTracker MemoryTracker, tag string) (*Mat, error) {
	if len(pix) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", models.ErrDimensionMismatch, len(pix), width, height)
	}
	sm, err := NewMat(height, width, gocv.MatTypeCV8UC1, memTracker, tag)
	if err != nil {
		return nil, err
	}
	data, err := sm.mat.DataPtrUint8()
	if err != nil {
		sm.Close()
		return nil, fmt.Errorf("failed to access Mat data: %w", err)
	}
	copy(data, pix)
	return sm, nil
}

// FromInt32s copies a label raster into a new CV_32SC1 Mat.
func FromInt32s(labels []int32, width, height int, memTracker MemoryTracker, tag string) (*Mat, error) {
	if len(labels) != width*height {
		return nil, fmt.Errorf("%w: %d labels for %dx%d", models.ErrDimensionMismatch, len(labels), width, height)
	}
	sm, err := NewMat(height, width, gocv.MatTypeCV32SC1, memTracker, tag)
	if err != nil {
		return nil, err
	}
	data, err := sm.mat.DataPtrInt32()
	if err != nil {
		sm.Close()
		return nil, fmt.Errorf("failed to access Mat data: %w", err)
	}
	copy(data, labels)
	return sm, nil
}

// ToGray copies a CV_8UC1 Mat into a grey raster.
func (sm *Mat) ToGray() (*models.Gray, error) {
	pix, err := sm.uint8s("ToGray")
	if err != nil {
		return nil, err
	}
	return &models.Gray{Width: sm.Cols(), Height: sm.Rows(), Pix: pix}, nil
}

// ToMask copies a CV_8UC1 Mat into a mask; every non-zero pixel is foreground.
func (sm *Mat) ToMask() (*models.Mask, error) {
	pix, err := sm.uint8s("ToMask")
	if err != nil {
		return nil, err
	}
	for i, v := range pix {
		if v != models.Background {
			pix[i] = models.Foreground
		}
	}
	return &models.Mask{Width: sm.Cols(), Height: sm.Rows(), Pix: pix}, nil
}

func (sm *Mat) uint8s(operation string) ([]uint8, error) {
	if err := ValidateMatType(sm, gocv.MatTypeCV8UC1, operation); err != nil {
		return nil, err
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.mat.ToBytes(), nil
}

// BGR copies a CV_8UC3 Mat as interleaved B, G, R bytes.
func (sm *Mat) BGR() ([]uint8, error) {
	if err := ValidateMatType(sm, gocv.MatTypeCV8UC3, "BGR"); err != nil {
		return nil, err
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.mat.ToBytes(), nil
}

// Int32s copies a CV_32SC1 Mat such as a label or marker raster.
func (sm *Mat) Int32s() ([]int32, error) {
	if err := ValidateMatType(sm, gocv.MatTypeCV32SC1, "Int32s"); err != nil {
		return nil, err
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	data, err := sm.mat.DataPtrInt32()
	if err != nil {
		return nil, fmt.Errorf("failed to access Mat data: %w", err)
	}
	out := make([]int32, len(data))
	copy(out, data)
	return out, nil
}

// Float32s copies a CV_32FC1 Mat such as a distance map.
func (sm *Mat) Float32s() ([]float32, error) {
	if err := ValidateMatType(sm, gocv.MatTypeCV32FC1, "Float32s"); err != nil {
		return nil, err
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	data, err := sm.mat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to access Mat data: %w", err)
	}
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// Labels reads a single channel 8 or 16 bit Mat as integer labels.
func (sm *Mat) Labels() ([]int32, error) {
	if err := ValidateMatForOperation(sm, "Labels"); err != nil {
		return nil, err
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	switch sm.mat.Type() {
	case gocv.MatTypeCV8UC1:
		data := sm.mat.ToBytes()
		out := make([]int32, len(data))
		for i, v := range data {
			out[i] = int32(v)
		}
		return out, nil
	case gocv.MatTypeCV16UC1:
		data, err := sm.mat.DataPtrUint16()
		if err != nil {
			return nil, fmt.Errorf("failed to access Mat data: %w", err)
		}
		out := make([]int32, len(data))
		for i, v := range data {
			out[i] = int32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported MatType %d for operation: Labels", int(sm.mat.Type()))
	}
}
