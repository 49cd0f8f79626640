// Package rays turns per-camera extrinsics and 2D marker detections into
// rig-space viewing rays and decides, per frame, whether both cameras see the
// marker at once.
package rays

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Convention tells how a 4x4 extrinsic matrix stores its translation.
type Convention int

const (
	// ColumnVectors means points are column vectors and the translation lives in the last column.
	ColumnVectors Convention = iota
	// RowVectors means points are row vectors (DirectX style) and the translation lives in the last row.
	RowVectors
)

// DefaultRotationTolerance is how far |det| of a rotation may drift from 1, and how far
// any entry of RᵀR may drift from the identity.
const DefaultRotationTolerance = 1e-3

const singularDeterminant = 1e-9

var (
	// ErrInvalidRotation is returned when the rotation part of an extrinsic is not orthonormal.
	ErrInvalidRotation = errors.New("extrinsic rotation is not orthonormal")
	// ErrDegenerateRotation is returned when the rotation part of an extrinsic cannot be inverted.
	ErrDegenerateRotation = errors.New("extrinsic rotation is degenerate")
)

// Extrinsics is a camera-to-rig pose along with its rotation-only part.
// It is immutable once built.
type Extrinsics struct {
	pose     *mat.Dense
	rotation *mat.Dense
	det      float64
}

// NewExtrinsics builds Extrinsics from 16 row-major values.
func NewExtrinsics(values []float64, convention Convention) (*Extrinsics, error) {
	if len(values) != 16 {
		return nil, errors.Errorf("extrinsics need 16 values, got %d", len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("extrinsics value %d is not finite (%v)", i, v)
		}
	}

	raw := mat.NewDense(4, 4, append([]float64(nil), values...))
	pose := mat.NewDense(4, 4, nil)
	if convention == RowVectors {
		pose.CloneFrom(raw.T())
	} else {
		pose.CloneFrom(raw)
	}

	rotation := zeroTranslation(pose)
	return &Extrinsics{
		pose:     pose,
		rotation: rotation,
		det:      mat.Det(rotation),
	}, nil
}

// IdentityExtrinsics is a camera sitting at the rig origin.
func IdentityExtrinsics() *Extrinsics {
	e, err := NewExtrinsics([]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, ColumnVectors)
	if err != nil {
		panic(err)
	}
	return e
}

// zeroTranslation copies m with the translation column replaced by (0,0,0,1).
func zeroTranslation(m *mat.Dense) *mat.Dense {
	r := mat.DenseCopyOf(m)
	for i := 0; i < 3; i++ {
		r.Set(i, 3, 0)
		r.Set(3, i, 0)
	}
	r.Set(3, 3, 1)
	return r
}

// Pose returns a copy of the full camera-to-rig pose.
func (e *Extrinsics) Pose() *mat.Dense {
	return mat.DenseCopyOf(e.pose)
}

// Rotation returns a copy of the pose with its translation zeroed.
func (e *Extrinsics) Rotation() *mat.Dense {
	return mat.DenseCopyOf(e.rotation)
}

// Determinant of the rotation-only matrix.
func (e *Extrinsics) Determinant() float64 {
	return e.det
}

// Translation returns the translation column of the pose.
func (e *Extrinsics) Translation() [3]float64 {
	return [3]float64{e.pose.At(0, 3), e.pose.At(1, 3), e.pose.At(2, 3)}
}

// CheckRotation reports ErrInvalidRotation when the rotation is not orthonormal within
// tolerance: |det| must be near 1 and RᵀR near the identity.
func (e *Extrinsics) CheckRotation(tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultRotationTolerance
	}
	if math.IsNaN(e.det) || math.Abs(math.Abs(e.det)-1) > tolerance {
		return errors.Wrapf(ErrInvalidRotation, "determinant %v", e.det)
	}

	r := e.rotation.Slice(0, 3, 0, 3)
	var gram mat.Dense
	gram.Mul(r.T(), r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if d := math.Abs(gram.At(i, j) - want); d > tolerance {
				return errors.Wrapf(ErrInvalidRotation, "RᵀR[%d][%d] is off identity by %v", i, j, d)
			}
		}
	}
	return nil
}

// InverseRotation inverts the rotation-only matrix.
func (e *Extrinsics) InverseRotation() (*mat.Dense, error) {
	if math.Abs(e.det) < singularDeterminant {
		return nil, errors.Wrapf(ErrDegenerateRotation, "determinant %v", e.det)
	}
	var inv mat.Dense
	if err := inv.Inverse(e.rotation); err != nil {
		return nil, errors.Wrapf(ErrDegenerateRotation, "%v", err)
	}
	return &inv, nil
}
