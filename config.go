package viamstereorays

import (
	"fmt"
	"time"

	"viamstereorays/aruco"
	"viamstereorays/rays"
)

type Config struct {
	Left  string
	Right string

	// row-major 4x4 camera-to-rig poses, one per named camera
	LeftExtrinsics  []float64 `json:"left-extrinsics"`
	RightExtrinsics []float64 `json:"right-extrinsics"`

	// RowVectors is set when the extrinsics carry their translation in the last row
	RowVectors bool `json:"row-vectors"`

	RotationTolerance float64 `json:"rotation-tolerance"`

	UpdateRateHz      float64 `json:"update-rate-hz"`
	DetectionRateHz   float64 `json:"detection-rate-hz"`
	DetectionMaxAgeMs int     `json:"detection-max-age-ms"`
	ArucoDictionary   string  `json:"aruco-dictionary"`

	// RayLength is how far rays are drawn, in meters
	RayLength float64 `json:"ray-length"`

	// PixelLog, when set, is a file that gets one line per double detection
	PixelLog string `json:"pixel-log"`
}

func (cfg *Config) getUpdateRateHz() float64 {
	if cfg.UpdateRateHz <= 0 {
		return 30
	}
	return cfg.UpdateRateHz
}

func (cfg *Config) getRayLength() float64 {
	if cfg.RayLength <= 0 {
		return 0.6
	}
	return cfg.RayLength
}

func (cfg *Config) getConvention() rays.Convention {
	if cfg.RowVectors {
		return rays.RowVectors
	}
	return rays.ColumnVectors
}

func (cfg *Config) workerConfig() aruco.WorkerConfig {
	return aruco.WorkerConfig{
		RateHz: cfg.DetectionRateHz,
		MaxAge: time.Duration(cfg.DetectionMaxAgeMs) * time.Millisecond,
	}
}

// cameraNames maps each configured camera to its dependency name.
func (cfg *Config) cameraNames() map[rays.CameraID]string {
	names := map[rays.CameraID]string{}
	if cfg.Left != "" {
		names[rays.Left] = cfg.Left
	}
	if cfg.Right != "" {
		names[rays.Right] = cfg.Right
	}
	return names
}

func (cfg *Config) extrinsics(id rays.CameraID) []float64 {
	if id == rays.Left {
		return cfg.LeftExtrinsics
	}
	return cfg.RightExtrinsics
}

func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.Left == "" && cfg.Right == "" {
		return nil, fmt.Errorf("need left or right")
	}
	if cfg.Left != "" && len(cfg.LeftExtrinsics) != 16 {
		return nil, fmt.Errorf("need 16 left-extrinsics values, got %d", len(cfg.LeftExtrinsics))
	}
	if cfg.Right != "" && len(cfg.RightExtrinsics) != 16 {
		return nil, fmt.Errorf("need 16 right-extrinsics values, got %d", len(cfg.RightExtrinsics))
	}

	if cfg.RotationTolerance < 0 {
		return nil, fmt.Errorf("rotation-tolerance can't be negative")
	}
	if cfg.DetectionMaxAgeMs < 0 {
		return nil, fmt.Errorf("detection-max-age-ms can't be negative")
	}
	if _, err := aruco.ParseDictionary(cfg.ArucoDictionary); err != nil {
		return nil, err
	}

	deps := []string{}
	if cfg.Left != "" {
		deps = append(deps, cfg.Left)
	}
	if cfg.Right != "" {
		deps = append(deps, cfg.Right)
	}
	return deps, nil
}
