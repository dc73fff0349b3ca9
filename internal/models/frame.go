package models

import "mvprep/pkg/posemath"

// Frame represents a single observed image of the dataset
type Frame struct {
	// ImagePath is the image the pipeline currently reads for this frame
	ImagePath string

	// OrgPath is the original (or masked original) image
	OrgPath string

	// SegmentationMaskPath is the raw per-frame propagation mask, empty until saved
	SegmentationMaskPath string

	// MaskPath is the final mask matching ImagePath, empty until computed
	MaskPath string

	// Pose is the camera-to-world transform in the OpenCV convention
	Pose posemath.Pose

	// Camera holds the intrinsics for ImagePath
	Camera Camera
}
