// Package vision runs the trained detector on a live camera feed with
// OpenCV through gocv. It also provides the OpenCV contour backend for the
// auto-annotator.
package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrCameraUnavailable is returned when the capture device cannot be
	// opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrFrameRead is returned when a frame cannot be read from an open
	// device. The inference loop stops on the first such failure.
	ErrFrameRead = errors.New("could not read frame")
)

// Camera is an open capture device.
type Camera struct {
	device int
	cap    *gocv.VideoCapture
}

// OpenCamera opens device. The caller must Close the camera.
func OpenCamera(device int) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, device, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrCameraUnavailable, device)
	}
	return &Camera{device: device, cap: cap}, nil
}

// Read fills frame with the next image.
func (c *Camera) Read(frame *gocv.Mat) error {
	if ok := c.cap.Read(frame); !ok || frame.Empty() {
		return fmt.Errorf("%w from device %d", ErrFrameRead, c.device)
	}
	return nil
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.cap.Close()
}
