package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ironsheep/meshsynth/internal/detector"
)

// Detector runs a YOLOv8 ONNX export with the OpenCV DNN module.
type Detector struct {
	net        gocv.Net
	inputSize  int
	confidence float32
	iou        float64
}

// NewDetector loads the ONNX model at path. The caller must Close it.
func NewDetector(path string, inputSize int, confidence, iou float64) (*Detector, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to load model %s", path)
	}
	return &Detector{
		net:        net,
		inputSize:  inputSize,
		confidence: float32(confidence),
		iou:        iou,
	}, nil
}

// Detect returns the detections in a BGR frame after confidence filtering
// and NMS, in frame coordinates.
func (d *Detector) Detect(frame gocv.Mat) ([]detector.Detection, error) {
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)

	blob := gocv.BlobFromImage(rgb, 1.0/255.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	shape := detector.Shape{Channels: dims[1], Anchors: dims[2]}
	size := image.Pt(frame.Cols(), frame.Rows())
	dets, err := detector.Decode(data, shape, d.inputSize, size, d.confidence)
	if err != nil {
		return nil, err
	}
	return detector.NMS(dets, d.iou), nil
}

// Close releases the network.
func (d *Detector) Close() error {
	return d.net.Close()
}
