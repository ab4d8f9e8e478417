package source

import (
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"

	"github.com/framecast/framecast/internal/logger"
)

// OpenCVReader reads frames from any source OpenCV can open: RTSP/HTTP
// stream URLs, video files, or webcam device indices ("0", "1", ...).
type OpenCVReader struct {
	url string
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// Open connects to the source URL and prepares a reusable decode buffer.
// The capture buffer is kept at one frame so reads reflect the most recent
// frame rather than a queued backlog.
func Open(url string) (Reader, error) {
	cap, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", url, err)
	}

	cap.Set(gocv.VideoCaptureBufferSize, 1)

	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video source %s did not open", url)
	}

	logger.WithComponent("source").Info().
		Str("url", url).
		Msg("Connected to video source")

	return &OpenCVReader{
		url: url,
		cap: cap,
		mat: gocv.NewMat(),
	}, nil
}

// Read decodes one frame and converts it to RGBA
func (r *OpenCVReader) Read() (*image.RGBA, error) {
	if ok := r.cap.Read(&r.mat); !ok || r.mat.Empty() {
		return nil, fmt.Errorf("failed to read frame from %s", r.url)
	}

	img, err := r.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	// Non-RGBA mats (e.g. grayscale sources) take the slow path
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// Close releases the capture handle and the decode buffer
func (r *OpenCVReader) Close() error {
	r.mat.Close()
	return r.cap.Close()
}
