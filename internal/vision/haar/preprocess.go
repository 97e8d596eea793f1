package haar

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Equalize converts img to grayscale and equalizes its histogram with
// OpenCV. It satisfies vision.Preprocessor.
func Equalize(img image.Image) (*image.Gray, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	// ImageToMatRGB yields BGR channel order
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	out, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("read equalized image: %w", err)
	}
	g, ok := out.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("equalized image is %T, want *image.Gray", out)
	}
	return g, nil
}
