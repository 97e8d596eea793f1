// Package retina is a RetinaFace localizer backend running on ONNX Runtime.
package retina

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/your-org/facewatch/internal/vision"
)

// ModelFile is the expected file name of the det_10g model inside the models dir.
const ModelFile = "det_10g.onnx"

const (
	inputSize        = 640
	anchorsPerStride = 2
	nmsIoU           = 0.4
)

var strides = []int{8, 16, 32}

// det_10g output names (no batch dimension), grouped scores, boxes, landmarks
// for strides 8, 16 and 32.
var outputs = []struct {
	name string
	rows int64
	cols int64
}{
	{"448", 12800, 1},
	{"471", 3200, 1},
	{"494", 800, 1},
	{"451", 12800, 4},
	{"474", 3200, 4},
	{"497", 800, 4},
	{"454", 12800, 10},
	{"477", 3200, 10},
	{"500", 800, 10},
}

// Detector holds one ONNX session. Detect serializes access to the session
// so one Detector is shared by all pipeline workers.
type Detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
}

var _ vision.Backend = (*Detector)(nil)

// SharedLibraryPath returns the ONNX Runtime library name for this OS.
func SharedLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// InitRuntime loads the ONNX Runtime shared library. Call once per process.
func InitRuntime() error {
	ort.SetSharedLibraryPath(SharedLibraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

// New loads the RetinaFace model at modelPath.
func New(modelPath string) (*Detector, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	names := make([]string, len(outputs))
	tensors := make([]*ort.Tensor[float32], len(outputs))
	values := make([]ort.Value, len(outputs))
	for i, spec := range outputs {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.rows, spec.cols))
		if err != nil {
			for j := 0; j < i; j++ {
				tensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		names[i] = spec.name
		tensors[i] = t
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{inputTensor}, values, nil)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range tensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{session: session, inputTensor: inputTensor, outputTensors: tensors}, nil
}

// Detect runs the model on img. ScaleFactor and MinNeighbors are cascade
// parameters and are ignored; MinConfidence and MinSize filter candidates.
func (d *Detector) Detect(img *image.Gray, p vision.PassParams) ([]vision.Face, error) {
	b := img.Bounds()
	input := toCHW(img)

	d.mu.Lock()
	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("run detection: %w", err)
	}
	raw := d.decode(b.Dx(), b.Dy(), p.MinConfidence)
	d.mu.Unlock()

	kept := nms(raw, nmsIoU)
	faces := make([]vision.Face, 0, len(kept))
	for _, c := range kept {
		r := image.Rect(int(c.box[0]), int(c.box[1]), int(c.box[2]), int(c.box[3])).Add(b.Min)
		if r.Dx() < p.MinSize || r.Dy() < p.MinSize {
			continue
		}
		faces = append(faces, vision.Face{Box: r, Confidence: c.score})
	}
	return faces, nil
}

type candidate struct {
	box   [4]float32 // x1, y1, x2, y2
	score float32
}

// decode turns anchor-relative outputs into boxes in source pixel space.
func (d *Detector) decode(origW, origH int, threshold float32) []candidate {
	var out []candidate
	scaleW := float32(origW) / inputSize
	scaleH := float32(origH) / inputSize

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[si+3].GetData()
		st := float32(stride)
		fm := inputSize / stride

		idx := 0
		for cy := 0; cy < fm; cy++ {
			for cx := 0; cx < fm; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if score := scores[idx]; score >= threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st
						out = append(out, candidate{
							box: [4]float32{
								clamp((ax-boxes[idx*4+0]*st)*scaleW, 0, float32(origW)),
								clamp((ay-boxes[idx*4+1]*st)*scaleH, 0, float32(origH)),
								clamp((ax+boxes[idx*4+2]*st)*scaleW, 0, float32(origW)),
								clamp((ay+boxes[idx*4+3]*st)*scaleH, 0, float32(origH)),
							},
							score: score,
						})
					}
					idx++
				}
			}
		}
	}
	return out
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
	d.outputTensors = nil
	return nil
}

// toCHW scales img to the model input and replicates the gray channel into
// three normalized planes: (v - 127.5) / 128.
func toCHW(img *image.Gray) []float32 {
	scaled := image.NewGray(image.Rect(0, 0, inputSize, inputSize))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := inputSize * inputSize
	data := make([]float32, 3*plane)
	for i, v := range scaled.Pix[:plane] {
		f := (float32(v) - 127.5) / 128.0
		data[i] = f
		data[plane+i] = f
		data[2*plane+i] = f
	}
	return data
}

func nms(cands []candidate, iouThreshold float32) []candidate {
	if len(cands) == 0 {
		return cands
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	keep := make([]bool, len(cands))
	for i := range keep {
		keep[i] = true
	}
	for i := range cands {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if keep[j] && iou(cands[i].box, cands[j].box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var out []candidate
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	inter := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
