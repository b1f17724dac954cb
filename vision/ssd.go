package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/camden-git/attendancesys/vision/anchors"
)

// ssdFace runs the OpenCV res10 SSD face detector (Caffe or TensorFlow).
// It is lighter than RetinaFace and reports no landmarks.
type ssdFace struct {
	net           gocv.Net
	mean          gocv.Scalar
	confThreshold float32
}

func newSSDFace(modelPath, configPath string, confThreshold float32) (*ssdFace, error) {
	net, err := loadNet("detection(ssd)", modelPath, configPath)
	if err != nil {
		return nil, err
	}
	return &ssdFace{
		net:           net,
		mean:          gocv.NewScalar(104.0, 177.0, 123.0, 0),
		confThreshold: confThreshold,
	}, nil
}

func (s *ssdFace) name() string { return "ssd" }

func (s *ssdFace) detect(img gocv.Mat) []anchors.Candidate {
	blob := gocv.BlobFromImage(img, 1.0, image.Pt(300, 300), s.mean, false, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	defer out.Close()

	// [1, 1, N, 7] -> N rows of [image_id, label, conf, x1, y1, x2, y2]
	sizes := out.Size()
	if len(sizes) != 4 || sizes[3] != 7 {
		return nil
	}
	rows := out.Reshape(1, out.Total()/7)
	defer rows.Close()

	var cands []anchors.Candidate
	for i := 0; i < rows.Rows(); i++ {
		conf := rows.GetFloatAt(i, 2)
		if conf < s.confThreshold {
			continue
		}
		norm := [4]float32{rows.GetFloatAt(i, 3), rows.GetFloatAt(i, 4), rows.GetFloatAt(i, 5), rows.GetFloatAt(i, 6)}
		box, ok := anchors.ScaleBox(norm, img.Cols(), img.Rows())
		if !ok {
			continue
		}
		cands = append(cands, anchors.Candidate{Box: box, Score: conf})
	}
	return anchors.NMS(cands, 0.4)
}

func (s *ssdFace) Close() error {
	return s.net.Close()
}
