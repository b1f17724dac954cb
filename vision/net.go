// Package vision adapts OpenCV's DNN module and video I/O to the pipeline:
// face detection and embedding, camera capture and frame annotation.
package vision

import (
	"fmt"
	"log"
	"os"

	"gocv.io/x/gocv"
)

// loadNet reads a DNN model and prefers CUDA, falling back to the CPU.
// configPath may be empty for single-file formats such as ONNX.
func loadNet(component, modelPath, configPath string) (gocv.Net, error) {
	if modelPath == "" {
		return gocv.Net{}, fmt.Errorf("%s: model path is empty", component)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return gocv.Net{}, fmt.Errorf("%s: model file '%s' not accessible: %w", component, modelPath, err)
	}

	log.Printf("%s: Attempting to load model: %s", component, modelPath)
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("%s: ReadNet returned an empty network for '%s'", component, modelPath)
	}

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Printf("%s: Set backend/target to CUDA", component)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Printf("%s: Set backend/target to CPU (Default)", component)
	}
	return net, nil
}
