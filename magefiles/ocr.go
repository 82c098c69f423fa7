//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
)

const (
	ocrImage      = "pubsum-ocr:latest"
	ocrDockerfile = "build/ocr/Dockerfile"
)

// OCRImage builds the container image used for the OCR extraction fallback.
// Requires docker or podman on PATH.
func OCRImage() error {
	bin := "docker"
	if _, err := exec.LookPath(bin); err != nil {
		bin = "podman"
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("neither docker nor podman found on PATH")
		}
	}
	cmd := exec.Command(bin, "build", "-t", ocrImage, "-f", ocrDockerfile, "build/ocr")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s build: %w", bin, err)
	}
	fmt.Printf("Built %s\n", ocrImage)
	return nil
}
