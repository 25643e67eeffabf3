package stitch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"panoforge/internal/imageio"
)

var huginTools = []string{"pto_gen", "cpfind", "cpclean", "autooptimiser", "pano_modify", "nona", "enblend"}

// HuginEngine adapts the Hugin toolchain to the Engine contract. The
// decoded set is materialized into a temp workspace because the tools
// operate on files.
type HuginEngine struct {
	opts Options
}

// NewHuginEngine returns a Hugin-backed engine with the given options.
func NewHuginEngine(opts Options) *HuginEngine {
	return &HuginEngine{opts: opts}
}

func (e *HuginEngine) Name() string { return "hugin" }

// IsAvailable checks that the full toolchain is present.
func (e *HuginEngine) IsAvailable() bool {
	for _, tool := range huginTools {
		if !commandExists(tool) {
			return false
		}
	}
	return true
}

// Stitch runs the toolchain once over the full ordered set. Tool
// outcomes map onto the closed status set: too few frames before any
// tool runs, missing control points as homography failure, optimizer
// failure as camera-parameter failure.
func (e *HuginEngine) Stitch(ctx context.Context, set *imageio.ImageSet) (Status, *imageio.Image, error) {
	if set.Len() < 2 {
		return StatusNeedMoreImages, nil, nil
	}

	workDir, err := os.MkdirTemp("", "panoforge_hugin_")
	if err != nil {
		return StatusOK, nil, fmt.Errorf("failed to create work directory: %v", err)
	}
	defer os.RemoveAll(workDir)

	frames, err := materialize(ctx, set, workDir)
	if err != nil {
		return StatusOK, nil, err
	}

	ptoFile := filepath.Join(workDir, "project.pto")
	args := append([]string{"-o", ptoFile}, frames...)
	if out, err := exec.CommandContext(ctx, "pto_gen", args...).CombinedOutput(); err != nil {
		return StatusOK, nil, fmt.Errorf("pto_gen failed: %v, output: %s", err, string(out))
	}

	cpFile := filepath.Join(workDir, "project_cp.pto")
	if _, err := exec.CommandContext(ctx, "cpfind", "--multirow", "-o", cpFile, ptoFile).CombinedOutput(); err != nil {
		return StatusHomographyFail, nil, nil
	}
	if countControlPoints(cpFile) == 0 {
		// Images do not overlap enough for any pairwise transform.
		return StatusHomographyFail, nil, nil
	}

	cleanedFile := filepath.Join(workDir, "project_cleaned.pto")
	if _, err := exec.CommandContext(ctx, "cpclean", "-o", cleanedFile, cpFile).CombinedOutput(); err != nil {
		cleanedFile = cpFile
	}

	optimizedPto := filepath.Join(workDir, "optimized.pto")
	if _, err := exec.CommandContext(ctx, "autooptimiser", "-a", "-m", "-l", "-s", "-o", optimizedPto, cleanedFile).CombinedOutput(); err != nil {
		// Retry position-only before declaring the adjustment failed.
		if _, err := exec.CommandContext(ctx, "autooptimiser", "-a", "-s", "-o", optimizedPto, cleanedFile).CombinedOutput(); err != nil {
			return StatusCameraParamsFail, nil, nil
		}
	}

	if err := updatePTOProjection(optimizedPto, e.opts.Projection); err != nil {
		return StatusOK, nil, fmt.Errorf("failed to set projection: %v", err)
	}

	finalPto := filepath.Join(workDir, "final.pto")
	if _, err := exec.CommandContext(ctx, "pano_modify", "--canvas=AUTO", "--crop=AUTO", "-o", finalPto, optimizedPto).CombinedOutput(); err != nil {
		finalPto = optimizedPto
	}

	prefix := filepath.Join(workDir, "pano")
	nonaArgs := []string{"-o", prefix, "-m", "TIFF_m"}
	switch e.opts.Quality {
	case "fast":
		nonaArgs = append(nonaArgs, "-i", "0")
	case "high":
		nonaArgs = append(nonaArgs, "-i", "2")
	default: // normal
		nonaArgs = append(nonaArgs, "-i", "1")
	}
	nonaArgs = append(nonaArgs, finalPto)
	if out, err := exec.CommandContext(ctx, "nona", nonaArgs...).CombinedOutput(); err != nil {
		return StatusOK, nil, fmt.Errorf("nona failed: %v, output: %s", err, string(out))
	}

	matches, err := filepath.Glob(prefix + "*.tif")
	if err != nil || len(matches) == 0 {
		return StatusOK, nil, fmt.Errorf("no remapped frames found from nona: %v", err)
	}

	output := filepath.Join(workDir, "panorama.tif")
	blendArgs := []string{"-o", output}
	switch e.opts.Blending {
	case "feather":
		blendArgs = append(blendArgs, "--no-optimize")
	case "none":
		blendArgs = append(blendArgs, "--no-blend")
	default: // multiband
		blendArgs = append(blendArgs, "--levels=29")
	}
	blendArgs = append(blendArgs, matches...)
	if out, err := exec.CommandContext(ctx, "enblend", blendArgs...).CombinedOutput(); err != nil {
		return StatusOK, nil, fmt.Errorf("enblend failed: %v, output: %s", err, string(out))
	}

	pano, err := readBack(ctx, output)
	if err != nil {
		return StatusOK, nil, err
	}
	return StatusOK, pano, nil
}

// materialize writes the decoded set into workDir, one numbered frame
// per image, preserving set order.
func materialize(ctx context.Context, set *imageio.ImageSet, workDir string) ([]string, error) {
	w := imageio.NewWriter(0)
	frames := make([]string, 0, set.Len())
	for i, img := range set.Images {
		path := filepath.Join(workDir, fmt.Sprintf("frame%04d.png", i))
		if err := w.Write(ctx, img, path); err != nil {
			return nil, fmt.Errorf("failed to stage frame %d: %w", i, err)
		}
		frames = append(frames, path)
	}
	return frames, nil
}

func readBack(ctx context.Context, path string) (*imageio.Image, error) {
	set, err := imageio.NewLoader().Load(ctx, []string{path})
	if err != nil {
		return nil, fmt.Errorf("failed to read stitched output: %w", err)
	}
	return set.Images[0], nil
}

// countControlPoints counts the control points in a PTO file.
func countControlPoints(ptoFile string) int {
	content, err := os.ReadFile(ptoFile)
	if err != nil {
		return 0
	}
	count := 0
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(line, "c ") {
			count++
		}
	}
	return count
}

// updatePTOProjection rewrites the p-line projection parameter.
func updatePTOProjection(ptoFile, projection string) error {
	content, err := os.ReadFile(ptoFile)
	if err != nil {
		return err
	}

	projectionMap := map[string]string{
		"planar":      "0",
		"cylindrical": "1",
		"spherical":   "2",
	}
	projNum, exists := projectionMap[projection]
	if !exists {
		projNum = "1"
	}

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "p ") {
			parts := strings.Fields(line)
			for j, part := range parts {
				if strings.HasPrefix(part, "f") {
					parts[j] = "f" + projNum
					break
				}
			}
			lines[i] = strings.Join(parts, " ")
			break
		}
	}

	return os.WriteFile(ptoFile, []byte(strings.Join(lines, "\n")), 0o644)
}
