package visual

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for JPEG captures
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// Per-channel delta below this is treated as encoder noise, not a
// visual difference.
const noiseThreshold = 16

// Comparator stores named baseline screenshots on disk and scores new
// captures against them. Baselines persist across restarts as
// baseline_<name>.png under the configured directory.
type Comparator struct {
	dir string

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// NewComparator creates a comparator rooted at dir, creating the
// directory if needed.
func NewComparator(dir string) (*Comparator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating baseline directory: %w", err)
	}
	return &Comparator{dir: dir, names: make(map[string]*sync.Mutex)}, nil
}

// CompareResult reports a capture scored against a baseline.
type CompareResult struct {
	Name       string  `json:"name"`
	Score      float64 `json:"difference"`
	Tolerance  float64 `json:"tolerance"`
	Passed     bool    `json:"passed"`
	PixelCount int     `json:"pixel_count"`
	DiffPixels int     `json:"diff_pixels"`
}

// SaveBaseline decodes data and stores it under name. Existing
// baselines with the same name are replaced.
func (c *Comparator) SaveBaseline(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	img, err := decode(data)
	if err != nil {
		return err
	}

	lock := c.lock(name)
	lock.Lock()
	defer lock.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return browser.NewError(browser.CodeCapture, "encoding baseline %q: %v", name, err)
	}
	if err := os.WriteFile(c.path(name), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing baseline %q: %w", name, err)
	}
	return nil
}

// Compare scores data against the stored baseline for name. Tolerance
// is the maximum passing difference ratio in [0,1]. Dimension
// mismatches score 1.0 rather than erroring: a resized page is a real
// visual difference.
func (c *Comparator) Compare(name string, data []byte, tolerance float64) (*CompareResult, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if tolerance < 0 || tolerance > 1 {
		return nil, browser.NewError(browser.CodeInvalidArgument, "tolerance %v out of range [0,1]", tolerance)
	}
	candidate, err := decode(data)
	if err != nil {
		return nil, err
	}

	lock := c.lock(name)
	lock.Lock()
	defer lock.Unlock()

	baseline, err := c.loadBaseline(name)
	if err != nil {
		return nil, err
	}

	// At tolerance zero any channel delta counts: an exact-match request
	// must not be absorbed by the noise threshold.
	threshold := noiseThreshold
	if tolerance == 0 {
		threshold = 0
	}

	result := &CompareResult{Name: name, Tolerance: tolerance}
	result.Score, result.DiffPixels, result.PixelCount = diff(baseline, candidate, threshold)
	result.Passed = result.Score <= tolerance
	return result, nil
}

// List returns the names of all stored baselines.
func (c *Comparator) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "baseline_*.png"))
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		names = append(names, base[len("baseline_"):len(base)-len(".png")])
	}
	return names, nil
}

func (c *Comparator) loadBaseline(name string) (image.Image, error) {
	data, err := os.ReadFile(c.path(name))
	if os.IsNotExist(err) {
		return nil, browser.NewError(browser.CodeNoBaseline, "no baseline named %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading baseline %q: %w", name, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, browser.NewError(browser.CodeCapture, "baseline %q is corrupt: %v", name, err)
	}
	return img, nil
}

func (c *Comparator) path(name string) string {
	return filepath.Join(c.dir, "baseline_"+name+".png")
}

// lock returns the per-name mutex, creating it on first use.
func (c *Comparator) lock(name string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.names[name]
	if !ok {
		l = &sync.Mutex{}
		c.names[name] = l
	}
	return l
}

func validateName(name string) error {
	if name == "" {
		return browser.NewError(browser.CodeInvalidArgument, "baseline name is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return browser.NewError(browser.CodeInvalidArgument, "baseline name %q must not contain path separators", name)
	}
	return nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, browser.NewError(browser.CodeInvalidArgument, "empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, browser.NewError(browser.CodeCapture, "decoding image: %v", err)
	}
	return img, nil
}

// diff returns the fraction of pixels whose per-channel delta exceeds
// threshold, plus the raw counts. Mismatched dimensions count every
// pixel as different.
func diff(a, b image.Image, threshold int) (score float64, differing, total int) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		total = ab.Dx() * ab.Dy()
		if total == 0 {
			total = bb.Dx() * bb.Dy()
		}
		return 1.0, total, total
	}

	total = ab.Dx() * ab.Dy()
	if total == 0 {
		return 0, 0, 0
	}

	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if delta(ar, br) > threshold || delta(ag, bg) > threshold || delta(abl, bbl) > threshold {
				differing++
			}
		}
	}
	return float64(differing) / float64(total), differing, total
}

// delta compares 16-bit color values on the 8-bit scale.
func delta(a, b uint32) int {
	av, bv := int(a>>8), int(b>>8)
	if av > bv {
		return av - bv
	}
	return bv - av
}
