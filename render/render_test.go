package render

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	music_gan "github.com/LdDl/music-gan"
	"gorgonia.org/tensor"
)

func decodePNG(t *testing.T, path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

// meanBrightness Returns mean gray level in [0, 1]
func meanBrightness(img image.Image) float64 {
	b := img.Bounds()
	sum := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += float64(r+g+bl) / (3 * 0xffff)
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}

func TestGrid(t *testing.T) {
	tiles := tensor.New(tensor.WithShape(40, 3, 2), tensor.WithBacking(make([]float64, 40*3*2)))
	dir := t.TempDir()

	plain := filepath.Join(dir, "figs", "DCGAN_music.png")
	if err := Grid(plain, tiles, DefaultGridRows, DefaultGridColumns, false); err != nil {
		t.Error(err)
		return
	}
	img := decodePNG(t, plain)
	if img.Bounds().Dx() <= img.Bounds().Dy() {
		t.Errorf("Grid 4x10 should be wider than tall, but got %v", img.Bounds())
	}
	if brightness := meanBrightness(img); brightness > 0.5 {
		t.Errorf("Zero tiles should give dark image, but mean brightness is %f", brightness)
	}

	inverted := filepath.Join(dir, "figs", "GAN_music.png")
	if err := Grid(inverted, tiles, DefaultGridRows, DefaultGridColumns, true); err != nil {
		t.Error(err)
		return
	}
	if brightness := meanBrightness(decodePNG(t, inverted)); brightness < 0.5 {
		t.Errorf("Inverted zero tiles should give bright image, but mean brightness is %f", brightness)
	}
}

func TestGridErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.png")
	few := tensor.New(tensor.WithShape(3, 2, 2), tensor.WithBacking(make([]float64, 12)))
	if err := Grid(path, few, DefaultGridRows, DefaultGridColumns, false); err == nil {
		t.Error("Not enough tiles should give error")
	}
	flat := tensor.New(tensor.WithShape(40, 4), tensor.WithBacking(make([]float64, 160)))
	if err := Grid(path, flat, DefaultGridRows, DefaultGridColumns, false); err == nil {
		t.Error("Flattened tiles should give error")
	}
}

func TestTileGridOrientation(t *testing.T) {
	g := tileGrid{values: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}, rows: 2, columns: 3}
	c, r := g.Dims()
	if c != 3 || r != 2 {
		t.Errorf("Dims should be (3, 2), but got (%d, %d)", c, r)
	}
	// Top row of the heat map is the first row of tile
	if g.Z(0, 1) != 0 || g.Z(2, 0) != 0.5 {
		t.Errorf("First row must be drawn on top, but got Z(0, 1)=%f and Z(2, 0)=%f", g.Z(0, 1), g.Z(2, 0))
	}
	g.invert = true
	if g.Z(2, 0) != 0.5 || g.Z(0, 1) != 1 {
		t.Errorf("Inverted values should be 1-v, but got Z(0, 1)=%f and Z(2, 0)=%f", g.Z(0, 1), g.Z(2, 0))
	}
}

func TestLossCurves(t *testing.T) {
	history := music_gan.History{
		{Step: 1, GeneratorLoss: 0.7, DiscriminatorLoss: 1.4},
		{Step: 100, GeneratorLoss: 1.1, DiscriminatorLoss: 1.2},
		{Step: 200, GeneratorLoss: 1.3, DiscriminatorLoss: 1.0},
	}
	path := filepath.Join(t.TempDir(), "GAN_loss.png")
	if err := LossCurves(path, "GAN", history); err != nil {
		t.Error(err)
		return
	}
	decodePNG(t, path)
	if err := LossCurves(path, "GAN", nil); err == nil {
		t.Error("Empty history should give error")
	}
}
