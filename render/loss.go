package render

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	music_gan "github.com/LdDl/music-gan"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LossCurves Plots generator's and discriminator's losses over steps and saves plot into file.
// Image format is picked by file extension
func LossCurves(path, title string, history music_gan.History) error {
	if len(history) == 0 {
		return fmt.Errorf("History is empty")
	}
	genData := make(plotter.XYs, len(history))
	disData := make(plotter.XYs, len(history))
	for i, res := range history {
		genData[i].X = float64(res.Step)
		genData[i].Y = res.GeneratorLoss
		disData[i].X = float64(res.Step)
		disData[i].Y = res.DiscriminatorLoss
	}
	genLine, err := plotter.NewLine(genData)
	if err != nil {
		return errors.Wrap(err, "Can't init generator's loss line")
	}
	genLine.Color = color.RGBA{R: 255, B: 128, A: 255}
	disLine, err := plotter.NewLine(disData)
	if err != nil {
		return errors.Wrap(err, "Can't init discriminator's loss line")
	}
	disLine.Color = color.RGBA{G: 128, B: 255, A: 255}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	p.Add(genLine, disLine)
	p.Legend.Add("Generator", genLine)
	p.Legend.Add("Discriminator", disLine)
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "Can't create directory for plot")
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
