package render

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gorgonia.org/tensor"
)

const (
	// DefaultGridRows Number of rows in sample grid
	DefaultGridRows = 4
	// DefaultGridColumns Number of columns in sample grid
	DefaultGridColumns = 10
	// DPI Resolution of saved images
	DPI = 300
)

// tileGrid Adapts single tile to plotter.GridXYZ. Row 0 of the tile is drawn on top
type tileGrid struct {
	values  []float64
	rows    int
	columns int
	invert  bool
}

func (g tileGrid) Dims() (c, r int) {
	return g.columns, g.rows
}

func (g tileGrid) Z(c, r int) float64 {
	v := g.values[(g.rows-1-r)*g.columns+c]
	if g.invert {
		return 1 - v
	}
	return v
}

func (g tileGrid) X(c int) float64 {
	return float64(c)
}

func (g tileGrid) Y(r int) float64 {
	return float64(r)
}

// grayPalette Linear ramp from black to white
type grayPalette []color.Color

func (p grayPalette) Colors() []color.Color {
	return p
}

func newGrayPalette(n int) grayPalette {
	p := make(grayPalette, n)
	for i := range p {
		level := uint8(255 * i / (n - 1))
		p[i] = color.Gray{Y: level}
	}
	return p
}

// Grid Draws tiles [n, rows, columns] with values in [0, 1] as gridRows x gridColumns image and saves it as PNG.
// Tile k goes to column k/gridRows and row k%gridRows. If invert is set, values are drawn as 1-v.
// Existing file is overwritten.
func Grid(path string, tiles *tensor.Dense, gridRows, gridColumns int, invert bool) error {
	shp := tiles.Shape()
	if len(shp) != 3 {
		return fmt.Errorf("Tiles must have shape [n, rows, columns], but got %v", shp)
	}
	n, rows, columns := shp[0], shp[1], shp[2]
	if n < gridRows*gridColumns {
		return fmt.Errorf("Grid %dx%d needs %d tiles, but got %d", gridRows, gridColumns, gridRows*gridColumns, n)
	}
	values, ok := tiles.Data().([]float64)
	if !ok {
		return fmt.Errorf("Tiles must hold float64 values, but got %T", tiles.Data())
	}
	pal := newGrayPalette(256)
	tileSize := rows * columns
	plots := make([][]*plot.Plot, gridRows)
	for j := range plots {
		plots[j] = make([]*plot.Plot, gridColumns)
	}
	for i := 0; i < gridColumns; i++ {
		for j := 0; j < gridRows; j++ {
			k := i*gridRows + j
			heatmap := plotter.NewHeatMap(tileGrid{
				values:  values[k*tileSize : (k+1)*tileSize],
				rows:    rows,
				columns: columns,
				invert:  invert,
			}, pal)
			heatmap.Min = 0
			heatmap.Max = 1
			heatmap.Underflow = pal[0]
			heatmap.Overflow = pal[len(pal)-1]
			p := plot.New()
			p.HideAxes()
			p.Add(heatmap)
			plots[j][i] = p
		}
	}

	img := vgimg.NewWith(vgimg.UseWH(vg.Length(gridColumns)*vg.Inch, vg.Length(gridRows)*vg.Inch), vgimg.UseDPI(DPI))
	dc := draw.New(img)
	canvases := plot.Align(plots, draw.Tiles{
		Rows: gridRows,
		Cols: gridColumns,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "Can't create directory for grid")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Can't create grid file")
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return errors.Wrap(err, "Can't write PNG")
	}
	return f.Close()
}
