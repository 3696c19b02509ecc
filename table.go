package refl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// WriteSlabs writes the slab table as thickness, roughness, rho, irho.
func WriteSlabs(w io.Writer, t SlabTable) error {
	return writeTable(w, "%20.15g",
		[]string{"thickness", "roughness", "rho (1e-6/A2)", "irho (1e-6/A2)"},
		t.Thickness, t.Roughness, t.Rho, t.IRho)
}

// WriteSteps writes a step profile as z, rho, irho.
func WriteSteps(w io.Writer, p Profile) error {
	return writeProfile(w, p)
}

// WriteProfile writes a smooth profile as z, rho, irho.
func WriteProfile(w io.Writer, p Profile) error {
	return writeProfile(w, p)
}

func writeProfile(w io.Writer, p Profile) error {
	return writeTable(w, "%12.8f",
		[]string{"z", "rho (1e-6/A2)", "irho (1e-6/A2)"},
		p.Z, p.Rho, p.IRho)
}

// WriteReflectivity writes Q, dQ, R, dR and theory. Nil R or dR columns are
// written as NaN.
func WriteReflectivity(w io.Writer, q, dq, r, dr, theory []float64) error {
	return writeTable(w, "%20.15g",
		[]string{"Q (1/A)", "dQ (1/A)", "R", "dR", "theory"},
		q, orNaN(dq, len(q)), orNaN(r, len(q)), orNaN(dr, len(q)), theory)
}

func orNaN(v []float64, n int) []float64 {
	if v != nil {
		return v
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func writeTable(w io.Writer, format string, header []string, cols ...[]float64) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "#")
	for i, h := range header {
		width := len(fmt.Sprintf(format, 0.0))
		if i == 0 {
			width -= 2
		}
		fmt.Fprintf(bw, " %*s", width, h)
	}
	fmt.Fprintln(bw)
	n := 0
	if len(cols) > 0 {
		n = len(cols[0])
	}
	for _, c := range cols {
		if len(c) != n {
			return fmt.Errorf("refl: table columns of length %d and %d", n, len(c))
		}
	}
	for i := 0; i < n; i++ {
		for j, c := range cols {
			if j > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, format, c[i])
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Save writes basename-slabs.dat, basename-steps.dat, basename-profile.dat
// and basename-refl.dat.
func (e *Experiment) Save(basename string) error {
	slabs, err := e.Slabs()
	if err != nil {
		return err
	}
	steps, err := e.StepProfile()
	if err != nil {
		return err
	}
	smooth, err := e.SmoothProfile(0)
	if err != nil {
		return err
	}
	theory, err := e.Reflectivity(true, true)
	if err != nil {
		return err
	}
	p := e.probe
	files := []struct {
		suffix string
		write  func(io.Writer) error
	}{
		{"-slabs.dat", func(w io.Writer) error { return WriteSlabs(w, slabs) }},
		{"-steps.dat", func(w io.Writer) error { return WriteSteps(w, steps) }},
		{"-profile.dat", func(w io.Writer) error { return WriteProfile(w, smooth) }},
		{"-refl.dat", func(w io.Writer) error {
			return WriteReflectivity(w, p.Q(), p.DQ(), p.R(), p.DR(), theory.R)
		}},
	}
	for _, f := range files {
		if err := writeFile(basename+f.suffix, f.write); err != nil {
			return err
		}
	}
	e.logger.Info("saved model tables", "basename", basename)
	return nil
}

func writeFile(name string, write func(io.Writer) error) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return write(f)
}

// ReflectivityData is a measured reflectivity table.
type ReflectivityData struct {
	Q, DQ, R, DR []float64
}

// ReadReflectivity parses whitespace-separated Q, dQ, R, dR columns.
// Blank lines and lines starting with '#' are skipped; columns after the
// fourth are ignored.
func ReadReflectivity(r io.Reader) (ReflectivityData, error) {
	var d ReflectivityData
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 4 {
			return ReflectivityData{}, fmt.Errorf("%w: line %d has %d columns, want at least 4", ErrConfiguration, line, len(fields))
		}
		var row [4]float64
		for i := range row {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return ReflectivityData{}, fmt.Errorf("%w: line %d: %w", ErrConfiguration, line, err)
			}
			row[i] = v
		}
		d.Q = append(d.Q, row[0])
		d.DQ = append(d.DQ, row[1])
		d.R = append(d.R, row[2])
		d.DR = append(d.DR, row[3])
	}
	if err := sc.Err(); err != nil {
		return ReflectivityData{}, err
	}
	return d, nil
}

// ReadReflectivityFile reads a reflectivity table from a file.
func ReadReflectivityFile(name string) (ReflectivityData, error) {
	f, err := os.Open(name)
	if err != nil {
		return ReflectivityData{}, err
	}
	defer f.Close()
	return ReadReflectivity(f)
}
