package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/btracey/emfit"
	"github.com/btracey/emfit/internal/modelfile"
	"github.com/btracey/emfit/internal/samplefile"
)

var generateFlags struct {
	Model string
	N     int
	Seed  uint64
	Out   string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Draw samples from a mixture",
	Long: `Draw samples from the Gaussian mixture described in a YAML model file and
write them as CSV, one sample per line. Without --model the two component
mixture with priors (0.3, 0.7), means (7, 9) and (-5, -5) and deviations
(2, 1) and (1, 2) is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model := modelfile.Reference()
		if generateFlags.Model != "" {
			var err error
			model, err = loadModel(generateFlags.Model)
			if err != nil {
				return err
			}
		}
		mix, err := model.Build()
		if err != nil {
			return err
		}
		xs, err := generate(mix, generateFlags.N, generateFlags.Seed)
		if err != nil {
			return err
		}
		logger.Info("generated samples",
			zap.Int("samples", generateFlags.N),
			zap.Int("dim", mix.Dim()),
			zap.Int("components", mix.Len()),
		)
		return writeSamples(cmd.OutOrStdout(), generateFlags.Out, xs)
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.Model, "model", "", "YAML model file to sample from")
	f.IntVarP(&generateFlags.N, "samples", "n", 1000, "number of samples")
	f.Uint64Var(&generateFlags.Seed, "seed", 1, "random seed")
	f.StringVarP(&generateFlags.Out, "out", "o", "", "output CSV file (default stdout)")
}

// generate draws n samples from mix into the rows of a matrix.
func generate(mix emfit.Mixture, n int, seed uint64) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	gen, err := emfit.NewMixtureGenerator(mix, rand.NewSource(seed))
	if err != nil {
		return nil, err
	}
	xs := mat.NewDense(n, mix.Dim(), nil)
	for i := 0; i < n; i++ {
		gen.Rand(xs.RawRowView(i))
	}
	return xs, nil
}

func loadModel(path string) (*modelfile.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return modelfile.Load(f)
}

func writeSamples(stdout io.Writer, path string, xs mat.Matrix) error {
	if path == "" {
		return samplefile.Write(stdout, xs)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := samplefile.Write(f, xs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
