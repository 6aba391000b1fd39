package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/btracey/emfit"
	"github.com/btracey/emfit/internal/modelfile"
	"github.com/btracey/emfit/internal/samplefile"
)

// fitConfig holds the settings of the fit command. The YAML file named by
// --config supplies defaults; flags set on the command line override them.
type fitConfig struct {
	In         string `yaml:"in"`
	Out        string `yaml:"out"`
	Components int    `yaml:"components"`
	Kind       string `yaml:"kind"`
	Iterations int    `yaml:"iterations"`
	Seed       uint64 `yaml:"seed"`
	Policy     string `yaml:"policy"`
}

var fitFlags = fitConfig{
	Components: 2,
	Kind:       "independent",
	Iterations: 100,
	Seed:       1,
	Policy:     "equal",
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a mixture to samples",
	Long: `Fit a Gaussian mixture to the CSV samples in --in with expectation-
maximization: one random initialization followed by --iter steps.

Kinds:
  independent  diagonal covariance Gaussians
  full         full covariance Gaussians
  general      component 0 diagonal, the rest full covariance`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveFitConfig(cmd, globalFlags.Config)
		if err != nil {
			return err
		}
		xs, err := readSamples(cfg.In)
		if err != nil {
			return err
		}
		mix, err := fit(cfg, xs, logger)
		if err != nil {
			return err
		}
		em := emfit.NewEM(mix)
		if err := report(cmd.OutOrStdout(), mix, em.LogLikelihood(xs)); err != nil {
			return err
		}
		if cfg.Out == "" {
			return nil
		}
		return saveModel(cfg.Out, mix)
	},
}

func init() {
	f := fitCmd.Flags()
	f.StringVarP(&fitFlags.In, "in", "i", fitFlags.In, "input CSV file (default stdin)")
	f.StringVarP(&fitFlags.Out, "out", "o", fitFlags.Out, "write the learned model as YAML to this file")
	f.IntVarP(&fitFlags.Components, "components", "k", fitFlags.Components, "number of mixture components")
	f.StringVar(&fitFlags.Kind, "kind", fitFlags.Kind, "component kind: independent, full or general")
	f.IntVar(&fitFlags.Iterations, "iter", fitFlags.Iterations, "number of EM iterations after initialization")
	f.Uint64Var(&fitFlags.Seed, "seed", fitFlags.Seed, "random seed for initialization")
	f.StringVar(&fitFlags.Policy, "policy", fitFlags.Policy, "zero density samples: equal (1/K each) or scale (keep zero)")
}

// resolveFitConfig returns the fit settings: flag values, with flags that
// were not set on the command line taken from the config file if one is
// given.
func resolveFitConfig(cmd *cobra.Command, path string) (fitConfig, error) {
	cfg := fitFlags
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	file := fitFlags
	if err := yaml.Unmarshal(b, &file); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if !flags.Changed(name) {
			apply()
		}
	}
	set("in", func() { cfg.In = file.In })
	set("out", func() { cfg.Out = file.Out })
	set("components", func() { cfg.Components = file.Components })
	set("kind", func() { cfg.Kind = file.Kind })
	set("iter", func() { cfg.Iterations = file.Iterations })
	set("seed", func() { cfg.Seed = file.Seed })
	set("policy", func() { cfg.Policy = file.Policy })
	return cfg, nil
}

// newMixture returns an untrained mixture of the configured kind.
func newMixture(kind string, k, dim int) (emfit.Mixture, error) {
	if k <= 0 {
		return nil, emfit.ErrZeroComponents
	}
	switch kind {
	case "independent":
		return emfit.NewMixtureModel(k, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(dim) }), nil
	case "full":
		return emfit.NewMixtureModel(k, func() *emfit.Gaussian { return emfit.NewGaussian(dim) }), nil
	case "general":
		mix := emfit.NewGeneralMixtureModel(k, dim)
		if err := mix.Set(0, emfit.NewIndependentGaussian(dim)); err != nil {
			return nil, err
		}
		return mix, nil
	default:
		return nil, fmt.Errorf("unknown component kind %q", kind)
	}
}

func parsePolicy(s string) (emfit.DegeneratePolicy, error) {
	switch s {
	case "equal", "":
		return emfit.EqualShare, nil
	case "scale":
		return emfit.ScaleByShare, nil
	default:
		return 0, fmt.Errorf("unknown policy %q", s)
	}
}

// fit builds a mixture as configured and fits it to xs.
func fit(cfg fitConfig, xs mat.Matrix, log *zap.Logger) (emfit.Mixture, error) {
	_, dim := xs.Dims()
	mix, err := newMixture(cfg.Kind, cfg.Components, dim)
	if err != nil {
		return nil, err
	}
	policy, err := parsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	em := emfit.NewEM(mix)
	em.Src = rand.NewSource(cfg.Seed)
	em.Policy = policy
	em.Logger = log
	log.Info("fitting mixture",
		zap.String("kind", cfg.Kind),
		zap.Int("components", cfg.Components),
		zap.Int("iterations", cfg.Iterations),
	)
	if err := em.Fit(xs, cfg.Iterations); err != nil {
		return nil, err
	}
	return mix, nil
}

// report prints the learned priors and component parameters.
func report(w io.Writer, mix emfit.Mixture, ll float64) error {
	for k := 0; k < mix.Len(); k++ {
		fmt.Fprintf(w, "Component %d\n", k+1)
		fmt.Fprintf(w, "Prior:      %.4g\n", mix.Prior(k))
		switch d := mix.Dist(k).(type) {
		case *emfit.IndependentGaussian:
			fmt.Fprintf(w, "Mean:       %.4g\n", d.Mean)
			fmt.Fprintf(w, "Deviation:  %.4g\n", d.Deviation)
		case *emfit.Gaussian:
			fmt.Fprintf(w, "Mean:       %.4g\n", d.Mean(nil))
			fmt.Fprintf(w, "Covariance: %.4g\n", mat.Formatted(d.Covariance(nil), mat.Prefix("            ")))
		default:
			fmt.Fprintf(w, "Type:       %T\n", d)
		}
		fmt.Fprintln(w)
	}
	_, err := fmt.Fprintf(w, "Log-likelihood: %.6g\n", ll)
	return err
}

func readSamples(path string) (*mat.Dense, error) {
	if path == "" {
		return samplefile.Read(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return samplefile.Read(f)
}

func saveModel(path string, mix emfit.Mixture) error {
	m, err := modelfile.FromMixture(mix)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
