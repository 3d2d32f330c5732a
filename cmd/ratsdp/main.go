// Copyright (c) 2023 Colin McRae

// Command ratsdp loads an affine family of symmetric blocks from a YAML
// problem file, searches it for a rational positive semidefinite point,
// and prints the exact congruence certificate.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zyckk4/Triple-SOS/gradient"
	"github.com/zyckk4/Triple-SOS/ratmatrix"
	"github.com/zyckk4/Triple-SOS/sdp"
	"github.com/zyckk4/Triple-SOS/solver"
)

// problemFile is the on-disk description of a family. Entries of x0 and
// space are rational strings such as "3", "-1/7" or "0.25".
type problemFile struct {
	Blocks []struct {
		Key string `yaml:"key"`
		Dim int    `yaml:"dim"`
	} `yaml:"blocks"`
	X0    []string         `yaml:"x0"`
	Space [][]string       `yaml:"space"`
	Masks map[string][]int `yaml:"masks"`
}

func main() {
	var (
		methodName    string
		allowNumeric  bool
		verbose       bool
		maxIterations int
		minEigen      float64
	)

	root := &cobra.Command{
		Use:          "ratsdp",
		Short:        "rational SDP certificate search",
		SilenceUsage: true,
	}

	solveCmd := &cobra.Command{
		Use:   "solve <problem.yaml>",
		Short: "solve one problem file and print the certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			method, err := solver.ParseMethod(methodName)
			if err != nil {
				return err
			}
			fam, err := loadProblem(args[0])
			if err != nil {
				return err
			}
			result, err := solver.Solve(fam, gradient.New(), solver.SolveOptions{
				Method:        method,
				AllowNumeric:  allowNumeric,
				MaxIterations: maxIterations,
				MinEigen:      minEigen,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			printResult(fam, result)
			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}
	solveCmd.Flags().StringVar(&methodName, "method", "partial deflation", "trivial, relax or partial deflation")
	solveCmd.Flags().BoolVar(&allowNumeric, "allow-numeric", false, "accept an inexact perturbed certificate as a last resort")
	solveCmd.Flags().BoolVar(&verbose, "verbose", false, "log the solving process")
	solveCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "numeric iteration budget (0 = default)")
	solveCmd.Flags().Float64Var(&minEigen, "min-eigen", 0, "epsilon in S >= eps*I")
	root.AddCommand(solveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(2)
	}
}

func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
}

func loadProblem(path string) (*sdp.Family, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %s", path, err.Error())
	}
	var pf problemFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("could not parse %s: %s", path, err.Error())
	}
	if len(pf.Blocks) == 0 {
		return nil, fmt.Errorf("%s declares no blocks", path)
	}

	keys := make([]string, len(pf.Blocks))
	dims := make([]int, len(pf.Blocks))
	total := 0
	for i, b := range pf.Blocks {
		keys[i] = b.Key
		dims[i] = b.Dim
		total += ratmatrix.UpperVecLen(b.Dim)
	}
	if len(pf.X0) != total {
		return nil, fmt.Errorf("x0 has %d entries; the blocks require %d", len(pf.X0), total)
	}
	x0, err := ratmatrix.NewFromStringArray(pf.X0, total, 1)
	if err != nil {
		return nil, err
	}

	dof := 0
	if len(pf.Space) > 0 {
		dof = len(pf.Space[0])
	}
	space := ratmatrix.NewEmpty(total, dof)
	if dof > 0 {
		if len(pf.Space) != total {
			return nil, fmt.Errorf("space has %d rows; the blocks require %d", len(pf.Space), total)
		}
		flat := make([]string, 0, total*dof)
		for i, row := range pf.Space {
			if len(row) != dof {
				return nil, fmt.Errorf("space row %d has %d entries, want %d", i, len(row), dof)
			}
			flat = append(flat, row...)
		}
		space, err = ratmatrix.NewFromStringArray(flat, total, dof)
		if err != nil {
			return nil, err
		}
	}

	fam, err := sdp.NewFamily(x0, space, sdp.SplitsForDims(dims), keys)
	if err != nil {
		return nil, err
	}
	if len(pf.Masks) > 0 {
		if err := fam.ApplyMask(pf.Masks); err != nil {
			return nil, err
		}
	}
	return fam, nil
}

func printResult(fam *sdp.Family, result *solver.Result) {
	if !result.Success {
		fmt.Println("no rational certificate found")
		return
	}
	if !result.Exact {
		fmt.Println("WARNING: certificate is numeric (perturbed), not exact")
	}
	assignment, err := fam.Assignment(result.Y)
	if err == nil {
		for _, name := range fam.VariableNames() {
			fmt.Printf("%s = %s\n", name, assignment[name].RatString())
		}
	}
	for _, key := range fam.NonEmptyKeys() {
		s, ok := result.S[key]
		if !ok {
			continue
		}
		d := result.Decompositions[key]
		fmt.Printf("%s:\n  S = %s\n  U = %s\n  diag = [", key, s.String(), d.U.String())
		for i, v := range d.Diag {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(v.RatString())
		}
		fmt.Println("]")
	}
}
