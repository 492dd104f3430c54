// Command anyopt validates optimizer documents and traces
// their behavior on a small quadratic problem.
//
// Usage:
//
//	anyopt check -config adamw.yaml
//	anyopt trace -config adamw.yaml -steps 20
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyopt"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
)

var Creator anyvec.Creator = anyvec64.DefaultCreator{}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "check":
		check(os.Args[2:])
	case "trace":
		trace(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: anyopt <check | trace> [flags]")
	os.Exit(2)
}

func check(args []string) {
	var configPath string
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "optimizer document (YAML)")
	fs.Parse(args)

	stack, err := loadStack(configPath)
	if err != nil {
		log.Fatal(err)
	}
	doc, err := stack.Document()
	if err != nil {
		log.Fatal(err)
	}
	data, err := doc.YAML()
	if err != nil {
		log.Fatal(err)
	}
	os.Stdout.Write(data)
}

func trace(args []string) {
	var configPath string
	var steps int
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "optimizer document (YAML)")
	fs.IntVar(&steps, "steps", 10, "number of steps to run")
	fs.Parse(args)

	stack, err := loadStack(configPath)
	if err != nil {
		log.Fatal(err)
	}

	kernel := anyopt.NewParam("dense/kernel",
		Creator.MakeVectorData(Creator.MakeNumericList([]float64{1, -2, 3, -4})))
	bias := anyopt.NewParam("dense/bias",
		Creator.MakeVectorData(Creator.MakeNumericList([]float64{0.5, -0.5})))
	params := []*anyopt.Param{kernel, bias}

	log.Printf("optimizer: %s %v", stack.Variant.Base(), stack.Variant.Extensions())
	for i := 0; i < steps; i++ {
		cost := bowl(kernel, bias)
		if err := anyopt.Minimize(stack, params, cost); err != nil {
			log.Fatal(err)
		}
		log.Printf("step %d: cost=%f kernel=%v bias=%v", stack.Iterations(),
			anyvec.Sum(cost.Output()), kernel.Vector().Data(), bias.Vector().Data())
	}
}

// bowl is a quadratic with its minimum at the origin.
func bowl(kernel, bias *anyopt.Param) anydiff.Res {
	scales := anydiff.NewConst(Creator.MakeVectorData(
		Creator.MakeNumericList([]float64{1, 2, 0.5, 4}),
	))
	return anydiff.Add(
		anydiff.Sum(anydiff.Mul(anydiff.Square(kernel.Var), scales)),
		anydiff.Sum(anydiff.Square(bias.Var)),
	)
}

func loadStack(path string) (*anyopt.Stack, error) {
	if path == "" {
		return nil, fmt.Errorf("missing -config flag")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := anyopt.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	stack, err := doc.Build()
	if err != nil {
		return nil, essentials.AddCtx(path, err)
	}
	return stack, nil
}
