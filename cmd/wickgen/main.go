// Command wickgen expands second-quantized operator expressions into
// normal-ordered contracted form and optionally renders them as numpy
// einsum statements. Expressions are read from stdin, one term per line.
package main

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jlatone/block2-preview/pool"
	"github.com/jlatone/block2-preview/wick"
)

var (
	idxFlags  []string
	permFlags []string
	defFlags  []string
	workers   int

	maxUnctr     int
	noCtr        bool
	noSimplify   bool
	removeExt    bool
	sfTransSymm  bool
	einsumTarget string
)

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "wickgen",
	Short:         "normal-order second-quantized operator expressions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringArrayVar(&idxFlags, "idx", nil,
		`index space declaration "IA:pqrs" (letters I, A, E, then index names)`)
	pf.StringArrayVar(&permFlags, "perm", nil,
		`permutation rule "name/arity:kind" with kind none, two, qcchem, qcphys, fouranti, pair, pairh`)
	pf.StringArrayVar(&defFlags, "def", nil,
		`tensor definition "name[indices] = terms" substituted before expansion`)
	pf.IntVar(&workers, "workers", 0, "worker count, 0 means all CPUs")

	expandCmd.Flags().IntVar(&maxUnctr, "max-unctr", -1,
		"drop terms with more surviving operators, -1 keeps all")
	expandCmd.Flags().BoolVar(&noCtr, "no-ctr", false,
		"keep only the fully uncontracted reordering")
	expandCmd.Flags().BoolVar(&noSimplify, "no-simplify", false,
		"skip delta elimination and term merging")
	expandCmd.Flags().BoolVar(&removeExt, "remove-external", false,
		"drop terms whose operators carry external indices")
	expandCmd.Flags().BoolVar(&sfTransSymm, "spin-free-trans-symm", false,
		"upgrade single spin-free operators to hermitian pair symmetry")
	rootCmd.AddCommand(expandCmd)

	einsumCmd.Flags().StringVar(&einsumTarget, "target", "x[ij]",
		"tensor accumulating the result")
	rootCmd.AddCommand(einsumCmd)
}

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "expand into normal-ordered contracted terms",
	RunE: func(cmd *cobra.Command, args []string) error {
		x, p, err := readExpr(cmd.InOrStdin())
		if err != nil {
			return err
		}
		x = x.Expand(p, maxUnctr, noCtr)
		if sfTransSymm {
			x = x.AddSpinFreeTransSymm()
		}
		if removeExt {
			x = x.RemoveExternal()
		}
		if !noSimplify {
			x = x.Simplify(p)
		}
		fmt.Fprint(cmd.OutOrStdout(), x.String())
		return nil
	},
}

var einsumCmd = &cobra.Command{
	Use:   "einsum",
	Short: "expand and render as numpy einsum statements",
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, pm, err := parseTables()
		if err != nil {
			return err
		}
		target, err := wick.ParseTensor(einsumTarget, tm, pm)
		if err != nil {
			return errors.Wrap(err, "")
		}
		x, p, err := readExpr(cmd.InOrStdin())
		if err != nil {
			return err
		}
		x = x.Expand(p, 0, false).Simplify(p)
		fmt.Fprint(cmd.OutOrStdout(), x.ToEinsum(target))
		return nil
	},
}

// readExpr parses stdin against the declared index spaces, permutation
// rules and definitions.
func readExpr(in io.Reader) (wick.Expr, *pool.Pool, error) {
	tm, pm, err := parseTables()
	if err != nil {
		return wick.Expr{}, nil, err
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return wick.Expr{}, nil, errors.Wrap(err, "")
	}
	x, err := wick.Parse(string(b), tm, pm)
	if err != nil {
		return wick.Expr{}, nil, errors.Wrap(err, "")
	}
	defs := make(map[string]wick.Def)
	for _, d := range defFlags {
		def, err := wick.ParseDef(d, tm, pm)
		if err != nil {
			return wick.Expr{}, nil, errors.Wrap(err, "")
		}
		defs[def.Lhs.Name] = def
	}
	if len(defs) != 0 {
		x = x.Substitute(defs)
	}
	return x, pool.New(workers), nil
}

func parseTables() (wick.TypeMap, wick.PermMap, error) {
	tm := make(wick.TypeMap)
	for _, f := range idxFlags {
		k, v, ok := strings.Cut(f, ":")
		if !ok {
			return nil, nil, errors.Errorf("index declaration %q: missing ':'", f)
		}
		var types wick.IndexTypes
		for _, c := range k {
			switch c {
			case 'I':
				types |= wick.IndexInactive
			case 'A':
				types |= wick.IndexActive
			case 'E':
				types |= wick.IndexExternal
			default:
				return nil, nil, errors.Errorf("index declaration %q: unknown space %q", f, string(c))
			}
		}
		tm[types] = wick.ParseIndexSet(v)
	}
	pm := make(wick.PermMap)
	for _, f := range permFlags {
		k, v, ok := strings.Cut(f, ":")
		if !ok {
			return nil, nil, errors.Errorf("permutation rule %q: missing ':'", f)
		}
		name, arityStr, ok := strings.Cut(k, "/")
		if !ok {
			return nil, nil, errors.Errorf("permutation rule %q: missing '/'", f)
		}
		arity, err := strconv.Atoi(arityStr)
		if err != nil {
			return nil, nil, errors.Wrap(err, f)
		}
		var gens []wick.Permutation
		switch v {
		case "none":
			gens = wick.NonSymmetric()
		case "two":
			gens = wick.TwoSymmetric()
		case "qcchem":
			gens = wick.QCChem()
		case "qcphys":
			gens = wick.QCPhys()
		case "fouranti":
			gens = wick.FourAnti()
		case "pair":
			gens = wick.PairSymmetric(arity/2, false)
		case "pairh":
			gens = wick.PairSymmetric(arity/2, true)
		default:
			return nil, nil, errors.Errorf("permutation rule %q: unknown kind %q", f, v)
		}
		pm[wick.PermKey{Name: name, N: arity}] = gens
	}
	return tm, pm, nil
}
