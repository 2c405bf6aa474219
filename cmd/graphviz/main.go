package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/Luciano0322/signal-kernel/reactor"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// demo builds a small representative graph: three signals fanning in to a
// chain of two computeds that feeds one effect. graphviz exists to
// make that shape legible, not to introspect arbitrary caller graphs --
// reactor has no registry of all live nodes to walk (spec.md 1 excludes
// a global identity-keyed cache), so the tool narrates the graph it itself
// builds.
func demo(sched *reactor.Scheduler) []reactor.NodeInfo {
	a := reactor.NewSignal(sched, 1)
	b := reactor.NewSignal(sched, 2)
	c := reactor.NewSignal(sched, 3)

	sum := reactor.NewComputed(sched, func() (int, error) {
		return a.Get() + b.Get() + c.Get(), nil
	})
	doubled := reactor.NewComputed(sched, func() (int, error) {
		v, err := sum.Get()
		return v * 2, err
	})

	handle := reactor.NewEffect(sched, func() (func(), error) {
		_, err := doubled.Get()
		return nil, err
	})

	infos := []reactor.NodeInfo{a.Info(), b.Info(), c.Info(), sum.Info(), doubled.Info(), handle.Info()}
	return infos
}

func main() {
	cmd := &cli.Command{
		Name:  "graphviz",
		Usage: "dump the shape of reactor's built-in demo graph as a table",
		Action: func(ctx context.Context, c *cli.Command) error {
			sched := reactor.New(reactor.WithOnError(func(err error) {
				log.Printf("demo effect error: %v", err)
			}))
			infos := demo(sched)

			tbl := tablewriter.NewWriter(os.Stdout)
			tbl.SetHeader([]string{"kind", "id", "stale", "disposed", "deps", "subs"})
			for _, n := range infos {
				tbl.Append([]string{
					n.Kind,
					n.ID,
					boolStr(n.Stale),
					boolStr(n.Disposed),
					strconv.Itoa(n.Deps),
					strconv.Itoa(n.Subs),
				})
			}
			tbl.Render()
			return nil
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func boolStr(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

