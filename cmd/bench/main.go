package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Luciano0322/signal-kernel/reactor"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "bench",
		Usage: "microbenchmark reactor's propagation latency across graph shapes",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "iters", Value: 1000, Usage: "signal writes timed per graph shape"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			run(int(c.Int("iters")))
			return nil
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	widths  = []int{1, 10, 100, 1_000}
	heights = []int{1, 10, 100, 1_000}
)

func run(iters int) {
	log.Printf("timing %s signal writes per shape", humanize.Comma(int64(iters)))

	tbl := table.NewWriter()
	tbl.SetTitle("reactor propagation latency")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"shape (width x depth)", "avg", "min", "p75", "p99", "max"})

	for _, w := range widths {
		for _, h := range heights {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			sched := reactor.New(reactor.WithOnError(func(err error) {
				log.Panic(err)
			}))
			src := reactor.NewSignal(sched, 1)

			for i := 0; i < w; i++ {
				last := func() int { return src.Get() }
				for j := 0; j < h; j++ {
					prev := last
					computed := reactor.NewComputed(sched, func() (int, error) {
						return prev() + 1, nil
					})
					last = func() int {
						v, err := computed.Get()
						if err != nil {
							log.Panic(err)
						}
						return v
					}
				}
				final := last
				reactor.CreateEffect(sched, func() (func(), error) {
					final()
					return nil, nil
				})
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				src.Set(src.Peek() + 1)
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRow(table.Row{
				fmt.Sprintf("%d x %d", w, h),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
			})
		}
	}

	tbl.Render()
}
