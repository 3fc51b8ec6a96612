package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/morph"
)

const counterDoc = `<div x-data="{ n: 0 }">
	<button id="inc" x-on:click="n++">+</button>
	<span x-text="n"></span>
</div>`

func listMarkup(count int, reversed bool) string {
	sb := strings.Builder{}
	sb.WriteString(`<ul id="list" x-data="{ picked: '' }">`)
	for i := 0; i < count; i++ {
		k := i
		if reversed {
			k = count - 1 - i
		}
		fmt.Fprintf(&sb, `<li key="%d" x-on:click="picked = '%d'">item %d</li>`, k, k, k)
	}
	sb.WriteString(`</ul>`)
	return sb.String()
}

func bench(ctx context.Context, cmd *cli.Command) error {
	count := int(cmd.Uint(countKey))
	iters := int(cmd.Uint(itersKey))

	tbl := table.NewWriter()
	tbl.SetTitle("sparkdom")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "runs", "avg", "min", "p75", "p99", "max"})

	for _, b := range []struct {
		name string
		run  func(context.Context, *cli.Command, int, *tachymeter.Tachymeter) error
	}{
		{"counter click", benchCounter},
		{fmt.Sprintf("reverse %s keyed items", humanize.Comma(int64(count))), func(ctx context.Context, cmd *cli.Command, iters int, tach *tachymeter.Tachymeter) error {
			return benchList(ctx, cmd, count, iters, tach)
		}},
	} {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})
		if err := b.run(ctx, cmd, iters, tach); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		calc := tach.Calc()
		tbl.AppendRows([]table.Row{
			{
				b.name,
				humanize.Comma(int64(calc.Count)),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
			},
		})
	}
	tbl.Render()
	return nil
}

func benchCounter(ctx context.Context, cmd *cli.Command, iters int, tach *tachymeter.Tachymeter) error {
	s, err := start(ctx, cmd, counterDoc)
	if err != nil {
		return err
	}
	defer s.engine.Stop()

	button := dom.MustCompile("#inc").Query(s.engine.Document().Root)
	if button == nil {
		return morph.ErrNoElement
	}
	for i := 0; i < iters; i++ {
		start := time.Now()
		s.engine.Dispatch(button, engine.NewEvent("click", nil))
		if err := s.loop.Drain(ctx); err != nil {
			return err
		}
		tach.AddTime(time.Since(start))
	}
	return nil
}

func benchList(ctx context.Context, cmd *cli.Command, count, iters int, tach *tachymeter.Tachymeter) error {
	s, err := start(ctx, cmd, listMarkup(count, false))
	if err != nil {
		return err
	}
	defer s.engine.Stop()

	list := dom.MustCompile("#list").Query(s.engine.Document().Root)
	if list == nil {
		return morph.ErrNoElement
	}
	markup := [2]string{listMarkup(count, true), listMarkup(count, false)}
	opts := s.cfg.MorphOptions()
	for i := 0; i < iters; i++ {
		start := time.Now()
		if err := morph.MorphHTML(s.engine.Document(), s.engine, list, markup[i%2], opts); err != nil {
			return err
		}
		if err := s.loop.Drain(ctx); err != nil {
			return err
		}
		tach.AddTime(time.Since(start))
	}
	return nil
}
