package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/config"
	"github.com/delaneyj/sparkdom/directives"
	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/morph"
)

const (
	configKey    = "config"
	lookaheadKey = "lookahead"
	keyKey       = "key"
	countKey     = "count"
	itersKey     = "iters"
)

func main() {
	cmd := &cli.Command{
		Name:  "sparkdom",
		Usage: "Run reactive HTML documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configKey,
				Usage: "YAML or JSONC settings file, defaults to $" + config.EnvVar,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "Initialise a document and print the result",
				ArgsUsage: "FILE",
				Action:    render,
			},
			{
				Name:      "morph",
				Usage:     "Morph the first element of one document into another",
				ArgsUsage: "FROM TO",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  lookaheadKey,
						Usage: "Look ahead for matching siblings before replacing",
					},
					&cli.StringFlag{
						Name:  keyKey,
						Usage: "Attribute that identifies nodes across moves",
					},
				},
				Action: morphFiles,
			},
			{
				Name:   "directives",
				Usage:  "List registered directives in the order they run",
				Action: listDirectives,
			},
			{
				Name:  "bench",
				Usage: "Time reactive updates and morphs",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  countKey,
						Usage: "Number of list items",
						Value: 100,
					},
					&cli.UintFlag{
						Name:  itersKey,
						Usage: "Iterations per benchmark",
						Value: 100,
					},
				},
				Action: bench,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type session struct {
	cfg    *config.Config
	loop   *loop.Loop
	engine *engine.Engine
}

// start parses src, registers the built in directives and initialises the
// document.
func start(ctx context.Context, cmd *cli.Command, src string) (*session, error) {
	cfg, err := config.Load(cmd.String(configKey))
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger()
	l := loop.New(loop.WithLogger(logger))
	doc, err := engine.NewDocument(src, l)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(doc, append(cfg.EngineOptions(logger), engine.WithLoop(l))...)
	if err != nil {
		return nil, err
	}
	directives.Register(e)
	if err := e.Start(); err != nil {
		return nil, err
	}
	if err := l.Drain(ctx); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, loop: l, engine: e}, nil
}

func readArg(cmd *cli.Command, i int, name string) (string, error) {
	path := cmd.Args().Get(i)
	if path == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func render(ctx context.Context, cmd *cli.Command) error {
	src, err := readArg(cmd, 0, "FILE")
	if err != nil {
		return err
	}
	s, err := start(ctx, cmd, src)
	if err != nil {
		return err
	}
	defer s.engine.Stop()
	return dom.Render(os.Stdout, s.engine.Document().Root)
}

func morphFiles(ctx context.Context, cmd *cli.Command) error {
	from, err := readArg(cmd, 0, "FROM")
	if err != nil {
		return err
	}
	to, err := readArg(cmd, 1, "TO")
	if err != nil {
		return err
	}
	s, err := start(ctx, cmd, from)
	if err != nil {
		return err
	}
	defer s.engine.Stop()

	cfg := *s.cfg
	if cmd.Bool(lookaheadKey) {
		cfg.Morph.Lookahead = true
	}
	if key := cmd.String(keyKey); key != "" {
		cfg.Morph.Key = key
	}

	target := dom.FirstElementChild(s.engine.Document().Body())
	if target == nil {
		return morph.ErrNoElement
	}
	toRoot, err := dom.ParseHTML(to)
	if err != nil {
		return err
	}
	toEl := dom.FirstElementChild(dom.NewDocument(toRoot, nil).Body())
	if toEl == nil {
		return morph.ErrNoElement
	}

	var added, removed, updated int
	opts := cfg.MorphOptions()
	opts.Added = func(*html.Node) { added++ }
	opts.Removed = func(*html.Node) { removed++ }
	opts.Updated = func(_, _ *html.Node) { updated++ }

	if err := morph.Morph(s.engine.Document(), s.engine, target, toEl, opts); err != nil {
		return err
	}
	if err := s.loop.Drain(ctx); err != nil {
		return err
	}
	log.Printf("morph: %d added, %d removed, %d updated", added, removed, updated)
	return dom.Render(os.Stdout, s.engine.Document().Root)
}

func listDirectives(ctx context.Context, cmd *cli.Command) error {
	s, err := start(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer s.engine.Stop()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"order", "directive", "attribute"})
	for i, name := range s.engine.DirectiveOrder() {
		table.Append([]string{
			strconv.Itoa(i + 1),
			name,
			s.engine.Prefixed(name),
		})
	}
	table.Render()
	return nil
}
