package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chatmark "github.com/alnah/go-chatmark"
	"github.com/alnah/go-chatmark/internal/assets"
	"github.com/alnah/go-chatmark/internal/config"
	"github.com/alnah/go-chatmark/internal/pipeline"
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// stdinName marks standard input in the input list.
const stdinName = "-"

// defaultPageTitle titles standalone pages rendered from stdin.
const defaultPageTitle = "chatmark"

// renderJob is one input rendered to one output.
type renderJob struct {
	input  string // stdinName for standard input
	output string // "" for standard output
}

// renderOptions applies to every job of a render run.
type renderOptions struct {
	user bool
	page *pipeline.PageAssets // nil for a bare fragment
}

// runRender renders each input with a pool of renderers.
func runRender(ctx context.Context, args []string, env *Environment) error {
	flags, inputs, err := parseRenderFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if err := validateWorkers(flags.workers); err != nil {
		return err
	}

	a, err := newApp(flags.common, env)
	if err != nil {
		return err
	}

	jobs, err := planRender(inputs, flags.output)
	if err != nil {
		return err
	}

	opts := renderOptions{user: flags.user}
	if flags.standalone {
		page, err := a.pageAssets()
		if err != nil {
			return err
		}
		opts.page = &page
	}

	workers := flags.workers
	if workers == 0 {
		workers = a.cfg.Render.Workers
	}
	size := min(chatmark.ResolvePoolSize(workers), len(jobs))
	a.logger.Debug("rendering", "inputs", len(jobs), "renderers", size)

	pool := chatmark.NewRendererPool(size, func() (*chatmark.Renderer, error) {
		return a.newRenderer(1)
	})
	defer func() {
		if err := pool.Close(); err != nil {
			a.logger.Warn("closing renderers", "error", err)
		}
	}()

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = renderOne(ctx, pool, job, opts, a)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// validateWorkers checks the --workers value.
func validateWorkers(n int) error {
	if n < 0 || n > config.MaxWorkers {
		return fmt.Errorf("%w: %d (must be 0 to %d)", ErrInvalidWorkerCount, n, config.MaxWorkers)
	}
	return nil
}

// planRender maps inputs to outputs. A single input goes to output (or
// stdout); several inputs go to .html files in output (or beside each input).
func planRender(inputs []string, output string) ([]renderJob, error) {
	switch len(inputs) {
	case 0:
		return []renderJob{{input: stdinName, output: output}}, nil
	case 1:
		return []renderJob{{input: inputs[0], output: output}}, nil
	}

	jobs := make([]renderJob, 0, len(inputs))
	for _, in := range inputs {
		if in == stdinName {
			return nil, fmt.Errorf("%w: stdin cannot be combined with other inputs", ErrUsage)
		}
		dir := output
		if dir == "" {
			dir = filepath.Dir(in)
		}
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		jobs = append(jobs, renderJob{input: in, output: filepath.Join(dir, base+".html")})
	}
	return jobs, nil
}

// pageAssets collects the styles and scripts a standalone page inlines.
// Custom files in server.assetsDir override the embedded ones.
func (a *app) pageAssets() (pipeline.PageAssets, error) {
	loader, err := assets.NewResolver(a.cfg.Server.AssetsDir)
	if err != nil {
		return pipeline.PageAssets{}, err
	}

	var page pipeline.PageAssets
	if u := a.katexStyleURL(); u != "" {
		page.StyleLinks = append(page.StyleLinks, u)
	}
	for _, name := range []string{assets.ChatStyle, assets.MathStyle} {
		css, err := loader.Load(assets.KindStyle, name)
		if err != nil {
			return pipeline.PageAssets{}, fmt.Errorf("loading %s styles: %w", name, err)
		}
		page.Styles = append(page.Styles, css)
	}
	highlight, err := pipeline.HighlightCSS(a.cfg.Render.HighlightStyle)
	if err != nil {
		return pipeline.PageAssets{}, err
	}
	page.Styles = append(page.Styles, highlight)

	if a.cfg.Render.CopyButtons {
		js, err := loader.Load(assets.KindScript, assets.CopyScript)
		if err != nil {
			return pipeline.PageAssets{}, fmt.Errorf("loading copy script: %w", err)
		}
		page.Scripts = append(page.Scripts, js)
	}
	return page, nil
}

// pageTitle names a standalone page after its input file.
func pageTitle(input string) string {
	if input == stdinName {
		return defaultPageTitle
	}
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
}

func renderOne(ctx context.Context, pool *chatmark.RendererPool, job renderJob, opts renderOptions, a *app) error {
	start := time.Now()

	text, err := readInput(job.input, a.env.Stdin)
	if err != nil {
		return err
	}

	r, err := pool.Acquire()
	if err != nil {
		return err
	}
	var html string
	if opts.user {
		html = r.RenderUser(text)
	} else {
		html = r.Render(ctx, text)
	}
	pool.Release(r)

	if opts.page != nil {
		html = pipeline.StandalonePage(pageTitle(job.input), html, *opts.page)
	}

	if err := writeOutput(job.output, html, a.env.Stdout); err != nil {
		return err
	}
	a.logger.Debug("rendered", "input", job.input, "output", job.output, "duration", time.Since(start))
	return nil
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == stdinName {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("%w: stdin: %v", ErrReadInput, err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is user-provided
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrReadInput, path, err)
	}
	return string(data), nil
}

func writeOutput(path, html string, stdout io.Writer) error {
	if !strings.HasSuffix(html, "\n") {
		html += "\n"
	}

	if path == "" {
		if _, err := io.WriteString(stdout, html); err != nil {
			return fmt.Errorf("%w: stdout: %v", ErrWriteOutput, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteOutput, path, err)
	}
	if err := os.WriteFile(path, []byte(html), filePermissions); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteOutput, path, err)
	}
	return nil
}
