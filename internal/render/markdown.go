package render

import (
	"bytes"
	"errors"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

var errInvalidUTF8 = errors.New("document is not valid UTF-8")

type engine struct {
	md   goldmark.Markdown
	opts Options
}

func newEngine(opts Options) *engine {
	var exts []goldmark.Extender
	if opts.GFM {
		exts = append(exts, extension.GFM)
	}
	if opts.Typographer {
		exts = append(exts, extension.Typographer)
	}
	if opts.Footnotes {
		exts = append(exts, extension.Footnote)
	}
	if opts.DefinitionLists {
		exts = append(exts, extension.DefinitionList)
	}

	var parserOpts []parser.Option
	if opts.HeadingIDs {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}

	var rendererOpts []renderer.Option
	if opts.HardWraps {
		rendererOpts = append(rendererOpts, html.WithHardWraps())
	}
	if opts.XHTML {
		rendererOpts = append(rendererOpts, html.WithXHTML())
	}
	if opts.UnsafeHTML {
		rendererOpts = append(rendererOpts, html.WithUnsafe())
	}

	return &engine{
		md: goldmark.New(
			goldmark.WithExtensions(exts...),
			goldmark.WithParserOptions(parserOpts...),
			goldmark.WithRendererOptions(rendererOpts...),
		),
		opts: opts,
	}
}

// Renderer is a domain.Renderer whose options can be swapped at runtime.
type Renderer struct {
	current atomic.Pointer[engine]
	metrics *metrics.RenderMetrics
}

// NewRenderer creates a renderer with opts. m may be nil.
func NewRenderer(opts Options, m *metrics.RenderMetrics) *Renderer {
	r := &Renderer{metrics: m}
	r.current.Store(newEngine(opts))
	return r
}

// Render converts markdown source to HTML. Input that is not valid UTF-8,
// or that goldmark fails to convert, yields a *domain.RenderError.
func (r *Renderer) Render(source []byte) (domain.Fragment, error) {
	start := time.Now()
	fragment, err := r.render(source)
	if r.metrics != nil {
		r.metrics.Duration.Observe(time.Since(start).Seconds())
		if err != nil {
			r.metrics.Failures.Inc()
		}
	}
	return fragment, err
}

func (r *Renderer) render(source []byte) (domain.Fragment, error) {
	if !utf8.Valid(source) {
		return "", &domain.RenderError{Cause: errInvalidUTF8}
	}

	var buf bytes.Buffer
	buf.Grow(len(source) + len(source)/2)
	if err := r.current.Load().md.Convert(source, &buf); err != nil {
		return "", &domain.RenderError{Cause: err}
	}
	return domain.Fragment(buf.String()), nil
}

// Check renders a fixed sample with the active options without recording
// metrics, for use by health probes.
func (r *Renderer) Check() error {
	_, err := r.render([]byte("ok"))
	return err
}

// Apply replaces the active options. Renders already in progress complete
// with the previous options.
func (r *Renderer) Apply(opts Options) {
	r.current.Store(newEngine(opts))
}

// Options returns the active options.
func (r *Renderer) Options() Options {
	return r.current.Load().opts
}
