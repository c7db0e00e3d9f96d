package domain

// Fragment is the HTML rendered from one producer message.
// It is produced per message and discarded once broadcast.
type Fragment string

// Renderer converts markdown source into an HTML fragment.
// Implementations return a *RenderError for input they cannot convert.
type Renderer interface {
	Render(source []byte) (Fragment, error)
}
