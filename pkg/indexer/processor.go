package indexer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// ErrNilFiler is returned when creating a Processor without a Filer.
var ErrNilFiler = stderrors.New("filer is required")

// Processor collects indexable annotation uses and writes index resources.
type Processor struct {
	filer      Filer
	messager   Messager
	prefix     string
	validators map[string]Validator
	logger     *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithPrefix sets the namespace prefix resources are read from and
// written to. Defaults to resource.WritePrefix.
func WithPrefix(prefix string) Option {
	return func(p *Processor) {
		p.prefix = prefix
	}
}

// WithValidator registers an additional validator, replacing any
// validator of the same name.
func WithValidator(v Validator) Option {
	return func(p *Processor) {
		p.validators[v.Name()] = v
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor creates a processor writing through filer and reporting to
// messager. A nil messager logs diagnostics instead.
//
// Returns ErrNilFiler if filer is nil.
func NewProcessor(filer Filer, messager Messager, opts ...Option) (*Processor, error) {
	if filer == nil {
		return nil, ErrNilFiler
	}

	p := &Processor{
		filer:      filer,
		messager:   messager,
		prefix:     resource.WritePrefix,
		validators: make(map[string]Validator),
		logger:     slog.Default(),
	}
	for _, v := range DefaultValidators() {
		p.validators[v.Name()] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.messager == nil {
		p.messager = logMessager(p.logger)
	}
	return p, nil
}

// Process handles one round. Non-final rounds add locations to uses;
// the final round writes every use and clears the map.
//
// Only context errors are returned; everything else is reported to the
// messager.
func (p *Processor) Process(ctx context.Context, round Round, uses Uses) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !round.ProcessingOver() {
		p.scan(ctx, round, uses)
		return nil
	}

	defer clear(uses)
	if round.ErrorRaised() {
		p.logger.Info("errors raised, index generation skipped",
			slog.Int("annotations", len(uses)))
		return nil
	}
	return p.write(ctx, uses)
}

func (p *Processor) scan(ctx context.Context, round Round, uses Uses) {
	for _, ann := range round.AnnotationTypes() {
		marker, ok := element.MarkerOf(ann)
		if !ok {
			continue
		}

		name := ann.BinaryName()
		use, ok := uses[name]
		if !ok {
			use = p.open(ctx, ann, marker)
			uses[name] = use
		}
		if use.abandoned {
			continue
		}

		for _, e := range round.AnnotatedWith(name) {
			p.record(round, use, marker, e)
		}
	}
}

// open creates the accumulator for an annotation type and seeds it from
// the existing resource.
func (p *Processor) open(ctx context.Context, ann *element.Class, marker element.Marker) *Use {
	name := ann.BinaryName()
	use := NewUse(name)
	path := resource.Path(p.prefix, name)

	if err := p.load(ctx, path, use.Locations); err != nil {
		use.abandoned = true
		p.report(DiagnosticError, ann, errors.ReadError(path, err).
			WithDetail("annotation", name).
			WithSuggestion("Fix or delete the resource, then rebuild"))
		return use
	}

	if r := element.RetentionOf(ann); r != element.RetentionRuntime {
		p.report(DiagnosticWarning, ann, errors.New(errors.ErrCodeRetention,
			fmt.Sprintf("%s has %s retention, declare @%s(runtime) so readers can see it", name, r, element.RetentionAnnotation), nil))
	}

	for _, v := range marker.Validators {
		if _, ok := p.validators[v]; !ok {
			p.report(DiagnosticWarning, ann, errors.New(errors.ErrCodeUnknownValidator,
				fmt.Sprintf("%s names unknown validator %q", name, v), nil))
		}
	}

	p.logger.Debug("index opened",
		slog.String("annotation", name),
		slog.Int("existing", use.Locations.Len()))
	return use
}

func (p *Processor) load(ctx context.Context, path string, into *resource.LocationSet) error {
	rc, err := p.filer.Resource(ctx, path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = rc.Close() }()
	return resource.ReadLocations(rc, into)
}

func (p *Processor) record(round Round, use *Use, marker element.Marker, e element.Element) {
	mirror, ok := round.AllMirrors(e).Find(use.Annotation)
	if !ok {
		p.report(DiagnosticError, e, errors.New(errors.ErrCodeInconsistency,
			fmt.Sprintf("%s was reported as annotated with %s but does not carry it", element.Describe(e), use.Annotation), nil))
		return
	}

	for _, name := range marker.Validators {
		v, ok := p.validators[name]
		if !ok {
			continue
		}
		if err := v.Check(e, mirror); err != nil {
			p.report(DiagnosticError, e, errors.New(errors.ErrCodeValidation, err.Error(), err).
				WithDetail("validator", name))
		}
	}

	if err := use.Add(e); err != nil {
		p.report(DiagnosticError, e, errors.New(errors.ErrCodeUnsupportedElement,
			fmt.Sprintf("cannot index %s: %v", element.Describe(e), err), err))
	}
}

func (p *Processor) write(ctx context.Context, uses Uses) error {
	for _, name := range uses.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}

		use := uses[name]
		if use.abandoned {
			continue
		}

		path := resource.Path(p.prefix, name)
		if err := p.writeUse(ctx, path, use); err != nil {
			p.report(DiagnosticError, nil, errors.WriteError(path, err).WithDetail("annotation", name))
			continue
		}

		p.logger.Debug("index written",
			slog.String("annotation", name),
			slog.String("path", path),
			slog.Int("locations", use.Locations.Len()),
			slog.Int("originating", len(use.Originating)))
	}
	return nil
}

func (p *Processor) writeUse(ctx context.Context, path string, use *Use) error {
	w, err := p.filer.CreateResource(ctx, path, use.Originating...)
	if err != nil {
		return err
	}
	if err := resource.WriteLocations(w, use.Locations); err != nil {
		if a, ok := w.(Aborter); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return err
	}
	return w.Close()
}

func (p *Processor) report(kind DiagnosticKind, e element.Element, err error) {
	msg := err.Error()
	if ae, ok := errors.As(err); ok {
		msg = ae.Message
	}
	p.messager.Report(Diagnostic{Kind: kind, Message: msg, Element: e, Err: err})
}

func logMessager(logger *slog.Logger) Messager {
	return MessagerFunc(func(d Diagnostic) {
		level := slog.LevelInfo
		switch d.Kind {
		case DiagnosticError:
			level = slog.LevelError
		case DiagnosticWarning:
			level = slog.LevelWarn
		}
		attrs := []any{slog.String("code", d.Code())}
		if d.Element != nil {
			attrs = append(attrs, slog.String("element", element.Describe(d.Element)))
		}
		logger.Log(context.Background(), level, d.Message, attrs...)
	})
}
