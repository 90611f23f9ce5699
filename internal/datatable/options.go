package datatable

// Option configures builders, Encode and Decode. Each consumer reads only
// the fields it needs.
type Option func(*options)

type options struct {
	registry *ObjectRegistry
	version  int32
}

func buildOptions(opts []Option) options {
	o := options{version: DefaultVersion}
	for _, fn := range opts {
		fn(&o)
	}
	if o.registry == nil {
		o.registry = NewObjectRegistry()
	}
	return o
}

// WithRegistry sets the object codecs used for Object columns.
func WithRegistry(r *ObjectRegistry) Option {
	return func(o *options) { o.registry = r }
}

// WithVersion selects the frame format written by Encode.
func WithVersion(v int32) Option {
	return func(o *options) { o.version = v }
}
