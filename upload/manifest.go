package upload

// DataKey is the request side channel key under which the upload
// middleware stores the Manifest of a request.
const DataKey = "upload.manifest"

// Record describes one file written to disk.
type Record struct {
	// Name is the generated file name: a UUID plus the sniffed extension.
	Name string `json:"name"`

	// Path is Name joined with the upload directory.
	Path string `json:"path"`

	// OriginalName is the filename sent by the client, possibly empty.
	OriginalName string `json:"original_name,omitempty"`

	FieldName   string `json:"field_name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Failure describes a file part that could not be written.
type Failure struct {
	FieldName    string `json:"field_name"`
	OriginalName string `json:"original_name,omitempty"`
	Reason       string `json:"error"`

	// Err wraps ErrDirectoryCreate, ErrFileWrite or the context error.
	Err error `json:"-"`
}

// Manifest is the result of materializing the file parts of one request.
// Records and Failures keep the order of the parts.
type Manifest struct {
	Records  []Record  `json:"records"`
	Failures []Failure `json:"failures,omitempty"`
}

// OK reports whether every part was written.
func (m Manifest) OK() bool {
	return len(m.Failures) == 0
}

// Lookup returns the first record for a form field.
func (m Manifest) Lookup(field string) (Record, bool) {
	for _, rec := range m.Records {
		if rec.FieldName == field {
			return rec, true
		}
	}

	return Record{}, false
}

// Names maps each form field to the generated names of its files, in part
// order.
func (m Manifest) Names() map[string][]string {
	names := make(map[string][]string, len(m.Records))
	for _, rec := range m.Records {
		names[rec.FieldName] = append(names[rec.FieldName], rec.Name)
	}

	return names
}

type valueGetter interface {
	Get(key string) (any, bool)
}

// FromRequest returns the manifest stored under DataKey. It accepts any
// value with a Get method, such as *mux.Request.
func FromRequest(req valueGetter) (Manifest, bool) {
	v, ok := req.Get(DataKey)
	if !ok {
		return Manifest{}, false
	}

	switch m := v.(type) {
	case Manifest:
		return m, true
	case *Manifest:
		if m == nil {
			return Manifest{}, false
		}

		return *m, true
	}

	return Manifest{}, false
}
