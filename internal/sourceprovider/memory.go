package sourceprovider

// Memory is a Provider backed by an in-memory logical-path → text map. It is
// used by elaborator tests and by hosted tooling that has no real checkout
// (an editor's unsaved buffer, a webview preview).
type Memory struct {
	files map[string][]byte
}

// NewMemory returns a Provider serving the given logical-path → source map.
// Keys are canonicalized on construction so lookups behave like FS.
func NewMemory(files map[string]string) *Memory {
	m := &Memory{files: make(map[string][]byte, len(files))}
	for k, v := range files {
		m.files[canonicalize(k)] = []byte(v)
	}
	return m
}

func (m *Memory) Read(logicalPath string) ([]byte, error) {
	b, ok := m.files[canonicalize(logicalPath)]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *Memory) Resolve(base, relative string) (string, error) {
	return resolve(base, relative), nil
}

func (m *Memory) Canonicalize(logicalPath string) (string, error) {
	return canonicalize(logicalPath), nil
}
