// Package codec defines the compression and encryption capabilities
// the engine applies to each block and volume before upload, and the
// concrete modules that back them.
package codec

import "io"

// Compressor compresses and decompresses block and volume payloads.
// Module names double as the filename extension (spec §6).
type Compressor interface {
	Name() string
	Compress(dst io.Writer, src io.Reader) error
	Decompress(dst io.Writer, src io.Reader) error
}

// Encryptor encrypts and decrypts payloads already run through a
// Compressor. An empty Name means "no encryption" and is always a
// valid, registered module so the cross-product probe (spec §4.10)
// can include the unencrypted case.
type Encryptor interface {
	Name() string
	Encrypt(dst io.Writer, src io.Reader) error
	Decrypt(dst io.Writer, src io.Reader) error
}

// Registry resolves module names to their implementations, and lists
// every loaded module so internal/remote's probing can enumerate the
// cross-product.
type Registry struct {
	compressors map[string]Compressor
	encryptors  map[string]Encryptor
}

func NewRegistry() *Registry {
	return &Registry{
		compressors: make(map[string]Compressor),
		encryptors:  map[string]Encryptor{"": NoEncryption{}},
	}
}

func (r *Registry) RegisterCompressor(c Compressor) { r.compressors[c.Name()] = c }
func (r *Registry) RegisterEncryptor(e Encryptor)   { r.encryptors[e.Name()] = e }

func (r *Registry) Compressor(name string) (Compressor, bool) {
	c, ok := r.compressors[name]
	return c, ok
}

func (r *Registry) Encryptor(name string) (Encryptor, bool) {
	e, ok := r.encryptors[name]
	return e, ok
}

// CompressionModules lists every registered compression module name,
// for internal/remote.Probe's cross-product.
func (r *Registry) CompressionModules() []string {
	names := make([]string, 0, len(r.compressors))
	for name := range r.compressors {
		names = append(names, name)
	}
	return names
}

// EncryptionModules lists every registered encryption module name,
// including "" for the unencrypted case.
func (r *Registry) EncryptionModules() []string {
	names := make([]string, 0, len(r.encryptors))
	for name := range r.encryptors {
		names = append(names, name)
	}
	return names
}

// NoEncryption is the identity Encryptor, registered under "".
type NoEncryption struct{}

func (NoEncryption) Name() string { return "" }
func (NoEncryption) Encrypt(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}
func (NoEncryption) Decrypt(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}
