package main

import (
	"github.com/blockvault/blockvault/internal/codec"
	"github.com/blockvault/blockvault/internal/pipeline"
)

// buildRegistry wires up the codec modules this invocation of the
// engine needs: gzip compression always, plus AEAD encryption whenever
// a passphrase is configured.
func buildRegistry() *codec.Registry {
	reg := codec.NewRegistry()
	reg.RegisterCompressor(codec.GzipCompressor{})
	if cliOpts.Passphrase != "" {
		reg.RegisterEncryptor(codec.AEADEncryptor{Passphrase: cliOpts.Passphrase})
	}
	return reg
}

// encryptionModule returns the codec module name to stamp onto newly
// written volumes: "aes" once a passphrase is configured, "" (none)
// otherwise.
func encryptionModule() string {
	if cliOpts.Passphrase != "" {
		return "aes"
	}
	return ""
}

// pipelineOptions translates the resolved config into pipeline.Options
// shared by backup and recreate.
func pipelineOptions(fullBackup bool) pipeline.Options {
	return pipeline.Options{
		SymlinkPolicy:     pipeline.SymlinkStore,
		BlockSizeBytes:    cliOpts.BlockSizeBytes,
		VolumeSizeBytes:   100 * 1024 * 1024,
		CompressionModule: cliOpts.CompressionModule,
		EncryptionModule:  encryptionModule(),
		FullBackup:        fullBackup,
		DeleteGracePeriod: cliOpts.DeleteGracePeriod,
	}
}
