package remote

// Probe implements the filename-probing fallback (spec §4.10, property
// P8): given a filename that parsed but whose volume wasn't found in
// the local index verbatim, try every (compression, encryption)
// combination from the loaded codec modules, regenerating the
// canonical name each time, and ask lookup whether a volume with that
// name is known. The first hit wins; returns (-1, name) if nothing
// matches, mirroring the lookup miss.
//
// compressionModules and encryptionModules must list every module the
// running process has loaded; encryptionModules should include "" to
// also probe the unencrypted case.
func Probe(name string, compressionModules, encryptionModules []string, lookup func(candidate string) (volumeID int64, ok bool)) (int64, string) {
	d, err := Parse(name)
	if err != nil {
		return -1, name
	}

	// The parsed filename's own (compression, encryption) is the most
	// likely match; try it first before the full cross-product.
	if id, ok := lookup(Generate(d)); ok {
		return id, Generate(d)
	}

	for _, comp := range compressionModules {
		for _, enc := range encryptionModules {
			candidate := d
			candidate.Compression = comp
			candidate.Encryption = enc
			generated := Generate(candidate)
			if id, ok := lookup(generated); ok {
				return id, generated
			}
		}
	}
	return -1, name
}
