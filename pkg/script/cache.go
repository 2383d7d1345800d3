package script

import (
	"encoding/gob"
	"os"

	"github.com/rotisserie/eris"
)

type cacheEntry struct {
	Options     map[string]string
	Definitions *Definitions
}

// WriteCache stores the definitions together with the option values they were loaded with
func WriteCache(file string, options map[string]string, defs *Definitions) error {
	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "failed to create cache %s", file)
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(cacheEntry{Options: options, Definitions: defs})
	if err != nil {
		return eris.Wrap(err, "failed to encode cache")
	}

	return nil
}

// ReadCache loads definitions written by WriteCache
func ReadCache(file string) (map[string]string, *Definitions, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer handle.Close()

	var entry cacheEntry
	err = gob.NewDecoder(handle).Decode(&entry)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "failed to decode cache %s", file)
	}

	return entry.Options, entry.Definitions, nil
}

// CacheIsFresh reports whether the cache file is newer than the script and every file the
// script read, and was written with the same option values.
func CacheIsFresh(cacheFile, scriptFile string, options map[string]string) (*Definitions, bool) {
	cacheInfo, err := os.Stat(cacheFile)
	if err != nil {
		return nil, false
	}

	scriptInfo, err := os.Stat(scriptFile)
	if err != nil || scriptInfo.ModTime().After(cacheInfo.ModTime()) {
		return nil, false
	}

	cachedOptions, defs, err := ReadCache(cacheFile)
	if err != nil || len(cachedOptions) != len(options) {
		return nil, false
	}

	for _, source := range defs.Sources {
		info, err := os.Stat(source)
		if err != nil || info.ModTime().After(cacheInfo.ModTime()) {
			return nil, false
		}
	}

	for key, value := range options {
		if cached, ok := cachedOptions[key]; !ok || cached != value {
			return nil, false
		}
	}

	return defs, true
}
