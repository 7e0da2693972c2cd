package cache

import (
	"errors"

	"github.com/chazu/glox/vm"
	"github.com/chazu/glox/vm/image"
)

// Load returns the compiled script for source, decoding a cached image into
// machine's heap when one exists and compiling (then caching) otherwise.
// A cached image that fails to decode is discarded and recompiled.
func (s *Store) Load(machine *vm.VM, source string) (fn *vm.ObjFunction, hit bool, err error) {
	key := Key(source)

	data, err := s.Get(key)
	switch {
	case err == nil:
		fn, err := image.Decode(data, machine.Heap())
		if err == nil {
			log.Debugf("cache hit %s", key[:12])
			return fn, true, nil
		}
		log.Warningf("discarding cached image %s: %s", key[:12], err)
		if err := s.Delete(key); err != nil {
			return nil, false, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	fn, err = machine.Compile(source)
	if err != nil {
		return nil, false, err
	}
	data, err = image.Encode(fn)
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(key, data); err != nil {
		return nil, false, err
	}
	log.Debugf("cache store %s (%d bytes)", key[:12], len(data))
	return fn, false, nil
}
